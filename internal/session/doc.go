// Package session implements the login and page-fetch primitive of the
// FRITZ!Box web interface.
//
// The router hands out a challenge from /login_sid.lua. The client
// answers with "<challenge>-<md5(UTF-16LE(challenge-password))>" and
// receives a 16 hex digit session ID (SID). An all-zero SID means the
// session is not authenticated. Every other page is requested with
// ?sid=<SID>.
//
// # Usage Example
//
//	client := session.NewClient("192.168.178.1", session.DefaultPort, password)
//
//	body, err := client.FetchPage(ctx, "/data.lua", url.Values{"page": {"wSet"}})
//	if err != nil {
//	    fmt.Println(session.TroubleshootingHint(err))
//	}
//
// FetchPage logs in again before every request. The router keeps a
// valid session alive, so the extra round trip is a single GET that
// returns the current SID.
//
// # Errors
//
// All failures are returned as *Error. Use IsNetworkError, IsAuthError,
// IsProtocolError and IsInvalidParameterError to branch on the category.
//
// # Thread Safety
//
// A Client may be shared between goroutines. Logins are serialised and
// the SID is guarded by a mutex.
package session
