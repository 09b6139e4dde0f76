// Package urls keeps the vendor documentation links referenced by error
// hints and command help in one place.
//
// Usage:
//
//	import "github.com/muurk/fritzbox/internal/urls"
//
//	fmt.Printf("Protocol details: %s\n", urls.SessionIDTechNote)
package urls
