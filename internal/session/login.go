package session

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// InvalidSID is the all-zero ticket the router reports for an
// unauthenticated session.
const InvalidSID = "0000000000000000"

// sessionInfo mirrors the <SessionInfo> document served by login_sid.lua.
// Only the elements the login flow reads are decoded.
type sessionInfo struct {
	SID       string `xml:"SID"`
	Challenge string `xml:"Challenge"`
	BlockTime int    `xml:"BlockTime"`
}

// parseSessionInfo decodes a login_sid.lua response. A document without
// a SID element is rejected; the challenge is optional because a valid
// session is reported without one.
func parseSessionInfo(body []byte) (*sessionInfo, *Error) {
	var info sessionInfo
	if err := xml.Unmarshal(body, &info); err != nil {
		return nil, NewParseError("failed to parse login response", err)
	}
	info.SID = strings.TrimSpace(info.SID)
	info.Challenge = strings.TrimSpace(info.Challenge)
	if info.SID == "" {
		return nil, NewParseError("login response has no SID element", nil)
	}
	return &info, nil
}

// authenticated reports whether the SID is a real session ticket.
func (s *sessionInfo) authenticated() bool {
	return s.SID != InvalidSID
}

// ChallengeResponse computes the login response for a challenge:
// "<challenge>-<md5 hex of UTF-16LE(challenge-password)>".
func ChallengeResponse(challenge, password string) (string, error) {
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	encoded, err := encoder.Bytes([]byte(challenge + "-" + password))
	if err != nil {
		return "", NewParseError("failed to encode challenge as UTF-16LE", err)
	}

	sum := md5.Sum(encoded)
	return challenge + "-" + hex.EncodeToString(sum[:]), nil
}
