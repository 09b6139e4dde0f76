package homeauto

import (
	"fmt"
	"strings"

	"github.com/muurk/fritzbox/internal/session"
)

// State is the decoded reply of a switch command
type State int

const (
	StateUnknown State = iota
	StateOff
	StateOn
)

// String returns "on", "off" or "unknown"
func (s State) String() string {
	switch s {
	case StateOn:
		return "on"
	case StateOff:
		return "off"
	default:
		return "unknown"
	}
}

// ParseState decodes "1", "0" and "inval". "inval" is what the router
// answers for an outlet it cannot reach.
func ParseState(reply string) (State, error) {
	switch strings.TrimSpace(reply) {
	case "1":
		return StateOn, nil
	case "0":
		return StateOff, nil
	case "inval":
		return StateUnknown, nil
	default:
		return StateUnknown, session.NewParseError(fmt.Sprintf("unexpected switch reply %q", reply), nil)
	}
}
