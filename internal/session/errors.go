package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"

	"github.com/muurk/fritzbox/internal/urls"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error (host unreachable, reset, etc.)
	ErrTypeNetwork ErrorType = iota
	// ErrTypeAuth indicates the router rejected the login response
	ErrTypeAuth
	// ErrTypeHTTP indicates an HTTP-level error (non-200 status code)
	ErrTypeHTTP
	// ErrTypeParse indicates a response that could not be decoded (XML, JSON)
	ErrTypeParse
	// ErrTypeInvalidParameter indicates a caller supplied an unusable argument
	ErrTypeInvalidParameter
	// ErrTypeTimeout indicates a request timeout
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates the router refused the connection
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates a DNS resolution failure
	ErrTypeDNS
	// ErrTypeUnknown indicates an unknown or unexpected error
	ErrTypeUnknown
)

// NetworkErrorSubtype provides more specific network error classification
type NetworkErrorSubtype int

const (
	NetworkErrorGeneral NetworkErrorSubtype = iota
	NetworkErrorTimeout
	NetworkErrorConnectionRefused
	NetworkErrorDNS
	NetworkErrorHostUnreachable
	NetworkErrorNetworkUnreachable
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeAuth:
		return "Authentication Error"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeParse:
		return "Parse Error"
	case ErrTypeInvalidParameter:
		return "Invalid Parameter"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	case ErrTypeUnknown:
		return "Unknown Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// Error is returned by every operation that talks to the router.
type Error struct {
	Type           ErrorType           // Category of error
	Message        string              // Human-readable error message
	StatusCode     int                 // HTTP status code (if applicable)
	Err            error               // Underlying error (if any)
	NetworkSubtype NetworkErrorSubtype // More specific network error type
	Host           string              // Router address (for context)
	Retryable      bool                // Whether a later attempt may succeed
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError analyzes a transport error and returns a typed Error
func ClassifyNetworkError(err error, host string) *Error {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Type:           ErrTypeTimeout,
			Message:        "Request timed out",
			Err:            err,
			NetworkSubtype: NetworkErrorTimeout,
			Host:           host,
			Retryable:      true,
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{
			Type:           ErrTypeDNS,
			Message:        fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Err:            err,
			NetworkSubtype: NetworkErrorDNS,
			Host:           host,
			Retryable:      false,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			return &Error{
				Type:           ErrTypeConnectionRefused,
				Message:        "Router refused connection",
				Err:            err,
				NetworkSubtype: NetworkErrorConnectionRefused,
				Host:           host,
				Retryable:      true,
			}
		case errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return &Error{
				Type:           ErrTypeNetwork,
				Message:        "Host unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorHostUnreachable,
				Host:           host,
				Retryable:      true,
			}
		case errors.Is(opErr.Err, syscall.ENETUNREACH):
			return &Error{
				Type:           ErrTypeNetwork,
				Message:        "Network unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorNetworkUnreachable,
				Host:           host,
				Retryable:      true,
			}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ClassifyNetworkError(urlErr.Err, host)
	}

	return &Error{
		Type:           ErrTypeNetwork,
		Message:        "Network error occurred",
		Err:            err,
		NetworkSubtype: NetworkErrorGeneral,
		Host:           host,
		Retryable:      true,
	}
}

// NewNetworkError creates a network-level error with automatic classification
func NewNetworkError(message string, err error) *Error {
	classified := ClassifyNetworkError(err, "")
	if classified != nil {
		classified.Message = message
		return classified
	}
	return &Error{
		Type:      ErrTypeNetwork,
		Message:   message,
		Err:       err,
		Retryable: true,
	}
}

// NewAuthError creates an authentication error
func NewAuthError(message string) *Error {
	return &Error{
		Type:       ErrTypeAuth,
		Message:    message,
		StatusCode: http.StatusForbidden,
		Retryable:  false,
	}
}

// NewHTTPError creates an HTTP-level error
func NewHTTPError(statusCode int, message string) *Error {
	return &Error{
		Type:       ErrTypeHTTP,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  statusCode >= 500,
	}
}

// NewParseError creates a parsing error
func NewParseError(message string, err error) *Error {
	return &Error{
		Type:      ErrTypeParse,
		Message:   message,
		Err:       err,
		Retryable: false,
	}
}

// NewInvalidParameterError reports an argument rejected before any I/O
func NewInvalidParameterError(message string) *Error {
	return &Error{
		Type:      ErrTypeInvalidParameter,
		Message:   message,
		Retryable: false,
	}
}

func asError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsNetworkError checks if an error is a network error (including timeout, connection refused, DNS, etc.)
func IsNetworkError(err error) bool {
	if e, ok := asError(err); ok {
		return e.Type == ErrTypeNetwork ||
			e.Type == ErrTypeTimeout ||
			e.Type == ErrTypeConnectionRefused ||
			e.Type == ErrTypeDNS
	}
	return false
}

// IsAuthError checks if an error is an authentication error
func IsAuthError(err error) bool {
	if e, ok := asError(err); ok {
		return e.Type == ErrTypeAuth
	}
	return false
}

// IsHTTPError checks if an error is an HTTP error
func IsHTTPError(err error) bool {
	if e, ok := asError(err); ok {
		return e.Type == ErrTypeHTTP
	}
	return false
}

// IsParseError checks if an error is a parse error
func IsParseError(err error) bool {
	if e, ok := asError(err); ok {
		return e.Type == ErrTypeParse
	}
	return false
}

// IsProtocolError reports whether the router answered, but not in the
// expected way: an unexpected status or an undecodable body.
func IsProtocolError(err error) bool {
	return IsHTTPError(err) || IsParseError(err)
}

// IsInvalidParameterError checks if an error is an invalid parameter error
func IsInvalidParameterError(err error) bool {
	if e, ok := asError(err); ok {
		return e.Type == ErrTypeInvalidParameter
	}
	return false
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	if e, ok := asError(err); ok {
		return e.Retryable
	}
	return false
}

// TroubleshootingHint returns user-friendly troubleshooting advice for an error
func TroubleshootingHint(err error) string {
	e, ok := asError(err)
	if !ok {
		return "An unexpected error occurred. Please try again."
	}

	switch e.Type {
	case ErrTypeTimeout:
		return strings.Join([]string{
			"The router did not respond in time.",
			"Troubleshooting:",
			"  • Check that the FRITZ!Box is powered on and reachable",
			"  • Try increasing the timeout with --timeout",
			"  • The web interface may be busy, try again in a minute",
		}, "\n")

	case ErrTypeConnectionRefused:
		return strings.Join([]string{
			"The router refused the connection.",
			"Troubleshooting:",
			"  • Verify the address points at the FRITZ!Box and not another host",
			"  • The web interface listens on port 80 by default",
		}, "\n")

	case ErrTypeDNS:
		return strings.Join([]string{
			"Could not resolve the router hostname.",
			"Troubleshooting:",
			"  • Use the IP address instead of fritz.box",
			"  • Check your network DNS settings",
		}, "\n")

	case ErrTypeAuth:
		return strings.Join([]string{
			"The FRITZ!Box rejected the login.",
			"Troubleshooting:",
			"  • Check the password (the same one used for http://fritz.box)",
			"  • If the box is configured for user logins, pass --username",
			"  • Repeated failures make the box block logins for a few seconds",
			"  • Protocol details: " + urls.SessionIDTechNote,
		}, "\n")

	case ErrTypeNetwork:
		hint := []string{"Network communication failed."}

		switch e.NetworkSubtype {
		case NetworkErrorHostUnreachable:
			hint = append(hint, "The router is not reachable on the network.",
				"Troubleshooting:",
				"  • Verify the router IP address is correct",
				"  • Try pinging the router: ping "+e.Host)

		case NetworkErrorNetworkUnreachable:
			hint = append(hint, "Your computer cannot reach the router's network.",
				"Troubleshooting:",
				"  • Check your network adapter settings",
				"  • Verify you are connected to the home network")

		default:
			hint = append(hint, "Troubleshooting:",
				"  • Check your network connection",
				"  • Verify the router is powered on")
		}

		return strings.Join(hint, "\n")

	case ErrTypeHTTP:
		if e.StatusCode == http.StatusForbidden {
			return "The router denied access to the page. The session may have expired or the user lacks the required right."
		}
		return fmt.Sprintf("The router returned HTTP error %d. Check the requested page and parameters.", e.StatusCode)

	case ErrTypeParse:
		return strings.Join([]string{
			"Failed to parse the router's response.",
			"This may indicate an incompatible FRITZ!OS version.",
			"Troubleshooting:",
			"  • Check the FRITZ!OS version in the web interface",
			"  • Home automation commands: " + urls.AHAInterface,
		}, "\n")

	case ErrTypeInvalidParameter:
		return "A required argument is missing or out of range. Check the error message for details."

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// ShortErrorMessage returns a concise, user-friendly error message
func ShortErrorMessage(err error) string {
	e, ok := asError(err)
	if !ok {
		return err.Error()
	}

	switch e.Type {
	case ErrTypeTimeout:
		return "Router not responding (timeout)"
	case ErrTypeConnectionRefused:
		return "Router refused connection"
	case ErrTypeDNS:
		return "Cannot resolve router hostname"
	case ErrTypeAuth:
		return "Login failed - check password"
	case ErrTypeNetwork:
		switch e.NetworkSubtype {
		case NetworkErrorHostUnreachable:
			return "Router unreachable - check network connection"
		case NetworkErrorNetworkUnreachable:
			return "Network unreachable"
		default:
			return "Network error - check connection"
		}
	case ErrTypeHTTP:
		return fmt.Sprintf("Router error (HTTP %d)", e.StatusCode)
	case ErrTypeParse:
		return "Failed to parse router response"
	default:
		return e.Message
	}
}
