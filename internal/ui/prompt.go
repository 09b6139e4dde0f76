package ui

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNotATerminal is returned when a prompt needs a terminal but stdin
// is redirected
var ErrNotATerminal = errors.New("stdin is not a terminal")

// PromptPassword asks for a secret without echoing it. The prompt goes
// to stderr so stdout stays clean for --format json.
func PromptPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", ErrNotATerminal
	}

	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(string(secret), "\r\n"), nil
}
