package util

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// PromptFunc asks the user for a secret such as a password or a key
// passphrase.
type PromptFunc func(prompt string) ([]byte, error)

// PromptSecret prints prompt on stderr and reads a line from the
// terminal with echo disabled.
func PromptSecret(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("%s: stdin is not a terminal", prompt)
	}
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading secret: %w", err)
	}
	return secret, nil
}
