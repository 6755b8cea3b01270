package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	csyncerr "csyncgo/internal/errors"
)

var (
	errPasswordMismatch = errors.New("passwords do not match")
	errPasswordEmpty    = errors.New("password cannot be empty")
)

// isTerminal returns true if stdin is a terminal (not piped/redirected).
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// readPasswordSecure reads a password from stdin without echo, falling back
// to a buffered line read when stdin is not a terminal (piped input).
func readPasswordSecure(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	if !isTerminal() {
		reader := bufio.NewReader(os.Stdin)
		pw, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return strings.TrimRight(pw, "\r\n"), nil
	}

	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

// readPasswordInteractive prompts for a password, with confirmation on
// encrypt; a mismatched confirmation is PasswordConfirmationFail.
func readPasswordInteractive(confirm bool) (string, error) {
	password, err := readPasswordSecure("Password: ")
	if err != nil {
		return "", err
	}
	if password == "" {
		return "", csyncerr.New(csyncerr.KindOther, "read-password-interactive", errPasswordEmpty)
	}
	if confirm {
		confirmation, err := readPasswordSecure("Confirm password: ")
		if err != nil {
			return "", err
		}
		if password != confirmation {
			return "", csyncerr.New(csyncerr.KindPasswordConfirmationFail, "read-password-interactive", errPasswordMismatch)
		}
	}
	return password, nil
}

// readPasswordFromStdin reads a single line from stdin without a prompt, for
// scripted/piped invocations.
func readPasswordFromStdin() (string, error) {
	reader := bufio.NewReader(os.Stdin)
	pw, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading password from stdin: %w", err)
	}
	return strings.TrimRight(pw, "\r\n"), nil
}
