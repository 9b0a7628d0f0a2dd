package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/term"

	"github.com/fahmaliyi/otpvault/backend"
	"github.com/fahmaliyi/otpvault/errs"
)

// MaxUnlockAttempts bounds password retries at startup.
const MaxUnlockAttempts = 3

var ErrPasswordMismatch = errors.New("passwords do not match")

// PasswordFunc reads a secret after printing prompt.
type PasswordFunc func(prompt string) ([]byte, error)

// ReadPassword reads a line from the terminal without echo.
func ReadPassword(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	return pw, err
}

// ReadPasswordMasked reads a line in raw mode, echoing '*' per character.
func ReadPasswordMasked(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return ReadPassword(prompt)
	}

	fmt.Print(prompt)
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	defer term.Restore(fd, state)

	var input []byte
	var buf [utf8.UTFMax]byte
	for {
		if _, err := os.Stdin.Read(buf[:1]); err != nil {
			return nil, err
		}
		c := buf[0]

		switch c {
		case '\r', '\n':
			fmt.Print("\r\n")
			return input, nil
		case 3: // ctrl+c
			fmt.Print("\r\n")
			return nil, context.Canceled
		case 127, 8:
			if len(input) > 0 {
				_, size := utf8.DecodeLastRune(input)
				input = input[:len(input)-size]
				fmt.Print("\b \b")
			}
		default:
			input = append(input, c)
			if utf8.RuneStart(c) {
				fmt.Print("*")
			}
		}
	}
}

// NewPassword asks for a password twice until both entries match.
func NewPassword(read PasswordFunc, out io.Writer) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		pw, err := read("Set master password: ")
		if err != nil {
			return nil, err
		}
		if len(pw) == 0 {
			fmt.Fprintln(out, "Password must not be empty.")
		} else {
			confirm, err := read("Confirm master password: ")
			if err != nil {
				zero(pw)
				return nil, err
			}
			match := string(pw) == string(confirm)
			zero(confirm)
			if match {
				return pw, nil
			}
			zero(pw)
			fmt.Fprintln(out, "Passwords do not match.")
		}
		if attempt >= MaxUnlockAttempts {
			return nil, ErrPasswordMismatch
		}
	}
}

// OpenBackend unlocks the configured store, or runs the create flow when the
// file does not exist yet. A wrong password may be retried up to
// MaxUnlockAttempts times.
func OpenBackend(ctx context.Context, opts backend.Options, read PasswordFunc, out io.Writer) (backend.Backend, error) {
	if !backend.Exists(opts.Kind, opts.Path) {
		fmt.Fprintf(out, "No %s found at %s. Setting up a new master password.\n", opts.Kind, opts.Path)
		pw, err := NewPassword(read, out)
		if err != nil {
			return nil, err
		}
		defer zero(pw)
		return backend.Create(ctx, opts, pw)
	}

	for attempt := 1; ; attempt++ {
		pw, err := read("Master password: ")
		if err != nil {
			return nil, err
		}
		b, err := backend.Open(ctx, opts, pw)
		zero(pw)
		if err == nil {
			return b, nil
		}

		switch errs.KindOf(err) {
		case errs.KindAuthentication, errs.KindIncorrectPassword:
			if attempt < MaxUnlockAttempts {
				fmt.Fprintln(out, "Incorrect password, try again.")
				continue
			}
		}
		return nil, err
	}
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
