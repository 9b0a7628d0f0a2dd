package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/fahmaliyi/otpvault/entry"
	"github.com/fahmaliyi/otpvault/errs"
	"github.com/fahmaliyi/otpvault/totp"
)

func (s *Shell) handleAdd(ctx context.Context) {
	fmt.Fprint(s.out, "\n--- Add New Entry ---\n")

	in, err := s.readInput()
	if err != nil {
		fmt.Fprintln(s.out, "Aborted:", err)
		return
	}

	e, err := in.ToEntry()
	if err != nil {
		s.printError(err)
		return
	}

	saved, err := s.b.Upsert(ctx, e)
	if err != nil {
		s.printError(err)
		return
	}
	fmt.Fprintf(s.out, "Entry added: %s (%s)\n", saved.Name, saved.Code)
}

// readInput prompts for every form field. Blank answers keep the defaults.
func (s *Shell) readInput() (entry.Input, error) {
	in := entry.NewInput()

	var err error
	if in.Issuer, err = s.prompt("Issuer (optional): "); err != nil {
		return in, err
	}
	if in.AccountName, err = s.prompt("Account: "); err != nil {
		return in, err
	}

	secret, err := s.readSecret("Secret (base32): ")
	if err != nil {
		return in, err
	}
	in.Secret = strings.TrimSpace(string(secret))
	zero(secret)

	alg, err := s.prompt(fmt.Sprintf("Algorithm [%s]: ", in.Algorithm))
	if err != nil {
		return in, err
	}
	if alg != "" {
		in.Algorithm = totp.Algorithm(strings.ToUpper(alg))
	}

	digits, err := s.prompt(fmt.Sprintf("Digits [%d]: ", in.Digits))
	if err != nil {
		return in, err
	}
	if digits != "" {
		if in.Digits, err = strconv.Atoi(digits); err != nil {
			return in, errs.Validation("invalid entry input", map[string]string{"digits": "must be a number"})
		}
	}

	step, err := s.prompt(fmt.Sprintf("Step seconds [%d]: ", in.Step))
	if err != nil {
		return in, err
	}
	if step != "" {
		if in.Step, err = strconv.ParseUint(step, 10, 64); err != nil {
			return in, errs.Validation("invalid entry input", map[string]string{"step": "must be a positive number"})
		}
	}
	return in, nil
}

func (s *Shell) printError(err error) {
	var e *errs.Error
	if errors.As(err, &e) && len(e.Fields()) > 0 {
		fmt.Fprintln(s.out, e.Msg()+":")
		keys := lo.Keys(e.Fields())
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(s.out, "  %s: %s\n", k, e.Fields()[k])
		}
		return
	}
	fmt.Fprintln(s.out, "Error:", err)
}
