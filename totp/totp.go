// Package totp generates and validates RFC 6238 time-based one-time passwords.
//
// Code generation is pure: the caller supplies the decoded secret, the hash
// algorithm, the digit count, the step and the Unix time. Structurally invalid
// input is a caller bug and is reported immediately instead of defaulted.
package totp

import (
	"encoding/base32"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	pqtotp "github.com/pquerna/otp/totp"
)

const (
	DefaultDigits = 6
	DefaultStep   = 30
	DefaultSkew   = 1
	MaxDigits     = 10
)

var (
	ErrZeroStep             = errors.New("totp: step must be greater than zero")
	ErrUnsupportedAlgorithm = errors.New("totp: unsupported algorithm")
	ErrInvalidDigits        = errors.New("totp: digits must be between 1 and 10")
	ErrEmptySecret          = errors.New("totp: empty secret")
	ErrNegativeTime         = errors.New("totp: time before unix epoch")
	ErrInvalidSecret        = errors.New("totp: secret is not valid base32")
)

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Opts are the code parameters of one credential.
type Opts struct {
	Algorithm Algorithm
	Digits    int
	Step      uint64
	// Skew is the number of adjacent windows Validate tolerates on each side.
	// Generation ignores it.
	Skew uint
}

func (o Opts) check() error {
	if o.Step == 0 {
		return ErrZeroStep
	}
	if !o.Algorithm.Valid() {
		return ErrUnsupportedAlgorithm
	}
	if o.Digits < 1 || o.Digits > MaxDigits {
		return ErrInvalidDigits
	}
	return nil
}

func (o Opts) hotpOpts() hotp.ValidateOpts {
	return hotp.ValidateOpts{
		Digits:    otp.Digits(o.Digits),
		Algorithm: o.Algorithm.otp(),
	}
}

// Generate returns the zero-padded code for the step window containing unix.
func Generate(secret []byte, alg Algorithm, digits int, step uint64, unix int64) (string, error) {
	opts := Opts{Algorithm: alg, Digits: digits, Step: step}
	if err := opts.check(); err != nil {
		return "", err
	}
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}
	if unix < 0 {
		return "", ErrNegativeTime
	}

	counter := uint64(unix) / step
	return hotp.GenerateCodeCustom(EncodeSecret(secret), counter, opts.hotpOpts())
}

// GenerateAt is Generate with Opts and a time.Time.
func GenerateAt(secret []byte, opts Opts, t time.Time) (string, error) {
	return Generate(secret, opts.Algorithm, opts.Digits, opts.Step, t.Unix())
}

// Validate reports whether code matches secret at t, allowing opts.Skew
// windows of drift in either direction.
func Validate(code string, secret []byte, opts Opts, t time.Time) (bool, error) {
	if err := opts.check(); err != nil {
		return false, err
	}
	if len(secret) == 0 {
		return false, ErrEmptySecret
	}

	ok, err := pqtotp.ValidateCustom(code, EncodeSecret(secret), t.UTC(), pqtotp.ValidateOpts{
		Period:    uint(opts.Step),
		Skew:      opts.Skew,
		Digits:    otp.Digits(opts.Digits),
		Algorithm: opts.Algorithm.otp(),
	})
	if errors.Is(err, otp.ErrValidateInputInvalidLength) {
		return false, nil
	}
	return ok, err
}

// Remaining returns the time left until the window of the given step rolls over.
func Remaining(step uint64, t time.Time) time.Duration {
	if step == 0 {
		return 0
	}
	unix := uint64(t.Unix())
	return time.Duration(step-unix%step) * time.Second
}

// DecodeSecret decodes a base32 shared secret as typed by humans: whitespace is
// ignored, case is folded and padding is optional.
func DecodeSecret(text string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, text)
	cleaned = strings.TrimRight(cleaned, "=")
	if cleaned == "" {
		return nil, ErrEmptySecret
	}

	b, err := secretEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, errors.Join(ErrInvalidSecret, err)
	}
	return b, nil
}

// EncodeSecret returns the unpadded base32 form of secret.
func EncodeSecret(secret []byte) string {
	return secretEncoding.EncodeToString(secret)
}

// NormalizeSecret re-encodes a base32 secret in canonical form.
func NormalizeSecret(text string) (string, error) {
	b, err := DecodeSecret(text)
	if err != nil {
		return "", err
	}
	return EncodeSecret(b), nil
}
