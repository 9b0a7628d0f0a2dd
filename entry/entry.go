package entry

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fahmaliyi/otpvault/totp"
)

const (
	MinSecretLen = 10
	MaxSecretLen = 64
	MaxStep      = 300
)

// Config holds the code parameters of an Entry.
type Config struct {
	Algorithm totp.Algorithm `json:"algorithm" validate:"oneof=SHA1 SHA256 SHA512"`
	Digits    int            `json:"digits" validate:"oneof=6 8"`
	Step      uint64         `json:"step" validate:"gt=0,lte=300"`
	Skew      uint           `json:"skew"`
}

// DefaultConfig is SHA1, six digits, thirty second step, one window of skew.
func DefaultConfig() Config {
	return Config{
		Algorithm: totp.SHA1,
		Digits:    totp.DefaultDigits,
		Step:      totp.DefaultStep,
		Skew:      totp.DefaultSkew,
	}
}

func (c Config) Opts() totp.Opts {
	return totp.Opts{Algorithm: c.Algorithm, Digits: c.Digits, Step: c.Step, Skew: c.Skew}
}

// Entry is one stored TOTP credential. A zero ID means the entry has not been
// persisted yet.
type Entry struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name" validate:"notblank"`
	Secret string    `json:"secret" validate:"totpsecret"`
	Config Config    `json:"totp_config"`

	// Code is the most recently generated code. It is never persisted.
	Code string `json:"-"`
}

func (e Entry) HasID() bool { return e.ID != uuid.Nil }

// SecretBytes decodes the base32 secret.
func (e Entry) SecretBytes() ([]byte, error) {
	return totp.DecodeSecret(e.Secret)
}

// Generate returns the code of e at t.
func (e Entry) Generate(t time.Time) (string, error) {
	secret, err := e.SecretBytes()
	if err != nil {
		return "", err
	}
	return totp.GenerateAt(secret, e.Config.Opts(), t)
}

// Refreshed returns a copy of e with Code computed at t.
func (e Entry) Refreshed(t time.Time) (Entry, error) {
	code, err := e.Generate(t)
	if err != nil {
		return e, err
	}
	e.Code = code
	return e, nil
}

// SplitName splits a display name into issuer and account on the first colon.
// Names without a colon have no issuer.
func SplitName(name string) (issuer, account string) {
	before, after, found := strings.Cut(name, ":")
	if !found {
		return "", strings.TrimSpace(name)
	}
	return strings.TrimSpace(before), strings.TrimSpace(after)
}

// JoinName is the inverse of SplitName.
func JoinName(issuer, account string) string {
	issuer = strings.TrimSpace(issuer)
	account = strings.TrimSpace(account)
	if issuer == "" {
		return account
	}
	if account == "" {
		return issuer
	}
	return issuer + ":" + account
}

// Input is an entry as typed into a form: issuer and account are separate and
// the stricter submit rules apply.
type Input struct {
	ID          uuid.UUID
	Name        string
	Issuer      string         `validate:"excludes=:"`
	AccountName string         `validate:"notblank,excludes=:"`
	Secret      string         `validate:"totpsecret"`
	Algorithm   totp.Algorithm `validate:"oneof=SHA1 SHA256 SHA512"`
	Digits      int            `validate:"oneof=6 8"`
	Step        uint64         `validate:"gt=0,lte=300"`
}

// NewInput returns a blank form with default code parameters.
func NewInput() Input {
	c := DefaultConfig()
	return Input{Algorithm: c.Algorithm, Digits: c.Digits, Step: c.Step}
}

// InputFromEntry splits e back into form fields.
func InputFromEntry(e Entry) Input {
	issuer, account := SplitName(e.Name)
	return Input{
		ID:          e.ID,
		Name:        e.Name,
		Issuer:      issuer,
		AccountName: account,
		Secret:      e.Secret,
		Algorithm:   e.Config.Algorithm,
		Digits:      e.Config.Digits,
		Step:        e.Config.Step,
	}
}

// Validate reports whether the form can be submitted.
func (in Input) Validate() error {
	return validateStruct("invalid entry input", in)
}

// ToEntry validates the form and converts it. The display name defaults to
// issuer:account when Name is blank.
func (in Input) ToEntry() (Entry, error) {
	if err := in.Validate(); err != nil {
		return Entry{}, err
	}

	secret, err := totp.NormalizeSecret(in.Secret)
	if err != nil {
		return Entry{}, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = JoinName(in.Issuer, in.AccountName)
	}

	cfg := DefaultConfig()
	cfg.Algorithm = in.Algorithm
	cfg.Digits = in.Digits
	cfg.Step = in.Step

	return Entry{ID: in.ID, Name: name, Secret: secret, Config: cfg}, nil
}
