package kdbx

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tobischo/gokeepasslib/v3"
	w "github.com/tobischo/gokeepasslib/v3/wrappers"

	"github.com/fahmaliyi/otpvault/entry"
	"github.com/fahmaliyi/otpvault/errs"
	"github.com/fahmaliyi/otpvault/totp"
)

// Custom field names holding the code parameters on a KeePass entry.
const (
	FieldTitle     = "Title"
	FieldSecret    = "TOTPSecret"
	FieldAlgorithm = "TOTPAlgorithm"
	FieldPeriod    = "TOTPPeriod"
	FieldDigits    = "TOTPDigits"

	UnnamedEntry = "Unnamed TOTP Entry"
)

// Field names used by databases written by Clockode. They are read when the
// fields above are absent; writes always use the names above.
const (
	LegacyFieldSecret    = "ClockodeTotpSecret"
	LegacyFieldAlgorithm = "ClockodeTotpAlgorithm"
	LegacyFieldPeriod    = "ClockodeTotpPeriod"
	LegacyFieldDigits    = "ClockodeTotpDigits"
)

var legacyFields = map[string]string{
	FieldSecret:    LegacyFieldSecret,
	FieldAlgorithm: LegacyFieldAlgorithm,
	FieldPeriod:    LegacyFieldPeriod,
	FieldDigits:    LegacyFieldDigits,
}

// content returns the field key, falling back to its legacy name.
func content(ke gokeepasslib.Entry, key string) string {
	if s := ke.GetContent(key); s != "" {
		return s
	}
	if legacy, ok := legacyFields[key]; ok {
		return ke.GetContent(legacy)
	}
	return ""
}

var ErrMissingSecret = errors.New("missing totp secret field")

func value(key, content string) gokeepasslib.ValueData {
	return gokeepasslib.ValueData{Key: key, Value: gokeepasslib.V{Content: content}}
}

func protectedValue(key, content string) gokeepasslib.ValueData {
	return gokeepasslib.ValueData{
		Key:   key,
		Value: gokeepasslib.V{Content: content, Protected: w.NewBoolWrapper(true)},
	}
}

func fields(e entry.Entry) []gokeepasslib.ValueData {
	return []gokeepasslib.ValueData{
		value(FieldTitle, e.Name),
		protectedValue(FieldSecret, e.Secret),
		value(FieldAlgorithm, e.Config.Algorithm.String()),
		value(FieldPeriod, strconv.FormatUint(e.Config.Step, 10)),
		value(FieldDigits, strconv.Itoa(e.Config.Digits)),
	}
}

// ToKeePass maps e onto a KeePass entry. The entry UUID is e.ID when set.
func ToKeePass(e entry.Entry) gokeepasslib.Entry {
	ke := gokeepasslib.NewEntry()
	if e.HasID() {
		ke.UUID = gokeepasslib.UUID(e.ID)
	}
	ke.Values = fields(e)
	return ke
}

// FromKeePass reads the custom fields back into an Entry. Absent parameters
// take their defaults and an unknown algorithm falls back to SHA1 with a
// warning; a missing secret is an error.
func FromKeePass(ke gokeepasslib.Entry, log *slog.Logger) (entry.Entry, error) {
	if log == nil {
		log = slog.Default()
	}

	name := strings.TrimSpace(ke.GetTitle())
	if name == "" {
		name = UnnamedEntry
	}

	secret := content(ke, FieldSecret)
	if strings.TrimSpace(secret) == "" {
		return entry.Entry{}, errs.Wrap(errs.KindValidation, name, ErrMissingSecret)
	}

	cfg := entry.DefaultConfig()

	if s := content(ke, FieldAlgorithm); s != "" {
		alg, ok := totp.ParseAlgorithm(s)
		if !ok {
			log.Warn("unknown otp algorithm, defaulting to SHA1",
				slog.String("algorithm", s),
				slog.String("name", name),
			)
			alg = totp.SHA1
		}
		cfg.Algorithm = alg
	}

	if s := content(ke, FieldDigits); s != "" {
		d, err := strconv.Atoi(s)
		if err != nil {
			return entry.Entry{}, errs.Validation("invalid entry field", map[string]string{
				"digits": fmt.Sprintf("%q is not a number", s),
			})
		}
		cfg.Digits = d
	}

	if s := content(ke, FieldPeriod); s != "" {
		p, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return entry.Entry{}, errs.Validation("invalid entry field", map[string]string{
				"step": fmt.Sprintf("%q is not a number", s),
			})
		}
		cfg.Step = p
	}

	return entry.Entry{
		ID:     uuid.UUID(ke.UUID),
		Name:   name,
		Secret: secret,
		Config: cfg,
	}, nil
}
