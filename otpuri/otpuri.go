// Package otpuri reads and writes the otpauth:// key URI format and the
// newline-delimited batch format built on it.
package otpuri

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/fahmaliyi/otpvault/entry"
	"github.com/fahmaliyi/otpvault/errs"
	"github.com/fahmaliyi/otpvault/totp"
)

const (
	Scheme = "otpauth"
	Type   = "totp"

	// DefaultName names imported records that carry no label at all.
	DefaultName = "Imported Entry"

	MinDigits = 4
	MaxDigits = 10
)

var (
	ErrInvalidURL       = errors.New("invalid url")
	ErrInvalidScheme    = errors.New("invalid scheme")
	ErrInvalidType      = errors.New("invalid otp type")
	ErrMissingSecret    = errors.New("missing required secret parameter")
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Record is a parsed key URI before it is turned into an Entry.
type Record struct {
	Label       string
	Issuer      string
	AccountName string
	Secret      string
	// Algorithm is the raw parameter; empty when absent.
	Algorithm string
	// Digits and Period are meaningful only when the matching Has flag is set.
	Digits    int
	HasDigits bool
	Period    uint64
	HasPeriod bool
	// Params holds every query parameter, first value wins, keys as written.
	Params map[string]string
}

func parseErr(err error) error {
	return errs.Wrap(errs.KindValidation, "parse otp uri", err)
}

// Parse reads a single otpauth://totp/ URI.
func Parse(uri string) (Record, error) {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil {
		return Record{}, parseErr(fmt.Errorf("%w: %v", ErrInvalidURL, err))
	}
	if u.Scheme != Scheme {
		return Record{}, parseErr(fmt.Errorf("%w: %q", ErrInvalidScheme, u.Scheme))
	}
	if u.Host != Type {
		host := u.Host
		if host == "" {
			host = "missing"
		}
		return Record{}, parseErr(fmt.Errorf("%w: %q", ErrInvalidType, host))
	}

	params := make(map[string]string)
	for key, values := range u.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	secret, ok := params["secret"]
	if !ok || strings.TrimSpace(secret) == "" {
		return Record{}, parseErr(ErrMissingSecret)
	}

	rec := Record{Secret: secret, Algorithm: params["algorithm"], Params: params}
	rec.Label, rec.AccountName, rec.Issuer = splitLabel(strings.TrimPrefix(u.Path, "/"))
	if issuer, ok := params["issuer"]; ok && issuer != "" {
		rec.Issuer = issuer
	}

	if s, ok := params["digits"]; ok {
		d, err := strconv.Atoi(s)
		if err != nil {
			return Record{}, parseErr(fmt.Errorf("%w: digits", ErrInvalidParameter))
		}
		rec.Digits, rec.HasDigits = d, true
	}
	if s, ok := params["period"]; ok {
		p, err := strconv.ParseUint(s, 10, 64)
		if err != nil || p == 0 {
			return Record{}, parseErr(fmt.Errorf("%w: period", ErrInvalidParameter))
		}
		rec.Period, rec.HasPeriod = p, true
	}

	return rec, nil
}

// splitLabel splits an already decoded label on its first colon. A label
// without a colon is both the label and the account name.
func splitLabel(label string) (full, account, issuer string) {
	if label == "" {
		return "", "", ""
	}
	before, after, found := strings.Cut(label, ":")
	if !found {
		return label, label, ""
	}
	return label, strings.TrimSpace(after), strings.TrimSpace(before)
}

// Name picks the display name for the record: issuer:account when both are
// known, otherwise whichever part exists, falling back to DefaultName.
func (r Record) Name() string {
	switch {
	case r.Issuer != "" && r.AccountName != "" && r.Issuer != r.AccountName:
		return r.Issuer + ":" + r.AccountName
	case r.Issuer != "":
		return r.Issuer
	case r.AccountName != "":
		return r.AccountName
	case r.Label != "":
		return r.Label
	default:
		return DefaultName
	}
}

// ToEntry converts the record. Missing parameters take their defaults; an
// unknown algorithm falls back to SHA1 with a warning on log.
func (r Record) ToEntry(log *slog.Logger) (entry.Entry, error) {
	if log == nil {
		log = slog.Default()
	}

	cfg := entry.DefaultConfig()

	if r.Algorithm != "" {
		alg, ok := totp.ParseAlgorithm(r.Algorithm)
		if !ok {
			log.Warn("unknown otp algorithm, defaulting to SHA1",
				slog.String("algorithm", r.Algorithm),
				slog.String("name", r.Name()),
			)
			alg = totp.SHA1
		}
		cfg.Algorithm = alg
	}

	if r.HasDigits {
		if r.Digits < MinDigits || r.Digits > MaxDigits {
			return entry.Entry{}, errs.Validation("invalid digits value", map[string]string{
				"digits": fmt.Sprintf("%d must be between %d and %d", r.Digits, MinDigits, MaxDigits),
			})
		}
		cfg.Digits = r.Digits
	}
	if r.HasPeriod {
		cfg.Step = r.Period
	}

	secret, err := totp.NormalizeSecret(r.Secret)
	if err != nil {
		return entry.Entry{}, errs.Wrap(errs.KindValidation, "invalid secret", err)
	}

	return entry.Entry{Name: r.Name(), Secret: secret, Config: cfg}, nil
}

// ParseEntry is Parse followed by ToEntry.
func ParseEntry(uri string, log *slog.Logger) (entry.Entry, error) {
	rec, err := Parse(uri)
	if err != nil {
		return entry.Entry{}, err
	}
	return rec.ToEntry(log)
}

// Serialize renders e as an otpauth URI. Names of the form issuer:account are
// split, and colons inside either half are dropped to keep the label well formed.
func Serialize(e entry.Entry) string {
	label, issuer := labelFromName(e.Name)

	step := e.Config.Step
	if step == 0 {
		step = totp.DefaultStep
	}

	var b strings.Builder
	b.WriteString(Scheme + "://" + Type + "/")
	b.WriteString(label)
	b.WriteString("?period=" + strconv.FormatUint(step, 10))
	b.WriteString("&digits=" + strconv.Itoa(e.Config.Digits))
	b.WriteString("&algorithm=" + e.Config.Algorithm.String())
	b.WriteString("&secret=" + url.QueryEscape(e.Secret))
	if issuer != "" {
		b.WriteString("&issuer=" + url.QueryEscape(issuer))
	}
	return b.String()
}

// labelFromName returns the escaped label and the unescaped issuer.
func labelFromName(name string) (string, string) {
	clean := func(s string) string {
		s = strings.ReplaceAll(s, ":", "")
		return strings.TrimSpace(strings.ReplaceAll(s, "%3A", ""))
	}

	before, after, found := strings.Cut(name, ":")
	if !found {
		return url.PathEscape(clean(name)), ""
	}

	issuer, account := clean(before), clean(after)
	switch {
	case issuer == "":
		return url.PathEscape(account), ""
	case account == "":
		return url.PathEscape(issuer), issuer
	default:
		return url.PathEscape(issuer) + "%3A" + url.PathEscape(account), issuer
	}
}
