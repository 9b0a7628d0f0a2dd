package totp

import (
	"strings"
	"time"

	"github.com/pquerna/otp"
)

// Algorithm names the HMAC hash used for code generation.
type Algorithm string

const (
	SHA1   Algorithm = "SHA1"
	SHA256 Algorithm = "SHA256"
	SHA512 Algorithm = "SHA512"
)

// Algorithms lists every supported algorithm in display order.
func Algorithms() []Algorithm {
	return []Algorithm{SHA1, SHA256, SHA512}
}

// ParseAlgorithm matches s case-insensitively against the supported algorithms.
// Dashed spellings such as "SHA-256" are accepted.
func ParseAlgorithm(s string) (Algorithm, bool) {
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", ""))
	for _, a := range Algorithms() {
		if string(a) == norm {
			return a, true
		}
	}
	return "", false
}

func (a Algorithm) Valid() bool {
	switch a {
	case SHA1, SHA256, SHA512:
		return true
	}
	return false
}

func (a Algorithm) String() string { return string(a) }

func (a Algorithm) otp() otp.Algorithm {
	switch a {
	case SHA256:
		return otp.AlgorithmSHA256
	case SHA512:
		return otp.AlgorithmSHA512
	default:
		return otp.AlgorithmSHA1
	}
}

// Clock abstracts time so callers can pin it in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }
