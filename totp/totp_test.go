package totp_test

import (
	"testing"
	"time"

	"github.com/fahmaliyi/otpvault/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	seedSHA1   = []byte("12345678901234567890")
	seedSHA256 = []byte("12345678901234567890123456789012")
	seedSHA512 = []byte("1234567890123456789012345678901234567890123456789012345678901234")
)

// Appendix B of RFC 6238.
func TestGenerateRFC6238Vectors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		unix   int64
		sha1   string
		sha256 string
		sha512 string
	}{
		{59, "94287082", "46119246", "90693936"},
		{1111111109, "07081804", "68084774", "25091201"},
		{1111111111, "14050471", "67062674", "99943326"},
		{1234567890, "89005924", "91819424", "93441116"},
		{2000000000, "69279037", "90698825", "38618901"},
		{20000000000, "65353130", "77737706", "47863826"},
	}

	for _, tt := range tests {
		t.Run(time.Unix(tt.unix, 0).UTC().Format(time.RFC3339), func(t *testing.T) {
			t.Parallel()

			got, err := totp.Generate(seedSHA1, totp.SHA1, 8, 30, tt.unix)
			require.NoError(t, err)
			assert.Equal(t, tt.sha1, got)

			got, err = totp.Generate(seedSHA256, totp.SHA256, 8, 30, tt.unix)
			require.NoError(t, err)
			assert.Equal(t, tt.sha256, got)

			got, err = totp.Generate(seedSHA512, totp.SHA512, 8, 30, tt.unix)
			require.NoError(t, err)
			assert.Equal(t, tt.sha512, got)
		})
	}
}

func TestGenerateSixDigitsIsSuffixOfEight(t *testing.T) {
	t.Parallel()

	code, err := totp.Generate(seedSHA1, totp.SHA1, 6, 30, 59)
	require.NoError(t, err)
	assert.Equal(t, "287082", code)
}

func TestGenerateZeroPads(t *testing.T) {
	t.Parallel()

	code, err := totp.Generate(seedSHA1, totp.SHA1, 8, 30, 1111111109)
	require.NoError(t, err)
	assert.Len(t, code, 8)
	assert.Equal(t, byte('0'), code[0])
}

func TestGenerateRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		secret  []byte
		alg     totp.Algorithm
		digits  int
		step    uint64
		unix    int64
		wantErr error
	}{
		{"zero step", seedSHA1, totp.SHA1, 6, 0, 59, totp.ErrZeroStep},
		{"unknown algorithm", seedSHA1, totp.Algorithm("MD5"), 6, 30, 59, totp.ErrUnsupportedAlgorithm},
		{"zero digits", seedSHA1, totp.SHA1, 0, 30, 59, totp.ErrInvalidDigits},
		{"too many digits", seedSHA1, totp.SHA1, 11, 30, 59, totp.ErrInvalidDigits},
		{"empty secret", nil, totp.SHA1, 6, 30, 59, totp.ErrEmptySecret},
		{"negative time", seedSHA1, totp.SHA1, 6, 30, -1, totp.ErrNegativeTime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := totp.Generate(tt.secret, tt.alg, tt.digits, tt.step, tt.unix)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGenerateIsDeterministicWithinWindow(t *testing.T) {
	t.Parallel()

	a, err := totp.Generate(seedSHA1, totp.SHA1, 6, 30, 1_700_000_010)
	require.NoError(t, err)
	b, err := totp.Generate(seedSHA1, totp.SHA1, 6, 30, 1_700_000_019)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestValidateSkew(t *testing.T) {
	t.Parallel()

	now := time.Unix(1234567890, 0)
	opts := totp.Opts{Algorithm: totp.SHA1, Digits: 8, Step: 30, Skew: 1}

	previous, err := totp.GenerateAt(seedSHA1, opts, now.Add(-30*time.Second))
	require.NoError(t, err)

	ok, err := totp.Validate(previous, seedSHA1, opts, now)
	require.NoError(t, err)
	assert.True(t, ok)

	opts.Skew = 0
	ok, err = totp.Validate(previous, seedSHA1, opts, now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = totp.Validate("123", seedSHA1, opts, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemaining(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 30*time.Second, totp.Remaining(30, time.Unix(60, 0)))
	assert.Equal(t, 1*time.Second, totp.Remaining(30, time.Unix(59, 0)))
	assert.Equal(t, time.Duration(0), totp.Remaining(0, time.Unix(59, 0)))
}

func TestDecodeSecret(t *testing.T) {
	t.Parallel()

	want := []byte("Hello!\xde\xad\xbe\xef")

	for _, in := range []string{
		"JBSWY3DPEHPK3PXP",
		"jbswy3dpehpk3pxp",
		"JBSW Y3DP EHPK 3PXP",
		"JBSWY3DPEHPK3PXP======",
	} {
		got, err := totp.DecodeSecret(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := totp.DecodeSecret("not base32!")
	assert.ErrorIs(t, err, totp.ErrInvalidSecret)

	_, err = totp.DecodeSecret("   ")
	assert.ErrorIs(t, err, totp.ErrEmptySecret)

	assert.Equal(t, "JBSWY3DPEHPK3PXP", totp.EncodeSecret(want))
}

func TestParseAlgorithm(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]totp.Algorithm{
		"SHA1":    totp.SHA1,
		"sha256":  totp.SHA256,
		"SHA-512": totp.SHA512,
	} {
		got, ok := totp.ParseAlgorithm(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got)
	}

	_, ok := totp.ParseAlgorithm("MD5")
	assert.False(t, ok)
}
