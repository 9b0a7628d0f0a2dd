package config_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fahmaliyi/otpvault/backend"
	"github.com/fahmaliyi/otpvault/config"
	"github.com/fahmaliyi/otpvault/vault"
)

func TestDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, backend.KindVault, cfg.BackendKind())
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 30*time.Second, cfg.RefreshStep)
	assert.Equal(t, "tui", cfg.UI)
	assert.Equal(t, vault.CipherAES256GCM, cfg.CipherID())
	assert.Equal(t, vault.KDFParams{Algorithm: vault.KDFArgon2id, Time: 3, Memory: 65536, Threads: 1}, cfg.KDFParams())
	assert.Equal(t, "vault.dat", filepath.Base(cfg.Path))
}

func TestOverrides(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFrom(map[string]string{
		"OTPVAULT_BACKEND":      "kdbx",
		"OTPVAULT_PATH":         "/tmp/otp.kdbx",
		"OTPVAULT_KDF":          "scrypt",
		"OTPVAULT_KDF_MEMORY":   "32768",
		"OTPVAULT_KDF_TIME":     "8",
		"OTPVAULT_CIPHER":       "xchacha20-poly1305",
		"OTPVAULT_REFRESH_STEP": "60s",
		"OTPVAULT_UI":           "cli",
	})
	require.NoError(t, err)

	opts := cfg.BackendOptions()
	assert.Equal(t, backend.KindKDBX, opts.Kind)
	assert.Equal(t, "/tmp/otp.kdbx", opts.Path)
	assert.Equal(t, vault.KDFScrypt, opts.KDF.Algorithm)
	assert.Equal(t, uint32(32768), opts.KDF.Memory)
	assert.Equal(t, vault.CipherXChaCha20Poly1305, opts.Cipher)
	assert.Equal(t, uint64(60), opts.RefreshStep)
}

func TestInvalidValues(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"OTPVAULT_BACKEND":      "sqlite",
		"OTPVAULT_KDF":          "bcrypt",
		"OTPVAULT_CIPHER":       "rot13",
		"OTPVAULT_UI":           "gtk",
		"OTPVAULT_REFRESH_STEP": "10ms",
		"OTPVAULT_KDF_TIME":     "1000",
	}

	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadFrom(map[string]string{key: val, "OTPVAULT_PATH": "/tmp/x"})
			assert.ErrorIs(t, err, config.ErrInvalidValue)
		})
	}

	_, err := config.LoadFrom(map[string]string{"OTPVAULT_WORKERS": "many"})
	assert.ErrorIs(t, err, config.ErrParsingConfig)
}
