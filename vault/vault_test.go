package vault_test

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fahmaliyi/otpvault/entry"
	"github.com/fahmaliyi/otpvault/errs"
	"github.com/fahmaliyi/otpvault/totp"
	"github.com/fahmaliyi/otpvault/vault"
	"github.com/fahmaliyi/otpvault/worker"
)

var fastKDF = vault.KDFParams{Algorithm: vault.KDFArgon2id, Time: 1, Memory: 64, Threads: 1}

func testOpts(extra ...vault.Option) []vault.Option {
	opts := []vault.Option{
		vault.WithKDF(fastKDF),
		vault.WithPool(worker.NewPool(2, nil)),
		vault.WithClock(totp.ClockFunc(func() time.Time { return time.Unix(59, 0) })),
	}
	return append(opts, extra...)
}

func newEntry(name string) entry.Entry {
	return entry.Entry{
		Name:   name,
		Secret: totp.EncodeSecret([]byte("12345678901234567890")),
		Config: entry.Config{Algorithm: totp.SHA1, Digits: 8, Step: 30, Skew: 1},
	}
}

func createUnlocked(t *testing.T, opts ...vault.Option) (*vault.Vault, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "vault.otpv")
	ctx := context.Background()

	locked, err := vault.Create(ctx, path, []byte("correct horse"), testOpts(opts...)...)
	require.NoError(t, err)
	require.True(t, locked.IsLocked())

	v, err := locked.Decrypt(ctx, []byte("correct horse"))
	require.NoError(t, err)
	return v, path
}

func TestCreateThenDecryptIsEmpty(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dir", "vault.otpv")
	ctx := context.Background()

	locked, err := vault.Create(ctx, path, []byte("pw"), testOpts()...)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	unlocked, err := locked.Decrypt(ctx, []byte("pw"))
	require.NoError(t, err)
	assert.False(t, unlocked.IsLocked())
	assert.Empty(t, unlocked.List())
	assert.True(t, locked.IsLocked(), "decrypt must not unlock the receiver")
}

func TestDecryptWrongPasswordLeavesFileUntouched(t *testing.T) {
	t.Parallel()

	v, path := createUnlocked(t)
	_, err := v.UpsertEntry(newEntry("GitHub"))
	require.NoError(t, err)
	require.NoError(t, v.Save(context.Background()))

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	locked, err := vault.Load(path, testOpts()...)
	require.NoError(t, err)
	_, err = locked.Decrypt(context.Background(), []byte("wrong"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrAuthentication)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSaveAndReload(t *testing.T) {
	t.Parallel()

	v, path := createUnlocked(t)

	saved, err := v.UpsertEntry(newEntry("GitHub:octocat"))
	require.NoError(t, err)
	assert.True(t, saved.HasID())
	assert.Equal(t, "94287082", saved.Code)
	require.NoError(t, v.Save(context.Background()))

	locked, err := vault.Load(path, testOpts()...)
	require.NoError(t, err)
	reloaded, err := locked.Decrypt(context.Background(), []byte("correct horse"))
	require.NoError(t, err)

	list := reloaded.List()
	require.Len(t, list, 1)
	assert.Equal(t, saved.ID, list[0].ID)
	assert.Equal(t, "GitHub:octocat", list[0].Name)
	assert.Empty(t, list[0].Code, "codes are never persisted")
}

func TestMutationsRequireUnlock(t *testing.T) {
	t.Parallel()

	v, path := createUnlocked(t)
	locked, err := vault.Load(path, testOpts()...)
	require.NoError(t, err)

	assert.ErrorIs(t, locked.Save(context.Background()), errs.ErrLocked)
	_, err = locked.UpsertEntry(newEntry("x"))
	assert.ErrorIs(t, err, errs.ErrLocked)
	_, err = locked.UpdateAllTOTP(context.Background(), 30)
	assert.ErrorIs(t, err, errs.ErrLocked)
	assert.Nil(t, locked.List())

	v.Lock()
	assert.True(t, v.IsLocked())
	assert.ErrorIs(t, v.Save(context.Background()), errs.ErrLocked)
}

func TestDeleteEntry(t *testing.T) {
	t.Parallel()

	v, _ := createUnlocked(t)
	e, err := v.UpsertEntry(newEntry("a"))
	require.NoError(t, err)

	require.NoError(t, v.DeleteEntry(e.ID))
	assert.Empty(t, v.Entries())
	assert.ErrorIs(t, v.DeleteEntry(e.ID), errs.ErrNotFound)
}

func TestUpsertRejectsInvalidEntry(t *testing.T) {
	t.Parallel()

	v, _ := createUnlocked(t)
	bad := newEntry("a")
	bad.Config.Step = 301
	_, err := v.UpsertEntry(bad)
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Empty(t, v.List())
}

func TestLastSaveWins(t *testing.T) {
	t.Parallel()

	first, path := createUnlocked(t)
	second := first.Clone()

	_, err := first.UpsertEntry(newEntry("first"))
	require.NoError(t, err)
	_, err = second.UpsertEntry(newEntry("second"))
	require.NoError(t, err)

	require.NoError(t, first.Save(context.Background()))
	require.NoError(t, second.Save(context.Background()))

	locked, err := vault.Load(path, testOpts()...)
	require.NoError(t, err)
	got, err := locked.Decrypt(context.Background(), []byte("correct horse"))
	require.NoError(t, err)

	list := got.List()
	require.Len(t, list, 1)
	assert.Equal(t, "second", list[0].Name)
}

func TestUpdateAllTOTPIsIdempotentWithinWindow(t *testing.T) {
	t.Parallel()

	v, _ := createUnlocked(t)
	for _, name := range []string{"a", "b", "c"} {
		_, err := v.UpsertEntry(newEntry(name))
		require.NoError(t, err)
	}

	ctx := context.Background()
	once, err := v.UpdateAllTOTP(ctx, 30)
	require.NoError(t, err)
	twice, err := v.UpdateAllTOTP(ctx, 30)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	for _, e := range once {
		assert.Equal(t, "94287082", e.Code)
	}

	require.NoError(t, v.SubstituteEntries(once))
	assert.Len(t, v.List(), 3)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := vault.Load(filepath.Join(t.TempDir(), "missing.otpv"))
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.False(t, vault.Exists(filepath.Join(t.TempDir(), "missing.otpv")))
}

func TestDecryptCorruptData(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(raw []byte) []byte
		wantErr error
	}{
		{"garbage", func([]byte) []byte { return []byte("definitely not a vault") }, errs.ErrCorrupt},
		{"truncated header", func(raw []byte) []byte { return raw[:10] }, errs.ErrCorrupt},
		{"bad version", func(raw []byte) []byte { raw[4] = 0x7f; return raw }, errs.ErrCorrupt},
		{"tampered ciphertext", func(raw []byte) []byte { raw[len(raw)-1] ^= 0xff; return raw }, errs.ErrAuthentication},
		{"unknown kdf", func(raw []byte) []byte { raw[7] = 0x09; return raw }, errs.ErrCorrupt},
		{"huge argon2 time", func(raw []byte) []byte { binary.BigEndian.PutUint32(raw[8:12], 0xFFFFFFFF); return raw }, errs.ErrCorrupt},
		{"huge argon2 memory", func(raw []byte) []byte { binary.BigEndian.PutUint32(raw[12:16], 0xFFFFFFF0); return raw }, errs.ErrCorrupt},
		{"zero argon2 threads", func(raw []byte) []byte { raw[16] = 0; return raw }, errs.ErrCorrupt},
		{"scrypt n not power of two", func(raw []byte) []byte {
			raw[7] = byte(vault.KDFScrypt)
			binary.BigEndian.PutUint32(raw[12:16], 3)
			return raw
		}, errs.ErrCorrupt},
		{"huge scrypt n", func(raw []byte) []byte {
			raw[7] = byte(vault.KDFScrypt)
			binary.BigEndian.PutUint32(raw[12:16], 1<<31)
			return raw
		}, errs.ErrCorrupt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, path := createUnlocked(t)
			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(path, tt.mutate(raw), 0o600))

			locked, err := vault.Load(path, testOpts()...)
			require.NoError(t, err)
			_, err = locked.Decrypt(context.Background(), []byte("correct horse"))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestScryptWithXChaCha(t *testing.T) {
	t.Parallel()

	scrypt := vault.KDFParams{Algorithm: vault.KDFScrypt, Time: 1, Memory: 16, Threads: 1}
	v, path := createUnlocked(t, vault.WithKDF(scrypt), vault.WithCipher(vault.CipherXChaCha20Poly1305))

	_, err := v.UpsertEntry(newEntry("x"))
	require.NoError(t, err)
	require.NoError(t, v.Save(context.Background()))

	locked, err := vault.Load(path, testOpts()...)
	require.NoError(t, err)
	got, err := locked.Decrypt(context.Background(), []byte("correct horse"))
	require.NoError(t, err)
	assert.Len(t, got.List(), 1)
}

func TestChangePassword(t *testing.T) {
	t.Parallel()

	v, path := createUnlocked(t)
	_, err := v.UpsertEntry(newEntry("x"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, v.ChangePassword(ctx, []byte("new secret")))

	locked, err := vault.Load(path, testOpts()...)
	require.NoError(t, err)

	_, err = locked.Decrypt(ctx, []byte("correct horse"))
	assert.ErrorIs(t, err, errs.ErrAuthentication)

	got, err := locked.Decrypt(ctx, []byte("new secret"))
	require.NoError(t, err)
	assert.Len(t, got.List(), 1)

	require.NoError(t, v.Save(ctx))
	_, err = locked.Decrypt(ctx, []byte("new secret"))
	assert.NoError(t, err)
}

func TestKDFParamsCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		params vault.KDFParams
		ok     bool
	}{
		{"argon2 default", vault.DefaultKDFParams(), true},
		{"scrypt default", vault.DefaultScryptParams(), true},
		{"argon2 time cap", vault.KDFParams{Algorithm: vault.KDFArgon2id, Time: vault.MaxArgon2Time + 1, Memory: 64, Threads: 1}, false},
		{"argon2 memory cap", vault.KDFParams{Algorithm: vault.KDFArgon2id, Time: 1, Memory: vault.MaxKDFMemoryKiB + 1, Threads: 1}, false},
		{"argon2 threads cap", vault.KDFParams{Algorithm: vault.KDFArgon2id, Time: 1, Memory: 64, Threads: vault.MaxArgon2Threads + 1}, false},
		{"scrypt n cap", vault.KDFParams{Algorithm: vault.KDFScrypt, Time: 1, Memory: vault.MaxScryptN * 2, Threads: 1}, false},
		{"scrypt n odd", vault.KDFParams{Algorithm: vault.KDFScrypt, Time: 1, Memory: 1000, Threads: 1}, false},
		{"scrypt memory cap", vault.KDFParams{Algorithm: vault.KDFScrypt, Time: 255, Memory: vault.MaxScryptN, Threads: 1}, false},
		{"scrypt zero p", vault.KDFParams{Algorithm: vault.KDFScrypt, Time: 8, Memory: 16, Threads: 0}, false},
		{"unknown", vault.KDFParams{Algorithm: 9, Time: 1, Memory: 64, Threads: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.params.Check()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestCreateRejectsExpensiveKDF(t *testing.T) {
	t.Parallel()

	params := vault.KDFParams{Algorithm: vault.KDFArgon2id, Time: 1000, Memory: 64, Threads: 1}
	path := filepath.Join(t.TempDir(), "vault.otpv")
	_, err := vault.Create(context.Background(), path, []byte("pw"), testOpts(vault.WithKDF(params))...)
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.False(t, vault.Exists(path))
}

func TestParseKDFAndCipher(t *testing.T) {
	t.Parallel()

	k, ok := vault.ParseKDF("Argon2id")
	assert.True(t, ok)
	assert.Equal(t, vault.KDFArgon2id, k)

	_, ok = vault.ParseKDF("bcrypt")
	assert.False(t, ok)

	c, ok := vault.ParseCipher("xchacha20-poly1305")
	assert.True(t, ok)
	assert.Equal(t, "xchacha20-poly1305", c.String())
}
