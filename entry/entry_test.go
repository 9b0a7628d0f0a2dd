package entry_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fahmaliyi/otpvault/entry"
	"github.com/fahmaliyi/otpvault/errs"
	"github.com/fahmaliyi/otpvault/totp"
)

const testSecret = "JBSWY3DPEHPK3PXP"

func validEntry() entry.Entry {
	return entry.Entry{Name: "GitHub:octocat", Secret: testSecret, Config: entry.DefaultConfig()}
}

func TestEntryValidateBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(e *entry.Entry)
		wantErr bool
		field   string
	}{
		{"valid", func(e *entry.Entry) {}, false, ""},
		{"digits 6", func(e *entry.Entry) { e.Config.Digits = 6 }, false, ""},
		{"digits 8", func(e *entry.Entry) { e.Config.Digits = 8 }, false, ""},
		{"digits 7", func(e *entry.Entry) { e.Config.Digits = 7 }, true, "digits"},
		{"step 0", func(e *entry.Entry) { e.Config.Step = 0 }, true, "step"},
		{"step 300", func(e *entry.Entry) { e.Config.Step = 300 }, false, ""},
		{"step 301", func(e *entry.Entry) { e.Config.Step = 301 }, true, "step"},
		{"unknown algorithm", func(e *entry.Entry) { e.Config.Algorithm = "MD5" }, true, "algorithm"},
		{"blank name", func(e *entry.Entry) { e.Name = "   " }, true, "name"},
		{"secret too short", func(e *entry.Entry) { e.Secret = "JBSWY3DP" }, true, "secret"},
		{"secret not base32", func(e *entry.Entry) { e.Secret = "!!!!" }, true, "secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := validEntry()
			tt.mutate(&e)
			err := e.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, errs.ErrValidation)

			var ve *errs.Error
			require.True(t, errors.As(err, &ve))
			assert.Contains(t, ve.Fields(), tt.field)
		})
	}
}

func TestInputValidateColonRule(t *testing.T) {
	t.Parallel()

	in := entry.NewInput()
	in.Issuer = "GitHub"
	in.AccountName = "octo:cat"
	in.Secret = testSecret

	err := in.Validate()
	require.Error(t, err)
	var ve *errs.Error
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields(), "account_name")

	in.AccountName = "octocat"
	in.Issuer = "Git:Hub"
	assert.Error(t, in.Validate())

	in.Issuer = "GitHub"
	assert.NoError(t, in.Validate())
}

func TestInputToEntry(t *testing.T) {
	t.Parallel()

	in := entry.NewInput()
	in.Issuer = "GitHub"
	in.AccountName = "octocat"
	in.Secret = "jbsw y3dp ehpk 3pxp"
	in.Digits = 8

	e, err := in.ToEntry()
	require.NoError(t, err)
	assert.Equal(t, "GitHub:octocat", e.Name)
	assert.Equal(t, testSecret, e.Secret)
	assert.Equal(t, 8, e.Config.Digits)
	assert.Equal(t, uint64(30), e.Config.Step)
	assert.False(t, e.HasID())

	back := entry.InputFromEntry(e)
	assert.Equal(t, "GitHub", back.Issuer)
	assert.Equal(t, "octocat", back.AccountName)
}

func TestSplitJoinName(t *testing.T) {
	t.Parallel()

	issuer, account := entry.SplitName("Google: alice@example.com")
	assert.Equal(t, "Google", issuer)
	assert.Equal(t, "alice@example.com", account)

	issuer, account = entry.SplitName("Plain")
	assert.Empty(t, issuer)
	assert.Equal(t, "Plain", account)

	assert.Equal(t, "A:b", entry.JoinName("A", "b"))
	assert.Equal(t, "b", entry.JoinName("", "b"))
	assert.Equal(t, "A", entry.JoinName("A", ""))
}

func TestEntryRefreshed(t *testing.T) {
	t.Parallel()

	e := entry.Entry{
		Name:   "RFC",
		Secret: totp.EncodeSecret([]byte("12345678901234567890")),
		Config: entry.Config{Algorithm: totp.SHA1, Digits: 8, Step: 30},
	}

	got, err := e.Refreshed(time.Unix(59, 0))
	require.NoError(t, err)
	assert.Equal(t, "94287082", got.Code)
	assert.Empty(t, e.Code)
}

func TestStoreUpsertAssignsAndReplaces(t *testing.T) {
	t.Parallel()

	s := entry.NewStore()

	created, err := s.Upsert(validEntry())
	require.NoError(t, err)
	assert.True(t, created.HasID())
	assert.Equal(t, 1, s.Len())

	created.Name = "Renamed"
	updated, err := s.Upsert(created)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, 1, s.Len())

	got, ok := s.Get(created.ID)
	require.True(t, ok)
	assert.Equal(t, "Renamed", got.Name)

	bad := validEntry()
	bad.Config.Digits = 7
	_, err = s.Upsert(bad)
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, 1, s.Len())
}

func TestStoreDelete(t *testing.T) {
	t.Parallel()

	s := entry.NewStore()
	e, err := s.Upsert(validEntry())
	require.NoError(t, err)

	require.NoError(t, s.Delete(e.ID))
	assert.Equal(t, 0, s.Len())
	assert.ErrorIs(t, s.Delete(e.ID), errs.ErrNotFound)
	assert.ErrorIs(t, s.Delete(uuid.New()), errs.ErrNotFound)
}

func TestStoreListSortedCaseInsensitive(t *testing.T) {
	t.Parallel()

	s := entry.NewStore()
	for _, name := range []string{"zeta", "Alpha", "beta", "ALPHA2"} {
		e := validEntry()
		e.Name = name
		_, err := s.Upsert(e)
		require.NoError(t, err)
	}

	names := make([]string, 0, s.Len())
	for _, e := range s.List() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"Alpha", "ALPHA2", "beta", "zeta"}, names)
}

func TestStoreReplaceAndClone(t *testing.T) {
	t.Parallel()

	s := entry.NewStore()
	e, err := s.Upsert(validEntry())
	require.NoError(t, err)

	clone := s.Clone()
	require.NoError(t, clone.Delete(e.ID))
	assert.Equal(t, 1, s.Len())

	snap := s.Snapshot()
	refreshed := snap[e.ID]
	refreshed.Code = "123456"
	snap[e.ID] = refreshed

	s.Replace(snap)
	got, _ := s.Get(e.ID)
	assert.Equal(t, "123456", got.Code)
}
