package backend

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/fahmaliyi/otpvault/entry"
	"github.com/fahmaliyi/otpvault/vault"
)

// VaultBackend serializes mutations on one unlocked vault. Each mutation is
// applied to a clone and saved; the clone replaces the current vault only
// once the save succeeded.
type VaultBackend struct {
	mu   sync.Mutex
	v    *vault.Vault
	opts Options
}

func newVaultBackend(v *vault.Vault, opts Options) *VaultBackend {
	return &VaultBackend{v: v, opts: opts}
}

func (b *VaultBackend) sealed() {}

func (b *VaultBackend) Kind() Kind { return KindVault }

func (b *VaultBackend) Path() string { return b.v.Path() }

func (b *VaultBackend) List(context.Context) ([]entry.Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.v.IsLocked() {
		return nil, vault.ErrLocked
	}
	return b.v.List(), nil
}

func (b *VaultBackend) Upsert(ctx context.Context, e entry.Entry) (entry.Entry, error) {
	var saved entry.Entry
	err := b.mutate(ctx, func(next *vault.Vault) error {
		var err error
		saved, err = next.UpsertEntry(e)
		return err
	})
	return saved, err
}

func (b *VaultBackend) Delete(ctx context.Context, id uuid.UUID) error {
	return b.mutate(ctx, func(next *vault.Vault) error {
		return next.DeleteEntry(id)
	})
}

// Import adds every valid entry and saves once. JSON backups keep their IDs,
// so restoring a backup over the same vault replaces instead of duplicating.
func (b *VaultBackend) Import(ctx context.Context, r io.Reader, f Format) (int, error) {
	entries, err := decodeEntries(r, f, b.opts.Logger)
	if err != nil {
		return 0, err
	}

	added := 0
	err = b.mutate(ctx, func(next *vault.Vault) error {
		for _, e := range entries {
			if f == FormatURI {
				e.ID = uuid.Nil
			}
			if _, err := next.UpsertEntry(e); err != nil {
				b.opts.Logger.Warn("skipping imported entry", slog.String("name", e.Name), slog.Any("error", err))
				continue
			}
			added++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	b.opts.Logger.Info("imported entries", slog.Int("count", added), slog.String("format", f.String()))
	return added, nil
}

func (b *VaultBackend) Export(ctx context.Context, w io.Writer, f Format) error {
	entries, err := b.List(ctx)
	if err != nil {
		return err
	}
	return encodeEntries(w, f, entries)
}

// Refresh recomputes every code off a snapshot and substitutes the result.
func (b *VaultBackend) Refresh(ctx context.Context) ([]entry.Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	refreshed, err := b.v.UpdateAllTOTP(ctx, b.opts.RefreshStep)
	if err != nil {
		return nil, err
	}
	if err := b.v.SubstituteEntries(refreshed); err != nil {
		return nil, err
	}
	return b.v.List(), nil
}

// ChangePassword re-keys the vault file.
func (b *VaultBackend) ChangePassword(ctx context.Context, password []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.v.ChangePassword(ctx, password)
}

func (b *VaultBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.v.Lock()
	return nil
}

func (b *VaultBackend) mutate(ctx context.Context, fn func(next *vault.Vault) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.v.IsLocked() {
		return vault.ErrLocked
	}

	next := b.v.Clone()
	if err := fn(next); err != nil {
		next.Lock()
		return err
	}
	if err := next.Save(ctx); err != nil {
		next.Lock()
		return err
	}

	b.v.Lock()
	b.v = next
	return nil
}
