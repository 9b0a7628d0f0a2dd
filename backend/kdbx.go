package backend

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/fahmaliyi/otpvault/entry"
	"github.com/fahmaliyi/otpvault/kdbx"
	"github.com/fahmaliyi/otpvault/worker"
)

// KDBXBackend adapts a kdbx.Database. The database does its own locking;
// codes are computed on every read.
type KDBXBackend struct {
	db   *kdbx.Database
	opts Options
}

func newKDBXBackend(db *kdbx.Database, opts Options) *KDBXBackend {
	return &KDBXBackend{db: db, opts: opts}
}

func (b *KDBXBackend) sealed() {}

func (b *KDBXBackend) Kind() Kind { return KindKDBX }

func (b *KDBXBackend) Path() string { return b.db.Path() }

func (b *KDBXBackend) List(ctx context.Context) ([]entry.Entry, error) {
	entries, err := b.db.List(ctx)
	if err != nil {
		return nil, err
	}
	return b.withCodes(ctx, entries)
}

func (b *KDBXBackend) Upsert(ctx context.Context, e entry.Entry) (entry.Entry, error) {
	if e.HasID() {
		if err := b.db.Update(ctx, e); err != nil {
			return entry.Entry{}, err
		}
	} else {
		added, err := b.db.Add(ctx, e)
		if err != nil {
			return entry.Entry{}, err
		}
		e = added
	}

	if refreshed, err := e.Refreshed(b.opts.Clock.Now()); err == nil {
		e = refreshed
	}
	return e, nil
}

func (b *KDBXBackend) Delete(ctx context.Context, id uuid.UUID) error {
	return b.db.Delete(ctx, id)
}

func (b *KDBXBackend) Import(ctx context.Context, r io.Reader, f Format) (int, error) {
	if f == FormatURI {
		return b.db.Import(ctx, r)
	}
	entries, err := decodeEntries(r, f, b.opts.Logger)
	if err != nil {
		return 0, err
	}
	return b.db.ImportEntries(ctx, entries)
}

func (b *KDBXBackend) Export(ctx context.Context, w io.Writer, f Format) error {
	if f == FormatURI {
		return b.db.Export(ctx, w)
	}
	entries, err := b.db.List(ctx)
	if err != nil {
		return err
	}
	return encodeEntries(w, f, entries)
}

func (b *KDBXBackend) Refresh(ctx context.Context) ([]entry.Entry, error) {
	return b.List(ctx)
}

func (b *KDBXBackend) Close() error { return nil }

func (b *KDBXBackend) withCodes(ctx context.Context, entries []entry.Entry) ([]entry.Entry, error) {
	now := b.opts.Clock.Now()
	step := b.opts.RefreshStep
	log := b.opts.Logger

	return worker.Do(ctx, b.opts.Pool, func(context.Context) ([]entry.Entry, error) {
		for i, e := range entries {
			gen := e
			if gen.Config.Step == 0 {
				gen.Config.Step = step
			}
			code, err := gen.Generate(now)
			if err != nil {
				log.Warn("cannot compute code", slog.String("id", e.ID.String()), slog.Any("error", err))
			}
			entries[i].Code = code
		}
		return entries, nil
	})
}
