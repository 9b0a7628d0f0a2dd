// Package backend puts the two storage engines behind one interface. A
// deployment picks exactly one Kind.
package backend

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/fahmaliyi/otpvault/entry"
	"github.com/fahmaliyi/otpvault/errs"
	"github.com/fahmaliyi/otpvault/kdbx"
	"github.com/fahmaliyi/otpvault/totp"
	"github.com/fahmaliyi/otpvault/vault"
	"github.com/fahmaliyi/otpvault/worker"
)

type Kind string

const (
	KindVault Kind = "vault"
	KindKDBX  Kind = "kdbx"
)

func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindVault:
		return KindVault, true
	case KindKDBX, "keepass":
		return KindKDBX, true
	}
	return "", false
}

// Backend is the capability set shared by both engines. Entries returned by
// List, Upsert and Refresh carry their current code.
type Backend interface {
	Kind() Kind
	Path() string
	List(ctx context.Context) ([]entry.Entry, error)
	Upsert(ctx context.Context, e entry.Entry) (entry.Entry, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Import(ctx context.Context, r io.Reader, f Format) (int, error)
	Export(ctx context.Context, w io.Writer, f Format) error
	Refresh(ctx context.Context) ([]entry.Entry, error)
	Close() error

	sealed()
}

type Options struct {
	Kind   Kind
	Path   string
	Pool   *worker.Pool
	KDF    vault.KDFParams
	Cipher vault.Cipher
	Clock  totp.Clock
	Logger *slog.Logger
	// RefreshStep is used for entries without a step of their own.
	RefreshStep uint64
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Pool == nil {
		o.Pool = worker.NewPool(worker.DefaultSize, o.Logger)
	}
	if o.Clock == nil {
		o.Clock = totp.SystemClock{}
	}
	if o.RefreshStep == 0 {
		o.RefreshStep = totp.DefaultStep
	}
	if o.KDF.Algorithm == 0 {
		o.KDF = vault.DefaultKDFParams()
	}
	if o.Cipher == 0 {
		o.Cipher = vault.CipherAES256GCM
	}
	return o
}

func (o Options) vaultOpts() []vault.Option {
	return []vault.Option{
		vault.WithPool(o.Pool),
		vault.WithKDF(o.KDF),
		vault.WithCipher(o.Cipher),
		vault.WithClock(o.Clock),
		vault.WithLogger(o.Logger),
	}
}

func (o Options) kdbxOpts() []kdbx.Option {
	return []kdbx.Option{kdbx.WithPool(o.Pool), kdbx.WithLogger(o.Logger)}
}

// Exists reports whether the store file for kind is present at path.
func Exists(kind Kind, path string) bool {
	switch kind {
	case KindKDBX:
		return kdbx.Exists(path)
	default:
		return vault.Exists(path)
	}
}

// Create writes a new empty store and returns it unlocked.
func Create(ctx context.Context, opts Options, password []byte) (Backend, error) {
	opts = opts.withDefaults()

	switch opts.Kind {
	case KindVault:
		locked, err := vault.Create(ctx, opts.Path, password, opts.vaultOpts()...)
		if err != nil {
			return nil, err
		}
		v, err := locked.Decrypt(ctx, password)
		if err != nil {
			return nil, err
		}
		return newVaultBackend(v, opts), nil
	case KindKDBX:
		db, err := kdbx.Create(ctx, opts.Path, string(password), opts.kdbxOpts()...)
		if err != nil {
			return nil, err
		}
		return newKDBXBackend(db, opts), nil
	default:
		return nil, errs.New(errs.KindValidation, "unknown backend "+string(opts.Kind))
	}
}

// Open unlocks an existing store.
func Open(ctx context.Context, opts Options, password []byte) (Backend, error) {
	opts = opts.withDefaults()

	switch opts.Kind {
	case KindVault:
		locked, err := vault.Load(opts.Path, opts.vaultOpts()...)
		if err != nil {
			return nil, err
		}
		v, err := locked.Decrypt(ctx, password)
		if err != nil {
			return nil, err
		}
		b := newVaultBackend(v, opts)
		if _, err := b.Refresh(ctx); err != nil {
			return nil, err
		}
		return b, nil
	case KindKDBX:
		db, err := kdbx.Unlock(ctx, opts.Path, string(password), opts.kdbxOpts()...)
		if err != nil {
			return nil, err
		}
		return newKDBXBackend(db, opts), nil
	default:
		return nil, errs.New(errs.KindValidation, "unknown backend "+string(opts.Kind))
	}
}
