// Package vault keeps the entry store encrypted at rest in a single file.
//
// A Vault is either Locked (only a path) or Unlocked (entries plus the derived
// key). Decrypt never mutates its receiver: it returns a new Unlocked value,
// and two values held by different callers may diverge. Every Save replaces
// the whole file, so the last save wins.
package vault

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/fahmaliyi/otpvault/entry"
	"github.com/fahmaliyi/otpvault/errs"
	"github.com/fahmaliyi/otpvault/fsutil"
	"github.com/fahmaliyi/otpvault/totp"
	"github.com/fahmaliyi/otpvault/worker"
)

const filePerm = 0o600

type options struct {
	pool   *worker.Pool
	kdf    KDFParams
	cipher Cipher
	clock  totp.Clock
	log    *slog.Logger
}

type Option func(*options)

// WithPool runs key derivation, crypto and file IO on p.
func WithPool(p *worker.Pool) Option { return func(o *options) { o.pool = p } }

// WithKDF sets the parameters used by Create and ChangePassword. The salt is
// always generated.
func WithKDF(p KDFParams) Option { return func(o *options) { o.kdf = p } }

// WithCipher sets the AEAD used when writing a new file.
func WithCipher(c Cipher) Option { return func(o *options) { o.cipher = c } }

func WithClock(c totp.Clock) Option { return func(o *options) { o.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.log = l } }

func newOptions(opts []Option) options {
	o := options{kdf: DefaultKDFParams(), cipher: CipherAES256GCM, clock: totp.SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if o.pool == nil {
		o.pool = worker.NewPool(worker.DefaultSize, o.log)
	}
	return o
}

type plaintextVault struct {
	Entries []entry.Entry `json:"entries"`
}

type Vault struct {
	path string
	opts options

	// Set only while unlocked.
	key    []byte
	kdf    KDFParams
	cipher Cipher
	store  *entry.Store
}

// Load returns a Locked handle for an existing vault file.
func Load(path string, opts ...Option) (*Vault, error) {
	info, err := os.Stat(path)
	if err != nil {
		if fsutil.IsNotExist(err) {
			return nil, errs.Wrap(errs.KindNotFound, "vault file not found", err)
		}
		return nil, errs.Wrap(errs.KindIO, "stat vault file", err)
	}
	if info.IsDir() {
		return nil, errs.New(errs.KindIO, "vault path is a directory")
	}
	return &Vault{path: path, opts: newOptions(opts)}, nil
}

// Exists reports whether a vault file is present at path.
func Exists(path string) bool { return fsutil.Exists(path) }

// Create writes a new empty vault to path, creating parent directories, and
// returns it Locked. An existing file is replaced.
func Create(ctx context.Context, path string, password []byte, opts ...Option) (*Vault, error) {
	o := newOptions(opts)
	v := &Vault{path: path, opts: o}

	_, err := worker.Do(ctx, o.pool, func(context.Context) (struct{}, error) {
		salt, err := randBytes(SaltLen)
		if err != nil {
			return struct{}{}, errs.Wrap(errs.KindInternal, "generate salt", err)
		}
		params := o.kdf.clone()
		params.Salt = salt
		if err := params.Check(); err != nil {
			return struct{}{}, errs.Wrap(errs.KindValidation, "kdf parameters", err)
		}

		key, err := deriveKey(password, params)
		if err != nil {
			return struct{}{}, errs.Wrap(errs.KindInternal, "derive key", err)
		}
		defer zero(key)

		return struct{}{}, writeFile(path, key, params, o.cipher, nil)
	})
	if err != nil {
		return nil, err
	}

	o.log.Info("vault created", slog.String("path", path), slog.String("kdf", o.kdf.Algorithm.String()))
	return v, nil
}

// Decrypt reads the file, derives the key from password and the stored salt,
// and returns a new Unlocked Vault. The receiver is left unchanged.
func (v *Vault) Decrypt(ctx context.Context, password []byte) (*Vault, error) {
	return worker.Do(ctx, v.opts.pool, func(context.Context) (*Vault, error) {
		raw, err := os.ReadFile(v.path)
		if err != nil {
			if fsutil.IsNotExist(err) {
				return nil, errs.Wrap(errs.KindNotFound, "vault file not found", err)
			}
			return nil, errs.Wrap(errs.KindIO, "read vault file", err)
		}

		header, ct, err := decodeHeader(raw)
		if err != nil {
			return nil, errs.Wrap(errs.KindCorrupt, "decode vault header", err)
		}

		params := header.params()
		key, err := deriveKey(password, params)
		if err != nil {
			return nil, errs.Wrap(errs.KindCorrupt, "derive key", err)
		}

		pt, err := open(header.Cipher, key, header.Nonce, ct)
		if err != nil {
			zero(key)
			return nil, ErrAuthFail
		}
		defer zero(pt)

		var data plaintextVault
		if err := json.Unmarshal(pt, &data); err != nil {
			zero(key)
			return nil, errs.Wrap(errs.KindCorrupt, "decode vault entries", err)
		}

		return &Vault{
			path:   v.path,
			opts:   v.opts,
			key:    key,
			kdf:    params,
			cipher: header.Cipher,
			store:  entry.NewStore(data.Entries...),
		}, nil
	})
}

// Save encrypts the current entries under a fresh nonce and replaces the file.
// The salt and KDF parameters read at Decrypt are reused.
func (v *Vault) Save(ctx context.Context) error {
	if v.IsLocked() {
		return ErrLocked
	}

	key := append([]byte(nil), v.key...)
	params := v.kdf.clone()
	c := v.cipher
	entries := v.store.List()

	_, err := worker.Do(ctx, v.opts.pool, func(context.Context) (struct{}, error) {
		defer zero(key)
		return struct{}{}, writeFile(v.path, key, params, c, entries)
	})
	if err != nil {
		return err
	}

	v.opts.log.Debug("vault saved", slog.String("path", v.path), slog.Int("entries", len(entries)))
	return nil
}

func writeFile(path string, key []byte, params KDFParams, c Cipher, entries []entry.Entry) error {
	if entries == nil {
		entries = []entry.Entry{}
	}
	pt, err := json.Marshal(plaintextVault{Entries: entries})
	if err != nil {
		return errs.Wrap(errs.KindInternal, "encode vault entries", err)
	}
	defer zero(pt)

	nonce, ct, err := seal(c, key, pt)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "encrypt vault", err)
	}

	hdr, err := encodeHeader(fileHeader{
		KDF:     params.Algorithm,
		Time:    params.Time,
		Memory:  params.Memory,
		Threads: params.Threads,
		Cipher:  c,
		Salt:    params.Salt,
		Nonce:   nonce,
	})
	if err != nil {
		return errs.Wrap(errs.KindInternal, "encode vault header", err)
	}

	if err := fsutil.WriteFile(path, append(hdr, ct...), filePerm); err != nil {
		return errs.Wrap(errs.KindIO, "write vault file", err)
	}
	return nil
}

// ChangePassword re-keys the vault under a new salt and saves it. On failure
// the vault keeps its old key.
func (v *Vault) ChangePassword(ctx context.Context, password []byte) error {
	if v.IsLocked() {
		return ErrLocked
	}

	params := v.opts.kdf.clone()
	entries := v.store.List()
	c := v.cipher

	key, err := worker.Do(ctx, v.opts.pool, func(context.Context) ([]byte, error) {
		salt, err := randBytes(SaltLen)
		if err != nil {
			return nil, errs.Wrap(errs.KindInternal, "generate salt", err)
		}
		params.Salt = salt
		if err := params.Check(); err != nil {
			return nil, errs.Wrap(errs.KindValidation, "kdf parameters", err)
		}

		key, err := deriveKey(password, params)
		if err != nil {
			return nil, errs.Wrap(errs.KindInternal, "derive key", err)
		}
		if err := writeFile(v.path, key, params, c, entries); err != nil {
			zero(key)
			return nil, err
		}
		return key, nil
	})
	if err != nil {
		return err
	}

	zero(v.key)
	v.key = key
	v.kdf = params
	v.opts.log.Info("vault password changed", slog.String("path", v.path))
	return nil
}

func (v *Vault) Path() string { return v.path }

func (v *Vault) IsLocked() bool { return v.key == nil || v.store == nil }

// Lock wipes the key and drops the entries.
func (v *Vault) Lock() {
	zero(v.key)
	v.key = nil
	v.kdf = KDFParams{}
	v.store = nil
}

// Clone returns an independent copy, sharing only the worker pool.
func (v *Vault) Clone() *Vault {
	c := &Vault{path: v.path, opts: v.opts, cipher: v.cipher, kdf: v.kdf.clone()}
	if v.key != nil {
		c.key = append([]byte(nil), v.key...)
	}
	if v.store != nil {
		c.store = v.store.Clone()
	}
	return c
}

// UpsertEntry validates e, assigns an ID when absent and stores it with a
// freshly computed code. It does not save.
func (v *Vault) UpsertEntry(e entry.Entry) (entry.Entry, error) {
	if v.IsLocked() {
		return entry.Entry{}, ErrLocked
	}
	if refreshed, err := e.Refreshed(v.opts.clock.Now()); err == nil {
		e = refreshed
	}
	return v.store.Upsert(e)
}

// DeleteEntry removes an entry. It does not save.
func (v *Vault) DeleteEntry(id uuid.UUID) error {
	if v.IsLocked() {
		return ErrLocked
	}
	return v.store.Delete(id)
}

// SubstituteEntries replaces every entry with m in one step.
func (v *Vault) SubstituteEntries(m map[uuid.UUID]entry.Entry) error {
	if v.IsLocked() {
		return ErrLocked
	}
	v.store.Replace(m)
	return nil
}

// Entries returns a copy of the entry map, or nil when locked.
func (v *Vault) Entries() map[uuid.UUID]entry.Entry {
	if v.IsLocked() {
		return nil
	}
	return v.store.Snapshot()
}

// List returns the entries sorted by name, or nil when locked.
func (v *Vault) List() []entry.Entry {
	if v.IsLocked() {
		return nil
	}
	return v.store.List()
}

// UpdateAllTOTP computes the current code of every entry on the worker pool
// from a snapshot and returns the refreshed set; the vault itself is not
// touched. Entries without a step use step.
func (v *Vault) UpdateAllTOTP(ctx context.Context, step uint64) (map[uuid.UUID]entry.Entry, error) {
	if v.IsLocked() {
		return nil, ErrLocked
	}

	snapshot := v.store.Snapshot()
	now := v.opts.clock.Now()
	log := v.opts.log

	return worker.Do(ctx, v.opts.pool, func(context.Context) (map[uuid.UUID]entry.Entry, error) {
		for id, e := range snapshot {
			gen := e
			if gen.Config.Step == 0 {
				gen.Config.Step = step
			}
			code, err := gen.Generate(now)
			if err != nil {
				log.Warn("cannot compute code", slog.String("id", id.String()), slog.Any("error", err))
			}
			e.Code = code
			snapshot[id] = e
		}
		return snapshot, nil
	})
}
