// Package kdbx stores entries as custom fields of KeePass (KDBX) records
// inside one fixed group. Every operation reopens the file, and every write
// rewrites it whole under an exclusive lock.
package kdbx

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/tobischo/gokeepasslib/v3"

	"github.com/fahmaliyi/otpvault/entry"
	"github.com/fahmaliyi/otpvault/errs"
	"github.com/fahmaliyi/otpvault/fsutil"
	"github.com/fahmaliyi/otpvault/otpuri"
	"github.com/fahmaliyi/otpvault/worker"
)

const (
	GroupName    = "Default Group"
	RootName     = "Root"
	DatabaseName = "otpvault"
	filePerm     = 0o600
)

type options struct {
	pool *worker.Pool
	log  *slog.Logger
}

type Option func(*options)

func WithPool(p *worker.Pool) Option { return func(o *options) { o.pool = p } }

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.log = l } }

func newOptions(opts []Option) options {
	var o options
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

// Database is an unlocked KDBX file.
type Database struct {
	path     string
	password string
	mu       sync.Mutex
	pool     *worker.Pool
	log      *slog.Logger
}

func Exists(path string) bool { return fsutil.Exists(path) }

// Create writes an empty database containing only the fixed group.
func Create(ctx context.Context, path, password string, opts ...Option) (*Database, error) {
	o := newOptions(opts)

	_, err := worker.Do(ctx, o.pool, func(context.Context) (struct{}, error) {
		def := gokeepasslib.NewGroup()
		def.Name = GroupName

		root := gokeepasslib.NewGroup()
		root.Name = RootName
		root.Groups = append(root.Groups, def)

		db := gokeepasslib.NewDatabase()
		db.Credentials = gokeepasslib.NewPasswordCredentials(password)
		db.Content.Meta.DatabaseName = DatabaseName
		db.Content.Root.Groups = []gokeepasslib.Group{root}

		return struct{}{}, write(path, db)
	})
	if err != nil {
		return nil, err
	}

	o.log.Info("kdbx database created", slog.String("path", path))
	return &Database{path: path, password: password, pool: o.pool, log: o.log}, nil
}

// Unlock opens path with password. A file that cannot be decoded reports
// IncorrectPassword; one without the fixed group is a structural error.
func Unlock(ctx context.Context, path, password string, opts ...Option) (*Database, error) {
	o := newOptions(opts)
	d := &Database{path: path, password: password, pool: o.pool, log: o.log}

	_, err := worker.Do(ctx, o.pool, func(context.Context) (struct{}, error) {
		db, err := d.read(errs.KindIncorrectPassword)
		if err != nil {
			return struct{}{}, err
		}
		_, err = defaultGroup(db)
		return struct{}{}, err
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Database) Path() string { return d.path }

func (d *Database) read(failKind errs.Kind) (*gokeepasslib.Database, error) {
	f, err := os.Open(d.path)
	if err != nil {
		if fsutil.IsNotExist(err) {
			return nil, errs.Wrap(errs.KindNotFound, "kdbx file not found", err)
		}
		return nil, errs.Wrap(errs.KindIO, "open kdbx file", err)
	}
	defer f.Close()

	db := gokeepasslib.NewDatabase()
	db.Credentials = gokeepasslib.NewPasswordCredentials(d.password)
	if err := gokeepasslib.NewDecoder(f).Decode(db); err != nil {
		if failKind == errs.KindIncorrectPassword {
			return nil, errs.Wrap(failKind, "incorrect password", err)
		}
		return nil, errs.Wrap(failKind, "decode kdbx file", err)
	}
	if err := db.UnlockProtectedEntries(); err != nil {
		return nil, errs.Wrap(errs.KindCorrupt, "unlock protected fields", err)
	}
	return db, nil
}

func write(path string, db *gokeepasslib.Database) error {
	if err := db.LockProtectedEntries(); err != nil {
		return errs.Wrap(errs.KindInternal, "lock protected fields", err)
	}

	var buf bytes.Buffer
	if err := gokeepasslib.NewEncoder(&buf).Encode(db); err != nil {
		return errs.Wrap(errs.KindInternal, "encode kdbx file", err)
	}
	if err := fsutil.WriteFile(path, buf.Bytes(), filePerm); err != nil {
		return errs.Wrap(errs.KindIO, "write kdbx file", err)
	}
	return nil
}

// defaultGroup finds the fixed group at the top level or one level below it.
func defaultGroup(db *gokeepasslib.Database) (*gokeepasslib.Group, error) {
	if db.Content != nil && db.Content.Root != nil {
		groups := db.Content.Root.Groups
		for i := range groups {
			if groups[i].Name == GroupName {
				return &groups[i], nil
			}
			for j := range groups[i].Groups {
				if groups[i].Groups[j].Name == GroupName {
					return &groups[i].Groups[j], nil
				}
			}
		}
	}
	return nil, errs.New(errs.KindStructural, GroupName+" not found")
}

// view runs fn on a freshly read database under the lock.
func (d *Database) view(ctx context.Context, fn func(g *gokeepasslib.Group) error) error {
	_, err := worker.Do(ctx, d.pool, func(context.Context) (struct{}, error) {
		d.mu.Lock()
		defer d.mu.Unlock()

		db, err := d.read(errs.KindCorrupt)
		if err != nil {
			return struct{}{}, err
		}
		g, err := defaultGroup(db)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, fn(g)
	})
	return err
}

// update is view followed by a full rewrite when fn succeeds.
func (d *Database) update(ctx context.Context, fn func(g *gokeepasslib.Group) error) error {
	_, err := worker.Do(ctx, d.pool, func(context.Context) (struct{}, error) {
		d.mu.Lock()
		defer d.mu.Unlock()

		db, err := d.read(errs.KindCorrupt)
		if err != nil {
			return struct{}{}, err
		}
		g, err := defaultGroup(db)
		if err != nil {
			return struct{}{}, err
		}
		if err := fn(g); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, write(d.path, db)
	})
	return err
}

// List returns the entries of the fixed group sorted by name. Records that
// cannot be mapped are logged and skipped.
func (d *Database) List(ctx context.Context) ([]entry.Entry, error) {
	var out []entry.Entry
	err := d.view(ctx, func(g *gokeepasslib.Group) error {
		out = make([]entry.Entry, 0, len(g.Entries))
		for _, ke := range g.Entries {
			e, err := FromKeePass(ke, d.log)
			if err != nil {
				d.log.Warn("skipping kdbx record",
					slog.String("uuid", uuid.UUID(ke.UUID).String()),
					slog.Any("error", err),
				)
				continue
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry.SortByName(out), nil
}

// Add validates e and appends it under a new ID.
func (d *Database) Add(ctx context.Context, e entry.Entry) (entry.Entry, error) {
	e.ID = uuid.New()
	if err := e.Validate(); err != nil {
		return entry.Entry{}, err
	}

	err := d.update(ctx, func(g *gokeepasslib.Group) error {
		g.Entries = append(g.Entries, ToKeePass(e))
		return nil
	})
	if err != nil {
		return entry.Entry{}, err
	}
	return e, nil
}

// Update replaces every mapped field of the record with e's ID.
func (d *Database) Update(ctx context.Context, e entry.Entry) error {
	if !e.HasID() {
		return errs.New(errs.KindValidation, "cannot update entry without id")
	}
	if err := e.Validate(); err != nil {
		return err
	}

	return d.update(ctx, func(g *gokeepasslib.Group) error {
		i := indexOf(g, e.ID)
		if i < 0 {
			return errs.New(errs.KindNotFound, "entry "+e.ID.String()+" not found")
		}
		g.Entries[i].Values = fields(e)
		return nil
	})
}

func (d *Database) Delete(ctx context.Context, id uuid.UUID) error {
	return d.update(ctx, func(g *gokeepasslib.Group) error {
		i := indexOf(g, id)
		if i < 0 {
			return errs.New(errs.KindNotFound, "entry "+id.String()+" not found")
		}
		g.Entries = slices.Delete(g.Entries, i, i+1)
		return nil
	})
}

func indexOf(g *gokeepasslib.Group, id uuid.UUID) int {
	return slices.IndexFunc(g.Entries, func(ke gokeepasslib.Entry) bool {
		return uuid.UUID(ke.UUID) == id
	})
}

// Import adds every valid URI in r in a single rewrite. Lines that do not
// parse or validate are logged and skipped. It returns how many were added.
func (d *Database) Import(ctx context.Context, r io.Reader) (int, error) {
	batch, err := otpuri.ParseBatch(r, d.log)
	if err != nil {
		return 0, err
	}
	return d.ImportEntries(ctx, batch.Entries)
}

// ImportEntries adds entries under fresh IDs in a single rewrite, skipping
// the ones that do not validate.
func (d *Database) ImportEntries(ctx context.Context, entries []entry.Entry) (int, error) {
	valid := make([]entry.Entry, 0, len(entries))
	for _, e := range entries {
		e.ID = uuid.New()
		if err := e.Validate(); err != nil {
			d.log.Warn("skipping imported entry", slog.String("name", e.Name), slog.Any("error", err))
			continue
		}
		valid = append(valid, e)
	}
	if len(valid) == 0 {
		return 0, nil
	}

	err := d.update(ctx, func(g *gokeepasslib.Group) error {
		for _, e := range valid {
			g.Entries = append(g.Entries, ToKeePass(e))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	d.log.Info("imported entries", slog.Int("count", len(valid)), slog.Int("invalid", len(entries)-len(valid)))
	return len(valid), nil
}

// Export writes every entry as one URI per line.
func (d *Database) Export(ctx context.Context, w io.Writer) error {
	entries, err := d.List(ctx)
	if err != nil {
		return err
	}
	return otpuri.WriteBatch(w, entries)
}
