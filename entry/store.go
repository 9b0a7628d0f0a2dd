package entry

import (
	"cmp"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/fahmaliyi/otpvault/errs"
)

// Store is the in-memory set of entries keyed by ID. It is a plain value
// owned by whoever holds it and is not safe for concurrent use; share copies
// made with Clone.
type Store struct {
	entries map[uuid.UUID]Entry
}

// NewStore builds a store from already persisted entries. Entries without an
// ID get a fresh one.
func NewStore(entries ...Entry) *Store {
	s := &Store{entries: make(map[uuid.UUID]Entry, len(entries))}
	for _, e := range entries {
		if !e.HasID() {
			e.ID = uuid.New()
		}
		s.entries[e.ID] = e
	}
	return s
}

// Upsert validates e and inserts it, assigning an ID when absent. An entry
// carrying an existing ID replaces that record.
func (s *Store) Upsert(e Entry) (Entry, error) {
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	if !e.HasID() {
		e.ID = uuid.New()
	}
	s.entries[e.ID] = e
	return e, nil
}

// Delete removes the entry with the given ID.
func (s *Store) Delete(id uuid.UUID) error {
	if _, ok := s.entries[id]; !ok {
		return errs.New(errs.KindNotFound, "entry "+id.String()+" not found")
	}
	delete(s.entries, id)
	return nil
}

func (s *Store) Get(id uuid.UUID) (Entry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

func (s *Store) Len() int { return len(s.entries) }

// List returns the entries sorted case-insensitively by name, ties broken by ID.
func (s *Store) List() []Entry {
	return SortByName(lo.Values(s.entries))
}

// Replace swaps the whole content for m in one step.
func (s *Store) Replace(m map[uuid.UUID]Entry) {
	s.entries = maps.Clone(m)
	if s.entries == nil {
		s.entries = make(map[uuid.UUID]Entry)
	}
}

// Snapshot returns a copy of the underlying map.
func (s *Store) Snapshot() map[uuid.UUID]Entry {
	return maps.Clone(s.entries)
}

func (s *Store) Clone() *Store {
	return &Store{entries: maps.Clone(s.entries)}
}

// SortByName sorts entries in place case-insensitively by name and returns them.
func SortByName(entries []Entry) []Entry {
	slices.SortFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return entries
}
