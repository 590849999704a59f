// Package store holds the process-wide variable namespace: a thread-safe
// mapping from qualified variable names (source:stream[.instance].field)
// to their current string values. Decoders write batches concurrently
// from independent command pipelines; the evaluation pass reads one
// consistent snapshot per run. The only cross-pipeline consistency
// contract is per-batch atomicity: all entries of a batch become visible
// together or not at all.
package store

import (
	"sort"
	"strings"
	"sync"
)

// Entry is a single variable write.
type Entry struct {
	Name  string
	Value string
}

// Batch is a group of writes applied atomically. If ResetPrefix is
// non-empty, every variable whose name starts with the prefix is cleared
// before the entries are applied. Structured-protocol decoders use this
// so that streams which vanish from one refresh tick to the next (for
// example an unplugged network interface) do not leave stale values
// behind.
type Batch struct {
	ResetPrefix string
	Entries     []Entry
}

// Store is the variable store. The zero value is not usable; call New.
type Store struct {
	mu     sync.RWMutex
	vars   map[string]string
	notify chan struct{}
}

// New returns an empty store.
func New() *Store {
	return &Store{
		vars:   make(map[string]string),
		notify: make(chan struct{}, 1),
	}
}

// Set applies a single write and notifies watchers.
func (s *Store) Set(name, value string) {
	s.Apply(Batch{Entries: []Entry{{Name: name, Value: value}}})
}

// Get returns the current value of a variable.
func (s *Store) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

// Apply applies a batch atomically and notifies watchers. Within a
// batch, a later entry for the same name wins.
func (s *Store) Apply(b Batch) {
	s.apply(b, true)
}

// ApplySilent applies a batch atomically without waking watchers. The
// evaluation pass uses this to write derived variables back without
// re-triggering itself.
func (s *Store) ApplySilent(b Batch) {
	s.apply(b, false)
}

func (s *Store) apply(b Batch, wake bool) {
	s.mu.Lock()
	if b.ResetPrefix != "" {
		for name := range s.vars {
			if strings.HasPrefix(name, b.ResetPrefix) {
				delete(s.vars, name)
			}
		}
	}
	for _, e := range b.Entries {
		s.vars[e.Name] = e.Value
	}
	s.mu.Unlock()

	if wake {
		s.wake()
	}
}

// wake delivers a coalesced notification: if a signal is already
// pending, the new one folds into it.
func (s *Store) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Updates returns the change-notification channel. Notifications are
// unkeyed and coalesced: a burst of writes may surface as a single
// signal, and the signal does not say which variables changed. The
// receiver snapshots the store after draining and runs a full
// evaluation pass; the pass is idempotent over a snapshot, so spurious
// wakes are harmless.
func (s *Store) Updates() <-chan struct{} {
	return s.notify
}

// Snapshot returns an immutable copy of the full namespace.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vars := make(map[string]string, len(s.vars))
	for k, v := range s.vars {
		vars[k] = v
	}
	return Snapshot{vars: vars}
}

// Len returns the number of variables currently present.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vars)
}

// Snapshot is an immutable view of the store taken at a single point in
// time. It is safe for concurrent reads without locking.
type Snapshot struct {
	vars map[string]string
}

// Get returns the value of a variable in the snapshot.
func (s Snapshot) Get(name string) (string, bool) {
	v, ok := s.vars[name]
	return v, ok
}

// Names returns all variable names in the snapshot, sorted.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.vars))
	for name := range s.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns a copy of the snapshot contents as a plain map.
func (s Snapshot) All() map[string]string {
	out := make(map[string]string, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}

// Overlay returns a lookup function that consults the overlay map
// first and falls back to the snapshot. The standalone variable
// evaluator uses this so that declarations later in file order see the
// results of earlier ones in the same pass before they are written
// back.
func (s Snapshot) Overlay(overlay map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		if v, ok := overlay[name]; ok {
			return v, true
		}
		v, ok := s.vars[name]
		return v, ok
	}
}
