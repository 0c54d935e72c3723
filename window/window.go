// Package window implements the WindowStore: a day-keyed map of
// DaySketches with dirty tracking and rolling-window union, so MAU
// can be computed as the cardinality of the union of W consecutive
// day-sketches.
//
// The in-memory map is a mutex-guarded map with an LRU-style bound and
// rehydrate-on-miss, generalized from a namespace→[]CacheEntry shape
// to day→Sketch, with the addition of a dirty set for erasure replay.
package window

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/turnstile-dp/censusd/faults"
	"github.com/turnstile-dp/censusd/sketch"
)

const dayLayout = "2006-01-02"

// DayKey formats t as the canonical map key used throughout the store.
func DayKey(t time.Time) string { return t.UTC().Format(dayLayout) }

// Rebuilder reconstructs a day's sketch from the authoritative
// activity log, excluding users tombstoned for that day by a later
// day's deletion and users with a pending or completed erasure request
// for that day. Implemented
// by the ledger package; window only depends on this interface so
// there is no import cycle.
type Rebuilder interface {
	RebuildDay(ctx context.Context, day time.Time, impl sketch.Impl, k int) (sketch.Sketch, error)
}

type entry struct {
	day    string
	sketch sketch.Sketch
	elem   *list.Element
}

// Store is the day→sketch map this package maintains.
type Store struct {
	mu        sync.Mutex
	logger    zerolog.Logger
	impl      sketch.Impl
	k         int
	rebuilder Rebuilder

	entries map[string]*entry
	dirty   map[string]bool
	lru     *list.List // front = most recently used
	maxHot  int        // 0 = unbounded
}

// Config configures a new Store.
type Config struct {
	Impl      sketch.Impl
	K         int
	Rebuilder Rebuilder
	// MaxHot bounds how many day-sketches are kept resident; 0 disables
	// eviction. Evicted entries are transparently rehydrated from the
	// Rebuilder on next access.
	MaxHot int
}

// NewStore constructs an empty WindowStore.
func NewStore(logger zerolog.Logger, cfg Config) *Store {
	return &Store{
		logger:    logger.With().Str("component", "window").Logger(),
		impl:      cfg.Impl,
		k:         cfg.K,
		rebuilder: cfg.Rebuilder,
		entries:   make(map[string]*entry),
		dirty:     make(map[string]bool),
		lru:       list.New(),
		maxHot:    cfg.MaxHot,
	}
}

// Touch adds key to day's sketch, rehydrating the day from the ledger
// first if it is not resident. The sketch is created empty on first
// touch of a never-seen day.
func (s *Store) Touch(ctx context.Context, day time.Time, key uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.getOrLoadLocked(ctx, day)
	if err != nil {
		return err
	}
	e.sketch.Add(key)
	return nil
}

// MarkDirty flags day as needing a rebuild before its next use,
// called when an erasure (direct or tombstoned) touches that day.
func (s *Store) MarkDirty(day time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty[DayKey(day)] = true
}

// IsDirty reports whether day is currently flagged dirty.
func (s *Store) IsDirty(day time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty[DayKey(day)]
}

// Rebuild reconstructs day's sketch from the ledger if dirty, and
// clears the dirty flag on success. A no-op when day is clean.
func (s *Store) Rebuild(ctx context.Context, day time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuildLocked(ctx, day)
}

func (s *Store) rebuildLocked(ctx context.Context, day time.Time) error {
	key := DayKey(day)
	if !s.dirty[key] {
		return nil
	}
	fresh, err := s.rebuilder.RebuildDay(ctx, day, s.impl, s.k)
	if err != nil {
		return faults.New(faults.KindTransient, "rebuild day: "+err.Error(), "day", key)
	}
	s.putLocked(key, fresh)
	delete(s.dirty, key)
	return nil
}

// RollingUnion rebuilds any dirty day in [end-W+1, end], then returns
// a fresh (non-shared) sketch unioning that range. For W=1 this is a
// plain rebuild+fetch of a single day, the DAU case.
func (s *Store) RollingUnion(ctx context.Context, end time.Time, w int) (sketch.Sketch, error) {
	if w <= 0 {
		w = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	start := end.AddDate(0, 0, -(w - 1))
	var union sketch.Sketch
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if err := s.rebuildLocked(ctx, d); err != nil {
			return nil, err
		}
		e, err := s.getOrLoadLocked(ctx, d)
		if err != nil {
			return nil, err
		}
		if union == nil {
			union = e.sketch.Clone()
			continue
		}
		union = union.Union(e.sketch)
	}
	if union == nil {
		union = sketch.New(s.impl, s.k)
	}
	return union, nil
}

func (s *Store) getOrLoadLocked(ctx context.Context, day time.Time) (*entry, error) {
	key := DayKey(day)
	if e, ok := s.entries[key]; ok {
		s.touchLRULocked(e)
		return e, nil
	}
	fresh, err := s.rebuilder.RebuildDay(ctx, day, s.impl, s.k)
	if err != nil {
		return nil, faults.New(faults.KindTransient, "load day: "+err.Error(), "day", key)
	}
	return s.putLocked(key, fresh), nil
}

func (s *Store) putLocked(key string, sk sketch.Sketch) *entry {
	if existing, ok := s.entries[key]; ok {
		existing.sketch = sk
		s.touchLRULocked(existing)
		return existing
	}
	e := &entry{day: key, sketch: sk}
	e.elem = s.lru.PushFront(e)
	s.entries[key] = e
	s.evictIfNeededLocked()
	return e
}

func (s *Store) touchLRULocked(e *entry) {
	s.lru.MoveToFront(e.elem)
}

func (s *Store) evictIfNeededLocked() {
	if s.maxHot <= 0 {
		return
	}
	scanned := 0
	for len(s.entries) > s.maxHot && scanned < s.lru.Len() {
		back := s.lru.Back()
		if back == nil {
			return
		}
		e := back.Value.(*entry)
		// never evict a dirty day, it would silently drop pending
		// deletions from memory without a rebuild to reconcile them.
		// If every resident entry is dirty, the cap is temporarily
		// exceeded rather than dropped.
		if s.dirty[e.day] {
			s.lru.MoveToFront(back)
			scanned++
			continue
		}
		s.lru.Remove(back)
		delete(s.entries, e.day)
		scanned = 0
	}
}

// Cardinality returns day's current resident sketch cardinality
// without triggering a rebuild; used by tests and diagnostics.
func (s *Store) Cardinality(ctx context.Context, day time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.getOrLoadLocked(ctx, day)
	if err != nil {
		return 0, err
	}
	return e.sketch.Cardinality(), nil
}
