package window

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnstile-dp/censusd/sketch"
)

// fakeRebuilder replays an in-memory activity log the way the ledger
// would, filtering out any key tombstoned for that day.
type fakeRebuilder struct {
	// day -> keys added that day, in insertion order
	activity map[string][]uint64
	removed  map[string]map[uint64]bool
}

func newFakeRebuilder() *fakeRebuilder {
	return &fakeRebuilder{
		activity: make(map[string][]uint64),
		removed:  make(map[string]map[uint64]bool),
	}
}

func (f *fakeRebuilder) add(day time.Time, key uint64) {
	f.activity[DayKey(day)] = append(f.activity[DayKey(day)], key)
}

func (f *fakeRebuilder) tombstone(day time.Time, key uint64) {
	dk := DayKey(day)
	if f.removed[dk] == nil {
		f.removed[dk] = make(map[uint64]bool)
	}
	f.removed[dk][key] = true
}

func (f *fakeRebuilder) RebuildDay(_ context.Context, day time.Time, impl sketch.Impl, k int) (sketch.Sketch, error) {
	sk := sketch.New(impl, k)
	dk := DayKey(day)
	for _, key := range f.activity[dk] {
		if f.removed[dk][key] {
			continue
		}
		sk.Add(key)
	}
	return sk, nil
}

func day(s string) time.Time {
	t, _ := time.Parse(dayLayout, s)
	return t
}

func TestTouchAndCardinality(t *testing.T) {
	rb := newFakeRebuilder()
	s := NewStore(zerolog.Nop(), Config{Impl: sketch.ImplSet, Rebuilder: rb})
	ctx := context.Background()
	d := day("2025-10-01")

	require.NoError(t, s.Touch(ctx, d, 1))
	require.NoError(t, s.Touch(ctx, d, 2))
	require.NoError(t, s.Touch(ctx, d, 1)) // idempotent

	card, err := s.Cardinality(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, float64(2), card)
}

func TestRollingUnionAcrossDays(t *testing.T) {
	rb := newFakeRebuilder()
	s := NewStore(zerolog.Nop(), Config{Impl: sketch.ImplSet, Rebuilder: rb})
	ctx := context.Background()

	d1, d2, d3 := day("2025-10-01"), day("2025-10-02"), day("2025-10-03")
	require.NoError(t, s.Touch(ctx, d1, 1))
	require.NoError(t, s.Touch(ctx, d2, 1)) // same user, different day
	require.NoError(t, s.Touch(ctx, d3, 2))

	union, err := s.RollingUnion(ctx, d3, 3)
	require.NoError(t, err)
	assert.Equal(t, float64(2), union.Cardinality())
}

func TestDirtyDayRebuildAppliesTombstone(t *testing.T) {
	rb := newFakeRebuilder()
	s := NewStore(zerolog.Nop(), Config{Impl: sketch.ImplSet, Rebuilder: rb})
	ctx := context.Background()
	d := day("2025-10-01")

	rb.add(d, 1)
	rb.add(d, 2)
	require.NoError(t, s.Touch(ctx, d, 1))
	require.NoError(t, s.Touch(ctx, d, 2))

	card, err := s.Cardinality(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, float64(2), card)

	// simulate an erasure replay: tombstone user 1 on this day and
	// mark the day dirty, as the pipeline would.
	rb.tombstone(d, 1)
	s.MarkDirty(d)
	assert.True(t, s.IsDirty(d))

	require.NoError(t, s.Rebuild(ctx, d))
	assert.False(t, s.IsDirty(d))

	card, err = s.Cardinality(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, float64(1), card)
}

func TestRollingUnionReturnsFreshCopy(t *testing.T) {
	rb := newFakeRebuilder()
	s := NewStore(zerolog.Nop(), Config{Impl: sketch.ImplSet, Rebuilder: rb})
	ctx := context.Background()
	d := day("2025-10-01")
	require.NoError(t, s.Touch(ctx, d, 1))

	union, err := s.RollingUnion(ctx, d, 1)
	require.NoError(t, err)
	union.Add(999) // mutating the returned sketch must not affect the store

	card, err := s.Cardinality(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, float64(1), card)
}

func TestEvictionRehydratesFromLedger(t *testing.T) {
	rb := newFakeRebuilder()
	s := NewStore(zerolog.Nop(), Config{Impl: sketch.ImplSet, Rebuilder: rb, MaxHot: 1})
	ctx := context.Background()

	d1, d2 := day("2025-10-01"), day("2025-10-02")
	rb.add(d1, 1)
	rb.add(d2, 2)
	require.NoError(t, s.Touch(ctx, d1, 1))
	require.NoError(t, s.Touch(ctx, d2, 2)) // evicts d1 from the hot set

	card, err := s.Cardinality(ctx, d1) // rehydrated from rb.activity
	require.NoError(t, err)
	assert.Equal(t, float64(1), card)
}
