package sketch

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExactIdempotentAdd(t *testing.T) {
	s := NewExact()
	for i := 0; i < 5; i++ {
		s.Add(42)
	}
	assert.Equal(t, float64(1), s.Cardinality())
}

func TestExactUnionCorrectness(t *testing.T) {
	a := NewExact()
	b := NewExact()
	for _, h := range []uint64{1, 2, 3} {
		a.Add(h)
	}
	for _, h := range []uint64{3, 4, 5} {
		b.Add(h)
	}
	u := a.Union(b)
	assert.Equal(t, float64(5), u.Cardinality())
}

func TestExactDiffMonotonicity(t *testing.T) {
	a := NewExact()
	for _, h := range []uint64{1, 2, 3, 4} {
		a.Add(h)
	}
	removed := NewExact()
	removed.Add(2)
	removed.Add(4)
	d := a.Diff(removed)
	assert.Equal(t, float64(2), d.Cardinality())
}

func TestExactCommutativity(t *testing.T) {
	order1 := []uint64{5, 2, 8, 1, 9}
	order2 := []uint64{9, 1, 8, 2, 5}

	a := NewExact()
	for _, h := range order1 {
		a.Add(h)
	}
	b := NewExact()
	for _, h := range order2 {
		b.Add(h)
	}
	assert.Equal(t, a.Cardinality(), b.Cardinality())
}

func TestKMVExactBelowK(t *testing.T) {
	s := NewKMV(100)
	for i := uint64(0); i < 10; i++ {
		s.Add(i * 7919)
	}
	assert.Equal(t, float64(10), s.Cardinality())
}

func TestKMVIdempotentAdd(t *testing.T) {
	s := NewKMV(8)
	for i := 0; i < 3; i++ {
		s.Add(1234)
	}
	assert.Equal(t, float64(1), s.Cardinality())
}

func TestKMVRelativeError(t *testing.T) {
	const k = 1024
	const n = 200000
	rng := rand.New(rand.NewSource(1))

	s := NewKMV(k)
	seen := make(map[uint64]struct{}, n)
	for len(seen) < n {
		h := rng.Uint64()
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		s.Add(h)
	}

	est := s.Cardinality()
	relErr := (est - float64(n)) / float64(n)
	if relErr < 0 {
		relErr = -relErr
	}
	// Target bound is relative error <= 1/sqrt(k) with probability >= 0.95;
	// give generous headroom for a single-trial unit test.
	bound := 1.0 / math.Sqrt(float64(k)) * 4
	assert.Less(t, relErr, bound, "KMV estimate %v too far from true %v", est, n)
}

func TestKMVUnionMergesSmallestK(t *testing.T) {
	a := NewKMV(4)
	for _, h := range []uint64{10, 20, 30, 40} {
		a.Add(h)
	}
	b := NewKMV(4)
	for _, h := range []uint64{5, 15, 25, 100} {
		b.Add(h)
	}
	u := a.Union(b).(*KMV)
	require.Len(t, u.items, 4)
	assert.Equal(t, []uint64{5, 10, 15, 20}, u.items)
}

func TestKMVDiffFiltersRetained(t *testing.T) {
	a := NewKMV(8)
	for _, h := range []uint64{1, 2, 3, 4, 5} {
		a.Add(h)
	}
	removed := NewExact()
	removed.Add(2)
	removed.Add(4)
	d := a.Diff(removed)
	assert.Equal(t, float64(3), d.Cardinality())
}

func TestKMVSerializeRoundTrip(t *testing.T) {
	a := NewKMV(16)
	for _, h := range []uint64{7, 3, 9, 1} {
		a.Add(h)
	}
	blob := a.Serialize()
	back, err := DeserializeKMV(blob)
	require.NoError(t, err)
	assert.Equal(t, a.Cardinality(), back.Cardinality())
}

func TestBloomNoFalseNegatives(t *testing.T) {
	b := NewBloom(1000, 0.01)
	inserted := make([]uint64, 0, 1000)
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 1000; i++ {
		h := rng.Uint64()
		b.Add(h)
		inserted = append(inserted, h)
	}
	for _, h := range inserted {
		assert.True(t, b.Contains(h))
	}
}

func TestBloomFalsePositiveRateBounded(t *testing.T) {
	const n = 5000
	b := NewBloom(n, 0.01)
	rng := rand.New(rand.NewSource(3))
	inserted := make(map[uint64]struct{}, n)
	for len(inserted) < n {
		h := rng.Uint64()
		inserted[h] = struct{}{}
		b.Add(h)
	}

	falsePositives := 0
	trials := 20000
	for i := 0; i < trials; i++ {
		h := rng.Uint64()
		if _, ok := inserted[h]; ok {
			continue
		}
		if b.Contains(h) {
			falsePositives++
		}
	}
	rate := float64(falsePositives) / float64(trials)
	assert.Less(t, rate, 0.03, "observed FP rate %v exceeds generous bound for target 0.01", rate)
}
