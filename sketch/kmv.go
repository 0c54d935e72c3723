package sketch

import (
	"encoding/binary"
	"sort"
)

// KMV is a bottom-k distinct-count sketch: it retains the k smallest
// 64-bit hashes seen. While fewer than k distinct items have arrived
// the sketch is exact; beyond that the cardinality estimator is
// (k-1)/t_k * 2^64 where t_k is the k-th smallest retained hash.
type KMV struct {
	k     int
	items []uint64 // sorted ascending, distinct, len <= k
}

// NewKMV constructs an empty KMV sketch retaining at most k hashes.
func NewKMV(k int) *KMV {
	if k <= 0 {
		k = 1
	}
	return &KMV{k: k}
}

func (s *KMV) Impl() Impl { return ImplKMV }

// Add inserts a hash. Re-inserting an already-retained hash, or one
// larger than the current k-th smallest once the sketch is full, is a
// no-op: this is what makes Add idempotent and the cardinality
// estimate monotone non-decreasing.
func (s *KMV) Add(h uint64) {
	idx := sort.Search(len(s.items), func(i int) bool { return s.items[i] >= h })
	if idx < len(s.items) && s.items[idx] == h {
		return
	}
	if len(s.items) < s.k {
		s.items = append(s.items, 0)
		copy(s.items[idx+1:], s.items[idx:len(s.items)-1])
		s.items[idx] = h
		return
	}
	if h >= s.items[len(s.items)-1] {
		return
	}
	s.items = append(s.items, 0)
	copy(s.items[idx+1:], s.items[idx:len(s.items)-1])
	s.items[idx] = h
	s.items = s.items[:s.k]
}

// Cardinality implements the k-minimum-values cardinality estimator.
func (s *KMV) Cardinality() float64 {
	if len(s.items) < s.k {
		return float64(len(s.items))
	}
	tk := s.items[s.k-1]
	if tk == 0 {
		return float64(len(s.items))
	}
	const two64 = 1.8446744073709552e19 // 2^64
	return float64(s.k-1) * two64 / float64(tk)
}

// Union merges the smallest k distinct hashes across both sketches.
func (s *KMV) Union(other Sketch) Sketch {
	o, ok := other.(*KMV)
	if !ok {
		return s.Clone()
	}
	merged := make([]uint64, 0, s.k)
	i, j := 0, 0
	for len(merged) < s.k && (i < len(s.items) || j < len(o.items)) {
		switch {
		case j >= len(o.items) || (i < len(s.items) && s.items[i] < o.items[j]):
			merged = append(merged, s.items[i])
			i++
		case i >= len(s.items) || o.items[j] < s.items[i]:
			merged = append(merged, o.items[j])
			j++
		default: // equal: take one, advance both
			merged = append(merged, s.items[i])
			i++
			j++
		}
	}
	return &KMV{k: s.k, items: merged}
}

// Diff filters the currently retained hashes against removed. This
// does not replenish from beyond the retained set, so heavy removal
// can leave the estimate biased low, accepted and surfaced by
// callers via metadata.
func (s *KMV) Diff(removed Remover) Sketch {
	kept := make([]uint64, 0, len(s.items))
	for _, h := range s.items {
		if !removed.Contains(h) {
			kept = append(kept, h)
		}
	}
	return &KMV{k: s.k, items: kept}
}

func (s *KMV) Clone() Sketch {
	cp := make([]uint64, len(s.items))
	copy(cp, s.items)
	return &KMV{k: s.k, items: cp}
}

// Serialize encodes k, the item count, then each retained hash as
// big-endian uint64.
func (s *KMV) Serialize() []byte {
	buf := make([]byte, 8+8*len(s.items))
	binary.BigEndian.PutUint32(buf[0:4], uint32(s.k))
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(s.items)))
	for i, h := range s.items {
		binary.BigEndian.PutUint64(buf[8+8*i:16+8*i], h)
	}
	return buf
}

// DeserializeKMV reconstructs a KMV sketch from Serialize's output.
func DeserializeKMV(blob []byte) (Sketch, error) {
	if len(blob) < 8 {
		return nil, errShortBlob
	}
	k := int(binary.BigEndian.Uint32(blob[0:4]))
	n := int(binary.BigEndian.Uint32(blob[4:8]))
	if len(blob) < 8+8*n {
		return nil, errShortBlob
	}
	items := make([]uint64, n)
	for i := 0; i < n; i++ {
		items[i] = binary.BigEndian.Uint64(blob[8+8*i : 16+8*i])
	}
	return &KMV{k: k, items: items}, nil
}
