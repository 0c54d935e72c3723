package sketch

import (
	"encoding/binary"
	"errors"
)

var errShortBlob = errors.New("sketch: truncated serialized blob")

// Exact is a reference sketch backed by a real hash set. Memory is
// linear in cardinality; used for tests and regulated modes where an
// approximate count is unacceptable.
type Exact struct {
	set map[uint64]struct{}
}

// NewExact constructs an empty exact-set sketch.
func NewExact() *Exact {
	return &Exact{set: make(map[uint64]struct{})}
}

func (s *Exact) Impl() Impl { return ImplSet }

func (s *Exact) Add(h uint64) {
	s.set[h] = struct{}{}
}

func (s *Exact) Cardinality() float64 {
	return float64(len(s.set))
}

// Contains satisfies Remover, letting an Exact set stand in directly
// for the "removed" side of Diff when the removal set is small.
func (s *Exact) Contains(h uint64) bool {
	_, ok := s.set[h]
	return ok
}

func (s *Exact) Union(other Sketch) Sketch {
	o, ok := other.(*Exact)
	if !ok {
		return s.Clone()
	}
	merged := make(map[uint64]struct{}, len(s.set)+len(o.set))
	for h := range s.set {
		merged[h] = struct{}{}
	}
	for h := range o.set {
		merged[h] = struct{}{}
	}
	return &Exact{set: merged}
}

func (s *Exact) Diff(removed Remover) Sketch {
	kept := make(map[uint64]struct{}, len(s.set))
	for h := range s.set {
		if !removed.Contains(h) {
			kept[h] = struct{}{}
		}
	}
	return &Exact{set: kept}
}

func (s *Exact) Clone() Sketch {
	cp := make(map[uint64]struct{}, len(s.set))
	for h := range s.set {
		cp[h] = struct{}{}
	}
	return &Exact{set: cp}
}

func (s *Exact) Serialize() []byte {
	buf := make([]byte, 4+8*len(s.set))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(s.set)))
	i := 0
	for h := range s.set {
		binary.BigEndian.PutUint64(buf[4+8*i:12+8*i], h)
		i++
	}
	return buf
}

// DeserializeExact reconstructs an Exact sketch from Serialize's output.
func DeserializeExact(blob []byte) (Sketch, error) {
	if len(blob) < 4 {
		return nil, errShortBlob
	}
	n := int(binary.BigEndian.Uint32(blob[0:4]))
	if len(blob) < 4+8*n {
		return nil, errShortBlob
	}
	set := make(map[uint64]struct{}, n)
	for i := 0; i < n; i++ {
		set[binary.BigEndian.Uint64(blob[4+8*i:12+8*i])] = struct{}{}
	}
	return &Exact{set: set}, nil
}
