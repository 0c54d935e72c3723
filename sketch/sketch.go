// Package sketch implements the distinct-count sketch abstraction:
// add, union, diff, cardinality, serialize/deserialize, over two
// backends: KMV bottom-k (default) and an exact set (tests/regulated
// mode), plus a Bloom filter that can serve as the removed set
// passed to either backend's Diff.
//
// All backends are deterministic under the same insertion multiset:
// the estimate does not depend on insertion order.
package sketch

// Impl names a sketch backend, selected at config parse time.
// Hot-swapping mid-run is disallowed.
type Impl string

const (
	ImplKMV Impl = "kmv"
	ImplSet Impl = "set"
)

// Sketch is the capability set every backend implements.
type Sketch interface {
	// Add inserts a 64-bit uniform hash. Idempotent.
	Add(h uint64)
	// Cardinality returns the estimated distinct count.
	Cardinality() float64
	// Union returns a new sketch representing the union of s and other.
	// other must be the same concrete Impl.
	Union(other Sketch) Sketch
	// Diff returns a new sketch of the same Impl whose cardinality
	// estimates |s \ removed|.
	Diff(removed Remover) Sketch
	// Clone returns an independent deep copy.
	Clone() Sketch
	// Impl reports the backend name.
	Impl() Impl
	// Serialize encodes the sketch to a portable byte blob.
	Serialize() []byte
}

// Remover answers "is h removed?", satisfied by both an exact set of
// removed hashes and a Bloom filter approximation of one.
type Remover interface {
	Contains(h uint64) bool
}

// New constructs an empty sketch of the requested implementation.
// k is the KMV bottom-k size; ignored by the exact-set backend.
func New(impl Impl, k int) Sketch {
	switch impl {
	case ImplSet:
		return NewExact()
	default:
		return NewKMV(k)
	}
}

// Deserialize reconstructs a sketch from bytes produced by Serialize,
// given the backend it was encoded with.
func Deserialize(impl Impl, blob []byte) (Sketch, error) {
	switch impl {
	case ImplSet:
		return DeserializeExact(blob)
	default:
		return DeserializeKMV(blob)
	}
}
