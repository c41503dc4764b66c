// Package regset implements an immutable bitset over the 16 IC10
// general-purpose registers, used both for live-value tracking during
// symbolic evaluation and for computing callee-clobbered intersections
// at call sites.
package regset

import "math/bits"

const maxRegisters = 16

// Set is an immutable 16-bit register bitset. The zero value is the
// empty set.
type Set uint16

// Allocate returns a new set with the lowest unset bit below
// maxRegisters allocated, the allocated index, and ok=false if the set
// is already full.
func (s Set) Allocate() (out Set, index int, ok bool) {
	for i := 0; i < maxRegisters; i++ {
		if s&(1<<uint(i)) == 0 {
			return s | (1 << uint(i)), i, true
		}
	}
	return s, 0, false
}

// AllocateAt returns a new set with bit i allocated. Idempotent: if i is
// already allocated, the returned set is unchanged.
func (s Set) AllocateAt(i int) Set {
	mustBeInRange(i)
	return s | (1 << uint(i))
}

// Free returns a new set with bit i cleared. A no-op if i was unset.
func (s Set) Free(i int) Set {
	mustBeInRange(i)
	return s &^ (1 << uint(i))
}

// Has reports whether register i is allocated in s.
func (s Set) Has(i int) bool {
	mustBeInRange(i)
	return s&(1<<uint(i)) != 0
}

// Union returns the bitwise union of s and other.
func (s Set) Union(other Set) Set { return s | other }

// Intersect returns the bitwise intersection of s and other.
func (s Set) Intersect(other Set) Set { return s & other }

// Diff returns the set of bits in s but not in other.
func (s Set) Diff(other Set) Set { return s &^ other }

// Complement returns the bitwise complement of s, restricted to the 16
// addressable registers.
func (s Set) Complement() Set { return ^s & (1<<maxRegisters - 1) }

// NumAllocated returns the population count of s.
func (s Set) NumAllocated() int { return bits.OnesCount16(uint16(s)) }

// Indices returns the allocated register indices in ascending order.
func (s Set) Indices() []int {
	out := make([]int, 0, s.NumAllocated())
	for i := 0; i < maxRegisters; i++ {
		if s.Has(i) {
			out = append(out, i)
		}
	}
	return out
}

func mustBeInRange(i int) {
	if i < 0 || i >= maxRegisters {
		panic("regset: register index out of range")
	}
}
