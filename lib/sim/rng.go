package sim

import (
	"math"
)

var (
	xorshiftMaxUint = float64(math.MaxUint32)
)

// RNG is an xorshift random number generator. It is the same as gotetra's
// xorshiftGenerator. It is not thread safe, so the initial conditions are
// always generated by a single goroutine on the coordinator.
type RNG struct {
	w, x, y, z uint32
}

// NewRNG initializes an RNG with a given seed.
func NewRNG(seed uint64) *RNG {
	return &RNG{uint32(seed), 123456789, 362436069, 521288629}
}

// Uniform generates a single random number in the range [0, 1)
func (gen *RNG) Uniform() float64 {
	for {
		t := gen.x ^ (gen.x << 11)
		gen.x, gen.y, gen.z = gen.y, gen.z, gen.w
		gen.w = gen.w ^ (gen.w >> 19) ^ (t ^ (t >> 8))
		res := float64(math.MaxUint32-gen.w) / xorshiftMaxUint
		if res != 1.0 {
			return res
		}
	}
}

// Range generates a single random number in the range [lo, hi).
func (gen *RNG) Range(lo, hi float64) float64 {
	return lo + (hi-lo)*gen.Uniform()
}

// Vec generates a vector whose components are each in [-amp, amp).
func (gen *RNG) Vec(amp float64) [3]float64 {
	return [3]float64{
		gen.Range(-amp, amp), gen.Range(-amp, amp), gen.Range(-amp, amp),
	}
}
