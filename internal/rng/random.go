// Package rng provides the seeded linear congruential generator used by
// world generation. The constants and 32-bit wraparound make every draw
// sequence reproducible for a given seed.
package rng

const (
	multiplier = 1664525
	increment  = 1013904223
	modulus    = 1 << 32
)

// Random is a deterministic float stream. It is not safe for concurrent
// use.
type Random struct {
	state uint32
}

// New returns a generator whose state is the seed's reduced state.
func New(seed Seed) *Random {
	return &Random{state: seed.State()}
}

// State returns the current LCG state.
func (r *Random) State() uint32 {
	return r.state
}

// Next advances the state and returns a float in [0, 1).
func (r *Random) Next() float64 {
	r.state = multiplier*r.state + increment
	return float64(r.state) / modulus
}

// Range returns a float in [min, max) when min < max.
func (r *Random) Range(min, max float64) float64 {
	return min + r.Next()*(max-min)
}

// Chance returns true with probability p.
func (r *Random) Chance(p float64) bool {
	return r.Next() < p
}
