package fitsynth

import (
	"fmt"
	"math/rand"
)

// RNG is the single seeded randomness source for one generation pass.
// Each stage constructs exactly one RNG and threads it through every
// helper that needs randomness; nothing in this module reads the global
// rand state, so repeated invocations in one process cannot contaminate
// each other.
type RNG struct {
	r *rand.Rand
}

// NewRNG returns a generator seeded deterministically.
func NewRNG(seed int64) *RNG {
	return &RNG{r: rand.New(rand.NewSource(seed))}
}

// IntBetween returns a uniform integer in the half-open range [lo, hi).
func (g *RNG) IntBetween(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + g.r.Intn(hi-lo)
}

// Float64 returns a uniform draw from [0, 1).
func (g *RNG) Float64() float64 { return g.r.Float64() }

// Normal returns a draw from the normal distribution N(mean, stddev).
func (g *RNG) Normal(mean, stddev float64) float64 {
	return mean + stddev*g.r.NormFloat64()
}

// Pick returns one uniformly chosen element of items.
func (g *RNG) Pick(items []string) string {
	return items[g.r.Intn(len(items))]
}

// Sample returns k distinct elements of items drawn without replacement,
// in draw order. k must not exceed len(items); Config.Validate enforces
// the cardinality bounds that guarantee this for every call site.
func (g *RNG) Sample(items []string, k int) []string {
	idx := g.r.Perm(len(items))
	out := make([]string, 0, k)
	for _, i := range idx[:k] {
		out = append(out, items[i])
	}
	return out
}

// SampleInts returns k distinct integers from [0, n) in draw order.
func (g *RNG) SampleInts(n, k int) ([]int, error) {
	if k > n {
		return nil, fmt.Errorf("%w: sample size %d exceeds population %d", ErrInvalidConfig, k, n)
	}
	return g.r.Perm(n)[:k], nil
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampInt bounds v to [lo, hi].
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
