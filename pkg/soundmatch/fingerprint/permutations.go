package fingerprint

import (
	"math/rand/v2"
)

// Permutations supplies the index subsets the min-hasher scans. Each inner
// slice holds distinct indices into the fingerprint vector, in scan order.
type Permutations interface {
	Permutations() [][]int
}

// SeededPermutations draws its index subsets from a PCG source seeded with a
// fixed value, so two instances built with the same arguments are identical.
type SeededPermutations struct {
	perms [][]int
}

// NewSeededPermutations builds count subsets of length distinct indices taken
// from [0, domain).
func NewSeededPermutations(count, length, domain int, seed uint64) *SeededPermutations {
	if length > domain {
		length = domain
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	perms := make([][]int, count)
	for i := range perms {
		// Partial Fisher-Yates: only the first length positions are needed.
		pool := make([]int, domain)
		for j := range pool {
			pool[j] = j
		}
		for j := 0; j < length; j++ {
			k := j + rng.IntN(domain-j)
			pool[j], pool[k] = pool[k], pool[j]
		}
		perms[i] = pool[:length:length]
	}
	return &SeededPermutations{perms: perms}
}

func (p *SeededPermutations) Permutations() [][]int {
	return p.perms
}
