package fingerprint

import (
	"errors"
	"fmt"
)

// ErrLengthMismatch is raised (as a panic value) when a vector or signature
// does not have the length the hasher was configured for.
var ErrLengthMismatch = errors.New("fingerprint length mismatch")

// noMinimum is the signature byte used when a permutation finds no set bit.
const noMinimum = 255

// MinHasher reduces a boolean fingerprint to one byte per permutation: the
// position, within the permutation, of the first index set in the vector.
type MinHasher struct {
	perms  [][]int
	domain int
}

// NewMinHasher returns a MinHasher over vectors of length domain.
func NewMinHasher(perms Permutations, domain int) *MinHasher {
	return &MinHasher{perms: perms.Permutations(), domain: domain}
}

// SignatureLength is the number of bytes Hash returns.
func (m *MinHasher) SignatureLength() int {
	return len(m.perms)
}

// Hash computes the min-hash signature of vector. It panics if the vector
// length does not match the configured domain.
func (m *MinHasher) Hash(vector []bool) []byte {
	if len(vector) != m.domain {
		panic(fmt.Errorf("%w: vector has %d entries, expected %d", ErrLengthMismatch, len(vector), m.domain))
	}

	signature := make([]byte, len(m.perms))
	for i, perm := range m.perms {
		signature[i] = noMinimum
		for pos, idx := range perm {
			if pos >= noMinimum {
				break
			}
			if vector[idx] {
				signature[i] = byte(pos)
				break
			}
		}
	}
	return signature
}
