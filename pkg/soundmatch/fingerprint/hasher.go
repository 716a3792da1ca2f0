package fingerprint

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/himanishpuri/soundmatch/pkg/models"
)

// maxPackedKeys is the widest key group that still fits an int64 when packed
// byte by byte.
const maxPackedKeys = 8

// ------------------------ Locality-sensitive bucketing ------------------------

// LSH splits a min-hash signature into bands and turns every band into a
// single bucket key.
type LSH struct{}

// Hash returns exactly tables bucket keys. Band t is made of the signature
// bytes [t*keysPerTable, (t+1)*keysPerTable). Bands of up to eight bytes are
// concatenated big-endian into the key; wider bands are folded with xxhash64.
func (LSH) Hash(signature []byte, tables, keysPerTable int) []int64 {
	if len(signature) < tables*keysPerTable {
		panic(fmt.Errorf("%w: signature has %d bytes, need %d", ErrLengthMismatch, len(signature), tables*keysPerTable))
	}

	keys := make([]int64, tables)
	for t := 0; t < tables; t++ {
		band := signature[t*keysPerTable : (t+1)*keysPerTable]
		if keysPerTable > maxPackedKeys {
			keys[t] = int64(xxhash.Sum64(band))
			continue
		}
		var key uint64
		for _, b := range band {
			key = key<<8 | uint64(b)
		}
		keys[t] = int64(key)
	}
	return keys
}

// ------------------------ Combined hashing ------------------------

// Hasher turns fingerprint vectors into sub-fingerprints and bucket keys.
type Hasher struct {
	minHash *MinHasher
	lsh     LSH
	tables  int
	keys    int
}

// NewHasher builds a Hasher from cfg, drawing the permutations from
// cfg.PermutationSeed.
func NewHasher(cfg models.FingerprintConfiguration) (*Hasher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	perms := NewSeededPermutations(cfg.NumberOfMinHashes(), cfg.PermutationLength, cfg.VectorLength, cfg.PermutationSeed)
	return NewHasherWithPermutations(perms, cfg), nil
}

// NewHasherWithPermutations lets callers supply their own permutation family.
func NewHasherWithPermutations(perms Permutations, cfg models.FingerprintConfiguration) *Hasher {
	return &Hasher{
		minHash: NewMinHasher(perms, cfg.VectorLength),
		tables:  cfg.NumberOfHashTables,
		keys:    cfg.NumberOfHashKeysPerTable,
	}
}

// Hash returns the sub-fingerprint of vector and its bucket keys.
func (h *Hasher) Hash(vector []bool) ([]byte, []int64) {
	return h.HashWith(vector, h.tables, h.keys)
}

// HashWith is Hash with explicit table parameters.
func (h *Hasher) HashWith(vector []bool, numberOfHashTables, numberOfHashKeysPerTable int) ([]byte, []int64) {
	subFingerprint := h.minHash.Hash(vector)
	return subFingerprint, h.lsh.Hash(subFingerprint, numberOfHashTables, numberOfHashKeysPerTable)
}

// HammingSimilarity counts how many key bytes agree between two bucket key
// arrays. Only the low keysPerTable bytes of each key are compared (all eight
// when the band was folded with xxhash).
func HammingSimilarity(a, b []int64, keysPerTable int) int {
	if len(a) != len(b) {
		panic(fmt.Errorf("%w: %d vs %d bucket keys", ErrLengthMismatch, len(a), len(b)))
	}
	if keysPerTable > maxPackedKeys {
		keysPerTable = maxPackedKeys
	}

	similarity := 0
	for i := range a {
		x, y := uint64(a[i]), uint64(b[i])
		for k := 0; k < keysPerTable; k++ {
			if byte(x>>(8*k)) == byte(y>>(8*k)) {
				similarity++
			}
		}
	}
	return similarity
}
