package fingerprint

import (
	"context"
	"fmt"
	"runtime"

	"github.com/himanishpuri/soundmatch/pkg/models"
	"golang.org/x/sync/errgroup"
)

// hashBatchSize is the number of fingerprints hashed per goroutine.
const hashBatchSize = 256

// HashAll hashes every fingerprint and returns the results in input order.
// Batches are hashed concurrently; the context is checked between batches.
// A vector of the wrong length is reported as an error wrapping
// ErrLengthMismatch instead of a panic.
func (h *Hasher) HashAll(ctx context.Context, fingerprints []models.Fingerprint) ([]models.HashedFingerprint, error) {
	hashed := make([]models.HashedFingerprint, len(fingerprints))
	if len(fingerprints) == 0 {
		return hashed, nil
	}

	for i, fp := range fingerprints {
		if len(fp.Vector) != h.minHash.domain {
			return nil, fmt.Errorf("fingerprint %d: %w: vector has %d entries, expected %d",
				i, ErrLengthMismatch, len(fp.Vector), h.minHash.domain)
		}
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for start := 0; start < len(fingerprints); start += hashBatchSize {
		end := min(start+hashBatchSize, len(fingerprints))
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				fp := fingerprints[i]
				sub, bins := h.Hash(fp.Vector)
				hashed[i] = models.HashedFingerprint{
					SubFingerprint: sub,
					HashBins:       bins,
					StartsAt:       fp.StartsAt,
					SequenceNumber: fp.SequenceNumber,
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("hashing fingerprints: %w", err)
	}
	return hashed, nil
}
