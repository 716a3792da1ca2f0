// Package storage keeps tracks, sub-fingerprints and their hash bins, and
// answers bucket-key lookups for the query engine.
package storage

import (
	"errors"
	"fmt"

	"github.com/himanishpuri/soundmatch/pkg/models"
)

var (
	ErrTrackNotFound    = errors.New("track not found")
	ErrInvalidReference = errors.New("invalid reference")
	ErrClosed           = errors.New("storage is closed")
)

// minVotes is the number of shared buckets a stored sub-fingerprint needs to
// be returned by a lookup. At least one bucket must always be shared.
func minVotes(cfg models.QueryConfiguration) int {
	if cfg.ThresholdVotes < 1 {
		return 1
	}
	return cfg.ThresholdVotes
}

func invalidReference(ref models.Reference) error {
	return fmt.Errorf("%w: %v (%T)", ErrInvalidReference, ref, ref)
}
