package query

import (
	"errors"

	"github.com/himanishpuri/soundmatch/pkg/soundmatch/fingerprint"
)

// Contract violations are programming errors. They are raised as panics
// whose value is an error wrapping one of these sentinels.
var (
	ErrLengthMismatch     = fingerprint.ErrLengthMismatch
	ErrTrackMismatch      = errors.New("result entries reference different tracks")
	ErrNegativeSimilarity = errors.New("hamming similarity must not be negative")
)
