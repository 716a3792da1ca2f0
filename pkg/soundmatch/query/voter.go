package query

import (
	"fmt"

	"github.com/himanishpuri/soundmatch/pkg/models"
)

// IsCandidatePassingThresholdVotes reports whether query and candidate agree
// on at least thresholdVotes bucket keys at the same positions. The scan
// stops as soon as the threshold is reached.
//
// Both key arrays must have the same length; anything else panics.
func IsCandidatePassingThresholdVotes(query models.HashedFingerprint, candidate models.SubFingerprintData, thresholdVotes int) bool {
	q, c := query.HashBins, candidate.Hashes
	if len(q) != len(c) {
		panic(fmt.Errorf("%w: query has %d bucket keys, candidate has %d", ErrLengthMismatch, len(q), len(c)))
	}

	return votesReachedAt(q, c, thresholdVotes) >= 0
}

// votesReachedAt returns how many positions were scanned when the vote
// threshold was reached, or -1 if it never was.
func votesReachedAt(q, c []int64, thresholdVotes int) int {
	if thresholdVotes <= 0 {
		return 0
	}

	votes := 0
	for i := range q {
		if q[i] == c[i] {
			votes++
		}
		if votes >= thresholdVotes {
			return i + 1
		}
	}
	return -1
}
