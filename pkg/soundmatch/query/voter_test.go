package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCandidatePassingThresholdVotes(t *testing.T) {
	query := queryFP(0, 1, 2, 3, 4, 5, 6)

	tests := []struct {
		name      string
		candidate []int64
		threshold int
		want      bool
	}{
		{"all equal", []int64{1, 2, 3, 4, 5, 6}, 6, true},
		{"exactly threshold", []int64{1, 0, 3, 0, 5, 0}, 3, true},
		{"one short", []int64{1, 0, 3, 0, 5, 0}, 4, false},
		{"none equal", []int64{9, 9, 9, 9, 9, 9}, 1, false},
		{"zero threshold", []int64{9, 9, 9, 9, 9, 9}, 0, true},
		{"threshold above length", []int64{1, 2, 3, 4, 5, 6}, 7, false},
		// Threshold met before the midpoint; everything after differs.
		{"early match", []int64{1, 2, -1, -1, -1, -1}, 2, true},
		{"late match", []int64{-1, -1, -1, -1, 5, 6}, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsCandidatePassingThresholdVotes(query, storedFP(trackRef("t"), 0, tt.candidate...), tt.threshold)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsCandidatePassingThresholdVotesMatchesCount(t *testing.T) {
	query := queryFP(0, 10, 20, 30, 40, 50, 60, 70, 80)
	candidate := storedFP(trackRef("t"), 0, 10, 0, 30, 0, 50, 0, 70, 0)
	equal := 4

	for threshold := 1; threshold <= len(query.HashBins); threshold++ {
		got := IsCandidatePassingThresholdVotes(query, candidate, threshold)
		assert.Equal(t, equal >= threshold, got, "threshold %d", threshold)
	}
}

func TestIsCandidatePassingThresholdVotesLengthMismatch(t *testing.T) {
	requirePanicsWith(t, ErrLengthMismatch, func() {
		IsCandidatePassingThresholdVotes(queryFP(0, 1, 2, 3), storedFP(trackRef("t"), 0, 1, 2), 1)
	})
}

func TestIsCandidatePassingThresholdVotesStopsAtThreshold(t *testing.T) {
	query := []int64{1, 2, 3, 4, 5, 6}

	tests := []struct {
		name      string
		candidate []int64
		threshold int
		scanned   int
	}{
		{"early match", []int64{1, 2, 3, 4, 5, 6}, 2, 2},
		{"tail ignored", []int64{1, 2, -1, -1, -1, -1}, 2, 2},
		{"late match", []int64{-1, -1, -1, -1, 5, 6}, 2, 6},
		{"zero threshold", []int64{9, 9, 9, 9, 9, 9}, 0, 0},
		{"never reached", []int64{1, 0, 3, 0, 5, 0}, 4, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.scanned, votesReachedAt(query, tt.candidate, tt.threshold))
		})
	}
}
