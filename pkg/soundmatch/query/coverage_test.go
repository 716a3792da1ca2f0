package query

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLongestAlignmentCoverageIgnoresNoise(t *testing.T) {
	var matches []MatchedPair
	for q := 0.0; q < 5; q++ {
		matches = append(matches, pair(q, 10+q, 5))
	}
	matches = append(matches, pair(2, 50, 9), pair(3, 1, 9))

	cov := NewLongestAlignmentCoverage(2).GetCoverage(matches, 5, testConfig())

	require.Len(t, cov.BestPath, 5)
	assert.Equal(t, 0.0, cov.QueryMatchStartsAt)
	assert.Equal(t, 10.0, cov.TrackMatchStartsAt)
	assert.InDelta(t, 5.0, cov.QueryMatchLength, 1e-9)
	assert.InDelta(t, 5.0, cov.QueryCoverageLength, 1e-9)
	assert.Equal(t, 1.0, cov.Consistency)
}

func TestLongestAlignmentCoverageHoles(t *testing.T) {
	matches := []MatchedPair{
		pair(0, 20, 5),
		pair(1, 21, 5),
		pair(5, 25, 5),
		pair(6, 26, 5),
	}

	cov := NewLongestAlignmentCoverage(2).GetCoverage(matches, 10, testConfig())

	assert.InDelta(t, 7.0, cov.QueryMatchLength, 1e-9)
	assert.InDelta(t, 4.0, cov.QueryCoverageLength, 1e-9)
}

func TestLongestAlignmentCoverageConsistency(t *testing.T) {
	// Offsets alternate 10, 11: mean absolute deviation 0.5 of a 2s gap.
	matches := []MatchedPair{
		pair(0, 10, 5),
		pair(1, 12, 5),
		pair(3, 13, 5),
		pair(4, 15, 5),
	}

	cov := NewLongestAlignmentCoverage(2).GetCoverage(matches, 5, testConfig())

	require.Len(t, cov.BestPath, 4)
	assert.InDelta(t, 0.75, cov.Consistency, 1e-9)
}

func TestLongestAlignmentCoverageGapBreaksChain(t *testing.T) {
	matches := []MatchedPair{
		pair(0, 10, 5),
		pair(1, 11, 5),
		pair(2, 22, 5),
	}

	cov := NewLongestAlignmentCoverage(2).GetCoverage(matches, 3, testConfig())

	assert.Len(t, cov.BestPath, 2)
	assert.Equal(t, 10.0, cov.TrackMatchStartsAt)
}

func TestLongestAlignmentCoverageEmpty(t *testing.T) {
	cov := NewLongestAlignmentCoverage(2).GetCoverage(nil, 5, testConfig())
	assert.Equal(t, Coverage{}, cov)
}

func TestCoverageNeverExceedsQueryLength(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	calc := NewLongestAlignmentCoverage(2)

	for trial := 0; trial < 100; trial++ {
		var matches []MatchedPair
		for i := 0; i < 30; i++ {
			q := float64(rng.IntN(10))
			matches = append(matches, pair(q, q+float64(rng.IntN(3)), rng.IntN(8)))
		}

		for _, queryLength := range []float64{10, 3} {
			cov := calc.GetCoverage(matches, queryLength, testConfig())
			assert.LessOrEqual(t, cov.QueryCoverageLength, queryLength)
			assert.LessOrEqual(t, cov.QueryMatchLength, queryLength)
			assert.LessOrEqual(t, cov.QueryCoverageLength, cov.QueryMatchLength)
			assert.GreaterOrEqual(t, cov.Consistency, 0.0)
			assert.LessOrEqual(t, cov.Consistency, 1.0)
		}
	}
}

func TestScoreConfidence(t *testing.T) {
	tests := []struct {
		name                                  string
		covered, queryStart, trackStart       float64
		queryLength, trackLength, consistency float64
		want                                  float64
	}{
		{"full and aligned", 10, 0, 50, 10, 200, 1, 1},
		{"half covered", 5, 0, 50, 10, 200, 1, 0.5},
		{"full but inconsistent", 10, 0, 50, 10, 200, 0, 0.8},
		{"nothing covered", 0, 0, 50, 10, 200, 1, 0},
		// Query began 6s before the track: only 4s could ever match.
		{"query overhangs track start", 4, 6, 0, 10, 200, 1, 1},
		// Query runs 6s past the track end.
		{"query overhangs track end", 4, 0, 96, 10, 100, 1, 1},
		{"track shorter than query", 3, 2, 0, 10, 3, 1, 1},
		{"unknown track length", 5, 0, 50, 10, 0, 1, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreConfidence(tt.covered, tt.queryStart, tt.trackStart, tt.queryLength, tt.trackLength, tt.consistency)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestScoreConfidenceBoundaryMatchesInterior(t *testing.T) {
	interior := ScoreConfidence(4, 0, 100, 4, 300, 1)
	atStart := ScoreConfidence(4, 6, 0, 10, 300, 1)
	assert.InDelta(t, interior, atStart, 1e-9)
}

func TestScoreConfidenceStaysInRange(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	for i := 0; i < 500; i++ {
		got := ScoreConfidence(
			rng.Float64()*20,
			rng.Float64()*10,
			rng.Float64()*300,
			rng.Float64()*20,
			rng.Float64()*300,
			rng.Float64()*2-0.5,
		)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 1.0)
	}
}

func TestDefaultConfidenceCalculator(t *testing.T) {
	cov := Coverage{QueryCoverageLength: 5, QueryMatchStartsAt: 0, TrackMatchStartsAt: 50, Consistency: 1}
	got := DefaultConfidenceCalculator{}.CalculateConfidence(cov, 10, 200)
	assert.InDelta(t, 0.5, got, 1e-9)
}
