package query

import (
	"math"
	"sort"

	"github.com/himanishpuri/soundmatch/pkg/models"
)

// Coverage is the best-aligned window found among a track's matched pairs.
type Coverage struct {
	QueryMatchStartsAt  float64 // earliest query-side time of the winning run
	QueryMatchLength    float64 // query-side span of the run, including the last fingerprint
	QueryCoverageLength float64 // query time actually covered by fingerprints of the run
	TrackMatchStartsAt  float64 // track-side time matching QueryMatchStartsAt
	Consistency         float64 // 1 when every pair of the run has the same offset
	BestPath            []MatchedPair
}

// CoverageCalculator turns the matched pairs of one track into a Coverage.
type CoverageCalculator interface {
	GetCoverage(matches []MatchedPair, queryLength float64, cfg models.FingerprintConfiguration) Coverage
}

// LongestAlignmentCoverage picks the longest run of pairs that moves forward
// on both timelines while the track-minus-query offset of consecutive pairs
// differs by at most PermittedGap seconds.
type LongestAlignmentCoverage struct {
	PermittedGap float64
}

func NewLongestAlignmentCoverage(permittedGap float64) *LongestAlignmentCoverage {
	return &LongestAlignmentCoverage{PermittedGap: permittedGap}
}

func (c *LongestAlignmentCoverage) GetCoverage(matches []MatchedPair, queryLength float64, cfg models.FingerprintConfiguration) Coverage {
	path := c.longestPath(matches)
	if len(path) == 0 {
		return Coverage{}
	}

	fpLength := cfg.FingerprintLengthInSeconds()
	first, last := path[0], path[len(path)-1]

	matchLength := last.QueryAt() + fpLength - first.QueryAt()
	coverage := coveredLength(path, fpLength)
	if queryLength > 0 {
		matchLength = math.Min(matchLength, queryLength)
		coverage = math.Min(coverage, queryLength)
	}
	coverage = math.Min(coverage, matchLength)

	return Coverage{
		QueryMatchStartsAt:  first.QueryAt(),
		QueryMatchLength:    matchLength,
		QueryCoverageLength: coverage,
		TrackMatchStartsAt:  first.TrackAt(),
		Consistency:         c.consistency(path),
		BestPath:            path,
	}
}

// longestPath is an O(n²) longest-chain search. On equal lengths the chain
// ending first in track order wins, and predecessors are chosen the same way.
func (c *LongestAlignmentCoverage) longestPath(matches []MatchedPair) []MatchedPair {
	n := len(matches)
	if n == 0 {
		return nil
	}

	sorted := append([]MatchedPair(nil), matches...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TrackAt() != sorted[j].TrackAt() {
			return sorted[i].TrackAt() < sorted[j].TrackAt()
		}
		return sorted[i].QueryAt() < sorted[j].QueryAt()
	})

	length := make([]int, n)
	prev := make([]int, n)
	bestEnd := 0
	for j := 0; j < n; j++ {
		length[j], prev[j] = 1, -1
		for i := 0; i < j; i++ {
			if !c.canFollow(sorted[i], sorted[j]) {
				continue
			}
			if length[i]+1 > length[j] {
				length[j], prev[j] = length[i]+1, i
			}
		}
		if length[j] > length[bestEnd] {
			bestEnd = j
		}
	}

	path := make([]MatchedPair, length[bestEnd])
	for k, i := len(path)-1, bestEnd; i >= 0; k, i = k-1, prev[i] {
		path[k] = sorted[i]
	}
	return path
}

func (c *LongestAlignmentCoverage) canFollow(a, b MatchedPair) bool {
	if b.TrackAt() <= a.TrackAt() || b.QueryAt() <= a.QueryAt() {
		return false
	}
	return math.Abs(offset(b)-offset(a)) <= c.PermittedGap
}

// consistency maps the mean absolute deviation of the run's offsets onto
// [0,1], reaching 0 when the deviation equals PermittedGap.
func (c *LongestAlignmentCoverage) consistency(path []MatchedPair) float64 {
	if len(path) < 2 {
		return 1
	}

	var mean float64
	for _, p := range path {
		mean += offset(p)
	}
	mean /= float64(len(path))

	var deviation float64
	for _, p := range path {
		deviation += math.Abs(offset(p) - mean)
	}
	deviation /= float64(len(path))

	if c.PermittedGap <= 0 {
		if deviation == 0 {
			return 1
		}
		return 0
	}
	return clamp01(1 - deviation/c.PermittedGap)
}

func offset(p MatchedPair) float64 {
	return p.TrackAt() - p.QueryAt()
}

// coveredLength is the length of the union of [q, q+fpLength) over the path.
// The path is ordered by query time.
func coveredLength(path []MatchedPair, fpLength float64) float64 {
	var total float64
	start, end := path[0].QueryAt(), path[0].QueryAt()+fpLength
	for _, p := range path[1:] {
		q := p.QueryAt()
		if q > end {
			total += end - start
			start = q
		}
		end = math.Max(end, q+fpLength)
	}
	return total + end - start
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
