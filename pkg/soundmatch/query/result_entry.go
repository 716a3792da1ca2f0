package query

import (
	"fmt"
	"math"

	"github.com/himanishpuri/soundmatch/pkg/models"
)

// ResultEntry is the scored match of one track. Entries are values: every
// operation returns a new entry and leaves the receiver untouched.
type ResultEntry struct {
	Track models.TrackData

	QueryMatchStartsAt  float64 // seconds into the query where the aligned match begins
	QueryMatchLength    float64 // span of the aligned match
	QueryCoverageLength float64 // query time covered by matching fingerprints
	TrackMatchStartsAt  float64 // seconds into the track where the aligned match begins
	TrackStartsAt       float64 // query time of the track start, taken from the best pair
	QueryStartsAt       float64 // time of the first query fingerprint, on the same clock as QueryMatchStartsAt

	Confidence           float64 // within [0,1]
	Consistency          float64 // alignment consistency of the run, within [0,1]
	HammingSimilaritySum int
	QueryLength          float64 // seconds of query audio behind this entry
}

// TrackMatchEndsAt is where the match window ends on the track timeline.
func (e ResultEntry) TrackMatchEndsAt() float64 {
	return e.TrackMatchStartsAt + e.QueryMatchLength
}

// SameTrack reports whether both entries point at the same track.
func (e ResultEntry) SameTrack(other ResultEntry) bool {
	return e.Track.Reference == other.Track.Reference
}

// MergeWith combines two entries describing one match that was split, for
// example across two streamed chunks. The merged window is the union of both
// windows on the track timeline; query lengths and similarity sums add up;
// the covered length is the sum minus the estimated shared part; and the
// confidence is scored again from the union, on a query timeline starting at
// the earliest QueryStartsAt.
//
// Merging entries of different tracks panics with ErrTrackMismatch.
func (e ResultEntry) MergeWith(other ResultEntry) ResultEntry {
	if !e.SameTrack(other) {
		panic(fmt.Errorf("%w: %v and %v", ErrTrackMismatch, e.Track.Reference, other.Track.Reference))
	}

	first, second := e, other
	if other.TrackMatchStartsAt < e.TrackMatchStartsAt ||
		(other.TrackMatchStartsAt == e.TrackMatchStartsAt && other.TrackStartsAt < e.TrackStartsAt) {
		first, second = other, e
	}

	start := first.TrackMatchStartsAt
	end := math.Max(first.TrackMatchEndsAt(), second.TrackMatchEndsAt())
	overlap := math.Max(0, math.Min(first.TrackMatchEndsAt(), second.TrackMatchEndsAt())-second.TrackMatchStartsAt)

	queryLength := first.QueryLength + second.QueryLength
	covered := first.QueryCoverageLength + second.QueryCoverageLength -
		math.Min(sharedCoverage(first, overlap), sharedCoverage(second, overlap))
	covered = math.Min(covered, math.Min(end-start, queryLength))

	consistency := first.Consistency
	if total := first.QueryCoverageLength + second.QueryCoverageLength; total > 0 {
		consistency = (first.Consistency*first.QueryCoverageLength + second.Consistency*second.QueryCoverageLength) / total
	}

	queryMatchStartsAt := math.Min(first.QueryMatchStartsAt, second.QueryMatchStartsAt)
	queryStartsAt := math.Min(first.QueryStartsAt, second.QueryStartsAt)
	relativeStart := queryMatchStartsAt - queryStartsAt

	return ResultEntry{
		Track:                first.Track,
		QueryMatchStartsAt:   queryMatchStartsAt,
		QueryMatchLength:     end - start,
		QueryCoverageLength:  covered,
		TrackMatchStartsAt:   start,
		TrackStartsAt:        first.TrackStartsAt,
		QueryStartsAt:        queryStartsAt,
		Confidence:           ScoreConfidence(covered, relativeStart, start, queryLength, first.Track.Length, consistency),
		Consistency:          consistency,
		HammingSimilaritySum: first.HammingSimilaritySum + second.HammingSimilaritySum,
		QueryLength:          queryLength,
	}
}

// Wait returns the entry with length more seconds of query audio behind it
// and no new evidence.
func (e ResultEntry) Wait(length float64) ResultEntry {
	e.QueryLength += length
	return e
}

// sharedCoverage estimates how much of e's covered length falls inside an
// overlap of the given length, assuming coverage is spread evenly.
func sharedCoverage(e ResultEntry, overlap float64) float64 {
	if e.QueryMatchLength <= 0 {
		return 0
	}
	return e.QueryCoverageLength * math.Min(1, overlap/e.QueryMatchLength)
}
