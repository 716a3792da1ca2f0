package query

import "math"

// Weights of the confidence score. A fully covered, perfectly aligned match
// scores 1; a fully covered match whose offsets wander by PermittedGap
// scores coverageOnlyWeight.
const (
	coverageOnlyWeight = 0.8
	consistencyWeight  = 1 - coverageOnlyWeight
)

// ConfidenceCalculator scores a coverage window against the query and track
// lengths. The result is always within [0,1].
type ConfidenceCalculator interface {
	CalculateConfidence(coverage Coverage, queryLength, trackLength float64) float64
}

// DefaultConfidenceCalculator implements ScoreConfidence.
type DefaultConfidenceCalculator struct{}

func (DefaultConfidenceCalculator) CalculateConfidence(coverage Coverage, queryLength, trackLength float64) float64 {
	return ScoreConfidence(
		coverage.QueryCoverageLength,
		coverage.QueryMatchStartsAt,
		coverage.TrackMatchStartsAt,
		queryLength,
		trackLength,
		coverage.Consistency,
	)
}

// ScoreConfidence computes
//
//	fraction    = coveredLength / achievable
//	confidence  = fraction * (0.8 + 0.2*consistency)
//
// where achievable is the part of the query that can overlap the track at
// the matched offset: the query window, placed on the track timeline, clipped
// to [0, trackLength]. A query hanging over the start or the end of a track
// is therefore measured only against the audio the track actually has, and
// a track shorter than the query is measured by how much of the track was
// covered. An unknown track length (<= 0) disables the clipping.
func ScoreConfidence(coveredLength, queryMatchStartsAt, trackMatchStartsAt, queryLength, trackLength, consistency float64) float64 {
	if coveredLength <= 0 || queryLength <= 0 {
		return 0
	}

	achievable := queryLength
	if trackLength > 0 {
		queryStartOnTrack := trackMatchStartsAt - queryMatchStartsAt
		queryEndOnTrack := queryStartOnTrack + queryLength
		achievable = math.Min(queryEndOnTrack, trackLength) - math.Max(queryStartOnTrack, 0)
	}
	if achievable < coveredLength {
		achievable = coveredLength
	}

	fraction := clamp01(coveredLength / achievable)
	return clamp01(fraction * (coverageOnlyWeight + consistencyWeight*clamp01(consistency)))
}
