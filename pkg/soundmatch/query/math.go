package query

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/himanishpuri/soundmatch/pkg/models"
)

// TrackReader resolves track references to stored track metadata. Unknown
// references are left out of the result rather than reported as errors.
type TrackReader interface {
	ReadTracksByReferences(ctx context.Context, refs []models.Reference) ([]models.TrackData, error)
}

// Math turns per-track accumulators into ranked, scored result entries.
type Math struct {
	coverage   CoverageCalculator
	confidence ConfidenceCalculator
}

// NewMath wires the coverage and confidence calculators. Nil arguments fall
// back to LongestAlignmentCoverage with the default permitted gap and to
// DefaultConfidenceCalculator.
func NewMath(coverage CoverageCalculator, confidence ConfidenceCalculator) *Math {
	if coverage == nil {
		coverage = NewLongestAlignmentCoverage(models.DefaultQueryConfiguration().PermittedGap)
	}
	if confidence == nil {
		confidence = DefaultConfidenceCalculator{}
	}
	return &Math{coverage: coverage, confidence: confidence}
}

// GetBestCandidates ranks the accumulators by hamming similarity sum (ties
// keep first-seen order), keeps the top maxResults, resolves their tracks and
// scores one ResultEntry per surviving track. The returned slice is in
// ranking order.
func (m *Math) GetBestCandidates(
	ctx context.Context,
	hashedFingerprints []models.HashedFingerprint,
	accumulators *Accumulators,
	maxResults int,
	tracks TrackReader,
	cfg models.FingerprintConfiguration,
) ([]ResultEntry, error) {
	if accumulators == nil || accumulators.Len() == 0 || maxResults <= 0 {
		return []ResultEntry{}, nil
	}

	queryLength := CalculateExactQueryLength(hashedFingerprints, cfg)
	queryStartsAt := queryStart(hashedFingerprints)

	ranked := accumulators.References()
	sort.SliceStable(ranked, func(i, j int) bool {
		a, _ := accumulators.Get(ranked[i])
		b, _ := accumulators.Get(ranked[j])
		return a.HammingSimilaritySum() > b.HammingSimilaritySum()
	})
	if len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}

	trackData, err := tracks.ReadTracksByReferences(ctx, ranked)
	if err != nil {
		return nil, fmt.Errorf("reading candidate tracks: %w", err)
	}
	byRef := make(map[models.Reference]models.TrackData, len(trackData))
	for _, t := range trackData {
		byRef[t.Reference] = t
	}

	entries := make([]ResultEntry, 0, len(ranked))
	for _, ref := range ranked {
		track, ok := byRef[ref]
		if !ok {
			continue
		}
		acc, _ := accumulators.Get(ref)
		entries = append(entries, m.resultEntry(cfg, track, acc, queryStartsAt, queryLength))
	}
	return entries, nil
}

// resultEntry scores one track. Confidence is computed on a query timeline
// that starts at 0, so chunks cut from the middle of a stream are placed on
// the track correctly.
func (m *Math) resultEntry(cfg models.FingerprintConfiguration, track models.TrackData, acc *Accumulator, queryStartsAt, queryLength float64) ResultEntry {
	coverage := m.coverage.GetCoverage(acc.Matches(), queryLength, cfg)
	relative := coverage
	relative.QueryMatchStartsAt -= queryStartsAt
	confidence := clamp01(m.confidence.CalculateConfidence(relative, queryLength, track.Length))

	return ResultEntry{
		Track:                track,
		QueryMatchStartsAt:   coverage.QueryMatchStartsAt,
		QueryMatchLength:     coverage.QueryMatchLength,
		QueryCoverageLength:  math.Min(coverage.QueryCoverageLength, queryLength),
		TrackMatchStartsAt:   coverage.TrackMatchStartsAt,
		TrackStartsAt:        GetTrackStartsAt(acc.BestMatch()),
		QueryStartsAt:        queryStartsAt,
		Confidence:           confidence,
		Consistency:          coverage.Consistency,
		HammingSimilaritySum: acc.HammingSimilaritySum(),
		QueryLength:          queryLength,
	}
}

// CalculateExactQueryLength is the time between the first and the last query
// fingerprint plus the length of one fingerprint. It is 0 for no fingerprints.
func CalculateExactQueryLength(hashedFingerprints []models.HashedFingerprint, cfg models.FingerprintConfiguration) float64 {
	if len(hashedFingerprints) == 0 {
		return 0
	}

	startsAt, endsAt := math.MaxFloat64, -math.MaxFloat64
	for _, hf := range hashedFingerprints {
		startsAt = math.Min(startsAt, hf.StartsAt)
		endsAt = math.Max(endsAt, hf.StartsAt)
	}
	return cfg.AdjustLengthToSeconds(endsAt, startsAt)
}

func queryStart(hashedFingerprints []models.HashedFingerprint) float64 {
	if len(hashedFingerprints) == 0 {
		return 0
	}
	startsAt := hashedFingerprints[0].StartsAt
	for _, hf := range hashedFingerprints[1:] {
		startsAt = math.Min(startsAt, hf.StartsAt)
	}
	return startsAt
}

// GetTrackStartsAt places the start of the track on the query timeline using
// the best matched pair.
func GetTrackStartsAt(bestMatch MatchedPair) float64 {
	return bestMatch.QueryAt() - bestMatch.TrackAt()
}
