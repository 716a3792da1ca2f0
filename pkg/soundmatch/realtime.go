package soundmatch

import (
	"context"

	"github.com/himanishpuri/soundmatch/pkg/models"
	"github.com/himanishpuri/soundmatch/pkg/soundmatch/query"
)

// RealtimeSession matches one audio stream chunk by chunk. Matches spanning
// several chunks are merged and reported once, when no continuation arrived
// for MaxWait seconds or when the session is closed.
//
// Chunks must be fed in stream order. A session is not meant to be shared
// between streams.
type RealtimeSession struct {
	svc        *matchService
	aggregator *query.RealtimeAggregator
	log        Logger
}

func (s *matchService) NewRealtimeSession() *RealtimeSession {
	return &RealtimeSession{
		svc:        s,
		aggregator: query.NewRealtimeAggregator(s.config.Query, query.ConfidenceFilter{MinConfidence: s.config.Query.MinConfidence}),
		log:        s.log,
	}
}

// Query matches one chunk and returns the entries finalized by it. length is
// the audio duration of the chunk in seconds; when it is not positive it is
// derived from the fingerprints. A silent chunk (no fingerprints) still needs
// its length so pending matches age.
func (r *RealtimeSession) Query(ctx context.Context, chunk []models.Fingerprint, length float64) (query.RealtimeQueryResult, error) {
	result, err := r.svc.Query(ctx, chunk)
	if err != nil {
		return query.RealtimeQueryResult{}, err
	}

	if length <= 0 {
		length = trackLength(chunk, r.svc.config.Fingerprint)
	}

	return r.report(r.aggregator.Consume(result.ResultEntries, length)), nil
}

// Pending returns the matches still waiting for a continuation.
func (r *RealtimeSession) Pending() []query.PendingResultEntry {
	return r.aggregator.Pending()
}

// Close reports every pending match.
func (r *RealtimeSession) Close() query.RealtimeQueryResult {
	return r.report(r.aggregator.Flush())
}

func (r *RealtimeSession) report(result query.RealtimeQueryResult) query.RealtimeQueryResult {
	r.svc.metrics.RealtimeEntriesTotal.WithLabelValues("finalized").Add(float64(len(result.ResultEntries)))
	r.svc.metrics.RealtimeEntriesTotal.WithLabelValues("rejected").Add(float64(len(result.Rejected)))
	for _, e := range result.ResultEntries {
		r.log.Infof("Realtime match: %s by %s at %.2fs (confidence %.2f)",
			e.Track.Title, e.Track.Artist, e.TrackMatchStartsAt, e.Confidence)
	}
	return result
}
