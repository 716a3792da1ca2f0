package query

import "time"

// QueryStats describes how much work a query did.
type QueryStats struct {
	TotalTracksAnalyzed       int
	TotalFingerprintsAnalyzed int
	QueryDuration             time.Duration
}

// QueryResult is the outcome of one batch query, most probable entry first.
type QueryResult struct {
	ResultEntries []ResultEntry
	Stats         QueryStats
}

// EmptyResult is the canonical "no match" result.
func EmptyResult() QueryResult {
	return QueryResult{}
}

// NewQueryResult builds a result carrying the analysis counters.
func NewQueryResult(entries []ResultEntry, totalTracks, totalFingerprints int) QueryResult {
	return QueryResult{
		ResultEntries: entries,
		Stats: QueryStats{
			TotalTracksAnalyzed:       totalTracks,
			TotalFingerprintsAnalyzed: totalFingerprints,
		},
	}
}

func (r QueryResult) ContainsMatches() bool {
	return len(r.ResultEntries) > 0
}

// BestMatch returns the first entry, if any.
func (r QueryResult) BestMatch() (ResultEntry, bool) {
	if !r.ContainsMatches() {
		return ResultEntry{}, false
	}
	return r.ResultEntries[0], true
}

// RealtimeQueryResult is what the realtime aggregator reports for one chunk:
// the entries finalized during the call, split by the configured filter.
type RealtimeQueryResult struct {
	ResultEntries []ResultEntry
	Rejected      []ResultEntry
}

func (r RealtimeQueryResult) ContainsMatches() bool {
	return len(r.ResultEntries) > 0
}
