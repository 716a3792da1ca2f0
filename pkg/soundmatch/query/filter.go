package query

// ResultEntryFilter decides whether a finalized realtime entry is reported
// as a match or as rejected.
type ResultEntryFilter interface {
	Pass(entry ResultEntry) bool
}

// PassThroughFilter accepts everything.
type PassThroughFilter struct{}

func (PassThroughFilter) Pass(ResultEntry) bool { return true }

// CoverageFilter requires at least MinCoverage seconds of covered query.
type CoverageFilter struct {
	MinCoverage float64
}

func (f CoverageFilter) Pass(entry ResultEntry) bool {
	return entry.QueryCoverageLength >= f.MinCoverage
}

// ConfidenceFilter requires a confidence of at least MinConfidence.
type ConfidenceFilter struct {
	MinConfidence float64
}

func (f ConfidenceFilter) Pass(entry ResultEntry) bool {
	return entry.Confidence >= f.MinConfidence
}
