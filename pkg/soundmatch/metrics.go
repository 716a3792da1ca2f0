package soundmatch

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "soundmatch"

// metrics of one service. Services sharing a registerer share the
// collectors.
type metrics struct {
	// QueriesTotal counts Query calls. Labels: status (success, error)
	QueriesTotal *prometheus.CounterVec

	// CandidatesVotedTotal counts sub-fingerprints that passed the vote.
	CandidatesVotedTotal prometheus.Counter

	// RealtimeEntriesTotal counts finalized realtime entries.
	// Labels: state (finalized, rejected)
	RealtimeEntriesTotal *prometheus.CounterVec

	QueryDurationSeconds prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	queries, err := register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "queries_total",
			Help:      "Total number of queries by status",
		},
		[]string{"status"},
	))
	if err != nil {
		return nil, err
	}

	voted, err := register(reg, prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "candidates_voted_total",
			Help:      "Stored sub-fingerprints that passed the threshold vote",
		},
	))
	if err != nil {
		return nil, err
	}

	realtime, err := register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "realtime_entries_total",
			Help:      "Finalized realtime result entries by state",
		},
		[]string{"state"},
	))
	if err != nil {
		return nil, err
	}

	duration, err := register(reg, prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "query_duration_seconds",
			Help:      "Time spent answering one query",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	))
	if err != nil {
		return nil, err
	}

	return &metrics{
		QueriesTotal:         queries,
		CandidatesVotedTotal: voted,
		RealtimeEntriesTotal: realtime,
		QueryDurationSeconds: duration,
	}, nil
}

// register adds c to reg, or returns the collector already registered under
// the same description.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return c, nil
}
