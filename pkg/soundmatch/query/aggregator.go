package query

import (
	"sort"
	"sync"

	"github.com/himanishpuri/soundmatch/pkg/models"
)

// RealtimeAggregator merges result entries of consecutive chunks of one audio
// stream. Entries are held pending until no continuation has arrived for
// MaxWait seconds of audio, then reported once.
//
// Calls are serialized by a mutex, but the caller is responsible for feeding
// chunks in arrival order. Independent streams need independent aggregators.
type RealtimeAggregator struct {
	mu       sync.Mutex
	accuracy float64
	maxWait  float64
	filter   ResultEntryFilter
	pending  []PendingResultEntry
	nextUID  uint64
}

// NewRealtimeAggregator uses cfg.Accuracy and cfg.MaxWait. A nil filter
// accepts every finalized entry.
func NewRealtimeAggregator(cfg models.QueryConfiguration, filter ResultEntryFilter) *RealtimeAggregator {
	if filter == nil {
		filter = PassThroughFilter{}
	}
	return &RealtimeAggregator{
		accuracy: cfg.Accuracy,
		maxWait:  cfg.MaxWait,
		filter:   filter,
	}
}

// Consume takes the candidates found in one chunk of queryLength seconds.
// Each candidate either collapses into a pending entry of the same track or
// becomes a new pending entry. Pending entries that got nothing this call
// wait for queryLength more seconds. Entries whose wait budget is used up
// are removed and returned, best confidence first.
func (a *RealtimeAggregator) Consume(candidates []ResultEntry, queryLength float64) RealtimeQueryResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	arrivals := append([]ResultEntry(nil), candidates...)
	sort.SliceStable(arrivals, func(i, j int) bool {
		return arrivals[i].TrackMatchStartsAt < arrivals[j].TrackMatchStartsAt
	})

	touched := make(map[uint64]bool, len(arrivals))
	for _, candidate := range arrivals {
		idx := a.collapseTarget(candidate)
		if idx < 0 {
			p := a.open(candidate, 0)
			a.pending = append(a.pending, p)
			touched[p.uid] = true
			continue
		}
		merged := a.open(a.pending[idx].entry.MergeWith(candidate), 0)
		a.pending[idx] = merged
		touched[merged.uid] = true
	}

	for i, p := range a.pending {
		if !touched[p.uid] {
			a.pending[i] = a.open(p.entry.Wait(queryLength), p.waiting+queryLength)
		}
	}

	var finalized []ResultEntry
	kept := a.pending[:0]
	for _, p := range a.pending {
		if p.CanWait(a.maxWait) {
			kept = append(kept, p)
			continue
		}
		finalized = append(finalized, p.entry)
	}
	a.pending = kept

	return a.report(finalized)
}

// Flush finalizes every pending entry, leaving the aggregator empty.
func (a *RealtimeAggregator) Flush() RealtimeQueryResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	finalized := make([]ResultEntry, 0, len(a.pending))
	for _, p := range a.pending {
		finalized = append(finalized, p.entry)
	}
	a.pending = nil
	return a.report(finalized)
}

// Pending returns a copy of the entries currently held open.
func (a *RealtimeAggregator) Pending() []PendingResultEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]PendingResultEntry(nil), a.pending...)
}

func (a *RealtimeAggregator) collapseTarget(candidate ResultEntry) int {
	for i, p := range a.pending {
		if p.canCollapse(a.accuracy, candidate) {
			return i
		}
	}
	return -1
}

// open wraps entry under a fresh uid; uids are never reused.
func (a *RealtimeAggregator) open(entry ResultEntry, waiting float64) PendingResultEntry {
	a.nextUID++
	return PendingResultEntry{uid: a.nextUID, entry: entry, waiting: waiting}
}

func (a *RealtimeAggregator) report(finalized []ResultEntry) RealtimeQueryResult {
	sort.SliceStable(finalized, func(i, j int) bool {
		return finalized[i].Confidence > finalized[j].Confidence
	})

	var result RealtimeQueryResult
	for _, e := range finalized {
		if a.filter.Pass(e) {
			result.ResultEntries = append(result.ResultEntries, e)
		} else {
			result.Rejected = append(result.Rejected, e)
		}
	}
	return result
}
