package query

// PendingResultEntry is a result held open by the realtime aggregator while
// it waits for a following chunk that may extend it.
type PendingResultEntry struct {
	uid     uint64
	entry   ResultEntry
	waiting float64
}

// Entry returns the wrapped result.
func (p PendingResultEntry) Entry() ResultEntry {
	return p.entry
}

// Waiting is the audio length (seconds) that has passed without new evidence.
func (p PendingResultEntry) Waiting() float64 {
	return p.waiting
}

// CanWait reports whether the entry may stay open under a maxWait budget.
func (p PendingResultEntry) CanWait(maxWait float64) bool {
	return p.waiting < maxWait
}

// canCollapse reports whether next continues p: same track, and either the
// end of p's track window lies within accuracy of next's start, or one
// window contains the other.
func (p PendingResultEntry) canCollapse(accuracy float64, next ResultEntry) bool {
	if !p.entry.SameTrack(next) {
		return false
	}
	return p.touches(accuracy, next) || contains(p.entry, next) || contains(next, p.entry)
}

func (p PendingResultEntry) touches(accuracy float64, next ResultEntry) bool {
	end := p.entry.TrackMatchEndsAt()
	return end >= next.TrackMatchStartsAt-accuracy && next.TrackMatchStartsAt+accuracy >= end
}

func contains(outer, inner ResultEntry) bool {
	return outer.TrackMatchStartsAt <= inner.TrackMatchStartsAt && outer.TrackMatchEndsAt() >= inner.TrackMatchEndsAt()
}
