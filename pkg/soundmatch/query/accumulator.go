package query

import (
	"fmt"

	"github.com/himanishpuri/soundmatch/pkg/models"
)

// MatchedPair is one accepted vote: a query fingerprint and the stored
// sub-fingerprint it matched.
type MatchedPair struct {
	HashedFingerprint models.HashedFingerprint
	SubFingerprint    models.SubFingerprintData
	HammingSimilarity int
}

// QueryAt is the pair's position on the query timeline (seconds).
func (p MatchedPair) QueryAt() float64 {
	return p.HashedFingerprint.StartsAt
}

// TrackAt is the pair's position on the track timeline (seconds).
func (p MatchedPair) TrackAt() float64 {
	return p.SubFingerprint.SequenceAt
}

// Accumulator collects the matched pairs of one track during one query.
// It is owned by the query evaluation and is not safe for concurrent use.
type Accumulator struct {
	matches              []MatchedPair
	hammingSimilaritySum int
	bestMatch            MatchedPair
}

// Add records a matched pair. The best match only changes when the new pair
// is strictly more similar, so ties keep the earlier pair.
func (a *Accumulator) Add(query models.HashedFingerprint, candidate models.SubFingerprintData, hammingSimilarity int) {
	if hammingSimilarity < 0 {
		panic(fmt.Errorf("%w: got %d", ErrNegativeSimilarity, hammingSimilarity))
	}

	pair := MatchedPair{HashedFingerprint: query, SubFingerprint: candidate, HammingSimilarity: hammingSimilarity}
	if len(a.matches) == 0 || hammingSimilarity > a.bestMatch.HammingSimilarity {
		a.bestMatch = pair
	}
	a.matches = append(a.matches, pair)
	a.hammingSimilaritySum += hammingSimilarity
}

// Matches returns the pairs in discovery order. Callers must not modify it.
func (a *Accumulator) Matches() []MatchedPair {
	return a.matches
}

func (a *Accumulator) HammingSimilaritySum() int {
	return a.hammingSimilaritySum
}

func (a *Accumulator) BestMatch() MatchedPair {
	return a.bestMatch
}

// Accumulators keeps one Accumulator per track, remembering the order in
// which tracks were first seen.
type Accumulators struct {
	order   []models.Reference
	byTrack map[models.Reference]*Accumulator
}

func NewAccumulators() *Accumulators {
	return &Accumulators{byTrack: make(map[models.Reference]*Accumulator)}
}

// Add routes a matched pair to the accumulator of track, creating it on first use.
func (a *Accumulators) Add(track models.Reference, query models.HashedFingerprint, candidate models.SubFingerprintData, hammingSimilarity int) {
	acc, ok := a.byTrack[track]
	if !ok {
		acc = &Accumulator{}
		a.byTrack[track] = acc
		a.order = append(a.order, track)
	}
	acc.Add(query, candidate, hammingSimilarity)
}

func (a *Accumulators) Get(track models.Reference) (*Accumulator, bool) {
	acc, ok := a.byTrack[track]
	return acc, ok
}

func (a *Accumulators) Len() int {
	return len(a.order)
}

// References returns the tracks in first-seen order.
func (a *Accumulators) References() []models.Reference {
	return append([]models.Reference(nil), a.order...)
}
