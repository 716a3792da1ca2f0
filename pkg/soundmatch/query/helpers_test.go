package query

import (
	"context"
	"errors"
	"testing"

	"github.com/himanishpuri/soundmatch/pkg/models"
)

// testConfig makes one fingerprint last exactly one second and maps
// sequence number n to n seconds.
func testConfig() models.FingerprintConfiguration {
	cfg := models.DefaultFingerprintConfiguration()
	cfg.SampleRate = 1000
	cfg.Stride = 1000
	cfg.ImageLength = 1
	cfg.Overlap = 1000
	return cfg
}

func trackRef(id string) models.Reference {
	return models.NewReference(id)
}

func queryFP(startsAt float64, bins ...int64) models.HashedFingerprint {
	return models.HashedFingerprint{StartsAt: startsAt, SequenceNumber: int(startsAt), HashBins: bins}
}

func storedFP(track models.Reference, sequenceAt float64, bins ...int64) models.SubFingerprintData {
	return models.SubFingerprintData{
		Hashes:         bins,
		SequenceNumber: int(sequenceAt),
		SequenceAt:     sequenceAt,
		TrackReference: track,
	}
}

func pair(queryAt, trackAt float64, similarity int) MatchedPair {
	return MatchedPair{
		HashedFingerprint: queryFP(queryAt),
		SubFingerprint:    storedFP(trackRef("t"), trackAt),
		HammingSimilarity: similarity,
	}
}

func entry(track string, trackStart, length float64) ResultEntry {
	return ResultEntry{
		Track:                models.TrackData{Reference: trackRef(track), Length: 300},
		QueryMatchStartsAt:   0,
		QueryMatchLength:     length,
		QueryCoverageLength:  length,
		TrackMatchStartsAt:   trackStart,
		TrackStartsAt:        -trackStart,
		Confidence:           1,
		Consistency:          1,
		HammingSimilaritySum: 10,
		QueryLength:          length,
	}
}

// fakeTracks serves TrackData in reverse request order so tests notice when
// output order follows storage order instead of ranking.
type fakeTracks struct {
	tracks map[models.Reference]models.TrackData
	err    error
	calls  int
}

func newFakeTracks(ids ...string) *fakeTracks {
	f := &fakeTracks{tracks: make(map[models.Reference]models.TrackData)}
	for _, id := range ids {
		ref := trackRef(id)
		f.tracks[ref] = models.TrackData{Reference: ref, Title: id, Length: 300}
	}
	return f
}

func (f *fakeTracks) ReadTracksByReferences(_ context.Context, refs []models.Reference) ([]models.TrackData, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.TrackData, 0, len(refs))
	for i := len(refs) - 1; i >= 0; i-- {
		if t, ok := f.tracks[refs[i]]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// requirePanicsWith fails unless fn panics with an error wrapping target.
func requirePanicsWith(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("expected panic wrapping %v", target)
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, target) {
			t.Fatalf("expected panic wrapping %v, got %v", target, r)
		}
	}()
	fn()
}
