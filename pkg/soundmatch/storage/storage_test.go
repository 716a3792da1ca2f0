package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/himanishpuri/soundmatch/pkg/models"
)

// store is the surface shared by every implementation.
type store interface {
	InsertTrack(ctx context.Context, info models.TrackInfo) (models.TrackData, error)
	ContainsTrack(ctx context.Context, info models.TrackInfo) (bool, error)
	InsertHashDataForTrack(ctx context.Context, hashed []models.HashedFingerprint, track models.Reference) error
	ReadSubFingerprints(ctx context.Context, hashBins []int64, cfg models.QueryConfiguration) (models.FingerprintsQueryResponse, error)
	ReadTracksByReferences(ctx context.Context, refs []models.Reference) ([]models.TrackData, error)
	ReadTrackByReference(ctx context.Context, ref models.Reference) (models.TrackData, error)
	ReadTrackByISRC(ctx context.Context, isrc string) (models.TrackData, error)
	ReadTrackByArtistAndTitle(ctx context.Context, artist, title string) (models.TrackData, error)
	ReadAllTracks(ctx context.Context) ([]models.TrackData, error)
	DeleteTrack(ctx context.Context, ref models.Reference) (int, error)
	ParseReference(id string) (models.Reference, error)
	Close() error
}

type backend struct {
	name    string
	open    func(t *testing.T) store
	missing models.Reference // well-typed reference that is never stored
}

func backends() []backend {
	return []backend{
		{
			name: "memory",
			open: func(t *testing.T) store {
				s := NewMemoryStorage()
				t.Cleanup(func() { s.Close() })
				return s
			},
			missing: models.NewReference(uint32(999)),
		},
		{
			name: "sqlite",
			open: func(t *testing.T) store {
				return setupTestDB(t)
			},
			missing: models.NewReference(uuid.New()),
		},
	}
}

// Helper function to create a temporary test database
func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test_soundmatch.sqlite3")
	s, err := NewSQLiteStorageWithPath(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test storage: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func queryConfig(threshold int) models.QueryConfiguration {
	cfg := models.DefaultQueryConfiguration()
	cfg.ThresholdVotes = threshold
	return cfg
}

func hashed(seq int, bins ...int64) models.HashedFingerprint {
	return models.HashedFingerprint{HashBins: bins, SequenceNumber: seq, StartsAt: float64(seq) * 0.5}
}

func mustInsert(t *testing.T, s store, info models.TrackInfo, fps ...models.HashedFingerprint) models.TrackData {
	t.Helper()
	ctx := context.Background()

	track, err := s.InsertTrack(ctx, info)
	if err != nil {
		t.Fatalf("InsertTrack: %v", err)
	}
	if err := s.InsertHashDataForTrack(ctx, fps, track.Reference); err != nil {
		t.Fatalf("InsertHashDataForTrack: %v", err)
	}
	return track
}

func TestInsertAndReadTrack(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			ctx := context.Background()

			track := mustInsert(t, s, models.TrackInfo{Title: "Test Song", Artist: "Test Artist", ISRC: "USRC17607839", Length: 180})
			if models.IsNullReference(track.Reference) {
				t.Fatal("Expected non-null track reference")
			}

			got, err := s.ReadTrackByReference(ctx, track.Reference)
			if err != nil {
				t.Fatalf("ReadTrackByReference: %v", err)
			}
			if got != track {
				t.Errorf("Expected %+v, got %+v", track, got)
			}

			byISRC, err := s.ReadTrackByISRC(ctx, "USRC17607839")
			if err != nil {
				t.Fatalf("ReadTrackByISRC: %v", err)
			}
			if byISRC.Reference != track.Reference {
				t.Errorf("Expected reference %v, got %v", track.Reference, byISRC.Reference)
			}
			if byISRC.Length != 180 {
				t.Errorf("Expected length 180, got %v", byISRC.Length)
			}

			if _, err := s.ReadTrackByISRC(ctx, "missing"); !errors.Is(err, ErrTrackNotFound) {
				t.Errorf("Expected ErrTrackNotFound, got %v", err)
			}
			if _, err := s.ReadTrackByReference(ctx, b.missing); !errors.Is(err, ErrTrackNotFound) {
				t.Errorf("Expected ErrTrackNotFound, got %v", err)
			}
		})
	}
}

func TestContainsTrack(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			ctx := context.Background()
			mustInsert(t, s, models.TrackInfo{Title: "Song", Artist: "Artist", ISRC: "ISRC1"})

			tests := []struct {
				name string
				info models.TrackInfo
				want bool
			}{
				{"same isrc", models.TrackInfo{Title: "Other", ISRC: "ISRC1"}, true},
				{"other isrc", models.TrackInfo{Title: "Song", Artist: "Artist", ISRC: "ISRC2"}, false},
				{"same title and artist", models.TrackInfo{Title: "Song", Artist: "Artist"}, true},
				{"other artist", models.TrackInfo{Title: "Song", Artist: "Someone"}, false},
			}
			for _, tt := range tests {
				got, err := s.ContainsTrack(ctx, tt.info)
				if err != nil {
					t.Fatalf("%s: ContainsTrack: %v", tt.name, err)
				}
				if got != tt.want {
					t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
				}
			}
		})
	}
}

func TestReadTrackByArtistAndTitle(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			ctx := context.Background()
			first := mustInsert(t, s, models.TrackInfo{Title: "Song", Artist: "Artist", ISRC: "ISRC1"})
			mustInsert(t, s, models.TrackInfo{Title: "Song", Artist: "Artist", ISRC: "ISRC2"})
			other := mustInsert(t, s, models.TrackInfo{Title: "Song", Artist: "Someone"})

			got, err := s.ReadTrackByArtistAndTitle(ctx, "Artist", "Song")
			if err != nil {
				t.Fatalf("ReadTrackByArtistAndTitle: %v", err)
			}
			if got.Reference != first.Reference {
				t.Errorf("Expected earliest track %v, got %v", first.Reference, got.Reference)
			}

			got, err = s.ReadTrackByArtistAndTitle(ctx, "Someone", "Song")
			if err != nil {
				t.Fatalf("ReadTrackByArtistAndTitle: %v", err)
			}
			if got.Reference != other.Reference {
				t.Errorf("Expected %v, got %v", other.Reference, got.Reference)
			}

			if _, err := s.ReadTrackByArtistAndTitle(ctx, "Song", "Artist"); !errors.Is(err, ErrTrackNotFound) {
				t.Errorf("Expected ErrTrackNotFound, got %v", err)
			}
		})
	}
}

func TestReadSubFingerprintsThreshold(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			ctx := context.Background()
			track := mustInsert(t, s, models.TrackInfo{Title: "A"},
				hashed(0, 1, 2, 3, 4),
				hashed(1, 1, 2, 9, 9),
			)

			resp, err := s.ReadSubFingerprints(ctx, []int64{1, 2, 3, 5}, queryConfig(3))
			if err != nil {
				t.Fatalf("ReadSubFingerprints: %v", err)
			}
			if len(resp.SubFingerprints) != 1 {
				t.Fatalf("Expected 1 candidate at threshold 3, got %d", len(resp.SubFingerprints))
			}
			sub := resp.SubFingerprints[0]
			if sub.SequenceNumber != 0 || sub.SequenceAt != 0 {
				t.Errorf("Expected first sub-fingerprint, got sequence %d at %v", sub.SequenceNumber, sub.SequenceAt)
			}
			if sub.TrackReference != track.Reference {
				t.Errorf("Expected track %v, got %v", track.Reference, sub.TrackReference)
			}
			if want := []int64{1, 2, 3, 4}; !equalBins(sub.Hashes, want) {
				t.Errorf("Expected hashes %v, got %v", want, sub.Hashes)
			}

			resp, err = s.ReadSubFingerprints(ctx, []int64{1, 2, 3, 5}, queryConfig(2))
			if err != nil {
				t.Fatalf("ReadSubFingerprints: %v", err)
			}
			if len(resp.SubFingerprints) != 2 {
				t.Fatalf("Expected 2 candidates at threshold 2, got %d", len(resp.SubFingerprints))
			}
			if resp.SubFingerprints[1].SequenceNumber != 1 || resp.SubFingerprints[1].SequenceAt != 0.5 {
				t.Errorf("Expected insertion order, got %+v", resp.SubFingerprints)
			}
		})
	}
}

func TestReadSubFingerprintsMatchesPerTable(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			mustInsert(t, s, models.TrackInfo{Title: "A"}, hashed(0, 1, 2, 3, 4))

			// Same keys, different tables.
			resp, err := s.ReadSubFingerprints(context.Background(), []int64{3, 4, 1, 2}, queryConfig(1))
			if err != nil {
				t.Fatalf("ReadSubFingerprints: %v", err)
			}
			if len(resp.SubFingerprints) != 0 {
				t.Errorf("Expected no candidates, got %d", len(resp.SubFingerprints))
			}

			resp, err = s.ReadSubFingerprints(context.Background(), nil, queryConfig(1))
			if err != nil {
				t.Fatalf("ReadSubFingerprints with no bins: %v", err)
			}
			if len(resp.SubFingerprints) != 0 {
				t.Errorf("Expected no candidates for empty query, got %d", len(resp.SubFingerprints))
			}
		})
	}
}

func TestReadTracksByReferences(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			ctx := context.Background()
			a := mustInsert(t, s, models.TrackInfo{Title: "A"})
			c := mustInsert(t, s, models.TrackInfo{Title: "C"})

			got, err := s.ReadTracksByReferences(ctx, []models.Reference{
				a.Reference, b.missing, models.NewReference("foreign"), c.Reference,
			})
			if err != nil {
				t.Fatalf("ReadTracksByReferences: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("Expected 2 tracks, got %d", len(got))
			}
			titles := map[string]bool{got[0].Title: true, got[1].Title: true}
			if !titles["A"] || !titles["C"] {
				t.Errorf("Expected tracks A and C, got %+v", got)
			}

			all, err := s.ReadAllTracks(ctx)
			if err != nil {
				t.Fatalf("ReadAllTracks: %v", err)
			}
			if len(all) != 2 {
				t.Errorf("Expected 2 stored tracks, got %d", len(all))
			}

			empty, err := s.ReadTracksByReferences(ctx, nil)
			if err != nil || len(empty) != 0 {
				t.Errorf("Expected no tracks and no error, got %v, %v", empty, err)
			}
		})
	}
}

func TestDeleteTrack(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			ctx := context.Background()
			gone := mustInsert(t, s, models.TrackInfo{Title: "Gone"}, hashed(0, 1, 2), hashed(1, 1, 3))
			kept := mustInsert(t, s, models.TrackInfo{Title: "Kept"}, hashed(0, 1, 2))

			removed, err := s.DeleteTrack(ctx, gone.Reference)
			if err != nil {
				t.Fatalf("DeleteTrack: %v", err)
			}
			if removed != 2 {
				t.Errorf("Expected 2 sub-fingerprints removed, got %d", removed)
			}

			if _, err := s.ReadTrackByReference(ctx, gone.Reference); !errors.Is(err, ErrTrackNotFound) {
				t.Errorf("Expected ErrTrackNotFound after delete, got %v", err)
			}

			resp, err := s.ReadSubFingerprints(ctx, []int64{1, 2}, queryConfig(1))
			if err != nil {
				t.Fatalf("ReadSubFingerprints: %v", err)
			}
			if len(resp.SubFingerprints) != 1 || resp.SubFingerprints[0].TrackReference != kept.Reference {
				t.Errorf("Expected only the kept track's sub-fingerprint, got %+v", resp.SubFingerprints)
			}

			if _, err := s.DeleteTrack(ctx, gone.Reference); !errors.Is(err, ErrTrackNotFound) {
				t.Errorf("Expected ErrTrackNotFound on second delete, got %v", err)
			}
		})
	}
}

func TestForeignReferenceRejected(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			ctx := context.Background()
			foreign := models.NewReference("not-an-id-of-this-store")

			if _, err := s.ReadTrackByReference(ctx, foreign); !errors.Is(err, ErrInvalidReference) {
				t.Errorf("ReadTrackByReference: expected ErrInvalidReference, got %v", err)
			}
			if err := s.InsertHashDataForTrack(ctx, []models.HashedFingerprint{hashed(0, 1)}, foreign); !errors.Is(err, ErrInvalidReference) {
				t.Errorf("InsertHashDataForTrack: expected ErrInvalidReference, got %v", err)
			}
			if _, err := s.DeleteTrack(ctx, nil); !errors.Is(err, ErrInvalidReference) {
				t.Errorf("DeleteTrack: expected ErrInvalidReference, got %v", err)
			}
		})
	}
}

// TestNewSQLiteStorageFromEnv tests database creation at the path named by the environment
func TestNewSQLiteStorageFromEnv(t *testing.T) {
	customPath := filepath.Join(t.TempDir(), "subdir", "custom.db")
	t.Setenv(DBPathEnv, customPath)

	s, err := NewSQLiteStorage()
	if err != nil {
		t.Fatalf("Failed to create DB with custom path: %v", err)
	}
	defer s.Close()

	if s.DB == nil || s.db == nil {
		t.Fatal("Expected non-nil database handles")
	}
	if _, err := os.Stat(customPath); os.IsNotExist(err) {
		t.Errorf("Database file was not created at custom path %s", customPath)
	}
}

func TestMemoryStorageClosed(t *testing.T) {
	s := NewMemoryStorage()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := s.InsertTrack(context.Background(), models.TrackInfo{Title: "late"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func equalBins(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestParseReferenceRoundTrip(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			track := mustInsert(t, s, models.TrackInfo{Title: "Song", Artist: "Artist"})

			ref, err := s.ParseReference(track.Reference.String())
			if err != nil {
				t.Fatalf("ParseReference(%q): %v", track.Reference, err)
			}
			if ref != track.Reference {
				t.Errorf("ParseReference(%q) = %v", track.Reference, ref)
			}

			for _, bad := range []string{"", "0", "not-an-id", uuid.Nil.String()} {
				if _, err := s.ParseReference(bad); !errors.Is(err, ErrInvalidReference) {
					t.Errorf("ParseReference(%q) error = %v, want ErrInvalidReference", bad, err)
				}
			}
		})
	}
}
