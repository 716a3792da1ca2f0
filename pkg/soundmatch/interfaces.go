package soundmatch

import (
	"context"

	"github.com/himanishpuri/soundmatch/pkg/models"
	"github.com/himanishpuri/soundmatch/pkg/soundmatch/query"
)

type Service interface {
	InsertTrack(ctx context.Context, info models.TrackInfo, fingerprints []models.Fingerprint) (models.TrackData, error)
	Query(ctx context.Context, fingerprints []models.Fingerprint) (query.QueryResult, error)
	NewRealtimeSession() *RealtimeSession
	ReadTrack(ctx context.Context, ref models.Reference) (models.TrackData, error)
	ReadTrackByISRC(ctx context.Context, isrc string) (models.TrackData, error)
	ReadTrackByArtistAndTitle(ctx context.Context, artist, title string) (models.TrackData, error)
	ListTracks(ctx context.Context) ([]models.TrackData, error)
	DeleteTrack(ctx context.Context, ref models.Reference) error
	// ParseTrackReference reads a track id as printed by TrackData.Reference.
	ParseTrackReference(id string) (models.Reference, error)
	Close() error
}

// Storage is implemented by storage.SQLiteStorage and storage.MemoryStorage.
type Storage interface {
	query.TrackReader

	InsertTrack(ctx context.Context, info models.TrackInfo) (models.TrackData, error)
	ContainsTrack(ctx context.Context, info models.TrackInfo) (bool, error)
	InsertHashDataForTrack(ctx context.Context, hashed []models.HashedFingerprint, track models.Reference) error
	ReadSubFingerprints(ctx context.Context, hashBins []int64, cfg models.QueryConfiguration) (models.FingerprintsQueryResponse, error)
	ReadTrackByReference(ctx context.Context, ref models.Reference) (models.TrackData, error)
	ReadTrackByISRC(ctx context.Context, isrc string) (models.TrackData, error)
	ReadTrackByArtistAndTitle(ctx context.Context, artist, title string) (models.TrackData, error)
	ReadAllTracks(ctx context.Context) ([]models.TrackData, error)
	DeleteTrack(ctx context.Context, ref models.Reference) (int, error)
	ParseReference(id string) (models.Reference, error)
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
