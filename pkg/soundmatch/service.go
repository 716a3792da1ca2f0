package soundmatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/himanishpuri/soundmatch/pkg/logger"
	"github.com/himanishpuri/soundmatch/pkg/models"
	"github.com/himanishpuri/soundmatch/pkg/soundmatch/fingerprint"
	"github.com/himanishpuri/soundmatch/pkg/soundmatch/query"
	"github.com/himanishpuri/soundmatch/pkg/soundmatch/storage"
)

var ErrTrackExists = errors.New("track already exists")

// lookupConcurrency bounds the bucket lookups running at once for one query.
const lookupConcurrency = 8

// matchService is the default implementation of the Service interface.
type matchService struct {
	storage Storage
	log     Logger
	config  *Config
	hasher  *fingerprint.Hasher
	math    *query.Math
	metrics *metrics
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Fingerprint.Validate(); err != nil {
		return nil, fmt.Errorf("fingerprint config: %w", err)
	}
	if err := cfg.Query.Validate(); err != nil {
		return nil, fmt.Errorf("query config: %w", err)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger().With("[soundmatch]")
	}

	hasher, err := fingerprint.NewHasher(cfg.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("creating hasher: %w", err)
	}

	m, err := newMetrics(cfg.Registerer)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	coverage := cfg.Coverage
	if coverage == nil {
		coverage = query.NewLongestAlignmentCoverage(cfg.Query.PermittedGap)
	}

	var stor Storage
	if cfg.Storage != nil {
		stor = cfg.Storage
	} else {
		stor, err = storage.NewSQLiteStorageWithPath(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
	}

	return &matchService{
		storage: stor,
		log:     cfg.Logger,
		config:  cfg,
		hasher:  hasher,
		math:    query.NewMath(coverage, cfg.Confidence),
		metrics: m,
	}, nil
}

// InsertTrack hashes the fingerprints of a track and stores both. A track
// that is already stored (same ISRC, or same title and artist) is refused
// with ErrTrackExists. If the hashes cannot be stored the track is removed
// again.
func (s *matchService) InsertTrack(ctx context.Context, info models.TrackInfo, fingerprints []models.Fingerprint) (models.TrackData, error) {
	s.log.Infof("Inserting track: %s by %s (%d fingerprints)", info.Title, info.Artist, len(fingerprints))

	exists, err := s.storage.ContainsTrack(ctx, info)
	if err != nil {
		return models.TrackData{}, fmt.Errorf("checking existing track: %w", err)
	}
	if exists {
		return models.TrackData{}, fmt.Errorf("%w: %s by %s", ErrTrackExists, info.Title, info.Artist)
	}

	hashed, err := s.hasher.HashAll(ctx, fingerprints)
	if err != nil {
		return models.TrackData{}, err
	}

	if info.Length <= 0 {
		info.Length = trackLength(fingerprints, s.config.Fingerprint)
	}

	track, err := s.storage.InsertTrack(ctx, info)
	if err != nil {
		return models.TrackData{}, fmt.Errorf("failed to insert track: %w", err)
	}

	if err := s.storage.InsertHashDataForTrack(ctx, hashed, track.Reference); err != nil {
		if _, rbErr := s.storage.DeleteTrack(context.WithoutCancel(ctx), track.Reference); rbErr != nil {
			s.log.Errorf("Rollback of track %s failed: %v", track.Reference, rbErr)
		}
		return models.TrackData{}, fmt.Errorf("failed to store hashes: %w", err)
	}

	s.log.Infof("Successfully inserted track %s", track.Reference)
	return track, nil
}

// Query matches a batch of query fingerprints against the stored tracks.
// No fingerprints, or no candidate passing the vote, give an empty result.
func (s *matchService) Query(ctx context.Context, fingerprints []models.Fingerprint) (query.QueryResult, error) {
	start := time.Now()
	result, err := s.query(ctx, fingerprints)
	elapsed := time.Since(start)

	s.metrics.QueryDurationSeconds.Observe(elapsed.Seconds())
	if err != nil {
		s.metrics.QueriesTotal.WithLabelValues("error").Inc()
		return query.QueryResult{}, err
	}
	s.metrics.QueriesTotal.WithLabelValues("success").Inc()

	result.Stats.QueryDuration = elapsed
	return result, nil
}

func (s *matchService) query(ctx context.Context, fingerprints []models.Fingerprint) (query.QueryResult, error) {
	if len(fingerprints) == 0 {
		return query.EmptyResult(), nil
	}

	hashed, err := s.hasher.HashAll(ctx, fingerprints)
	if err != nil {
		return query.QueryResult{}, err
	}

	responses, err := s.lookup(ctx, hashed)
	if err != nil {
		return query.QueryResult{}, err
	}

	threshold := s.config.Query.ThresholdVotes
	keysPerTable := s.config.Fingerprint.NumberOfHashKeysPerTable
	accumulators := query.NewAccumulators()
	analyzed, voted := 0, 0
	for i, hf := range hashed {
		for _, candidate := range responses[i].SubFingerprints {
			analyzed++
			if len(candidate.Hashes) != len(hf.HashBins) {
				s.log.Warnf("Skipping sub-fingerprint %v of track %v: %d hash bins, expected %d",
					candidate.Reference, candidate.TrackReference, len(candidate.Hashes), len(hf.HashBins))
				continue
			}
			if !query.IsCandidatePassingThresholdVotes(hf, candidate, threshold) {
				continue
			}
			voted++
			similarity := fingerprint.HammingSimilarity(hf.HashBins, candidate.Hashes, keysPerTable)
			accumulators.Add(candidate.TrackReference, hf, candidate, similarity)
		}
	}
	s.metrics.CandidatesVotedTotal.Add(float64(voted))
	s.log.Debugf("Query of %d fingerprints: %d candidates analyzed, %d voted, %d tracks",
		len(hashed), analyzed, voted, accumulators.Len())

	entries, err := s.math.GetBestCandidates(ctx, hashed, accumulators, s.config.Query.MaxTracksToReturn, s.storage, s.config.Fingerprint)
	if err != nil {
		return query.QueryResult{}, err
	}
	return query.NewQueryResult(entries, accumulators.Len(), analyzed), nil
}

// lookup reads the candidates of every hashed fingerprint. Lookups run
// concurrently; responses[i] belongs to hashed[i].
func (s *matchService) lookup(ctx context.Context, hashed []models.HashedFingerprint) ([]models.FingerprintsQueryResponse, error) {
	responses := make([]models.FingerprintsQueryResponse, len(hashed))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	for i := range hashed {
		g.Go(func() error {
			resp, err := s.storage.ReadSubFingerprints(gCtx, hashed[i].HashBins, s.config.Query)
			if err != nil {
				return err
			}
			responses[i] = resp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reading candidates: %w", err)
	}
	return responses, nil
}

func (s *matchService) ReadTrack(ctx context.Context, ref models.Reference) (models.TrackData, error) {
	return s.storage.ReadTrackByReference(ctx, ref)
}

func (s *matchService) ReadTrackByISRC(ctx context.Context, isrc string) (models.TrackData, error) {
	return s.storage.ReadTrackByISRC(ctx, isrc)
}

func (s *matchService) ReadTrackByArtistAndTitle(ctx context.Context, artist, title string) (models.TrackData, error) {
	return s.storage.ReadTrackByArtistAndTitle(ctx, artist, title)
}

func (s *matchService) ListTracks(ctx context.Context) ([]models.TrackData, error) {
	return s.storage.ReadAllTracks(ctx)
}

func (s *matchService) DeleteTrack(ctx context.Context, ref models.Reference) error {
	removed, err := s.storage.DeleteTrack(ctx, ref)
	if err != nil {
		return err
	}
	s.log.Infof("Deleted track %s and %d sub-fingerprints", ref, removed)
	return nil
}

func (s *matchService) ParseTrackReference(id string) (models.Reference, error) {
	return s.storage.ParseReference(id)
}

func (s *matchService) Close() error {
	return s.storage.Close()
}

// trackLength is the audio covered by the fingerprints, from the first start
// to the end of the last fingerprint.
func trackLength(fingerprints []models.Fingerprint, cfg models.FingerprintConfiguration) float64 {
	if len(fingerprints) == 0 {
		return 0
	}
	first, last := fingerprints[0].StartsAt, fingerprints[0].StartsAt
	for _, fp := range fingerprints[1:] {
		first = min(first, fp.StartsAt)
		last = max(last, fp.StartsAt)
	}
	return cfg.AdjustLengthToSeconds(last, first)
}
