package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/himanishpuri/soundmatch/pkg/models"
)

const DefaultDBFile = "soundmatch.sqlite3"

// DBPathEnv overrides DefaultDBFile for NewSQLiteStorage.
const DBPathEnv = "SOUNDMATCH_DB_PATH"

const insertBatchSize = 500

type SQLiteStorage struct {
	DB *gorm.DB
	db *sql.DB
}

type Track struct {
	ID         string `gorm:"primaryKey;type:varchar(36)"`
	ExternalID string `gorm:"index:idx_track_external_id"`
	Title      string `gorm:"index:idx_track_meta,priority:1"`
	Artist     string `gorm:"index:idx_track_meta,priority:2"`
	ISRC       string `gorm:"index:idx_track_isrc"`
	Length     float64
	CreatedAt  time.Time
}

type SubFingerprint struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	TrackID        string `gorm:"type:varchar(36);index:idx_sub_track"`
	SequenceNumber int
	SequenceAt     float64
	Hashes         []byte // msgpack-encoded []int64, one bucket key per table
}

type HashBin struct {
	ID               uint  `gorm:"primaryKey;autoIncrement"`
	SubFingerprintID uint  `gorm:"index:idx_bin_sub"`
	TableIndex       int   `gorm:"index:idx_bin_lookup,priority:1"`
	Bucket           int64 `gorm:"index:idx_bin_lookup,priority:2"`
}

// NewSQLiteStorage opens the database named by SOUNDMATCH_DB_PATH, falling
// back to DefaultDBFile in the working directory.
func NewSQLiteStorage() (*SQLiteStorage, error) {
	dbPath := os.Getenv(DBPathEnv)
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewSQLiteStorageWithPath(dbPath)
}

func NewSQLiteStorageWithPath(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Track{}, &SubFingerprint{}, &HashBin{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &SQLiteStorage{DB: db, db: sqlDB}, nil
}

func (s *SQLiteStorage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStorage) ready() error {
	if s == nil || s.DB == nil {
		return ErrClosed
	}
	return nil
}

// ------------------------ Tracks ------------------------

func (s *SQLiteStorage) InsertTrack(ctx context.Context, info models.TrackInfo) (models.TrackData, error) {
	if err := s.ready(); err != nil {
		return models.TrackData{}, err
	}

	row := Track{
		ID:         uuid.NewString(),
		ExternalID: info.ID,
		Title:      info.Title,
		Artist:     info.Artist,
		ISRC:       info.ISRC,
		Length:     info.Length,
	}
	if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return models.TrackData{}, fmt.Errorf("creating track: %w", err)
	}
	return row.toTrackData()
}

// ContainsTrack reports whether a track with the same ISRC, or with the same
// title and artist when no ISRC is given, is already stored.
func (s *SQLiteStorage) ContainsTrack(ctx context.Context, info models.TrackInfo) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}

	q := s.DB.WithContext(ctx).Model(&Track{})
	if info.ISRC != "" {
		q = q.Where("isrc = ?", info.ISRC)
	} else {
		q = q.Where("title = ? AND artist = ?", info.Title, info.Artist)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("checking existing track: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteStorage) ReadTrackByReference(ctx context.Context, ref models.Reference) (models.TrackData, error) {
	if err := s.ready(); err != nil {
		return models.TrackData{}, err
	}
	id, err := trackID(ref)
	if err != nil {
		return models.TrackData{}, err
	}
	return s.readOne(ctx, "id = ?", id.String())
}

func (s *SQLiteStorage) ReadTrackByISRC(ctx context.Context, isrc string) (models.TrackData, error) {
	if err := s.ready(); err != nil {
		return models.TrackData{}, err
	}
	return s.readOne(ctx, "isrc = ?", isrc)
}

// ReadTrackByArtistAndTitle returns the earliest stored track with exactly
// this artist and title.
func (s *SQLiteStorage) ReadTrackByArtistAndTitle(ctx context.Context, artist, title string) (models.TrackData, error) {
	if err := s.ready(); err != nil {
		return models.TrackData{}, err
	}
	return s.readOne(ctx, "artist = ? AND title = ?", artist, title)
}

func (s *SQLiteStorage) readOne(ctx context.Context, query string, args ...any) (models.TrackData, error) {
	var row Track
	err := s.DB.WithContext(ctx).Where(query, args...).Order("created_at").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.TrackData{}, fmt.Errorf("%w: %v", ErrTrackNotFound, args)
	}
	if err != nil {
		return models.TrackData{}, fmt.Errorf("querying track: %w", err)
	}
	return row.toTrackData()
}

// ReadTracksByReferences skips references that are not stored here.
func (s *SQLiteStorage) ReadTracksByReferences(ctx context.Context, refs []models.Reference) ([]models.TrackData, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return []models.TrackData{}, nil
	}

	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		if id, err := trackID(ref); err == nil {
			ids = append(ids, id.String())
		}
	}
	if len(ids) == 0 {
		return []models.TrackData{}, nil
	}

	var rows []Track
	if err := s.DB.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("batch querying tracks: %w", err)
	}
	return toTrackData(rows)
}

func (s *SQLiteStorage) ReadAllTracks(ctx context.Context) ([]models.TrackData, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var rows []Track
	if err := s.DB.WithContext(ctx).Order("created_at, title").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing tracks: %w", err)
	}
	return toTrackData(rows)
}

// DeleteTrack removes the track with its sub-fingerprints and hash bins and
// returns the number of sub-fingerprints removed.
func (s *SQLiteStorage) DeleteTrack(ctx context.Context, ref models.Reference) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	id, err := trackID(ref)
	if err != nil {
		return 0, err
	}

	var removed int64
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subIDs := tx.Model(&SubFingerprint{}).Select("id").Where("track_id = ?", id.String())
		if err := tx.Where("sub_fingerprint_id IN (?)", subIDs).Delete(&HashBin{}).Error; err != nil {
			return err
		}
		res := tx.Where("track_id = ?", id.String()).Delete(&SubFingerprint{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected

		res = tx.Where("id = ?", id.String()).Delete(&Track{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrTrackNotFound, id)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("deleting track: %w", err)
	}
	return int(removed), nil
}

// ------------------------ Sub-fingerprints ------------------------

// InsertHashDataForTrack stores the hashed fingerprints of a track and one
// hash bin row per table. Either everything is stored or nothing is.
func (s *SQLiteStorage) InsertHashDataForTrack(ctx context.Context, hashed []models.HashedFingerprint, track models.Reference) error {
	if err := s.ready(); err != nil {
		return err
	}
	id, err := trackID(track)
	if err != nil {
		return err
	}
	if len(hashed) == 0 {
		return nil
	}

	subs := make([]SubFingerprint, 0, len(hashed))
	for _, hf := range hashed {
		encoded, err := msgpack.Marshal(hf.HashBins)
		if err != nil {
			return fmt.Errorf("encoding hash bins: %w", err)
		}
		subs = append(subs, SubFingerprint{
			TrackID:        id.String(),
			SequenceNumber: hf.SequenceNumber,
			SequenceAt:     hf.StartsAt,
			Hashes:         encoded,
		})
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(&subs, insertBatchSize).Error; err != nil {
			return fmt.Errorf("batch insert sub-fingerprints: %w", err)
		}

		bins := make([]HashBin, 0, 1024)
		for i, sub := range subs {
			for table, bucket := range hashed[i].HashBins {
				bins = append(bins, HashBin{SubFingerprintID: sub.ID, TableIndex: table, Bucket: bucket})
			}
			if len(bins) >= 1000 {
				if err := tx.CreateInBatches(bins, insertBatchSize).Error; err != nil {
					return fmt.Errorf("batch insert hash bins: %w", err)
				}
				bins = bins[:0]
			}
		}
		if len(bins) > 0 {
			if err := tx.CreateInBatches(bins, insertBatchSize).Error; err != nil {
				return fmt.Errorf("batch insert last hash bins: %w", err)
			}
		}
		return nil
	})
}

// ReadSubFingerprints returns the stored sub-fingerprints sharing at least
// cfg.ThresholdVotes buckets (same table, same key) with hashBins.
func (s *SQLiteStorage) ReadSubFingerprints(ctx context.Context, hashBins []int64, cfg models.QueryConfiguration) (models.FingerprintsQueryResponse, error) {
	if err := s.ready(); err != nil {
		return models.FingerprintsQueryResponse{}, err
	}
	if len(hashBins) == 0 {
		return models.FingerprintsQueryResponse{}, nil
	}

	var where strings.Builder
	args := make([]any, 0, 2*len(hashBins))
	for table, bucket := range hashBins {
		if table > 0 {
			where.WriteString(" OR ")
		}
		where.WriteString("(table_index = ? AND bucket = ?)")
		args = append(args, table, bucket)
	}

	var ids []uint
	err := s.DB.WithContext(ctx).Model(&HashBin{}).
		Where(where.String(), args...).
		Group("sub_fingerprint_id").
		Having("COUNT(*) >= ?", minVotes(cfg)).
		Pluck("sub_fingerprint_id", &ids).Error
	if err != nil {
		return models.FingerprintsQueryResponse{}, fmt.Errorf("querying hash bins: %w", err)
	}
	if len(ids) == 0 {
		return models.FingerprintsQueryResponse{}, nil
	}

	var rows []SubFingerprint
	if err := s.DB.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&rows).Error; err != nil {
		return models.FingerprintsQueryResponse{}, fmt.Errorf("querying sub-fingerprints: %w", err)
	}

	out := make([]models.SubFingerprintData, 0, len(rows))
	for _, r := range rows {
		data, err := r.toSubFingerprintData()
		if err != nil {
			return models.FingerprintsQueryResponse{}, err
		}
		out = append(out, data)
	}
	return models.FingerprintsQueryResponse{SubFingerprints: out}, nil
}

// ------------------------ Conversions ------------------------

// ParseReference reads a track id printed by this store.
func (s *SQLiteStorage) ParseReference(id string) (models.Reference, error) {
	u, err := uuid.Parse(id)
	if err != nil || u == uuid.Nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReference, id)
	}
	return models.NewReference(u), nil
}

func trackID(ref models.Reference) (uuid.UUID, error) {
	r, ok := ref.(models.ModelReference[uuid.UUID])
	if !ok || r.IsNull() {
		return uuid.Nil, invalidReference(ref)
	}
	return r.Value(), nil
}

func (t Track) toTrackData() (models.TrackData, error) {
	id, err := uuid.Parse(t.ID)
	if err != nil {
		return models.TrackData{}, fmt.Errorf("parsing track id %q: %w", t.ID, err)
	}
	return models.TrackData{
		Reference: models.NewReference(id),
		Title:     t.Title,
		Artist:    t.Artist,
		ISRC:      t.ISRC,
		Length:    t.Length,
	}, nil
}

func toTrackData(rows []Track) ([]models.TrackData, error) {
	out := make([]models.TrackData, 0, len(rows))
	for _, r := range rows {
		t, err := r.toTrackData()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r SubFingerprint) toSubFingerprintData() (models.SubFingerprintData, error) {
	var hashes []int64
	if err := msgpack.Unmarshal(r.Hashes, &hashes); err != nil {
		return models.SubFingerprintData{}, fmt.Errorf("decoding hash bins of sub-fingerprint %d: %w", r.ID, err)
	}
	trackUUID, err := uuid.Parse(r.TrackID)
	if err != nil {
		return models.SubFingerprintData{}, fmt.Errorf("parsing track id %q: %w", r.TrackID, err)
	}
	return models.SubFingerprintData{
		Hashes:         hashes,
		SequenceNumber: r.SequenceNumber,
		SequenceAt:     r.SequenceAt,
		Reference:      models.NewReference(r.ID),
		TrackReference: models.NewReference(trackUUID),
	}, nil
}
