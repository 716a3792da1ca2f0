package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/himanishpuri/soundmatch/pkg/models"
)

type memoryTrack struct {
	data models.TrackData
	subs []uint32
}

// MemoryStorage keeps everything in process memory. References are
// ModelReference[uint32] drawn from per-store counters.
type MemoryStorage struct {
	mu        sync.RWMutex
	tracks    map[uint32]*memoryTrack
	order     []uint32
	subs      map[uint32]models.SubFingerprintData
	tables    []map[int64][]uint32 // table index -> bucket key -> sub-fingerprint ids
	nextTrack uint32
	nextSub   uint32
	closed    bool
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		tracks: make(map[uint32]*memoryTrack),
		subs:   make(map[uint32]models.SubFingerprintData),
	}
}

func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ------------------------ Tracks ------------------------

func (m *MemoryStorage) InsertTrack(ctx context.Context, info models.TrackInfo) (models.TrackData, error) {
	if err := ctx.Err(); err != nil {
		return models.TrackData{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return models.TrackData{}, ErrClosed
	}

	m.nextTrack++
	id := m.nextTrack
	data := models.TrackData{
		Reference: models.NewReference(id),
		Title:     info.Title,
		Artist:    info.Artist,
		ISRC:      info.ISRC,
		Length:    info.Length,
	}
	m.tracks[id] = &memoryTrack{data: data}
	m.order = append(m.order, id)
	return data, nil
}

func (m *MemoryStorage) ContainsTrack(ctx context.Context, info models.TrackInfo) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrClosed
	}

	for _, t := range m.tracks {
		if info.ISRC != "" {
			if t.data.ISRC == info.ISRC {
				return true, nil
			}
			continue
		}
		if t.data.Title == info.Title && t.data.Artist == info.Artist {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStorage) ReadTrackByReference(ctx context.Context, ref models.Reference) (models.TrackData, error) {
	if err := ctx.Err(); err != nil {
		return models.TrackData{}, err
	}
	id, err := memoryID(ref)
	if err != nil {
		return models.TrackData{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return models.TrackData{}, ErrClosed
	}
	t, ok := m.tracks[id]
	if !ok {
		return models.TrackData{}, fmt.Errorf("%w: %d", ErrTrackNotFound, id)
	}
	return t.data, nil
}

func (m *MemoryStorage) ReadTrackByISRC(ctx context.Context, isrc string) (models.TrackData, error) {
	if err := ctx.Err(); err != nil {
		return models.TrackData{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return models.TrackData{}, ErrClosed
	}

	for _, id := range m.order {
		if t := m.tracks[id]; t.data.ISRC == isrc {
			return t.data, nil
		}
	}
	return models.TrackData{}, fmt.Errorf("%w: %s", ErrTrackNotFound, isrc)
}

// ReadTrackByArtistAndTitle returns the earliest stored track with exactly
// this artist and title.
func (m *MemoryStorage) ReadTrackByArtistAndTitle(ctx context.Context, artist, title string) (models.TrackData, error) {
	if err := ctx.Err(); err != nil {
		return models.TrackData{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return models.TrackData{}, ErrClosed
	}

	for _, id := range m.order {
		if t := m.tracks[id]; t.data.Artist == artist && t.data.Title == title {
			return t.data, nil
		}
	}
	return models.TrackData{}, fmt.Errorf("%w: %s - %s", ErrTrackNotFound, artist, title)
}

// ReadTracksByReferences skips references that are not stored here.
func (m *MemoryStorage) ReadTracksByReferences(ctx context.Context, refs []models.Reference) ([]models.TrackData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	out := make([]models.TrackData, 0, len(refs))
	for _, ref := range refs {
		id, err := memoryID(ref)
		if err != nil {
			continue
		}
		if t, ok := m.tracks[id]; ok {
			out = append(out, t.data)
		}
	}
	return out, nil
}

func (m *MemoryStorage) ReadAllTracks(ctx context.Context) ([]models.TrackData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	out := make([]models.TrackData, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.tracks[id].data)
	}
	return out, nil
}

func (m *MemoryStorage) DeleteTrack(ctx context.Context, ref models.Reference) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	id, err := memoryID(ref)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	t, ok := m.tracks[id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrTrackNotFound, id)
	}

	for _, subID := range t.subs {
		for table, bucket := range m.subs[subID].Hashes {
			m.tables[table][bucket] = removeID(m.tables[table][bucket], subID)
			if len(m.tables[table][bucket]) == 0 {
				delete(m.tables[table], bucket)
			}
		}
		delete(m.subs, subID)
	}
	delete(m.tracks, id)
	for i, other := range m.order {
		if other == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return len(t.subs), nil
}

// ------------------------ Sub-fingerprints ------------------------

func (m *MemoryStorage) InsertHashDataForTrack(ctx context.Context, hashed []models.HashedFingerprint, track models.Reference) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, err := memoryID(track)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	t, ok := m.tracks[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrTrackNotFound, id)
	}

	for _, hf := range hashed {
		m.nextSub++
		subID := m.nextSub
		m.subs[subID] = models.SubFingerprintData{
			Hashes:         append([]int64(nil), hf.HashBins...),
			SequenceNumber: hf.SequenceNumber,
			SequenceAt:     hf.StartsAt,
			Reference:      models.NewReference(subID),
			TrackReference: t.data.Reference,
		}
		t.subs = append(t.subs, subID)

		for len(m.tables) < len(hf.HashBins) {
			m.tables = append(m.tables, make(map[int64][]uint32))
		}
		for table, bucket := range hf.HashBins {
			m.tables[table][bucket] = append(m.tables[table][bucket], subID)
		}
	}
	return nil
}

// ReadSubFingerprints returns the stored sub-fingerprints sharing at least
// cfg.ThresholdVotes buckets with hashBins, ordered by insertion.
func (m *MemoryStorage) ReadSubFingerprints(ctx context.Context, hashBins []int64, cfg models.QueryConfiguration) (models.FingerprintsQueryResponse, error) {
	if err := ctx.Err(); err != nil {
		return models.FingerprintsQueryResponse{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return models.FingerprintsQueryResponse{}, ErrClosed
	}

	votes := make(map[uint32]int)
	for table, bucket := range hashBins {
		if table >= len(m.tables) {
			break
		}
		for _, subID := range m.tables[table][bucket] {
			votes[subID]++
		}
	}

	threshold := minVotes(cfg)
	ids := make([]uint32, 0, len(votes))
	for subID, n := range votes {
		if n >= threshold {
			ids = append(ids, subID)
		}
	}
	if len(ids) == 0 {
		return models.FingerprintsQueryResponse{}, nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]models.SubFingerprintData, 0, len(ids))
	for _, subID := range ids {
		sub := m.subs[subID]
		sub.Hashes = append([]int64(nil), sub.Hashes...)
		out = append(out, sub)
	}
	return models.FingerprintsQueryResponse{SubFingerprints: out}, nil
}

// ParseReference reads a track id printed by this store.
func (m *MemoryStorage) ParseReference(id string) (models.Reference, error) {
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil || n == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReference, id)
	}
	return models.NewReference(uint32(n)), nil
}

func memoryID(ref models.Reference) (uint32, error) {
	r, ok := ref.(models.ModelReference[uint32])
	if !ok || r.IsNull() {
		return 0, invalidReference(ref)
	}
	return r.Value(), nil
}

func removeID(ids []uint32, id uint32) []uint32 {
	for i, other := range ids {
		if other == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
