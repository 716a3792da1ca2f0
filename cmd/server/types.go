package main

import (
	"fmt"

	"github.com/himanishpuri/soundmatch/pkg/models"
	"github.com/himanishpuri/soundmatch/pkg/soundmatch/query"
)

// Request limits
const (
	// MaxFingerprints is the largest batch accepted by one request (~10 minutes
	// of audio at the default stride)
	MaxFingerprints = 6500

	// FingerprintWarningThreshold triggers logging for large batches
	FingerprintWarningThreshold = 2000

	maxBodyBytes = 64 << 20
)

// FingerprintDTO is one fingerprint in JSON requests. Vector is a string of
// '0' and '1' characters.
type FingerprintDTO struct {
	StartsAt       float64 `json:"starts_at"`
	SequenceNumber int     `json:"sequence_number"`
	Vector         string  `json:"vector"`
}

func (f FingerprintDTO) toFingerprint() (models.Fingerprint, error) {
	vector := make([]bool, len(f.Vector))
	for i, c := range f.Vector {
		switch c {
		case '0':
		case '1':
			vector[i] = true
		default:
			return models.Fingerprint{}, fmt.Errorf("fingerprint %d: invalid vector character %q", f.SequenceNumber, c)
		}
	}
	return models.Fingerprint{Vector: vector, StartsAt: f.StartsAt, SequenceNumber: f.SequenceNumber}, nil
}

func toFingerprints(dtos []FingerprintDTO) ([]models.Fingerprint, error) {
	if len(dtos) > MaxFingerprints {
		return nil, fmt.Errorf("too many fingerprints: %d (maximum: %d)", len(dtos), MaxFingerprints)
	}
	fps := make([]models.Fingerprint, len(dtos))
	for i, dto := range dtos {
		fp, err := dto.toFingerprint()
		if err != nil {
			return nil, err
		}
		fps[i] = fp
	}
	return fps, nil
}

// InsertTrackRequest is the JSON body for POST /api/tracks
type InsertTrackRequest struct {
	ID           string           `json:"id,omitempty"`
	Title        string           `json:"title"`
	Artist       string           `json:"artist"`
	ISRC         string           `json:"isrc,omitempty"`
	Length       float64          `json:"length,omitempty"`
	Fingerprints []FingerprintDTO `json:"fingerprints"`
}

// Validate checks if the request is valid
func (r *InsertTrackRequest) Validate() error {
	if r.Title == "" || r.Artist == "" {
		return fmt.Errorf("title and artist are required")
	}
	if len(r.Fingerprints) == 0 {
		return fmt.Errorf("fingerprints cannot be empty")
	}
	return nil
}

func (r *InsertTrackRequest) trackInfo() models.TrackInfo {
	return models.TrackInfo{ID: r.ID, Title: r.Title, Artist: r.Artist, ISRC: r.ISRC, Length: r.Length}
}

// QueryRequest is the JSON body for POST /api/query and for session chunks.
// Length is the chunk duration in seconds and only matters for sessions.
type QueryRequest struct {
	Length       float64          `json:"length,omitempty"`
	Fingerprints []FingerprintDTO `json:"fingerprints"`
}

// TrackDTO represents a track in API responses
type TrackDTO struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Artist string  `json:"artist"`
	ISRC   string  `json:"isrc,omitempty"`
	Length float64 `json:"length"`
}

func newTrackDTO(t models.TrackData) TrackDTO {
	return TrackDTO{
		ID:     t.Reference.String(),
		Title:  t.Title,
		Artist: t.Artist,
		ISRC:   t.ISRC,
		Length: t.Length,
	}
}

// ListTracksResponse is the response for GET /api/tracks
type ListTracksResponse struct {
	Tracks []TrackDTO `json:"tracks"`
	Count  int        `json:"count"`
}

// MatchDTO represents a single scored match
type MatchDTO struct {
	Track               TrackDTO `json:"track"`
	Confidence          float64  `json:"confidence"`
	Consistency         float64  `json:"consistency"`
	QueryMatchStartsAt  float64  `json:"query_match_starts_at"`
	QueryMatchLength    float64  `json:"query_match_length"`
	QueryCoverageLength float64  `json:"query_coverage_length"`
	TrackMatchStartsAt  float64  `json:"track_match_starts_at"`
	TrackStartsAt       float64  `json:"track_starts_at"`
	QueryLength         float64  `json:"query_length"`
	HammingSimilarity   int      `json:"hamming_similarity"`
}

func newMatchDTOs(entries []query.ResultEntry) []MatchDTO {
	dtos := make([]MatchDTO, len(entries))
	for i, e := range entries {
		dtos[i] = MatchDTO{
			Track:               newTrackDTO(e.Track),
			Confidence:          e.Confidence,
			Consistency:         e.Consistency,
			QueryMatchStartsAt:  e.QueryMatchStartsAt,
			QueryMatchLength:    e.QueryMatchLength,
			QueryCoverageLength: e.QueryCoverageLength,
			TrackMatchStartsAt:  e.TrackMatchStartsAt,
			TrackStartsAt:       e.TrackStartsAt,
			QueryLength:         e.QueryLength,
			HammingSimilarity:   e.HammingSimilaritySum,
		}
	}
	return dtos
}

// QueryResponse is the response for POST /api/query
type QueryResponse struct {
	Matches             []MatchDTO `json:"matches"`
	Count               int        `json:"count"`
	TracksAnalyzed      int        `json:"tracks_analyzed"`
	CandidatesAnalyzed  int        `json:"candidates_analyzed"`
	QueryDurationMillis int64      `json:"query_duration_ms"`
}

func newQueryResponse(result query.QueryResult) QueryResponse {
	matches := newMatchDTOs(result.ResultEntries)
	return QueryResponse{
		Matches:             matches,
		Count:               len(matches),
		TracksAnalyzed:      result.Stats.TotalTracksAnalyzed,
		CandidatesAnalyzed:  result.Stats.TotalFingerprintsAnalyzed,
		QueryDurationMillis: result.Stats.QueryDuration.Milliseconds(),
	}
}

// SessionResponse is returned when a realtime session is opened
type SessionResponse struct {
	ID string `json:"id"`
}

// RealtimeResponse carries the matches finalized by a chunk or by closing a
// session
type RealtimeResponse struct {
	Matches  []MatchDTO `json:"matches"`
	Rejected []MatchDTO `json:"rejected"`
	Pending  int        `json:"pending"`
}

func newRealtimeResponse(result query.RealtimeQueryResult, pending int) RealtimeResponse {
	return RealtimeResponse{
		Matches:  newMatchDTOs(result.ResultEntries),
		Rejected: newMatchDTOs(result.Rejected),
		Pending:  pending,
	}
}

// DeleteTrackResponse is the response for DELETE /api/tracks/{id}
type DeleteTrackResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
