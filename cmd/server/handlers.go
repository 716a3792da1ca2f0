package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/himanishpuri/soundmatch/pkg/logger"
	"github.com/himanishpuri/soundmatch/pkg/models"
	"github.com/himanishpuri/soundmatch/pkg/soundmatch"
	"github.com/himanishpuri/soundmatch/pkg/soundmatch/fingerprint"
	"github.com/himanishpuri/soundmatch/pkg/soundmatch/fpfile"
	"github.com/himanishpuri/soundmatch/pkg/soundmatch/storage"
)

const msgpackContentType = "application/msgpack"

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service  soundmatch.Service
	config   *ServerConfig
	log      soundmatch.Logger
	sessions *sessionStore
	metrics  http.Handler
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	DBPath         string
	Memory         bool
	AllowedOrigins []string
	// SessionIdle closes realtime sessions that received no chunk for this long
	SessionIdle time.Duration
}

// NewServer creates a new server instance. metrics serves /metrics and may be
// nil.
func NewServer(service soundmatch.Service, config *ServerConfig, metrics http.Handler) *Server {
	return &Server{
		service:  service,
		config:   config,
		log:      logger.GetLogger().With("[server]"),
		sessions: newSessionStore(),
		metrics:  metrics,
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "soundmatch API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":       "GET /health",
			"metrics":      "GET /metrics",
			"tracks":       "GET /api/tracks",
			"insertTrack":  "POST /api/tracks",
			"getTrack":     "GET /api/tracks/{id}",
			"deleteTrack":  "DELETE /api/tracks/{id}",
			"query":        "POST /api/query",
			"openSession":  "POST /api/sessions",
			"sendChunk":    "POST /api/sessions/{id}/chunks",
			"closeSession": "DELETE /api/sessions/{id}",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"time":     time.Now().Format(time.RFC3339),
		"sessions": s.sessions.Len(),
	})
}

// handleListTracks handles GET /api/tracks
func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.service.ListTracks(r.Context())
	if err != nil {
		s.log.Errorf("Failed to list tracks: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve tracks")
		return
	}

	dtos := make([]TrackDTO, len(tracks))
	for i, track := range tracks {
		dtos[i] = newTrackDTO(track)
	}

	s.respondJSON(w, http.StatusOK, ListTracksResponse{
		Tracks: dtos,
		Count:  len(dtos),
	})
}

// handleGetTrack handles GET /api/tracks/{id}
func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request, ref models.Reference) {
	track, err := s.service.ReadTrack(r.Context(), ref)
	if err != nil {
		s.respondTrackError(w, ref, err)
		return
	}
	s.respondJSON(w, http.StatusOK, newTrackDTO(track))
}

// handleDeleteTrack handles DELETE /api/tracks/{id}
func (s *Server) handleDeleteTrack(w http.ResponseWriter, r *http.Request, ref models.Reference) {
	if err := s.service.DeleteTrack(r.Context(), ref); err != nil {
		s.respondTrackError(w, ref, err)
		return
	}

	s.respondJSON(w, http.StatusOK, DeleteTrackResponse{
		Message: "Track deleted successfully",
		ID:      ref.String(),
	})
}

func (s *Server) respondTrackError(w http.ResponseWriter, ref models.Reference, err error) {
	if errors.Is(err, storage.ErrTrackNotFound) {
		s.log.Warnf("Track not found: %s", ref)
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Track with ID %s not found", ref))
		return
	}
	s.log.Errorf("Track %s: %v", ref, err)
	s.respondError(w, http.StatusInternalServerError, "Failed to access track")
}

// handleInsertTrack handles POST /api/tracks. The body is either a JSON
// InsertTrackRequest or a msgpack fingerprint file; for the latter, the
// title, artist and isrc query parameters override the file metadata.
func (s *Server) handleInsertTrack(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	var (
		info models.TrackInfo
		fps  []models.Fingerprint
	)

	if isMsgpack(r) {
		file, err := fpfile.Read(r.Body)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid fingerprint file: %v", err))
			return
		}
		info, fps = file.Track, file.Fingerprints
		q := r.URL.Query()
		if v := q.Get("title"); v != "" {
			info.Title = v
		}
		if v := q.Get("artist"); v != "" {
			info.Artist = v
		}
		if v := q.Get("isrc"); v != "" {
			info.ISRC = v
		}
		if info.Title == "" || info.Artist == "" {
			s.respondError(w, http.StatusBadRequest, "title and artist are required")
			return
		}
	} else {
		var req InsertTrackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if err := req.Validate(); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		var err error
		if fps, err = toFingerprints(req.Fingerprints); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		info = req.trackInfo()
	}

	track, err := s.service.InsertTrack(ctx, info, fps)
	switch {
	case errors.Is(err, soundmatch.ErrTrackExists):
		s.respondError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, fingerprint.ErrLengthMismatch):
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.log.Errorf("Failed to insert track: %v", err)
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to insert track: %v", err))
		return
	}

	s.respondJSON(w, http.StatusCreated, newTrackDTO(track))
}

// handleQuery handles POST /api/query
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	fps, _, ok := s.readFingerprints(w, r)
	if !ok {
		return
	}

	result, err := s.service.Query(ctx, fps)
	if err != nil {
		s.respondQueryError(w, err)
		return
	}

	s.log.Infof("Query complete: %d matches from %d fingerprints", len(result.ResultEntries), len(fps))
	s.respondJSON(w, http.StatusOK, newQueryResponse(result))
}

// handleOpenSession handles POST /api/sessions
func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	id := s.sessions.Open(s.service.NewRealtimeSession())
	s.log.Infof("Opened realtime session %s", id)
	s.respondJSON(w, http.StatusCreated, SessionResponse{ID: id})
}

// handleSessionChunk handles POST /api/sessions/{id}/chunks
func (s *Server) handleSessionChunk(w http.ResponseWriter, r *http.Request, id string) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	fps, length, ok := s.readFingerprints(w, r)
	if !ok {
		return
	}

	var (
		response RealtimeResponse
		err      error
	)
	found := s.sessions.Do(id, func(session *soundmatch.RealtimeSession) {
		result, qErr := session.Query(ctx, fps, length)
		if qErr != nil {
			err = qErr
			return
		}
		response = newRealtimeResponse(result, len(session.Pending()))
	})
	if !found {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Session %s not found", id))
		return
	}
	if err != nil {
		s.respondQueryError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

// handleCloseSession handles DELETE /api/sessions/{id}
func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request, id string) {
	session, ok := s.sessions.Remove(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Session %s not found", id))
		return
	}
	s.log.Infof("Closed realtime session %s", id)
	s.respondJSON(w, http.StatusOK, newRealtimeResponse(session.Close(), 0))
}

func (s *Server) respondQueryError(w http.ResponseWriter, err error) {
	if errors.Is(err, fingerprint.ErrLengthMismatch) {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.log.Errorf("Query failed: %v", err)
	s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Query failed: %v", err))
}

// readFingerprints decodes a query body, JSON or msgpack. The chunk length
// comes from the JSON body or the length query parameter.
func (s *Server) readFingerprints(w http.ResponseWriter, r *http.Request) ([]models.Fingerprint, float64, bool) {
	var (
		fps    []models.Fingerprint
		length float64
	)

	if isMsgpack(r) {
		file, err := fpfile.Read(r.Body)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid fingerprint file: %v", err))
			return nil, 0, false
		}
		fps = file.Fingerprints
		if v := r.URL.Query().Get("length"); v != "" {
			if length, err = strconv.ParseFloat(v, 64); err != nil {
				s.respondError(w, http.StatusBadRequest, "Invalid length")
				return nil, 0, false
			}
		}
	} else {
		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "Invalid request body")
			return nil, 0, false
		}
		var err error
		if fps, err = toFingerprints(req.Fingerprints); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return nil, 0, false
		}
		length = req.Length
	}

	if len(fps) > MaxFingerprints {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("too many fingerprints: %d (maximum: %d)", len(fps), MaxFingerprints))
		return nil, 0, false
	}
	if len(fps) >= FingerprintWarningThreshold {
		s.log.Warnf("Large fingerprint batch received: %d fingerprints", len(fps))
	}
	return fps, length, true
}

func isMsgpack(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), msgpackContentType)
}

// handleTracks routes requests to /api/tracks
func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListTracks(w, r)
	case http.MethodPost:
		s.handleInsertTrack(w, r)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleTrack routes requests to /api/tracks/{id}
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/tracks/")
	if id == "" {
		s.respondError(w, http.StatusBadRequest, "Track ID required")
		return
	}

	ref, err := s.service.ParseTrackReference(id)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid track ID")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetTrack(w, r, ref)
	case http.MethodDelete:
		s.handleDeleteTrack(w, r, ref)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleQueryRoute routes requests to /api/query
func (s *Server) handleQueryRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleQuery(w, r)
}

// handleSessions routes requests to /api/sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleOpenSession(w, r)
}

// handleSession routes requests to /api/sessions/{id} and
// /api/sessions/{id}/chunks
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		s.respondError(w, http.StatusBadRequest, "Session ID required")
		return
	}

	switch {
	case sub == "chunks" && r.Method == http.MethodPost:
		s.handleSessionChunk(w, r, id)
	case sub == "" && r.Method == http.MethodDelete:
		s.handleCloseSession(w, r, id)
	case sub == "" || sub == "chunks":
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	default:
		http.NotFound(w, r)
	}
}
