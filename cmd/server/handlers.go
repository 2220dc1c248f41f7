package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/himanishpuri/RhythmDNA/pkg/logger"
	"github.com/himanishpuri/RhythmDNA/pkg/rhythmdna"
	"github.com/himanishpuri/RhythmDNA/pkg/rhythmdna/audio"
	"github.com/himanishpuri/RhythmDNA/pkg/rhythmdna/storage"
	"github.com/himanishpuri/RhythmDNA/pkg/rhythmdna/timeline"
)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service rhythmdna.Service
	config  *ServerConfig
	log     rhythmdna.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	DBPath         string
	TempDir        string
	SampleRate     int
	AllowedOrigins []string
}

// NewServer creates a new server instance
func NewServer(service rhythmdna.Service, config *ServerConfig) *Server {
	return &Server{
		service: service,
		config:  config,
		log:     logger.Named("server"),
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

// isClientError reports whether err was caused by the request rather than the server.
func isClientError(err error) bool {
	for _, target := range []error{
		rhythmdna.ErrInvalidConfig,
		audio.ErrNotWAV,
		timeline.ErrInvalidTempo,
		timeline.ErrNoSegments,
		timeline.ErrInvalidTimeSignature,
		timeline.ErrInvalidSubdivision,
		timeline.ErrInvalidRepeat,
		timeline.ErrEmptyVoicing,
		timeline.ErrUnknownSymbol,
		timeline.ErrUnbalancedGroup,
		timeline.ErrInvalidGroup,
		timeline.ErrAnnotationLength,
		timeline.ErrEmptyTimeline,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "RhythmDNA API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":        "GET /health",
			"metrics":       "GET /api/health/metrics",
			"sessions":      "GET /api/sessions",
			"getSession":    "GET /api/sessions/{id}",
			"deleteSession": "DELETE /api/sessions/{id}",
			"sessionHits":   "GET /api/sessions/{id}/hits",
			"timeline":      "POST /api/timeline",
			"replay":        "POST /api/replay",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleMetrics handles GET /api/health/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats()
	if err != nil {
		s.log.Errorf("Failed to read stats: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve metrics")
		return
	}

	s.respondJSON(w, http.StatusOK, MetricsResponse{
		Status:         "healthy",
		DatabasePath:   s.config.DBPath,
		StoredSessions: stats.StoredSessions,
		ActiveSessions: stats.ActiveSessions,
		SampleRate:     stats.SampleRate,
	})
}

// handleSessions handles GET /api/sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	sessions, err := s.service.ListSessions()
	if err != nil {
		s.log.Errorf("Failed to list sessions: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve sessions")
		return
	}

	s.respondJSON(w, http.StatusOK, ListSessionsResponse{
		Sessions: sessions,
		Count:    len(sessions),
	})
}

// handleSession routes /api/sessions/{id} and /api/sessions/{id}/hits
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")
	id, sub, _ := strings.Cut(rest, "/")

	if _, err := uuid.Parse(id); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid session ID: %q", id))
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		s.handleGetSession(w, r, id)
	case sub == "" && r.Method == http.MethodDelete:
		s.handleDeleteSession(w, r, id)
	case sub == "hits" && r.Method == http.MethodGet:
		s.handleSessionHits(w, r, id)
	case sub == "" || sub == "hits":
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	default:
		http.NotFound(w, r)
	}
}

// handleGetSession handles GET /api/sessions/{id}
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, id string) {
	summary, err := s.service.GetSession(id)
	if err != nil {
		s.respondLookupError(w, id, err)
		return
	}
	s.respondJSON(w, http.StatusOK, summary)
}

// handleDeleteSession handles DELETE /api/sessions/{id}
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.service.DeleteSession(id); err != nil {
		s.respondLookupError(w, id, err)
		return
	}

	s.log.Infof("Deleted session %s", id)
	s.respondJSON(w, http.StatusOK, DeleteSessionResponse{
		Message: "Session deleted successfully",
		ID:      id,
	})
}

// handleSessionHits handles GET /api/sessions/{id}/hits
func (s *Server) handleSessionHits(w http.ResponseWriter, r *http.Request, id string) {
	hits, err := s.service.GetSessionHits(id)
	if err != nil {
		s.respondLookupError(w, id, err)
		return
	}

	s.respondJSON(w, http.StatusOK, SessionHitsResponse{
		SessionID: id,
		Hits:      hits,
		Count:     len(hits),
	})
}

func (s *Server) respondLookupError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, storage.ErrSessionNotFound) {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Session %s not found", id))
		return
	}
	s.log.Errorf("Session lookup %s failed: %v", id, err)
	s.respondError(w, http.StatusInternalServerError, "Failed to retrieve session")
}

// handleTimeline handles POST /api/timeline
func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req TimelineRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, MaxPatternBytes)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	mode, err := req.Validate()
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	tl, err := timeline.Build(req.Pattern, mode)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.log.Debugf("Built timeline %q: %d notes", tl.Name(), tl.Len())
	s.respondJSON(w, http.StatusOK, newTimelineResponse(tl))
}

// handleReplay handles POST /api/replay
//
// The multipart form carries the recording as "audio", the pattern JSON as
// "pattern", and optional session tuning fields.
func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	if err := r.ParseMultipartForm(MaxReplayUploadBytes); err != nil {
		s.log.Warnf("Failed to parse replay form: %v", err)
		s.respondError(w, http.StatusBadRequest, "Failed to parse multipart form")
		return
	}

	pattern, err := timeline.ParsePattern([]byte(r.FormValue("pattern")))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid pattern: %v", err))
		return
	}
	cfg, err := replayForm(r.FormValue)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	tempFile := filepath.Join(s.config.TempDir,
		fmt.Sprintf("replay_%d_%s", time.Now().UnixNano(), filepath.Base(header.Filename)))
	out, err := os.Create(tempFile)
	if err != nil {
		s.log.Errorf("Failed to create temp file: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to process upload")
		return
	}
	defer os.Remove(tempFile)

	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		s.log.Errorf("Failed to save upload: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to save uploaded file")
		return
	}
	out.Close()

	s.log.Infof("Replaying %s (%d bytes) against %q", header.Filename, header.Size, pattern.Name)
	summary, err := s.service.ReplayFile(ctx, tempFile, pattern, cfg)
	if err != nil {
		if isClientError(err) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Errorf("Replay failed: %v", err)
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Replay failed: %v", err))
		return
	}

	s.log.Infof("Replay scored %.1f%% (session %s)", summary.AccuracyPercent, summary.ID)
	s.respondJSON(w, http.StatusCreated, summary)
}
