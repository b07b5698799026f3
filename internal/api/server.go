package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"chatrelay/internal/rooms"
	"chatrelay/internal/router"
	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// StateSource answers read-only chat state queries
type StateSource interface {
	Snapshot(ctx context.Context) (router.Snapshot, error)
}

// Registry interface to avoid tight coupling to websocket.Registry implementation
type Registry interface {
	GetStats() map[string]int
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	state    StateSource
	archive  interfaces.Archiver
	registry Registry
	started  time.Time
	handler  http.Handler
}

// NewServer wires the read-only API; archive may be nil when archiving is disabled
func NewServer(state StateSource, archive interfaces.Archiver, registry Registry) *Server {
	s := &Server{
		state:    state,
		archive:  archive,
		registry: registry,
		started:  time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthCheck)
	mux.HandleFunc("GET /api/rooms", s.listRooms)
	mux.HandleFunc("GET /api/users", s.listUsers)
	mux.HandleFunc("GET /api/rooms/{name}/transcript", s.transcript)

	// FUNCTIONAL DISCOVERY: CORS wraps the mux so preflights never reach
	// method-restricted patterns
	s.handler = s.corsMiddleware(s.jsonMiddleware(mux))
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type HealthResponse struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Hub         string                 `json:"hub"`
	Archive     string                 `json:"archive"`
	Connections map[string]int         `json:"connections"`
	System      map[string]interface{} `json:"system"`
}

type RoomsResponse struct {
	Rooms []router.RoomSummary `json:"rooms"`
}

type UsersResponse struct {
	Users []types.Presence `json:"users"`
}

type TranscriptResponse struct {
	Room     string           `json:"room"`
	Messages []*types.Message `json:"messages"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// FUNCTIONAL DISCOVERY: GET /health - hub responsiveness and archive connectivity
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	hubStatus := "healthy"
	archiveStatus := "disabled"

	if _, err := s.state.Snapshot(ctx); err != nil {
		status = "unhealthy"
		hubStatus = fmt.Sprintf("error: %v", err)
	}
	if s.archive != nil {
		archiveStatus = "healthy"
		if err := s.archive.HealthCheck(ctx); err != nil {
			status = "unhealthy"
			archiveStatus = fmt.Sprintf("error: %v", err)
		}
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Hub:         hubStatus,
		Archive:     archiveStatus,
		Connections: s.registry.GetStats(),
		System: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"uptime":     time.Since(s.started).Round(time.Second).String(),
		},
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(response)
}

// GET /api/rooms
func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	_ = json.NewEncoder(w).Encode(RoomsResponse{Rooms: snap.Rooms})
}

// GET /api/users
func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	_ = json.NewEncoder(w).Encode(UsersResponse{Users: snap.Users})
}

// GET /api/rooms/{name}/transcript?limit=N
func (s *Server) transcript(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.sendError(w, "Archive is disabled", http.StatusServiceUnavailable)
		return
	}

	name, err := rooms.NormalizeName(r.PathValue("name"))
	if err != nil {
		s.sendError(w, "Invalid room name", http.StatusBadRequest)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			s.sendError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
	}

	messages, err := s.archive.Transcript(r.Context(), name, limit)
	if err != nil {
		s.sendError(w, "Failed to read transcript", http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(TranscriptResponse{Room: name, Messages: messages})
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) (router.Snapshot, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	snap, err := s.state.Snapshot(ctx)
	if err != nil {
		s.sendError(w, "Chat state unavailable", http.StatusServiceUnavailable)
		return router.Snapshot{}, false
	}
	return snap, true
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// ARCHITECTURAL DISCOVERY: CORS middleware enables web client access
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
