package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwbudde/circlepad/internal/store"
)

// Server represents the HTTP server
type Server struct {
	sessions *SessionManager
	addr     string
	server   *http.Server
}

// NewServer creates a new HTTP server. With a nil store, snapshots are
// unavailable and no update traces are written.
func NewServer(addr string, st store.Store) *Server {
	return &Server{
		sessions: NewSessionManager(st),
		addr:     addr,
	}
}

// Sessions returns the server's session manager
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Handler returns the HTTP handler with all routes and middleware
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/sessions", s.handleSessions)
	mux.HandleFunc("/api/v1/sessions/", s.handleSessionsWithID)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server and releases all sessions
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	s.sessions.Close()
	return err
}

// handleSessions handles /api/v1/sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateSession(w, r)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.sessions.ListSessions())
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSessionsWithID handles /api/v1/sessions/:id/*
func (s *Server) handleSessionsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/sessions/")
	parts := strings.Split(path, "/")
	if parts[0] == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}
	if len(parts) > 2 {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	id := parts[0]
	sub := ""
	if len(parts) == 2 {
		sub = parts[1]
	}

	route := map[string]struct {
		method  string
		handler func(http.ResponseWriter, *http.Request, string)
	}{
		"status":    {http.MethodGet, s.handleGetSession},
		"update":    {http.MethodPost, s.handleUpdate},
		"resize":    {http.MethodPost, s.handleResize},
		"animate":   {http.MethodPost, s.handleAnimate},
		"stop":      {http.MethodPost, s.handleStop},
		"snapshot":  {http.MethodPost, s.handleSnapshot},
		"frame.png": {http.MethodGet, s.handleFrame},
		"stream":    {http.MethodGet, s.handleSessionStream},
	}

	if sub == "" {
		switch r.Method {
		case http.MethodGet:
			s.handleGetSession(w, r, id)
		case http.MethodDelete:
			s.handleDeleteSession(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	rt, ok := route[sub]
	if !ok {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != rt.method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rt.handler(w, r, id)
}

// handleCreateSession handles POST /api/v1/sessions
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var config SessionConfig
	if err := decodeBody(r, &config); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := s.sessions.CreateSession(config)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// handleGetSession handles GET /api/v1/sessions/:id[/status]
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, id string) {
	sess, ok := s.sessions.GetSession(id)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// updateRequest carries the logical offsets of one redraw
type updateRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// handleUpdate handles POST /api/v1/sessions/:id/update
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, id string) {
	var req updateRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := s.sessions.Draw(id, req.X, req.Y)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// resizeRequest carries the new surface size in device pixels
type resizeRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// handleResize handles POST /api/v1/sessions/:id/resize
func (s *Server) handleResize(w http.ResponseWriter, r *http.Request, id string) {
	var req resizeRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := s.sessions.Resize(id, req.Width, req.Height)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleAnimate handles POST /api/v1/sessions/:id/animate
func (s *Server) handleAnimate(w http.ResponseWriter, r *http.Request, id string) {
	var req AnimateRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := s.sessions.Animate(id, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sess)
}

// handleStop handles POST /api/v1/sessions/:id/stop
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.sessions.StopAnimation(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSnapshot handles POST /api/v1/sessions/:id/snapshot
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request, id string) {
	snapshot, err := s.sessions.SaveSnapshot(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snapshot)
}

// handleFrame handles GET /api/v1/sessions/:id/frame.png
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := s.sessions.GetSession(id); !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")

	if err := s.sessions.WriteFrame(id, w); err != nil {
		slog.Error("Failed to encode PNG", "session_id", id, "error", err)
	}
}

// handleDeleteSession handles DELETE /api/v1/sessions/:id
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.sessions.DeleteSession(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
