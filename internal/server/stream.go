package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cwbudde/circlepad/internal/renderer"
)

// pingInterval is how often idle SSE connections get a keepalive comment
var pingInterval = 30 * time.Second

// FrameEvent is published after every draw of a session
type FrameEvent struct {
	SessionID string            `json:"sessionId"`
	State     SessionState      `json:"state"`
	Frame     int               `json:"frame"`
	OffsetX   int               `json:"offsetX"`
	OffsetY   int               `json:"offsetY"`
	Circle    renderer.Geometry `json:"circle"`
	Error     string            `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// EventBroadcaster fans frame events out to SSE clients per session
type EventBroadcaster struct {
	mu        sync.Mutex
	clients   map[string]map[chan FrameEvent]bool // sessionID -> set of client channels
	lastEvent map[string]FrameEvent               // sessionID -> last event for new clients
}

// NewEventBroadcaster creates a new event broadcaster
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		clients:   make(map[string]map[chan FrameEvent]bool),
		lastEvent: make(map[string]FrameEvent),
	}
}

// Subscribe adds a client to receive events for a session.
// The last event, if any, is delivered first and reported by the boolean.
func (eb *EventBroadcaster) Subscribe(sessionID string) (chan FrameEvent, bool) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan FrameEvent, 16)

	if eb.clients[sessionID] == nil {
		eb.clients[sessionID] = make(map[chan FrameEvent]bool)
	}
	eb.clients[sessionID][ch] = true

	last, cached := eb.lastEvent[sessionID]
	if cached {
		ch <- last
	}

	slog.Debug("SSE client subscribed", "session_id", sessionID, "total_clients", len(eb.clients[sessionID]))
	return ch, cached
}

// Unsubscribe removes a client. It is a no-op for channels already
// closed by CleanupSession.
func (eb *EventBroadcaster) Unsubscribe(sessionID string, ch chan FrameEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	clients, ok := eb.clients[sessionID]
	if !ok || !clients[ch] {
		return
	}

	delete(clients, ch)
	close(ch)
	if len(clients) == 0 {
		delete(eb.clients, sessionID)
	}

	slog.Debug("SSE client unsubscribed", "session_id", sessionID)
}

// Broadcast sends an event to all subscribed clients of its session.
// Slow clients drop events instead of blocking the draw loop.
func (eb *EventBroadcaster) Broadcast(event FrameEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.lastEvent[event.SessionID] = event

	for ch := range eb.clients[event.SessionID] {
		select {
		case ch <- event:
		default:
			slog.Warn("SSE channel full, skipping event", "session_id", event.SessionID, "frame", event.Frame)
		}
	}
}

// CleanupSession closes all clients and forgets the cached event of a session
func (eb *EventBroadcaster) CleanupSession(sessionID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for ch := range eb.clients[sessionID] {
		close(ch)
	}
	delete(eb.clients, sessionID)
	delete(eb.lastEvent, sessionID)

	slog.Debug("Cleaned up SSE resources", "session_id", sessionID)
}

// handleSessionStream handles GET /api/v1/sessions/:id/stream
func (s *Server) handleSessionStream(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, exists := s.sessions.GetSession(sessionID)
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, cached := s.sessions.broadcaster.Subscribe(sessionID)
	defer s.sessions.broadcaster.Unsubscribe(sessionID, events)

	// Clients that connect before anything was broadcast still get the current state
	if !cached {
		initial := FrameEvent{
			SessionID: sess.ID,
			State:     sess.State,
			Error:     sess.Error,
			Timestamp: time.Now(),
		}
		if err := writeSSEEvent(w, initial); err != nil {
			slog.Error("Failed to write initial SSE event", "error", err)
			return
		}
	}
	flusher.Flush()

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			slog.Debug("SSE client disconnected", "session_id", sessionID)
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				slog.Error("Failed to write SSE event", "error", err)
				return
			}
			flusher.Flush()

		case <-pingTicker.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes an event in SSE format
func writeSSEEvent(w http.ResponseWriter, event FrameEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = fmt.Fprintf(w, "event: frame\ndata: %s\n\n", data)
	return err
}
