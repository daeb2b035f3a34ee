package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cwbudde/circlepad/internal/raster"
	"github.com/cwbudde/circlepad/internal/renderer"
	"github.com/cwbudde/circlepad/internal/store"
	"github.com/google/uuid"
)

// SessionState represents the current state of a session
type SessionState string

const (
	StateIdle      SessionState = "idle"
	StateAnimating SessionState = "animating"
	StateFailed    SessionState = "failed"
)

const (
	defaultWidth      = 640
	defaultHeight     = 480
	defaultPixelRatio = 1
	defaultColor      = "black"

	maxSurfaceSide = 8192
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionFailed   = errors.New("session failed")
	ErrNoStore         = errors.New("no snapshot store configured")
	ErrInvalidConfig   = errors.New("invalid session config")
)

// SessionConfig is an alias to avoid duplication with store.SessionConfig
type SessionConfig = store.SessionConfig

// Session is the reported state of one drawing session
type Session struct {
	ID        string            `json:"id"`
	State     SessionState      `json:"state"`
	Config    SessionConfig     `json:"config"`
	Frame     int               `json:"frame"`
	OffsetX   int               `json:"offsetX"`
	OffsetY   int               `json:"offsetY"`
	Circle    renderer.Geometry `json:"circle"`
	Blank     bool              `json:"blank"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt *time.Time        `json:"updatedAt,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// session owns the surface and Renderer behind a Session.
// draw serializes everything that touches the surface.
type session struct {
	info Session

	draw     sync.Mutex
	surface  *raster.Surface
	renderer *renderer.Renderer
	trace    *store.TraceWriter
	closed   bool

	cancelAnim context.CancelFunc
	animGen    int
}

// SessionManager manages the lifecycle of sessions
type SessionManager struct {
	mu          sync.RWMutex
	sessions    map[string]*session
	store       store.Store
	broadcaster *EventBroadcaster
}

// NewSessionManager creates a SessionManager. The store may be nil,
// which disables snapshots and update traces.
func NewSessionManager(st store.Store) *SessionManager {
	return &SessionManager{
		sessions:    make(map[string]*session),
		store:       st,
		broadcaster: NewEventBroadcaster(),
	}
}

// withDefaults fills zero fields and validates the rest
func withDefaults(config SessionConfig) (SessionConfig, error) {
	if config.Width == 0 {
		config.Width = defaultWidth
	}
	if config.Height == 0 {
		config.Height = defaultHeight
	}
	if config.PixelRatio == 0 {
		config.PixelRatio = defaultPixelRatio
	}
	if config.Color == "" {
		config.Color = defaultColor
	}

	if err := checkSize(config.Width, config.Height); err != nil {
		return config, err
	}
	if config.PixelRatio < 1 {
		return config, fmt.Errorf("%w: pixelRatio must be >= 1, got %d", ErrInvalidConfig, config.PixelRatio)
	}
	if _, err := raster.ParseColor(config.Color); err != nil {
		return config, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return config, nil
}

func checkSize(width, height int) error {
	if width <= 0 || height <= 0 || width > maxSurfaceSide || height > maxSurfaceSide {
		return fmt.Errorf("%w: size %dx%d out of range", ErrInvalidConfig, width, height)
	}
	return nil
}

// CreateSession creates a surface and a Renderer for the given configuration
func (sm *SessionManager) CreateSession(config SessionConfig) (Session, error) {
	config, err := withDefaults(config)
	if err != nil {
		return Session{}, err
	}

	surface, err := raster.NewSurface(config.Width, config.Height)
	if err != nil {
		return Session{}, fmt.Errorf("create surface: %w", err)
	}
	r, err := renderer.New(surface, config.PixelRatio, config.Color)
	if err != nil {
		surface.Close()
		return Session{}, fmt.Errorf("create renderer: %w", err)
	}

	s := &session{
		info: Session{
			ID:        uuid.New().String(),
			State:     StateIdle,
			Config:    config,
			Blank:     true,
			CreatedAt: time.Now(),
		},
		surface:  surface,
		renderer: r,
	}

	if sm.store != nil {
		tw, err := sm.store.OpenTrace(s.info.ID)
		if err != nil {
			slog.Warn("Update trace disabled", "session_id", s.info.ID, "error", err)
		} else {
			s.trace = tw
		}
	}

	sm.mu.Lock()
	sm.sessions[s.info.ID] = s
	sm.mu.Unlock()

	slog.Info("Session created", "session_id", s.info.ID, "width", config.Width, "height", config.Height,
		"pixel_ratio", config.PixelRatio, "color", config.Color)
	return s.info, nil
}

func (sm *SessionManager) lookup(id string) (*session, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	s, ok := sm.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// acquire looks up a session and locks it for drawing.
// The caller must unlock s.draw.
func (sm *SessionManager) acquire(id string) (*session, error) {
	s, err := sm.lookup(id)
	if err != nil {
		return nil, err
	}

	s.draw.Lock()
	if s.closed {
		s.draw.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// GetSession retrieves a session by ID
func (sm *SessionManager) GetSession(id string) (Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	s, ok := sm.sessions[id]
	if !ok {
		return Session{}, false
	}
	return s.info, true
}

// ListSessions returns all sessions, oldest first
func (sm *SessionManager) ListSessions() []Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	list := make([]Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		list = append(list, s.info)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

// UpdateSession atomically updates a session's reported state
func (sm *SessionManager) UpdateSession(id string, updateFn func(*Session)) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s, ok := sm.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	updateFn(&s.info)
	return nil
}

// Draw redraws the session's circle at the given offsets.
// A failing draw marks the session failed; failed sessions refuse further draws.
func (sm *SessionManager) Draw(id string, offsetX, offsetY int) (Session, error) {
	return sm.drawFrame(context.Background(), id, offsetX, offsetY)
}

// drawFrame is Draw for a caller that may be cancelled while waiting for the surface
func (sm *SessionManager) drawFrame(ctx context.Context, id string, offsetX, offsetY int) (Session, error) {
	s, err := sm.acquire(id)
	if err != nil {
		return Session{}, err
	}
	defer s.draw.Unlock()

	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	if current, _ := sm.GetSession(id); current.State == StateFailed {
		return current, fmt.Errorf("%w: %s", ErrSessionFailed, current.Error)
	}

	if err := s.renderer.Update(offsetX, offsetY); err != nil {
		sm.markFailed(id, err)
		info, _ := sm.GetSession(id)
		sm.broadcast(info)
		return info, fmt.Errorf("update %s: %w", id, err)
	}

	now := time.Now()
	circle := s.renderer.Circle(offsetX, offsetY)
	var info Session
	sm.UpdateSession(id, func(sess *Session) {
		sess.Frame++
		sess.OffsetX = offsetX
		sess.OffsetY = offsetY
		sess.Circle = circle
		sess.Blank = false
		sess.UpdatedAt = &now
		info = *sess
	})

	if s.trace != nil {
		entry := store.TraceEntry{
			Frame:     info.Frame,
			OffsetX:   offsetX,
			OffsetY:   offsetY,
			Circle:    circle,
			Timestamp: now,
		}
		if err := s.trace.Write(entry); err != nil {
			slog.Warn("Failed to write trace entry", "session_id", id, "error", err)
		}
	}

	sm.broadcast(info)
	return info, nil
}

// Resize changes the surface size. The next Draw clears the new area.
func (sm *SessionManager) Resize(id string, width, height int) (Session, error) {
	if err := checkSize(width, height); err != nil {
		return Session{}, err
	}

	s, err := sm.acquire(id)
	if err != nil {
		return Session{}, err
	}
	defer s.draw.Unlock()

	if err := s.surface.Resize(width, height); err != nil {
		return Session{}, err
	}

	var info Session
	sm.UpdateSession(id, func(sess *Session) {
		sess.Config.Width = width
		sess.Config.Height = height
		sess.Blank = true
		info = *sess
	})

	slog.Debug("Session resized", "session_id", id, "width", width, "height", height)
	return info, nil
}

// WriteFrame encodes the current surface as PNG
func (sm *SessionManager) WriteFrame(id string, w io.Writer) error {
	s, err := sm.acquire(id)
	if err != nil {
		return err
	}
	defer s.draw.Unlock()

	return s.surface.EncodePNG(w)
}

// SaveSnapshot persists the session's state and current frame
func (sm *SessionManager) SaveSnapshot(id string) (*store.Snapshot, error) {
	if sm.store == nil {
		return nil, ErrNoStore
	}

	s, err := sm.acquire(id)
	if err != nil {
		return nil, err
	}
	defer s.draw.Unlock()

	info, _ := sm.GetSession(id)
	snapshot := store.NewSnapshot(id, info.Config, info.Frame, info.OffsetX, info.OffsetY, info.Circle)
	snapshot.Blank = info.Blank

	if err := sm.store.SaveFrame(id, s.surface.EncodePNG); err != nil {
		return nil, fmt.Errorf("save frame: %w", err)
	}
	if err := sm.store.SaveSnapshot(id, snapshot); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	if s.trace != nil {
		if err := s.trace.Flush(); err != nil {
			slog.Warn("Failed to flush trace", "session_id", id, "error", err)
		}
	}

	slog.Info("Snapshot saved", "session_id", id, "frame", snapshot.Frame)
	return snapshot, nil
}

// DeleteSession stops any animation and releases the session's surface.
// A trace that no snapshot refers to is removed from the store.
func (sm *SessionManager) DeleteSession(id string) error {
	sm.mu.Lock()
	s, ok := sm.sessions[id]
	if ok {
		delete(sm.sessions, id)
		if s.cancelAnim != nil {
			s.cancelAnim()
		}
	}
	sm.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	sm.release(s)
	if sm.store != nil {
		if err := sm.store.DiscardTrace(id); err != nil {
			slog.Warn("Failed to discard trace", "session_id", id, "error", err)
		}
	}
	sm.broadcaster.CleanupSession(id)
	slog.Info("Session deleted", "session_id", id)
	return nil
}

// Close deletes every session
func (sm *SessionManager) Close() {
	for _, s := range sm.ListSessions() {
		if err := sm.DeleteSession(s.ID); err != nil && !errors.Is(err, ErrSessionNotFound) {
			slog.Warn("Failed to delete session", "session_id", s.ID, "error", err)
		}
	}
}

func (sm *SessionManager) release(s *session) {
	s.draw.Lock()
	defer s.draw.Unlock()

	s.closed = true
	if s.trace != nil {
		if err := s.trace.Close(); err != nil {
			slog.Warn("Failed to close trace", "session_id", s.info.ID, "error", err)
		}
	}
	if err := s.surface.Close(); err != nil {
		slog.Warn("Failed to close surface", "session_id", s.info.ID, "error", err)
	}
}

// markFailed marks a session as failed with an error message
func (sm *SessionManager) markFailed(id string, err error) {
	sm.UpdateSession(id, func(s *Session) {
		s.State = StateFailed
		s.Error = err.Error()
	})
	slog.Error("Session failed", "session_id", id, "error", err)
}

func (sm *SessionManager) broadcast(info Session) {
	sm.broadcaster.Broadcast(FrameEvent{
		SessionID: info.ID,
		State:     info.State,
		Frame:     info.Frame,
		OffsetX:   info.OffsetX,
		OffsetY:   info.OffsetY,
		Circle:    info.Circle,
		Error:     info.Error,
		Timestamp: time.Now(),
	})
}
