package store

import (
	"time"

	"github.com/cwbudde/circlepad/internal/renderer"
)

// SessionConfig holds the construction parameters of a drawing session.
// It lives here to avoid an import cycle with the server package.
type SessionConfig struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	PixelRatio int    `json:"pixelRatio"`
	Color      string `json:"color"`
}

// Snapshot is the persisted state of a session: its configuration and the
// last update it drew. Unless the snapshot is blank, replaying
// Update(OffsetX, OffsetY) on a fresh Renderer built from Config
// reproduces frame.png. A blank snapshot's frame.png is an undrawn surface.
type Snapshot struct {
	SessionID string            `json:"sessionId"`
	Config    SessionConfig     `json:"config"`
	Frame     int               `json:"frame"`
	OffsetX   int               `json:"offsetX"`
	OffsetY   int               `json:"offsetY"`
	Circle    renderer.Geometry `json:"circle"`
	Blank     bool              `json:"blank,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Undrawn reports whether the saved surface holds no frame: nothing was
// drawn yet, or the surface was resized after the last draw.
func (s *Snapshot) Undrawn() bool {
	return s.Blank || s.Frame == 0
}

// SnapshotInfo is the listing view of a snapshot
type SnapshotInfo struct {
	SessionID string    `json:"sessionId"`
	Frame     int       `json:"frame"`
	Timestamp time.Time `json:"timestamp"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Color     string    `json:"color"`
}

// NewSnapshot creates a snapshot stamped with the current time
func NewSnapshot(sessionID string, config SessionConfig, frame, offsetX, offsetY int, circle renderer.Geometry) *Snapshot {
	return &Snapshot{
		SessionID: sessionID,
		Config:    config,
		Frame:     frame,
		OffsetX:   offsetX,
		OffsetY:   offsetY,
		Circle:    circle,
		Timestamp: time.Now(),
	}
}

// ToInfo converts a Snapshot to its listing metadata.
func (s *Snapshot) ToInfo() SnapshotInfo {
	return SnapshotInfo{
		SessionID: s.SessionID,
		Frame:     s.Frame,
		Timestamp: s.Timestamp,
		Width:     s.Config.Width,
		Height:    s.Config.Height,
		Color:     s.Config.Color,
	}
}

// Validate checks that the snapshot can be replayed.
func (s *Snapshot) Validate() error {
	if s.SessionID == "" {
		return &ValidationError{Field: "SessionID", Reason: "cannot be empty"}
	}
	if s.Frame < 0 {
		return &ValidationError{Field: "Frame", Reason: "cannot be negative"}
	}
	if s.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if s.Config.Width <= 0 {
		return &ValidationError{Field: "Config.Width", Reason: "must be positive"}
	}
	if s.Config.Height <= 0 {
		return &ValidationError{Field: "Config.Height", Reason: "must be positive"}
	}
	if s.Config.PixelRatio < 1 {
		return &ValidationError{Field: "Config.PixelRatio", Reason: "must be at least 1"}
	}
	if s.Config.Color == "" {
		return &ValidationError{Field: "Config.Color", Reason: "cannot be empty"}
	}
	return nil
}

// ValidationError represents a snapshot validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
