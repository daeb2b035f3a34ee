package store

import "errors"

// Store defines the interface for session snapshot persistence.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if the snapshot doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveSnapshot atomically saves the snapshot of a session,
	// overwriting any earlier one.
	SaveSnapshot(sessionID string, snapshot *Snapshot) error

	// SaveFrame atomically writes the PNG produced by encode as the
	// session's frame.png.
	SaveFrame(sessionID string, encode FrameEncoder) error

	// LoadSnapshot retrieves the snapshot of a session.
	// Returns ErrNotFound if none exists.
	LoadSnapshot(sessionID string) (*Snapshot, error)

	// ListSnapshots returns metadata for all stored snapshots.
	ListSnapshots() ([]SnapshotInfo, error)

	// DeleteSnapshot removes a session directory with all its artifacts:
	//   - snapshot.json
	//   - frame.png
	//   - trace.jsonl
	//
	// Returns ErrNotFound if nothing is stored for the session.
	DeleteSnapshot(sessionID string) error

	// OpenTrace opens the session's update trace for appending.
	OpenTrace(sessionID string) (*TraceWriter, error)

	// DiscardTrace removes the update trace of a session that has no
	// saved snapshot, together with its then empty directory. Traces that
	// belong to a snapshot are kept and go with DeleteSnapshot.
	DiscardTrace(sessionID string) error
}

// ErrInvalidSessionID is returned for an empty ID or one that would leave
// the store's directory.
var ErrInvalidSessionID = errors.New("invalid session ID")

// ErrNotFound is returned when a requested snapshot does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing snapshot or trace.
type NotFoundError struct {
	SessionID string
}

func (e *NotFoundError) Error() string {
	if e.SessionID != "" {
		return "snapshot not found: " + e.SessionID
	}
	return "snapshot not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
