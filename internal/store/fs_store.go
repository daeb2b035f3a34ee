package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FrameEncoder writes one frame as PNG
type FrameEncoder func(w io.Writer) error

// FSStore implements the Store interface on the filesystem.
// Sessions are stored in a directory structure: <baseDir>/sessions/<sessionID>/
//
// Writes go through a temp file and a rename, so concurrent callers never
// observe a half-written snapshot and no locks are needed.
type FSStore struct {
	baseDir string
}

var _ Store = (*FSStore)(nil)

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSStore{
		baseDir: baseDir,
	}, nil
}

// BaseDir returns the root directory of the store
func (fs *FSStore) BaseDir() string {
	return fs.baseDir
}

func (fs *FSStore) sessionDir(sessionID string) string {
	return sessionDir(fs.baseDir, sessionID)
}

func (fs *FSStore) snapshotPath(sessionID string) string {
	return filepath.Join(fs.sessionDir(sessionID), "snapshot.json")
}

// FramePath returns the path of the session's frame.png
func (fs *FSStore) FramePath(sessionID string) string {
	return filepath.Join(fs.sessionDir(sessionID), "frame.png")
}

func sessionDir(baseDir, sessionID string) string {
	return filepath.Join(baseDir, "sessions", sessionID)
}

// checkSessionID rejects IDs that do not name a single directory under sessions/
func checkSessionID(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("%w: cannot be empty", ErrInvalidSessionID)
	}
	if sessionID == "." || sessionID == ".." || strings.ContainsAny(sessionID, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	return nil
}

// writeAtomic writes data next to path and renames it into place.
func writeAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// SaveSnapshot atomically saves a snapshot for the given session.
func (fs *FSStore) SaveSnapshot(sessionID string, snapshot *Snapshot) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}
	if snapshot == nil {
		return errors.New("snapshot cannot be nil")
	}

	if err := os.MkdirAll(fs.sessionDir(sessionID), 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	path := fs.snapshotPath(sessionID)
	if err := writeAtomic(path, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	slog.Debug("Snapshot saved", "session_id", sessionID, "path", path)
	return nil
}

// SaveFrame atomically writes the session's frame.png.
func (fs *FSStore) SaveFrame(sessionID string, encode FrameEncoder) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}
	if encode == nil {
		return errors.New("frame encoder cannot be nil")
	}

	if err := os.MkdirAll(fs.sessionDir(sessionID), 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	var buf bytes.Buffer
	if err := encode(&buf); err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	path := fs.FramePath(sessionID)
	if err := writeAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("save frame: %w", err)
	}

	slog.Debug("Frame saved", "session_id", sessionID, "path", path, "bytes", buf.Len())
	return nil
}

// LoadSnapshot retrieves the snapshot for the given session.
func (fs *FSStore) LoadSnapshot(sessionID string) (*Snapshot, error) {
	if err := checkSessionID(sessionID); err != nil {
		return nil, err
	}

	path := fs.snapshotPath(sessionID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{SessionID: sessionID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to deserialize snapshot: %w", err)
	}

	slog.Debug("Snapshot loaded", "session_id", sessionID, "path", path)
	return &snapshot, nil
}

// ListSnapshots returns metadata for all stored snapshots.
// Corrupted snapshots are logged and skipped.
func (fs *FSStore) ListSnapshots() ([]SnapshotInfo, error) {
	sessionsDir := filepath.Join(fs.baseDir, "sessions")

	entries, err := os.ReadDir(sessionsDir)
	if os.IsNotExist(err) {
		return []SnapshotInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	infos := []SnapshotInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		sessionID := entry.Name()
		if _, err := os.Stat(fs.snapshotPath(sessionID)); os.IsNotExist(err) {
			continue
		}

		snapshot, err := fs.LoadSnapshot(sessionID)
		if err != nil {
			slog.Warn("Failed to load snapshot for listing", "session_id", sessionID, "error", err)
			continue
		}

		infos = append(infos, snapshot.ToInfo())
	}

	slog.Debug("Listed snapshots", "count", len(infos))
	return infos, nil
}

// DeleteSnapshot removes the session directory and all its artifacts.
func (fs *FSStore) DeleteSnapshot(sessionID string) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}

	dir := fs.sessionDir(sessionID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return &NotFoundError{SessionID: sessionID}
	} else if err != nil {
		return fmt.Errorf("failed to stat session directory: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove session directory: %w", err)
	}

	slog.Debug("Snapshot deleted", "session_id", sessionID, "path", dir)
	return nil
}

// OpenTrace opens the session's trace.jsonl for appending.
func (fs *FSStore) OpenTrace(sessionID string) (*TraceWriter, error) {
	if err := checkSessionID(sessionID); err != nil {
		return nil, err
	}
	return NewTraceWriter(fs.baseDir, sessionID, true)
}

// DiscardTrace removes an unsnapshotted session's trace and directory.
func (fs *FSStore) DiscardTrace(sessionID string) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}

	if _, err := os.Stat(fs.snapshotPath(sessionID)); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat snapshot: %w", err)
	}

	if err := DeleteTrace(fs.baseDir, sessionID); err != nil {
		return err
	}

	// Leftovers such as a lone frame.png keep the directory
	dir := fs.sessionDir(sessionID)
	if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
		slog.Debug("Session directory kept", "session_id", sessionID, "error", err)
		return nil
	}

	slog.Debug("Trace discarded", "session_id", sessionID)
	return nil
}
