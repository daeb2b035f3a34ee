package main

import (
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/circlepad/internal/raster"
	"github.com/cwbudde/circlepad/internal/renderer"
	"github.com/cwbudde/circlepad/internal/server"
	"github.com/cwbudde/circlepad/internal/store"
)

func testConfig() store.SessionConfig {
	return store.SessionConfig{Width: 120, Height: 90, PixelRatio: 1, Color: "red"}
}

func saveTestSnapshot(t *testing.T, st *store.FSStore, id string, age time.Duration) {
	t.Helper()

	snapshot := store.NewSnapshot(id, testConfig(), 3, 60, 50, renderer.Geometry{CenterX: 35, CenterY: 25, Radius: 50})
	snapshot.Timestamp = time.Now().Add(-age)
	if err := st.SaveSnapshot(id, snapshot); err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}
}

func useDataDir(t *testing.T, dir string) {
	t.Helper()
	original := snapshotDataDir
	snapshotDataDir = dir
	t.Cleanup(func() { snapshotDataDir = original })
}

func TestSelectSnapshotsForDeletion_ByAge(t *testing.T) {
	now := time.Now()
	infos := []store.SnapshotInfo{
		{SessionID: "s1", Timestamp: now.AddDate(0, 0, -10)}, // 10 days old
		{SessionID: "s2", Timestamp: now.AddDate(0, 0, -5)},  // 5 days old
		{SessionID: "s3", Timestamp: now.AddDate(0, 0, -1)},  // 1 day old
		{SessionID: "s4", Timestamp: now.AddDate(0, 0, -30)}, // 30 days old
	}

	toDelete := selectSnapshotsForDeletion(infos, 0, 7)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 snapshots to delete, got %d", len(toDelete))
	}
	ids := map[string]bool{}
	for _, info := range toDelete {
		ids[info.SessionID] = true
	}
	if !ids["s1"] || !ids["s4"] {
		t.Errorf("Expected s1 and s4 to be selected for deletion, got %v", ids)
	}
}

func TestSelectSnapshotsForDeletion_ByCount(t *testing.T) {
	now := time.Now()
	infos := []store.SnapshotInfo{
		{SessionID: "s1", Timestamp: now.AddDate(0, 0, -10)},
		{SessionID: "s2", Timestamp: now.AddDate(0, 0, -5)},
		{SessionID: "s3", Timestamp: now.AddDate(0, 0, -1)},
		{SessionID: "s4", Timestamp: now.AddDate(0, 0, -30)},
	}

	toDelete := selectSnapshotsForDeletion(infos, 2, 0)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 snapshots to delete, got %d", len(toDelete))
	}
	// Oldest first
	if toDelete[0].SessionID != "s4" || toDelete[1].SessionID != "s1" {
		t.Errorf("Expected s4 then s1, got %s and %s", toDelete[0].SessionID, toDelete[1].SessionID)
	}
}

func TestSelectSnapshotsForDeletion_Combined(t *testing.T) {
	now := time.Now()
	infos := []store.SnapshotInfo{
		{SessionID: "s1", Timestamp: now.AddDate(0, 0, -10)},
		{SessionID: "s2", Timestamp: now.AddDate(0, 0, -5)},
		{SessionID: "s3", Timestamp: now.AddDate(0, 0, -1)},
		{SessionID: "s4", Timestamp: now.AddDate(0, 0, -30)},
		{SessionID: "s5", Timestamp: now.AddDate(0, 0, -2)},
	}

	// Age selects s1 and s4; keeping 2 also selects s2 without duplicates
	toDelete := selectSnapshotsForDeletion(infos, 2, 7)

	if len(toDelete) != 3 {
		t.Fatalf("Expected 3 snapshots to delete, got %d", len(toDelete))
	}
	seen := map[string]int{}
	for _, info := range toDelete {
		seen[info.SessionID]++
	}
	for _, id := range []string{"s1", "s2", "s4"} {
		if seen[id] != 1 {
			t.Errorf("Expected %s exactly once, got %d", id, seen[id])
		}
	}
}

func TestSelectSnapshotsForDeletion_KeepMoreThanExist(t *testing.T) {
	infos := []store.SnapshotInfo{{SessionID: "s1", Timestamp: time.Now()}}

	if toDelete := selectSnapshotsForDeletion(infos, 5, 0); len(toDelete) != 0 {
		t.Errorf("Expected nothing to delete, got %d", len(toDelete))
	}
}

func TestGetDirSize(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "test.txt")
	content := []byte("Hello, World!")
	if err := os.WriteFile(testFile, content, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	size, err := getDirSize(tmpDir)
	if err != nil {
		t.Fatalf("getDirSize failed: %v", err)
	}

	if size < int64(len(content)) {
		t.Errorf("Expected size >= %d, got %d", len(content), size)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}

	for _, tt := range tests {
		result := formatBytes(tt.bytes)
		if result != tt.expected {
			t.Errorf("formatBytes(%d) = %s, expected %s", tt.bytes, result, tt.expected)
		}
	}
}

func TestSnapshotsListCommand_NoSnapshots(t *testing.T) {
	useDataDir(t, t.TempDir())

	if err := runListSnapshots(nil, nil); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestSnapshotsListCommand_WithSnapshots(t *testing.T) {
	tmpDir := t.TempDir()
	st, err := store.NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	saveTestSnapshot(t, st, "test-session-id", 0)

	useDataDir(t, tmpDir)

	if err := runListSnapshots(nil, nil); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestSnapshotsCleanCommand_NoFlags(t *testing.T) {
	useDataDir(t, t.TempDir())

	keepLast = 0
	olderThanDays = 0

	if err := runCleanSnapshots(nil, nil); err == nil {
		t.Error("Expected error when no flags specified")
	}
}

func TestSnapshotsCleanCommand_WithForce(t *testing.T) {
	tmpDir := t.TempDir()
	st, err := store.NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	saveTestSnapshot(t, st, "old-session", 30*24*time.Hour)
	saveTestSnapshot(t, st, "new-session", 0)

	useDataDir(t, tmpDir)

	keepLast = 0
	olderThanDays = 7
	forceClean = true
	t.Cleanup(func() {
		olderThanDays = 0
		forceClean = false
	})

	if err := runCleanSnapshots(nil, nil); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if _, err := st.LoadSnapshot("old-session"); err == nil {
		t.Error("Expected old snapshot to be deleted")
	}
	if _, err := st.LoadSnapshot("new-session"); err != nil {
		t.Errorf("Expected new snapshot to survive, got %v", err)
	}
}

func TestSnapshotsReplay(t *testing.T) {
	tmpDir := t.TempDir()
	st, err := store.NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	saveTestSnapshot(t, st, "replay-session", 0)

	useDataDir(t, tmpDir)
	out := filepath.Join(tmpDir, "replay.png")
	original := replayOut
	replayOut = out
	t.Cleanup(func() { replayOut = original })

	if err := runReplaySnapshot(nil, []string{"replay-session"}); err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("Replay output missing: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if img.Bounds().Dx() != 120 || img.Bounds().Dy() != 90 {
		t.Errorf("Replay size = %v, want 120x90", img.Bounds())
	}

	// Offsets (60,50) put the center at (35,25)
	r, g, b, _ := img.At(35, 25).RGBA()
	if r>>8 < 250 || g>>8 > 5 || b>>8 > 5 {
		t.Errorf("Circle center should be red, got %v", img.At(35, 25))
	}
}

func TestCompareStoredFrame(t *testing.T) {
	tmpDir := t.TempDir()
	st, err := store.NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	cfg := testConfig()

	surface, err := raster.NewSurface(cfg.Width, cfg.Height)
	if err != nil {
		t.Fatalf("NewSurface failed: %v", err)
	}
	defer surface.Close()
	r, err := renderer.New(surface, cfg.PixelRatio, cfg.Color)
	if err != nil {
		t.Fatalf("renderer.New failed: %v", err)
	}
	if err := r.Update(60, 50); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := st.SaveFrame("frame-session", surface.EncodePNG); err != nil {
		t.Fatalf("SaveFrame failed: %v", err)
	}

	mse, ok := compareStoredFrame(st.FramePath("frame-session"), surface)
	if !ok {
		t.Fatal("Expected stored frame to be comparable")
	}
	if mse != 0 {
		t.Errorf("Replayed frame should match the stored one, got MSE %v", mse)
	}

	if err := r.Update(0, 0); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if mse, _ := compareStoredFrame(st.FramePath("frame-session"), surface); mse == 0 {
		t.Error("A different frame should not match")
	}

	if _, ok := compareStoredFrame(filepath.Join(tmpDir, "missing.png"), surface); ok {
		t.Error("Missing frame should not be comparable")
	}
}

func TestSnapshotsReplay_NotFound(t *testing.T) {
	useDataDir(t, t.TempDir())

	if err := runReplaySnapshot(nil, []string{"missing"}); err == nil {
		t.Error("Expected error for a missing snapshot")
	}
}

func decodePNGFile(t *testing.T, path string) image.Image {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open %s failed: %v", path, err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Decode %s failed: %v", path, err)
	}
	return img
}

// replayMatchesStored replays a session's snapshot and returns the MSE
// between the replayed PNG and the stored frame.png
func replayMatchesStored(t *testing.T, st *store.FSStore, id string) float64 {
	t.Helper()

	useDataDir(t, st.BaseDir())
	out := filepath.Join(t.TempDir(), "replay.png")
	original := replayOut
	replayOut = out
	t.Cleanup(func() { replayOut = original })

	if err := runReplaySnapshot(nil, []string{id}); err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	mse, err := raster.MSE(decodePNGFile(t, out), decodePNGFile(t, st.FramePath(id)))
	if err != nil {
		t.Fatalf("MSE failed: %v", err)
	}
	return mse
}

func newSessionStore(t *testing.T) (*store.FSStore, *server.SessionManager) {
	t.Helper()

	st, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	sm := server.NewSessionManager(st)
	t.Cleanup(sm.Close)
	return st, sm
}

func TestSnapshotsReplay_BeforeFirstDraw(t *testing.T) {
	st, sm := newSessionStore(t)

	sess, err := sm.CreateSession(testConfig())
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	snapshot, err := sm.SaveSnapshot(sess.ID)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if snapshot.Frame != 0 || !snapshot.Undrawn() {
		t.Fatalf("Expected an undrawn frame-0 snapshot, got %+v", snapshot)
	}

	if mse := replayMatchesStored(t, st, sess.ID); mse != 0 {
		t.Errorf("Replay of an undrawn snapshot should match frame.png, got MSE %v", mse)
	}
}

func TestSnapshotsReplay_AfterResize(t *testing.T) {
	st, sm := newSessionStore(t)

	sess, err := sm.CreateSession(testConfig())
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := sm.Draw(sess.ID, 60, 50); err != nil {
		t.Fatalf("Draw failed: %v", err)
	}
	if _, err := sm.Resize(sess.ID, 150, 100); err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	snapshot, err := sm.SaveSnapshot(sess.ID)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if snapshot.Frame != 1 || !snapshot.Blank {
		t.Fatalf("Expected a blank snapshot after resize, got %+v", snapshot)
	}

	if mse := replayMatchesStored(t, st, sess.ID); mse != 0 {
		t.Errorf("Replay after an undrawn resize should match frame.png, got MSE %v", mse)
	}
}

func TestSnapshotsReplay_MatchesDrawnFrame(t *testing.T) {
	st, sm := newSessionStore(t)

	sess, err := sm.CreateSession(testConfig())
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := sm.Draw(sess.ID, 60, 50); err != nil {
		t.Fatalf("Draw failed: %v", err)
	}
	if _, err := sm.SaveSnapshot(sess.ID); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	if mse := replayMatchesStored(t, st, sess.ID); mse != 0 {
		t.Errorf("Replay should reproduce frame.png, got MSE %v", mse)
	}
}

func TestSnapshotsReplay_InvalidSnapshot(t *testing.T) {
	tmpDir := t.TempDir()
	st, err := store.NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	snapshot := store.NewSnapshot("corrupt", testConfig(), 1, 10, 10, renderer.Geometry{})
	snapshot.Config.PixelRatio = 0
	if err := st.SaveSnapshot("corrupt", snapshot); err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}

	useDataDir(t, tmpDir)

	err = runReplaySnapshot(nil, []string{"corrupt"})
	var verr *store.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if verr.Field != "Config.PixelRatio" {
		t.Errorf("Expected Config.PixelRatio to be reported, got %s", verr.Field)
	}
}

func TestSnapshotsReplay_RejectsEscapingID(t *testing.T) {
	dataDir := t.TempDir()
	st, err := store.NewFSStore(dataDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	saveTestSnapshot(t, st, "real", 0)

	// "../x" would resolve to <data>/x/snapshot.json
	data, err := os.ReadFile(filepath.Join(dataDir, "sessions", "real", "snapshot.json"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dataDir, "x"), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "x", "snapshot.json"), data, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	useDataDir(t, dataDir)

	for _, id := range []string{"../x", "..", "a/b"} {
		err := runReplaySnapshot(nil, []string{id})
		if !errors.Is(err, store.ErrInvalidSessionID) {
			t.Errorf("replay %q: expected ErrInvalidSessionID, got %v", id, err)
		}
	}
}
