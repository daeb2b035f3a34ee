package main

import (
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/circlepad/internal/raster"
	"github.com/cwbudde/circlepad/internal/renderer"
	"github.com/cwbudde/circlepad/internal/store"
	"github.com/spf13/cobra"
)

var (
	snapshotDataDir string
	keepLast        int
	olderThanDays   int
	forceClean      bool
	replayOut       string
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Manage session snapshots",
	Long: `Manage session snapshots written by the server, including listing,
cleaning and replaying them. A snapshot holds a session's configuration and
the last offsets it drew.`,
}

var listSnapshotsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all available snapshots",
	Long:  `Display all snapshots with metadata including session ID, timestamp, frame, surface size, color, and disk usage.`,
	RunE:  runListSnapshots,
}

var cleanSnapshotsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old snapshots",
	Long: `Delete old snapshots based on retention policy.
You can keep only the newest N snapshots or delete snapshots older than N days.`,
	RunE: runCleanSnapshots,
}

var replaySnapshotCmd = &cobra.Command{
	Use:   "replay <session-id>",
	Short: "Redraw a snapshot's last frame to PNG",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplaySnapshot,
}

func init() {
	rootCmd.AddCommand(snapshotsCmd)

	snapshotsCmd.AddCommand(listSnapshotsCmd)
	snapshotsCmd.AddCommand(cleanSnapshotsCmd)
	snapshotsCmd.AddCommand(replaySnapshotCmd)

	snapshotsCmd.PersistentFlags().StringVar(&snapshotDataDir, "data-dir", "./data", "Base directory for snapshot storage")

	cleanSnapshotsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N snapshots (0 = keep all)")
	cleanSnapshotsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete snapshots older than N days (0 = no age limit)")
	cleanSnapshotsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")

	replaySnapshotCmd.Flags().StringVarP(&replayOut, "out", "o", "replay.png", "Output PNG path")
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

func runListSnapshots(cmd *cobra.Command, args []string) error {
	snapshotStore, err := store.NewFSStore(snapshotDataDir)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}

	infos, err := snapshotStore.ListSnapshots()
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No snapshots found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION ID\tTIMESTAMP\tFRAME\tSURFACE\tCOLOR\tSIZE")
	fmt.Fprintln(w, "----------\t---------\t-----\t-------\t-----\t----")

	for _, info := range infos {
		size, err := getDirSize(filepath.Dir(snapshotStore.FramePath(info.SessionID)))
		sizeStr := "unknown"
		if err == nil {
			sizeStr = formatBytes(size)
		}

		fmt.Fprintf(w, "%s\t%s\t%d\t%dx%d\t%s\t%s\n",
			shortID(info.SessionID),
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Frame,
			info.Width, info.Height,
			info.Color,
			sizeStr,
		)
	}

	w.Flush()

	fmt.Printf("\nTotal snapshots: %d\n", len(infos))
	return nil
}

func runCleanSnapshots(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	snapshotStore, err := store.NewFSStore(snapshotDataDir)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}

	infos, err := snapshotStore.ListSnapshots()
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No snapshots to clean.")
		return nil
	}

	toDelete := selectSnapshotsForDeletion(infos, keepLast, olderThanDays)

	if len(toDelete) == 0 {
		fmt.Println("No snapshots match deletion criteria.")
		return nil
	}

	fmt.Printf("Found %d snapshot(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Printf("  - %s (frame %d, %s)\n",
			shortID(info.SessionID),
			info.Frame,
			info.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}

	if !forceClean {
		fmt.Print("\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := snapshotStore.DeleteSnapshot(info.SessionID); err != nil {
			slog.Error("Failed to delete snapshot", "session_id", info.SessionID, "error", err)
			failed++
		} else {
			slog.Info("Deleted snapshot", "session_id", info.SessionID)
			deleted++
		}
	}

	fmt.Printf("\nDeleted %d snapshot(s), %d failed.\n", deleted, failed)
	return nil
}

// runReplaySnapshot rebuilds a renderer from the snapshot's configuration
// and redraws its last offsets. Session IDs that would leave the data
// directory are rejected by the store.
func runReplaySnapshot(cmd *cobra.Command, args []string) error {
	id := args[0]

	snapshotStore, err := store.NewFSStore(snapshotDataDir)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}

	snapshot, err := snapshotStore.LoadSnapshot(id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("snapshot not found: %s", id)
	}
	if err != nil {
		return err
	}
	if err := snapshot.Validate(); err != nil {
		return fmt.Errorf("snapshot %s: %w", id, err)
	}

	surface, err := raster.NewSurface(snapshot.Config.Width, snapshot.Config.Height)
	if err != nil {
		return err
	}
	defer surface.Close()

	r, err := renderer.New(surface, snapshot.Config.PixelRatio, snapshot.Config.Color)
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}
	// An undrawn snapshot stored the surface as created or resized
	if !snapshot.Undrawn() {
		if err := r.Update(snapshot.OffsetX, snapshot.OffsetY); err != nil {
			return fmt.Errorf("replay frame %d: %w", snapshot.Frame, err)
		}
	}
	if err := writePNG(replayOut, surface.EncodePNG); err != nil {
		return err
	}

	if mse, ok := compareStoredFrame(snapshotStore.FramePath(id), surface); ok {
		fmt.Printf("Stored frame.png differs by MSE %.4f\n", mse)
	}

	entries := 0
	if reader, err := store.NewTraceReader(snapshotStore.BaseDir(), id); err == nil {
		all, err := reader.ReadAll()
		reader.Close()
		if err != nil {
			slog.Warn("Failed to read update trace", "session_id", id, "error", err)
		}
		entries = len(all)
	}

	fmt.Printf("Replayed frame %d of %s at (%d,%d) to %s\n",
		snapshot.Frame, shortID(id), snapshot.OffsetX, snapshot.OffsetY, replayOut)
	if entries > 0 {
		fmt.Printf("Update trace holds %d entries\n", entries)
	}
	return nil
}

// compareStoredFrame reports the MSE between the session's frame.png and the
// replayed surface. ok is false when there is no usable stored frame.
func compareStoredFrame(path string, surface *raster.Surface) (float64, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	stored, err := png.Decode(f)
	if err != nil {
		slog.Warn("Failed to decode stored frame", "path", path, "error", err)
		return 0, false
	}
	mse, err := raster.MSE(surface.Image(), stored)
	if err != nil {
		slog.Warn("Stored frame does not match replay", "path", path, "error", err)
		return 0, false
	}
	return mse, true
}

// selectSnapshotsForDeletion determines which snapshots should be deleted based on retention policy
func selectSnapshotsForDeletion(infos []store.SnapshotInfo, keepLast int, olderThanDays int) []store.SnapshotInfo {
	var toDelete []store.SnapshotInfo
	selected := make(map[string]bool)

	if olderThanDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.Timestamp.Before(cutoff) {
				toDelete = append(toDelete, info)
				selected[info.SessionID] = true
			}
		}
	}

	// Keep the newest N, delete the rest oldest first
	if keepLast > 0 && len(infos) > keepLast {
		sorted := make([]store.SnapshotInfo, len(infos))
		copy(sorted, infos)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})

		for _, info := range sorted[:len(sorted)-keepLast] {
			if !selected[info.SessionID] {
				toDelete = append(toDelete, info)
				selected[info.SessionID] = true
			}
		}
	}

	return toDelete
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
