package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cwbudde/circlepad/internal/server"
	"github.com/spf13/cobra"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [session-id]",
	Short: "Query server status or a specific session",
	Long: `Queries the server for session information.
If no session-id is provided, lists all sessions.
If session-id is provided, shows detailed status for that session.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listSessions(fmt.Sprintf("%s/api/v1/sessions", serverURL))
	}

	id := args[0]
	return getSessionStatus(fmt.Sprintf("%s/api/v1/sessions/%s/status", serverURL, id), id)
}

func fetchJSON(url string, v any) (int, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("server returned error: %s", string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func listSessions(url string) error {
	var sessions []server.Session
	if _, err := fetchJSON(url, &sessions); err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions found")
		return nil
	}

	fmt.Printf("Found %d session(s):\n\n", len(sessions))
	for _, s := range sessions {
		fmt.Printf("Session ID: %s\n", s.ID)
		fmt.Printf("  State: %s\n", s.State)
		fmt.Printf("  Surface: %dx%d @%dx\n", s.Config.Width, s.Config.Height, s.Config.PixelRatio)
		fmt.Printf("  Frame: %d at (%d,%d)\n", s.Frame, s.OffsetX, s.OffsetY)
		fmt.Println()
	}

	return nil
}

func getSessionStatus(url, id string) error {
	var s server.Session
	code, err := fetchJSON(url, &s)
	if code == http.StatusNotFound {
		return fmt.Errorf("session not found: %s", id)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Session: %s\n", s.ID)
	fmt.Printf("State: %s\n", s.State)
	fmt.Println()

	fmt.Println("Configuration:")
	fmt.Printf("  Size: %dx%d\n", s.Config.Width, s.Config.Height)
	fmt.Printf("  Pixel Ratio: %d\n", s.Config.PixelRatio)
	fmt.Printf("  Color: %s\n", s.Config.Color)
	fmt.Println()

	fmt.Println("Last Frame:")
	fmt.Printf("  Frame: %d\n", s.Frame)
	fmt.Printf("  Offsets: (%d,%d)\n", s.OffsetX, s.OffsetY)
	fmt.Printf("  Circle: center (%.0f,%.0f) radius %.0f\n", s.Circle.CenterX, s.Circle.CenterY, s.Circle.Radius)
	fmt.Printf("  Created: %s\n", s.CreatedAt.Format("2006-01-02 15:04:05"))
	if s.UpdatedAt != nil {
		fmt.Printf("  Updated: %s\n", s.UpdatedAt.Format("2006-01-02 15:04:05"))
	}

	if s.Error != "" {
		fmt.Printf("\nError: %s\n", s.Error)
	}

	return nil
}
