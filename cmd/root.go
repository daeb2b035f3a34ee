package main

import (
	"log/slog"
	"os"

	"github.com/gogpu/gg"
	"github.com/spf13/cobra"
)

var (
	logLevel string
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "circlepad",
	Short: "Draw a filled circle that follows an offset",
	Long: `circlepad clears a surface to white and fills one circle at the given
offsets, scaled by the device pixel ratio. It renders to PNG, serves drawing
sessions over HTTP, and hosts the circle in a desktop window or a terminal.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Setup logger
		var level slog.Level
		switch logLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		opts := &slog.HandlerOptions{Level: level}
		handler := slog.NewJSONHandler(os.Stderr, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)
		gg.SetLogger(logger)
	},
}

func init() {
	// main reports the returned error
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}
