package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cwbudde/circlepad/internal/term"
	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"
)

var (
	termRatio int
	termColor string
)

var termCmd = &cobra.Command{
	Use:   "term",
	Short: "Show the circle in the terminal",
	Long: `Draws the circle in the terminal using half-block cells. The circle
follows the mouse; press q or Escape to exit.`,
	RunE: runTerm,
}

func init() {
	termCmd.Flags().IntVar(&termRatio, "pixel-ratio", 1, "Device pixel ratio (>= 1)")
	termCmd.Flags().StringVar(&termColor, "color", "black", "Circle fill color (CSS name or hex)")
	rootCmd.AddCommand(termCmd)
}

func runTerm(cmd *cobra.Command, args []string) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("failed to open terminal: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("failed to initialize terminal: %w", err)
	}
	defer screen.Fini()

	host, err := term.New(screen, termRatio, termColor)
	if err != nil {
		return err
	}
	defer host.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := host.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
