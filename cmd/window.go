package main

import (
	"github.com/cwbudde/circlepad/internal/window"
	"github.com/spf13/cobra"
)

var (
	windowWidth  int
	windowHeight int
	windowRatio  int
	windowColor  string
)

var windowCmd = &cobra.Command{
	Use:   "window",
	Short: "Show the circle in a desktop window",
	Long: `Opens a desktop window whose circle follows the mouse cursor.
The pixel ratio defaults to the monitor's device scale factor. Press Escape
or close the window to exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return window.Run(window.Options{
			Width:      windowWidth,
			Height:     windowHeight,
			PixelRatio: windowRatio,
			Color:      windowColor,
		})
	},
}

func init() {
	windowCmd.Flags().IntVar(&windowWidth, "width", 640, "Window width in logical pixels")
	windowCmd.Flags().IntVar(&windowHeight, "height", 480, "Window height in logical pixels")
	windowCmd.Flags().IntVar(&windowRatio, "pixel-ratio", 0, "Device pixel ratio (0 = monitor scale factor)")
	windowCmd.Flags().StringVar(&windowColor, "color", "black", "Circle fill color (CSS name or hex)")
	rootCmd.AddCommand(windowCmd)
}
