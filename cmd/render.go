package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cwbudde/circlepad/internal/backend"
	"github.com/cwbudde/circlepad/internal/canvas/record"
	"github.com/cwbudde/circlepad/internal/raster"
	"github.com/cwbudde/circlepad/internal/renderer"
	"github.com/spf13/cobra"
)

var (
	renderWidth   int
	renderHeight  int
	renderRatio   int
	renderColor   string
	renderAt      []string
	renderOut     string
	renderBackend string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render circle frames to PNG",
	Long: `Renders one frame per --at offset pair. With a single offset the frame is
written to --out; with several, frames are numbered (frame-0001.png, ...).
The record backend prints every draw call as a JSON line instead.`,
	RunE: runRender,
}

func init() {
	renderCmd.Flags().IntVar(&renderWidth, "width", 640, "Surface width in device pixels")
	renderCmd.Flags().IntVar(&renderHeight, "height", 480, "Surface height in device pixels")
	renderCmd.Flags().IntVar(&renderRatio, "pixel-ratio", 1, "Device pixel ratio (>= 1)")
	renderCmd.Flags().StringVar(&renderColor, "color", "black", "Circle fill color (CSS name or hex)")
	renderCmd.Flags().StringArrayVar(&renderAt, "at", []string{"0,0"}, "Offset pair x,y in logical pixels (repeatable)")
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "frame.png", "Output PNG path")
	renderCmd.Flags().StringVar(&renderBackend, "backend", string(backend.BackendRaster),
		fmt.Sprintf("Surface backend (%s)", joinBackends()))
	rootCmd.AddCommand(renderCmd)
}

type renderOptions struct {
	Width      int
	Height     int
	PixelRatio int
	Color      string
	Offsets    [][2]int
	Out        string
	Backend    string
}

func runRender(cmd *cobra.Command, args []string) error {
	offsets := make([][2]int, 0, len(renderAt))
	for _, at := range renderAt {
		x, y, err := parseOffset(at)
		if err != nil {
			return err
		}
		offsets = append(offsets, [2]int{x, y})
	}

	opts := renderOptions{
		Width:      renderWidth,
		Height:     renderHeight,
		PixelRatio: renderRatio,
		Color:      renderColor,
		Offsets:    offsets,
		Out:        renderOut,
		Backend:    renderBackend,
	}
	return renderFrames(os.Stdout, opts)
}

// renderFrames draws every offset pair in order on one surface. Record
// output goes to w; raster frames go to files.
func renderFrames(w io.Writer, opts renderOptions) error {
	if _, err := raster.ParseColor(opts.Color); err != nil {
		return err
	}
	if len(opts.Offsets) == 0 {
		return fmt.Errorf("no offsets to render")
	}

	surface, cleanup, err := backend.NewSurface(opts.Backend, opts.Width, opts.Height)
	if err != nil {
		return fmt.Errorf("failed to create surface: %w", err)
	}
	defer cleanup()

	r, err := renderer.New(surface, opts.PixelRatio, opts.Color)
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}

	if rec, ok := surface.(*record.Surface); ok {
		ctx, err := rec.Recorder()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(w)
		var encErr error
		ctx.OnOp(func(op record.Op) {
			if encErr == nil {
				encErr = enc.Encode(op)
			}
		})
		for _, o := range opts.Offsets {
			if err := r.Update(o[0], o[1]); err != nil {
				return fmt.Errorf("update (%d,%d): %w", o[0], o[1], err)
			}
			if encErr != nil {
				return fmt.Errorf("failed to write ops: %w", encErr)
			}
		}
		return nil
	}

	encoder, ok := surface.(interface{ EncodePNG(io.Writer) error })
	if !ok {
		return fmt.Errorf("backend %s cannot encode PNG", opts.Backend)
	}

	start := time.Now()
	for i, o := range opts.Offsets {
		if err := r.Update(o[0], o[1]); err != nil {
			return fmt.Errorf("update (%d,%d): %w", o[0], o[1], err)
		}

		path := opts.Out
		if len(opts.Offsets) > 1 {
			path = framePath(opts.Out, i+1)
		}
		if err := writePNG(path, encoder.EncodePNG); err != nil {
			return err
		}
		slog.Debug("Frame written", "path", path, "offsetX", o[0], "offsetY", o[1], "circle", r.Circle(o[0], o[1]))
	}

	slog.Info("Render complete",
		"frames", len(opts.Offsets),
		"width", opts.Width,
		"height", opts.Height,
		"pixelRatio", opts.PixelRatio,
		"elapsed", time.Since(start))
	return nil
}

// parseOffset parses "x,y" into integer offsets
func parseOffset(s string) (int, int, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("invalid offset %q: expected x,y", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid offset %q: %w", s, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid offset %q: %w", s, err)
	}
	return x, y, nil
}

// framePath numbers an output path: out.png -> out-0003.png
func framePath(out string, n int) string {
	ext := filepath.Ext(out)
	return fmt.Sprintf("%s-%04d%s", strings.TrimSuffix(out, ext), n, ext)
}

func writePNG(path string, encode func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := encode(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	return f.Close()
}

func joinBackends() string {
	names := make([]string, 0, len(backend.SupportedBackends()))
	for _, b := range backend.SupportedBackends() {
		names = append(names, string(b))
	}
	return strings.Join(names, ", ")
}
