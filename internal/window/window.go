// Package window hosts a Renderer in a desktop window. The circle follows
// the mouse cursor on every tick.
package window

import (
	"errors"
	"log/slog"
	"math"

	"github.com/cwbudde/circlepad/internal/raster"
	"github.com/cwbudde/circlepad/internal/renderer"
	"github.com/hajimehoshi/ebiten/v2"
)

// ErrClosed ends the game loop when the user closes the window or presses Escape
var ErrClosed = errors.New("window closed")

// Options configures the window
type Options struct {
	Title string
	// Width and Height are the initial window size in logical pixels
	Width  int
	Height int
	// PixelRatio overrides the monitor's device scale factor when > 0
	PixelRatio int
	Color      string
}

// Game implements ebiten.Game around one raster surface
type Game struct {
	surface  *raster.Surface
	renderer *renderer.Renderer
	ratio    int
	frame    *ebiten.Image

	// layout size in device pixels, applied to the surface on the next tick
	width, height int
}

// PixelRatio returns the integer device pixel ratio for the current monitor
func PixelRatio() int {
	m := ebiten.Monitor()
	if m == nil {
		return 1
	}
	scale := m.DeviceScaleFactor()
	return max(1, int(math.Round(scale)))
}

// NewGame creates the surface and Renderer. Nothing is drawn until the first tick.
func NewGame(opts Options) (*Game, error) {
	if _, err := raster.ParseColor(opts.Color); err != nil {
		return nil, err
	}

	ratio := opts.PixelRatio
	if ratio <= 0 {
		ratio = PixelRatio()
	}

	width, height := opts.Width*ratio, opts.Height*ratio
	surface, err := raster.NewSurface(width, height)
	if err != nil {
		return nil, err
	}
	r, err := renderer.New(surface, ratio, opts.Color)
	if err != nil {
		surface.Close()
		return nil, err
	}

	return &Game{
		surface:  surface,
		renderer: r,
		ratio:    ratio,
		width:    width,
		height:   height,
	}, nil
}

// Update redraws the circle under the cursor. A draw failure is returned
// and terminates the game loop.
func (g *Game) Update() error {
	if ebiten.IsKeyPressed(ebiten.KeyEscape) || ebiten.IsWindowBeingClosed() {
		return ErrClosed
	}

	if g.width != g.surface.Width() || g.height != g.surface.Height() {
		if err := g.surface.Resize(g.width, g.height); err != nil {
			return err
		}
		slog.Debug("Surface resized", "width", g.width, "height", g.height)
	}

	// The cursor is reported in layout coordinates, which are device pixels
	x, y := ebiten.CursorPosition()
	return g.renderer.Update(x/g.ratio, y/g.ratio)
}

// Draw blits the surface onto the screen
func (g *Game) Draw(screen *ebiten.Image) {
	img := g.surface.Image()
	b := img.Bounds()

	if g.frame == nil || g.frame.Bounds().Dx() != b.Dx() || g.frame.Bounds().Dy() != b.Dy() {
		if g.frame != nil {
			g.frame.Deallocate()
		}
		g.frame = ebiten.NewImage(b.Dx(), b.Dy())
	}
	g.frame.WritePixels(img.Pix)
	screen.DrawImage(g.frame, nil)
}

// Layout keeps one surface pixel per device pixel
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	g.width = max(1, outsideWidth*g.ratio)
	g.height = max(1, outsideHeight*g.ratio)
	return g.width, g.height
}

// Close releases the surface
func (g *Game) Close() error {
	return g.surface.Close()
}

// Run opens the window and blocks until it is closed or a draw fails
func Run(opts Options) error {
	if opts.Title == "" {
		opts.Title = "circlepad"
	}

	g, err := NewGame(opts)
	if err != nil {
		return err
	}
	defer g.Close()

	ebiten.SetWindowSize(opts.Width, opts.Height)
	ebiten.SetWindowTitle(opts.Title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowClosingHandled(true)

	slog.Info("Opening window", "width", opts.Width, "height", opts.Height, "pixel_ratio", g.ratio)
	if err := ebiten.RunGame(g); err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	return nil
}
