// Package term hosts a Renderer in a terminal. The surface is shown at
// half-block resolution and follows the mouse.
package term

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/cwbudde/circlepad/internal/raster"
	"github.com/cwbudde/circlepad/internal/renderer"
	"github.com/gdamore/tcell/v2"
	"golang.org/x/image/draw"
)

const (
	// CellWidth and CellHeight are the logical size of one terminal cell
	CellWidth  = 8
	CellHeight = 16

	halfBlock = '▀'
)

// Host drives a Renderer from tcell events
type Host struct {
	screen   tcell.Screen
	surface  *raster.Surface
	renderer *renderer.Renderer
	ratio    int

	cols, rows int
	offsetX    int
	offsetY    int
}

// New builds a host on an initialized screen. The surface matches the
// screen size in device pixels.
func New(screen tcell.Screen, pixelRatio int, color string) (*Host, error) {
	if _, err := raster.ParseColor(color); err != nil {
		return nil, err
	}

	cols, rows := screen.Size()
	cols, rows = max(cols, 1), max(rows, 1)

	surface, err := raster.NewSurface(cols*CellWidth*max(pixelRatio, 1), rows*CellHeight*max(pixelRatio, 1))
	if err != nil {
		return nil, err
	}
	r, err := renderer.New(surface, pixelRatio, color)
	if err != nil {
		surface.Close()
		return nil, err
	}

	return &Host{
		screen:   screen,
		surface:  surface,
		renderer: r,
		ratio:    pixelRatio,
		cols:     cols,
		rows:     rows,
		offsetX:  cols * CellWidth / 2,
		offsetY:  rows * CellHeight / 2,
	}, nil
}

// Close releases the surface. The screen belongs to the caller.
func (h *Host) Close() error {
	return h.surface.Close()
}

// Offsets returns the logical offsets of the last drawn frame
func (h *Host) Offsets() (int, int) {
	return h.offsetX, h.offsetY
}

// Run draws the first frame and then redraws on every mouse move or resize
// until the user quits, ctx ends, or a draw fails.
func (h *Host) Run(ctx context.Context) error {
	h.screen.EnableMouse(tcell.MouseMotionEvents)
	defer h.screen.DisableMouse()

	events := make(chan tcell.Event, 16)
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		defer close(events)
		for {
			ev := h.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-quit:
				return
			}
		}
	}()

	if err := h.redraw(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			done, err := h.handle(ev)
			if err != nil || done {
				return err
			}
		}
	}
}

// handle processes one event and reports whether the loop should stop
func (h *Host) handle(ev tcell.Event) (bool, error) {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC ||
			(ev.Key() == tcell.KeyRune && ev.Rune() == 'q') {
			return true, nil
		}

	case *tcell.EventMouse:
		col, row := ev.Position()
		h.offsetX = col*CellWidth + CellWidth/2
		h.offsetY = row*CellHeight + CellHeight/2
		return false, h.redraw()

	case *tcell.EventResize:
		cols, rows := ev.Size()
		if cols < 1 || rows < 1 || (cols == h.cols && rows == h.rows) {
			return false, nil
		}
		if err := h.surface.Resize(cols*CellWidth*h.ratio, rows*CellHeight*h.ratio); err != nil {
			return false, err
		}
		h.cols, h.rows = cols, rows
		slog.Debug("Terminal resized", "cols", cols, "rows", rows)
		h.screen.Sync()
		return false, h.redraw()
	}
	return false, nil
}

// redraw updates the surface and paints it onto the screen
func (h *Host) redraw() error {
	if err := h.renderer.Update(h.offsetX, h.offsetY); err != nil {
		return fmt.Errorf("draw frame: %w", err)
	}

	cells := Downsample(h.surface.Image(), h.cols, h.rows)
	Paint(h.screen, cells)
	h.screen.Show()
	return nil
}

// Downsample scales img to cols x 2*rows pixels, two per terminal cell
func Downsample(img image.Image, cols, rows int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, cols, rows*2))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// Paint writes a half-block image to the screen: the upper pixel of each
// cell is the foreground, the lower one the background.
func Paint(screen tcell.Screen, cells *image.RGBA) {
	b := cells.Bounds()
	for y := 0; y+1 < b.Dy(); y += 2 {
		for x := 0; x < b.Dx(); x++ {
			top := cells.RGBAAt(x, y)
			bottom := cells.RGBAAt(x, y+1)
			style := tcell.StyleDefault.
				Foreground(tcell.NewRGBColor(int32(top.R), int32(top.G), int32(top.B))).
				Background(tcell.NewRGBColor(int32(bottom.R), int32(bottom.G), int32(bottom.B)))
			screen.SetContent(x, y/2, halfBlock, nil, style)
		}
	}
}
