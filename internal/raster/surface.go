// Package raster implements canvas.Surface on top of the gg software rasterizer.
package raster

import (
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"

	"github.com/cwbudde/circlepad/internal/canvas"
	"github.com/gogpu/gg"
)

// Surface is an in-memory RGBA drawing target
type Surface struct {
	dc     *gg.Context
	ctx    *Context
	closed bool
}

var _ canvas.Surface = (*Surface)(nil)

// NewSurface creates a surface of the given size in device pixels
func NewSurface(width, height int) (*Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid surface size %dx%d", width, height)
	}

	return &Surface{dc: gg.NewContext(width, height)}, nil
}

// Width returns the current width in device pixels
func (s *Surface) Width() int {
	return s.dc.Width()
}

// Height returns the current height in device pixels
func (s *Surface) Height() int {
	return s.dc.Height()
}

// Context2D returns the surface's 2D context, creating it on first use.
// It fails once the surface is closed.
func (s *Surface) Context2D() (canvas.Context2D, error) {
	if s.closed {
		return nil, fmt.Errorf("%w: surface closed", canvas.ErrContextUnavailable)
	}
	if s.ctx == nil {
		s.ctx = newContext(s)
	}
	return s.ctx, nil
}

// Resize changes the surface size. Pixel content is discarded.
func (s *Surface) Resize(width, height int) error {
	if s.closed {
		return errors.New("resize closed surface")
	}
	if err := s.dc.Resize(width, height); err != nil {
		return fmt.Errorf("resize surface: %w", err)
	}
	return nil
}

// Image returns a copy of the current pixels
func (s *Surface) Image() *image.RGBA {
	if img, ok := s.dc.Image().(*image.RGBA); ok {
		return img
	}

	bounds := image.Rect(0, 0, s.dc.Width(), s.dc.Height())
	img := image.NewRGBA(bounds)
	src := s.dc.Image()
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			img.Set(x, y, src.At(x, y))
		}
	}
	return img
}

// EncodePNG writes the current pixels as PNG
func (s *Surface) EncodePNG(w io.Writer) error {
	if s.closed {
		return errors.New("encode closed surface")
	}
	return s.dc.EncodePNG(w)
}

// Close releases the drawing context. Later Context2D calls fail.
func (s *Surface) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.dc.Close()
}

// arc is one recorded arc of the current path
type arc struct {
	x, y, r    float64
	start, end float64
}

// Context is the canvas.Context2D of a raster Surface.
// It keeps its own path so that FillRect never disturbs it.
type Context struct {
	surface *Surface
	dc      *gg.Context
	style   canvas.FillStyle
	brush   gg.Brush
	path    []arc
}

var _ canvas.Context2D = (*Context)(nil)

func newContext(s *Surface) *Context {
	return &Context{
		surface: s,
		dc:      s.dc,
		style:   "#000",
		brush:   gg.Solid(gg.Black),
	}
}

// lost reports a closed surface; drawing on it fails like a lost context
func (c *Context) lost() error {
	if c.surface.closed {
		return fmt.Errorf("%w: surface closed", canvas.ErrContextUnavailable)
	}
	return nil
}

// SetFillStyle sets the active fill style.
// Tokens that cannot be turned into a brush are ignored.
func (c *Context) SetFillStyle(style canvas.FillStyle) {
	brush, ok := toBrush(style)
	if !ok {
		slog.Debug("Ignoring unsupported fill style", "style", style)
		return
	}
	c.style = style
	c.brush = brush
}

// FillStyle returns the active fill style token
func (c *Context) FillStyle() canvas.FillStyle {
	return c.style
}

// FillRect fills a rectangle with the active brush
func (c *Context) FillRect(x, y, width, height float64) error {
	if err := c.lost(); err != nil {
		return err
	}
	if !finite(x, y, width, height) {
		return nil
	}
	if width < 0 {
		x, width = x+width, -width
	}
	if height < 0 {
		y, height = y+height, -height
	}
	if width == 0 || height == 0 {
		return nil
	}

	if solid, ok := c.brush.(gg.SolidBrush); ok && solid.Color.A >= 1 && aligned(x, y, width, height) {
		c.fillOpaqueRect(x, y, width, height, solid.Color)
		return nil
	}

	c.dc.ClearPath()
	c.dc.DrawRectangle(x, y, width, height)
	c.dc.SetFillBrush(c.brush)
	if err := c.dc.Fill(); err != nil {
		return fmt.Errorf("fill rect: %w", err)
	}
	return nil
}

// fillOpaqueRect writes pixels directly; blending an opaque color is a copy.
func (c *Context) fillOpaqueRect(x, y, width, height float64, col gg.RGBA) {
	w, h := float64(c.dc.Width()), float64(c.dc.Height())
	if x <= 0 && y <= 0 && x+width >= w && y+height >= h {
		c.dc.ClearWithColor(col)
		return
	}

	x0, y0 := int(math.Max(x, 0)), int(math.Max(y, 0))
	x1, y1 := int(math.Min(x+width, w)), int(math.Min(y+height, h))
	for py := y0; py < y1; py++ {
		for px := x0; px < x1; px++ {
			c.dc.SetPixel(px, py, col)
		}
	}
}

// BeginPath discards the current path
func (c *Context) BeginPath() {
	c.path = c.path[:0]
}

// Arc adds a circular arc. Non-finite arguments make it a no-op and a
// negative radius fails with canvas.ErrIndexSize.
func (c *Context) Arc(x, y, radius, startAngle, endAngle float64) error {
	if !finite(x, y, radius, startAngle, endAngle) {
		return nil
	}
	if radius < 0 {
		return fmt.Errorf("%w: radius %v", canvas.ErrIndexSize, radius)
	}

	if endAngle-startAngle > 2*math.Pi {
		endAngle = startAngle + 2*math.Pi
	}

	c.path = append(c.path, arc{x: x, y: y, r: radius, start: startAngle, end: endAngle})
	return nil
}

// Fill fills the current path with the active brush. The path is kept.
func (c *Context) Fill() error {
	if err := c.lost(); err != nil {
		return err
	}
	if len(c.path) == 0 {
		return nil
	}

	c.dc.ClearPath()
	for i, a := range c.path {
		sx := a.x + a.r*math.Cos(a.start)
		sy := a.y + a.r*math.Sin(a.start)
		if i == 0 {
			c.dc.MoveTo(sx, sy)
		} else {
			c.dc.LineTo(sx, sy)
		}
		c.dc.DrawArc(a.x, a.y, a.r, a.start, a.end)
	}
	c.dc.ClosePath()

	c.dc.SetFillBrush(c.brush)
	if err := c.dc.Fill(); err != nil {
		return fmt.Errorf("fill path: %w", err)
	}
	return nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func aligned(vs ...float64) bool {
	for _, v := range vs {
		if v != math.Trunc(v) {
			return false
		}
	}
	return true
}
