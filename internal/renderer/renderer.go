// Package renderer draws a single filled circle onto a host-provided surface.
//
// A Renderer is not safe for concurrent use. The host is expected to call
// Update from a single rendering loop.
package renderer

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/circlepad/internal/canvas"
)

const (
	// centerShift is subtracted from the scaled offset on both axes
	centerShift = 25
	// baseRadius is the circle radius in logical units
	baseRadius = 50
)

var (
	// ErrNilSurface is returned when New is called without a surface.
	ErrNilSurface = errors.New("renderer: nil surface")
	// ErrInvalidPixelRatio is returned for a pixel ratio below 1.
	ErrInvalidPixelRatio = errors.New("renderer: pixel ratio must be >= 1")
)

// Geometry is the circle drawn for one pair of offsets, in device pixels
type Geometry struct {
	CenterX float64 `json:"centerX"`
	CenterY float64 `json:"centerY"`
	Radius  float64 `json:"radius"`
}

// Renderer owns a surface, its 2D context, a pixel ratio and a fill color.
// All fields are fixed after New.
type Renderer struct {
	surface    canvas.Surface
	ctx        canvas.Context2D
	pixelRatio int
	fillColor  canvas.FillStyle
}

// New acquires the surface's 2D context and returns a Renderer bound to it.
// Nothing is drawn. If the context cannot be acquired no Renderer is returned.
func New(surface canvas.Surface, pixelRatio int, fillColor canvas.FillStyle) (*Renderer, error) {
	if surface == nil {
		return nil, ErrNilSurface
	}
	if pixelRatio < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPixelRatio, pixelRatio)
	}

	ctx, err := surface.Context2D()
	if err != nil {
		return nil, fmt.Errorf("acquire 2d context: %w", err)
	}
	if ctx == nil {
		return nil, canvas.ErrContextUnavailable
	}

	return &Renderer{
		surface:    surface,
		ctx:        ctx,
		pixelRatio: pixelRatio,
		fillColor:  fillColor,
	}, nil
}

// PixelRatio returns the logical-to-device scale factor
func (r *Renderer) PixelRatio() int {
	return r.pixelRatio
}

// FillColor returns the configured circle color
func (r *Renderer) FillColor() canvas.FillStyle {
	return r.fillColor
}

// Circle returns the geometry Update draws for the given offsets
func (r *Renderer) Circle(offsetX, offsetY int) Geometry {
	return Geometry{
		CenterX: float64(r.pixelRatio*offsetX - centerShift),
		CenterY: float64(r.pixelRatio*offsetY - centerShift),
		Radius:  float64(r.pixelRatio * baseRadius),
	}
}

// Update clears the surface to white and fills one circle at the scaled offsets.
// Any failing drawing call is returned as is; the surface is left as the
// context left it.
func (r *Renderer) Update(offsetX, offsetY int) error {
	if err := r.clear(); err != nil {
		return fmt.Errorf("clear: %w", err)
	}

	c := r.Circle(offsetX, offsetY)

	r.ctx.BeginPath()
	if err := r.ctx.Arc(c.CenterX, c.CenterY, c.Radius, 0, 2*math.Pi); err != nil {
		return fmt.Errorf("arc: %w", err)
	}
	if err := r.ctx.Fill(); err != nil {
		return fmt.Errorf("fill: %w", err)
	}
	return nil
}

// clear paints the whole surface white, sized fresh on every call.
// The fill color is the active style again on return, even on failure.
func (r *Renderer) clear() error {
	r.ctx.SetFillStyle(canvas.ClearStyle)
	defer r.ctx.SetFillStyle(r.fillColor)

	width, height := r.surface.Width(), r.surface.Height()
	return r.ctx.FillRect(0, 0, float64(width), float64(height))
}
