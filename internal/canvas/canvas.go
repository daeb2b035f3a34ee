package canvas

import "errors"

// FillStyle is an opaque color token (named color, hex string, pattern, gradient).
// It is handed to the drawing context unmodified and never interpreted here.
type FillStyle any

// ClearStyle is the literal white used to clear a surface
const ClearStyle = "#fff"

var (
	// ErrContextUnavailable is returned when a surface cannot provide a 2D context.
	ErrContextUnavailable = errors.New("2d context unavailable")
	// ErrIndexSize is returned by Arc for a negative radius.
	ErrIndexSize = errors.New("index or size is negative")
)

// Context2D is an immediate-mode 2D drawing context bound to one Surface.
//
// The active fill style is shared mutable state: callers that change it
// must restore it before returning control.
type Context2D interface {
	// SetFillStyle sets the active fill style
	SetFillStyle(style FillStyle)

	// FillStyle returns the active fill style as last set
	FillStyle() FillStyle

	// FillRect fills a rectangle with the active fill style without touching the current path
	FillRect(x, y, width, height float64) error

	// BeginPath discards the current path
	BeginPath()

	// Arc adds a circular arc to the current path
	Arc(x, y, radius, startAngle, endAngle float64) error

	// Fill fills the current path with the active fill style
	Fill() error
}

// Surface is a drawing target measured in device pixels.
// Width and Height may change between calls.
type Surface interface {
	Width() int
	Height() int

	// Context2D acquires the surface's 2D context.
	// Repeated calls return the same context.
	Context2D() (Context2D, error)
}
