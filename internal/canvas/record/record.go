// Package record provides an in-memory canvas.Surface that records every
// drawing call instead of rasterizing it.
package record

import (
	"fmt"
	"math"
	"sync"

	"github.com/cwbudde/circlepad/internal/canvas"
)

// Operation names as recorded in Op.Name
const (
	OpSetFillStyle = "setFillStyle"
	OpFillRect     = "fillRect"
	OpBeginPath    = "beginPath"
	OpArc          = "arc"
	OpFill         = "fill"
)

// Op is one recorded drawing call.
// Style holds the fill style that was active when the call was made.
type Op struct {
	Name  string           `json:"op"`
	Args  []float64        `json:"args,omitempty"`
	Style canvas.FillStyle `json:"style,omitempty"`
}

// Surface is a recording drawing target
type Surface struct {
	mu      sync.Mutex
	width   int
	height  int
	claimed bool
	ctx     *Context
}

// NewSurface creates a recording surface with the given device-pixel size
func NewSurface(width, height int) *Surface {
	return &Surface{width: width, height: height}
}

// Width returns the current width in device pixels
func (s *Surface) Width() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width
}

// Height returns the current height in device pixels
func (s *Surface) Height() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.height
}

// Resize changes the surface dimensions. Recorded operations are kept.
func (s *Surface) Resize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height = width, height
}

// Claim marks the surface as owned by an incompatible context mode.
// Later Context2D calls fail unless a 2D context was already acquired.
func (s *Surface) Claim() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimed = true
}

// Context2D returns the surface's recording context
func (s *Surface) Context2D() (canvas.Context2D, error) {
	ctx, err := s.Recorder()
	if err != nil {
		return nil, err
	}
	return ctx, nil
}

// Recorder is Context2D with the concrete type, for inspection
func (s *Surface) Recorder() (*Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return s.ctx, nil
	}
	if s.claimed {
		return nil, fmt.Errorf("%w: surface claimed by another context mode", canvas.ErrContextUnavailable)
	}

	s.ctx = &Context{style: "#000"}
	return s.ctx, nil
}

// Context records drawing calls made through canvas.Context2D
type Context struct {
	mu       sync.Mutex
	style    canvas.FillStyle
	ops      []Op
	failures map[string]error
	onOp     func(Op)
}

var _ canvas.Context2D = (*Context)(nil)

// FailOn makes every later call of the named operation return err.
// A nil err clears the injected failure.
func (c *Context) FailOn(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failures == nil {
		c.failures = make(map[string]error)
	}
	if err == nil {
		delete(c.failures, name)
		return
	}
	c.failures[name] = err
}

// OnOp registers a callback invoked for every recorded operation,
// after the operation is recorded and outside the Context's lock
func (c *Context) OnOp(fn func(Op)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOp = fn
}

// Ops returns a copy of the recorded operations
func (c *Context) Ops() []Op {
	c.mu.Lock()
	defer c.mu.Unlock()

	ops := make([]Op, len(c.ops))
	copy(ops, c.ops)
	return ops
}

// Reset drops the recorded operations. The active fill style is kept.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = nil
}

// SetFillStyle records and applies a fill style
func (c *Context) SetFillStyle(style canvas.FillStyle) {
	c.mu.Lock()
	c.style = style
	c.emit(Op{Name: OpSetFillStyle, Style: style})
}

// FillStyle returns the active fill style
func (c *Context) FillStyle() canvas.FillStyle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.style
}

// FillRect records a rectangle fill
func (c *Context) FillRect(x, y, width, height float64) error {
	c.mu.Lock()
	if err := c.failures[OpFillRect]; err != nil {
		c.mu.Unlock()
		return err
	}
	c.emit(Op{Name: OpFillRect, Args: []float64{x, y, width, height}, Style: c.style})
	return nil
}

// BeginPath records the start of a new path
func (c *Context) BeginPath() {
	c.mu.Lock()
	c.emit(Op{Name: OpBeginPath})
}

// Arc records an arc. A negative radius fails with canvas.ErrIndexSize.
func (c *Context) Arc(x, y, radius, startAngle, endAngle float64) error {
	c.mu.Lock()
	if err := c.failures[OpArc]; err != nil {
		c.mu.Unlock()
		return err
	}
	if !math.IsNaN(radius) && radius < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: radius %v", canvas.ErrIndexSize, radius)
	}
	c.emit(Op{Name: OpArc, Args: []float64{x, y, radius, startAngle, endAngle}})
	return nil
}

// Fill records a path fill with the active style
func (c *Context) Fill() error {
	c.mu.Lock()
	if err := c.failures[OpFill]; err != nil {
		c.mu.Unlock()
		return err
	}
	c.emit(Op{Name: OpFill, Style: c.style})
	return nil
}

// emit appends op and releases c.mu, which the caller must hold.
// The OnOp callback runs unlocked so it may call back into the Context.
func (c *Context) emit(op Op) {
	c.ops = append(c.ops, op)
	fn := c.onOp
	c.mu.Unlock()

	if fn != nil {
		fn(op)
	}
}
