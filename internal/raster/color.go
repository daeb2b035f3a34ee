package raster

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/gogpu/gg"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/colornames"
)

// ErrInvalidColor is returned by ParseColor for strings it cannot interpret.
var ErrInvalidColor = errors.New("invalid color")

// ParseColor interprets a CSS-style color string: a named color ("cornflowerblue"),
// "transparent", or a hex form "#rgb", "#rgba", "#rrggbb", "#rrggbbaa".
func ParseColor(s string) (color.Color, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return nil, fmt.Errorf("%w: empty string", ErrInvalidColor)
	}
	if name == "transparent" {
		return color.NRGBA{}, nil
	}
	if c, ok := colornames.Map[name]; ok {
		return c, nil
	}
	if !strings.HasPrefix(name, "#") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}

	hex := name[1:]
	alpha := uint64(255)

	switch len(hex) {
	case 3, 6:
	case 4:
		a, err := strconv.ParseUint(hex[3:], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidColor, s)
		}
		alpha = a * 17
		hex = hex[:3]
	case 8:
		a, err := strconv.ParseUint(hex[6:], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidColor, s)
		}
		alpha = a
		hex = hex[:6]
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}

	c, err := colorful.Hex("#" + hex)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidColor, s, err)
	}

	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: uint8(alpha)}, nil
}

// toBrush converts a fill style token into a gg brush.
// The boolean is false for tokens the raster context does not understand.
func toBrush(style any) (gg.Brush, bool) {
	switch v := style.(type) {
	case gg.Brush:
		return v, true
	case gg.RGBA:
		return gg.Solid(v), true
	case color.Color:
		return gg.Solid(gg.FromColor(v)), true
	case string:
		c, err := ParseColor(v)
		if err != nil {
			return nil, false
		}
		return gg.Solid(gg.FromColor(c)), true
	default:
		return nil, false
	}
}
