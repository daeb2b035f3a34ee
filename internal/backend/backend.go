// Package backend selects the surface implementation a host draws on.
package backend

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cwbudde/circlepad/internal/canvas"
	"github.com/cwbudde/circlepad/internal/canvas/record"
	"github.com/cwbudde/circlepad/internal/raster"
)

// Backend identifies a surface implementation.
type Backend string

const (
	BackendRaster Backend = "raster"
	BackendRecord Backend = "record"
)

// ErrUnknownBackend is returned when the name does not match a known backend.
var ErrUnknownBackend = errors.New("unknown surface backend")

var noopCleanup = func() {}

// NormalizeBackend maps arbitrary user input to a canonical backend identifier.
func NormalizeBackend(name string) Backend {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "raster", "gg", "cpu":
		return BackendRaster
	case "record", "recorder", "trace":
		return BackendRecord
	default:
		return Backend(name)
	}
}

// SupportedBackends returns the list of backends understood by the factory.
func SupportedBackends() []Backend {
	return []Backend{BackendRaster, BackendRecord}
}

// NewSurface constructs a surface of the requested backend and returns a cleanup hook.
func NewSurface(name string, width, height int) (canvas.Surface, func(), error) {
	switch NormalizeBackend(name) {
	case BackendRaster:
		s, err := raster.NewSurface(width, height)
		if err != nil {
			return nil, noopCleanup, err
		}
		cleanup := func() {
			if err := s.Close(); err != nil {
				slog.Warn("Failed to close surface", "error", err)
			}
		}
		return s, cleanup, nil
	case BackendRecord:
		return record.NewSurface(width, height), noopCleanup, nil
	default:
		return nil, noopCleanup, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
}
