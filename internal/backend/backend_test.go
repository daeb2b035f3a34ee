package backend

import (
	"errors"
	"testing"

	"github.com/cwbudde/circlepad/internal/canvas/record"
	"github.com/cwbudde/circlepad/internal/raster"
)

func TestNormalizeBackend(t *testing.T) {
	tests := map[string]Backend{
		"":       BackendRaster,
		" GG ":   BackendRaster,
		"cpu":    BackendRaster,
		"record": BackendRecord,
		"Trace":  BackendRecord,
		"wasm":   Backend("wasm"),
	}

	for in, want := range tests {
		if got := NormalizeBackend(in); got != want {
			t.Errorf("NormalizeBackend(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewSurface(t *testing.T) {
	s, cleanup, err := NewSurface("raster", 32, 16)
	if err != nil {
		t.Fatalf("NewSurface(raster) failed: %v", err)
	}
	defer cleanup()
	if _, ok := s.(*raster.Surface); !ok {
		t.Errorf("Expected *raster.Surface, got %T", s)
	}
	if s.Width() != 32 || s.Height() != 16 {
		t.Errorf("Unexpected size %dx%d", s.Width(), s.Height())
	}

	s, cleanup, err = NewSurface("record", 8, 8)
	if err != nil {
		t.Fatalf("NewSurface(record) failed: %v", err)
	}
	defer cleanup()
	if _, ok := s.(*record.Surface); !ok {
		t.Errorf("Expected *record.Surface, got %T", s)
	}
}

func TestNewSurfaceErrors(t *testing.T) {
	if _, _, err := NewSurface("wasm", 8, 8); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Expected ErrUnknownBackend, got %v", err)
	}
	if _, _, err := NewSurface("raster", 0, 8); err == nil {
		t.Error("Expected error for an empty raster surface")
	}
}
