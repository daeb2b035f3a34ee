package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/circlepad/internal/backend"
	"github.com/cwbudde/circlepad/internal/canvas/record"
	"github.com/cwbudde/circlepad/internal/raster"
)

func TestParseOffset(t *testing.T) {
	tests := []struct {
		in      string
		x, y    int
		wantErr bool
	}{
		{in: "0,0", x: 0, y: 0},
		{in: "100,40", x: 100, y: 40},
		{in: " -7 , 12 ", x: -7, y: 12},
		{in: "10", wantErr: true},
		{in: "a,1", wantErr: true},
		{in: "1,b", wantErr: true},
		{in: "1.5,2", wantErr: true},
	}

	for _, tt := range tests {
		x, y, err := parseOffset(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseOffset(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseOffset(%q) failed: %v", tt.in, err)
			continue
		}
		if x != tt.x || y != tt.y {
			t.Errorf("parseOffset(%q) = (%d,%d), want (%d,%d)", tt.in, x, y, tt.x, tt.y)
		}
	}
}

func TestFramePath(t *testing.T) {
	if got := framePath("out/frame.png", 3); got != "out/frame-0003.png" {
		t.Errorf("framePath = %s", got)
	}
	if got := framePath("frame", 12); got != "frame-0012" {
		t.Errorf("framePath without extension = %s", got)
	}
}

func TestRenderFramesPNG(t *testing.T) {
	out := filepath.Join(t.TempDir(), "frame.png")

	err := renderFrames(nil, renderOptions{
		Width:      200,
		Height:     150,
		PixelRatio: 1,
		Color:      "blue",
		Offsets:    [][2]int{{100, 80}},
		Out:        out,
		Backend:    "raster",
	})
	if err != nil {
		t.Fatalf("renderFrames failed: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("Output missing: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	// Center at (75,55)
	r, g, b, _ := img.At(75, 55).RGBA()
	if r>>8 > 5 || g>>8 > 5 || b>>8 < 250 {
		t.Errorf("Circle center should be blue, got %v", img.At(75, 55))
	}
	r, g, b, _ = img.At(195, 145).RGBA()
	if r>>8 != 255 || g>>8 != 255 || b>>8 != 255 {
		t.Errorf("Background should be white, got %v", img.At(195, 145))
	}
}

func TestRenderFramesNumbered(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "frame.png")

	err := renderFrames(nil, renderOptions{
		Width:      64,
		Height:     64,
		PixelRatio: 1,
		Color:      "black",
		Offsets:    [][2]int{{0, 0}, {10, 10}, {20, 20}},
		Out:        out,
		Backend:    "raster",
	})
	if err != nil {
		t.Fatalf("renderFrames failed: %v", err)
	}

	for i := 1; i <= 3; i++ {
		if _, err := os.Stat(framePath(out, i)); err != nil {
			t.Errorf("Frame %d missing: %v", i, err)
		}
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("Unnumbered output should not be written for several frames")
	}
}

func TestRenderFramesRecord(t *testing.T) {
	var buf bytes.Buffer

	err := renderFrames(&buf, renderOptions{
		Width:      300,
		Height:     200,
		PixelRatio: 2,
		Color:      "#112233",
		Offsets:    [][2]int{{10, 10}, {20, 20}},
		Backend:    "record",
	})
	if err != nil {
		t.Fatalf("renderFrames failed: %v", err)
	}

	var ops []map[string]any
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var op map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &op); err != nil {
			t.Fatalf("Invalid JSON line %q: %v", scanner.Text(), err)
		}
		ops = append(ops, op)
	}

	if len(ops) != 12 {
		t.Fatalf("Expected 12 ops for two frames, got %d", len(ops))
	}
	if ops[4]["op"] != record.OpArc {
		t.Fatalf("Op 4 should be an arc, got %v", ops[4]["op"])
	}
	args := ops[4]["args"].([]any)
	if args[0].(float64) != -5 || args[2].(float64) != 100 {
		t.Errorf("First arc should be at -5 with radius 100, got %v", args)
	}
}

func TestRenderFramesRejectsInput(t *testing.T) {
	base := renderOptions{
		Width:      10,
		Height:     10,
		PixelRatio: 1,
		Color:      "red",
		Offsets:    [][2]int{{0, 0}},
		Out:        filepath.Join(t.TempDir(), "x.png"),
		Backend:    "raster",
	}

	badColor := base
	badColor.Color = "not-a-color"
	if err := renderFrames(nil, badColor); !errors.Is(err, raster.ErrInvalidColor) {
		t.Errorf("Expected ErrInvalidColor, got %v", err)
	}

	badBackend := base
	badBackend.Backend = "vulkan"
	if err := renderFrames(nil, badBackend); !errors.Is(err, backend.ErrUnknownBackend) {
		t.Errorf("Expected ErrUnknownBackend, got %v", err)
	}

	noOffsets := base
	noOffsets.Offsets = nil
	if err := renderFrames(nil, noOffsets); err == nil {
		t.Error("Expected error without offsets")
	}

	badRatio := base
	badRatio.PixelRatio = 0
	if err := renderFrames(nil, badRatio); err == nil {
		t.Error("Expected error for pixel ratio 0")
	}
}
