package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

const (
	defaultFrames = 60
	defaultFPS    = 30
	maxFrames     = 10000
	maxFPS        = 240
)

// AnimateRequest moves the circle from one offset to another in equal steps
type AnimateRequest struct {
	FromX  int `json:"fromX"`
	FromY  int `json:"fromY"`
	ToX    int `json:"toX"`
	ToY    int `json:"toY"`
	Frames int `json:"frames"`
	FPS    int `json:"fps"`
}

func (req AnimateRequest) withDefaults() (AnimateRequest, error) {
	if req.Frames == 0 {
		req.Frames = defaultFrames
	}
	if req.FPS == 0 {
		req.FPS = defaultFPS
	}
	if req.Frames < 1 || req.Frames > maxFrames {
		return req, fmt.Errorf("%w: frames must be in [1, %d], got %d", ErrInvalidConfig, maxFrames, req.Frames)
	}
	if req.FPS < 1 || req.FPS > maxFPS {
		return req, fmt.Errorf("%w: fps must be in [1, %d], got %d", ErrInvalidConfig, maxFPS, req.FPS)
	}
	return req, nil
}

// offsetsAt returns the offsets of frame i, rounding to the nearest integer.
// The first frame is at From and the last at To.
func (req AnimateRequest) offsetsAt(i int) (int, int) {
	if req.Frames <= 1 {
		return req.ToX, req.ToY
	}
	t := float64(i) / float64(req.Frames-1)
	x := float64(req.FromX) + t*float64(req.ToX-req.FromX)
	y := float64(req.FromY) + t*float64(req.ToY-req.FromY)
	return int(math.Round(x)), int(math.Round(y))
}

// Animate starts a background animation, replacing any running one
func (sm *SessionManager) Animate(id string, req AnimateRequest) (Session, error) {
	req, err := req.withDefaults()
	if err != nil {
		return Session{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	sm.mu.Lock()
	s, ok := sm.sessions[id]
	if !ok {
		sm.mu.Unlock()
		cancel()
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if s.info.State == StateFailed {
		info := s.info
		sm.mu.Unlock()
		cancel()
		return info, fmt.Errorf("%w: %s", ErrSessionFailed, info.Error)
	}
	if s.cancelAnim != nil {
		s.cancelAnim()
	}
	s.animGen++
	gen := s.animGen
	s.cancelAnim = cancel
	s.info.State = StateAnimating
	info := s.info
	sm.mu.Unlock()

	slog.Info("Starting animation", "session_id", id, "frames", req.Frames, "fps", req.FPS)

	go func() {
		defer cancel()
		err := runAnimation(ctx, sm, id, req)
		sm.finishAnimation(id, gen, err)
	}()

	return info, nil
}

// StopAnimation cancels the running animation, if any
func (sm *SessionManager) StopAnimation(id string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s, ok := sm.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if s.cancelAnim != nil {
		s.cancelAnim()
	}
	return nil
}

// runAnimation draws req.Frames frames, one per tick.
func runAnimation(ctx context.Context, sm *SessionManager, id string, req AnimateRequest) error {
	ticker := time.NewTicker(time.Second / time.Duration(req.FPS))
	defer ticker.Stop()

	for i := 0; i < req.Frames; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}

		x, y := req.offsetsAt(i)
		if _, err := sm.drawFrame(ctx, id, x, y); err != nil {
			return err
		}
	}
	return nil
}

// finishAnimation returns the session to idle unless a newer animation
// took over or the session failed.
func (sm *SessionManager) finishAnimation(id string, gen int, err error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s, ok := sm.sessions[id]
	if !ok || s.animGen != gen {
		return
	}

	s.cancelAnim = nil
	if s.info.State == StateAnimating {
		s.info.State = StateIdle
	}

	switch {
	case err == nil:
		slog.Info("Animation completed", "session_id", id, "frame", s.info.Frame)
	case errors.Is(err, context.Canceled):
		slog.Info("Animation cancelled", "session_id", id)
	default:
		slog.Error("Animation failed", "session_id", id, "error", err)
	}
}
