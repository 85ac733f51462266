// Package capture drives the finite batch-capture loop that turns an
// opened, confirmed camera into a sequentially numbered dataset on disk.
package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/cmercat/picapture/internal/debug"
	"github.com/cmercat/picapture/internal/hw/camera"
	"github.com/cmercat/picapture/internal/store"
)

// Retry discipline for the hardware-facing capture call. Retries exist
// only here; preview frame drops are never retried.
const (
	DefaultRetryBound = 3
	DefaultBackoff    = 500 * time.Millisecond
)

// Report summarizes a completed run.
type Report struct {
	Captured int
	Elapsed  time.Duration
}

// Rate returns captured photos per second.
func (r *Report) Rate() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Captured) / r.Elapsed.Seconds()
}

// Session drives exactly numPhotos captures in strict ascending index
// order. Callers rely on contiguous numbering, so an index is never
// skipped: a capture that keeps failing past the retry bound aborts the
// whole run, with the images already written left on disk.
type Session struct {
	cam   camera.Camera
	files *store.Store

	clk        clock.Clock
	retryBound int
	backoff    time.Duration
}

// Option adjusts a Session.
type Option func(*Session)

// WithClock substitutes the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(s *Session) { s.clk = c }
}

// WithRetry overrides the capture retry bound and backoff.
func WithRetry(bound int, backoff time.Duration) Option {
	return func(s *Session) {
		s.retryBound = bound
		s.backoff = backoff
	}
}

// NewSession builds a capture session over an opened, configured camera
// and an ensured dataset directory.
func NewSession(cam camera.Camera, files *store.Store, opts ...Option) *Session {
	s := &Session{
		cam:        cam,
		files:      files,
		clk:        clock.New(),
		retryBound: DefaultRetryBound,
		backoff:    DefaultBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run captures numPhotos images. On a fatal error the partial dataset is
// retained, not rolled back; the returned report counts what was written.
func (s *Session) Run(ctx context.Context, numPhotos int) (*Report, error) {
	report := &Report{}
	start := s.clk.Now()

	for index := 0; index < numPhotos; index++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		path := s.files.PathFor(index)
		debug.Frame(index, numPhotos, path)

		frame, err := s.captureWithRetry(ctx)
		if err != nil {
			return report, fmt.Errorf("capture image %d/%d: %w", index, numPhotos, err)
		}

		data, err := frame.PNG()
		if err != nil {
			return report, fmt.Errorf("encode image %d/%d: %w", index, numPhotos, err)
		}
		if err := s.files.Write(path, data); err != nil {
			return report, fmt.Errorf("write image %d/%d: %w", index, numPhotos, err)
		}
		report.Captured++
	}

	report.Elapsed = s.clk.Since(start)
	debug.Info("Captured all images. Capture rate: %.2f photos per second.", report.Rate())
	return report, nil
}

// captureWithRetry asks the camera for one still, retrying transient
// hardware failures up to the bound with a short backoff.
func (s *Session) captureWithRetry(ctx context.Context) (*camera.Frame, error) {
	var lastErr error
	for attempt := 1; attempt <= s.retryBound; attempt++ {
		frame, err := s.cam.CaptureStill(ctx)
		if err == nil {
			return frame, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if attempt < s.retryBound {
			debug.Retry(attempt, s.retryBound, err)
			if err := s.sleep(ctx, s.backoff); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("failed after %d attempts: %w", s.retryBound, lastErr)
}

func (s *Session) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := s.clk.Timer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
