// Package preview drives the live camera preview the operator uses to
// judge lighting and camera settings before a batch capture starts.
package preview

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/looplab/fsm"

	"github.com/cmercat/picapture/internal/debug"
	"github.com/cmercat/picapture/internal/hw/camera"
	"github.com/cmercat/picapture/internal/hw/display"
)

// ErrRejected is returned when the operator declines the settings at the
// confirmation prompt. Fatal to the session by design, not a bug: no
// images are captured and the process exits non-zero.
var ErrRejected = errors.New("camera settings rejected by operator")

// Session states.
const (
	StateRunning              = "running"
	StateTimedOut             = "timed_out"
	StateAwaitingConfirmation = "awaiting_confirmation"
	StateConfirmed            = "confirmed"
	StateRejected             = "rejected"
)

// Transition events.
const (
	eventElapse = "elapse" // preview duration reached
	eventPrompt = "prompt" // operator confirmation required
	eventAccept = "accept" // operator approved the settings
	eventReject = "reject" // operator declined the settings
	eventPass   = "pass"   // no prompt configured, pass straight through
)

// defaultFrameInterval bounds the preview frame rate.
const defaultFrameInterval = time.Second / camera.DefaultFramerate

// Confirmer asks the operator a yes/no question and blocks for the answer.
type Confirmer interface {
	Confirm() (bool, error)
}

// SnapshotFunc persists one inspection still at preview end so the
// operator can review the exact output before confirming. It returns the
// written path.
type SnapshotFunc func(*camera.Frame) (string, error)

// Session renders preview frames to the display for a bounded wall-clock
// duration, then either passes straight through to Confirmed or blocks on
// the operator's yes/no answer. Confirmed is the only state from which a
// batch capture may start.
type Session struct {
	cam             camera.Camera
	disp            display.Display
	duration        time.Duration
	promptOnTimeout bool

	clk           clock.Clock
	confirmer     Confirmer
	snapshot      SnapshotFunc
	frameInterval time.Duration

	machine *fsm.FSM
}

// Option adjusts a Session.
type Option func(*Session)

// WithClock substitutes the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(s *Session) { s.clk = c }
}

// WithConfirmer substitutes the operator prompt.
func WithConfirmer(c Confirmer) Option {
	return func(s *Session) { s.confirmer = c }
}

// WithSnapshot installs the inspection-still writer.
func WithSnapshot(f SnapshotFunc) Option {
	return func(s *Session) { s.snapshot = f }
}

// WithFrameInterval overrides the preview frame pacing.
func WithFrameInterval(d time.Duration) Option {
	return func(s *Session) { s.frameInterval = d }
}

// NewSession builds a preview session over an opened, configured camera.
func NewSession(cam camera.Camera, disp display.Display, duration time.Duration, promptOnTimeout bool, opts ...Option) *Session {
	s := &Session{
		cam:             cam,
		disp:            disp,
		duration:        duration,
		promptOnTimeout: promptOnTimeout,
		clk:             clock.New(),
		confirmer:       TerminalConfirmer{},
		frameInterval:   defaultFrameInterval,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.machine = fsm.NewFSM(
		StateRunning,
		fsm.Events{
			{Name: eventElapse, Src: []string{StateRunning}, Dst: StateTimedOut},
			{Name: eventPrompt, Src: []string{StateTimedOut}, Dst: StateAwaitingConfirmation},
			{Name: eventAccept, Src: []string{StateAwaitingConfirmation}, Dst: StateConfirmed},
			{Name: eventReject, Src: []string{StateAwaitingConfirmation}, Dst: StateRejected},
			{Name: eventPass, Src: []string{StateTimedOut}, Dst: StateConfirmed},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				debug.State(e.Src, e.Dst)
			},
		},
	)
	return s
}

// State returns the current session state.
func (s *Session) State() string {
	return s.machine.Current()
}

// Confirmed reports whether the session ended in the Confirmed state.
func (s *Session) Confirmed() bool {
	return s.machine.Current() == StateConfirmed
}

// Run drives the preview to a terminal state. It returns nil only from
// Confirmed. Operator rejection returns ErrRejected; an interrupted
// context returns its error. The camera stays open either way, the caller
// owns its lifecycle.
func (s *Session) Run(ctx context.Context) error {
	if err := s.renderLoop(ctx); err != nil {
		return err
	}

	if err := s.machine.Event(eventElapse); err != nil {
		return fmt.Errorf("preview state machine: %w", err)
	}

	if s.snapshot != nil {
		s.captureSnapshot(ctx)
	}

	if !s.promptOnTimeout {
		if err := s.machine.Event(eventPass); err != nil {
			return fmt.Errorf("preview state machine: %w", err)
		}
		return nil
	}

	if err := s.machine.Event(eventPrompt); err != nil {
		return fmt.Errorf("preview state machine: %w", err)
	}
	ok, err := s.confirmer.Confirm()
	if err != nil {
		return fmt.Errorf("confirmation prompt: %w", err)
	}
	if !ok {
		if err := s.machine.Event(eventReject); err != nil {
			return fmt.Errorf("preview state machine: %w", err)
		}
		return ErrRejected
	}
	if err := s.machine.Event(eventAccept); err != nil {
		return fmt.Errorf("preview state machine: %w", err)
	}
	return nil
}

// renderLoop shows frames until the wall-clock bound elapses or the
// operator interrupts. Frame drops are not retried; the next frame simply
// replaces the missing one.
func (s *Session) renderLoop(ctx context.Context) error {
	if s.duration <= 0 {
		return nil
	}

	deadline := s.clk.Now().Add(s.duration)
	ticker := s.clk.Ticker(s.frameInterval)
	defer ticker.Stop()

	for s.clk.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		frame, err := s.cam.PreviewFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			debug.Verbose("Preview frame dropped: %v", err)
			continue
		}
		if err := s.disp.Render(frame); err != nil {
			debug.Verbose("Preview render failed: %v", err)
		}
	}
	return nil
}

// captureSnapshot writes the inspection still. Best-effort: a failed
// snapshot still lets the operator judge from the live preview they just
// watched.
func (s *Session) captureSnapshot(ctx context.Context) {
	frame, err := s.cam.CaptureStill(ctx)
	if err != nil {
		debug.Warn("Preview inspection still failed: %v", err)
		return
	}
	path, err := s.snapshot(frame)
	if err != nil {
		debug.Warn("Preview inspection still not written: %v", err)
		return
	}
	debug.Info("Preview image available at %s", path)
}
