package camera

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"sync"
	"time"
)

// MockCamera is a Camera implementation for development on PC and for
// tests. Frames are a real (tiny) JPEG so everything downstream of the
// driver, decode included, runs for real. Failures can be scripted
// per call.
type MockCamera struct {
	mu sync.Mutex

	// Scripted failures. OpenErr/ConfigureErr fail the respective call;
	// CaptureErrs is consumed one entry per CaptureStill call, a nil
	// entry meaning success.
	OpenErr      error
	ConfigureErr error
	CaptureErrs  []error

	opened     bool
	configured bool
	closeCount int
	previews   int
	stills     int
	settings   Settings
	frame      []byte
}

var _ Camera = (*MockCamera)(nil)

// NewMockCamera returns a mock producing 8x8 gray JPEG frames.
func NewMockCamera() *MockCamera {
	var buf bytes.Buffer
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	// Encoding a zero image cannot fail on a bytes.Buffer.
	_ = jpeg.Encode(&buf, img, nil)
	return &MockCamera{frame: buf.Bytes()}
}

func (m *MockCamera) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OpenErr != nil {
		return &HardwareError{Op: "open", Err: m.OpenErr}
	}
	m.opened = true
	return nil
}

func (m *MockCamera) Configure(s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.opened {
		return &HardwareError{Op: "configure", Err: errors.New("camera not open")}
	}
	if m.ConfigureErr != nil {
		return &HardwareError{Op: "configure", Err: m.ConfigureErr}
	}
	m.configured = true
	m.settings = s
	return nil
}

func (m *MockCamera) PreviewFrame(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.configured {
		return nil, &HardwareError{Op: "preview", Err: errors.New("camera not configured")}
	}
	m.previews++
	return m.newFrame(), nil
}

func (m *MockCamera) CaptureStill(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.configured {
		return nil, &HardwareError{Op: "capture", Err: errors.New("camera not configured")}
	}
	if len(m.CaptureErrs) > 0 {
		err := m.CaptureErrs[0]
		m.CaptureErrs = m.CaptureErrs[1:]
		if err != nil {
			return nil, &HardwareError{Op: "capture", Err: err}
		}
	}
	m.stills++
	return m.newFrame(), nil
}

func (m *MockCamera) newFrame() *Frame {
	return &Frame{
		Data:       m.frame,
		Width:      m.settings.Width,
		Height:     m.settings.Height,
		CapturedAt: time.Now(),
	}
}

func (m *MockCamera) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCount++
	m.opened = false
	m.configured = false
	return nil
}

// Previews returns the number of PreviewFrame calls.
func (m *MockCamera) Previews() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.previews
}

// Stills returns the number of successful CaptureStill calls.
func (m *MockCamera) Stills() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stills
}

// CloseCount returns how many times Close has been called.
func (m *MockCamera) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCount
}

// AppliedSettings returns the settings passed to Configure.
func (m *MockCamera) AppliedSettings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}
