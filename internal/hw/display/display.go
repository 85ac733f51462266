package display

import (
	"sync"

	"github.com/cmercat/picapture/internal/hw/camera"
)

// Display renders preview frames for the operator. The preview loop calls
// Render at a bounded rate; a dropped or slow frame is simply replaced by
// the next one.
type Display interface {
	Open(width, height int) error
	Render(f *camera.Frame) error
	Close() error
}

// MockDisplay is a Display for development on PC and for tests; it counts
// rendered frames and discards them.
type MockDisplay struct {
	mu       sync.Mutex
	opened   bool
	closed   bool
	rendered int
}

var _ Display = (*MockDisplay)(nil)

func NewMockDisplay() *MockDisplay {
	return &MockDisplay{}
}

func (m *MockDisplay) Open(width, height int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = true
	return nil
}

func (m *MockDisplay) Render(f *camera.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rendered++
	return nil
}

func (m *MockDisplay) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Rendered returns the number of frames rendered so far.
func (m *MockDisplay) Rendered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rendered
}

// Closed reports whether Close has been called.
func (m *MockDisplay) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
