package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // frames come off the wire as (M)JPEG
	"image/png"
	"time"
)

// Settings is the hardware-facing subset of the capture configuration,
// applied once per session via Configure.
type Settings struct {
	Width       int
	Height      int
	ISO         int // 0 = leave sensor gain on auto
	Shutter     time.Duration
	AWBRedGain  float64
	AWBBlueGain float64
}

// Frame is one frame read from the camera, still in its wire encoding.
type Frame struct {
	Data       []byte
	Width      int
	Height     int
	CapturedAt time.Time
}

// Image decodes the frame into an image.Image.
func (f *Frame) Image() (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

// PNG re-containers the frame as PNG, the on-disk dataset format.
func (f *Frame) PNG() ([]byte, error) {
	img, err := f.Image()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Camera is the exclusive handle to the physical device. Opened once per
// session, configured once, used by both the preview and capture loops,
// closed exactly once at session end. Close must be safe to call on every
// exit path, including after a partially failed Open.
type Camera interface {
	// Open acquires the hardware handle.
	Open() error
	// Configure applies resolution/iso/shutter/awb-gain settings.
	Configure(Settings) error
	// PreviewFrame returns one frame for display. May be called
	// repeatedly at a bounded rate.
	PreviewFrame(ctx context.Context) (*Frame, error)
	// CaptureStill returns one full-resolution still frame. Must not be
	// called while a preview loop is mid-frame.
	CaptureStill(ctx context.Context) (*Frame, error)
	// Close releases the handle. Idempotent.
	Close() error
}

// HardwareError wraps a camera driver failure with the operation that
// produced it.
type HardwareError struct {
	Op  string // "open", "configure", "preview", "capture"
	Err error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("camera %s: %v", e.Op, e.Err)
}

func (e *HardwareError) Unwrap() error { return e.Err }
