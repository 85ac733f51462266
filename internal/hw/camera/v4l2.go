package camera

import (
	"context"
	"errors"
	"time"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"

	"github.com/cmercat/picapture/internal/debug"
)

// DefaultFramerate is the stream framerate requested from the device. The
// preview loop paces itself below this, so the driver never starves it.
const DefaultFramerate = 30

// V4L2 control IDs used to pin the sensor settings. Values are from the
// V4L2 ABI (videodev2.h).
const (
	ctrlAutoWhiteBalance   v4l2.CtrlID = 0x0098090c // V4L2_CID_AUTO_WHITE_BALANCE
	ctrlRedBalance         v4l2.CtrlID = 0x0098090e // V4L2_CID_RED_BALANCE
	ctrlBlueBalance        v4l2.CtrlID = 0x0098090f // V4L2_CID_BLUE_BALANCE
	ctrlExposureAuto       v4l2.CtrlID = 0x009a0901 // V4L2_CID_EXPOSURE_AUTO
	ctrlExposureAbsolute   v4l2.CtrlID = 0x009a0902 // V4L2_CID_EXPOSURE_ABSOLUTE, 100us units
	ctrlISOSensitivity     v4l2.CtrlID = 0x009a0917 // V4L2_CID_ISO_SENSITIVITY
	ctrlISOSensitivityAuto v4l2.CtrlID = 0x009a0918 // V4L2_CID_ISO_SENSITIVITY_AUTO

	exposureManual = 1 // V4L2_EXPOSURE_MANUAL
	exposureAuto   = 0 // V4L2_EXPOSURE_AUTO

	isoSensitivityManual = 0
	isoSensitivityAuto   = 1
)

// Frame read timeouts. Stills are allowed more latency than preview
// frames since the pipeline may requeue buffers after a long exposure.
const (
	previewFrameTimeout = 2 * time.Second
	stillFrameTimeout   = 10 * time.Second
)

// V4L2Camera drives a V4L2 device (the Pi camera through the unicam/bcm
// stack, or any USB webcam) via go4vl. It streams MJPEG at the configured
// resolution; both preview frames and stills come off the same stream.
type V4L2Camera struct {
	path string

	dev      *device.Device
	stop     context.CancelFunc
	frames   <-chan []byte
	settings Settings
}

var _ Camera = (*V4L2Camera)(nil)

// NewV4L2Camera returns an unopened camera for the given device path.
func NewV4L2Camera(path string) *V4L2Camera {
	return &V4L2Camera{path: path}
}

// Open acquires the device handle. Fails if the device is missing or
// already held by another process.
func (c *V4L2Camera) Open() error {
	debug.Camera("open", c.path)

	dev, err := device.Open(
		c.path,
		device.WithBufferSize(2),
		device.WithFPS(DefaultFramerate),
	)
	if err != nil {
		return &HardwareError{Op: "open", Err: err}
	}
	c.dev = dev
	return nil
}

// Configure applies the pixel format and sensor controls, then starts the
// stream. Rejected settings fail the session rather than silently running
// with whatever the driver picked.
func (c *V4L2Camera) Configure(s Settings) error {
	if c.dev == nil {
		return &HardwareError{Op: "configure", Err: errors.New("camera not open")}
	}
	debug.Camera("configure", s)

	if err := c.dev.SetPixFormat(v4l2.PixFormat{
		PixelFormat: v4l2.PixelFmtMJPEG,
		Width:       uint32(s.Width),
		Height:      uint32(s.Height),
		Field:       v4l2.FieldNone,
	}); err != nil {
		return &HardwareError{Op: "configure", Err: err}
	}

	if err := c.applyControls(s); err != nil {
		return &HardwareError{Op: "configure", Err: err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := c.dev.Start(ctx); err != nil {
		cancel()
		return &HardwareError{Op: "configure", Err: err}
	}
	c.stop = cancel
	c.frames = c.dev.GetOutput()
	c.settings = s
	return nil
}

// applyControls pins gain, exposure and white balance so every frame in the
// dataset is captured under identical settings.
func (c *V4L2Camera) applyControls(s Settings) error {
	fd := c.dev.Fd()

	// White balance: disable auto, then fix the channel gains.
	// Gains are driver units of 1/1000.
	if err := v4l2.SetControlValue(fd, ctrlAutoWhiteBalance, 0); err != nil {
		return err
	}
	if err := v4l2.SetControlValue(fd, ctrlRedBalance, v4l2.CtrlValue(s.AWBRedGain*1000)); err != nil {
		return err
	}
	if err := v4l2.SetControlValue(fd, ctrlBlueBalance, v4l2.CtrlValue(s.AWBBlueGain*1000)); err != nil {
		return err
	}

	// Exposure: ExposureAbsolute is in 100us units.
	if s.Shutter > 0 {
		if err := v4l2.SetControlValue(fd, ctrlExposureAuto, exposureManual); err != nil {
			return err
		}
		if err := v4l2.SetControlValue(fd, ctrlExposureAbsolute, v4l2.CtrlValue(s.Shutter.Microseconds()/100)); err != nil {
			return err
		}
	} else {
		if err := v4l2.SetControlValue(fd, ctrlExposureAuto, exposureAuto); err != nil {
			return err
		}
	}

	// ISO: 0 keeps sensor gain on auto, anything else pins it.
	if s.ISO > 0 {
		if err := v4l2.SetControlValue(fd, ctrlISOSensitivityAuto, isoSensitivityManual); err != nil {
			return err
		}
		if err := v4l2.SetControlValue(fd, ctrlISOSensitivity, v4l2.CtrlValue(s.ISO)); err != nil {
			return err
		}
	} else if err := v4l2.SetControlValue(fd, ctrlISOSensitivityAuto, isoSensitivityAuto); err != nil {
		return err
	}

	return nil
}

// PreviewFrame returns the next frame off the stream.
func (c *V4L2Camera) PreviewFrame(ctx context.Context) (*Frame, error) {
	f, err := c.nextFrame(ctx, previewFrameTimeout)
	if err != nil {
		return nil, &HardwareError{Op: "preview", Err: err}
	}
	return f, nil
}

// CaptureStill returns one full-resolution still. The stream runs at the
// configured capture resolution, so a still is simply the next complete
// frame, with a timeout wide enough for long exposures.
func (c *V4L2Camera) CaptureStill(ctx context.Context) (*Frame, error) {
	timeout := stillFrameTimeout
	if 2*c.settings.Shutter > timeout {
		timeout = 2 * c.settings.Shutter
	}
	f, err := c.nextFrame(ctx, timeout)
	if err != nil {
		return nil, &HardwareError{Op: "capture", Err: err}
	}
	return f, nil
}

// nextFrame blocks for the next frame. The driver owns and reuses the
// frame buffer, so the bytes are copied out before returning.
func (c *V4L2Camera) nextFrame(ctx context.Context, timeout time.Duration) (*Frame, error) {
	if c.frames == nil {
		return nil, errors.New("camera not configured")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case b, ok := <-c.frames:
		if !ok {
			return nil, errors.New("frame stream closed")
		}
		data := make([]byte, len(b))
		copy(data, b)
		return &Frame{
			Data:       data,
			Width:      c.settings.Width,
			Height:     c.settings.Height,
			CapturedAt: time.Now(),
		}, nil
	case <-timer.C:
		return nil, errors.New("frame timeout")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the stream and releases the device. Idempotent, and safe to
// call even if Open partially failed.
func (c *V4L2Camera) Close() error {
	debug.Camera("close", c.path)

	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
	if c.dev == nil {
		return nil
	}
	err := c.dev.Close()
	c.dev = nil
	c.frames = nil
	return err
}
