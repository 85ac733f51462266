package display

import (
	"fmt"
	"image"
	"image/draw"
	"unsafe"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/cmercat/picapture/internal/debug"
	"github.com/cmercat/picapture/internal/hw/camera"
)

// SDLDisplay shows preview frames in a window on the display attached to
// the Pi. SDL requires all calls on the main OS thread; the caller locks
// the thread before opening.
type SDLDisplay struct {
	window   *sdl.Window
	renderer *sdl.Renderer
	texture  *sdl.Texture
	width    int
	height   int
}

var _ Display = (*SDLDisplay)(nil)

func NewSDLDisplay() *SDLDisplay {
	return &SDLDisplay{}
}

func (d *SDLDisplay) Open(width, height int) error {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return fmt.Errorf("init SDL: %w", err)
	}

	window, err := sdl.CreateWindow(
		"picapture preview",
		sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED,
		int32(width), int32(height),
		sdl.WINDOW_SHOWN,
	)
	if err != nil {
		sdl.Quit()
		return fmt.Errorf("create window: %w", err)
	}

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
	if err != nil {
		window.Destroy()
		sdl.Quit()
		return fmt.Errorf("create renderer: %w", err)
	}

	texture, err := renderer.CreateTexture(
		sdl.PIXELFORMAT_ABGR8888,
		sdl.TEXTUREACCESS_STREAMING,
		int32(width), int32(height),
	)
	if err != nil {
		renderer.Destroy()
		window.Destroy()
		sdl.Quit()
		return fmt.Errorf("create texture: %w", err)
	}

	d.window = window
	d.renderer = renderer
	d.texture = texture
	d.width = width
	d.height = height
	debug.Verbose("SDL preview window opened (%dx%d)", width, height)
	return nil
}

func (d *SDLDisplay) Render(f *camera.Frame) error {
	// Keep the window responsive; the preview has no interactive events.
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
	}

	img, err := f.Image()
	if err != nil {
		return err
	}

	rgba, ok := img.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(img.Bounds())
		draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	}

	if len(rgba.Pix) == 0 {
		return nil
	}
	if err := d.texture.Update(nil, unsafe.Pointer(&rgba.Pix[0]), rgba.Stride); err != nil {
		return fmt.Errorf("update texture: %w", err)
	}
	if err := d.renderer.Copy(d.texture, nil, nil); err != nil {
		return fmt.Errorf("copy texture: %w", err)
	}
	d.renderer.Present()
	return nil
}

func (d *SDLDisplay) Close() error {
	if d.texture != nil {
		d.texture.Destroy()
		d.texture = nil
	}
	if d.renderer != nil {
		d.renderer.Destroy()
		d.renderer = nil
	}
	if d.window != nil {
		d.window.Destroy()
		d.window = nil
		sdl.Quit()
	}
	return nil
}
