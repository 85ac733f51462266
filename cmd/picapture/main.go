package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cmercat/picapture/internal/config"
	"github.com/cmercat/picapture/internal/debug"
	"github.com/cmercat/picapture/internal/hw/camera"
	"github.com/cmercat/picapture/internal/hw/display"
	"github.com/cmercat/picapture/internal/hw/gpio"
	"github.com/cmercat/picapture/internal/hw/led"
	"github.com/cmercat/picapture/internal/logic/capture"
	"github.com/cmercat/picapture/internal/logic/preview"
	"github.com/cmercat/picapture/internal/store"
)

// previewCaptureGracePeriod is the pause between the operator confirming
// the preview and the first capture, so the scene can settle.
const previewCaptureGracePeriod = 5 * time.Second

// Exit codes. Everything non-zero is a failed session; the distinctions
// help scripts wrapping the tool.
const (
	exitOK         = 0
	exitFailure    = 1
	exitValidation = 2
	exitRejected   = 3
)

func main() {
	// The SDL preview window must stay on the main OS thread.
	runtime.LockOSThread()

	cfg, err := parseArgs(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "picapture: %v\n", err)
		os.Exit(exitValidation)
	}

	debug.Init(cfg.DebugLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		debug.Error(err)
		fmt.Fprintf(os.Stderr, "picapture: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// run drives one full session: validate, open hardware, preview, confirm,
// capture. Hardware is released on every exit path via defers, so the
// exclusive camera handle and the LED never leak past process exit.
func run(ctx context.Context, cfg *config.CaptureConfig) error {
	debug.Section("Initialization")

	// Validation runs to completion before any hardware or filesystem
	// interaction.
	debug.Step(1, "Validating capture parameters")
	if err := cfg.Validate(); err != nil {
		return err
	}

	debug.Step(2, "Preparing dataset directory")
	files := store.New(cfg.DatasetsRoot, cfg.DatasetName, cfg.NumPhotos)
	existed, err := files.EnsureDirectory()
	if err != nil {
		return err
	}
	if existed {
		debug.Warn("Directory %s already exists, you'll be adding to an existing dataset rather than creating a new one.", files.Dir())
	}
	debug.Value("Dataset directory", files.Dir())

	debug.Step(3, "Opening camera")
	cam := newCamera(cfg)
	if err := cam.Open(); err != nil {
		return err
	}
	defer func() {
		if err := cam.Close(); err != nil {
			debug.Error(fmt.Errorf("closing camera: %w", err))
		}
	}()

	debug.Step(4, "Configuring camera")
	if err := cam.Configure(camera.Settings{
		Width:       cfg.Width,
		Height:      cfg.Height,
		ISO:         cfg.ISO,
		Shutter:     cfg.ShutterSpeed(),
		AWBRedGain:  cfg.AWBRedGain,
		AWBBlueGain: cfg.AWBBlueGain,
	}); err != nil {
		return err
	}

	var statusLED *led.StatusLED
	if cfg.StatusLEDPin > 0 {
		debug.Step(5, "Initializing status LED")
		gpioDriver, err := gpio.NewDriver(cfg.MockHardware)
		if err != nil {
			return fmt.Errorf("init GPIO: %w", err)
		}
		defer func() {
			if err := gpioDriver.Close(); err != nil {
				debug.Error(fmt.Errorf("closing GPIO driver: %w", err))
			}
		}()
		statusLED, err = led.New(gpioDriver, cfg.StatusLEDPin)
		if err != nil {
			return fmt.Errorf("init status LED: %w", err)
		}
		defer func() { _ = statusLED.Off() }()
	}

	debug.Info("Camera configured. Opening preview.")
	if err := runPreview(ctx, cfg, cam, files); err != nil {
		if errors.Is(err, preview.ErrRejected) {
			debug.Info("Camera config rejected after preview. Exiting.")
		}
		return err
	}

	debug.Info("Waiting %v before capturing photos...", previewCaptureGracePeriod)
	if err := sleepCtx(ctx, previewCaptureGracePeriod); err != nil {
		return err
	}

	debug.Info("Starting to capture images...")
	if statusLED != nil {
		_ = statusLED.On()
	}

	sess := capture.NewSession(cam, files)
	report, err := sess.Run(ctx, cfg.NumPhotos)
	if statusLED != nil {
		_ = statusLED.Off()
	}
	if err != nil {
		return err
	}

	debug.Summary("Capture Complete")
	debug.Value("Images captured", report.Captured)
	debug.Value("Capture rate (photos/s)", debug.Fmt("%.2f", report.Rate()))
	return nil
}

// runPreview shows the live preview and, if configured, blocks on the
// operator's confirmation. The temporary inspection still is always
// removed afterwards, on the rejection path included; it is never part of
// the dataset. Extra options let tests substitute the operator prompt.
func runPreview(ctx context.Context, cfg *config.CaptureConfig, cam camera.Camera, files *store.Store, opts ...preview.Option) error {
	disp := newDisplay(cfg)
	if err := disp.Open(cfg.Width, cfg.Height); err != nil {
		return fmt.Errorf("open preview display: %w", err)
	}
	defer func() { _ = disp.Close() }()

	var previewStill string
	snapshot := func(f *camera.Frame) (string, error) {
		data, err := f.PNG()
		if err != nil {
			return "", err
		}
		path := files.PreviewPath(f.CapturedAt)
		if err := files.Write(path, data); err != nil {
			return "", err
		}
		previewStill = path
		return path, nil
	}
	defer func() {
		if previewStill != "" {
			if err := files.Remove(previewStill); err != nil {
				debug.Error(fmt.Errorf("removing preview still: %w", err))
			}
		}
	}()

	sessOpts := append([]preview.Option{preview.WithSnapshot(snapshot)}, opts...)
	sess := preview.NewSession(cam, disp, cfg.PreviewDuration(), cfg.PromptOnTimeout, sessOpts...)
	if err := sess.Run(ctx); err != nil {
		return err
	}

	debug.Settings(cfg.ISO, cfg.ShutterSpeedMs, cfg.AWBRedGain, cfg.AWBBlueGain)
	return nil
}

// newCamera selects the camera implementation based on configuration.
func newCamera(cfg *config.CaptureConfig) camera.Camera {
	if cfg.MockHardware {
		debug.Info("Using MOCK camera (development mode)")
		return camera.NewMockCamera()
	}
	return camera.NewV4L2Camera(cfg.Device)
}

// newDisplay selects the preview display implementation.
func newDisplay(cfg *config.CaptureConfig) display.Display {
	if cfg.MockHardware {
		return display.NewMockDisplay()
	}
	return display.NewSDLDisplay()
}

// sleepCtx waits for d unless ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// exitCode maps a session error to the process exit code.
func exitCode(err error) int {
	var verr *config.ValidationError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &verr):
		return exitValidation
	case errors.Is(err, preview.ErrRejected):
		return exitRejected
	default:
		return exitFailure
	}
}

// resolutionFlag implements flag.Value for --resolution WxH.
type resolutionFlag struct {
	width, height int
}

func (r *resolutionFlag) String() string {
	if r.width == 0 && r.height == 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", r.width, r.height)
}

func (r *resolutionFlag) Set(s string) error {
	w, h, ok := strings.Cut(s, "x")
	if !ok {
		return fmt.Errorf("resolution must be WxH, got %q", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return fmt.Errorf("resolution width: %w", err)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return fmt.Errorf("resolution height: %w", err)
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("resolution must be positive, got %q", s)
	}
	r.width = width
	r.height = height
	return nil
}

// parseArgs builds the capture configuration from an optional profile file
// plus CLI flags. Only flags the operator actually set override the
// profile, so a profile can carry a full lighting setup and a run can
// still tweak one parameter.
func parseArgs(fs *flag.FlagSet, args []string) (*config.CaptureConfig, error) {
	profile := fs.String("profile", "", "path to a .yaml capture profile")
	resolution := &resolutionFlag{}
	fs.Var(resolution, "resolution", "resolution of output images, WxH (e.g. 2000x2000)")
	iso := fs.Int("iso", config.DefaultISO, "sensor gain (0-800, 0 = auto); higher is brighter but noisier")
	shutter := fs.Int("shutter-speed", config.DefaultShutterSpeedMs, "how long the shutter is open per image, in milliseconds")
	redGain := fs.Float64("awb-red-gain", config.DefaultAWBRedGain, "red white-balance gain (0.0-8.0); set so a known white object renders white")
	blueGain := fs.Float64("awb-blue-gain", config.DefaultAWBBlueGain, "blue white-balance gain (0.0-8.0); set so a known white object renders white")
	previewTime := fs.Int("preview-time", config.DefaultPreviewSeconds, "seconds the preview is displayed before capturing starts")
	promptOnTimeout := fs.Bool("prompt-on-timeout", true, "ask whether the preview looked okay before the capture phase begins")
	datasetsLocation := fs.String("datasets-location", "", "directory all datasets are saved to; should have ample disk space")
	datasetName := fs.String("dataset-name", config.DefaultDatasetName, "photos are placed in datasets-location/dataset-name/")
	numPhotos := fs.Int("num-photos-to-take", config.DefaultNumPhotos, "number of photos to take for this run")
	device := fs.String("device", "/dev/video0", "camera device path")
	ledPin := fs.Int("status-led-pin", 0, "GPIO pin of the capture status LED; 0 disables it")
	mockHardware := fs.Bool("mock-hardware", false, "use mock camera/GPIO/display (development on PC)")
	debugLevel := fs.Int("debug", debug.LevelInfo, "debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := config.Default()
	if *profile != "" {
		if err := config.ValidateProfilePath(*profile); err != nil {
			return nil, err
		}
		loaded, err := config.Load(*profile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	// Apply only the flags that were explicitly set, so flags override the
	// profile without clobbering it with defaults.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "resolution":
			cfg.Width = resolution.width
			cfg.Height = resolution.height
		case "iso":
			cfg.ISO = *iso
		case "shutter-speed":
			cfg.ShutterSpeedMs = *shutter
		case "awb-red-gain":
			cfg.AWBRedGain = *redGain
		case "awb-blue-gain":
			cfg.AWBBlueGain = *blueGain
		case "preview-time":
			cfg.PreviewSeconds = *previewTime
		case "prompt-on-timeout":
			cfg.PromptOnTimeout = *promptOnTimeout
		case "datasets-location":
			cfg.DatasetsRoot = *datasetsLocation
		case "dataset-name":
			cfg.DatasetName = *datasetName
		case "num-photos-to-take":
			cfg.NumPhotos = *numPhotos
		case "device":
			cfg.Device = *device
		case "status-led-pin":
			cfg.StatusLEDPin = *ledPin
		case "mock-hardware":
			cfg.MockHardware = *mockHardware
		case "debug":
			cfg.DebugLevel = *debugLevel
		}
	})

	return cfg, nil
}
