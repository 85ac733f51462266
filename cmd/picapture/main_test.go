package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cmercat/picapture/internal/config"
	"github.com/cmercat/picapture/internal/hw/camera"
	"github.com/cmercat/picapture/internal/logic/preview"
	"github.com/cmercat/picapture/internal/store"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("picapture", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// ---------- resolutionFlag ----------

func TestResolutionFlag_Valid(t *testing.T) {
	var r resolutionFlag
	if err := r.Set("2000x2000"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.width != 2000 || r.height != 2000 {
		t.Errorf("got %dx%d, want 2000x2000", r.width, r.height)
	}
	if r.String() != "2000x2000" {
		t.Errorf("String() = %q, want %q", r.String(), "2000x2000")
	}
}

func TestResolutionFlag_Invalid(t *testing.T) {
	cases := []string{
		"",
		"2000",
		"2000x",
		"x2000",
		"axb",
		"0x100",
		"-1x100",
		"100x-1",
	}
	for _, tc := range cases {
		var r resolutionFlag
		if err := r.Set(tc); err == nil {
			t.Errorf("expected error for %q, got nil", tc)
		}
	}
}

// ---------- parseArgs ----------

func TestParseArgs_Defaults(t *testing.T) {
	cfg, err := parseArgs(newFlagSet(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Width != config.DefaultWidth || cfg.Height != config.DefaultHeight {
		t.Errorf("resolution = %dx%d, want defaults", cfg.Width, cfg.Height)
	}
	if !cfg.PromptOnTimeout {
		t.Error("prompt_on_timeout should default to true")
	}
	if cfg.NumPhotos != config.DefaultNumPhotos {
		t.Errorf("num_photos = %d, want %d", cfg.NumPhotos, config.DefaultNumPhotos)
	}
}

func TestParseArgs_Flags(t *testing.T) {
	cfg, err := parseArgs(newFlagSet(), []string{
		"--resolution", "1280x720",
		"--iso", "200",
		"--shutter-speed", "2000",
		"--awb-red-gain", "2.0",
		"--awb-blue-gain", "1.5",
		"--preview-time", "0",
		"--prompt-on-timeout=false",
		"--datasets-location", "/tmp/d",
		"--dataset-name", "faces",
		"--num-photos-to-take", "3",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Width != 1280 || cfg.Height != 720 {
		t.Errorf("resolution = %dx%d, want 1280x720", cfg.Width, cfg.Height)
	}
	if cfg.ISO != 200 || cfg.ShutterSpeedMs != 2000 {
		t.Errorf("iso/shutter = %d/%d, want 200/2000", cfg.ISO, cfg.ShutterSpeedMs)
	}
	if cfg.PromptOnTimeout {
		t.Error("prompt_on_timeout should be false")
	}
	if cfg.PreviewSeconds != 0 {
		t.Errorf("preview_seconds = %d, want 0", cfg.PreviewSeconds)
	}
	if cfg.DatasetsRoot != "/tmp/d" || cfg.DatasetName != "faces" || cfg.NumPhotos != 3 {
		t.Errorf("dataset = %s/%s n=%d", cfg.DatasetsRoot, cfg.DatasetName, cfg.NumPhotos)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("parsed config should validate: %v", err)
	}
}

func TestParseArgs_FlagsOverrideProfile(t *testing.T) {
	profile := filepath.Join(t.TempDir(), "studio.yaml")
	content := "iso: 400\nnum_photos: 50\ndatasets_root: /mnt/data\n"
	if err := os.WriteFile(profile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := parseArgs(newFlagSet(), []string{
		"--profile", profile,
		"--iso", "100",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Explicit flag wins over the profile.
	if cfg.ISO != 100 {
		t.Errorf("iso = %d, want 100 (flag over profile)", cfg.ISO)
	}
	// Profile values survive where no flag was set.
	if cfg.NumPhotos != 50 {
		t.Errorf("num_photos = %d, want 50 (from profile)", cfg.NumPhotos)
	}
	if cfg.DatasetsRoot != "/mnt/data" {
		t.Errorf("datasets_root = %q, want /mnt/data (from profile)", cfg.DatasetsRoot)
	}
}

func TestParseArgs_BadProfilePath(t *testing.T) {
	if _, err := parseArgs(newFlagSet(), []string{"--profile", "nope.json"}); err == nil {
		t.Error("expected error for non-yaml profile")
	}
}

func TestParseArgs_BadResolution(t *testing.T) {
	if _, err := parseArgs(newFlagSet(), []string{"--resolution", "bananas"}); err == nil {
		t.Error("expected error for malformed resolution")
	}
}

// ---------- runPreview ----------

// fixedConfirmer answers the confirmation prompt without a terminal.
type fixedConfirmer struct {
	answer bool
}

func (f fixedConfirmer) Confirm() (bool, error) { return f.answer, nil }

func newPreviewFixture(t *testing.T) (*config.CaptureConfig, *camera.MockCamera, *store.Store) {
	t.Helper()
	cfg := config.Default()
	cfg.DatasetsRoot = t.TempDir()
	cfg.PreviewSeconds = 0
	cfg.MockHardware = true

	cam := camera.NewMockCamera()
	if err := cam.Open(); err != nil {
		t.Fatal(err)
	}
	if err := cam.Configure(camera.Settings{Width: 8, Height: 8}); err != nil {
		t.Fatal(err)
	}

	files := store.New(cfg.DatasetsRoot, cfg.DatasetName, cfg.NumPhotos)
	if _, err := files.EnsureDirectory(); err != nil {
		t.Fatal(err)
	}
	return cfg, cam, files
}

// assertNoPreviewStill fails if an inspection still survived in the
// dataset directory.
func assertNoPreviewStill(t *testing.T, files *store.Store) {
	t.Helper()
	entries, err := os.ReadDir(files.Dir())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), "PREVIEW") {
			t.Errorf("inspection still %q left in dataset directory", e.Name())
		}
	}
}

func TestRunPreview_RemovesStillAfterAccept(t *testing.T) {
	cfg, cam, files := newPreviewFixture(t)
	cfg.PromptOnTimeout = true

	err := runPreview(context.Background(), cfg, cam, files,
		preview.WithConfirmer(fixedConfirmer{answer: true}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cam.Stills() == 0 {
		t.Error("expected an inspection still to be captured")
	}
	assertNoPreviewStill(t, files)
}

func TestRunPreview_RemovesStillAfterReject(t *testing.T) {
	cfg, cam, files := newPreviewFixture(t)
	cfg.PromptOnTimeout = true

	err := runPreview(context.Background(), cfg, cam, files,
		preview.WithConfirmer(fixedConfirmer{answer: false}))
	if !errors.Is(err, preview.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	assertNoPreviewStill(t, files)
}

func TestRunPreview_RemovesStillWithoutPrompt(t *testing.T) {
	cfg, cam, files := newPreviewFixture(t)
	cfg.PromptOnTimeout = false

	if err := runPreview(context.Background(), cfg, cam, files); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertNoPreviewStill(t, files)
}

// ---------- exitCode ----------

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, exitOK},
		{"validation", &config.ValidationError{Field: "iso"}, exitValidation},
		{"rejection", preview.ErrRejected, exitRejected},
		{"hardware", &camera.HardwareError{Op: "open", Err: errors.New("busy")}, exitFailure},
		{"generic", errors.New("boom"), exitFailure},
	}
	for _, tc := range cases {
		if got := exitCode(tc.err); got != tc.want {
			t.Errorf("%s: exitCode = %d, want %d", tc.name, got, tc.want)
		}
	}
}
