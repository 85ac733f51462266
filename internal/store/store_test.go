package store

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"
)

func TestEnsureDirectory_CreatesNested(t *testing.T) {
	root := filepath.Join(t.TempDir(), "deep", "datasets")
	s := New(root, "faces", 10)

	existed, err := s.EnsureDirectory()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if existed {
		t.Error("directory should not have existed")
	}

	info, err := os.Stat(filepath.Join(root, "faces"))
	if err != nil {
		t.Fatalf("dataset dir missing: %v", err)
	}
	if !info.IsDir() {
		t.Error("dataset path is not a directory")
	}
}

func TestEnsureDirectory_ReportsExisting(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "faces"), 0o755); err != nil {
		t.Fatal(err)
	}

	existed, err := New(root, "faces", 10).EnsureDirectory()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !existed {
		t.Error("expected existed=true for pre-existing directory")
	}
}

func TestEnsureDirectory_PathIsFile(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "faces"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := New(root, "faces", 10).EnsureDirectory()
	if err == nil {
		t.Fatal("expected error when dataset path is a regular file")
	}
	var serr *StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *StorageError, got %T", err)
	}
}

func TestPathFor_PaddingAndOrder(t *testing.T) {
	s := New("/data", "faces", 3)

	if got, want := s.PathFor(0), filepath.Join("/data", "faces", "000.png"); got != want {
		t.Errorf("PathFor(0) = %q, want %q", got, want)
	}
	if got, want := s.PathFor(2), filepath.Join("/data", "faces", "002.png"); got != want {
		t.Errorf("PathFor(2) = %q, want %q", got, want)
	}

	// Lexicographic order must match capture order for the whole run.
	big := New("/data", "faces", 2000)
	var names []string
	for i := 0; i < 2000; i += 137 {
		names = append(names, filepath.Base(big.PathFor(i)))
	}
	if !sort.StringsAreSorted(names) {
		t.Errorf("generated names are not lexicographically ordered: %v", names)
	}
}

func TestPathFor_WidthGrowsWithRun(t *testing.T) {
	cases := []struct {
		numPhotos int
		index     int
		want      string
	}{
		{1, 0, "000.png"},
		{10, 9, "009.png"},
		{1000, 999, "999.png"},
		{1001, 0, "0000.png"},
		{20000, 123, "00123.png"},
	}
	for _, tc := range cases {
		s := New("/d", "n", tc.numPhotos)
		got := filepath.Base(s.PathFor(tc.index))
		if got != tc.want {
			t.Errorf("numPhotos=%d index=%d: got %q, want %q", tc.numPhotos, tc.index, got, tc.want)
		}
	}
}

func TestPreviewPath_DistinctFromIndices(t *testing.T) {
	s := New("/data", "faces", 10)
	p := filepath.Base(s.PreviewPath(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)))
	if !strings.Contains(p, "PREVIEW") {
		t.Errorf("preview name %q missing PREVIEW marker", p)
	}
	for i := 0; i < 10; i++ {
		if p == filepath.Base(s.PathFor(i)) {
			t.Fatalf("preview name collides with index %d", i)
		}
	}
}

func TestWrite_Atomic(t *testing.T) {
	s := New(t.TempDir(), "faces", 10)
	if _, err := s.EnsureDirectory(); err != nil {
		t.Fatal(err)
	}

	path := s.PathFor(0)
	if err := s.Write(path, []byte("image-bytes")); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "image-bytes" {
		t.Errorf("content = %q, want %q", data, "image-bytes")
	}

	// No temp files may remain after a successful write.
	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp") {
			t.Errorf("leftover temp file %q", e.Name())
		}
	}
}

func TestWrite_OverwritesCollision(t *testing.T) {
	s := New(t.TempDir(), "faces", 10)
	if _, err := s.EnsureDirectory(); err != nil {
		t.Fatal(err)
	}

	path := s.PathFor(1)
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(path, []byte("new")); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "new" {
		t.Errorf("collision policy is overwrite; content = %q", data)
	}
}

func TestWrite_MissingDirectory(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nope"), "faces", 10)
	err := s.Write(s.PathFor(0), []byte("x"))
	if err == nil {
		t.Fatal("expected error writing into a missing directory")
	}
	var serr *StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *StorageError, got %T", err)
	}
}

func TestRemove_MissingFileIsNoError(t *testing.T) {
	s := New(t.TempDir(), "faces", 10)
	if _, err := s.EnsureDirectory(); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(s.PathFor(5)); err != nil {
		t.Errorf("removing an absent file should be a no-op, got %v", err)
	}
}
