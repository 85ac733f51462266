package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cmercat/picapture/internal/debug"
)

// ImageExtension is the on-disk format of every captured image.
const ImageExtension = "png"

// minPadWidth keeps short runs readable and stable: a run of up to 1000
// photos always yields 000..999.
const minPadWidth = 3

// previewTimestampFormat names the temporary preview still.
const previewTimestampFormat = "2006-01-02T15.04.05"

// StorageError reports a dataset directory or file I/O failure.
type StorageError struct {
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Store resolves and creates the on-disk directory for one named dataset
// and generates target file paths. It never inspects or renumbers files
// already present; a pre-existing file whose name collides with a
// generated one is overwritten.
type Store struct {
	root     string
	name     string
	padWidth int
}

// New returns a store for datasetsRoot/datasetName. numPhotos fixes the
// zero-pad width for the run so lexicographic order always matches capture
// order.
func New(datasetsRoot, datasetName string, numPhotos int) *Store {
	return &Store{
		root:     datasetsRoot,
		name:     datasetName,
		padWidth: padWidthFor(numPhotos),
	}
}

func padWidthFor(numPhotos int) int {
	w := len(fmt.Sprintf("%d", numPhotos-1))
	if w < minPadWidth {
		w = minPadWidth
	}
	return w
}

// Dir returns the dataset directory path.
func (s *Store) Dir() string {
	return filepath.Join(s.root, s.name)
}

// EnsureDirectory creates the dataset directory (and any missing parent)
// if absent. Returns whether the directory already existed, so the caller
// can warn that the run appends to an existing dataset.
func (s *Store) EnsureDirectory() (existed bool, err error) {
	dir := s.Dir()

	info, statErr := os.Stat(dir)
	if statErr == nil {
		if !info.IsDir() {
			return false, &StorageError{Path: dir, Err: fmt.Errorf("exists and is not a directory")}
		}
		return true, nil
	}
	if !os.IsNotExist(statErr) {
		return false, &StorageError{Path: dir, Err: statErr}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, &StorageError{Path: dir, Err: err}
	}
	debug.Verbose("Created dataset directory %s", dir)
	return false, nil
}

// PathFor maps a capture index to its file path, using a fixed-width
// zero-padded numeric name. Deterministic; collisions with pre-existing
// files are overwritten (see EnsureDirectory for the append warning).
func (s *Store) PathFor(index int) string {
	return filepath.Join(s.Dir(), fmt.Sprintf("%0*d.%s", s.padWidth, index, ImageExtension))
}

// PreviewPath names the temporary preview still the operator inspects
// before confirming. The PREVIEW marker and timestamp keep it clear of
// every index-derived name.
func (s *Store) PreviewPath(at time.Time) string {
	return filepath.Join(s.Dir(), fmt.Sprintf("%s_PREVIEW_%s.%s", s.name, at.Format(previewTimestampFormat), ImageExtension))
}

// Write persists encoded image data at path atomically: the bytes go to a
// temporary file in the same directory, which is then renamed into place,
// so a crash mid-write never leaves a corrupt file at the final name.
func (s *Store) Write(path string, data []byte) error {
	tmp, err := os.CreateTemp(s.Dir(), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return &StorageError{Path: path, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &StorageError{Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &StorageError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &StorageError{Path: path, Err: err}
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &StorageError{Path: path, Err: err}
	}
	return nil
}

// Remove deletes a file previously written through the store. Used for the
// preview still, which is never part of the dataset.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &StorageError{Path: path, Err: err}
	}
	return nil
}
