package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes a file through a temporary sibling and renames it
// over path, so readers never observe a partially written file and a failed
// write leaves any previous file untouched.
//
// Steps:
// 1. Create a temporary file next to path
// 2. Let write fill it
// 3. Atomically rename it to the final name
func WriteFileAtomic(path string, perm os.FileMode, write func(f *os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()

	// Clean up temp file on any failure below
	ok := false
	defer func() {
		if !ok {
			tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := write(tmp); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set file permissions: %w", err)
	}

	// On Unix, this is atomic. On Windows, it replaces the target if possible.
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename into place: %w", err)
	}

	ok = true
	return nil
}
