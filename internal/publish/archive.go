package publish

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"relpack/internal/security"
	"relpack/pkg/fileutil"
)

// Archive zips the contents of srcDir into destNoExt + ".zip" and returns
// the archive path. Entries are rooted at the top of the archive, not under
// a directory named after srcDir. Files for which exclude returns true are
// left out at any depth. An existing archive at the destination is replaced.
func Archive(srcDir, destNoExt string, exclude func(name string) bool) (string, error) {
	dest := destNoExt + ".zip"

	info, err := os.Stat(srcDir)
	if err != nil {
		return "", fsError("stat", srcDir, err)
	}
	if !info.IsDir() {
		return "", fsError("archive", srcDir, fmt.Errorf("not a directory"))
	}

	err = fileutil.WriteFileAtomic(dest, security.PermArchive, func(f *os.File) error {
		zw := zip.NewWriter(f)
		if err := writeTree(zw, srcDir, exclude); err != nil {
			zw.Close()
			return err
		}
		return zw.Close()
	})
	if err != nil {
		return "", fsError("write archive", dest, err)
	}

	return dest, nil
}

// writeTree adds every entry under root to zw in lexical order. Directories
// get their own entries so empty ones survive. Symlinks to regular files
// are stored as the file they point to; other symlinks are skipped.
func writeTree(zw *zip.Writer, root string, exclude func(string) bool) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("failed to calculate relative path: %w", err)
		}
		name := filepath.ToSlash(rel)

		if d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			header, err := zip.FileInfoHeader(info)
			if err != nil {
				return err
			}
			header.Name = name + "/"
			header.Method = zip.Store
			_, err = zw.CreateHeader(header)
			return err
		}

		if exclude != nil && exclude(d.Name()) {
			return nil
		}

		// Stat follows symlinks
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = name
		header.Method = zip.Deflate

		return addFile(zw, header, path)
	})
}

func addFile(zw *zip.Writer, header *zip.FileHeader, path string) error {
	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to add %s: %w", header.Name, err)
	}
	return nil
}
