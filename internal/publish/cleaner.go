package publish

import (
	"os"
	"path/filepath"
	"strings"
)

// Cleaner removes files whose names end in one of Suffixes.
type Cleaner struct {
	Suffixes []string
}

// NewCleaner returns a cleaner for the given symbol-file suffixes.
func NewCleaner(suffixes []string) *Cleaner {
	return &Cleaner{Suffixes: suffixes}
}

// Matches reports whether name is an unwanted file.
func (c *Cleaner) Matches(name string) bool {
	for _, suffix := range c.Suffixes {
		if suffix != "" && strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// Clean removes matching direct children of dir and returns their names.
// Subdirectories are neither descended into nor removed. A directory that
// cannot be listed is an error: it usually means the build produced nothing.
func (c *Cleaner) Clean(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fsError("list", dir, err)
	}

	var removed []string
	for _, entry := range entries {
		if entry.IsDir() || !c.Matches(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return removed, fsError("remove", path, err)
		}
		removed = append(removed, entry.Name())
	}

	return removed, nil
}
