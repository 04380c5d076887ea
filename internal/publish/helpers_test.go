package publish

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"relpack/internal/project"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, path, content string, perm os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

// zipEntries returns the sorted entry names of a zip archive.
func zipEntries(t *testing.T, path string) []string {
	t.Helper()
	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("Failed to open archive %s: %v", path, err)
	}
	defer r.Close()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func zipEntry(t *testing.T, path, name string) *zip.File {
	t.Helper()
	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("Failed to open archive %s: %v", path, err)
	}
	t.Cleanup(func() { r.Close() })

	for _, f := range r.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

// fakeBuilder stands in for the toolchain: it writes Files into the publish
// tree the real toolchain would produce.
type fakeBuilder struct {
	root     string
	versions []string
	files    map[string]string
	failOn   string

	calls  []string
	extras map[string][]string
}

func newFakeBuilder(root string, files map[string]string) *fakeBuilder {
	return &fakeBuilder{
		root:     root,
		versions: []string{"6.0.100"},
		files:    files,
		extras:   make(map[string][]string),
	}
}

func (f *fakeBuilder) Build(ctx context.Context, proj project.Project, platform project.Platform, extra []string) error {
	f.calls = append(f.calls, proj.Name+"/"+platform.Target)
	f.extras[platform.Target] = extra

	if platform.Target == f.failOn {
		return fmt.Errorf("%w: stub exited with status 1", ErrToolchainInvocation)
	}

	for _, version := range f.versions {
		dir := filepath.Join(f.root, proj.Name, "bin", "Release", version, platform.Target, "publish")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		for name, content := range f.files {
			path := filepath.Join(dir, name)
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeBundleAssets writes the static bundle assets under root and returns the
// matching bundle entry.
func writeBundleAssets(t *testing.T, root, proj, target string) project.Bundle {
	t.Helper()
	dir := filepath.Join(root, "packaging", "macOS")
	writeFile(t, filepath.Join(dir, "AppLogo.icns"), "icns", 0644)
	writeFile(t, filepath.Join(dir, "StartApp"), "#!/bin/sh\nexec \"$(dirname \"$0\")/App\"\n", 0644)
	writeFile(t, filepath.Join(dir, "Info.plist"), "<plist/>", 0644)

	return project.Bundle{
		Project:  proj,
		Target:   target,
		AppName:  "App Bundle",
		Icon:     filepath.Join("packaging", "macOS", "AppLogo.icns"),
		Launcher: filepath.Join("packaging", "macOS", "StartApp"),
		Manifest: filepath.Join("packaging", "macOS", "Info.plist"),
	}
}
