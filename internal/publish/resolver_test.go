package publish

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"relpack/internal/project"
)

func TestResolveVersion(t *testing.T) {
	tests := []struct {
		name    string
		dirs    []string
		files   []string
		want    string
		wantErr error
	}{
		{"single version", []string{"6.0.100"}, nil, "6.0.100", nil},
		{"files are ignored", []string{"net8.0"}, []string{"build.log"}, "net8.0", nil},
		{"no versions", nil, nil, "", ErrVersionAmbiguity},
		{"only files", nil, []string{"build.log"}, "", ErrVersionAmbiguity},
		{"stale version", []string{"net6.0", "net8.0"}, nil, "", ErrVersionAmbiguity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, d := range tt.dirs {
				if err := os.Mkdir(filepath.Join(dir, d), 0755); err != nil {
					t.Fatalf("Failed to create %s: %v", d, err)
				}
			}
			for _, f := range tt.files {
				writeFile(t, filepath.Join(dir, f), "x", 0644)
			}

			got, err := ResolveVersion(dir)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ResolveVersion() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveVersion() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveVersion() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveVersion_ListsCandidates(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []string{"net8.0", "net6.0"} {
		if err := os.Mkdir(filepath.Join(dir, d), 0755); err != nil {
			t.Fatalf("Failed to create %s: %v", d, err)
		}
	}

	_, err := ResolveVersion(dir)
	if err == nil {
		t.Fatal("ResolveVersion() should fail with two versions")
	}
	if !strings.Contains(err.Error(), "net6.0, net8.0") {
		t.Errorf("error should list sorted candidates, got %q", err.Error())
	}
}

func TestResolveVersion_MissingReleaseDir(t *testing.T) {
	_, err := ResolveVersion(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, ErrFilesystem) {
		t.Errorf("ResolveVersion() error = %v, want ErrFilesystem", err)
	}
}

func TestLayout(t *testing.T) {
	cfg := project.DefaultConfig()
	cfg.Root = "/src"
	layout := NewLayout(cfg)

	proj := project.Project{Name: "Uchu.Tool"}
	platform := project.Platform{Label: "macOS-x64", Target: "osx-x64"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"release dir", layout.ReleaseDir(proj), "/src/Uchu.Tool/bin/Release"},
		{"publish dir", layout.PublishDir(proj, "net6.0", "osx-x64"), "/src/Uchu.Tool/bin/Release/net6.0/osx-x64/publish"},
		{"archive path", layout.ArchivePath(proj, platform), "/src/bin/Uchu.Tool-macOS-x64.zip"},
		{"bundle tree", layout.BundleTree(proj, platform), "/src/bin/Uchu.Tool-macOS-x64"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != filepath.FromSlash(tt.want) {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}
