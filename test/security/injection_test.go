package security

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"relpack/internal/project"
	"relpack/internal/publish"
	"relpack/internal/security"
)

// TestProjectNameInjectionPrevention validates that project names which
// could escape the build root or be read as flags are rejected
func TestProjectNameInjectionPrevention(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantError bool
	}{
		{"valid dotted name", "Uchu.Tool", false},
		{"semicolon", "app;rm -rf /", true},
		{"command substitution", "app$(id)", true},
		{"backticks", "app`whoami`", true},
		{"pipe", "app|cat", true},
		{"path traversal", "../../etc", true},
		{"embedded traversal", "a..b", true},
		{"absolute path", "/etc/passwd", true},
		{"flag injection", "-rf", true},
		{"newline", "app\nrm", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := security.ValidateProjectName(tt.input)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidateProjectName(%q) error = %v, wantError %v", tt.input, err, tt.wantError)
			}
		})
	}
}

// TestTargetInjectionPrevention validates toolchain target identifiers
func TestTargetInjectionPrevention(t *testing.T) {
	invalid := []string{"-c", "win-x64; id", "win-x64 --output /", "../osx", "osx/x64"}
	for _, target := range invalid {
		if err := security.ValidateTargetID(target); err == nil {
			t.Errorf("ValidateTargetID(%q) should fail", target)
		}
	}
}

// TestPathTraversalPrevention validates output directory and bundle name checks
func TestPathTraversalPrevention(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name      string
		outputDir string
		wantError bool
	}{
		{"default", "bin", false},
		{"nested", "out/bin", false},
		{"root itself", ".", true},
		{"parent", "..", true},
		{"sibling", "../bin", true},
		{"disguised", "bin/../../bin", true},
		{"project sources", "Uchu.Tool/bin", true},
		{"asset parent", "packaging", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := project.DefaultConfig()
			cfg.Root = root
			cfg.OutputDir = tt.outputDir

			errs := project.ValidateConfig(cfg)
			hasOutputErr := false
			for _, e := range errs {
				if strings.Contains(e, "output_dir") {
					hasOutputErr = true
				}
			}
			if hasOutputErr != tt.wantError {
				t.Errorf("output_dir %q: errors = %v, wantError %v", tt.outputDir, errs, tt.wantError)
			}
		})
	}

	for _, name := range []string{"../Evil", "a/b", ".."} {
		if err := security.ValidatePathSegment(name); err == nil {
			t.Errorf("ValidatePathSegment(%q) should fail", name)
		}
	}
}

// TestExtraParametersPassedLiterally checks that configured tokens reach the
// toolchain as arguments and are never interpreted by a shell
func TestExtraParametersPassedLiterally(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("stub toolchain is a shell script")
	}

	root := t.TempDir()
	argsFile := filepath.Join(t.TempDir(), "args")
	stub := filepath.Join(t.TempDir(), "stub")
	script := "#!/bin/sh\nprintf '%s\\n' \"$@\" > '" + argsFile + "'\n"
	if err := os.WriteFile(stub, []byte(script), 0755); err != nil {
		t.Fatalf("Failed to write stub: %v", err)
	}

	cfg := project.DefaultConfig()
	cfg.Root = root
	cfg.Toolchain.Command = []string{stub}

	payloads := []string{"$(touch pwned)", "`touch pwned`", "; touch pwned", "-p:X=a b"}

	tc := publish.NewToolchain(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	tc.Stderr = io.Discard
	err := tc.Build(context.Background(), project.Project{Name: "App"}, project.Platform{Label: "Linux-x64", Target: "linux-x64"}, payloads)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("Failed to read recorded args: %v", err)
	}
	args := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	got := args[len(args)-len(payloads):]
	for i, want := range payloads {
		if got[i] != want {
			t.Errorf("arg %d = %q, want %q", i, got[i], want)
		}
	}

	if _, err := os.Stat(filepath.Join(root, "pwned")); !os.IsNotExist(err) {
		t.Error("payload was executed by a shell")
	}
}

// TestSecureFilePermissions validates permissions of produced archives
func TestSecureFilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Unix permissions only")
	}

	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "App"), []byte("binary"), 0755); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	out := t.TempDir()
	path, err := publish.Archive(src, filepath.Join(out, "App-Linux-x64"), nil)
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Failed to stat archive: %v", err)
	}
	if info.Mode().Perm() != security.PermArchive {
		t.Errorf("archive mode = %04o, want %04o", info.Mode().Perm(), security.PermArchive)
	}
	if security.IsWorldWritable(info.Mode().Perm()) {
		t.Error("archive must not be world-writable")
	}
}
