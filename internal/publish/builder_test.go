package publish

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"relpack/internal/project"
)

// stubToolchain writes a shell script that records its arguments and working
// directory, prints to both streams and exits with code.
func stubToolchain(t *testing.T, code string) (script, argsFile, pwdFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub toolchain is a shell script")
	}
	dir := t.TempDir()
	argsFile = filepath.Join(dir, "args")
	pwdFile = filepath.Join(dir, "pwd")
	script = filepath.Join(dir, "toolchain")
	content := "#!/bin/sh\n" +
		"printf '%s\\n' \"$@\" > '" + argsFile + "'\n" +
		"pwd > '" + pwdFile + "'\n" +
		"echo 'restoring packages'\n" +
		"echo 'warning: deprecated' >&2\n" +
		"exit " + code + "\n"
	writeFile(t, script, content, 0755)
	return script, argsFile, pwdFile
}

func TestToolchain_Args(t *testing.T) {
	cfg := project.DefaultConfig()
	tc := NewToolchain(cfg, discardLogger())

	got := tc.Args(
		project.Project{Name: "Uchu.Tool"},
		project.Platform{Label: "Windows-x64", Target: "win-x64"},
		cfg.ExtraParametersFor("win-x64"),
	)
	want := []string{
		"dotnet", "publish",
		"-r", "win-x64",
		"-c", "Release",
		filepath.Join("Uchu.Tool", "Uchu.Tool.csproj"),
		"/p:IncludeNativeLibrariesForSelfExtract=true",
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Args() = %v, want %v", got, want)
	}

	got = tc.Args(project.Project{Name: "App"}, project.Platform{Label: "Linux-x64", Target: "linux-x64"}, nil)
	if got[len(got)-1] != filepath.Join("App", "App.csproj") {
		t.Errorf("Args() without extras should end with the project file, got %v", got)
	}
}

func TestToolchain_Build(t *testing.T) {
	script, argsFile, pwdFile := stubToolchain(t, "0")
	root := t.TempDir()

	cfg := project.DefaultConfig()
	cfg.Root = root
	cfg.Toolchain.Command = []string{script}

	var stderr bytes.Buffer
	tc := NewToolchain(cfg, discardLogger())
	tc.Stderr = &stderr

	err := tc.Build(context.Background(),
		project.Project{Name: "App"},
		project.Platform{Label: "Linux-x64", Target: "linux-x64"},
		[]string{"-p:PublishSingleFile=true"},
	)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("stub did not record arguments: %v", err)
	}
	gotArgs := strings.Split(strings.TrimSpace(string(data)), "\n")
	wantArgs := []string{"publish", "-r", "linux-x64", "-c", "Release", filepath.Join("App", "App.csproj"), "-p:PublishSingleFile=true"}
	if strings.Join(gotArgs, "|") != strings.Join(wantArgs, "|") {
		t.Errorf("toolchain args = %v, want %v", gotArgs, wantArgs)
	}

	pwd, _ := os.ReadFile(pwdFile)
	if filepath.Base(strings.TrimSpace(string(pwd))) != filepath.Base(root) {
		t.Errorf("toolchain ran in %q, want %q", strings.TrimSpace(string(pwd)), root)
	}

	if !strings.Contains(stderr.String(), "warning: deprecated") {
		t.Errorf("stderr should pass through, got %q", stderr.String())
	}
	if strings.Contains(stderr.String(), "restoring packages") {
		t.Error("stdout should be discarded")
	}
}

func TestToolchain_BuildFailure(t *testing.T) {
	script, _, _ := stubToolchain(t, "2")

	cfg := project.DefaultConfig()
	cfg.Root = t.TempDir()
	cfg.Toolchain.Command = []string{script}

	tc := NewToolchain(cfg, discardLogger())
	tc.Stderr = &bytes.Buffer{}

	err := tc.Build(context.Background(), project.Project{Name: "App"}, project.Platform{Label: "Linux-x64", Target: "linux-x64"}, nil)
	if !errors.Is(err, ErrToolchainInvocation) {
		t.Fatalf("Build() error = %v, want ErrToolchainInvocation", err)
	}
	if !strings.Contains(err.Error(), "status 2") {
		t.Errorf("error should carry the exit status, got %q", err.Error())
	}
}

func TestToolchain_MissingExecutable(t *testing.T) {
	cfg := project.DefaultConfig()
	cfg.Root = t.TempDir()
	cfg.Toolchain.Command = []string{filepath.Join(cfg.Root, "no-such-toolchain")}

	tc := NewToolchain(cfg, discardLogger())
	err := tc.Build(context.Background(), project.Project{Name: "App"}, project.Platform{Label: "Linux-x64", Target: "linux-x64"}, nil)
	if !errors.Is(err, ErrToolchainInvocation) {
		t.Errorf("Build() error = %v, want ErrToolchainInvocation", err)
	}
}
