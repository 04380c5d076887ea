package publish

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"relpack/internal/project"
	"relpack/pkg/cmdutil"
)

// Builder produces the publish tree for one project and platform.
type Builder interface {
	Build(ctx context.Context, proj project.Project, platform project.Platform, extra []string) error
}

// Toolchain invokes the external publisher as a subprocess.
type Toolchain struct {
	Root           string
	Command        []string
	Verb           string
	Configuration  string
	ProjectFileExt string

	// Stderr receives the toolchain's error stream. Its standard output is
	// always discarded.
	Stderr io.Writer
	Logger *slog.Logger
}

// NewToolchain creates a toolchain invoker from a resolved configuration.
func NewToolchain(cfg *project.Config, logger *slog.Logger) *Toolchain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Toolchain{
		Root:           cfg.Root,
		Command:        cfg.Toolchain.Command,
		Verb:           cfg.Toolchain.Verb,
		Configuration:  cfg.Toolchain.Configuration,
		ProjectFileExt: cfg.ProjectFileExt,
		Stderr:         os.Stderr,
		Logger:         logger,
	}
}

// Args returns the full argument vector for a build:
// <command...> <verb> -r <target> -c <configuration> <project file> <extra...>
func (t *Toolchain) Args(proj project.Project, platform project.Platform, extra []string) []string {
	args := make([]string, 0, len(t.Command)+6+len(extra))
	args = append(args, t.Command...)
	args = append(args,
		t.Verb,
		"-r", platform.Target,
		"-c", t.Configuration,
		proj.File(t.ProjectFileExt),
	)
	return append(args, extra...)
}

// Build runs the toolchain in the build root and blocks until it exits.
// No timeout is applied; cancelling ctx kills the subprocess.
func (t *Toolchain) Build(ctx context.Context, proj project.Project, platform project.Platform, extra []string) error {
	args := t.Args(proj, platform, extra)
	t.Logger.Debug("Invoking toolchain", "command", cmdutil.FormatCommand(args), "dir", t.Root)

	result, err := cmdutil.Run(ctx, cmdutil.ExecOptions{
		Dir:    t.Root,
		Stdout: io.Discard,
		Stderr: t.Stderr,
	}, args)
	if err != nil {
		if result != nil && result.ExitCode > 0 {
			return fmt.Errorf("%w: %s exited with status %d", ErrToolchainInvocation, cmdutil.FormatCommand(args), result.ExitCode)
		}
		return fmt.Errorf("%w: %s: %w", ErrToolchainInvocation, cmdutil.FormatCommand(args), err)
	}

	t.Logger.Debug("Toolchain finished", "project", proj.Name, "target", platform.Target, "duration", result.Duration)
	return nil
}
