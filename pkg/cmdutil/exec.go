package cmdutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

// ErrEmptyCommand is returned when no command parts are given.
var ErrEmptyCommand = errors.New("empty command")

// ExecOptions configures command execution.
type ExecOptions struct {
	// Dir is the working directory for the command.
	Dir string

	// Timeout is the maximum execution time.
	// If zero, no timeout is applied.
	Timeout time.Duration

	// Env contains environment variables for the command.
	// Each entry should be in the form "KEY=value". Nil inherits the
	// current process environment.
	Env []string

	// Stdout receives the command's standard output.
	// If nil, the output is captured into Result.Stdout.
	// Use io.Discard to suppress it.
	Stdout io.Writer

	// Stderr receives the command's standard error.
	// If nil, the output is captured into Result.Stderr.
	Stderr io.Writer
}

// Result contains the result of a command execution.
type Result struct {
	// Stdout is the captured standard output (only if ExecOptions.Stdout is nil).
	Stdout []byte

	// Stderr is the captured standard error (only if ExecOptions.Stderr is nil).
	Stderr []byte

	// ExitCode is the exit code of the command, or -1 if it never started
	// or was killed by a signal.
	ExitCode int

	// Duration is how long the command took to execute.
	Duration time.Duration
}

// Run executes a command with the given options.
// The command is provided as a slice of arguments (command and its arguments).
// A non-nil Result is returned whenever the command parts are non-empty, even
// when the command fails, so callers can inspect the exit code.
func Run(ctx context.Context, opts ExecOptions, cmdParts []string) (*Result, error) {
	if len(cmdParts) == 0 {
		return nil, ErrEmptyCommand
	}

	// Apply timeout if specified
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, cmdParts[0], cmdParts[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env

	var stdout, stderr bytes.Buffer
	if opts.Stdout != nil {
		cmd.Stdout = opts.Stdout
	} else {
		cmd.Stdout = &stdout
	}
	if opts.Stderr != nil {
		cmd.Stderr = opts.Stderr
	} else {
		cmd.Stderr = &stderr
	}

	start := time.Now()
	err := cmd.Run()

	result := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: -1,
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		return result, fmt.Errorf("command failed: %w", err)
	}

	return result, nil
}

// ParseCommandString parses a shell-quoted command string into parts.
//
// Example:
//
//	"git commit -m \"my message\"" -> ["git", "commit", "-m", "my message"]
func ParseCommandString(cmdStr string) ([]string, error) {
	parts, err := shellquote.Split(cmdStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command string: %w", err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command string")
	}
	return parts, nil
}

// ParseTokens converts a YAML value that is either a shell-quoted string or
// a list of strings into argument tokens. Unlike ParseCommandString an empty
// list is allowed, since an empty token set is a valid "no extra arguments".
func ParseTokens(v interface{}) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return ParseCommandString(t)
	case []string:
		return t, nil
	case []interface{}:
		parts := make([]string, len(t))
		for i, item := range t {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("token %d is not a string: %T", i, item)
			}
			parts[i] = str
		}
		return parts, nil
	default:
		return nil, fmt.Errorf("invalid token type: %T (must be string or list)", v)
	}
}

// FormatCommand formats command parts into a readable string for logging.
// Example: ["dotnet", "publish", "Uchu Tool.csproj"] -> "dotnet publish 'Uchu Tool.csproj'"
func FormatCommand(cmdParts []string) string {
	if len(cmdParts) == 0 {
		return "<empty command>"
	}

	// Quote arguments that contain spaces or special characters
	quoted := make([]string, len(cmdParts))
	for i, part := range cmdParts {
		if part == "" || strings.ContainsAny(part, " \t\n\"'") {
			quoted[i] = shellquote.Join(part)
		} else {
			quoted[i] = part
		}
	}

	return strings.Join(quoted, " ")
}
