package publish

import (
	"errors"
	"fmt"
)

var (
	// ErrToolchainInvocation is returned when the publisher cannot be started
	// or exits non-zero.
	ErrToolchainInvocation = errors.New("toolchain invocation failed")

	// ErrVersionAmbiguity is returned when the release directory holds no
	// version directory or more than one.
	ErrVersionAmbiguity = errors.New("toolchain version is ambiguous")

	// ErrMissingAsset is returned when a bundle's icon, launcher or manifest
	// does not exist.
	ErrMissingAsset = errors.New("bundle asset is missing")

	// ErrFilesystem wraps failures to read, copy, remove or write files.
	ErrFilesystem = errors.New("filesystem operation failed")
)

// Step names the pipeline stage a failure happened in.
type Step string

const (
	StepPrepare Step = "prepare"
	StepBuild   Step = "build"
	StepResolve Step = "resolve"
	StepClean   Step = "clean"
	StepArchive Step = "archive"
	StepBundle  Step = "bundle"
)

// StepError identifies which project, platform and step a run failed on.
// Project and Platform are empty for failures outside the per-pair loop.
type StepError struct {
	Project  string
	Platform string
	Step     Step
	Err      error
}

func (e *StepError) Error() string {
	if e == nil {
		return ""
	}
	if e.Project == "" {
		return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("%s failed for %s (%s): %v", e.Step, e.Project, e.Platform, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func fsError(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrFilesystem, op, path, err)
}
