package security

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// Safe patterns for validation
	projectPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
	labelPattern   = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
	targetPattern  = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)
	repoPattern    = regexp.MustCompile(`^[a-zA-Z0-9_-]+/[a-zA-Z0-9_.-]+$`)
)

// ValidateOwnerRepo ensures an "owner/repo" GitHub slug is well formed and
// returns its two halves.
func ValidateOwnerRepo(ownerRepo string) (string, string, error) {
	if !repoPattern.MatchString(ownerRepo) || strings.Contains(ownerRepo, "..") {
		return "", "", fmt.Errorf("invalid owner/repo format: %q", ownerRepo)
	}
	parts := strings.SplitN(ownerRepo, "/", 2)
	return parts[0], parts[1], nil
}

// ValidateProjectName ensures a project name is safe for use in paths and
// archive names. Dotted names such as "Uchu.Tool" are allowed.
func ValidateProjectName(name string) error {
	if name == "" {
		return fmt.Errorf("project name cannot be empty")
	}
	if !projectPattern.MatchString(name) {
		return fmt.Errorf("project name contains invalid characters (only a-z, A-Z, 0-9, _, ., - allowed, not leading . or -)")
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("project name cannot contain '..'")
	}
	return nil
}

// ValidatePlatformLabel ensures a platform label is safe for archive names.
func ValidatePlatformLabel(label string) error {
	if label == "" {
		return fmt.Errorf("platform label cannot be empty")
	}
	if !labelPattern.MatchString(label) || strings.Contains(label, "..") {
		return fmt.Errorf("platform label contains invalid characters: %q", label)
	}
	return nil
}

// ValidateTargetID ensures a toolchain target identifier (e.g. "win-x64")
// is safe to pass as an argument and to use as a path segment.
func ValidateTargetID(target string) error {
	if target == "" {
		return fmt.Errorf("target identifier cannot be empty")
	}
	if !targetPattern.MatchString(target) || strings.Contains(target, "..") {
		return fmt.Errorf("target identifier contains invalid characters: %q", target)
	}
	return nil
}

// ValidatePathSegment ensures a value can be used as a single path element.
// Spaces are allowed ("Uchu Tool"); separators and traversal are not.
func ValidatePathSegment(segment string) error {
	if strings.TrimSpace(segment) == "" {
		return fmt.Errorf("value cannot be empty")
	}
	if segment == "." || segment == ".." {
		return fmt.Errorf("value cannot be '%s'", segment)
	}
	if strings.ContainsAny(segment, `/\`) || strings.ContainsRune(segment, 0) {
		return fmt.Errorf("value cannot contain path separators: %q", segment)
	}
	return nil
}

// EnsureWithin prevents path traversal for paths that may not exist yet.
// Ensures target is strictly inside base (not base itself) and returns the
// cleaned absolute target.
func EnsureWithin(basePath, targetPath string) (string, error) {
	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}

	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve target path: %w", err)
	}

	relPath, err := filepath.Rel(absBase, absTarget)
	if err != nil || relPath == "." || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: target '%s' is not inside base '%s'", absTarget, absBase)
	}

	return absTarget, nil
}
