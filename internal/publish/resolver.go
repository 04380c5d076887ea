package publish

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"relpack/internal/project"
)

// Layout maps projects and platforms onto the paths the toolchain writes
// and the paths relpack produces.
type Layout struct {
	Root          string
	OutputDir     string
	Configuration string
}

// NewLayout returns the layout for a resolved configuration.
func NewLayout(cfg *project.Config) Layout {
	return Layout{
		Root:          cfg.Root,
		OutputDir:     filepath.Join(cfg.Root, cfg.OutputDir),
		Configuration: cfg.Toolchain.Configuration,
	}
}

// ReleaseDir is the directory holding the toolchain's version-named output,
// <root>/<project>/bin/<configuration>.
func (l Layout) ReleaseDir(proj project.Project) string {
	return filepath.Join(l.Root, proj.Name, "bin", l.Configuration)
}

// PublishDir is <releaseDir>/<version>/<target>/publish.
func (l Layout) PublishDir(proj project.Project, version, target string) string {
	return filepath.Join(l.ReleaseDir(proj), version, target, "publish")
}

// ArchiveBase is the archive path without its ".zip" extension.
func (l Layout) ArchiveBase(proj project.Project, platform project.Platform) string {
	return filepath.Join(l.OutputDir, proj.Name+"-"+platform.Label)
}

// ArchivePath is the final archive path for a project and platform.
func (l Layout) ArchivePath(proj project.Project, platform project.Platform) string {
	return l.ArchiveBase(proj, platform) + ".zip"
}

// BundleTree is the ephemeral directory a bundle is assembled in.
func (l Layout) BundleTree(proj project.Project, platform project.Platform) string {
	return l.ArchiveBase(proj, platform)
}

// ResolvePublishDir discovers the toolchain version for proj and returns it
// together with the publish directory for target.
func (l Layout) ResolvePublishDir(proj project.Project, target string) (string, string, error) {
	version, err := ResolveVersion(l.ReleaseDir(proj))
	if err != nil {
		return "", "", err
	}
	return version, l.PublishDir(proj, version, target), nil
}

// ResolveVersion returns the name of the single subdirectory of releaseDir.
// The toolchain names that directory after its own version, which is not
// known ahead of time. Zero or several candidates is an error that lists
// what was found, since picking one would risk archiving stale output.
func ResolveVersion(releaseDir string) (string, error) {
	entries, err := os.ReadDir(releaseDir)
	if err != nil {
		return "", fsError("list", releaseDir, err)
	}

	var candidates []string
	for _, entry := range entries {
		if entry.IsDir() {
			candidates = append(candidates, entry.Name())
		}
	}
	sort.Strings(candidates)

	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return "", fmt.Errorf("%w: no version directory in %s", ErrVersionAmbiguity, releaseDir)
	default:
		return "", fmt.Errorf("%w: %d version directories in %s (%s); remove stale output",
			ErrVersionAmbiguity, len(candidates), releaseDir, strings.Join(candidates, ", "))
	}
}
