package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"relpack/internal/project"
	"relpack/internal/security"
	"relpack/pkg/cmdutil"
	"relpack/pkg/fileutil"
)

// BundleAssembler builds an application bundle around a publish tree and
// archives it in place of the plain archive.
type BundleAssembler struct {
	Layout       Layout
	Capabilities security.Capabilities
	Exclude      func(name string) bool
	Logger       *slog.Logger
}

// NewBundleAssembler creates a bundle assembler.
func NewBundleAssembler(layout Layout, caps security.Capabilities, exclude func(string) bool, logger *slog.Logger) *BundleAssembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BundleAssembler{
		Layout:       layout,
		Capabilities: caps,
		Exclude:      exclude,
		Logger:       logger,
	}
}

// Assemble produces <output>/<project>-<label>.zip containing
//
//	<AppName>.app/Contents/MacOS/      publish tree and launcher
//	<AppName>.app/Contents/Resources/  icon
//	<AppName>.app/Contents/            manifest
//
// and returns the archive path and the toolchain version used. The
// ephemeral tree is removed whether or not assembly succeeds.
func (b *BundleAssembler) Assemble(ctx context.Context, bundle project.Bundle, proj project.Project, platform project.Platform) (string, string, error) {
	archivePath := b.Layout.ArchivePath(proj, platform)
	removed, err := fileutil.RemoveIfExists(archivePath)
	if err != nil {
		return "", "", fsError("remove", archivePath, err)
	}
	if removed {
		b.Logger.Info(fmt.Sprintf("Clearing the %s %s release.", platform.Label, proj.Name))
	}

	version, publishDir, err := b.Layout.ResolvePublishDir(proj, platform.Target)
	if err != nil {
		return "", "", err
	}
	if !fileutil.DirExists(publishDir) {
		return "", version, fsError("open", publishDir, os.ErrNotExist)
	}

	assets, err := b.resolveAssets(bundle)
	if err != nil {
		return "", version, err
	}

	tree := b.Layout.BundleTree(proj, platform)
	if fileutil.PathExists(tree) {
		b.Logger.Debug("Removing stale bundle tree", "path", tree)
		if err := os.RemoveAll(tree); err != nil {
			return "", version, fsError("remove", tree, err)
		}
	}
	done := false
	defer func() {
		if !done {
			_ = os.RemoveAll(tree)
		}
	}()

	contents := filepath.Join(tree, bundle.AppName+".app", "Contents")
	macOS := filepath.Join(contents, "MacOS")
	resources := filepath.Join(contents, "Resources")

	if err := fileutil.CopyDir(publishDir, macOS); err != nil {
		return "", version, fsError("copy", publishDir, err)
	}
	if err := os.MkdirAll(resources, security.PermDirectory); err != nil {
		return "", version, fsError("create", resources, err)
	}

	launcher := filepath.Join(macOS, filepath.Base(assets.launcher))
	copies := []struct{ src, dst string }{
		{assets.icon, filepath.Join(resources, filepath.Base(assets.icon))},
		{assets.launcher, launcher},
		{assets.manifest, filepath.Join(contents, filepath.Base(assets.manifest))},
	}
	for _, c := range copies {
		if err := fileutil.CopyFile(c.src, c.dst); err != nil {
			return "", version, fsError("copy", c.src, err)
		}
	}

	if b.Capabilities.CanSetExecutable {
		if err := markExecutable(ctx, launcher); err != nil {
			return "", version, err
		}
		if err := security.EnsureExecutable(launcher); err != nil {
			return "", version, fsError("chmod", launcher, err)
		}
	} else {
		b.Logger.Debug("Skipping executable bit on launcher", "launcher", launcher)
	}

	archive, err := Archive(tree, b.Layout.ArchiveBase(proj, platform), b.Exclude)
	if err != nil {
		return "", version, err
	}

	done = true
	if err := os.RemoveAll(tree); err != nil {
		return archive, version, fsError("remove", tree, err)
	}

	return archive, version, nil
}

type bundleAssets struct {
	icon     string
	launcher string
	manifest string
}

// resolveAssets checks that every static asset exists before anything is
// written to the output directory.
func (b *BundleAssembler) resolveAssets(bundle project.Bundle) (bundleAssets, error) {
	resolve := func(field, rel string) (string, error) {
		path := rel
		if !filepath.IsAbs(path) {
			path = filepath.Join(b.Layout.Root, rel)
		}
		if !fileutil.FileExists(path) {
			return "", fmt.Errorf("%w: %s %s", ErrMissingAsset, field, path)
		}
		return path, nil
	}

	var assets bundleAssets
	var err error
	if assets.icon, err = resolve("icon", bundle.Icon); err != nil {
		return assets, err
	}
	if assets.launcher, err = resolve("launcher", bundle.Launcher); err != nil {
		return assets, err
	}
	if assets.manifest, err = resolve("manifest", bundle.Manifest); err != nil {
		return assets, err
	}
	return assets, nil
}

// markExecutable delegates to the host's chmod so permission semantics stay
// those of the platform.
func markExecutable(ctx context.Context, path string) error {
	result, err := cmdutil.Run(ctx, cmdutil.ExecOptions{}, []string{"chmod", "+x", path})
	if err != nil {
		if result != nil && len(result.Stderr) > 0 {
			err = fmt.Errorf("%w: %s", err, strings.TrimSpace(string(result.Stderr)))
		}
		return fsError("chmod", path, err)
	}
	return nil
}
