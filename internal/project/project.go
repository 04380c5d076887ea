package project

import (
	"path/filepath"
)

// Project is a buildable unit. Its sources live in <Name>/ and the toolchain
// consumes the project file <Name>/<Name>.<ext>.
type Project struct {
	Name string
}

// File returns the project file path relative to the build root.
func (p Project) File(ext string) string {
	return filepath.Join(p.Name, p.Name+"."+ext)
}

// Platform pairs a display label used for output naming with the
// toolchain's target identifier.
type Platform struct {
	Label  string
	Target string
}

// Bundle describes an application bundle assembled for one
// (project, target) pair in place of the plain archive.
// Asset paths are relative to the build root.
type Bundle struct {
	Project  string
	Target   string
	AppName  string
	Icon     string
	Launcher string
	Manifest string
}

// Toolchain describes how the external publisher is invoked.
type Toolchain struct {
	Command       []string // e.g. ["dotnet"]
	Verb          string   // e.g. "publish"
	Configuration string   // e.g. "Release"
}

// Config is the resolved, validated publishing configuration
type Config struct {
	Root            string
	OutputDir       string
	ProjectFileExt  string
	SymbolSuffixes  []string
	Toolchain       Toolchain
	Projects        []Project
	Platforms       []Platform
	ExtraParameters map[string][]string
	Bundles         []Bundle
}

// ExtraParametersFor returns the extra toolchain tokens for a target.
func (c *Config) ExtraParametersFor(target string) []string {
	return c.ExtraParameters[target]
}

// BundleFor returns the bundle configured for a project and target, if any.
func (c *Config) BundleFor(projectName, target string) (Bundle, bool) {
	for _, b := range c.Bundles {
		if b.Project == projectName && b.Target == target {
			return b, true
		}
	}
	return Bundle{}, false
}

// PlatformFor returns the declared platform with the given target identifier.
func (c *Config) PlatformFor(target string) (Platform, bool) {
	for _, p := range c.Platforms {
		if p.Target == target {
			return p, true
		}
	}
	return Platform{}, false
}

// FileConfig represents the YAML configuration file.
// Omitted keys fall back to the compiled-in defaults.
type FileConfig struct {
	Root            string                 `yaml:"root"`
	OutputDir       string                 `yaml:"output_dir"`
	ProjectFileExt  string                 `yaml:"project_file_ext"`
	SymbolSuffixes  []string               `yaml:"symbol_suffixes"`
	Toolchain       ToolchainConfig        `yaml:"toolchain"`
	Projects        []string               `yaml:"projects"`
	Platforms       []PlatformConfig       `yaml:"platforms"`
	ExtraParameters map[string]interface{} `yaml:"extra_parameters"` // string or []string per target
	Bundles         []BundleConfig         `yaml:"bundles"`
}

// ToolchainConfig represents the toolchain section of the YAML file
type ToolchainConfig struct {
	Command       interface{} `yaml:"command"` // string or []string
	Verb          string      `yaml:"verb"`
	Configuration string      `yaml:"configuration"`
}

// PlatformConfig represents one platform entry in the YAML file
type PlatformConfig struct {
	Label  string `yaml:"label"`
	Target string `yaml:"target"`
}

// BundleConfig represents one bundle entry in the YAML file
type BundleConfig struct {
	Project  string `yaml:"project"`
	Target   string `yaml:"target"`
	AppName  string `yaml:"app_name"`
	Icon     string `yaml:"icon"`
	Launcher string `yaml:"launcher"`
	Manifest string `yaml:"manifest"`
}
