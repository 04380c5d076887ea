package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"relpack/internal/security"
	"relpack/pkg/cmdutil"

	"gopkg.in/yaml.v3"
)

const (
	DefaultOutputDir      = "bin"
	DefaultProjectFileExt = "csproj"
	DefaultVerb           = "publish"
	DefaultConfiguration  = "Release"
	DefaultConfigFileName = "relpack.yaml"
)

// DefaultConfig returns the compiled-in configuration used when no config
// file is present.
func DefaultConfig() *Config {
	return &Config{
		Root:           ".",
		OutputDir:      DefaultOutputDir,
		ProjectFileExt: DefaultProjectFileExt,
		SymbolSuffixes: []string{".pdb"},
		Toolchain: Toolchain{
			Command:       []string{"dotnet"},
			Verb:          DefaultVerb,
			Configuration: DefaultConfiguration,
		},
		Projects: []Project{
			{Name: "Uchu.Tool"},
		},
		Platforms: []Platform{
			{Label: "Windows-x64", Target: "win-x64"},
			{Label: "macOS-x64", Target: "osx-x64"},
			{Label: "Linux-x64", Target: "linux-x64"},
		},
		ExtraParameters: map[string][]string{
			"win-x64": {"/p:IncludeNativeLibrariesForSelfExtract=true"},
		},
		Bundles: []Bundle{
			{
				Project:  "Uchu.Tool",
				Target:   "osx-x64",
				AppName:  "Uchu Tool",
				Icon:     filepath.Join("packaging", "macOS", "UchuLogo.icns"),
				Launcher: filepath.Join("packaging", "macOS", "StartUchuTool"),
				Manifest: filepath.Join("packaging", "macOS", "Info.plist"),
			},
		},
	}
}

// LoadConfig loads the YAML file at configPath on top of the compiled-in
// defaults and validates the result. A relative root in the file is resolved
// against the file's directory.
func LoadConfig(configPath string) (*Config, error) {
	if err := security.RejectWorldWritable(configPath); err != nil {
		return nil, fmt.Errorf("refusing to load config: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	cfg, err := fc.Apply(DefaultConfig())
	if err != nil {
		return nil, err
	}

	if fc.Root != "" && !filepath.IsAbs(fc.Root) {
		cfg.Root = filepath.Join(filepath.Dir(configPath), fc.Root)
	}

	if errs := ValidateConfig(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration in %s:\n%s", configPath, strings.Join(errs, "\n"))
	}

	return cfg, nil
}

// Apply overlays the file configuration onto base and returns the result.
// List-valued keys present in the file replace the defaults entirely, so
// "bundles: []" disables bundling.
func (fc *FileConfig) Apply(base *Config) (*Config, error) {
	cfg := *base

	if fc.Root != "" {
		cfg.Root = fc.Root
	}
	if fc.OutputDir != "" {
		cfg.OutputDir = fc.OutputDir
	}
	if fc.ProjectFileExt != "" {
		cfg.ProjectFileExt = strings.TrimPrefix(fc.ProjectFileExt, ".")
	}
	if fc.SymbolSuffixes != nil {
		cfg.SymbolSuffixes = fc.SymbolSuffixes
	}

	if fc.Toolchain.Command != nil {
		command, err := cmdutil.ParseTokens(fc.Toolchain.Command)
		if err != nil {
			return nil, fmt.Errorf("invalid toolchain command: %w", err)
		}
		cfg.Toolchain.Command = command
	}
	if fc.Toolchain.Verb != "" {
		cfg.Toolchain.Verb = fc.Toolchain.Verb
	}
	if fc.Toolchain.Configuration != "" {
		cfg.Toolchain.Configuration = fc.Toolchain.Configuration
	}

	if fc.Projects != nil {
		cfg.Projects = make([]Project, len(fc.Projects))
		for i, name := range fc.Projects {
			cfg.Projects[i] = Project{Name: name}
		}
	}

	if fc.Platforms != nil {
		cfg.Platforms = make([]Platform, len(fc.Platforms))
		for i, p := range fc.Platforms {
			cfg.Platforms[i] = Platform{Label: p.Label, Target: p.Target}
		}
	}

	if fc.ExtraParameters != nil {
		cfg.ExtraParameters = make(map[string][]string, len(fc.ExtraParameters))
		for target, raw := range fc.ExtraParameters {
			tokens, err := cmdutil.ParseTokens(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid extra_parameters for %s: %w", target, err)
			}
			cfg.ExtraParameters[target] = tokens
		}
	}

	if fc.Bundles != nil {
		cfg.Bundles = make([]Bundle, len(fc.Bundles))
		for i, b := range fc.Bundles {
			cfg.Bundles[i] = Bundle{
				Project:  b.Project,
				Target:   b.Target,
				AppName:  b.AppName,
				Icon:     b.Icon,
				Launcher: b.Launcher,
				Manifest: b.Manifest,
			}
		}
	}

	return &cfg, nil
}

// ValidateConfig validates a resolved configuration and returns one message
// per problem found.
func ValidateConfig(cfg *Config) []string {
	var errors []string

	if cfg.Root == "" {
		errors = append(errors, "  - root cannot be empty")
	}

	// The output directory is wiped on every run, so it must stay strictly
	// inside the root.
	if cfg.OutputDir == "" {
		errors = append(errors, "  - output_dir cannot be empty")
	} else if filepath.IsAbs(cfg.OutputDir) {
		errors = append(errors, fmt.Sprintf("  - output_dir must be relative to root, got '%s'", cfg.OutputDir))
	} else if _, err := security.EnsureWithin(cfg.Root, filepath.Join(cfg.Root, cfg.OutputDir)); err != nil {
		errors = append(errors, fmt.Sprintf("  - output_dir: %v", err))
	}

	if cfg.ProjectFileExt == "" {
		errors = append(errors, "  - project_file_ext cannot be empty")
	}

	for i, suffix := range cfg.SymbolSuffixes {
		if strings.TrimSpace(suffix) == "" {
			errors = append(errors, fmt.Sprintf("  - symbol_suffixes[%d] cannot be empty", i))
		}
	}

	if len(cfg.Toolchain.Command) == 0 || cfg.Toolchain.Command[0] == "" {
		errors = append(errors, "  - toolchain command cannot be empty")
	}
	if cfg.Toolchain.Verb == "" {
		errors = append(errors, "  - toolchain verb cannot be empty")
	}
	if err := security.ValidatePathSegment(cfg.Toolchain.Configuration); err != nil {
		errors = append(errors, fmt.Sprintf("  - toolchain configuration: %v", err))
	}

	if len(cfg.Projects) == 0 {
		errors = append(errors, "  - at least one project is required")
	}
	projects := make(map[string]bool)
	for _, p := range cfg.Projects {
		if err := security.ValidateProjectName(p.Name); err != nil {
			errors = append(errors, fmt.Sprintf("  - project '%s': %v", p.Name, err))
		}
		if projects[p.Name] {
			errors = append(errors, fmt.Sprintf("  - project '%s' is declared more than once", p.Name))
		}
		projects[p.Name] = true
	}

	if len(cfg.Platforms) == 0 {
		errors = append(errors, "  - at least one platform is required")
	}
	targets := make(map[string]bool)
	labels := make(map[string]bool)
	for _, p := range cfg.Platforms {
		if err := security.ValidatePlatformLabel(p.Label); err != nil {
			errors = append(errors, fmt.Sprintf("  - platform '%s': %v", p.Label, err))
		}
		if err := security.ValidateTargetID(p.Target); err != nil {
			errors = append(errors, fmt.Sprintf("  - platform '%s': %v", p.Label, err))
		}
		if targets[p.Target] {
			errors = append(errors, fmt.Sprintf("  - target '%s' is declared more than once", p.Target))
		}
		if labels[p.Label] {
			errors = append(errors, fmt.Sprintf("  - platform label '%s' is declared more than once", p.Label))
		}
		targets[p.Target] = true
		labels[p.Label] = true
	}

	seenBundles := make(map[string]bool)
	for i, b := range cfg.Bundles {
		prefix := fmt.Sprintf("  - bundles[%d]", i)
		if !projects[b.Project] {
			errors = append(errors, fmt.Sprintf("%s: project '%s' is not declared", prefix, b.Project))
		}
		if _, ok := cfg.PlatformFor(b.Target); !ok {
			errors = append(errors, fmt.Sprintf("%s: target '%s' is not declared", prefix, b.Target))
		}
		if err := security.ValidatePathSegment(b.AppName); err != nil {
			errors = append(errors, fmt.Sprintf("%s: app_name: %v", prefix, err))
		}
		assets := []struct{ field, path string }{
			{"icon", b.Icon},
			{"launcher", b.Launcher},
			{"manifest", b.Manifest},
		}
		for _, a := range assets {
			if a.path == "" {
				errors = append(errors, fmt.Sprintf("%s: missing required '%s' field", prefix, a.field))
			}
		}
		key := b.Project + "/" + b.Target
		if seenBundles[key] {
			errors = append(errors, fmt.Sprintf("%s: duplicate bundle for %s", prefix, key))
		}
		seenBundles[key] = true
	}

	errors = append(errors, outputOverlaps(cfg)...)

	return errors
}

// outputOverlaps reports project and asset directories that would be wiped
// along with the output directory.
func outputOverlaps(cfg *Config) []string {
	if cfg.OutputDir == "" || filepath.IsAbs(cfg.OutputDir) {
		return nil
	}
	output := filepath.Join(cfg.Root, cfg.OutputDir)

	var errors []string
	for _, p := range cfg.Projects {
		if p.Name == "" {
			continue
		}
		if overlaps(output, filepath.Join(cfg.Root, p.Name)) {
			errors = append(errors, fmt.Sprintf("  - output_dir '%s' overlaps the sources of project '%s'", cfg.OutputDir, p.Name))
		}
	}

	seen := make(map[string]bool)
	for _, b := range cfg.Bundles {
		for _, asset := range []string{b.Icon, b.Launcher, b.Manifest} {
			if asset == "" {
				continue
			}
			dir := filepath.Dir(asset)
			if seen[dir] {
				continue
			}
			seen[dir] = true
			if overlaps(output, filepath.Join(cfg.Root, dir)) {
				errors = append(errors, fmt.Sprintf("  - output_dir '%s' overlaps bundle assets in '%s'", cfg.OutputDir, dir))
			}
		}
	}
	return errors
}

// overlaps reports whether a and b are the same directory or one contains
// the other.
func overlaps(a, b string) bool {
	a, b = filepath.Clean(a), filepath.Clean(b)
	if a == b {
		return true
	}
	if _, err := security.EnsureWithin(a, b); err == nil {
		return true
	}
	_, err := security.EnsureWithin(b, a)
	return err == nil
}
