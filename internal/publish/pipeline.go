package publish

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"relpack/internal/project"
	"relpack/internal/security"
)

// Advisories printed at the start of every run. Exactly one applies.
const (
	AdvisoryNoExecutable = "Windows was detected. Linux and macOS binaries will be missing the permissions to run."
	AdvisoryNoIcon       = "Windows was not detected. Windows binaries will not have an icon with the executable."
)

// Result statuses
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Result describes the outcome of one archive or bundle step.
type Result struct {
	Project   string
	Platform  string
	Target    string
	Kind      string // "archive" or "bundle"
	Status    string
	Archive   string
	Version   string
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

// Summary lists the archives a run produced, in production order. A bundle
// replaces the plain archive of its pair.
type Summary struct {
	Results  []Result
	Duration time.Duration
}

// Archives returns the paths of the produced archives.
func (s *Summary) Archives() []string {
	paths := make([]string, 0, len(s.Results))
	for _, r := range s.Results {
		paths = append(paths, r.Archive)
	}
	return paths
}

// Recorder persists step results. Recording failures never fail a run.
type Recorder interface {
	Record(ctx context.Context, r Result) error
}

// Pipeline runs build, clean and archive for every selected project and
// platform in declared order, then assembles the configured bundles.
// Execution is strictly sequential and stops at the first failure.
type Pipeline struct {
	Config       *project.Config
	Builder      Builder
	Capabilities security.Capabilities
	Recorder     Recorder
	Logger       *slog.Logger

	// Advisory receives the one-line host advisory.
	Advisory io.Writer

	// Projects and Targets restrict the run. Empty means everything declared.
	Projects []string
	Targets  []string

	layout  Layout
	cleaner *Cleaner
}

// NewPipeline creates a pipeline for cfg.
func NewPipeline(cfg *project.Config, builder Builder, caps security.Capabilities, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		Config:       cfg,
		Builder:      builder,
		Capabilities: caps,
		Logger:       logger,
		Advisory:     os.Stderr,
	}
}

// Run executes the pipeline. On failure the returned error is a *StepError
// and the summary holds the archives produced before it.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}

	p.layout = NewLayout(p.Config)
	p.cleaner = NewCleaner(p.Config.SymbolSuffixes)

	projects, platforms, err := p.selection()
	if err != nil {
		return summary, &StepError{Step: StepPrepare, Err: err}
	}

	p.advise()

	if err := p.prepareOutput(); err != nil {
		return summary, &StepError{Step: StepPrepare, Err: err}
	}

	for _, proj := range projects {
		for _, platform := range platforms {
			if err := ctx.Err(); err != nil {
				return summary, &StepError{Project: proj.Name, Platform: platform.Label, Step: StepBuild, Err: err}
			}

			result, step, err := p.publishPair(ctx, proj, platform)
			p.record(ctx, result)
			if err != nil {
				summary.Duration = time.Since(start)
				return summary, &StepError{Project: proj.Name, Platform: platform.Label, Step: step, Err: err}
			}
			summary.Results = append(summary.Results, result)
		}
	}

	if len(p.Config.Bundles) > 0 {
		assembler := NewBundleAssembler(p.layout, p.Capabilities, p.cleaner.Matches, p.Logger)
		for _, pair := range p.bundlePairs(projects, platforms) {
			proj, platform, bundle := pair.project, pair.platform, pair.bundle
			if err := ctx.Err(); err != nil {
				return summary, &StepError{Project: proj.Name, Platform: platform.Label, Step: StepBundle, Err: err}
			}

			p.Logger.Info(fmt.Sprintf("Packaging %s release.", platform.Label))
			result := Result{
				Project:   proj.Name,
				Platform:  platform.Label,
				Target:    platform.Target,
				Kind:      "bundle",
				StartedAt: time.Now(),
			}
			result.Archive, result.Version, err = assembler.Assemble(ctx, bundle, proj, platform)
			result.Duration = time.Since(result.StartedAt)
			result.Status, result.Err = statusOf(err)
			p.record(ctx, result)
			if err != nil {
				summary.Duration = time.Since(start)
				return summary, &StepError{Project: proj.Name, Platform: platform.Label, Step: StepBundle, Err: err}
			}
			summary.replace(result)
		}
	}

	summary.Duration = time.Since(start)
	p.Logger.Info("Publish complete", "archives", len(summary.Results), "duration", summary.Duration.Round(time.Millisecond))
	return summary, nil
}

// publishPair builds one project for one platform and archives its publish
// tree. The returned step names where a failure happened.
func (p *Pipeline) publishPair(ctx context.Context, proj project.Project, platform project.Platform) (Result, Step, error) {
	p.Logger.Info(fmt.Sprintf("Exporting %s for %s", proj.Name, platform.Label))

	result := Result{
		Project:   proj.Name,
		Platform:  platform.Label,
		Target:    platform.Target,
		Kind:      "archive",
		StartedAt: time.Now(),
	}
	fail := func(step Step, err error) (Result, Step, error) {
		result.Duration = time.Since(result.StartedAt)
		result.Status, result.Err = statusOf(err)
		return result, step, err
	}

	if err := p.Builder.Build(ctx, proj, platform, p.Config.ExtraParametersFor(platform.Target)); err != nil {
		return fail(StepBuild, err)
	}

	version, publishDir, err := p.layout.ResolvePublishDir(proj, platform.Target)
	result.Version = version
	if err != nil {
		return fail(StepResolve, err)
	}

	removed, err := p.cleaner.Clean(publishDir)
	if err != nil {
		return fail(StepClean, err)
	}
	if len(removed) > 0 {
		p.Logger.Debug("Removed symbol files", "dir", publishDir, "files", removed)
	}

	archive, err := Archive(publishDir, p.layout.ArchiveBase(proj, platform), p.cleaner.Matches)
	if err != nil {
		return fail(StepArchive, err)
	}
	result.Archive = archive

	result.Duration = time.Since(result.StartedAt)
	result.Status = StatusSuccess
	return result, "", nil
}

func (p *Pipeline) advise() {
	if p.Advisory == nil {
		return
	}
	if p.Capabilities.CanSetExecutable {
		fmt.Fprintln(p.Advisory, AdvisoryNoIcon)
	} else {
		fmt.Fprintln(p.Advisory, AdvisoryNoExecutable)
	}
}

// prepareOutput wipes and recreates the output directory.
func (p *Pipeline) prepareOutput() error {
	dir := p.layout.OutputDir
	if _, err := security.EnsureWithin(p.Config.Root, dir); err != nil {
		return fmt.Errorf("%w: refusing to clear output directory: %w", ErrFilesystem, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fsError("remove", dir, err)
	}
	if err := security.CreateSecureDir(dir, security.PermDirectory); err != nil {
		return fsError("create", dir, err)
	}
	return nil
}

// selection applies the project and target filters, keeping declared order.
func (p *Pipeline) selection() ([]project.Project, []project.Platform, error) {
	projects := p.Config.Projects
	if len(p.Projects) > 0 {
		want := make(map[string]bool, len(p.Projects))
		for _, name := range p.Projects {
			want[name] = true
		}
		projects = nil
		for _, proj := range p.Config.Projects {
			if want[proj.Name] {
				projects = append(projects, proj)
				delete(want, proj.Name)
			}
		}
		if err := unknownNames("project", want); err != nil {
			return nil, nil, err
		}
	}

	platforms := p.Config.Platforms
	if len(p.Targets) > 0 {
		want := make(map[string]bool, len(p.Targets))
		for _, target := range p.Targets {
			want[target] = true
		}
		platforms = nil
		for _, platform := range p.Config.Platforms {
			if want[platform.Target] || want[platform.Label] {
				platforms = append(platforms, platform)
				delete(want, platform.Target)
				delete(want, platform.Label)
			}
		}
		if err := unknownNames("platform", want); err != nil {
			return nil, nil, err
		}
	}

	return projects, platforms, nil
}

// unknownNames reports every name left in want, sorted.
func unknownNames(kind string, want map[string]bool) error {
	if len(want) == 0 {
		return nil
	}
	names := make([]string, 0, len(want))
	for name := range want {
		names = append(names, strconv.Quote(name))
	}
	sort.Strings(names)
	if len(names) == 1 {
		return fmt.Errorf("unknown %s %s", kind, names[0])
	}
	return fmt.Errorf("unknown %ss %s", kind, strings.Join(names, ", "))
}

type bundlePair struct {
	project  project.Project
	platform project.Platform
	bundle   project.Bundle
}

// bundlePairs returns the selected pairs that have a bundle configured.
func (p *Pipeline) bundlePairs(projects []project.Project, platforms []project.Platform) []bundlePair {
	var pairs []bundlePair
	for _, proj := range projects {
		for _, platform := range platforms {
			if bundle, ok := p.Config.BundleFor(proj.Name, platform.Target); ok {
				pairs = append(pairs, bundlePair{proj, platform, bundle})
			}
		}
	}
	return pairs
}

func (p *Pipeline) record(ctx context.Context, r Result) {
	if p.Recorder == nil {
		return
	}
	if err := p.Recorder.Record(ctx, r); err != nil {
		p.Logger.Warn("Failed to record publish result", "project", r.Project, "platform", r.Platform, "error", err)
	}
}

func (s *Summary) replace(r Result) {
	for i := range s.Results {
		if s.Results[i].Project == r.Project && s.Results[i].Target == r.Target {
			s.Results[i] = r
			return
		}
	}
	s.Results = append(s.Results, r)
}

func statusOf(err error) (string, error) {
	if err != nil {
		return StatusFailed, err
	}
	return StatusSuccess, nil
}
