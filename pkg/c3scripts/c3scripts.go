// Package c3scripts provides a public Go API for verifying and bundling
// form-field component projects.
//
// This package exposes the c3-scripts pipeline as a library, allowing
// programmatic use without the CLI.
//
// Basic usage:
//
//	p, err := c3scripts.Open("path/to/field")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := p.Build(ctx, c3scripts.ModeProduction, "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Outputs)
//
// With options:
//
//	p, err := c3scripts.Open("path/to/field",
//	    c3scripts.WithLogger(logger),
//	    c3scripts.WithAnnounce(func(platform, component string) {
//	        fmt.Printf("found %s/%s\n", platform, component)
//	    }),
//	)
package c3scripts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/snowball-c3/c3-scripts/internal/bundle"
	"github.com/snowball-c3/c3-scripts/internal/inventory"
	"github.com/snowball-c3/c3-scripts/internal/jsparse"
	"github.com/snowball-c3/c3-scripts/internal/logging"
	"github.com/snowball-c3/c3-scripts/internal/project"
	"github.com/snowball-c3/c3-scripts/internal/rebuild"
	"github.com/snowball-c3/c3-scripts/internal/schema"
	"github.com/snowball-c3/c3-scripts/internal/verify"
)

// Mode selects development or production bundling.
type Mode = bundle.Mode

// Build modes.
const (
	ModeDevelopment = bundle.ModeDevelopment
	ModeProduction  = bundle.ModeProduction
)

// Report is the outcome of a full verification run.
type Report = verify.Report

// Option configures a Pipeline.
// Use the With* functions to create Options.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	announce  func(platform, component string)
	platforms []string
}

// WithLogger sets the logger used by every stage (default: discard).
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithAnnounce sets a hook called for each mandatory component found.
func WithAnnounce(fn func(platform, component string)) Option {
	return func(o *options) { o.announce = fn }
}

// WithPlatforms overrides the platform directories scanned below src/.
func WithPlatforms(platforms ...string) Option {
	return func(o *options) { o.platforms = platforms }
}

// BuildResult summarises a successful Build.
type BuildResult struct {
	// Name is the project name from its config.
	Name string

	// Mode is the build mode used.
	Mode Mode

	// OutDir is the absolute output directory.
	OutDir string

	// Outputs lists written files relative to OutDir.
	Outputs []string

	// Warnings holds bundler warnings.
	Warnings []string

	// Duration is the wall-clock build time.
	Duration time.Duration
}

// Pipeline verifies and bundles a single project.
type Pipeline struct {
	project     *project.Project
	verifier    *verify.Verifier
	coordinator *rebuild.Coordinator
	logger      *slog.Logger
}

// Open prepares a pipeline for the project rooted at dir. No checks run
// until Verify or Build is called.
func Open(dir string, opts ...Option) (*Pipeline, error) {
	if dir == "" {
		return nil, errors.New("project directory must not be empty")
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = logging.Discard()
	}

	proj, err := project.Open(dir)
	if err != nil {
		return nil, err
	}

	validator, err := schema.NewConfigValidator()
	if err != nil {
		return nil, fmt.Errorf("loading config schema: %w", err)
	}

	scanner := &inventory.Scanner{Root: proj.Root, SourceDir: project.SourceDir, Platforms: o.platforms}

	v, err := verify.New(verify.Options{
		Root:      proj.Root,
		Manifest:  proj,
		Schema:    validator,
		Parser:    jsparse.New(),
		Inventory: scanner,
		Announce:  o.announce,
		Logger:    o.logger,
	})
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		project:  proj,
		verifier: v,
		coordinator: rebuild.New(rebuild.Options{
			Root:      proj.Root,
			Inventory: scanner,
			Checker:   v,
			Bundler:   bundle.NewESBuild(o.logger),
			Logger:    o.logger,
		}),
		logger: o.logger,
	}, nil
}

// Root returns the absolute project root.
func (p *Pipeline) Root() string { return p.project.Root }

// Verify runs every check without building. The returned error joins all
// findings of the first failing group.
func (p *Pipeline) Verify(ctx context.Context) error {
	if err := p.verifier.OneTime(ctx); err != nil {
		return err
	}

	return p.verifier.Runtime(ctx)
}

// Report runs Verify and renders its outcome as a Report.
func (p *Pipeline) Report(ctx context.Context) *Report {
	return verify.NewReport(p.project.Root, p.Verify(ctx))
}

// Build runs the one-time checks and bundles every component into outDir.
// An empty outDir selects dist/ or dev-dist/ below the project root.
func (p *Pipeline) Build(ctx context.Context, mode Mode, outDir string) (*BuildResult, error) {
	if _, err := bundle.ParseMode(string(mode)); err != nil {
		return nil, err
	}

	if err := p.verifier.OneTime(ctx); err != nil {
		return nil, err
	}

	cfg, err := p.verifier.PreBuild(ctx)
	if err != nil {
		return nil, err
	}

	outDir = p.resolveOutDir(mode, outDir)

	stats, err := p.coordinator.Run(ctx, mode, outDir)
	if err != nil {
		return nil, err
	}

	return &BuildResult{
		Name:     cfg.Name(),
		Mode:     stats.Mode,
		OutDir:   outDir,
		Outputs:  stats.Outputs,
		Warnings: stats.Warnings,
		Duration: stats.Duration,
	}, nil
}

func (p *Pipeline) resolveOutDir(mode Mode, outDir string) string {
	switch {
	case outDir == "" && mode == ModeDevelopment:
		return p.project.DevDistPath()
	case outDir == "":
		return p.project.DistPath()
	case filepath.IsAbs(outDir):
		return outDir
	default:
		return filepath.Join(p.project.Root, outDir)
	}
}

// IsVerificationError reports whether err carries at least one project
// check failure, as opposed to an I/O or bundler error.
func IsVerificationError(err error) bool {
	return len(verify.Errors(err)) > 0 || errors.Is(err, project.ErrConfigNotFound)
}
