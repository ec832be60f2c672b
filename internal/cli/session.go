package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/snowball-c3/c3-scripts/internal/bundle"
	"github.com/snowball-c3/c3-scripts/internal/config"
	"github.com/snowball-c3/c3-scripts/internal/inventory"
	"github.com/snowball-c3/c3-scripts/internal/jsparse"
	"github.com/snowball-c3/c3-scripts/internal/logging"
	"github.com/snowball-c3/c3-scripts/internal/metrics"
	"github.com/snowball-c3/c3-scripts/internal/project"
	"github.com/snowball-c3/c3-scripts/internal/rebuild"
	"github.com/snowball-c3/c3-scripts/internal/schema"
	"github.com/snowball-c3/c3-scripts/internal/verify"
)

// session wires the collaborators every project command shares.
type session struct {
	project     *project.Project
	verifier    *verify.Verifier
	coordinator *rebuild.Coordinator
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// newSession opens the configured project directory. Present mandatory
// components are announced on status.
func newSession(ctx context.Context, status io.Writer) (*session, error) {
	cfg := config.FromContext(ctx)
	logger := logging.FromContext(ctx)

	proj, err := project.Open(cfg.ProjectDir)
	if err != nil {
		return nil, &ExitError{Code: ExitUsage, Err: err}
	}

	validator, err := schema.NewConfigValidator()
	if err != nil {
		return nil, fmt.Errorf("loading config schema: %w", err)
	}

	scanner := &inventory.Scanner{Root: proj.Root, SourceDir: project.SourceDir}

	v, err := verify.New(verify.Options{
		Root:      proj.Root,
		Manifest:  proj,
		Schema:    validator,
		Parser:    jsparse.New(),
		Inventory: scanner,
		Announce: func(platform, component string) {
			_, _ = fmt.Fprintf(status, "mandatory module %s/%s found\n", platform, component)
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	m := metrics.New()

	coordinator := rebuild.New(rebuild.Options{
		Root:      proj.Root,
		Inventory: scanner,
		Checker:   v,
		Bundler:   bundle.NewESBuild(logger),
		Metrics:   m,
		Logger:    logger,
	})

	logger.Debug("project opened", slog.String("root", proj.Root))

	return &session{
		project:     proj,
		verifier:    v,
		coordinator: coordinator,
		metrics:     m,
		logger:      logger,
	}, nil
}

// prepare runs the one-time and pre-build checks.
func (s *session) prepare(ctx context.Context) (project.Config, error) {
	if err := s.verifier.OneTime(ctx); err != nil {
		for _, ve := range verify.Errors(err) {
			s.metrics.VerificationFailed(string(ve.Kind()))
		}

		return nil, err
	}

	return s.verifier.PreBuild(ctx)
}
