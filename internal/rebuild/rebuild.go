// Package rebuild runs one build at a time: inventory snapshot, default-export
// check, then the bundler.
package rebuild

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/snowball-c3/c3-scripts/internal/bundle"
	"github.com/snowball-c3/c3-scripts/internal/inventory"
	"github.com/snowball-c3/c3-scripts/internal/logging"
	"github.com/snowball-c3/c3-scripts/internal/metrics"
	"github.com/snowball-c3/c3-scripts/internal/verify"
)

const tracerName = "github.com/snowball-c3/c3-scripts/internal/rebuild"

// Inventory lists the component modules to build.
type Inventory interface {
	List() (inventory.Map, error)
}

// ExportChecker runs the per-build default-export check.
type ExportChecker interface {
	CheckDefaultExports(ctx context.Context, inv inventory.Map) error
}

// Options configures a Coordinator.
type Options struct {
	Root      string
	Inventory Inventory
	Checker   ExportChecker
	Bundler   bundle.Bundler

	// Metrics may be nil.
	Metrics *metrics.Metrics
	// Tracer defaults to the global OpenTelemetry provider.
	Tracer trace.Tracer
	Logger *slog.Logger
}

// Coordinator serialises builds. The zero value is not usable; use New.
type Coordinator struct {
	opts   Options
	sem    *semaphore.Weighted
	tracer trace.Tracer
	logger *slog.Logger
	seq    atomic.Uint64
}

// New creates a Coordinator.
func New(opts Options) *Coordinator {
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	return &Coordinator{
		opts:   opts,
		sem:    semaphore.NewWeighted(1),
		tracer: tracer,
		logger: logging.OrDefault(opts.Logger),
	}
}

// Run performs one build into outDir. A call made while another build is in
// flight waits for it to finish; ctx only bounds that wait. Errors from the
// default-export check and the bundler are returned unmodified.
func (c *Coordinator) Run(ctx context.Context, mode bundle.Mode, outDir string) (*bundle.Stats, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for in-flight build: %w", err)
	}
	defer c.sem.Release(1)

	seq := c.seq.Add(1)

	ctx, span := c.tracer.Start(ctx, "rebuild.Run", trace.WithAttributes(
		attribute.Int64("c3.build.seq", int64(seq)),
		attribute.String("c3.build.mode", string(mode)),
		attribute.String("c3.build.out_dir", outDir),
	))
	defer span.End()

	start := time.Now()
	logger := logging.ForBuild(c.logger, seq, string(mode))
	stats, err := c.build(ctx, logger, mode, outDir)

	c.opts.Metrics.ObserveBuild(string(mode), time.Since(start), err)

	if err != nil {
		for _, ve := range verify.Errors(err) {
			c.opts.Metrics.VerificationFailed(string(ve.Kind()))
		}

		logger.Debug("build failed", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	span.SetAttributes(attribute.Int("c3.build.outputs", len(stats.Outputs)))
	span.SetStatus(codes.Ok, "")

	logger.Debug("build finished", slog.Int("outputs", len(stats.Outputs)), slog.Duration("duration", stats.Duration))

	return stats, nil
}

// Builds returns the number of builds started so far.
func (c *Coordinator) Builds() uint64 { return c.seq.Load() }

func (c *Coordinator) build(ctx context.Context, logger *slog.Logger, mode bundle.Mode, outDir string) (*bundle.Stats, error) {
	inv, err := c.opts.Inventory.List()
	if err != nil {
		return nil, fmt.Errorf("listing components: %w", err)
	}

	if err := c.opts.Checker.CheckDefaultExports(ctx, inv); err != nil {
		return nil, err
	}

	logger.Debug("building", slog.Int("components", inv.Len()))

	return c.opts.Bundler.Bundle(ctx, bundle.Request{
		Mode:    mode,
		Root:    c.opts.Root,
		OutDir:  outDir,
		Entries: bundle.EntriesFrom(inv),
	})
}
