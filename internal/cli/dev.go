package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/snowball-c3/c3-scripts/internal/bundle"
	"github.com/snowball-c3/c3-scripts/internal/config"
	"github.com/snowball-c3/c3-scripts/internal/dev"
	"github.com/snowball-c3/c3-scripts/internal/metrics"
	"github.com/snowball-c3/c3-scripts/internal/reload"
	"github.com/snowball-c3/c3-scripts/internal/watch"
)

type devOptions struct {
	out string
}

func newDevCommand() *cobra.Command {
	opts := &devOptions{}

	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Serve a development build and rebuild on change",
		Long: `Dev verifies the project, performs a development build and serves
it over HTTP together with a live-reload websocket on the same port.

Every change below src/ triggers a rebuild; connected clients receive a
"reload" message after each successful one. A failed rebuild is reported
and the server keeps running.

A change to the project config file or package.json stops the server:
the running build's assumptions may no longer hold, so rerun the
command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDev(cmd.Context(), cmd.ErrOrStderr(), opts)
		},
	}

	// port, debounce and metrics are read through the tool config so that
	// C3_PORT and .c3-scripts.yaml apply as well.
	f := cmd.Flags()
	f.IntP("port", "p", config.DefaultPort, "HTTP and websocket port")
	f.StringVarP(&opts.out, "out", "o", "", "output directory (default: dev-dist)")
	f.Duration("debounce", 0, "coalesce source changes within this interval (0 rebuilds on every change)")
	f.Bool("metrics", true, "expose Prometheus metrics at /metrics")

	return cmd
}

// countingBroadcaster records every broadcast in the metrics.
type countingBroadcaster struct {
	*reload.Registry
	metrics *metrics.Metrics
}

func (b countingBroadcaster) Broadcast() int {
	b.metrics.ReloadBroadcast()
	return b.Registry.Broadcast()
}

func runDev(ctx context.Context, status io.Writer, opts *devOptions) error {
	cfg := config.FromContext(ctx)

	s, err := newSession(ctx, status)
	if err != nil {
		return exitFor(err)
	}

	if _, err := s.prepare(ctx); err != nil {
		return exitFor(err)
	}

	outDir := resolveOutDir(s.project.Root, opts.out, bundle.ModeDevelopment)

	sources, err := watch.WatchTree(s.project.SourcePath(), watch.TreeOptions{Debounce: cfg.Debounce, Logger: s.logger})
	if err != nil {
		return exitFor(err)
	}

	configs, err := watch.WatchFiles(s.project.WatchedConfigPaths(), s.logger)
	if err != nil {
		_ = sources.Close()
		return exitFor(err)
	}

	registry := reload.NewRegistry(s.logger, s.metrics.SetReloadClients)

	var metricsHandler http.Handler
	if cfg.Metrics {
		metricsHandler = s.metrics.Handler()
	}

	handler := dev.NewHandler(dev.HandlerOptions{
		Dir:     outDir,
		Reload:  registry,
		Metrics: metricsHandler,
		Logger:  s.logger,
	})

	loop, err := dev.New(dev.Options{
		Builder: s.coordinator,
		Sources: sources,
		Config:  configs,
		Server:  dev.NewHTTPServer(fmt.Sprintf(":%d", cfg.Port), handler, s.logger),
		Clients: countingBroadcaster{Registry: registry, metrics: s.metrics},
		OutDir:  outDir,
		Mode:    bundle.ModeDevelopment,
		URL:     fmt.Sprintf("http://localhost:%d", cfg.Port),
		Logger:  s.logger,
		Out:     status,
	})
	if err != nil {
		_ = sources.Close()
		_ = configs.Close()

		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = loop.Run(sigCtx)

	var terminated *dev.TerminatedError
	if errors.As(err, &terminated) {
		// The loop already explained why it stopped.
		if terminated.ConfigChanged() {
			return nil
		}

		return &ExitError{Code: ExitFailure, Err: err}
	}

	return exitFor(err)
}
