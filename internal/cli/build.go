package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/snowball-c3/c3-scripts/internal/bundle"
	"github.com/snowball-c3/c3-scripts/internal/config"
	"github.com/snowball-c3/c3-scripts/internal/project"
)

type buildOptions struct {
	out string
}

func newBuildCommand() *cobra.Command {
	opts := &buildOptions{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Verify the project and write a bundle",
		Long: `Build runs every project check and compiles one browser bundle per
component into the output directory (dist/ by default, dev-dist/ for
--mode development).

React and React-DOM are left as external imports provided by the host
application.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.out, "out", "o", "", "output directory (default: dist, or dev-dist in development mode)")
	f.String("mode", config.DefaultMode, "build mode: production, development")

	return cmd
}

func runBuild(ctx context.Context, out, status io.Writer, opts *buildOptions) error {
	mode, err := bundle.ParseMode(config.FromContext(ctx).Mode)
	if err != nil {
		return &ExitError{Code: ExitUsage, Err: err}
	}

	s, err := newSession(ctx, status)
	if err != nil {
		return exitFor(err)
	}

	cfg, err := s.prepare(ctx)
	if err != nil {
		return exitFor(err)
	}

	outDir := resolveOutDir(s.project.Root, opts.out, mode)

	s.logger.Info("building", slog.String("field", cfg.Name()), slog.String("mode", string(mode)), slog.String("out", outDir))

	stats, err := s.coordinator.Run(ctx, mode, outDir)
	if err != nil {
		return exitFor(err)
	}

	for _, w := range stats.Warnings {
		_, _ = fmt.Fprintf(status, "warning: %s\n", w)
	}

	_, err = fmt.Fprintf(out, "built %d components into %s in %s\n", stats.Entries, outDir, stats.Duration.Round(time.Millisecond))

	return err
}

// resolveOutDir applies the per-mode default and makes relative paths
// relative to the project root.
func resolveOutDir(root, out string, mode bundle.Mode) string {
	if out == "" {
		if mode == bundle.ModeDevelopment {
			return filepath.Join(root, project.DevDistDir)
		}

		return filepath.Join(root, project.DistDir)
	}

	if filepath.IsAbs(out) {
		return out
	}

	return filepath.Join(root, out)
}
