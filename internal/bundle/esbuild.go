package bundle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/snowball-c3/c3-scripts/internal/logging"
)

// Externals are provided by the host application at runtime and never bundled.
var Externals = []string{"react", "react-dom", "react/jsx-runtime", "react/jsx-dev-runtime"}

// ESBuild implements Bundler with the esbuild Go API.
type ESBuild struct {
	Logger *slog.Logger
}

// NewESBuild returns an esbuild-backed bundler.
func NewESBuild(logger *slog.Logger) *ESBuild {
	return &ESBuild{Logger: logging.OrDefault(logger)}
}

// Bundle builds one ESM bundle per entry into req.OutDir. esbuild cannot be
// interrupted, so ctx is only checked before the build starts.
func (b *ESBuild) Bundle(ctx context.Context, req Request) (*Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(req.Entries) == 0 {
		return nil, fmt.Errorf("no entry points to bundle")
	}

	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	start := time.Now()
	result := api.Build(buildOptions(req))

	if len(result.Errors) > 0 {
		return nil, &BuildError{Diagnostics: diagnostics(result.Errors)}
	}

	stats := &Stats{
		Mode:     req.Mode,
		OutDir:   req.OutDir,
		Entries:  len(req.Entries),
		Duration: time.Since(start),
	}

	for _, w := range diagnostics(result.Warnings) {
		stats.Warnings = append(stats.Warnings, w.String())
	}

	for _, f := range result.OutputFiles {
		rel, err := filepath.Rel(req.OutDir, f.Path)
		if err != nil {
			rel = f.Path
		}

		stats.Outputs = append(stats.Outputs, filepath.ToSlash(rel))
	}

	sort.Strings(stats.Outputs)

	logging.OrDefault(b.Logger).Debug("bundle written",
		slog.String("mode", string(req.Mode)),
		slog.Int("outputs", len(stats.Outputs)),
		slog.Duration("duration", stats.Duration))

	return stats, nil
}

func buildOptions(req Request) api.BuildOptions {
	entries := make([]api.EntryPoint, 0, len(req.Entries))
	for _, e := range req.Entries {
		entries = append(entries, api.EntryPoint{
			InputPath:  filepath.Join(req.Root, filepath.FromSlash(e.Path)),
			OutputPath: e.Name,
		})
	}

	opts := api.BuildOptions{
		AbsWorkingDir:       req.Root,
		EntryPointsAdvanced: entries,
		Outdir:              req.OutDir,
		Bundle:              true,
		Write:               true,
		Format:              api.FormatESModule,
		Platform:            api.PlatformBrowser,
		Target:              api.ES2020,
		JSX:                 api.JSXAutomatic,
		Loader:              map[string]api.Loader{".js": api.LoaderJSX},
		External:            Externals,
		LogLevel:            api.LogLevelSilent,
		Define: map[string]string{
			"process.env.NODE_ENV": fmt.Sprintf("%q", string(req.Mode)),
		},
	}

	if req.Mode == ModeProduction {
		opts.MinifyWhitespace = true
		opts.MinifyIdentifiers = true
		opts.MinifySyntax = true
	} else {
		opts.Sourcemap = api.SourceMapInline
		opts.JSXDev = true
	}

	return opts
}

func diagnostics(msgs []api.Message) []Diagnostic {
	out := make([]Diagnostic, 0, len(msgs))

	for _, m := range msgs {
		d := Diagnostic{Text: m.Text}
		if m.Location != nil {
			d.File = m.Location.File
			d.Line = m.Location.Line
			d.Column = m.Location.Column + 1
		}

		out = append(out, d)
	}

	return out
}
