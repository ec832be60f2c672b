// Package cli implements the cobra command tree for c3-scripts.
package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/snowball-c3/c3-scripts/internal/config"
	"github.com/snowball-c3/c3-scripts/internal/logging"
	"github.com/snowball-c3/c3-scripts/internal/project"
	"github.com/snowball-c3/c3-scripts/internal/verify"
)

// Process exit codes.
const (
	ExitFailure      = 1
	ExitUsage        = 2
	ExitVerification = 7
)

// ExitError wraps an error with a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}

	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// exitFor classifies err: verification failures and a missing project
// config exit with ExitVerification, everything else with ExitFailure.
func exitFor(err error) error {
	if err == nil {
		return nil
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}

	if len(verify.Errors(err)) > 0 || errors.Is(err, project.ErrConfigNotFound) {
		return &ExitError{Code: ExitVerification, Err: err}
	}

	return &ExitError{Code: ExitFailure, Err: err}
}

// Execute builds the command tree, runs it, and returns the exit code.
func Execute() int {
	cmd := NewRootCommand()

	if err := cmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Error: "+verify.Format(err))

		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}

		return ExitFailure
	}

	return 0
}

// NewRootCommand constructs the top-level cobra.Command with all
// subcommands attached.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "c3-scripts",
		Short: "Verify, build and serve form-field component projects",
		Long: `c3-scripts guards a form-field component project against structural
and version drift and compiles its components into browser bundles.

Before anything is compiled it checks the declared React runtime
versions, validates c3.config against the framework schema and makes
sure every mandatory component exists. Every build then checks that each
component module has a default export.

The dev command serves the development build, rebuilds on source
changes, tells connected clients to reload, and stops as soon as the
project config or package.json changes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd, cfgFile)
			if err != nil {
				return &ExitError{Code: ExitUsage, Err: err}
			}

			logger := logging.Setup(cfg)

			ctx := cmd.Context()
			ctx = config.NewContext(ctx, cfg)
			ctx = logging.NewContext(ctx, logger)
			cmd.SetContext(ctx)

			logger.Debug("configuration loaded",
				slog.String("logLevel", cfg.LogLevel),
				slog.String("logFormat", cfg.LogFormat),
				slog.String("projectDir", cfg.ProjectDir),
			)

			return nil
		},
	}

	// Global persistent flags.
	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: .c3-scripts.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text, json")
	pf.BoolP("quiet", "q", false, "suppress non-essential output")
	pf.StringP("project-dir", "C", ".", "form-field project directory")

	// Flag parsing errors return exit code 2.
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: ExitUsage, Err: err}
	})

	cmd.AddCommand(
		newVersionCommand(),
		newVerifyCommand(),
		newBuildCommand(),
		newDevCommand(),
		newCompletionCommand(),
	)

	return cmd
}
