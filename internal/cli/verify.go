package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/snowball-c3/c3-scripts/internal/output"
	"github.com/snowball-c3/c3-scripts/internal/verify"
)

type verifyOptions struct {
	format     string
	reportFile string
}

func newVerifyCommand() *cobra.Command {
	opts := &verifyOptions{}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run every project check without building",
		Long: `Verify runs the one-time checks (React versions, config schema,
mandatory components) followed by the default-export check of every
component module, and prints a report.

The command exits with code 7 when any check fails, which makes it
suitable as a CI gate.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVerify(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.format, "output", "o", "text", "report format: text, json, yaml")
	f.StringVar(&opts.reportFile, "report-file", output.StdoutPath, "write the report to this file instead of stdout")

	return cmd
}

func runVerify(ctx context.Context, out, status io.Writer, opts *verifyOptions) error {
	formatter, err := verify.NewFormatter(opts.format)
	if err != nil {
		return &ExitError{Code: ExitUsage, Err: err}
	}

	s, err := newSession(ctx, status)
	if err != nil {
		return exitFor(err)
	}

	checkErr := s.verifier.OneTime(ctx)
	if checkErr == nil {
		checkErr = s.verifier.Runtime(ctx)
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, verify.NewReport(s.project.Root, checkErr)); err != nil {
		return err
	}

	dest := output.For(opts.reportFile, out, s.logger)
	if err := dest.Write(buf.Bytes()); err != nil {
		return err
	}

	if _, isFile := dest.(*output.FileWriter); isFile {
		_, _ = fmt.Fprintf(status, "report written to %s\n", dest.Name())
	}

	return exitFor(checkErr)
}
