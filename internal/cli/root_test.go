package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowball-c3/c3-scripts/internal/project"
	"github.com/snowball-c3/c3-scripts/internal/verify"
)

// executeCommand is a test helper that runs the CLI with the given args and
// captures both stdout and stderr.
func executeCommand(args ...string) (stdout, stderr string, err error) {
	cmd := NewRootCommand()
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)
	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)
	err = cmd.Execute()

	return outBuf.String(), errBuf.String(), err
}

func requireExitCode(t *testing.T, err error, code int) {
	t.Helper()

	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, code, exitErr.Code, "error: %v", err)
}

// ---------------------------------------------------------------------------
// Help output
// ---------------------------------------------------------------------------

func TestRootCommand_Help(t *testing.T) {
	stdout, _, err := executeCommand("--help")
	require.NoError(t, err)

	for _, sub := range []string{"dev", "build", "verify", "version", "completion"} {
		assert.Contains(t, stdout, sub, "help should mention %q subcommand", sub)
	}

	for _, flag := range []string{"--config", "--log-level", "--log-format", "--quiet", "--project-dir"} {
		assert.Contains(t, stdout, flag, "help should mention %q flag", flag)
	}
}

// ---------------------------------------------------------------------------
// Usage and config errors → exit code 2
// ---------------------------------------------------------------------------

func TestRootCommand_UnknownFlag(t *testing.T) {
	_, stderr, err := executeCommand("--nonexistent")
	requireExitCode(t, err, ExitUsage)
	assert.Empty(t, stderr, "cobra should not print errors to stderr (SilenceErrors)")
}

func TestRootCommand_InvalidConfig(t *testing.T) {
	_, _, err := executeCommand("--config", "/nonexistent/path.yaml", "verify")
	requireExitCode(t, err, ExitUsage)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestRootCommand_InvalidLogLevel(t *testing.T) {
	_, _, err := executeCommand("--log-level", "trace", "verify")
	requireExitCode(t, err, ExitUsage)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestRootCommand_InvalidLogFormat(t *testing.T) {
	_, _, err := executeCommand("--log-format", "xml", "verify")
	requireExitCode(t, err, ExitUsage)
	assert.Contains(t, err.Error(), "invalid log format")
}

func TestRootCommand_MissingProjectDir(t *testing.T) {
	_, _, err := executeCommand("-C", "/nonexistent/project/12345", "verify")
	requireExitCode(t, err, ExitUsage)
}

// ---------------------------------------------------------------------------
// Subcommands skip project loading
// ---------------------------------------------------------------------------

func TestRootCommand_VersionIgnoresBadConfig(t *testing.T) {
	// version overrides PersistentPreRunE, so a broken --config is not read.
	_, _, err := executeCommand("--config", "/nonexistent/path.yaml", "version", "--short")
	require.NoError(t, err)
}

// ---------------------------------------------------------------------------
// ExitError
// ---------------------------------------------------------------------------

func TestExitError_ErrorWithMessage(t *testing.T) {
	err := &ExitError{Code: 1, Err: assert.AnError}
	assert.Contains(t, err.Error(), assert.AnError.Error())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestExitError_ErrorWithoutMessage(t *testing.T) {
	err := &ExitError{Code: 42}
	assert.Equal(t, "exit code 42", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestExitFor(t *testing.T) {
	assert.NoError(t, exitFor(nil))

	requireExitCode(t, exitFor(errors.New("boom")), ExitFailure)
	requireExitCode(t, exitFor(&verify.MandatoryModuleMissingError{Platform: "web", Component: "Label"}), ExitVerification)
	requireExitCode(t, exitFor(errors.Join(&verify.SchemaInvalidError{}, &verify.SchemaInvalidError{})), ExitVerification)
	requireExitCode(t, exitFor(project.ErrConfigNotFound), ExitVerification)

	usage := &ExitError{Code: ExitUsage, Err: errors.New("bad flag")}
	assert.Same(t, usage, exitFor(usage))
}
