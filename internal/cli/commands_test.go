package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowball-c3/c3-scripts/internal/verify"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

const (
	testManifest = `{
  "name": "demo-field",
  "dependencies": {
    "react": "18.2.0",
    "react-dom": "18.2.0"
  }
}
`
	testConfig = "name: demo-field\nversion: 1.0.0\ntarget: web\n"

	inputSource = `export default function Input(props) {
  return <input value={props.value} onChange={props.onChange} />;
}
`
	labelSource = `export default function Label({ text }) {
  return <label>{text}</label>;
}
`
)

// writeProject lays out a minimal web form-field project and returns its
// root. files maps project-relative paths to contents and overrides or
// extends the defaults; an empty value removes the default file.
func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()

	all := map[string]string{
		"package.json":      testManifest,
		"c3.config.yaml":    testConfig,
		"src/web/Input.jsx": inputSource,
		"src/web/Label.jsx": labelSource,
	}

	for name, content := range files {
		if content == "" {
			delete(all, name)
			continue
		}

		all[name] = content
	}

	for name, content := range all {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}

	return root
}

// ---------------------------------------------------------------------------
// completion
// ---------------------------------------------------------------------------

func TestCompletion_Shells(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			stdout, _, err := executeCommand("completion", shell)
			require.NoError(t, err)
			assert.Contains(t, stdout, "c3-scripts")
		})
	}
}

func TestCompletion_InvalidShell(t *testing.T) {
	_, _, err := executeCommand("completion", "tcsh")
	require.Error(t, err)
}

func TestCompletion_NoArgs(t *testing.T) {
	_, _, err := executeCommand("completion")
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// verify
// ---------------------------------------------------------------------------

func TestVerify_Passes(t *testing.T) {
	root := writeProject(t, nil)

	stdout, stderr, err := executeCommand("-C", root, "verify")
	require.NoError(t, err)

	assert.Contains(t, stdout, "All checks passed")
	assert.Contains(t, stderr, "mandatory module web/Input found")
	assert.Contains(t, stderr, "mandatory module web/Label found")
}

func TestVerify_MissingMandatoryModule(t *testing.T) {
	root := writeProject(t, map[string]string{"src/web/Label.jsx": ""})

	stdout, _, err := executeCommand("-C", root, "verify")
	requireExitCode(t, err, ExitVerification)

	assert.Contains(t, stdout, "C3E002")
	assert.Contains(t, stdout, "web/Label")
}

func TestVerify_UnsupportedReact(t *testing.T) {
	root := writeProject(t, map[string]string{
		"package.json": `{"dependencies": {"react": "^17.0.0", "react-dom": "18.2.0"}}`,
	})

	_, _, err := executeCommand("-C", root, "verify")
	requireExitCode(t, err, ExitVerification)

	var mismatch *verify.ReactVersionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "^17.0.0", mismatch.Supplied)
}

func TestVerify_MissingDefaultExport(t *testing.T) {
	root := writeProject(t, map[string]string{
		"src/web/Label.jsx": "export function Label() { return null; }\n",
	})

	stdout, _, err := executeCommand("-C", root, "verify")
	requireExitCode(t, err, ExitVerification)
	assert.Contains(t, stdout, "C3E007")
}

func TestVerify_MissingProjectConfig(t *testing.T) {
	root := writeProject(t, map[string]string{"c3.config.yaml": ""})

	_, _, err := executeCommand("-C", root, "verify")
	requireExitCode(t, err, ExitVerification)
}

func TestVerify_JSONOutput(t *testing.T) {
	root := writeProject(t, map[string]string{"src/web/Label.jsx": ""})

	stdout, _, err := executeCommand("-C", root, "verify", "-o", "json")
	requireExitCode(t, err, ExitVerification)

	var report verify.Report
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))

	assert.False(t, report.Passed)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, "C3E002", report.Findings[0].Code)
	assert.Equal(t, "Label", report.Findings[0].Fields["component"])
}

func TestVerify_ReportFile(t *testing.T) {
	root := writeProject(t, nil)
	reportPath := filepath.Join(t.TempDir(), "reports", "verify.yaml")

	stdout, stderr, err := executeCommand("-C", root, "verify", "-o", "yaml", "--report-file", reportPath)
	require.NoError(t, err)

	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "report written to "+reportPath)

	data, err := os.ReadFile(reportPath) //nolint:gosec // test
	require.NoError(t, err)
	assert.Contains(t, string(data), "passed: true")
}

func TestVerify_InvalidOutputFormat(t *testing.T) {
	root := writeProject(t, nil)

	_, _, err := executeCommand("-C", root, "verify", "-o", "xml")
	requireExitCode(t, err, ExitUsage)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestVerify_NoArgs(t *testing.T) {
	_, _, err := executeCommand("verify", "extra")
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// build
// ---------------------------------------------------------------------------

func TestBuild_Production(t *testing.T) {
	root := writeProject(t, nil)

	stdout, _, err := executeCommand("-C", root, "build")
	require.NoError(t, err)

	assert.Contains(t, stdout, "built 2 components into")
	assert.FileExists(t, filepath.Join(root, "dist", "web", "Input.js"))
	assert.FileExists(t, filepath.Join(root, "dist", "web", "Label.js"))
}

func TestBuild_DevelopmentDefaultsToDevDist(t *testing.T) {
	root := writeProject(t, nil)

	_, _, err := executeCommand("-C", root, "build", "--mode", "development")
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(root, "dev-dist", "web", "Input.js"))
	assert.NoDirExists(t, filepath.Join(root, "dist"))
}

func TestBuild_CustomOut(t *testing.T) {
	root := writeProject(t, nil)
	out := t.TempDir()

	_, _, err := executeCommand("-C", root, "build", "--out", out)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(out, "web", "Label.js"))
}

func TestBuild_InvalidMode(t *testing.T) {
	root := writeProject(t, nil)

	_, _, err := executeCommand("-C", root, "build", "--mode", "staging")
	requireExitCode(t, err, ExitUsage)
	assert.Contains(t, err.Error(), "invalid build mode")
}

func TestBuild_VerificationFailureWritesNothing(t *testing.T) {
	root := writeProject(t, map[string]string{"src/web/Input.jsx": ""})

	_, _, err := executeCommand("-C", root, "build")
	requireExitCode(t, err, ExitVerification)
	assert.NoDirExists(t, filepath.Join(root, "dist"))
}

func TestBuild_SyntaxError(t *testing.T) {
	root := writeProject(t, map[string]string{
		"src/web/Label.jsx": "export default function Label( {\n",
	})

	_, _, err := executeCommand("-C", root, "build")
	requireExitCode(t, err, ExitVerification)

	var unparseable *verify.ModuleUnparseableError
	require.ErrorAs(t, err, &unparseable)
}

func TestResolveOutDir(t *testing.T) {
	root := filepath.FromSlash("/srv/field")

	assert.Equal(t, filepath.Join(root, "dist"), resolveOutDir(root, "", "production"))
	assert.Equal(t, filepath.Join(root, "dev-dist"), resolveOutDir(root, "", "development"))
	assert.Equal(t, filepath.Join(root, "out"), resolveOutDir(root, "out", "production"))

	abs := filepath.Join(t.TempDir(), "bundle")
	assert.Equal(t, abs, resolveOutDir(root, abs, "development"))
}

// ---------------------------------------------------------------------------
// dev
// ---------------------------------------------------------------------------

func TestDev_InvalidPort(t *testing.T) {
	root := writeProject(t, nil)

	_, _, err := executeCommand("-C", root, "dev", "--port", "70000")
	requireExitCode(t, err, ExitUsage)
	assert.Contains(t, err.Error(), "invalid port")
}

func TestDev_VerificationFailure(t *testing.T) {
	root := writeProject(t, map[string]string{"src/web/Label.jsx": ""})

	_, _, err := executeCommand("-C", root, "dev", "--port", "0")
	requireExitCode(t, err, ExitVerification)
}

func TestDev_Help(t *testing.T) {
	stdout, _, err := executeCommand("dev", "--help")
	require.NoError(t, err)

	for _, flag := range []string{"--port", "--out", "--debounce", "--metrics"} {
		assert.Contains(t, stdout, flag)
	}
}
