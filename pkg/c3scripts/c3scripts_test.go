package c3scripts_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowball-c3/c3-scripts/pkg/c3scripts"
)

func writeField(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()

	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}

	return root
}

func validField(t *testing.T) string {
	t.Helper()

	return writeField(t, map[string]string{
		"package.json":      `{"dependencies": {"react": "18.2.0", "react-dom": "18.2.0"}}`,
		"c3.config.yaml":    "name: demo-field\nversion: 0.1.0\ntarget: web\n",
		"src/web/Input.jsx": "export default function Input() { return <input />; }\n",
		"src/web/Label.jsx": "export default function Label() { return <label />; }\n",
	})
}

func TestOpen_EmptyDir(t *testing.T) {
	_, err := c3scripts.Open("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be empty")
}

func TestOpen_Nonexistent(t *testing.T) {
	_, err := c3scripts.Open("/nonexistent/path/to/field")
	require.Error(t, err)
}

func TestVerify_Passes(t *testing.T) {
	var found []string

	p, err := c3scripts.Open(validField(t), c3scripts.WithAnnounce(func(platform, component string) {
		found = append(found, platform+"/"+component)
	}))
	require.NoError(t, err)

	require.NoError(t, p.Verify(context.Background()))
	assert.Equal(t, []string{"web/Input", "web/Label"}, found)
	assert.True(t, p.Report(context.Background()).Passed)
}

func TestVerify_Fails(t *testing.T) {
	root := writeField(t, map[string]string{
		"package.json":      `{"dependencies": {"react": "18.2.0", "react-dom": "18.2.0"}}`,
		"c3.config.yaml":    "name: demo-field\nversion: 0.1.0\ntarget: web\n",
		"src/web/Input.jsx": "export default function Input() { return <input />; }\n",
	})

	p, err := c3scripts.Open(root)
	require.NoError(t, err)

	err = p.Verify(context.Background())
	require.Error(t, err)
	assert.True(t, c3scripts.IsVerificationError(err))

	report := p.Report(context.Background())
	assert.False(t, report.Passed)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, "C3E002", report.Findings[0].Code)
}

func TestBuild_Production(t *testing.T) {
	p, err := c3scripts.Open(validField(t))
	require.NoError(t, err)

	result, err := p.Build(context.Background(), c3scripts.ModeProduction, "")
	require.NoError(t, err)

	assert.Equal(t, "demo-field", result.Name)
	assert.Equal(t, filepath.Join(p.Root(), "dist"), result.OutDir)
	assert.Contains(t, result.Outputs, "web/Input.js")
	assert.FileExists(t, filepath.Join(result.OutDir, "web", "Label.js"))
}

func TestBuild_DevelopmentRelativeOut(t *testing.T) {
	p, err := c3scripts.Open(validField(t))
	require.NoError(t, err)

	result, err := p.Build(context.Background(), c3scripts.ModeDevelopment, "out")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(p.Root(), "out"), result.OutDir)
	assert.Equal(t, c3scripts.ModeDevelopment, result.Mode)
}

func TestBuild_InvalidMode(t *testing.T) {
	p, err := c3scripts.Open(validField(t))
	require.NoError(t, err)

	_, err = p.Build(context.Background(), c3scripts.Mode("staging"), "")
	require.Error(t, err)
	assert.False(t, c3scripts.IsVerificationError(err))
}

func TestIsVerificationError_Plain(t *testing.T) {
	assert.False(t, c3scripts.IsVerificationError(nil))
	assert.False(t, c3scripts.IsVerificationError(assert.AnError))
}
