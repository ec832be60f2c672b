package output

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowball-c3/c3-scripts/internal/logging"
)

func TestFor(t *testing.T) {
	var buf bytes.Buffer

	assert.IsType(t, &StreamWriter{}, For("", &buf, nil))
	assert.IsType(t, &StreamWriter{}, For(StdoutPath, &buf, nil))

	w := For("report.json", &buf, logging.Discard())
	require.IsType(t, &FileWriter{}, w)
	assert.Equal(t, "report.json", w.Name())
}

func TestStreamWriter_Write(t *testing.T) {
	var buf bytes.Buffer
	w := NewStreamWriter(&buf)

	data := []byte("All checks passed for /srv/field\n")
	require.NoError(t, w.Write(data))
	assert.Equal(t, string(data), buf.String())
	assert.Equal(t, "stdout", w.Name())
}

func TestStreamWriter_NilDefault(t *testing.T) {
	assert.NotNil(t, NewStreamWriter(nil))
}

func TestFileWriter_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "verify.json")

	w := NewFileWriter(path)
	data := []byte(`{"passed": true}`)
	require.NoError(t, w.Write(data))

	got, err := os.ReadFile(path) //nolint:gosec // test
	require.NoError(t, err)
	assert.Equal(t, string(data), string(got))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestFileWriter_CustomPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")

	w := NewFileWriter(path, WithPermissions(0o600))
	require.NoError(t, w.Write([]byte("passed: true\n")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileWriter_OverwriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "existing.json")

	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644)) //nolint:gosec // test

	w := NewFileWriter(path)
	require.NoError(t, w.Write([]byte("new")))

	got, err := os.ReadFile(path) //nolint:gosec // test
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileWriter_InvalidPath(t *testing.T) {
	w := NewFileWriter("/dev/null/impossible/path.json")
	assert.Error(t, w.Write([]byte("data")))
}
