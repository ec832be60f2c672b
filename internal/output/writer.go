// Package output delivers rendered command output (verification reports)
// to stdout or to a file.
package output

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/snowball-c3/c3-scripts/internal/logging"
)

// StdoutPath selects the command's standard output as destination.
const StdoutPath = "-"

// Writer is a destination for one rendered document.
type Writer interface {
	// Write delivers the complete document.
	Write(data []byte) error

	// Name describes the destination for log and status messages.
	Name() string
}

// For returns a StreamWriter on stdout when path is empty or StdoutPath,
// and a FileWriter otherwise.
func For(path string, stdout io.Writer, logger *slog.Logger) Writer {
	if path == "" || path == StdoutPath {
		return NewStreamWriter(stdout)
	}

	return NewFileWriter(path, WithLogger(logger))
}

// StreamWriter writes to an io.Writer such as a command's stdout.
type StreamWriter struct {
	out io.Writer
}

// NewStreamWriter creates a writer that sends output to w.
// If w is nil, os.Stdout is used.
func NewStreamWriter(w io.Writer) *StreamWriter {
	if w == nil {
		w = os.Stdout
	}

	return &StreamWriter{out: w}
}

// Write sends data to the stream.
func (sw *StreamWriter) Write(data []byte) error {
	if _, err := sw.out.Write(data); err != nil {
		return fmt.Errorf("writing to stdout: %w", err)
	}

	return nil
}

// Name implements Writer.
func (*StreamWriter) Name() string { return "stdout" }

// FileWriter replaces a file atomically, creating parent directories as
// needed. Readers never observe a partially written report.
type FileWriter struct {
	path   string
	perm   os.FileMode
	logger *slog.Logger
}

// FileWriterOption configures a FileWriter.
type FileWriterOption func(*FileWriter)

// WithPermissions overrides the default file permissions (0644).
func WithPermissions(perm os.FileMode) FileWriterOption {
	return func(fw *FileWriter) {
		fw.perm = perm
	}
}

// WithLogger sets a logger for the FileWriter.
func WithLogger(logger *slog.Logger) FileWriterOption {
	return func(fw *FileWriter) {
		fw.logger = logger
	}
}

// NewFileWriter creates a writer for path.
func NewFileWriter(path string, opts ...FileWriterOption) *FileWriter {
	fw := &FileWriter{path: path, perm: 0o644}

	for _, opt := range opts {
		opt(fw)
	}

	fw.logger = logging.OrDefault(fw.logger)

	return fw
}

// Write stages data in a temporary file next to the target and renames
// it into place.
func (fw *FileWriter) Write(data []byte) error {
	dir := filepath.Dir(fw.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(fw.path)+".*")
	if err != nil {
		return fmt.Errorf("writing file %s: %w", fw.path, err)
	}

	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing file %s: %w", fw.path, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing file %s: %w", fw.path, err)
	}

	if err := os.Chmod(tmpName, fw.perm); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", fw.path, err)
	}

	if err := os.Rename(tmpName, fw.path); err != nil {
		return fmt.Errorf("replacing %s: %w", fw.path, err)
	}

	fw.logger.Debug("report written", slog.String("path", fw.path), slog.Int("bytes", len(data)))

	return nil
}

// Name implements Writer.
func (fw *FileWriter) Name() string { return fw.path }
