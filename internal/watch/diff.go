package watch

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// diffContext is the number of unchanged lines shown around each change.
const diffContext = 3

// Diff returns a unified diff of a file's contents before and after a change,
// or "" when they are equal.
func Diff(path, before, after string) (string, error) {
	name := filepath.Base(path)

	unified, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(before),
		B:        splitLines(after),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  diffContext,
	})
	if err != nil {
		return "", fmt.Errorf("computing diff of %s: %w", name, err)
	}

	return unified, nil
}

// splitLines splits s into lines that keep their trailing newline, as
// difflib expects. A missing final newline is added.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}

	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}

	lines := strings.SplitAfter(s, "\n")

	return lines[:len(lines)-1]
}
