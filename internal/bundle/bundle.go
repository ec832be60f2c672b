// Package bundle compiles the component modules of a form-field project into
// browser bundles.
package bundle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/snowball-c3/c3-scripts/internal/inventory"
)

// Mode selects the build flavour.
type Mode string

// Build modes.
const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// ParseMode converts a mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeDevelopment, "dev":
		return ModeDevelopment, nil
	case ModeProduction, "prod":
		return ModeProduction, nil
	default:
		return "", fmt.Errorf("invalid build mode %q: must be development or production", s)
	}
}

// Entry is one component module to bundle.
type Entry struct {
	// Name is the output name without extension, e.g. "web/Input".
	Name string
	// Path is the module path relative to the request root.
	Path string
}

// Request describes one build.
type Request struct {
	Mode    Mode
	Root    string
	OutDir  string
	Entries []Entry
}

// Stats describes a successful build.
type Stats struct {
	Mode     Mode          `json:"mode"`
	OutDir   string        `json:"outDir"`
	Entries  int           `json:"entries"`
	Outputs  []string      `json:"outputs"`
	Warnings []string      `json:"warnings,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Bundler compiles a set of entry points.
type Bundler interface {
	Bundle(ctx context.Context, req Request) (*Stats, error)
}

// Diagnostic is one compiler message.
type Diagnostic struct {
	File   string
	Line   int
	Column int
	Text   string
}

func (d Diagnostic) String() string {
	if d.File == "" {
		return d.Text
	}

	return fmt.Sprintf("%s:%d:%d: %s", d.File, d.Line, d.Column, d.Text)
}

// BuildError is returned when the compiler reports errors.
type BuildError struct {
	Diagnostics []Diagnostic
}

func (e *BuildError) Error() string {
	switch len(e.Diagnostics) {
	case 0:
		return "build failed"
	case 1:
		return "build failed: " + e.Diagnostics[0].String()
	}

	var b strings.Builder

	fmt.Fprintf(&b, "build failed with %d errors:", len(e.Diagnostics))

	for _, d := range e.Diagnostics {
		b.WriteString("\n  ")
		b.WriteString(d.String())
	}

	return b.String()
}

// EntriesFrom turns an inventory snapshot into entry points named
// "<platform>/<Component>", sorted by name.
func EntriesFrom(inv inventory.Map) []Entry {
	entries := make([]Entry, 0, inv.Len())

	for _, platform := range inv.PlatformNames() {
		for _, component := range inv.ComponentNames(platform) {
			entries = append(entries, Entry{
				Name: platform + "/" + component,
				Path: inv[platform][component],
			})
		}
	}

	return entries
}
