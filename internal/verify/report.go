package verify

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Finding is the serialisable form of one verification error.
type Finding struct {
	Code     string            `json:"code" yaml:"code"`
	Kind     Kind              `json:"kind" yaml:"kind"`
	Category Category          `json:"category" yaml:"category"`
	Message  string            `json:"message" yaml:"message"`
	Hint     string            `json:"hint" yaml:"hint"`
	Fields   map[string]string `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Report summarises one verification run.
type Report struct {
	Project  string    `json:"project" yaml:"project"`
	Passed   bool      `json:"passed" yaml:"passed"`
	Findings []Finding `json:"findings" yaml:"findings"`
	// Error holds a failure that is not a verification error, e.g. an
	// unreadable manifest.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewReport builds a report from the error returned by the check groups.
func NewReport(projectRoot string, err error) *Report {
	r := &Report{Project: projectRoot, Passed: err == nil, Findings: []Finding{}}
	if err == nil {
		return r
	}

	ves := Errors(err)
	if len(ves) == 0 {
		r.Error = err.Error()
		return r
	}

	for _, ve := range ves {
		r.Findings = append(r.Findings, Finding{
			Code:     ve.Code(),
			Kind:     ve.Kind(),
			Category: ve.Category(),
			Message:  ve.Error(),
			Hint:     ve.Hint(),
			Fields:   ve.Fields(),
		})
	}

	return r
}

// Formatter writes a report to a writer.
type Formatter interface {
	Format(w io.Writer, r *Report) error
}

// NewFormatter returns a formatter for the given format name.
// Supported: "text" (default), "json", "yaml".
func NewFormatter(format string) (Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return &TextFormatter{}, nil
	case "json":
		return &JSONFormatter{}, nil
	case "yaml", "yml":
		return &YAMLFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q: use text, json, or yaml", format)
	}
}

// --- Text Formatter ---

// TextFormatter writes findings as a human-readable table.
type TextFormatter struct{}

// Format writes the report as a table followed by a summary line.
func (f *TextFormatter) Format(w io.Writer, r *Report) error {
	if r.Passed {
		_, err := fmt.Fprintf(w, "All checks passed for %s\n", r.Project)
		return err
	}

	if r.Error != "" {
		_, err := fmt.Fprintf(w, "Verification could not complete: %s\n", r.Error)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(tw, "CODE\tKIND\tMESSAGE")
	_, _ = fmt.Fprintln(tw, "----\t----\t-------")

	for _, finding := range r.Findings {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", finding.Code, finding.Kind, finding.Message)
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	_, _ = fmt.Fprintln(w)

	for _, finding := range r.Findings {
		_, _ = fmt.Fprintf(w, "%s: %s\n", finding.Code, finding.Hint)
	}

	_, _ = fmt.Fprintf(w, "\nFindings: %d total", len(r.Findings))

	if parts := categoryCounts(r.Findings); len(parts) > 0 {
		_, _ = fmt.Fprintf(w, " (%s)", strings.Join(parts, ", "))
	}

	_, _ = fmt.Fprintln(w)

	return nil
}

func categoryCounts(findings []Finding) []string {
	counts := map[Category]int{}
	for _, f := range findings {
		counts[f.Category]++
	}

	parts := make([]string, 0, len(counts))
	for c, n := range counts {
		parts = append(parts, fmt.Sprintf("%d %s", n, c))
	}

	sort.Strings(parts)

	return parts
}

// --- JSON Formatter ---

// JSONFormatter writes the report as indented JSON.
type JSONFormatter struct{}

// Format writes the report as JSON.
func (f *JSONFormatter) Format(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(r)
}

// --- YAML Formatter ---

// YAMLFormatter writes the report as YAML.
type YAMLFormatter struct{}

// Format writes the report as YAML.
func (f *YAMLFormatter) Format(w io.Writer, r *Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	return enc.Close()
}
