// Package schema validates project configuration values against the
// embedded form-field configuration schema.
package schema

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed c3.schema.json
var configSchema []byte

const configSchemaURL = "c3.schema.json"

// Violation is a single schema rule broken by the validated value.
type Violation struct {
	// Location is the JSON pointer of the offending value ("/" for the root).
	Location string
	// Message describes the broken rule.
	Message string
}

// String renders the violation as "at '<location>': <message>".
func (v Violation) String() string {
	return fmt.Sprintf("at '%s': %s", v.Location, v.Message)
}

// Validator validates values against a compiled schema.
type Validator struct {
	schema  *jsonschema.Schema
	printer *message.Printer
}

// NewConfigValidator compiles the embedded configuration schema.
func NewConfigValidator() (*Validator, error) {
	return New(configSchemaURL, configSchema)
}

// New compiles the JSON schema document raw, registered under url.
func New(url string, raw []byte) (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("adding schema resource: %w", err)
	}

	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}

	return &Validator{schema: sch, printer: message.NewPrinter(language.English)}, nil
}

// Validate returns one Violation per broken rule, sorted by location. A nil
// slice means the value is valid. The returned error is reserved for
// failures of the validator itself.
func (v *Validator) Validate(value any) ([]Violation, error) {
	err := v.schema.Validate(value)
	if err == nil {
		return nil, nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return nil, fmt.Errorf("validating value: %w", err)
	}

	var out []Violation
	v.collect(ve, &out)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Location < out[j].Location
	})

	return out, nil
}

// collect flattens the cause tree; every leaf is one broken rule.
func (v *Validator) collect(ve *jsonschema.ValidationError, out *[]Violation) {
	if len(ve.Causes) == 0 {
		*out = append(*out, Violation{
			Location: "/" + strings.Join(ve.InstanceLocation, "/"),
			Message:  ve.ErrorKind.LocalizedString(v.printer),
		})

		return
	}

	for _, cause := range ve.Causes {
		v.collect(cause, out)
	}
}
