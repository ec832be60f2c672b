package verify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Kind is the stable identifier of a verification failure.
type Kind string

// Verification failure kinds.
const (
	KindSchemaInvalid           Kind = "schema-invalid"
	KindMandatoryModuleMissing  Kind = "mandatory-module-missing"
	KindReactVersionMismatch    Kind = "react-version-mismatch"
	KindReactDOMVersionMismatch Kind = "react-dom-version-mismatch"
	KindModuleFileMissing       Kind = "module-file-missing"
	KindModuleUnparseable       Kind = "module-unparseable"
	KindDefaultExportMissing    Kind = "default-export-missing"
)

// Category groups kinds by how a caller should react to them.
type Category string

const (
	// CategoryConfig failures come from the manifest or project config and
	// are stable for the lifetime of a build process.
	CategoryConfig Category = "config"
	// CategorySource failures come from component files and may disappear
	// after the next edit.
	CategorySource Category = "source"
)

// Error is implemented by exactly the seven failure types of this package.
type Error interface {
	error
	Kind() Kind
	// Code is the documented error code, e.g. "C3E003".
	Code() string
	Category() Category
	// Hint suggests how to fix the failure.
	Hint() string
	// Fields returns the contextual values of the failure by name.
	Fields() map[string]string

	verificationError()
}

var (
	_ Error = (*SchemaInvalidError)(nil)
	_ Error = (*MandatoryModuleMissingError)(nil)
	_ Error = (*ReactVersionMismatchError)(nil)
	_ Error = (*ReactDOMVersionMismatchError)(nil)
	_ Error = (*ModuleFileMissingError)(nil)
	_ Error = (*ModuleUnparseableError)(nil)
	_ Error = (*DefaultExportMissingError)(nil)
)

// ---------------------------------------------------------------------------
// Config errors
// ---------------------------------------------------------------------------

// SchemaInvalidError is one violated rule of the project config schema.
type SchemaInvalidError struct {
	Location  string
	Violation string
}

func (e *SchemaInvalidError) Error() string {
	return fmt.Sprintf("project config is invalid at '%s': %s", e.Location, e.Violation)
}

func (*SchemaInvalidError) Kind() Kind         { return KindSchemaInvalid }
func (*SchemaInvalidError) Code() string       { return "C3E001" }
func (*SchemaInvalidError) Category() Category { return CategoryConfig }
func (*SchemaInvalidError) verificationError() {}

func (e *SchemaInvalidError) Hint() string {
	return fmt.Sprintf("Fix the value at '%s' in the c3.config file.", e.Location)
}

func (e *SchemaInvalidError) Fields() map[string]string {
	return map[string]string{"location": e.Location, "violation": e.Violation}
}

// MandatoryModuleMissingError names a required component absent from the inventory.
type MandatoryModuleMissingError struct {
	Platform  string
	Component string
}

func (e *MandatoryModuleMissingError) Error() string {
	return fmt.Sprintf("mandatory module '%s/%s' is not present", e.Platform, e.Component)
}

func (*MandatoryModuleMissingError) Kind() Kind         { return KindMandatoryModuleMissing }
func (*MandatoryModuleMissingError) Code() string       { return "C3E002" }
func (*MandatoryModuleMissingError) Category() Category { return CategoryConfig }
func (*MandatoryModuleMissingError) verificationError() {}

func (e *MandatoryModuleMissingError) Hint() string {
	return fmt.Sprintf("Create src/%s/%s.jsx (or src/%s/%s/index.jsx) with a default-exported component.",
		e.Platform, e.Component, e.Platform, e.Component)
}

func (e *MandatoryModuleMissingError) Fields() map[string]string {
	return map[string]string{"platform": e.Platform, "component": e.Component}
}

// ReactVersionMismatchError reports a declared react version other than the supported one.
type ReactVersionMismatchError struct {
	Supplied  string
	Supported string
}

func (e *ReactVersionMismatchError) Error() string {
	return fmt.Sprintf("react version %s is not supported, expected exactly %q", describeSupplied(e.Supplied), e.Supported)
}

func (*ReactVersionMismatchError) Kind() Kind         { return KindReactVersionMismatch }
func (*ReactVersionMismatchError) Code() string       { return "C3E003" }
func (*ReactVersionMismatchError) Category() Category { return CategoryConfig }
func (*ReactVersionMismatchError) verificationError() {}

func (e *ReactVersionMismatchError) Hint() string {
	return versionHint("react", e.Supplied, e.Supported)
}

func (e *ReactVersionMismatchError) Fields() map[string]string {
	return map[string]string{"supplied": e.Supplied, "supported": e.Supported}
}

// ReactDOMVersionMismatchError reports a declared react-dom version other than the supported one.
type ReactDOMVersionMismatchError struct {
	Supplied  string
	Supported string
}

func (e *ReactDOMVersionMismatchError) Error() string {
	return fmt.Sprintf("react-dom version %s is not supported, expected exactly %q", describeSupplied(e.Supplied), e.Supported)
}

func (*ReactDOMVersionMismatchError) Kind() Kind         { return KindReactDOMVersionMismatch }
func (*ReactDOMVersionMismatchError) Code() string       { return "C3E004" }
func (*ReactDOMVersionMismatchError) Category() Category { return CategoryConfig }
func (*ReactDOMVersionMismatchError) verificationError() {}

func (e *ReactDOMVersionMismatchError) Hint() string {
	return versionHint("react-dom", e.Supplied, e.Supported)
}

func (e *ReactDOMVersionMismatchError) Fields() map[string]string {
	return map[string]string{"supplied": e.Supplied, "supported": e.Supported}
}

// ---------------------------------------------------------------------------
// Source errors
// ---------------------------------------------------------------------------

// ModuleFileMissingError reports a component file that could not be read.
type ModuleFileMissingError struct {
	Component  string
	ModulePath string
	Err        error
}

func (e *ModuleFileMissingError) Error() string {
	return fmt.Sprintf("module '%s' of component %s is not present", e.ModulePath, e.Component)
}

func (e *ModuleFileMissingError) Unwrap() error { return e.Err }

func (*ModuleFileMissingError) Kind() Kind         { return KindModuleFileMissing }
func (*ModuleFileMissingError) Code() string       { return "C3E005" }
func (*ModuleFileMissingError) Category() Category { return CategorySource }
func (*ModuleFileMissingError) verificationError() {}

func (e *ModuleFileMissingError) Hint() string {
	return fmt.Sprintf("Restore %s or remove the component.", e.ModulePath)
}

func (e *ModuleFileMissingError) Fields() map[string]string {
	return map[string]string{"component": e.Component, "modulePath": e.ModulePath, "cause": errString(e.Err)}
}

// ModuleUnparseableError reports a component file with invalid syntax.
type ModuleUnparseableError struct {
	Component  string
	ModulePath string
	Err        error
}

func (e *ModuleUnparseableError) Error() string {
	return fmt.Sprintf("unable to parse module '%s' of component %s: %v", e.ModulePath, e.Component, e.Err)
}

func (e *ModuleUnparseableError) Unwrap() error { return e.Err }

func (*ModuleUnparseableError) Kind() Kind         { return KindModuleUnparseable }
func (*ModuleUnparseableError) Code() string       { return "C3E006" }
func (*ModuleUnparseableError) Category() Category { return CategorySource }
func (*ModuleUnparseableError) verificationError() {}

func (e *ModuleUnparseableError) Hint() string {
	return fmt.Sprintf("Fix the syntax error in %s and save again.", e.ModulePath)
}

func (e *ModuleUnparseableError) Fields() map[string]string {
	return map[string]string{"component": e.Component, "modulePath": e.ModulePath, "cause": errString(e.Err)}
}

// DefaultExportMissingError reports a component file without `export default`.
type DefaultExportMissingError struct {
	Component  string
	ModulePath string
}

func (e *DefaultExportMissingError) Error() string {
	return fmt.Sprintf("default export not found in module '%s' of component %s", e.ModulePath, e.Component)
}

func (*DefaultExportMissingError) Kind() Kind         { return KindDefaultExportMissing }
func (*DefaultExportMissingError) Code() string       { return "C3E007" }
func (*DefaultExportMissingError) Category() Category { return CategorySource }
func (*DefaultExportMissingError) verificationError() {}

func (e *DefaultExportMissingError) Hint() string {
	return fmt.Sprintf("Add `export default %s` to %s.", e.Component, e.ModulePath)
}

func (e *DefaultExportMissingError) Fields() map[string]string {
	return map[string]string{"component": e.Component, "modulePath": e.ModulePath}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// Errors extracts every verification error from err, descending through
// wrapped and joined errors. It returns nil when err carries none.
func Errors(err error) []Error {
	var out []Error

	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}

		if ve, ok := e.(Error); ok {
			out = append(out, ve)
			return
		}

		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, c := range u.Unwrap() {
				walk(c)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}

	walk(err)

	return out
}

// HasCategory reports whether err carries a verification error of category c.
func HasCategory(err error, c Category) bool {
	for _, ve := range Errors(err) {
		if ve.Category() == c {
			return true
		}
	}

	return false
}

// Format renders err for a terminal: one block per verification error with
// its code and hint, or the plain message for any other error.
func Format(err error) string {
	if err == nil {
		return ""
	}

	ves := Errors(err)
	if len(ves) == 0 {
		return err.Error()
	}

	var b strings.Builder

	for i, ve := range ves {
		if i > 0 {
			b.WriteByte('\n')
		}

		fmt.Fprintf(&b, "[%s] %s\n  hint: %s", ve.Code(), ve.Error(), ve.Hint())
	}

	return b.String()
}

func describeSupplied(v string) string {
	if v == "" {
		return "(not declared)"
	}

	return fmt.Sprintf("%q", v)
}

// versionHint explains how to reach the supported version from the supplied
// declaration. A semver range that admits the supported version only needs
// pinning.
func versionHint(pkg, supplied, supported string) string {
	if supplied == "" {
		return fmt.Sprintf(`Add "%s": "%s" to the dependencies in package.json.`, pkg, supported)
	}

	if c, err := semver.NewConstraint(supplied); err == nil {
		if v, verr := semver.NewVersion(supported); verr == nil && c.Check(v) {
			return fmt.Sprintf(`The range %q admits %s, but builds require the exact version: pin "%s": "%s".`,
				supplied, supported, pkg, supported)
		}
	}

	return fmt.Sprintf(`Set "%s" to exactly "%s" in package.json and reinstall.`, pkg, supported)
}

func errString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}

// errorsJoin joins errs, keeping a single error unwrapped.
func errorsJoin(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}

	return errors.Join(errs...)
}
