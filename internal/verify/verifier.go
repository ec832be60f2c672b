// Package verify implements the checks a form-field project must pass before
// and during a build: runtime versions, config schema, mandatory components
// and the default export of every component module.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/snowball-c3/c3-scripts/internal/inventory"
	"github.com/snowball-c3/c3-scripts/internal/jsparse"
	"github.com/snowball-c3/c3-scripts/internal/logging"
	"github.com/snowball-c3/c3-scripts/internal/project"
	"github.com/snowball-c3/c3-scripts/internal/schema"
)

// Manifest gives access to the host project's declared dependencies and
// configuration object.
type Manifest interface {
	DependencyVersions() (map[string]string, error)
	Config() (project.Config, error)
}

// SchemaValidator validates a JSON-like value and lists every violation.
type SchemaValidator interface {
	Validate(value any) ([]schema.Violation, error)
}

// Parser parses a component module.
type Parser interface {
	Parse(ctx context.Context, path string, src []byte) (*jsparse.Module, error)
}

// Inventory lists the component modules of the project.
type Inventory interface {
	List() (inventory.Map, error)
}

// Options configures a Verifier.
type Options struct {
	// Root is the project root that inventory module paths are relative to.
	Root string

	Manifest  Manifest
	Schema    SchemaValidator
	Parser    Parser
	Inventory Inventory

	// ReadFile reads a component module. Defaults to os.ReadFile.
	ReadFile func(path string) ([]byte, error)

	// Announce is called for every mandatory component found present.
	Announce func(platform, component string)

	Logger *slog.Logger
}

// Verifier runs the check groups against one project.
type Verifier struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Verifier. Manifest, Schema, Parser and Inventory are required.
func New(opts Options) (*Verifier, error) {
	switch {
	case opts.Manifest == nil:
		return nil, errors.New("verify: manifest is required")
	case opts.Schema == nil:
		return nil, errors.New("verify: schema validator is required")
	case opts.Parser == nil:
		return nil, errors.New("verify: parser is required")
	case opts.Inventory == nil:
		return nil, errors.New("verify: inventory is required")
	}

	if opts.ReadFile == nil {
		opts.ReadFile = os.ReadFile
	}

	return &Verifier{opts: opts, logger: logging.OrDefault(opts.Logger)}, nil
}

// OneTime runs the checks whose inputs are stable for the lifetime of a build
// process: versions, config schema and mandatory components, in that order.
// The first failing check ends the call. A schema failure carries one
// *SchemaInvalidError per violation, joined with errors.Join.
func (v *Verifier) OneTime(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	deps, err := v.opts.Manifest.DependencyVersions()
	if err != nil {
		return err
	}

	if err := CheckVersions(deps); err != nil {
		return err
	}

	v.logger.Debug("runtime versions match",
		slog.String("react", SupportedReactVersion),
		slog.String("react-dom", SupportedReactDOMVersion))

	cfg, err := v.opts.Manifest.Config()
	if err != nil {
		return err
	}

	if err := v.checkSchema(cfg); err != nil {
		return err
	}

	inv, err := v.opts.Inventory.List()
	if err != nil {
		return fmt.Errorf("listing components: %w", err)
	}

	return CheckMandatory(MandatoryModules(cfg.Target()), inv, func(platform, component string) {
		logging.ForComponent(v.logger, platform, component).Info("mandatory module present")

		if v.opts.Announce != nil {
			v.opts.Announce(platform, component)
		}
	})
}

func (v *Verifier) checkSchema(cfg project.Config) error {
	violations, err := v.opts.Schema.Validate(map[string]any(cfg))
	if err != nil {
		return fmt.Errorf("validating project config: %w", err)
	}

	if len(violations) == 0 {
		return nil
	}

	errs := make([]error, 0, len(violations))
	for _, vi := range violations {
		errs = append(errs, &SchemaInvalidError{Location: vi.Location, Violation: vi.Message})
	}

	return errorsJoin(errs)
}

// Runtime takes a fresh inventory snapshot and checks the default export of
// every component module in it.
func (v *Verifier) Runtime(ctx context.Context) error {
	inv, err := v.opts.Inventory.List()
	if err != nil {
		return fmt.Errorf("listing components: %w", err)
	}

	return v.CheckDefaultExports(ctx, inv)
}

// CheckDefaultExports reads and parses every module of inv, in platform then
// component order, and requires exactly one top-level default export in each.
func (v *Verifier) CheckDefaultExports(ctx context.Context, inv inventory.Map) error {
	for _, platform := range inv.PlatformNames() {
		for _, component := range inv.ComponentNames(platform) {
			if err := ctx.Err(); err != nil {
				return err
			}

			if err := v.checkModule(ctx, platform, component, inv[platform][component]); err != nil {
				return err
			}
		}
	}

	return nil
}

func (v *Verifier) checkModule(ctx context.Context, platform, component, modulePath string) error {
	src, err := v.opts.ReadFile(filepath.Join(v.opts.Root, filepath.FromSlash(modulePath)))
	if err != nil {
		return &ModuleFileMissingError{Component: component, ModulePath: modulePath, Err: err}
	}

	mod, err := v.opts.Parser.Parse(ctx, modulePath, src)
	if err != nil {
		return &ModuleUnparseableError{Component: component, ModulePath: modulePath, Err: err}
	}

	switch n := len(mod.DefaultExports); {
	case n == 0:
		return &DefaultExportMissingError{Component: component, ModulePath: modulePath}
	case n > 1:
		second := mod.DefaultExports[1]

		return &ModuleUnparseableError{
			Component:  component,
			ModulePath: modulePath,
			Err: &jsparse.SyntaxError{
				Path:     modulePath,
				Position: second,
				Msg:      fmt.Sprintf("duplicate default export (%d found)", n),
			},
		}
	}

	logging.ForComponent(v.logger, platform, component).Debug("default export found",
		slog.String("module", modulePath))

	return nil
}

// PreBuild resolves the project config, failing before any bundling when it
// cannot be located or parsed.
func (v *Verifier) PreBuild(ctx context.Context) (project.Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg, err := v.opts.Manifest.Config()
	if err != nil {
		return nil, fmt.Errorf("resolving project config: %w", err)
	}

	return cfg, nil
}
