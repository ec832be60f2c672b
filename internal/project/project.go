// Package project gives access to a host form-field project on disk: its
// package.json manifest, its c3.config file and the directories the build
// reads from and writes to.
package project

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sigsyaml "sigs.k8s.io/yaml"
)

// Well-known project layout.
const (
	ManifestFile = "package.json"
	SourceDir    = "src"
	DevDistDir   = "dev-dist"
	DistDir      = "dist"
)

// ConfigFileNames lists the accepted project config file names in lookup order.
var ConfigFileNames = []string{"c3.config.yaml", "c3.config.yml", "c3.config.json"}

// ErrConfigNotFound is returned when none of ConfigFileNames exists.
var ErrConfigNotFound = errors.New("project config not found")

// Project is a form-field project rooted at Root.
type Project struct {
	Root string
}

// Open resolves dir to an absolute path and checks that it is a directory.
func Open(dir string) (*Project, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving project directory %q: %w", dir, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("opening project directory: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("project path %q is not a directory", abs)
	}

	return &Project{Root: abs}, nil
}

// ManifestPath returns the path of package.json.
func (p *Project) ManifestPath() string { return filepath.Join(p.Root, ManifestFile) }

// SourcePath returns the component source root.
func (p *Project) SourcePath() string { return filepath.Join(p.Root, SourceDir) }

// DevDistPath returns the output directory of development builds.
func (p *Project) DevDistPath() string { return filepath.Join(p.Root, DevDistDir) }

// DistPath returns the output directory of production builds.
func (p *Project) DistPath() string { return filepath.Join(p.Root, DistDir) }

// ConfigPath returns the first existing project config file.
func (p *Project) ConfigPath() (string, error) {
	for _, name := range ConfigFileNames {
		candidate := filepath.Join(p.Root, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w in %s (looked for %s)", ErrConfigNotFound, p.Root, strings.Join(ConfigFileNames, ", "))
}

// WatchedConfigPaths returns the files whose change invalidates a running
// build: the project config file and the manifest.
func (p *Project) WatchedConfigPaths() []string {
	cfgPath, err := p.ConfigPath()
	if err != nil {
		cfgPath = filepath.Join(p.Root, ConfigFileNames[0])
	}

	return []string{cfgPath, p.ManifestPath()}
}

// manifest is the subset of package.json read by c3-scripts.
type manifest struct {
	Name         string            `json:"name"`
	Dependencies map[string]string `json:"dependencies"`
}

// DependencyVersions returns the "dependencies" section of package.json.
// A manifest without dependencies yields an empty map.
func (p *Project) DependencyVersions() (map[string]string, error) {
	data, err := os.ReadFile(p.ManifestPath())
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", p.ManifestPath(), err)
	}

	if m.Dependencies == nil {
		return map[string]string{}, nil
	}

	return m.Dependencies, nil
}

// Config reads and decodes the project config file. YAML and JSON are both
// accepted; the result is a JSON-like value suitable for schema validation.
func (p *Project) Config() (Config, error) {
	path, err := p.ConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading project config: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig decodes YAML or JSON bytes into a Config. Numbers are kept as
// json.Number so that the schema validator sees the literal value.
func ParseConfig(data []byte) (Config, error) {
	js, err := sigsyaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parsing project config: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(js))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding project config: %w", err)
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("project config must be a mapping, got %T", v)
	}

	return Config(obj), nil
}

// Config is the decoded project configuration.
type Config map[string]any

// Name returns the declared field name, or "".
func (c Config) Name() string {
	s, _ := c["name"].(string)
	return s
}

// Target returns the declared project target, or "".
func (c Config) Target() string {
	s, _ := c["target"].(string)
	return s
}
