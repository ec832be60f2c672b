// Package inventory enumerates the component modules of a form-field
// project, per target platform.
package inventory

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// Platforms are the target environments a project may ship components for.
var Platforms = []string{"web", "mobile"}

// Extensions are the source file extensions recognised as component modules.
var Extensions = []string{".js", ".jsx", ".ts", ".tsx"}

var skipDirs = map[string]struct{}{
	"node_modules": {},
	"__tests__":    {},
	"__mocks__":    {},
}

var nonComponentMarkers = []string{".test.", ".spec.", ".stories."}

// Map is a snapshot of platform → component name → module path. Module paths
// are slash-separated and relative to the project root. Every platform in
// Platforms is present, possibly with an empty component map.
type Map map[string]map[string]string

// Has reports whether component is present for platform.
func (m Map) Has(platform, component string) bool {
	_, ok := m[platform][component]
	return ok
}

// PlatformNames returns the platforms in sorted order.
func (m Map) PlatformNames() []string {
	names := make([]string, 0, len(m))
	for p := range m {
		names = append(names, p)
	}

	sort.Strings(names)

	return names
}

// ComponentNames returns the components of platform in sorted order.
func (m Map) ComponentNames(platform string) []string {
	names := make([]string, 0, len(m[platform]))
	for c := range m[platform] {
		names = append(names, c)
	}

	sort.Strings(names)

	return names
}

// Len returns the total number of components across all platforms.
func (m Map) Len() int {
	n := 0
	for _, comps := range m {
		n += len(comps)
	}

	return n
}

// ComponentName decides whether rel, a slash-separated path relative to a
// platform directory, is a component module, and returns its name.
//
// Accepted shapes are "<Name>.<ext>" and "<Name>/index.<ext>" where Name
// starts with an upper-case ASCII letter and ext is one of Extensions.
// Test, spec and story files are never components.
func ComponentName(rel string) (string, bool) {
	rel = path.Clean(rel)
	base := path.Base(rel)
	ext := path.Ext(base)

	if !isExtension(ext) {
		return "", false
	}

	for _, marker := range nonComponentMarkers {
		if strings.Contains(base, marker) {
			return "", false
		}
	}

	var name string

	switch dir := path.Dir(rel); {
	case dir == ".":
		name = strings.TrimSuffix(base, ext)
	case !strings.Contains(dir, "/") && strings.TrimSuffix(base, ext) == "index":
		name = dir
	default:
		return "", false
	}

	if name == "" || name[0] < 'A' || name[0] > 'Z' {
		return "", false
	}

	return name, true
}

func isExtension(ext string) bool {
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}

	return false
}

// Scanner lists components below <Root>/<SourceDir>/<platform>/.
type Scanner struct {
	// Root is the project root; module paths are relative to it.
	Root string

	// SourceDir is the component source directory relative to Root.
	SourceDir string

	// Platforms overrides the package-level Platforms when non-empty.
	Platforms []string
}

// List scans the file tree and returns a fresh snapshot. A platform
// directory that does not exist yields an empty component map.
func (s *Scanner) List() (Map, error) {
	platforms := s.Platforms
	if len(platforms) == 0 {
		platforms = Platforms
	}

	gi := loadGitignore(s.Root)
	result := make(Map, len(platforms))

	for _, platform := range platforms {
		comps, err := s.scanPlatform(platform, gi)
		if err != nil {
			return nil, err
		}

		result[platform] = comps
	}

	return result, nil
}

func (s *Scanner) scanPlatform(platform string, gi *ignore.GitIgnore) (map[string]string, error) {
	comps := make(map[string]string)
	platformDir := filepath.Join(s.Root, s.SourceDir, platform)

	info, err := os.Stat(platformDir)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return comps, nil
	}

	if err != nil {
		return nil, fmt.Errorf("reading platform %q: %w", platform, err)
	}

	err = filepath.WalkDir(platformDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		name := d.Name()

		if d.IsDir() {
			if p == platformDir {
				return nil
			}

			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}

			return nil
		}

		if strings.HasPrefix(name, ".") || d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		relToRoot, relErr := filepath.Rel(s.Root, p)
		if relErr != nil {
			return nil
		}

		relToRoot = filepath.ToSlash(relToRoot)
		if gi != nil && gi.MatchesPath(relToRoot) {
			return nil
		}

		relToPlatform, relErr := filepath.Rel(platformDir, p)
		if relErr != nil {
			return nil
		}

		component, ok := ComponentName(filepath.ToSlash(relToPlatform))
		if !ok {
			return nil
		}

		// WalkDir visits in lexical order; the first declaration wins.
		if _, seen := comps[component]; !seen {
			comps[component] = relToRoot
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning platform %q: %w", platform, err)
	}

	return comps, nil
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}

	return gi
}
