// Package version provides build-time metadata for the c3-scripts binary.
// Version, GitCommit, and BuildDate are injected at compile time via -ldflags;
// binaries built with plain `go install` fall back to the embedded module
// build info.
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/snowball-c3/c3-scripts/internal/verify"
)

// Build-time values injected via -ldflags.
var (
	version   = "dev"
	gitCommit = "none"
	buildDate = "unknown"
)

const (
	unknown       = "unknown"
	bundlerModule = "github.com/evanw/esbuild"
)

// Info holds the build metadata for the binary together with the React
// runtime versions projects must declare and the linked bundler version.
type Info struct {
	Version         string `json:"version"`
	GitCommit       string `json:"gitCommit"`
	BuildDate       string `json:"buildDate"`
	GoVersion       string `json:"goVersion"`
	Platform        string `json:"platform"`
	ReactVersion    string `json:"reactVersion"`
	ReactDOMVersion string `json:"reactDomVersion"`
	BundlerVersion  string `json:"bundlerVersion"`
}

// GetInfo returns the current build information.
func GetInfo() Info {
	info := Info{
		Version:         version,
		GitCommit:       shortCommit(gitCommit),
		BuildDate:       buildDate,
		GoVersion:       runtime.Version(),
		Platform:        fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		ReactVersion:    verify.SupportedReactVersion,
		ReactDOMVersion: verify.SupportedReactDOMVersion,
		BundlerVersion:  unknown,
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		info = withBuildInfo(info, bi)
	}

	return info
}

// withBuildInfo fills values that were not injected via -ldflags from the
// module build info. Injected values always win.
func withBuildInfo(info Info, bi *debug.BuildInfo) Info {
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}

	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "none" {
				info.GitCommit = shortCommit(s.Value)
			}
		case "vcs.time":
			if info.BuildDate == unknown {
				info.BuildDate = s.Value
			}
		}
	}

	for _, dep := range bi.Deps {
		if dep.Path != bundlerModule {
			continue
		}

		if dep.Replace != nil {
			dep = dep.Replace
		}

		info.BundlerVersion = dep.Version
	}

	return info
}

// String returns a human-readable single-line version string.
func (i Info) String() string {
	return fmt.Sprintf("c3-scripts %s (commit: %s, built: %s, %s %s, react %s, react-dom %s, esbuild %s)",
		i.Version, i.GitCommit, i.BuildDate, i.GoVersion, i.Platform, i.ReactVersion, i.ReactDOMVersion, i.BundlerVersion)
}

// JSON returns the version info as indented JSON.
func (i Info) JSON() (string, error) {
	data, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling version info: %w", err)
	}

	return string(data), nil
}

func shortCommit(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}

	return commit
}
