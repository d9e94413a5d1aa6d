// Package version reports the release version and build provenance,
// surfaced by the version command and the build_info metric.
package version

import (
	_ "embed"
	"fmt"
	"runtime/debug"
	"strings"
)

//go:embed VERSION
var versionFile string

// Overridable at build time:
//
//	go build -ldflags "-X github.com/kravishan/neuroclimabot-docker-sub000/internal/version.gitCommit=VALUE"
var (
	gitCommit string
	buildDate string
)

// Info is the resolved version and build metadata.
type Info struct {
	Version   string
	GitCommit string
	BuildDate string
}

func (i Info) String() string {
	return fmt.Sprintf("Version:    %s\nGit Commit: %s\nBuild Date: %s",
		i.Version, i.GitCommit, i.BuildDate)
}

// Get resolves the version from the embedded VERSION file and the
// commit/date from ldflags, falling back to module build info for
// go-install builds.
func Get() Info {
	return Info{
		Version:   strings.TrimSpace(versionFile),
		GitCommit: resolveCommit(),
		BuildDate: resolveDate(),
	}
}

func resolveCommit() string {
	if gitCommit != "" {
		return gitCommit
	}
	if revision, dirty := vcsInfo(); revision != "" {
		if dirty {
			return revision + "-dirty"
		}
		return revision
	}
	return "unknown"
}

func resolveDate() string {
	if buildDate != "" {
		return buildDate
	}
	return "unknown"
}

// vcsInfo reads the VCS revision (shortened to 7 characters) and dirty
// flag from the module build info.
func vcsInfo() (revision string, dirty bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", false
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
			if len(revision) > 7 {
				revision = revision[:7]
			}
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return revision, dirty
}
