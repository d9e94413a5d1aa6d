package version

import (
	"strings"
	"testing"
)

func TestGetVersionFromEmbeddedFile(t *testing.T) {
	info := Get()
	if info.Version == "" {
		t.Fatal("Get().Version is empty, expected embedded version")
	}
	if info.Version != strings.TrimSpace(info.Version) {
		t.Errorf("Get().Version = %q, contains surrounding whitespace", info.Version)
	}
	if parts := strings.SplitN(info.Version, ".", 3); len(parts) < 3 {
		t.Errorf("Get().Version = %q, expected MAJOR.MINOR.PATCH", info.Version)
	}
}

func TestInfoString(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{
			name: "all fields set",
			info: Info{Version: "1.0.0", GitCommit: "abc1234", BuildDate: "2026-01-10T15:04:05Z"},
			want: "Version:    1.0.0\nGit Commit: abc1234\nBuild Date: 2026-01-10T15:04:05Z",
		},
		{
			name: "unknown provenance",
			info: Info{Version: "0.1.0", GitCommit: "unknown", BuildDate: "unknown"},
			want: "Version:    0.1.0\nGit Commit: unknown\nBuild Date: unknown",
		},
		{
			name: "dirty commit",
			info: Info{Version: "1.0.0-alpha.1", GitCommit: "def5678-dirty", BuildDate: "2026-01-10T16:00:00Z"},
			want: "Version:    1.0.0-alpha.1\nGit Commit: def5678-dirty\nBuild Date: 2026-01-10T16:00:00Z",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.String(); got != tt.want {
				t.Errorf("Info.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveCommitNeverEmpty(t *testing.T) {
	got := resolveCommit()
	if got == "" {
		t.Fatal("resolveCommit() returned empty string, expected hash or 'unknown'")
	}
	if got == "unknown" {
		return
	}
	commit := strings.TrimSuffix(got, "-dirty")
	for _, c := range commit {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Errorf("resolveCommit() = %q, contains non-hex character %q", got, c)
			return
		}
	}
}

func TestResolveDateNeverEmpty(t *testing.T) {
	got := resolveDate()
	if got == "" {
		t.Fatal("resolveDate() returned empty string, expected timestamp or 'unknown'")
	}
	if got != "unknown" && !strings.Contains(got, "T") {
		t.Errorf("resolveDate() = %q, expected ISO 8601 timestamp", got)
	}
}

func TestVCSInfoRevisionShortened(t *testing.T) {
	// Test binaries may or may not carry VCS settings; when a revision is
	// present it must be the shortened hex form.
	revision, _ := vcsInfo()
	if revision == "" {
		return
	}
	if len(revision) > 7 {
		t.Errorf("vcsInfo() revision = %q, expected at most 7 chars", revision)
	}
	for _, c := range revision {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Errorf("vcsInfo() revision = %q, contains non-hex character", revision)
			return
		}
	}
}

func TestGetIsDeterministic(t *testing.T) {
	if Get() != Get() {
		t.Error("Get() returned different results across calls")
	}
}
