package backend

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// Minimum supported git version. Keep this aligned with the plumbing we rely
// on (for-each-ref %(*objectname), symbolic-ref -q, config --get-regexp).
var minGitVersion = gitVersion{major: 2, minor: 23, patch: 0}

type gitVersion struct {
	major int
	minor int
	patch int
}

func MinGitVersion() string {
	return minGitVersion.String()
}

func (v gitVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.major, v.minor, v.patch)
}

func (v gitVersion) less(other gitVersion) bool {
	if v.major != other.major {
		return v.major < other.major
	}
	if v.minor != other.minor {
		return v.minor < other.minor
	}
	return v.patch < other.patch
}

func parseGitVersionOutput(out string) (gitVersion, bool) {
	s := strings.TrimSpace(out)
	if s == "" {
		return gitVersion{}, false
	}
	// Common formats:
	// - "git version 2.44.0"
	// - "git version 2.39.3 (Apple Git-146)"
	// - "git version 2.39.3.windows.1"
	if idx := strings.Index(s, "git version"); idx >= 0 {
		s = strings.TrimSpace(s[idx+len("git version"):])
	}
	start := strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' })
	if start < 0 {
		return gitVersion{}, false
	}
	s = s[start:]
	end := 0
	for end < len(s) && (s[end] == '.' || (s[end] >= '0' && s[end] <= '9')) {
		end++
	}
	s = strings.Trim(s[:end], ".")
	if s == "" {
		return gitVersion{}, false
	}

	parts := strings.Split(s, ".")
	if len(parts) < 2 {
		return gitVersion{}, false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return gitVersion{}, false
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return gitVersion{}, false
	}
	patch := 0
	if len(parts) >= 3 {
		if p, err := strconv.Atoi(parts[2]); err == nil {
			patch = p
		}
	}
	return gitVersion{major: major, minor: minor, patch: patch}, true
}

func validateGitVersionOutput(out string) error {
	got, ok := parseGitVersionOutput(out)
	if !ok {
		return fmt.Errorf("unable to parse git version output: %q", strings.TrimSpace(out))
	}
	if got.less(minGitVersion) {
		return fmt.Errorf("git %s is too old; gitmeta requires git >= %s", got, minGitVersion)
	}
	return nil
}

var (
	versionMu    sync.Mutex
	versionCache = map[string]versionInfo{}
)

type versionInfo struct {
	out string
	err error
}

// GitVersion returns the raw `git --version` output for the binary at path.
// Results are memoized per path.
func GitVersion(path string) (string, error) {
	info := gitVersionCached(path)
	return info.out, info.err
}

func gitVersionCached(path string) versionInfo {
	versionMu.Lock()
	defer versionMu.Unlock()
	if info, ok := versionCache[path]; ok {
		return info
	}
	outBytes, err := exec.Command(path, "--version").CombinedOutput()
	out := strings.TrimSpace(string(outBytes))
	info := versionInfo{out: out}
	if err != nil {
		if out != "" {
			info.err = fmt.Errorf("git --version: %v: %s", err, out)
		} else {
			info.err = fmt.Errorf("git --version: %w", err)
		}
	}
	versionCache[path] = info
	return info
}

func ensureMinGitVersion(path string) error {
	info := gitVersionCached(path)
	if info.err != nil {
		return info.err
	}
	return validateGitVersionOutput(info.out)
}
