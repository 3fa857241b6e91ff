package shipwright

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

var versionRegexp = regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)`)

type toolVersion [3]int

func parseFirstVersion(output string) (toolVersion, bool) {
	m := versionRegexp.FindStringSubmatch(output)
	if m == nil {
		return toolVersion{}, false
	}
	var v toolVersion
	for i := 0; i < 3; i++ {
		n, _ := strconv.Atoi(m[i+1])
		v[i] = n
	}
	return v, true
}

func (v toolVersion) atLeast(min toolVersion) bool {
	for i := 0; i < 3; i++ {
		if v[i] != min[i] {
			return v[i] > min[i]
		}
	}
	return true
}

func (v toolVersion) String() string { return fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2]) }

// existsAndHasEqualOrGreaterVersion implements testable property 5: true
// iff the first regex match in output is, compared component-wise, >= min.
func existsAndHasEqualOrGreaterVersion(output string, min toolVersion) bool {
	v, ok := parseFirstVersion(output)
	if !ok {
		return false
	}
	return v.atLeast(min)
}

// Toolset is a discovered compiler toolchain: a vendor tag, a version, the
// environment-setup script path, and optionally the older version it can
// stand in for via a back-compat invocation flag.
type Toolset struct {
	Vendor      string
	Version     string
	EnvScript   string
	OverrideFor string // non-empty: this toolset can also satisfy that older version
	BackCompat  string // flag passed to EnvScript to request the override behaviour
}

type toolResult struct {
	once sync.Once
	path string
	err  error
}

// Locator discovers build tools (cmake, git, nuget), memoising each lazily
// after first resolution, per process, and selects among the compiler
// toolsets passed to NewLocator; it does not search for toolsets itself.
type Locator struct {
	root     string
	exec     *Executor
	cmake    toolResult
	git      toolResult
	nuget    toolResult
	toolsets []Toolset
}

func NewLocator(root string, exec *Executor, toolsets []Toolset) *Locator {
	sorted := append([]Toolset{}, toolsets...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return &Locator{root: root, exec: exec, toolsets: sorted}
}

func (l *Locator) CMakePath() (string, error) {
	return l.resolve(&l.cmake, "cmake", toolVersion{3, 9, 3}, "--version")
}

func (l *Locator) GitPath() (string, error) {
	return l.resolve(&l.git, "git", toolVersion{2, 0, 0}, "--version")
}

func (l *Locator) NuGetPath() (string, error) {
	return l.resolve(&l.nuget, "nuget", toolVersion{4, 0, 0}, "help")
}

// candidatePaths returns the ordered resolution list from §4.4: the
// expected downloaded copy, then PATH, then well-known install locations.
func (l *Locator) candidatePaths(tool string) []string {
	var out []string
	out = append(out, filepath.Join(l.root, "downloads", "tools", tool, tool))
	if p, err := exec.LookPath(tool); err == nil {
		out = append(out, p)
	}
	out = append(out, "/usr/bin/"+tool, "/usr/local/bin/"+tool)
	return out
}

func (l *Locator) resolve(cache *toolResult, tool string, min toolVersion, versionArg string) (string, error) {
	cache.once.Do(func() {
		for _, candidate := range l.candidatePaths(tool) {
			if _, err := os.Stat(candidate); err != nil {
				continue
			}
			out, err := l.exec.RunCaptured(candidate, versionArg)
			if err != nil {
				Log.Debug("tool version probe failed", "tool", candidate, "error", err)
				continue
			}
			if existsAndHasEqualOrGreaterVersion(out, min) {
				cache.path = candidate
				return
			}
			Log.Debug("tool version too old", "tool", candidate, "output", out)
		}

		bootstrapped, err := l.bootstrap(tool)
		if err != nil {
			cache.err = &EnvironmentError{Tool: tool, Msg: fmt.Sprintf("no candidate satisfied minimum version %s and bootstrap failed: %v", min, err)}
			return
		}
		cache.path = bootstrapped
	})
	return cache.path, cache.err
}

// bootstrap invokes scripts/bootstrap-<tool>.sh under the root, expecting its
// stdout to name the downloaded copy's path.
func (l *Locator) bootstrap(tool string) (string, error) {
	script := filepath.Join(l.root, "scripts", "bootstrap-"+tool+".sh")
	if _, err := os.Stat(script); err != nil {
		return "", err
	}
	out, err := l.exec.RunCaptured(script)
	if err != nil {
		return "", err
	}
	path := strings.TrimSpace(out)
	expected := filepath.Join(l.root, "downloads", "tools", tool, tool)
	if same, err := filepath.EvalSymlinks(path); err == nil {
		if exp, err2 := filepath.EvalSymlinks(expected); err2 == nil && same != exp {
			return "", fmt.Errorf("bootstrap script produced %q, expected %q", path, expected)
		}
	}
	return path, nil
}

// Toolset picks a discovered compiler toolset per §4.4: empty hint picks
// the newest; an exact version match wins; otherwise the first toolset whose
// OverrideFor names the requested version is used. Vendor is not compared.
func (l *Locator) PickToolset(versionHint string) (Toolset, error) {
	if len(l.toolsets) == 0 {
		return Toolset{}, &EnvironmentError{Tool: "toolset", Msg: "no compiler toolset discovered"}
	}
	if versionHint == "" {
		return l.toolsets[len(l.toolsets)-1], nil
	}
	for _, ts := range l.toolsets {
		if ts.Version == versionHint {
			return ts, nil
		}
	}
	for _, ts := range l.toolsets {
		if ts.OverrideFor == versionHint {
			return ts, nil
		}
	}
	return Toolset{}, &EnvironmentError{Tool: "toolset", Msg: fmt.Sprintf("no toolset satisfies requested version %q", versionHint)}
}
