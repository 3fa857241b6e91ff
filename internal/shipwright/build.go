package shipwright

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// preBuildInfoSentinel is the fixed GUID the triplet-inspection CMake
// script prints immediately before its KEY=VALUE lines.
const preBuildInfoSentinel = "c35112b6-d1ba-415b-aa5d-81de856ef8eb"

func init() {
	if _, err := uuid.Parse(preBuildInfoSentinel); err != nil {
		panic("preBuildInfoSentinel is not a valid UUID: " + err.Error())
	}
}

// PreBuildInfo is the environment snapshot for a triplet, produced by
// running scripts/get_triplet_environment.cmake and parsing its output.
type PreBuildInfo struct {
	TargetArchitecture  string
	CMakeSystemName     string
	CMakeSystemVersion  string
	PlatformToolset     string
	VisualStudioPath    string
}

var preBuildInfoKeys = map[string]func(*PreBuildInfo, string){
	"VCPKG_TARGET_ARCHITECTURE":  func(p *PreBuildInfo, v string) { p.TargetArchitecture = v },
	"VCPKG_CMAKE_SYSTEM_NAME":    func(p *PreBuildInfo, v string) { p.CMakeSystemName = v },
	"VCPKG_CMAKE_SYSTEM_VERSION": func(p *PreBuildInfo, v string) { p.CMakeSystemVersion = v },
	"VCPKG_PLATFORM_TOOLSET":     func(p *PreBuildInfo, v string) { p.PlatformToolset = v },
	"VCPKG_VISUAL_STUDIO_PATH":   func(p *PreBuildInfo, v string) { p.VisualStudioPath = v },
}

// LoadPreBuildInfo runs cmake as a one-shot script against the triplet file
// and parses the KEY=VALUE lines following the sentinel. Unknown keys fail
// the load.
func LoadPreBuildInfo(exec *Executor, cmakePath, scriptsDir, tripletFile string) (*PreBuildInfo, error) {
	script := filepath.Join(scriptsDir, "get_triplet_environment.cmake")
	out, err := exec.RunCaptured(cmakePath,
		"-DTRIPLET_FILE="+tripletFile,
		"-P", script)
	if err != nil {
		return nil, &EnvironmentError{Tool: "cmake", Msg: fmt.Sprintf("triplet probe failed: %v", err)}
	}

	idx := strings.Index(out, preBuildInfoSentinel)
	if idx < 0 {
		return nil, newInternalError("build.go", 0, "triplet probe output missing sentinel")
	}
	tail := out[idx+len(preBuildInfoSentinel):]

	info := &PreBuildInfo{}
	for _, line := range strings.Split(tail, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key, val := parts[0], parts[1]
		setter, ok := preBuildInfoKeys[key]
		if !ok {
			return nil, &InputError{Msg: fmt.Sprintf("unknown key %q in triplet probe output", key)}
		}
		setter(info, val)
	}
	return info, nil
}

// buildPolicies is the fixed set of Policy<Name> flags a BUILD_INFO
// paragraph may carry.
var buildPolicies = map[string]bool{
	"EMPTY_PACKAGE":          true,
	"DLLS_WITHOUT_LIBS":      true,
	"ONLY_RELEASE_CRT":       true,
	"EMPTY_INCLUDE_FOLDER":   true,
	"ALLOW_OBSOLETE_MSVCRT":  true,
}

// BuildInfo is parsed from the BUILD_INFO paragraph emitted by the port build.
type BuildInfo struct {
	CRTLinkage     string
	LibraryLinkage string
	Version        string
	Policies       map[string]bool
}

func ParseBuildInfo(p *Paragraph) (*BuildInfo, error) {
	crt, ok := p.Get("CRTLinkage")
	if !ok {
		return nil, &InputError{Msg: "BUILD_INFO missing required CRTLinkage"}
	}
	lib, ok := p.Get("LibraryLinkage")
	if !ok {
		return nil, &InputError{Msg: "BUILD_INFO missing required LibraryLinkage"}
	}
	info := &BuildInfo{CRTLinkage: crt, LibraryLinkage: lib, Policies: make(map[string]bool)}
	info.Version = p.GetOr("Version", "")

	for _, key := range p.Keys() {
		if !strings.HasPrefix(key, "Policy") {
			continue
		}
		name := strings.TrimPrefix(key, "Policy")
		if !buildPolicies[name] {
			return nil, &InputError{Msg: fmt.Sprintf("unknown build policy %q", name)}
		}
		val, _ := p.Get(key)
		info.Policies[name] = val == "enabled"
	}
	return info, nil
}

func ReadBuildInfo(stagingDir string) (*BuildInfo, error) {
	path := filepath.Join(stagingDir, "BUILD_INFO")
	f, err := os.Open(path)
	if err != nil {
		return nil, &InputError{Msg: fmt.Sprintf("cannot read BUILD_INFO: %v", err)}
	}
	defer f.Close()
	paragraphs, err := ParseParagraphs(f)
	if err != nil {
		return nil, err
	}
	if len(paragraphs) != 1 {
		return nil, &InputError{Msg: "BUILD_INFO must contain exactly one paragraph"}
	}
	return ParseBuildInfo(paragraphs[0])
}

type BuildResult int

const (
	BuildNullValue BuildResult = iota
	BuildSucceeded
	BuildFailed
	BuildPostBuildChecksFailed
	BuildFileConflicts
	BuildCascadedDueToMissingDependencies
)

func (r BuildResult) String() string {
	switch r {
	case BuildNullValue:
		return "NULLVALUE"
	case BuildSucceeded:
		return "SUCCEEDED"
	case BuildFailed:
		return "BUILD_FAILED"
	case BuildPostBuildChecksFailed:
		return "POST_BUILD_CHECKS_FAILED"
	case BuildFileConflicts:
		return "FILE_CONFLICTS"
	case BuildCascadedDueToMissingDependencies:
		return "CASCADED_DUE_TO_MISSING_DEPENDENCIES"
	default:
		return "UNKNOWN"
	}
}

// BuildOutcome is build_package's sum-type return: a bare result, or a
// cascaded failure naming the missing dependencies.
type BuildOutcome struct {
	Result  BuildResult
	Missing []PackageSpec
	BCF     *BinaryControlFile
}

// archTable maps (targetArch, cmakeSystemName) to the toolchain/target
// arguments a toolset's environment script expects; unsupported
// combinations fail before any process is launched.
var archTable = map[[2]string]struct{ Toolchain, Target string }{
	{"x64", ""}:        {"x86_64", "x86_64"},
	{"x64", "Linux"}:   {"x86_64", "x86_64-linux-gnu"},
	{"x64", "Darwin"}:  {"x86_64", "x86_64-apple-darwin"},
	{"arm64", "Linux"}: {"aarch64", "aarch64-linux-gnu"},
	{"x86", ""}:        {"i686", "i686"},
}

// BuildPackage implements §4.6: preconditions, PreBuildInfo, toolset
// selection, the cmake invocation, BUILD_INFO parsing, lint, and the
// BinaryControlFile write.
func BuildPackage(
	exec *Executor,
	locator *Locator,
	db *StatusDatabase,
	source *SourceControlFile,
	spec FullPackageSpec,
	scriptsDir, portsDir, tripletsDir, buildTreesDir, packagesDir string,
	opts DriverOptions,
) (*BuildOutcome, error) {
	deps := source.AllDependencies(spec.Features)
	var missing []PackageSpec
	for _, d := range deps {
		depSpec, err := NewPackageSpec(d.Name, spec.Triplet)
		if err != nil {
			return nil, err
		}
		if _, ok := db.FindInstalled(depSpec, ""); !ok {
			missing = append(missing, depSpec)
		}
	}
	if len(missing) > 0 {
		return &BuildOutcome{Result: BuildCascadedDueToMissingDependencies, Missing: missing}, nil
	}

	cmakePath, err := locator.CMakePath()
	if err != nil {
		return nil, err
	}
	tripletFile := filepath.Join(tripletsDir, spec.Triplet.String()+".cmake")
	preBuildInfo, err := LoadPreBuildInfo(exec, cmakePath, scriptsDir, tripletFile)
	if err != nil {
		return nil, err
	}

	toolset, err := locator.PickToolset(preBuildInfo.PlatformToolset)
	if err != nil {
		return nil, err
	}

	key := [2]string{preBuildInfo.TargetArchitecture, preBuildInfo.CMakeSystemName}
	archEntry, ok := archTable[key]
	if !ok {
		key = [2]string{preBuildInfo.TargetArchitecture, ""}
		archEntry, ok = archTable[key]
	}
	if !ok {
		return nil, &EnvironmentError{Tool: "toolchain", Msg: fmt.Sprintf("unsupported (arch, system) combination: (%s, %s)", preBuildInfo.TargetArchitecture, preBuildInfo.CMakeSystemName)}
	}

	stagingDir := filepath.Join(packagesDir, spec.PackageSpec.FullStem())
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, err
	}

	portDir := filepath.Join(portsDir, spec.Name)
	buildTreeDir := filepath.Join(buildTreesDir, spec.Name)

	args := []string{
		"-DPORT=" + spec.Name,
		"-DCURRENT_PORT_DIR=" + portDir,
		"-DTARGET_TRIPLET=" + spec.Triplet.String(),
		"-DVCPKG_PLATFORM_TOOLSET=" + toolset.Version,
		"-DVCPKG_USE_HEAD_VERSION=" + boolFlag(opts.UseHead),
		"-D_VCPKG_NO_DOWNLOADS=" + boolFlag(!opts.AllowDownloads),
		"-DFEATURES=" + strings.Join(spec.SortedFeatures(), ";"),
	}
	if gitPath, err := locator.GitPath(); err == nil {
		args = append(args, "-DGIT="+gitPath)
	}
	args = append(args, "-DVCPKG_TOOLCHAIN_ARCH="+archEntry.Toolchain, "-DVCPKG_TARGET_ARCH="+archEntry.Target)
	if toolset.OverrideFor != "" {
		args = append(args, "-DVCPKG_TOOLSET_BACK_COMPAT_FLAG="+toolset.BackCompat)
	}
	args = append(args, "-P", filepath.Join(portDir, "portfile.cmake"))

	buildCmd := newExecCmd(exec, cmakePath, args, buildTreeDir)
	if runErr := exec.Run(buildCmd); runErr != nil {
		return &BuildOutcome{Result: BuildFailed}, nil
	}

	buildInfo, err := ReadBuildInfo(stagingDir)
	if err != nil {
		return nil, err
	}

	version := source.Version
	if buildInfo.Version != "" {
		version = buildInfo.Version
	}

	lintErrors := PostBuildLint(stagingDir, buildInfo)
	if len(lintErrors) > 0 {
		for _, msg := range lintErrors {
			Log.Warn("post-build lint", "package", spec.PackageSpec, "issue", msg)
		}
		return &BuildOutcome{Result: BuildPostBuildChecksFailed}, nil
	}

	bcf := &BinaryControlFile{
		Core: BinaryParagraph{
			Spec:         spec.PackageSpec,
			Version:      version,
			Description:  source.Description,
			Maintainer:   source.Maintainer,
			Dependencies: source.Dependencies,
		},
	}
	for _, feat := range source.Features {
		if !spec.HasFeature(feat.Name) {
			continue
		}
		bcf.Features = append(bcf.Features, BinaryParagraph{
			Spec:         spec.PackageSpec,
			Version:      version,
			Description:  feat.Description,
			Maintainer:   source.Maintainer,
			Feature:      feat.Name,
			Dependencies: feat.Dependencies,
		})
	}

	controlPath := filepath.Join(stagingDir, "CONTROL")
	if err := WriteBinaryControlFile(controlPath, bcf); err != nil {
		return nil, err
	}

	return &BuildOutcome{Result: BuildSucceeded, BCF: bcf}, nil
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func newExecCmd(e *Executor, path string, args []string, dir string) *exec.Cmd {
	cmd := exec.CommandContext(e.Context, path, args...)
	cmd.Dir = dir
	return cmd
}
