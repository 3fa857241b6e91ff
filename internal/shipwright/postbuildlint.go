package shipwright

import (
	"os"
	"path/filepath"
)

// PostBuildLint runs a small fixed set of checks against a package's
// staging tree, each of which can be suppressed by the matching BUILD_INFO
// policy flag. It returns one message per violation found; a nonempty
// result means POST_BUILD_CHECKS_FAILED.
func PostBuildLint(stagingDir string, info *BuildInfo) []string {
	var issues []string

	if !info.Policies["EMPTY_PACKAGE"] {
		if empty, err := dirIsEffectivelyEmpty(stagingDir); err == nil && empty {
			issues = append(issues, "package staging directory contains no installable files")
		}
	}

	if !info.Policies["DLLS_WITHOUT_LIBS"] {
		if bad, err := hasDLLsWithoutLibs(stagingDir); err == nil && bad {
			issues = append(issues, "bin/ contains a .dll with no matching .lib/.a in lib/")
		}
	}

	if !info.Policies["EMPTY_INCLUDE_FOLDER"] {
		includeDir := filepath.Join(stagingDir, "include")
		if empty, err := dirIsEffectivelyEmpty(includeDir); err == nil && empty {
			if _, statErr := os.Stat(includeDir); statErr == nil {
				issues = append(issues, "include/ exists but is empty")
			}
		}
	}

	return issues
}

func dirIsEffectivelyEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	count := 0
	for _, e := range entries {
		if e.Name() == "CONTROL" || e.Name() == "BUILD_INFO" {
			continue
		}
		count++
	}
	return count == 0, nil
}

func hasDLLsWithoutLibs(stagingDir string) (bool, error) {
	binDir := filepath.Join(stagingDir, "bin")
	libDir := filepath.Join(stagingDir, "lib")
	entries, err := os.ReadDir(binDir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".dll" {
			continue
		}
		stem := e.Name()[:len(e.Name())-len(".dll")]
		if _, err := os.Stat(filepath.Join(libDir, stem+".lib")); err == nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(libDir, stem+".a")); err == nil {
			continue
		}
		return true, nil
	}
	return false, nil
}
