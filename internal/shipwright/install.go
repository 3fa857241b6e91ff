package shipwright

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"lukechampine.com/blake3"
)

type InstallResult int

const (
	InstallSuccess InstallResult = iota
	InstallFileConflicts
)

func (r InstallResult) String() string {
	if r == InstallSuccess {
		return "SUCCESS"
	}
	return "FILE_CONFLICTS"
}

var stagingExclude = map[string]bool{"CONTROL": true, "BUILD_INFO": true}

// InstallPackage implements §4.7. Conflicts are checked before any journal
// write (the recommended resolution to the open question in §9): a staging
// tree that would collide with an already-installed file of the same
// triplet is rejected with no mutation at all, rather than leaving a
// HALF_INSTALLED paragraph that must be rolled back.
func InstallPackage(fsys FileSystem, installedDir, packagesDir string, spec PackageSpec, bcf *BinaryControlFile, db *StatusDatabase, force bool) (InstallResult, error) {
	stagingDir := filepath.Join(packagesDir, spec.FullStem())

	stagingFiles, err := WalkRelativeFiles(fsys, stagingDir, stagingExclude)
	if err != nil {
		return InstallFileConflicts, err
	}

	tripletPrefix := spec.Triplet.String() + "/"
	installedFiles := make(map[string]bool)
	for _, sp := range db.InstalledByTriplet(spec.Triplet) {
		for _, p := range listfileEntries(installedDir, sp.FullStem()) {
			if rel, ok := strings.CutPrefix(p, tripletPrefix); ok {
				installedFiles[rel] = true
			}
		}
	}

	var conflicts []string
	for _, f := range stagingFiles {
		if strings.HasSuffix(f, "/") {
			continue // directories are shared between packages, not owned
		}
		if installedFiles[f] {
			conflicts = append(conflicts, f)
		}
	}
	if len(conflicts) > 0 && !force {
		sort.Strings(conflicts)
		for _, c := range conflicts {
			colError.Printf("  conflicting file: %s\n", c)
		}
		return InstallFileConflicts, nil
	}

	paragraphs := bcf.AllParagraphs()
	statusParas := make([]*StatusParagraph, 0, len(paragraphs))
	for _, bp := range paragraphs {
		sp := &StatusParagraph{BinaryParagraph: bp, Want: WantInstall, State: StateHalfInstalled}
		if err := db.Insert(sp); err != nil {
			return InstallFileConflicts, newInternalError("install.go", 0, "journal write failed for %s: %v", bp.DisplayName(), err)
		}
		statusParas = append(statusParas, sp)
	}

	destRoot := filepath.Join(installedDir, spec.Triplet.String())
	var committed []string // relative to installedDir, per §6's listfile contract
	for _, rel := range stagingFiles {
		src := filepath.Join(stagingDir, rel)
		dst := filepath.Join(destRoot, rel)
		relToInstalled := spec.Triplet.String() + "/" + rel
		if rel[len(rel)-1] == '/' {
			if err := fsys.MkdirAll(dst, 0o755); err != nil {
				return InstallFileConflicts, err
			}
			committed = append(committed, relToInstalled)
			continue
		}
		if fsys.Exists(dst) {
			colWarn.Printf("  warning: overwriting existing file %s\n", rel)
		}
		if err := fsys.Copy(src, dst); err != nil {
			return InstallFileConflicts, err
		}
		committed = append(committed, relToInstalled)
	}

	if err := writeListfile(installedDir, spec.FullStem(), committed); err != nil {
		return InstallFileConflicts, err
	}

	for _, sp := range statusParas {
		sp.State = StateInstalled
		if err := db.Insert(sp); err != nil {
			return InstallFileConflicts, newInternalError("install.go", 0, "journal write failed for %s: %v", sp.DisplayName(), err)
		}
	}

	return InstallSuccess, nil
}

func listfilePath(installedDir, fullStem string) string {
	return filepath.Join(installedDir, vcpkgDir, "info", fullStem+".list")
}

func listfileEntries(installedDir, fullStem string) []string {
	data, err := os.ReadFile(listfilePath(installedDir, fullStem))
	if err != nil {
		return nil
	}
	var out []string
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				out = append(out, string(data[start:i]))
			}
			start = i + 1
		}
	}
	return out
}

// writeListfile writes every committed path to the package's listfile
// (replacing any previous one), sorted ascending, and writes a blake3
// checksum manifest of the regular files beside it as <stem>.blake3. No
// command reads the manifest back; `shipwright status` reports only HALF_*
// paragraphs.
func writeListfile(installedDir, fullStem string, paths []string) error {
	sorted := append([]string{}, paths...)
	sort.Strings(sorted)

	if err := os.MkdirAll(filepath.Join(installedDir, vcpkgDir, "info"), 0o755); err != nil {
		return err
	}

	listPath := listfilePath(installedDir, fullStem)
	f, err := os.Create(listPath)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, p := range sorted {
		if _, err := fmt.Fprintln(f, p); err != nil {
			return err
		}
	}

	return writeChecksumManifest(installedDir, fullStem, sorted)
}

func writeChecksumManifest(installedDir, fullStem string, relPaths []string) error {
	manifestPath := filepath.Join(installedDir, vcpkgDir, "info", fullStem+".blake3")
	f, err := os.Create(manifestPath)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, rel := range relPaths {
		if rel[len(rel)-1] == '/' {
			continue
		}
		sum, err := blake3SumFile(filepath.Join(installedDir, rel))
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(f, "%s  %s\n", sum, rel); err != nil {
			return err
		}
	}
	return nil
}

// RemovePackage walks the lifecycle's deinstall arm: journal
// HALF_UNINSTALLED before deleting any file, remove the committed files
// and the listfile, then journal NOT_INSTALLED. A spec left HALF_INSTALLED
// or HALF_UNINSTALLED by a prior crash is also removable, so the lookup is
// by any tracked state rather than requiring StateInstalled: the install
// command directs the caller here for exactly that recovery path.
func RemovePackage(fsys FileSystem, installedDir string, spec PackageSpec, db *StatusDatabase) error {
	allParas := db.FindAllBySpec(spec)
	if len(allParas) == 0 {
		return &InputError{Msg: fmt.Sprintf("%s is not installed", spec)}
	}

	for _, sp := range allParas {
		sp.Want = WantPurge
		sp.State = StateHalfUninstalled
		if err := db.Insert(sp); err != nil {
			return newInternalError("install.go", 0, "journal write failed removing %s: %v", sp.DisplayName(), err)
		}
	}

	for _, sp := range allParas {
		paths := listfileEntries(installedDir, sp.FullStem())
		for _, p := range paths {
			if p[len(p)-1] == '/' {
				continue
			}
			if err := fsys.Remove(filepath.Join(installedDir, p)); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		os.Remove(listfilePath(installedDir, sp.FullStem()))
		os.Remove(filepath.Join(installedDir, vcpkgDir, "info", sp.FullStem()+".blake3"))
	}

	for _, sp := range allParas {
		sp.State = StateNotInstalled
		if err := db.Insert(sp); err != nil {
			return newInternalError("install.go", 0, "journal write failed removing %s: %v", sp.DisplayName(), err)
		}
	}
	return nil
}

func blake3SumFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	h := blake3.New(32, nil)
	h.Write(data)
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
