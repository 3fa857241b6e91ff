package shipwright

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func setupStagedPackage(t *testing.T, packagesDir string, spec PackageSpec, files map[string]string) {
	t.Helper()
	stageDir := filepath.Join(packagesDir, spec.FullStem())
	for rel, content := range files {
		full := filepath.Join(stageDir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func TestInstallPackageConflictDetection(t *testing.T) {
	root := t.TempDir()
	db, err := LoadStatusDatabase(root)
	require.NoError(t, err)
	defer db.Close()

	triplet := mustTriplet(t, "x64-linux")
	installedDir := filepath.Join(root, "installed")
	packagesDir := filepath.Join(root, "packages")

	pkgA, err := NewPackageSpec("pkga", triplet)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(installedDir, triplet.String(), "include"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(installedDir, triplet.String(), "include", "z.h"), []byte("x"), 0o644))
	require.NoError(t, writeListfile(installedDir, pkgA.FullStem(), []string{triplet.String() + "/include/z.h"}))

	installedParagraph := &StatusParagraph{
		BinaryParagraph: BinaryParagraph{Spec: pkgA, Version: "1.0"},
		Want:            WantInstall,
		State:           StateInstalled,
	}
	require.NoError(t, db.Insert(installedParagraph))

	pkgB, err := NewPackageSpec("pkgb", triplet)
	require.NoError(t, err)
	setupStagedPackage(t, packagesDir, pkgB, map[string]string{"include/z.h": "y"})

	bcf := &BinaryControlFile{Core: BinaryParagraph{Spec: pkgB, Version: "1.0"}}

	result, err := InstallPackage(OS, installedDir, packagesDir, pkgB, bcf, db, false)
	require.NoError(t, err)
	require.Equal(t, InstallFileConflicts, result)

	_, ok := db.FindInstalled(pkgB, "")
	require.False(t, ok, "conflicting package must not end up in the status DB")

	_, err = os.Stat(filepath.Join(installedDir, triplet.String(), "include", "z.h"))
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(installedDir, triplet.String(), "include", "z.h"))
	require.NoError(t, err)
	require.Equal(t, "x", string(data), "installed tree must be unchanged by a rejected install")
}

func TestInstallPackageSuccessWritesListfileAndStatus(t *testing.T) {
	root := t.TempDir()
	db, err := LoadStatusDatabase(root)
	require.NoError(t, err)
	defer db.Close()

	triplet := mustTriplet(t, "x64-linux")
	installedDir := filepath.Join(root, "installed")
	packagesDir := filepath.Join(root, "packages")

	spec, err := NewPackageSpec("zlib", triplet)
	require.NoError(t, err)
	setupStagedPackage(t, packagesDir, spec, map[string]string{
		"include/zlib.h": "contents",
		"lib/libz.a":     "binary",
	})

	bcf := &BinaryControlFile{Core: BinaryParagraph{Spec: spec, Version: "1.2.11"}}
	result, err := InstallPackage(OS, installedDir, packagesDir, spec, bcf, db, false)
	require.NoError(t, err)
	require.Equal(t, InstallSuccess, result)

	sp, ok := db.FindInstalled(spec, "")
	require.True(t, ok)
	require.Equal(t, StateInstalled, sp.State)

	entries := listfileEntries(installedDir, spec.FullStem())
	require.NotEmpty(t, entries)
	require.Contains(t, entries, triplet.String()+"/include/zlib.h")
}
