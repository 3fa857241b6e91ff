package shipwright

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustTriplet(t *testing.T, s string) Triplet {
	tr, err := TripletFromCanonical(s)
	require.NoError(t, err)
	return tr
}

func TestStatusDatabaseJournalDeterminism(t *testing.T) {
	root := t.TempDir()
	db, err := LoadStatusDatabase(root)
	require.NoError(t, err)

	triplet := mustTriplet(t, "x64-linux")
	spec, err := NewPackageSpec("zlib", triplet)
	require.NoError(t, err)

	sp := &StatusParagraph{
		BinaryParagraph: BinaryParagraph{Spec: spec, Version: "1.2.11"},
		Want:            WantInstall,
		State:           StateHalfInstalled,
	}
	require.NoError(t, db.Insert(sp))

	sp2 := *sp
	sp2.State = StateInstalled
	require.NoError(t, db.Insert(&sp2))
	require.NoError(t, db.Close())

	reloaded, err := LoadStatusDatabase(root)
	require.NoError(t, err)
	defer reloaded.Close()

	got, ok := reloaded.FindInstalled(spec, "")
	require.True(t, ok)
	require.Equal(t, StateInstalled, got.State)
	require.Equal(t, "1.2.11", got.Version)
}

func TestStatusDatabaseCompactionPreservesView(t *testing.T) {
	root := t.TempDir()
	db, err := LoadStatusDatabase(root)
	require.NoError(t, err)

	triplet := mustTriplet(t, "x64-linux")
	spec, err := NewPackageSpec("curl", triplet)
	require.NoError(t, err)
	sp := &StatusParagraph{
		BinaryParagraph: BinaryParagraph{Spec: spec, Version: "8.0.0"},
		Want:            WantInstall,
		State:           StateInstalled,
	}
	require.NoError(t, db.Insert(sp))

	before := db.IterInstalled()
	require.NoError(t, db.Compact())
	after := db.IterInstalled()
	require.Equal(t, len(before), len(after))
	require.Equal(t, before[0].Spec, after[0].Spec)

	entries, err := filepath.Glob(filepath.Join(statusUpdatesDir(root), "*.zst"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestStatusDatabaseRejectsSecondWriter(t *testing.T) {
	root := t.TempDir()
	db, err := LoadStatusDatabase(root)
	require.NoError(t, err)
	defer db.Close()

	_, err = LoadStatusDatabase(root)
	require.Error(t, err)
}
