package shipwright

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePortProvider struct {
	ports map[string]*SourceControlFile
}

func (f *fakePortProvider) LoadPort(name string) (*SourceControlFile, error) {
	scf, ok := f.ports[name]
	if !ok {
		return nil, &InputError{Msg: "no such port " + name}
	}
	return scf, nil
}

func TestBuildPlanFreshInstall(t *testing.T) {
	triplet := mustTriplet(t, "x64-windows")
	root := t.TempDir()
	db, err := LoadStatusDatabase(root)
	require.NoError(t, err)
	defer db.Close()

	ports := &fakePortProvider{ports: map[string]*SourceControlFile{
		"zlib": {Name: "zlib", Version: "1.2.11"},
	}}

	zlibSpec, err := NewPackageSpec("zlib", triplet)
	require.NoError(t, err)

	plan, err := BuildPlan([]FullPackageSpec{NewFullPackageSpec(zlibSpec, nil)}, db, ports, root+"/packages")
	require.NoError(t, err)
	require.Len(t, plan.Actions, 1)
	assert.Nil(t, plan.Actions[0].Remove)
	require.NotNil(t, plan.Actions[0].Install)
	assert.Equal(t, KindBuildAndInstall, plan.Actions[0].Install.Kind)
	assert.Equal(t, RequestUser, plan.Actions[0].Install.RequestType)
}

func TestBuildPlanAlreadyInstalled(t *testing.T) {
	triplet := mustTriplet(t, "x64-windows")
	root := t.TempDir()
	db, err := LoadStatusDatabase(root)
	require.NoError(t, err)
	defer db.Close()

	zlibSpec, err := NewPackageSpec("zlib", triplet)
	require.NoError(t, err)
	require.NoError(t, db.Insert(&StatusParagraph{
		BinaryParagraph: BinaryParagraph{Spec: zlibSpec, Version: "1.2.11"},
		Want:            WantInstall,
		State:           StateInstalled,
	}))

	ports := &fakePortProvider{ports: map[string]*SourceControlFile{
		"zlib": {Name: "zlib", Version: "1.2.11"},
	}}

	plan, err := BuildPlan([]FullPackageSpec{NewFullPackageSpec(zlibSpec, nil)}, db, ports, root+"/packages")
	require.NoError(t, err)
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, KindAlreadyInstalled, plan.Actions[0].Install.Kind)
}

func TestBuildPlanOrdersDependenciesBeforeDependents(t *testing.T) {
	triplet := mustTriplet(t, "x64-windows")
	root := t.TempDir()
	db, err := LoadStatusDatabase(root)
	require.NoError(t, err)
	defer db.Close()

	ports := &fakePortProvider{ports: map[string]*SourceControlFile{
		"curl": {Name: "curl", Version: "8.0.0", Dependencies: []Dependency{{Name: "zlib"}}},
		"zlib": {Name: "zlib", Version: "1.2.11"},
	}}

	curlSpec, err := NewPackageSpec("curl", triplet)
	require.NoError(t, err)

	plan, err := BuildPlan([]FullPackageSpec{NewFullPackageSpec(curlSpec, nil)}, db, ports, root+"/packages")
	require.NoError(t, err)
	require.Len(t, plan.Actions, 2)

	zlibIdx, curlIdx := -1, -1
	for i, a := range plan.Actions {
		switch a.Install.Spec.Name {
		case "zlib":
			zlibIdx = i
		case "curl":
			curlIdx = i
		}
	}
	assert.Less(t, zlibIdx, curlIdx)
}

func TestBuildPlanDetectsCycle(t *testing.T) {
	triplet := mustTriplet(t, "x64-windows")
	root := t.TempDir()
	db, err := LoadStatusDatabase(root)
	require.NoError(t, err)
	defer db.Close()

	ports := &fakePortProvider{ports: map[string]*SourceControlFile{
		"a": {Name: "a", Version: "1", Dependencies: []Dependency{{Name: "b"}}},
		"b": {Name: "b", Version: "1", Dependencies: []Dependency{{Name: "a"}}},
	}}

	aSpec, err := NewPackageSpec("a", triplet)
	require.NoError(t, err)

	_, err = BuildPlan([]FullPackageSpec{NewFullPackageSpec(aSpec, nil)}, db, ports, root+"/packages")
	require.Error(t, err)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
}
