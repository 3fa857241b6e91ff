package shipwright

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExistsAndHasEqualOrGreaterVersion(t *testing.T) {
	required := toolVersion{3, 9, 3}

	cases := []struct {
		output string
		want   bool
	}{
		{"cmake version 3.10.0\n", true},
		{"cmake version 3.9.2\n", false},
		{"cmake version 3.9.3\n", true},
		{"nonsense with no version", false},
	}

	for _, c := range cases {
		got := existsAndHasEqualOrGreaterVersion(c.output, required)
		assert.Equalf(t, c.want, got, "output=%q", c.output)
	}
}

func TestPickToolsetEmptyHintPicksNewest(t *testing.T) {
	l := NewLocator("/root", nil, []Toolset{
		{Vendor: "msvc", Version: "v140"},
		{Vendor: "msvc", Version: "v141"},
	})
	ts, err := l.PickToolset("")
	assert := assert.New(t)
	assert.NoError(err)
	assert.Equal("v141", ts.Version)
}

func TestPickToolsetExactMatch(t *testing.T) {
	l := NewLocator("/root", nil, []Toolset{
		{Vendor: "msvc", Version: "v140"},
		{Vendor: "msvc", Version: "v141"},
	})
	ts, err := l.PickToolset("v140")
	assert := assert.New(t)
	assert.NoError(err)
	assert.Equal("v140", ts.Version)
}

func TestPickToolsetOverrideChain(t *testing.T) {
	l := NewLocator("/root", nil, []Toolset{
		{Vendor: "msvc", Version: "v141", OverrideFor: "v140", BackCompat: "-vcvars_ver=14.0"},
	})
	ts, err := l.PickToolset("v140")
	assert := assert.New(t)
	assert.NoError(err)
	assert.Equal("v141", ts.Version)
	assert.Equal("-vcvars_ver=14.0", ts.BackCompat)
}

func TestPickToolsetUnknownVersionErrors(t *testing.T) {
	l := NewLocator("/root", nil, []Toolset{{Vendor: "msvc", Version: "v141"}})
	_, err := l.PickToolset("v999")
	assert.Error(t, err)
}
