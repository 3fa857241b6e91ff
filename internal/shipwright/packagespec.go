package shipwright

import (
	"fmt"
	"regexp"
	"sort"
)

var packageNamePattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// PackageSpec identifies a package for a target triplet. Total order is by
// (Name, Triplet) lexicographically, used to break plan-ordering ties
// deterministically.
type PackageSpec struct {
	Name    string
	Triplet Triplet
}

func NewPackageSpec(name string, triplet Triplet) (PackageSpec, error) {
	if !packageNamePattern.MatchString(name) {
		return PackageSpec{}, &InputError{Msg: fmt.Sprintf("invalid package name %q", name)}
	}
	return PackageSpec{Name: name, Triplet: triplet}, nil
}

func (s PackageSpec) String() string { return s.Name + ":" + s.Triplet.String() }

// FullStem is the directory/listfile stem for this spec, e.g. "zlib_x64-linux".
func (s PackageSpec) FullStem() string { return s.Name + "_" + s.Triplet.String() }

func (s PackageSpec) Less(o PackageSpec) bool {
	if s.Name != o.Name {
		return s.Name < o.Name
	}
	return s.Triplet.Less(o.Triplet)
}

func (s PackageSpec) Equal(o PackageSpec) bool {
	return s.Name == o.Name && s.Triplet == o.Triplet
}

// FullPackageSpec is a PackageSpec plus a possibly empty feature set; order
// within the set carries no meaning for identity.
type FullPackageSpec struct {
	PackageSpec
	Features map[string]struct{}
}

func NewFullPackageSpec(spec PackageSpec, features []string) FullPackageSpec {
	set := make(map[string]struct{}, len(features))
	for _, f := range features {
		set[f] = struct{}{}
	}
	return FullPackageSpec{PackageSpec: spec, Features: set}
}

func (f FullPackageSpec) SortedFeatures() []string {
	out := make([]string, 0, len(f.Features))
	for k := range f.Features {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (f FullPackageSpec) HasFeature(name string) bool {
	_, ok := f.Features[name]
	return ok
}

// SameFeatureSet reports whether f and o request the same features,
// independent of order.
func (f FullPackageSpec) SameFeatureSet(o FullPackageSpec) bool {
	if len(f.Features) != len(o.Features) {
		return false
	}
	for k := range f.Features {
		if _, ok := o.Features[k]; !ok {
			return false
		}
	}
	return true
}
