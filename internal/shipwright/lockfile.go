package shipwright

import (
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// LockEntry is one resolved, installed package snapshotted into a lockfile
// for reproducible re-provisioning, the feature recovered from the status
// database's append-only design (not present in the original this spec was
// distilled from).
type LockEntry struct {
	Name     string   `yaml:"name"`
	Triplet  string   `yaml:"triplet"`
	Version  string   `yaml:"version"`
	Features []string `yaml:"features,omitempty"`
}

type LockFile struct {
	Packages []LockEntry `yaml:"packages"`
}

// SnapshotLock captures every currently INSTALLED core paragraph, with the
// feature set read from the installed feature paragraphs themselves (not
// the core paragraph's Default-Features, which BuildPackage never
// populates and which names the port's defaults rather than what this
// particular install resolved to).
func SnapshotLock(db *StatusDatabase) LockFile {
	var entries []LockEntry
	for _, sp := range db.IterInstalled() {
		if sp.Feature != "" {
			continue
		}
		features := db.InstalledFeatureSet(sp.Spec)
		names := make([]string, 0, len(features))
		for f := range features {
			names = append(names, f)
		}
		sort.Strings(names)
		entries = append(entries, LockEntry{
			Name:     sp.Spec.Name,
			Triplet:  sp.Spec.Triplet.String(),
			Version:  sp.Version,
			Features: names,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Triplet < entries[j].Triplet
	})
	return LockFile{Packages: entries}
}

func WriteLockFile(path string, lock LockFile) error {
	data, err := yaml.Marshal(lock)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func ReadLockFile(path string) (LockFile, error) {
	var lock LockFile
	data, err := os.ReadFile(path)
	if err != nil {
		return lock, err
	}
	err = yaml.Unmarshal(data, &lock)
	return lock, err
}

// RequestsFromLock turns a LockFile into install requests, the counterpart
// consumed by `shipwright install --from-lock`.
func RequestsFromLock(lock LockFile) ([]FullPackageSpec, error) {
	out := make([]FullPackageSpec, 0, len(lock.Packages))
	for _, e := range lock.Packages {
		triplet, err := TripletFromCanonical(e.Triplet)
		if err != nil {
			return nil, err
		}
		spec, err := NewPackageSpec(e.Name, triplet)
		if err != nil {
			return nil, err
		}
		out = append(out, NewFullPackageSpec(spec, e.Features))
	}
	return out, nil
}
