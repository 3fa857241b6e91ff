package shipwright

import (
	"os"
	"path/filepath"
	"time"
)

// integrationMarkerPath is grounded on the original's integrate command:
// this repo does not implement MSBuild/NuGet glue (out of scope), but the
// marker file recording whether IDE integration was ever installed is a
// small, faithful piece of the original the distillation dropped.
func integrationMarkerPath(root string) string {
	return filepath.Join(root, "installed", vcpkgDir, "integration.marker")
}

// IntegrateStatus reports whether integration was installed, and when.
func IntegrateStatus(root string) (installed bool, installedAt time.Time, err error) {
	info, statErr := os.Stat(integrationMarkerPath(root))
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return false, time.Time{}, nil
		}
		return false, time.Time{}, statErr
	}
	return true, info.ModTime(), nil
}

// IntegrateInstall writes the marker, analogous to the original's
// `integrate install`, minus the MSBuild props/targets generation (§1
// Non-goals).
func IntegrateInstall(root string) error {
	path := integrationMarkerPath(root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("shipwright integration marker\n"), 0o644)
}

func IntegrateRemove(root string) error {
	err := os.Remove(integrationMarkerPath(root))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
