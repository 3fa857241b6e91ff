package shipwright

import "fmt"

func VersionString() string {
	return fmt.Sprintf("shipwright %s (%s, built %s)", version, arch, buildDate)
}
