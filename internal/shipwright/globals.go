package shipwright

import (
	"runtime"
	"sync/atomic"

	"github.com/gookit/color"
)

// isCritical marks a window during which SIGINT/SIGTERM must not interrupt
// an in-flight install; the CLI signal handler checks it before cancelling.
var isCritical atomic.Int32

// Global root-relative paths, populated by InitConfig from a loaded Config.
var (
	RootDir       string
	PortsDir      string
	TripletsDir   string
	DownloadsDir  string
	BuildTreesDir string
	PackagesDir   string
	InstalledDir  string
	ScriptsDir    string
	ConfigFile    = "/etc/shipwright.conf"
	Debug         bool
	Verbose       bool
	arch          = runtime.GOARCH
	version       = "dev"      // overridden at build time via -ldflags
	buildDate     = "unknown"  // overridden at build time via -ldflags
)

// Console palette, same roles the teacher's CLI output uses.
var (
	colInfo    = color.Info
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
	colNote    = color.Tag("notice")
)
