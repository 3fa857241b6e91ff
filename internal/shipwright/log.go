package shipwright

import (
	"os"

	"github.com/hashicorp/go-hclog"
)

// Log is the package-level structured logger for everything that isn't
// user-facing plan/summary output: toolchain discovery attempts, journal
// replay, lint findings. Plan printing and the driver summary use the
// colored console helpers in globals.go instead.
var Log hclog.Logger = hclog.New(&hclog.LoggerOptions{
	Name:            "shipwright",
	Level:           hclog.Warn,
	Output:          os.Stderr,
	IncludeLocation: false,
})

// InitLogging re-creates Log at the level named by SHIPWRIGHT_LOG_LEVEL
// (trace|debug|info|warn|error), defaulting to debug when Debug is set
// and to warn otherwise.
func InitLogging() {
	levelName := os.Getenv("SHIPWRIGHT_LOG_LEVEL")
	if levelName == "" {
		if Debug {
			levelName = "debug"
		} else {
			levelName = "warn"
		}
	}
	Log = hclog.New(&hclog.LoggerOptions{
		Name:            "shipwright",
		Level:           hclog.LevelFromString(levelName),
		Output:          os.Stderr,
		IncludeLocation: Debug,
	})
}
