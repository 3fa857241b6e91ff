package shipwright

import (
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"
)

// DriverOptions mirrors the CLI flags named in §6.
type DriverOptions struct {
	UseHead        bool
	AllowDownloads bool
	Recurse        bool
	KeepGoing      bool
	PrintSummary   bool
	DryRun         bool
	Force          bool
}

// RunContext bundles the collaborators the driver routes each action to.
type RunContext struct {
	Exec          *Executor
	Locator       *Locator
	DB            *StatusDatabase
	FS            FileSystem
	ScriptsDir    string
	PortsDir      string
	TripletsDir   string
	BuildTreesDir string
	PackagesDir   string
	InstalledDir  string
}

// RunInstallPlan implements §4.8: iterate the plan in order, dispatch each
// action, enforce keep-going, and print the summary.
func RunInstallPlan(rc *RunContext, plan *ActionPlan, opts DriverOptions) (exitCode int, err error) {
	metrics := NewMetrics()

	for _, action := range plan.Actions {
		isCritical.Store(1)
		start := time.Now()

		var result BuildResult
		var runErr error

		switch {
		case action.Remove != nil:
			result, runErr = removeAction(rc, action.Remove, opts)
		case action.Install != nil:
			result, runErr = installAction(rc, action.Install, opts)
		}

		elapsed := time.Since(start)
		isCritical.Store(0)

		if runErr != nil {
			return 1, runErr
		}

		metrics.Record(action.Spec(), result, elapsed)

		if result != BuildSucceeded {
			printTroubleshooting(action, result)
			if !opts.KeepGoing {
				if opts.PrintSummary {
					printSummary(metrics)
				}
				return 1, nil
			}
		}
	}

	if opts.PrintSummary {
		printSummary(metrics)
	}

	for result, count := range metrics.Counts() {
		if result != BuildSucceeded && count > 0 {
			return 1, nil
		}
	}
	return 0, nil
}

func installAction(rc *RunContext, action *InstallPlanAction, opts DriverOptions) (BuildResult, error) {
	spec := action.Spec
	switch action.Kind {
	case KindAlreadyInstalled:
		colArrow.Print("-> ")
		colInfo.Printf("%s is already installed\n", spec.PackageSpec)
		if opts.UseHead && action.RequestType == RequestUser {
			colWarn.Println("   --head requested but skipped: package is already installed")
		}
		return BuildSucceeded, nil

	case KindInstall:
		if opts.DryRun {
			colArrow.Print("-> ")
			colInfo.Printf("(dry run) would install %s from staged binary\n", spec.PackageSpec)
			return BuildSucceeded, nil
		}
		bcf, err := ReadBinaryControlFile(rc.PackagesDir+"/"+spec.PackageSpec.FullStem()+"/CONTROL", spec.Triplet)
		if err != nil {
			return BuildFailed, nil
		}
		result, err := InstallPackage(rc.FS, rc.InstalledDir, rc.PackagesDir, spec.PackageSpec, bcf, rc.DB, opts.Force)
		if err != nil {
			return BuildNullValue, err
		}
		if result == InstallFileConflicts {
			return BuildFileConflicts, nil
		}
		colSuccess.Printf("-> installed %s\n", spec.PackageSpec)
		return BuildSucceeded, nil

	case KindBuildAndInstall:
		if opts.DryRun {
			colArrow.Print("-> ")
			colInfo.Printf("(dry run) would build and install %s\n", spec.PackageSpec)
			return BuildSucceeded, nil
		}
		outcome, err := BuildPackage(rc.Exec, rc.Locator, rc.DB, action.Source, spec, rc.ScriptsDir, rc.PortsDir, rc.TripletsDir, rc.BuildTreesDir, rc.PackagesDir, opts)
		if err != nil {
			return BuildNullValue, err
		}
		if outcome.Result == BuildCascadedDueToMissingDependencies {
			names := make([]string, len(outcome.Missing))
			for i, m := range outcome.Missing {
				names[i] = m.String()
			}
			colError.Printf("-> %s cascaded: missing %s\n", spec.PackageSpec, strings.Join(names, ", "))
			return outcome.Result, nil
		}
		if outcome.Result != BuildSucceeded {
			return outcome.Result, nil
		}
		result, err := InstallPackage(rc.FS, rc.InstalledDir, rc.PackagesDir, spec.PackageSpec, outcome.BCF, rc.DB, opts.Force)
		if err != nil {
			return BuildNullValue, err
		}
		if result == InstallFileConflicts {
			return BuildFileConflicts, nil
		}
		colSuccess.Printf("-> built and installed %s\n", spec.PackageSpec)
		return BuildSucceeded, nil
	}
	return BuildNullValue, newInternalError("driver.go", 0, "unreachable action kind")
}

func removeAction(rc *RunContext, action *RemovePlanAction, opts DriverOptions) (BuildResult, error) {
	if opts.DryRun {
		colArrow.Print("-> ")
		colInfo.Printf("(dry run) would remove %s\n", action.Spec)
		return BuildSucceeded, nil
	}
	if err := RemovePackage(rc.FS, rc.InstalledDir, action.Spec, rc.DB); err != nil {
		return BuildNullValue, err
	}
	colSuccess.Printf("-> removed %s\n", action.Spec)
	return BuildSucceeded, nil
}

func printTroubleshooting(action Action, result BuildResult) {
	if action.Install == nil || action.Install.RequestType != RequestUser {
		return
	}
	colError.Printf(
		"\nerror: building/installing %s failed with %s\nPlease open an issue at https://github.com/sauzeros/shipwright/issues including the above log and your %s version.\n",
		action.Spec(), result, version,
	)
}

func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

func printSummary(metrics *Metrics) {
	width := terminalWidth()
	colSuccess.Println(strings.Repeat("=", min(width, 60)))
	colSuccess.Println("SUMMARY")
	for _, ev := range metrics.Events() {
		line := fmt.Sprintf("%s: %s: %s", ev.Spec, ev.Result, ev.Elapsed.Round(time.Millisecond))
		if ev.Result == BuildSucceeded {
			colSuccess.Println(line)
		} else {
			colError.Println(line)
		}
	}
	counts := metrics.Counts()
	colInfo.Println(strings.Repeat("-", min(width, 60)))
	for _, r := range []BuildResult{BuildSucceeded, BuildFailed, BuildPostBuildChecksFailed, BuildFileConflicts, BuildCascadedDueToMissingDependencies} {
		if c := counts[r]; c > 0 {
			colInfo.Printf("%s: %d\n", r, c)
		}
	}
}
