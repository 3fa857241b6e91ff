package shipwright

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
)

// parseSpecArg parses "name:triplet" or "name:triplet[feature1,feature2]"
// into a FullPackageSpec.
func parseSpecArg(arg string) (FullPackageSpec, error) {
	name := arg
	var features []string

	if idx := strings.Index(arg, "["); idx >= 0 && strings.HasSuffix(arg, "]") {
		name = arg[:idx]
		inner := arg[idx+1 : len(arg)-1]
		for _, f := range strings.Split(inner, ",") {
			f = strings.TrimSpace(f)
			if f != "" {
				features = append(features, f)
			}
		}
	}

	parts := strings.SplitN(name, ":", 2)
	if len(parts) != 2 {
		return FullPackageSpec{}, &InputError{Msg: fmt.Sprintf("expected name:triplet, got %q", arg)}
	}
	triplet, err := TripletFromCanonical(parts[1])
	if err != nil {
		return FullPackageSpec{}, err
	}
	if err := ValidateTriplet(TripletsDir, triplet); err != nil {
		return FullPackageSpec{}, err
	}
	spec, err := NewPackageSpec(parts[0], triplet)
	if err != nil {
		return FullPackageSpec{}, err
	}
	return NewFullPackageSpec(spec, features), nil
}

func parseSpecArgs(args []string) ([]FullPackageSpec, error) {
	out := make([]FullPackageSpec, 0, len(args))
	for _, a := range args {
		spec, err := parseSpecArg(a)
		if err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	return out, nil
}

func newRunContext(ctx context.Context, db *StatusDatabase) *RunContext {
	exec := NewExecutor(ctx)
	locator := NewLocator(RootDir, exec, nil)
	return &RunContext{
		Exec:          exec,
		Locator:       locator,
		DB:            db,
		FS:            OS,
		ScriptsDir:    ScriptsDir,
		PortsDir:      PortsDir,
		TripletsDir:   TripletsDir,
		BuildTreesDir: BuildTreesDir,
		PackagesDir:   PackagesDir,
		InstalledDir:  InstalledDir,
	}
}

// NewRootCommand assembles the cobra command tree. The core install engine
// (plan.go, build.go, install.go, driver.go) has no cobra dependency of its
// own; this file is the thin collaborator translating flags into the
// structures those packages expect, per §6.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "shipwright",
		Short:        "source-based C/C++ package manager install engine",
		Version:      VersionString(),
		SilenceUsage: true,
	}

	root.AddCommand(
		newInstallCommand(),
		newRemoveCommand(),
		newBuildCommand(),
		newListCommand(),
		newStatusCommand(),
		newSearchCommand(),
		newIntegrateCommand(),
		newDependInfoCommand(),
		newLockCommand(),
		newWatchCommand(),
	)
	return root
}

func newInstallCommand() *cobra.Command {
	var opts DriverOptions
	var fromLock string
	var noDownloads bool

	cmd := &cobra.Command{
		Use:   "install [spec...]",
		Short: "install one or more package specs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var requests []FullPackageSpec
			if fromLock != "" {
				lock, err := ReadLockFile(fromLock)
				if err != nil {
					return err
				}
				requests, err = RequestsFromLock(lock)
				if err != nil {
					return err
				}
			} else {
				var err error
				requests, err = parseSpecArgs(args)
				if err != nil {
					return err
				}
			}
			if len(requests) == 0 {
				return &InputError{Msg: "no packages requested"}
			}

			db, err := LoadStatusDatabase(RootDir)
			if err != nil {
				return err
			}
			defer db.Close()

			for _, req := range requests {
				if sp, ok := db.Find(req.PackageSpec, ""); ok && sp.IsHalf() {
					return &InputError{Msg: fmt.Sprintf("%s is in state %s from a prior crash; remove it before reinstalling", req.PackageSpec, sp.State)}
				}
			}

			plan, err := BuildPlan(requests, db, NewFilesystemPortProvider(PortsDir), PackagesDir)
			if err != nil {
				return err
			}
			printPlan(plan)

			opts.AllowDownloads = !noDownloads
			rc := newRunContext(cmd.Context(), db)
			opts.PrintSummary = true
			code, err := RunInstallPlan(rc, plan, opts)
			if err != nil {
				return err
			}
			if code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print the plan without executing it")
	cmd.Flags().BoolVar(&opts.UseHead, "head", false, "build from HEAD rather than the pinned version")
	cmd.Flags().BoolVar(&noDownloads, "no-downloads", false, "forbid the portfile from performing downloads")
	cmd.Flags().BoolVar(&opts.Recurse, "recurse", false, "accepted for compatibility; has no effect (removals needed for a rebuild are always planned)")
	cmd.Flags().BoolVar(&opts.KeepGoing, "keep-going", false, "continue installing remaining packages after a failure")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite conflicting files instead of failing")
	cmd.Flags().StringVar(&fromLock, "from-lock", "", "replay a lockfile snapshot instead of naming specs")
	return cmd
}

func newRemoveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove [spec...]",
		Short: "remove one or more installed packages",
		RunE: func(cmd *cobra.Command, args []string) error {
			requests, err := parseSpecArgs(args)
			if err != nil {
				return err
			}
			db, err := LoadStatusDatabase(RootDir)
			if err != nil {
				return err
			}
			defer db.Close()

			for _, r := range requests {
				isCritical.Store(1)
				err := RemovePackage(OS, InstalledDir, r.PackageSpec, db)
				isCritical.Store(0)
				if err != nil {
					return err
				}
				colSuccess.Printf("-> removed %s\n", r.PackageSpec)
			}
			return nil
		},
	}
	return cmd
}

func newBuildCommand() *cobra.Command {
	var checksOnly bool
	cmd := &cobra.Command{
		Use:   "build <spec>",
		Short: "build a single package without installing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := parseSpecArg(args[0])
			if err != nil {
				return err
			}
			db, err := LoadStatusDatabase(RootDir)
			if err != nil {
				return err
			}
			defer db.Close()

			source, err := LoadPort(PortsDir, spec.Name)
			if err != nil {
				return err
			}

			if checksOnly {
				info, err := ReadBuildInfo(PackagesDir + "/" + spec.PackageSpec.FullStem())
				if err != nil {
					return err
				}
				issues := PostBuildLint(PackagesDir+"/"+spec.PackageSpec.FullStem(), info)
				for _, msg := range issues {
					colWarn.Println(msg)
				}
				if len(issues) > 0 {
					return &InputError{Msg: "post-build checks failed"}
				}
				colSuccess.Println("post-build checks passed")
				return nil
			}

			rc := newRunContext(cmd.Context(), db)
			isCritical.Store(1)
			outcome, err := BuildPackage(rc.Exec, rc.Locator, db, source, spec, ScriptsDir, PortsDir, TripletsDir, BuildTreesDir, PackagesDir, DriverOptions{})
			isCritical.Store(0)
			if err != nil {
				return err
			}
			colInfo.Printf("build result: %s\n", outcome.Result)
			if outcome.Result != BuildSucceeded {
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&checksOnly, "checks-only", false, "only run post-build lint against an existing staging tree")
	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list [filter]",
		Short: "list installed packages",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := LoadStatusDatabase(RootDir)
			if err != nil {
				return err
			}
			defer db.Close()
			filter := ""
			if len(args) > 0 {
				filter = args[0]
			}
			for _, sp := range db.IterInstalled() {
				if filter != "" && !strings.Contains(sp.Spec.Name, filter) {
					continue
				}
				fmt.Printf("%s\t%s\n", sp.Spec, sp.Version)
			}
			return nil
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "show half-installed/half-uninstalled packages left by a crash",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := LoadStatusDatabase(RootDir)
			if err != nil {
				return err
			}
			defer db.Close()
			any := false
			for spec, state := range db.HalfInstalled() {
				colWarn.Printf("%s: %s\n", spec, state)
				any = true
			}
			if !any {
				colSuccess.Println("no packages are in a half-installed state")
			}
			return nil
		},
	}
}

func newSearchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "search the ports directory by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := os.ReadDir(PortsDir)
			if err != nil {
				return err
			}
			for _, e := range entries {
				if strings.Contains(e.Name(), args[0]) {
					fmt.Println(e.Name())
				}
			}
			return nil
		},
	}
}

func newIntegrateCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "integrate", Short: "IDE integration marker (status/install/remove)"}
	cmd.AddCommand(
		&cobra.Command{
			Use: "status", RunE: func(cmd *cobra.Command, args []string) error {
				installed, at, err := IntegrateStatus(RootDir)
				if err != nil {
					return err
				}
				if !installed {
					colInfo.Println("integration is not installed")
					return nil
				}
				colInfo.Printf("integration installed at %s\n", at.Format(time.RFC3339))
				return nil
			},
		},
		&cobra.Command{
			Use: "install", RunE: func(cmd *cobra.Command, args []string) error {
				return IntegrateInstall(RootDir)
			},
		},
		&cobra.Command{
			Use: "remove", RunE: func(cmd *cobra.Command, args []string) error {
				return IntegrateRemove(RootDir)
			},
		},
	)
	return cmd
}

func newDependInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "depend-info <spec>",
		Short: "print the flattened dependency closure for a spec",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := parseSpecArg(args[0])
			if err != nil {
				return err
			}
			deps, err := DependInfo(spec, NewFilesystemPortProvider(PortsDir))
			if err != nil {
				return err
			}
			for _, d := range deps {
				fmt.Println(d)
			}
			return nil
		},
	}
}

func newLockCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "snapshot currently installed packages to a lockfile",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := LoadStatusDatabase(RootDir)
			if err != nil {
				return err
			}
			defer db.Close()
			lock := SnapshotLock(db)
			if err := WriteLockFile(out, lock); err != nil {
				return err
			}
			colSuccess.Printf("wrote %d packages to %s\n", len(lock.Packages), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "shipwright.lock.yaml", "lockfile path to write")
	return cmd
}

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <spec>",
		Short: "rebuild a port whenever its CONTROL/portfile.cmake changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := parseSpecArg(args[0])
			if err != nil {
				return err
			}
			portDir := PortsDir + "/" + spec.Name
			return Watch(portDir, func() error {
				db, err := LoadStatusDatabase(RootDir)
				if err != nil {
					return err
				}
				defer db.Close()
				source, err := LoadPort(PortsDir, spec.Name)
				if err != nil {
					return err
				}
				rc := newRunContext(cmd.Context(), db)
				outcome, err := BuildPackage(rc.Exec, rc.Locator, db, source, spec, ScriptsDir, PortsDir, TripletsDir, BuildTreesDir, PackagesDir, DriverOptions{})
				if err != nil {
					return err
				}
				colInfo.Printf("build result: %s\n", outcome.Result)
				return nil
			})
		},
	}
}

func printPlan(plan *ActionPlan) {
	colInfo.Println("The following packages will be built and installed:")
	for _, a := range plan.Actions {
		switch {
		case a.Remove != nil:
			color.Red.Printf("  remove    %s\n", a.Remove.Spec)
		case a.Install != nil:
			tag := "*"
			if a.Install.RequestType == RequestUser {
				tag = " "
			}
			fmt.Printf(" %s %-20s %s\n", tag, a.Install.Kind, a.Install.Spec.PackageSpec)
		}
	}
}

// Execute runs the CLI, wiring the signal-handling/critical-section guard
// around whatever the selected command does. Outside a critical section a
// SIGINT/SIGTERM cancels the run context. Inside one (isCritical set) the
// signal does not cancel: the handler warns, and a second signal within
// five seconds exits the process with status 130; otherwise the signal is
// dropped and the run carries on.
func Execute() int {
	InitLogging()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range sigs {
			if isCritical.Load() == 1 {
				colArrow.Print("\n-> ")
				colError.Println("critical operation in progress; press ctrl-c again to force exit")
				select {
				case <-sigs:
					os.Exit(130)
				case <-time.After(5 * time.Second):
				}
				continue
			}
			colArrow.Print("\n-> ")
			colWarn.Printf("received %v, cancelling\n", sig)
			cancel()
			return
		}
	}()

	configPath := ConfigFile
	if root := os.Getenv("SHIPWRIGHT_ROOT"); root != "" {
		configPath = root + "/etc/shipwright.conf"
	}
	cfg, err := LoadConfig(configPath)
	if err != nil {
		colError.Printf("failed to load config: %v\n", err)
		return 1
	}
	InitConfig(cfg)
	InitLogging()

	root := NewRootCommand()
	root.SetContext(ctx)
	if err := root.Execute(); err != nil {
		colError.Println(err.Error())
		return 1
	}
	return 0
}
