package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"syscall"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aristath/bullseye/internal/command"
	"github.com/aristath/bullseye/internal/config"
	"github.com/aristath/bullseye/internal/console"
	"github.com/aristath/bullseye/internal/ctxlog"
	"github.com/aristath/bullseye/internal/events"
	"github.com/aristath/bullseye/internal/metrics"
	"github.com/aristath/bullseye/internal/scheduler"
	"github.com/aristath/bullseye/internal/targetfile"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = ""

func main() {
	// Create signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pm := command.NewProcessManager()

	globalPath, err := config.GlobalPath()
	if err != nil {
		slog.Warn("global config disabled", "error", err)
	}

	a := &app{
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		getenv:      os.Getenv,
		globalPath:  globalPath,
		projectPath: config.ProjectPath(),
		pm:          pm,
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			// Restore default signal handling so a second Ctrl+C forces exit.
			stop()
			if err := pm.KillAll(); err != nil {
				slog.Error("killing subprocesses", "error", err)
			}
		case <-done:
		}
	}()

	code := a.execute(ctx, os.Args[1:])
	close(done)
	os.Exit(code)
}

// usageError marks errors caused by how bullseye was invoked or configured.
type usageError struct{ err error }

func (e usageError) Error() string   { return e.err.Error() }
func (e usageError) Unwrap() []error { return []error{e.err, scheduler.ErrInvalidUsage} }

// options mirrors the command-line flags.
type options struct {
	clear            bool
	dryRun           bool
	listDependencies bool
	listInputs       bool
	listTargets      bool
	listTree         bool
	noColor          bool
	parallel         bool
	skipDependencies bool
	verbose          bool
	appveyor         bool
	teamcity         bool
	travis           bool
	file             string
	metricsFile      string
	logLevel         string
	logFormat        string
	shell            string
	saveConfig       bool
}

type app struct {
	stdout      io.Writer
	stderr      io.Writer
	getenv      func(string) string
	globalPath  string
	projectPath string
	pm          *command.ProcessManager

	args    []string
	palette console.Palette
	hasPal  bool
}

// execute runs the CLI and returns the process exit code.
func (a *app) execute(ctx context.Context, args []string) int {
	a.args = args
	root := a.newRootCmd()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var failed *scheduler.TargetFailedError
	if !errors.As(err, &failed) {
		// Target failures have already been reported by the run.
		a.printError(err)
	}
	return exitCode(err)
}

// exitCode maps an error to the process exit code: usage and configuration
// errors are 2, target failures and anything else 1.
func exitCode(err error) int {
	var failed *scheduler.TargetFailedError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &failed):
		return 1
	case scheduler.IsConfigError(err):
		return 2
	default:
		return 1
	}
}

func (a *app) printError(err error) {
	p := a.palette
	if !a.hasPal {
		p = console.NewPalette(a.stderr, true, console.HostUnknown)
	}
	fmt.Fprintln(a.stderr, p.Prefix.Render("bullseye:")+" "+p.Failed.Render(err.Error()))
}

func (a *app) newRootCmd() *cobra.Command {
	o := &options{}

	cmd := &cobra.Command{
		Use:   "bullseye [options] [<targets>...]",
		Short: "Run targets and their dependencies",
		Long: `bullseye runs the named targets from a targets file, each after its
dependencies. With no targets, "default" is run.`,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, names []string) error {
			return a.run(cmd.Context(), cmd.Flags(), o, names)
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &scheduler.ConfigError{
			Kind: scheduler.ErrUnknownOption,
			Msg:  fmt.Sprintf("%v. \"--help\" for usage.", err),
		}
	})

	f := cmd.Flags()
	f.BoolVarP(&o.clear, "clear", "c", false, "Clear the console before execution")
	f.BoolVarP(&o.dryRun, "dry-run", "n", false, "Do a dry run without executing actions")
	f.BoolVarP(&o.listDependencies, "list-dependencies", "D", false, "List all (or specified) targets and dependencies, then exit")
	f.BoolVarP(&o.listInputs, "list-inputs", "I", false, "List all (or specified) targets and inputs, then exit")
	f.BoolVarP(&o.listTargets, "list-targets", "T", false, "List all (or specified) targets, then exit")
	f.BoolVarP(&o.listTree, "list-tree", "t", false, "List all (or specified) targets and dependency trees, then exit")
	f.BoolVarP(&o.noColor, "no-color", "N", false, "Disable colored output")
	f.BoolVarP(&o.parallel, "parallel", "p", false, "Run targets in parallel")
	f.BoolVarP(&o.skipDependencies, "skip-dependencies", "s", false, "Do not run targets' dependencies")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "Enable verbose output")
	f.BoolVar(&o.appveyor, "appveyor", false, "Force AppVeyor mode (normally auto-detected)")
	f.BoolVar(&o.teamcity, "teamcity", false, "Force TeamCity mode (normally auto-detected)")
	f.BoolVar(&o.travis, "travis", false, "Force Travis CI mode (normally auto-detected)")
	f.StringVarP(&o.file, "file", "f", "", "Targets file (default \"bullseye.hcl\")")
	f.StringVar(&o.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile after the run")
	f.StringVar(&o.logLevel, "log-level", "", "Diagnostic log level: debug, info, warn, error")
	f.StringVar(&o.logFormat, "log-format", "", "Diagnostic log format: text, json")
	f.StringVar(&o.shell, "shell", "", "Shell used for run strings (default \"sh\")")
	f.BoolVar(&o.saveConfig, "save-config", false, "Save the effective settings to the project config, then exit")

	return cmd
}

// loadConfig merges defaults, config files and explicitly set flags.
func (a *app) loadConfig(flags *pflag.FlagSet, o *options) (*config.Config, error) {
	cfg, err := config.Load(a.globalPath, a.projectPath)
	if err != nil {
		return nil, usageError{err}
	}

	boolFlags := []struct {
		name string
		dst  *bool
		val  bool
	}{
		{"parallel", &cfg.Parallel, o.parallel},
		{"verbose", &cfg.Verbose, o.verbose},
		{"no-color", &cfg.NoColor, o.noColor},
		{"skip-dependencies", &cfg.SkipDependencies, o.skipDependencies},
	}
	for _, b := range boolFlags {
		if flags.Changed(b.name) {
			*b.dst = b.val
		}
	}

	stringFlags := []struct {
		name string
		dst  *string
		val  string
	}{
		{"file", &cfg.TargetsFile, o.file},
		{"metrics-file", &cfg.MetricsFile, o.metricsFile},
		{"log-level", &cfg.LogLevel, o.logLevel},
		{"log-format", &cfg.LogFormat, o.logFormat},
		{"shell", &cfg.Shell, o.shell},
	}
	for _, s := range stringFlags {
		if flags.Changed(s.name) {
			*s.dst = s.val
		}
	}

	switch {
	case o.appveyor:
		cfg.Host = "appveyor"
	case o.teamcity:
		cfg.Host = "teamcity"
	case o.travis:
		cfg.Host = "travis"
	}

	if err := cfg.Validate(); err != nil {
		return nil, usageError{err}
	}
	return cfg, nil
}

func (a *app) run(ctx context.Context, flags *pflag.FlagSet, o *options, names []string) error {
	cfg, err := a.loadConfig(flags, o)
	if err != nil {
		return err
	}

	logger := ctxlog.New(cfg.LogLevel, cfg.LogFormat, a.stderr)
	ctx = ctxlog.WithLogger(ctx, logger)

	if o.saveConfig {
		if err := config.Save(cfg, a.projectPath); err != nil {
			return err
		}
		logger.Info("saved configuration", "path", a.projectPath)
		return nil
	}

	if o.clear {
		termenv.NewOutput(a.stdout).ClearScreen()
	}

	host, detected := console.ParseHost(cfg.Host), false
	if host == console.HostUnknown {
		host, detected = console.DetectHost(a.getenv), true
	}

	a.palette = console.NewPalette(a.stdout, cfg.NoColor, host)
	a.hasPal = true

	// The reporter and command output share stdout; the palette still
	// inspects the real stream for terminal support.
	out := &lockedWriter{w: a.stdout}
	reporter := console.NewReporter(out, a.palette, console.Options{
		SkipDependencies: cfg.SkipDependencies,
		DryRun:           o.dryRun,
		Parallel:         cfg.Parallel,
		Verbose:          cfg.Verbose,
	})

	reporter.Note("Bullseye version: " + buildVersion())
	hostLine := "Host: " + host.String()
	if host != console.HostUnknown {
		if detected {
			hostLine += " (detected)"
		} else {
			hostLine += " (forced)"
		}
	}
	reporter.Note(hostLine)
	reporter.Note("OS: " + runtime.GOOS)
	reporter.Note("Args: " + strings.Join(a.args, " "))

	file, err := targetfile.Load(ctx, cfg.TargetsFile, targetfile.Options{Shell: cfg.Shell})
	if err != nil {
		return err
	}

	bus := events.NewBus()
	runner := command.NewRunner(a.pm,
		command.WithOutput(out, a.stderr),
		command.WithPublisher(bus),
		command.WithPrefix(func(name string) string {
			return a.palette.Target.Render(name+":") + " "
		}),
	)

	graph := scheduler.NewGraph()
	if err := file.Register(graph, runner); err != nil {
		bus.Close()
		return err
	}

	if o.listTree || o.listDependencies || o.listInputs || o.listTargets {
		bus.Close()
		roots := names
		if len(roots) == 0 {
			roots = graph.Names()
		}
		opts := console.ListOptions{ShowInputs: o.listInputs}
		switch {
		case o.listTree:
			opts.MaxDepth, opts.MaxInputsDepth = math.MaxInt, math.MaxInt
		case o.listDependencies:
			opts.MaxDepth = 1
		}
		fmt.Fprint(a.stdout, console.Tree(graph, roots, opts, a.palette))
		return nil
	}

	if len(names) == 0 {
		names = []string{"default"}
	}

	var (
		wg       sync.WaitGroup
		recorder *metrics.Recorder
	)
	logged := []<-chan events.Event{bus.SubscribeTopics(1024, events.TopicTarget, events.TopicRun)}
	if logger.Enabled(ctx, slog.LevelDebug) {
		logged = append(logged, bus.Subscribe(events.TopicOutput, 4096))
	}
	for _, ch := range logged {
		wg.Add(1)
		go func() {
			defer wg.Done()
			events.Log(ctx, logger, ch)
		}()
	}
	if cfg.MetricsFile != "" {
		recorder = metrics.NewRecorder()
		metricEvents := recorder.Subscribe(bus, 1024)
		wg.Add(1)
		go func() {
			defer wg.Done()
			recorder.Consume(metricEvents)
		}()
	}

	_, runErr := graph.Run(ctx, names, scheduler.RunOptions{
		SkipDependencies: cfg.SkipDependencies,
		DryRun:           o.dryRun,
		Parallel:         cfg.Parallel,
		Reporter:         scheduler.MultiReporter{reporter, events.NewBusReporter(bus)},
		MessageOnly:      command.IsExitError,
	})

	bus.Close()
	wg.Wait()

	if dropped := bus.Dropped(); dropped > 0 {
		logger.Warn("run events dropped", "count", dropped)
	}

	if recorder != nil {
		if err := recorder.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Error("writing metrics", "path", cfg.MetricsFile, "error", err)
			if runErr == nil {
				return err
			}
		}
	}

	return runErr
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func buildVersion() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}
