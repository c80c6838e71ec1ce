package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"bnrun/pkg/config"
	"bnrun/pkg/manager"
	"bnrun/pkg/plan"
	"bnrun/pkg/script"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	a := newApp(in, out, errOut)
	root := newRootCmd(a)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(errOut, "bnrun: %v\n", err)
		return exitCode(err)
	}
	return 0
}

// exitCode propagates the exit status of a failed command; every other error exits 1.
func exitCode(err error) int {
	var ce *plan.CommandError
	if errors.As(err, &ce) && ce.ExitCode > 0 {
		return ce.ExitCode
	}
	return 1
}

type app struct {
	v *viper.Viper

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	// flags that are not config keys
	configPath string
	skip       []string
	dry        bool
	explain    bool
	watch      bool

	// resolved in PersistentPreRunE
	cfg config.Config
	log *slog.Logger

	// interactive reports whether stdin and stdout are terminals.
	interactive func() bool
	pick        func(reg *script.Registry, dir string) (string, error)
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	a := &app{
		v:      config.New(),
		in:     in,
		out:    out,
		errOut: errOut,
		log:    slog.New(slog.DiscardHandler),
	}
	a.interactive = func() bool { return isTerminal(a.in) && isTerminal(a.out) }
	a.pick = func(reg *script.Registry, dir string) (string, error) {
		return manager.PickScript(reg, dir, manager.PickerOptions{Input: a.in, Output: a.out})
	}
	return a
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "bnrun [script]",
		Short: "Plan and run scripts declared in a .bnrun directory",
		Long: `bnrun resolves a script name against the definitions in the nearest .bnrun directory,
expands pre/command/post phases and nested "bnrun <script>" invocations into a flat plan,
then runs each command in order, stopping at the first failure.

Parameterized scripts are invoked as name:value, e.g. "bnrun deploy:prod" for "deploy:${env}".`,
		Example: `  bnrun build
  bnrun deploy:prod --dry
  bnrun all --skip 'lint*' --skip 'echo *'
  bnrun list`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) == 1 {
				target = args[0]
			}
			return a.runTarget(cmd.Context(), target)
		},
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	pf := root.PersistentFlags()
	pf.StringP("dir", "d", ".bnrun", "Scripts directory (searched upward from the working directory)")
	pf.String("shell", "sh", "Shell used to run each command as <shell> -c <command>")
	pf.String("self", "bnrun", "Command prefix that marks a nested script invocation")
	pf.String("color", "auto", "Colorize output: auto|always|never")
	pf.Bool("debug", false, "Enable debug logging")
	pf.BoolP("verbose", "v", false, "Print each step before running it")
	pf.Int("max-depth", 64, "Maximum nesting depth of script invocations")
	pf.Duration("timeout", 0, "Per-command timeout (0 disables)")
	pf.StringVar(&a.configPath, "config", "", "Config file (default: ./.bnrun.yaml or ~/.bnrun.yaml)")
	pf.StringArrayVarP(&a.skip, "skip", "s", nil, "Skip steps whose script name or command matches this glob (repeatable)")

	f := root.Flags()
	f.BoolVarP(&a.dry, "dry", "n", false, "Print the plan instead of running it")
	f.BoolVar(&a.explain, "explain", false, "Print one aligned line per step instead of running")
	f.BoolVarP(&a.watch, "watch", "w", false, "Re-run the script whenever a definition file changes")

	root.AddCommand(newListCmd(a), newConfigCmd(a), newVersionCmd())
	return root
}

// flagKeys maps flag names onto config keys.
var flagKeys = map[string]string{
	"dir":       config.KeyDir,
	"shell":     config.KeyShell,
	"self":      config.KeySelf,
	"color":     config.KeyColor,
	"debug":     config.KeyDebug,
	"verbose":   config.KeyVerbose,
	"max-depth": config.KeyMaxDepth,
	"timeout":   config.KeyCommandTimeout,
}

func (a *app) setup(cmd *cobra.Command) error {
	for name, key := range flagKeys {
		if fl := cmd.Flags().Lookup(name); fl != nil {
			if err := a.v.BindPFlag(key, fl); err != nil {
				return fmt.Errorf("bind flag --%s: %w", name, err)
			}
		}
	}

	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return err
	}
	// Skip patterns bypass viper so brace alternations ({a,b}) are never split as CSV.
	if cmd.Flags().Changed("skip") {
		cfg.Skip = a.skip
	}
	a.cfg = cfg

	level := slog.LevelWarn
	switch {
	case cfg.Debug:
		level = slog.LevelDebug
	case cfg.Verbose:
		level = slog.LevelInfo
	}
	a.log = slog.New(slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: level}))
	if cfg.ConfigFile != "" {
		a.log.Debug("config loaded", "file", cfg.ConfigFile)
	}
	return nil
}

func (a *app) runTarget(ctx context.Context, target string) error {
	if target == "" {
		if !a.interactive() {
			return errors.New("no script given (run 'bnrun list' to see available scripts)")
		}
		reg, dir, err := manager.LoadRegistry("", a.cfg.Dir)
		if err != nil {
			return err
		}
		if target, err = a.pick(reg, dir); err != nil {
			return err
		}
	}

	opts := manager.RunOptions{
		Target:  target,
		Config:  a.cfg,
		DryRun:  a.dry,
		Explain: a.explain,
		Color:   a.cfg.UseColor(isTerminal(a.out)),
		Stdin:   a.in,
		Stdout:  a.out,
		Stderr:  a.errOut,
		Logger:  a.log,
	}

	if !a.watch {
		_, err := manager.RunScript(ctx, opts)
		return err
	}

	dir, err := manager.FindScriptsDir("", a.cfg.Dir)
	if err != nil {
		return err
	}
	return manager.Watch(ctx, manager.WatchOptions{
		Dir:      dir,
		Debounce: a.cfg.WatchDebounce,
		Out:      a.errOut,
		Logger:   a.log,
	}, func(ctx context.Context) error {
		_, err := manager.RunScript(ctx, opts)
		if err != nil {
			fmt.Fprintf(a.errOut, "bnrun: %v\n", err)
		}
		return err
	})
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the scripts defined in the scripts directory",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			infos, dir, err := manager.ListScripts("", a.cfg.Dir)
			if err != nil {
				return err
			}
			a.log.Debug("listing scripts", "dir", dir, "count", len(infos))
			fmt.Fprintln(a.out, manager.RenderScriptList(infos, a.cfg.UseColor(isTerminal(a.out))))
			return nil
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			src := a.cfg.ConfigFile
			if src == "" {
				src = "(none)"
			}
			fmt.Fprintf(a.out, "# config file: %s\n", src)
			for _, k := range config.Keys() {
				v, err := a.cfg.Lookup(k)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s = %s\n", k, v)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the bnrun version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "bnrun %s\n", version)
			return nil
		},
	}
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
