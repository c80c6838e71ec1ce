package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"bnrun/pkg/config"
	"bnrun/pkg/plan"
	"bnrun/pkg/script"
)

// RunOptions controls how a target is planned and executed.
type RunOptions struct {
	// Target is the requested invocation, e.g. "build" or "deploy:prod".
	Target string

	Config config.Config

	// WorkDir is where the search for the scripts directory starts. Defaults to the working directory.
	WorkDir string

	// DryRun prints the plan instead of executing it.
	DryRun bool

	// Explain prints one aligned line per step instead of executing.
	Explain bool

	// Color enables lipgloss styling of rendered output.
	Color bool

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Runner, when non-nil, replaces the default shell runner.
	Runner plan.Runner

	Logger *slog.Logger
}

// RunResult describes the outcome of RunScript.
type RunResult struct {
	ScriptsDir string
	Plan       plan.Plan
	Report     plan.Report
}

// RunScript loads the scripts directory, builds the plan for opt.Target, applies skip patterns,
// then executes, dry-runs or explains it.
func RunScript(ctx context.Context, opt RunOptions) (RunResult, error) {
	target := strings.TrimSpace(opt.Target)
	if target == "" {
		return RunResult{}, errors.New("target script is required")
	}
	log := loggerOrDiscard(opt.Logger)

	reg, dir, err := LoadRegistry(opt.WorkDir, opt.Config.Dir)
	if err != nil {
		return RunResult{}, err
	}
	res := RunResult{ScriptsDir: dir}

	p, err := BuildPlan(reg, target, opt.Config, log)
	if err != nil {
		return res, err
	}
	res.Plan = p

	r := plan.NewRenderer(opt.Color)
	out := opt.Stdout
	if out == nil {
		out = io.Discard
	}

	if opt.Explain {
		for _, ln := range r.ExplainLines(p) {
			fmt.Fprintln(out, ln)
		}
		res.Report.Skipped = p.Skipped()
		return res, nil
	}

	runner := opt.Runner
	if runner == nil {
		runner = &plan.ExecRunner{
			Shell:   opt.Config.Shell,
			Dir:     filepath.Dir(dir),
			Timeout: opt.Config.CommandTimeout,
			Stdin:   opt.Stdin,
			Stdout:  opt.Stdout,
			Stderr:  opt.Stderr,
			Logger:  log,
		}
	}

	e := &plan.Engine{
		Runner:   runner,
		Renderer: r,
		Out:      out,
		Verbose:  opt.Config.Verbose,
		Logger:   log,
	}
	res.Report, err = e.Execute(ctx, p, opt.DryRun)
	return res, err
}

// BuildPlan resolves target against reg and marks the steps matched by cfg.Skip.
func BuildPlan(reg *script.Registry, target string, cfg config.Config, log *slog.Logger) (plan.Plan, error) {
	skip, err := plan.NewSkipFilter(cfg.Skip)
	if err != nil {
		return plan.Plan{}, err
	}

	b := plan.NewBuilder(reg)
	if cfg.SelfName != "" {
		b.Policy.SelfName = cfg.SelfName
	}
	if cfg.MaxDepth > 0 {
		b.Policy.MaxDepth = cfg.MaxDepth
	}
	b.Logger = loggerOrDiscard(log)

	p, err := b.Build(target)
	if err != nil {
		return plan.Plan{}, err
	}
	if n := skip.Apply(&p); n > 0 {
		b.Logger.Info("skip patterns matched", "plan_id", p.ID, "steps", n, "patterns", skip.Patterns())
	}
	return p, nil
}

// FindScriptsDir locates the scripts directory. A bare name (".bnrun") is searched upward from
// workDir; a path ("./scripts", "/abs/dir") is used as-is.
func FindScriptsDir(workDir, dir string) (string, error) {
	workDir = strings.TrimSpace(workDir)
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working dir: %w", err)
		}
		workDir = wd
	}
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = ".bnrun"
	}
	if !filepath.IsAbs(dir) && strings.ContainsRune(dir, filepath.Separator) {
		dir = filepath.Join(workDir, dir)
	}

	found, err := script.FindDir(workDir, dir)
	if err != nil {
		return "", fmt.Errorf("locate scripts: %w", err)
	}
	return found, nil
}

// LoadRegistry finds the scripts directory and loads it.
// It returns the registry and the directory that was loaded.
func LoadRegistry(workDir, dir string) (*script.Registry, string, error) {
	found, err := FindScriptsDir(workDir, dir)
	if err != nil {
		return nil, "", err
	}
	reg, err := script.LoadDir(found)
	if err != nil {
		return nil, found, fmt.Errorf("load scripts: %w", err)
	}
	return reg, found, nil
}

// ScriptInfo summarizes one registered template for listing.
type ScriptInfo struct {
	Name   string
	Source string

	Pre      int
	Commands int
	Post     int

	// Options lists the phases marked run-once ("pre", "post").
	Options []string

	Parameterized bool
}

// ListScripts returns every registered template in registration order.
func ListScripts(workDir, dir string) ([]ScriptInfo, string, error) {
	reg, found, err := LoadRegistry(workDir, dir)
	if err != nil {
		return nil, found, err
	}
	return Describe(reg, found), found, nil
}

// Describe summarizes reg. Sources are reported relative to scriptsDir when possible.
func Describe(reg *script.Registry, scriptsDir string) []ScriptInfo {
	tpls := reg.Templates()
	out := make([]ScriptInfo, 0, len(tpls))
	for _, t := range tpls {
		src := t.Source
		if rel, err := filepath.Rel(scriptsDir, src); err == nil && scriptsDir != "" && !strings.HasPrefix(rel, "..") {
			src = rel
		}
		info := ScriptInfo{
			Name:          t.Name,
			Source:        src,
			Pre:           len(t.Pre),
			Commands:      len(t.Commands),
			Post:          len(t.Post),
			Parameterized: t.Parameterized(),
		}
		if t.PreOptions.RunOnce {
			info.Options = append(info.Options, "pre")
		}
		if t.PostOptions.RunOnce {
			info.Options = append(info.Options, "post")
		}
		out = append(out, info)
	}
	return out
}

// RenderScriptList formats infos as a table.
func RenderScriptList(infos []ScriptInfo, color bool) string {
	headerStyle := lipgloss.NewStyle().Bold(true)
	nameStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("SCRIPT", "PRE", "COMMAND", "POST", "RUN-ONCE", "SOURCE")
	for _, in := range infos {
		once := strings.Join(in.Options, ",")
		if once == "" {
			once = "-"
		}
		t.Row(in.Name, fmt.Sprint(in.Pre), fmt.Sprint(in.Commands), fmt.Sprint(in.Post), once, in.Source)
	}
	if color {
		t.StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle.Padding(0, 1)
			case col == 0:
				return nameStyle.Padding(0, 1)
			case col == 5:
				return dimStyle.Padding(0, 1)
			default:
				return lipgloss.NewStyle().Padding(0, 1)
			}
		})
	} else {
		t.StyleFunc(func(int, int) lipgloss.Style { return lipgloss.NewStyle().Padding(0, 1) })
	}
	return t.String()
}

func loggerOrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}
