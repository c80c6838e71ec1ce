package plan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Runner executes a single plan step.
type Runner interface {
	Run(ctx context.Context, s Step) error
}

// NoopRunner is useful for tests and dry contexts.
type NoopRunner struct{}

func (NoopRunner) Run(context.Context, Step) error { return nil }

// Engine runs a plan step by step, strictly in order, stopping at the first failure.
type Engine struct {
	Runner   Runner
	Renderer *Renderer

	// Out receives dry-run output and, when Verbose is set, each step block before it runs.
	Out     io.Writer
	Verbose bool

	Logger *slog.Logger
}

// Report summarizes an Execute call.
type Report struct {
	Executed int
	Skipped  int
}

// Execute runs every non-skipped step of p. With dryRun set it only renders the plan to Out.
// Errors from the runner are returned as *CommandError; remaining steps are not run.
func (e *Engine) Execute(ctx context.Context, p Plan, dryRun bool) (Report, error) {
	log := e.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log = log.With("plan_id", p.ID, "target", p.Target)

	r := e.Renderer
	if r == nil {
		r = NewRenderer(false)
	}
	out := e.Out
	if out == nil {
		out = io.Discard
	}

	var rep Report
	if dryRun {
		for _, ln := range r.DryRunLines(p) {
			fmt.Fprintln(out, ln)
		}
		rep.Skipped = p.Skipped()
		return rep, nil
	}
	if e.Runner == nil {
		return rep, errors.New("engine: Runner is nil")
	}

	for i, s := range p.Steps {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if e.Verbose {
			fmt.Fprintln(out, r.Block(s))
		}
		if s.Skip {
			rep.Skipped++
			log.Info("skip step", "index", i, "script", s.Script, "phase", s.Phase.String(), "command", s.Command)
			continue
		}

		log.Debug("run step", "index", i, "script", s.Script, "phase", s.Phase.String(), "command", s.Command, "depth", s.Depth)
		if err := e.Runner.Run(ctx, s); err != nil {
			var ce *CommandError
			if !errors.As(err, &ce) {
				ce = &CommandError{Step: s, ExitCode: -1, Err: err}
			}
			log.Error("step failed", "index", i, "script", s.Script, "command", s.Command, "exit_code", ce.ExitCode)
			return rep, ce
		}
		rep.Executed++
	}
	return rep, nil
}
