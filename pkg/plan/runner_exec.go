package plan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ExecRunner runs each step as `<Shell> -c <command>`.
//
// Notes:
//   - stdin/stdout/stderr are streamed, not captured; nil streams go to the null device.
//   - BNRUN_SCRIPT and BNRUN_PHASE are exported to the child so commands can tell where they run.
//   - ExtraEnv is appended to the process environment (KEY=VALUE strings).
type ExecRunner struct {
	// Shell is the shell executable. If empty, defaults to "sh".
	Shell string

	// Dir is the working directory for every command. Empty means the current directory.
	Dir string

	ExtraEnv []string

	// Timeout, if > 0, applies a per-command timeout.
	Timeout time.Duration

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	Logger *slog.Logger
}

func (r *ExecRunner) Run(ctx context.Context, s Step) error {
	if strings.TrimSpace(s.Command) == "" {
		return &CommandError{Step: s, ExitCode: -1, Err: errors.New("empty command")}
	}

	shell := strings.TrimSpace(r.Shell)
	if shell == "" {
		shell = "sh"
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	args := []string{"-c", s.Command}
	cmd := exec.CommandContext(ctx, shell, args...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), r.ExtraEnv...)
	cmd.Env = append(cmd.Env, "BNRUN_SCRIPT="+s.Script, "BNRUN_PHASE="+s.Phase.String())
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	// Grandchildren holding stdout open must not keep Wait blocked after cancellation.
	cmd.WaitDelay = time.Second

	if r.Logger != nil {
		r.Logger.Debug("exec", "shell", shell, "argv", shellJoin(append([]string{shell}, args...)), "dir", r.Dir)
	}

	err := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded && r.Timeout > 0 {
		return &CommandError{Step: s, ExitCode: -1, Err: fmt.Errorf("timed out after %s: %w", r.Timeout, ctx.Err())}
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
			return &CommandError{Step: s, ExitCode: exitErr.ExitCode(), Err: err}
		}
		return &CommandError{Step: s, ExitCode: -1, Err: err}
	}
	return nil
}

func shellJoin(args []string) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

// shellQuote single-quotes s when it contains shell metacharacters.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\"'\\$`&|;<>(){}*?!~#") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
