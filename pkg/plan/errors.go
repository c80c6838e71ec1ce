package plan

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrScriptNotFound   = errors.New("script not found")
	ErrCyclicInvocation = errors.New("cyclic script invocation")
	ErrCommandFailed    = errors.New("command failed")
)

// NotFoundError reports a requested or nested script name that matches no template.
type NotFoundError struct {
	Name string
	// Via is the script whose command invoked Name; empty for the top-level target.
	Via string
}

func (e *NotFoundError) Error() string {
	if e.Via != "" {
		return fmt.Sprintf("script %q not found (invoked by %q)", e.Name, e.Via)
	}
	return fmt.Sprintf("script %q not found", e.Name)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrScriptNotFound }

// CycleError reports a script that (directly or transitively) invokes itself,
// or a nesting chain deeper than the configured limit.
type CycleError struct {
	Cycle []string
	// MaxDepth is set when the error was raised by the depth limit rather than a repeated name.
	MaxDepth int
}

func (e *CycleError) Error() string {
	chain := strings.Join(e.Cycle, " -> ")
	if e.MaxDepth > 0 {
		return fmt.Sprintf("script nesting exceeds depth %d: %s", e.MaxDepth, chain)
	}
	return "recursive script invocation: " + chain
}

func (e *CycleError) Is(target error) bool { return target == ErrCyclicInvocation }

// CommandError reports a step whose command could not run or exited non-zero.
type CommandError struct {
	Step Step
	// ExitCode is the process exit code, or -1 if the process did not exit normally.
	ExitCode int
	Err      error
}

func (e *CommandError) Error() string {
	head := fmt.Sprintf("[%s%s] %q", e.Step.Phase.Tag(), e.Step.Script, e.Step.Command)
	if e.ExitCode > 0 {
		return fmt.Sprintf("%s exited with status %d", head, e.ExitCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", head, e.Err)
	}
	return head + " failed"
}

func (e *CommandError) Unwrap() error { return e.Err }

func (e *CommandError) Is(target error) bool { return target == ErrCommandFailed }
