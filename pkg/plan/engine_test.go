package plan

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	ran    []string
	failOn string
	err    error
}

func (r *recordingRunner) Run(_ context.Context, s Step) error {
	r.ran = append(r.ran, s.Command)
	if s.Command == r.failOn {
		return r.err
	}
	return nil
}

func TestExecuteRunsInOrder(t *testing.T) {
	p, err := newTestBuilder(exampleRegistry(t)).Build("all")
	require.NoError(t, err)

	rr := &recordingRunner{}
	rep, err := (&Engine{Runner: rr}).Execute(context.Background(), p, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo A", "echo setup", "echo deploy prod"}, rr.ran)
	assert.Equal(t, Report{Executed: 3}, rep)
}

func TestExecuteSkipsMarkedSteps(t *testing.T) {
	p := samplePlan()
	rr := &recordingRunner{}

	rep, err := (&Engine{Runner: rr}).Execute(context.Background(), p, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo A", "echo done"}, rr.ran)
	assert.Equal(t, Report{Executed: 2, Skipped: 1}, rep)
}

func TestExecuteAbortsOnFailure(t *testing.T) {
	p, err := newTestBuilder(exampleRegistry(t)).Build("all")
	require.NoError(t, err)

	failed := &CommandError{Step: p.Steps[1], ExitCode: 3}
	rr := &recordingRunner{failOn: "echo setup", err: failed}

	rep, err := (&Engine{Runner: rr}).Execute(context.Background(), p, false)
	require.ErrorIs(t, err, ErrCommandFailed)
	assert.Equal(t, []string{"echo A", "echo setup"}, rr.ran)
	assert.Equal(t, 1, rep.Executed)

	var ce *CommandError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 3, ce.ExitCode)
	assert.Equal(t, `[pre:deploy:prod] "echo setup" exited with status 3`, err.Error())
}

func TestExecuteWrapsPlainRunnerErrors(t *testing.T) {
	p := Plan{Steps: []Step{{Script: "build", Command: "make"}}}
	boom := errors.New("boom")

	_, err := (&Engine{Runner: &recordingRunner{failOn: "make", err: boom}}).Execute(context.Background(), p, false)
	require.ErrorIs(t, err, ErrCommandFailed)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, `[build] "make": boom`, err.Error())
}

func TestExecuteDryRun(t *testing.T) {
	var out bytes.Buffer
	rr := &recordingRunner{}
	e := &Engine{Runner: rr, Out: &out}

	rep, err := e.Execute(context.Background(), samplePlan(), true)
	require.NoError(t, err)
	assert.Empty(t, rr.ran)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, NewRenderer(false).RenderDryRun(samplePlan())+"\n", out.String())
}

func TestExecuteDryRunNeedsNoRunner(t *testing.T) {
	_, err := (&Engine{}).Execute(context.Background(), samplePlan(), true)
	require.NoError(t, err)

	_, err = (&Engine{}).Execute(context.Background(), samplePlan(), false)
	require.Error(t, err)
}

func TestExecuteVerbose(t *testing.T) {
	var out bytes.Buffer
	e := &Engine{Runner: NoopRunner{}, Out: &out, Verbose: true}

	_, err := e.Execute(context.Background(), samplePlan(), false)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out.String(), "> ["))
	assert.Contains(t, out.String(), "(skipped)")
}

func TestExecuteCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rr := &recordingRunner{}
	_, err := (&Engine{Runner: rr}).Execute(ctx, samplePlan(), false)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rr.ran)
}
