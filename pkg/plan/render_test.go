package plan

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePlan() Plan {
	return Plan{
		ID:     "p1",
		Target: "all",
		Steps: []Step{
			{Script: "build", Phase: PhaseCommand, Command: "echo A", Depth: 1},
			{Script: "deploy:prod", Phase: PhasePre, Command: "echo setup", Depth: 1, Skip: true},
			{Script: "deploy:prod", Phase: PhasePost, Command: "echo done", Depth: 1},
		},
	}
}

func TestPrefix(t *testing.T) {
	r := NewRenderer(false)
	assert.Equal(t, "> [build]", r.Prefix(Step{Script: "build"}))
	assert.Equal(t, "> [pre:deploy:prod]", r.Prefix(Step{Script: "deploy:prod", Phase: PhasePre}))
	assert.Equal(t, "> [post:x]", r.Prefix(Step{Script: "x", Phase: PhasePost}))
}

func TestBlock(t *testing.T) {
	r := NewRenderer(false)

	assert.Equal(t, "> [build]\n  echo A", r.Block(Step{Script: "build", Command: "echo A"}))
	assert.Equal(t,
		"    > [pre:deploy]\n      echo setup",
		r.Block(Step{Script: "deploy", Phase: PhasePre, Command: "echo setup", Depth: 2}),
	)
	assert.Equal(t,
		"> [build] (skipped)\n  echo A",
		r.Block(Step{Script: "build", Command: "echo A", Skip: true}),
	)
}

func TestExplainLines(t *testing.T) {
	lines := NewRenderer(false).ExplainLines(samplePlan())

	want := []string{
		"> [build]            echo A",
		"> [pre:deploy:prod]  echo setup  # skipped",
		"> [post:deploy:prod] echo done",
	}
	if diff := cmp.Diff(want, lines); diff != "" {
		t.Errorf("ExplainLines mismatch (-want +got):\n%s", diff)
	}
}

func TestExplainLinesAlignWithColor(t *testing.T) {
	r := NewRenderer(true)
	lines := r.ExplainLines(samplePlan())
	require.Len(t, lines, 3)

	col := -1
	for _, ln := range lines {
		plain := stripANSI(ln)
		i := strings.Index(plain, "echo")
		if col < 0 {
			col = i
		}
		assert.Equal(t, col, i, plain)
	}
	assert.Equal(t, lipgloss.Width("> [post:deploy:prod]")+1, col)
}

func TestDryRunLines(t *testing.T) {
	got := NewRenderer(false).RenderDryRun(samplePlan())
	want := strings.Join([]string{
		"dry run: all (3 steps, 1 skipped)",
		"  > [build]",
		"    echo A",
		"  > [pre:deploy:prod] (skipped)",
		"    echo setup",
		"  > [post:deploy:prod]",
		"    echo done",
	}, "\n")
	assert.Equal(t, want, got)

	assert.Equal(t, []string{"dry run: empty (0 steps)"}, NewRenderer(false).DryRunLines(Plan{Target: "empty"}))
}

// stripANSI removes CSI escape sequences.
func stripANSI(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == 0x1b && i+1 < len(s) && s[i+1] == '[' {
			j := i + 2
			for j < len(s) && (s[j] < 0x40 || s[j] > 0x7e) {
				j++
			}
			i = j
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
