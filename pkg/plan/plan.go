package plan

import "bnrun/pkg/script"

// Phase is one of the three ordered stages of a script.
type Phase int

const (
	PhaseCommand Phase = iota
	PhasePre
	PhasePost
)

func (p Phase) String() string {
	switch p {
	case PhasePre:
		return "pre"
	case PhasePost:
		return "post"
	default:
		return "command"
	}
}

// Tag is the display prefix used inside a step header: "pre:", "post:" or empty.
func (p Phase) Tag() string {
	switch p {
	case PhasePre:
		return "pre:"
	case PhasePost:
		return "post:"
	default:
		return ""
	}
}

// Invocation is a resolved template plus the bindings that justified the match.
type Invocation struct {
	Template script.Template
	Bindings []script.Binding
}

// Name returns the template name with all bindings applied.
func (inv Invocation) Name() string {
	return script.Substitute(inv.Template.Name, inv.Bindings)
}

// Step is one concrete, fully substituted unit of execution. Steps are immutable once built.
type Step struct {
	// Script is the substituted name of the script that produced this step.
	Script  string
	Phase   Phase
	Command string
	Skip    bool

	// Depth is the nesting depth of the producing invocation (display only).
	Depth int
}

// Plan is the flattened, ordered result of one top-level invocation.
type Plan struct {
	// ID correlates log records of one planning/execution pass.
	ID     string
	Target string
	Steps  []Step
}

// Skipped returns the number of steps marked Skip.
func (p Plan) Skipped() int {
	n := 0
	for _, s := range p.Steps {
		if s.Skip {
			n++
		}
	}
	return n
}
