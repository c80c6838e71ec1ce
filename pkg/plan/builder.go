package plan

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"bnrun/pkg/script"
)

// Policy holds the builder's guardrails and the self-invocation marker.
type Policy struct {
	// SelfName is the command prefix that marks a nested script invocation ("bnrun build").
	SelfName string

	// MaxDepth bounds nested invocations; exceeding it is reported as a CycleError.
	MaxDepth int

	// MaxSteps bounds the size of a flattened plan.
	MaxSteps int

	// MaxCommandLen bounds each substituted command string.
	MaxCommandLen int
}

func DefaultPolicy() Policy {
	return Policy{
		SelfName:      "bnrun",
		MaxDepth:      64,
		MaxSteps:      10000,
		MaxCommandLen: 64 * 1024,
	}
}

// Builder expands a requested invocation into a flat Plan.
//
// Each Build call is one planning pass with its own run-once ledger, so repeated
// builds against the same registry are independent.
type Builder struct {
	Resolver *Resolver
	Policy   Policy
	Logger   *slog.Logger

	// NewID generates plan IDs. Defaults to random UUIDs.
	NewID func() string
}

func NewBuilder(reg *script.Registry) *Builder {
	return &Builder{
		Resolver: NewResolver(reg),
		Policy:   DefaultPolicy(),
		Logger:   slog.New(slog.DiscardHandler),
		NewID:    uuid.NewString,
	}
}

// Build resolves target and recursively expands it. On error no steps are returned.
func (b *Builder) Build(target string) (Plan, error) {
	p := b.Policy
	def := DefaultPolicy()
	if strings.TrimSpace(p.SelfName) == "" {
		p.SelfName = def.SelfName
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = def.MaxDepth
	}
	if p.MaxSteps <= 0 {
		p.MaxSteps = def.MaxSteps
	}
	if p.MaxCommandLen <= 0 {
		p.MaxCommandLen = def.MaxCommandLen
	}

	log := b.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	id := ""
	if b.NewID != nil {
		id = b.NewID()
	}
	log = log.With("plan_id", id, "target", target)

	inv, err := b.Resolver.Resolve(target)
	if err != nil {
		return Plan{}, err
	}

	ps := &pass{
		policy: p,
		res:    b.Resolver,
		log:    log,
		ledger: map[string]bool{},
	}
	if err := ps.expand(inv, PhaseCommand, 0); err != nil {
		return Plan{}, err
	}

	log.Debug("plan built", "steps", len(ps.steps))
	return Plan{ID: id, Target: target, Steps: ps.steps}, nil
}

// pass is the mutable state of one planning pass.
type pass struct {
	policy Policy
	res    *Resolver
	log    *slog.Logger

	// ledger holds unsubstituted template names already expanded in this pass.
	ledger map[string]bool

	// visiting is the chain of substituted names currently being expanded.
	visiting []string

	steps []Step
}

// expand appends the steps of inv to ps.steps. via is the phase of the parent command that
// invoked inv (PhaseCommand for the top-level target).
func (ps *pass) expand(inv Invocation, via Phase, depth int) error {
	t := inv.Template
	name := inv.Name()

	if i := slices.Index(ps.visiting, name); i >= 0 {
		cycle := append(slices.Clone(ps.visiting[i:]), name)
		return &CycleError{Cycle: cycle}
	}
	if depth > ps.policy.MaxDepth {
		return &CycleError{Cycle: append(slices.Clone(ps.visiting), name), MaxDepth: ps.policy.MaxDepth}
	}

	ps.visiting = append(ps.visiting, name)
	defer func() { ps.visiting = ps.visiting[:len(ps.visiting)-1] }()

	seen := ps.ledger[t.Name]
	runPre := len(t.Pre) > 0 && (!t.PreOptions.RunOnce || !seen)
	runPost := len(t.Post) > 0 && (!t.PostOptions.RunOnce || !seen)

	ps.log.Debug("expand script",
		"script", name,
		"via", via.String(),
		"depth", depth,
		"pre", runPre,
		"post", runPost,
	)

	if runPre {
		if err := ps.phase(inv, name, PhasePre, t.Pre, depth); err != nil {
			return err
		}
	}
	if err := ps.phase(inv, name, PhaseCommand, t.Commands, depth); err != nil {
		return err
	}
	if runPost {
		if err := ps.phase(inv, name, PhasePost, t.Post, depth); err != nil {
			return err
		}
	}

	ps.ledger[t.Name] = true
	return nil
}

func (ps *pass) phase(inv Invocation, name string, phase Phase, cmds []string, depth int) error {
	for i, raw := range cmds {
		cmd := script.Substitute(raw, inv.Bindings)
		if len(cmd) > ps.policy.MaxCommandLen {
			return fmt.Errorf("script %q %s[%d]: command too long (%d bytes > %d)", name, phase, i, len(cmd), ps.policy.MaxCommandLen)
		}

		if nested, ok := nestedName(cmd, ps.policy.SelfName); ok {
			child, err := ps.res.Resolve(nested)
			if err != nil {
				var nf *NotFoundError
				if errors.As(err, &nf) {
					nf.Via = name
				}
				return err
			}
			if err := ps.expand(child, phase, depth+1); err != nil {
				return err
			}
			continue
		}

		if len(ps.steps) >= ps.policy.MaxSteps {
			return fmt.Errorf("plan exceeds %d steps (at script %q)", ps.policy.MaxSteps, name)
		}
		ps.steps = append(ps.steps, Step{
			Script:  name,
			Phase:   phase,
			Command: cmd,
			Depth:   depth,
		})
	}
	return nil
}

// nestedName reports whether cmd is a self-invocation ("<self> <name>") and returns the name.
func nestedName(cmd, self string) (string, bool) {
	cmd = strings.TrimSpace(cmd)
	rest, ok := strings.CutPrefix(cmd, self)
	if !ok || rest == "" {
		return "", false
	}
	r := rune(rest[0])
	if !unicode.IsSpace(r) {
		return "", false
	}
	name := strings.TrimSpace(rest)
	if name == "" {
		return "", false
	}
	return name, true
}
