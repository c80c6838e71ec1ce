package plan

import (
	"strings"

	"bnrun/pkg/script"
)

// Resolver matches requested invocation strings against a registry.
//
// Matching is direct, not a template language:
//   - an exact name match always wins;
//   - otherwise the text after the first ':' of the request is taken as the single parameter value,
//     substituted into every placeholder of each parameterized template name, and compared.
type Resolver struct {
	reg *script.Registry
}

func NewResolver(reg *script.Registry) *Resolver {
	return &Resolver{reg: reg}
}

// Resolve returns the template matching requested, or a *NotFoundError.
func (r *Resolver) Resolve(requested string) (Invocation, error) {
	if r == nil || r.reg == nil {
		return Invocation{}, &NotFoundError{Name: requested}
	}
	if t, ok := r.reg.Lookup(requested); ok {
		return Invocation{Template: t}, nil
	}

	value, ok := paramPart(requested)
	if !ok {
		return Invocation{}, &NotFoundError{Name: requested}
	}

	for _, t := range r.reg.Templates() {
		if bindings, ok := match(t.Name, requested, value); ok {
			return Invocation{Template: t, Bindings: bindings}, nil
		}
	}
	return Invocation{}, &NotFoundError{Name: requested}
}

// paramPart returns the substring after the first ':', which may be empty.
func paramPart(requested string) (string, bool) {
	i := strings.IndexByte(requested, ':')
	if i < 0 {
		return "", false
	}
	return requested[i+1:], true
}

// match substitutes value into every placeholder of name and compares the result with requested.
// Bindings hold each distinct token once, in order of first appearance.
func match(name, requested, value string) ([]script.Binding, bool) {
	segs := script.Tokenize(name)

	var b strings.Builder
	var bindings []script.Binding
	seen := map[string]bool{}
	for _, seg := range segs {
		if seg.Kind == script.Literal {
			b.WriteString(seg.Text)
			continue
		}
		b.WriteString(value)
		if !seen[seg.Text] {
			seen[seg.Text] = true
			bindings = append(bindings, script.Binding{Token: seg.Text, Value: value})
		}
	}
	if len(bindings) == 0 || b.String() != requested {
		return nil, false
	}
	return bindings, true
}
