package plan

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// SkipFilter marks steps whose script name or command text matches any glob pattern.
type SkipFilter struct {
	patterns []string
}

// NewSkipFilter validates patterns up front. Blank patterns are ignored.
func NewSkipFilter(patterns []string) (*SkipFilter, error) {
	f := &SkipFilter{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid skip pattern %q", p)
		}
		f.patterns = append(f.patterns, p)
	}
	return f, nil
}

// Patterns returns the validated patterns.
func (f *SkipFilter) Patterns() []string {
	if f == nil {
		return nil
	}
	return append([]string(nil), f.patterns...)
}

func (f *SkipFilter) ShouldSkip(s Step) bool {
	if f == nil {
		return false
	}
	return ShouldSkip(s, f.patterns)
}

// Apply sets Skip on every step of p and returns how many were marked.
func (f *SkipFilter) Apply(p *Plan) int {
	n := 0
	for i := range p.Steps {
		p.Steps[i].Skip = f.ShouldSkip(p.Steps[i])
		if p.Steps[i].Skip {
			n++
		}
	}
	return n
}

// ShouldSkip reports whether any pattern matches the step's script name or its command text.
// Malformed patterns never match.
func ShouldSkip(s Step, patterns []string) bool {
	for _, p := range patterns {
		if globMatch(p, s.Script) || globMatch(p, s.Command) {
			return true
		}
	}
	return false
}

func globMatch(pattern, s string) bool {
	ok, err := doublestar.Match(pattern, s)
	return err == nil && ok
}
