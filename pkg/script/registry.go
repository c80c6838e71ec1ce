package script

import "fmt"

// OptionRunOnce suppresses a pre/post phase after the script has been expanded once in a planning pass.
const OptionRunOnce = "run-once"

// PhaseOptions are the behavior flags of a pre or post phase.
type PhaseOptions struct {
	RunOnce bool
}

// Template is a named, reusable script definition.
type Template struct {
	// Name may contain ${identifier} placeholders, e.g. "deploy:${env}".
	Name string

	Pre      []string
	Commands []string
	Post     []string

	PreOptions  PhaseOptions
	PostOptions PhaseOptions

	// Source is the definition file this template came from (diagnostics only).
	Source string
}

// Parameterized reports whether the template name contains placeholders.
func (t Template) Parameterized() bool {
	return HasPlaceholders(t.Name)
}

// Registry is an ordered, in-memory collection of templates.
// Lookup order is registration order.
type Registry struct {
	templates []Template
	byName    map[string]int
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]int{}}
}

// Add registers t. Duplicate names and templates without commands are rejected.
func (r *Registry) Add(t Template) error {
	if t.Name == "" {
		return &DefinitionError{Path: t.Source, Msg: "script name is empty"}
	}
	if len(t.Commands) == 0 {
		return &DefinitionError{Path: t.Source, Script: t.Name, Field: "command", Msg: "at least one command is required"}
	}
	if i, ok := r.byName[t.Name]; ok {
		prev := r.templates[i].Source
		msg := "duplicate script name"
		if prev != "" {
			msg = fmt.Sprintf("duplicate script name (first defined in %s)", prev)
		}
		return &DefinitionError{Path: t.Source, Script: t.Name, Msg: msg}
	}
	r.byName[t.Name] = len(r.templates)
	r.templates = append(r.templates, t)
	return nil
}

// Lookup returns the template registered under exactly name.
func (r *Registry) Lookup(name string) (Template, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Template{}, false
	}
	return r.templates[i], true
}

// Templates returns all templates in registration order.
func (r *Registry) Templates() []Template {
	return append([]Template(nil), r.templates...)
}

func (r *Registry) Len() int { return len(r.templates) }
