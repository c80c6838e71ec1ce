package plan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"bnrun/pkg/script"
)

func newRegistry(t *testing.T, tpls ...script.Template) *script.Registry {
	t.Helper()
	reg := script.NewRegistry()
	for _, tpl := range tpls {
		require.NoError(t, reg.Add(tpl))
	}
	return reg
}

// exampleRegistry is the build / deploy:${env} / all set used across the planner tests.
func exampleRegistry(t *testing.T) *script.Registry {
	t.Helper()
	return newRegistry(t,
		script.Template{Name: "build", Commands: []string{"echo A"}},
		script.Template{Name: "deploy:${env}", Pre: []string{"echo setup"}, Commands: []string{"echo deploy ${env}"}},
		script.Template{Name: "all", Commands: []string{"bnrun build", "bnrun deploy:prod"}},
	)
}

func newTestBuilder(reg *script.Registry) *Builder {
	b := NewBuilder(reg)
	b.NewID = func() string { return "test-plan" }
	return b
}
