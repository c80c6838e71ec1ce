package script

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAddLookup(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add(Template{Name: "build", Commands: []string{"echo A"}}))
	require.NoError(t, reg.Add(Template{Name: "deploy:${env}", Commands: []string{"echo deploy ${env}"}}))

	got, ok := reg.Lookup("build")
	require.True(t, ok)
	assert.Equal(t, []string{"echo A"}, got.Commands)
	assert.False(t, got.Parameterized())

	_, ok = reg.Lookup("deploy:prod")
	assert.False(t, ok, "lookup is exact only")

	names := []string{}
	for _, tpl := range reg.Templates() {
		names = append(names, tpl.Name)
	}
	assert.Equal(t, []string{"build", "deploy:${env}"}, names)
	assert.Equal(t, 2, reg.Len())
}

func TestRegistryRejects(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add(Template{Name: "build", Commands: []string{"echo A"}, Source: "a.yaml"}))

	err := reg.Add(Template{Name: "build", Commands: []string{"echo B"}, Source: "b.yaml"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidDefinition))
	assert.Contains(t, err.Error(), "first defined in a.yaml")

	err = reg.Add(Template{Name: "test"})
	require.ErrorIs(t, err, ErrInvalidDefinition)
	assert.Contains(t, err.Error(), "test.command")

	require.ErrorIs(t, reg.Add(Template{Commands: []string{"x"}}), ErrInvalidDefinition)
}

func TestRegistryTemplatesIsCopy(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add(Template{Name: "build", Commands: []string{"echo A"}}))

	tpls := reg.Templates()
	tpls[0].Name = "changed"

	_, ok := reg.Lookup("build")
	assert.True(t, ok)
	assert.Equal(t, "build", reg.Templates()[0].Name)
}
