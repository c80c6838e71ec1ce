package script

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestParseFormats(t *testing.T) {
	want := []Template{
		{Name: "build", Commands: []string{"echo A"}, Source: "src"},
		{
			Name:        "deploy:${env}",
			Pre:         []string{"echo setup"},
			Commands:    []string{"echo deploy ${env}"},
			Post:        []string{"echo done"},
			PreOptions:  PhaseOptions{RunOnce: true},
			PostOptions: PhaseOptions{RunOnce: true},
			Source:      "src",
		},
	}

	tests := []struct {
		ext  string
		data string
	}{
		{
			ext: ".yaml",
			data: `
deploy:${env}:
  pre: echo setup
  command: ["echo deploy ${env}"]
  post: [echo done]
  options:
    pre: run-once
    post: [run-once]
build:
  command: echo A
`,
		},
		{
			ext: ".json",
			data: `{
  "build": {"command": ["echo A"]},
  "deploy:${env}": {
    "pre": ["echo setup"],
    "command": "echo deploy ${env}",
    "post": ["echo done"],
    "options": {"pre": "run-once", "post": ["run-once"]}
  }
}`,
		},
		{
			ext: ".toml",
			data: `
[build]
command = ["echo A"]

["deploy:${env}"]
pre = ["echo setup"]
command = "echo deploy ${env}"
post = "echo done"

["deploy:${env}".options]
pre = "run-once"
post = ["run-once"]
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			got, err := Parse([]byte(tt.data), tt.ext, "src")
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Parse mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name    string
		ext     string
		data    string
		wantMsg string
	}{
		{name: "not a mapping", ext: ".yaml", data: "- build\n", wantMsg: "must be a mapping of script name to record"},
		{name: "empty yaml", ext: ".yaml", data: "", wantMsg: "must be a mapping"},
		{name: "empty json", ext: ".json", data: "{}", wantMsg: "defines no scripts"},
		{name: "malformed json", ext: ".json", data: "{", wantMsg: "malformed json"},
		{name: "malformed yaml", ext: ".yaml", data: "a: [", wantMsg: "malformed yaml"},
		{name: "malformed toml", ext: ".toml", data: "[a", wantMsg: "malformed toml"},
		{name: "record not a mapping", ext: ".yaml", data: "build: echo A\n", wantMsg: "build: record must be a mapping (got string)"},
		{name: "missing command", ext: ".yaml", data: "build:\n  pre: [x]\n", wantMsg: "build.command: at least one command is required"},
		{name: "empty command list", ext: ".yaml", data: "build:\n  command: []\n", wantMsg: "build.command: at least one command is required"},
		{name: "non-string command", ext: ".yaml", data: "build:\n  command: [ok, 3]\n", wantMsg: "build.command[1]: must be a string (got number)"},
		{name: "blank command", ext: ".yaml", data: "build:\n  command: [\"  \"]\n", wantMsg: "build.command[0]: must not be blank"},
		{name: "bad pre type", ext: ".yaml", data: "build:\n  command: x\n  pre: {a: b}\n", wantMsg: "build.pre: must be a string or list of strings (got mapping)"},
		{name: "unknown field", ext: ".yaml", data: "build:\n  command: x\n  cmd: y\n", wantMsg: "build.cmd: unknown field"},
		{name: "unknown option", ext: ".yaml", data: "build:\n  command: x\n  options:\n    pre: [run-once, always]\n", wantMsg: `build.options.pre[1]: unknown option "always"`},
		{name: "unknown option phase", ext: ".yaml", data: "build:\n  command: x\n  options:\n    command: run-once\n", wantMsg: "build.options.command: unknown phase"},
		{name: "options not mapping", ext: ".yaml", data: "build:\n  command: x\n  options: run-once\n", wantMsg: "build.options: must be a mapping"},
		{name: "bad placeholder", ext: ".yaml", data: "\"deploy:${env\":\n  command: x\n", wantMsg: "unterminated placeholder"},
		{name: "duplicate name in yaml", ext: ".yaml", data: "build:\n  command: echo first\nbuild:\n  command: echo second\n", wantMsg: `mapping key "build" already defined`},
		{name: "duplicate name in json", ext: ".json", data: `{"build": {"command": ["echo first"]}, "build": {"command": ["echo second"]}}`, wantMsg: `mapping key "build" already defined`},
		{name: "duplicate name in toml", ext: ".toml", data: "[build]\ncommand = [\"echo first\"]\n\n[build]\ncommand = [\"echo second\"]\n", wantMsg: "malformed toml"},
		{name: "duplicate field in json", ext: ".json", data: `{"build": {"command": "echo first", "command": "echo second"}}`, wantMsg: `mapping key "command" already defined`},
		{name: "unsupported ext", ext: ".ini", data: "", wantMsg: `unsupported definition file type ".ini"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.ext, "defs"+tt.ext)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidDefinition)
			assert.Contains(t, err.Error(), tt.wantMsg)

			var de *DefinitionError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, "defs"+tt.ext, de.Path)
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.yaml", "zeta:\n  command: echo z\nalpha:\n  command: echo a\n")
	writeFile(t, dir, "a.json", `{"build": {"command": ["echo A"]}}`)
	writeFile(t, dir, "README.md", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), 0o755))

	reg, err := LoadDir(dir)
	require.NoError(t, err)

	var names []string
	for _, tpl := range reg.Templates() {
		names = append(names, tpl.Name)
	}
	assert.Equal(t, []string{"build", "alpha", "zeta"}, names)

	tpl, ok := reg.Lookup("alpha")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "b.yaml"), tpl.Source)
}

func TestLoadDirDuplicateAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "build:\n  command: echo A\n")
	writeFile(t, dir, "b.toml", "[build]\ncommand = \"echo B\"\n")

	_, err := LoadDir(dir)
	require.ErrorIs(t, err, ErrInvalidDefinition)
	assert.Contains(t, err.Error(), "duplicate script name")
	assert.Contains(t, err.Error(), "a.yaml")
}

func TestLoadDirEmpty(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.txt", "nothing here")

	_, err := LoadDir(dir)
	require.ErrorIs(t, err, ErrInvalidDefinition)
	assert.Contains(t, err.Error(), "no definition files")
}

func TestLoadDirMissing(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestFindDir(t *testing.T) {
	root := t.TempDir()
	scripts := filepath.Join(root, ".bnrun")
	require.NoError(t, os.Mkdir(scripts, 0o755))
	deep := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	got, err := FindDir(deep, ".bnrun")
	require.NoError(t, err)
	assert.Equal(t, scripts, got)

	got, err = FindDir(deep, scripts)
	require.NoError(t, err)
	assert.Equal(t, scripts, got)

	_, err = FindDir(deep, ".does-not-exist-anywhere")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
