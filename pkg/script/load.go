// Package script defines the script-definition format read by bnrun and the registry the planner
// resolves against.
//
// Definition files live in a scripts directory (default ".bnrun") and map script names to records:
//
//	build:
//	  command: ["go build ./..."]
//	deploy:${env}:
//	  pre: ["echo setup"]
//	  command: "echo deploy ${env}"
//	  options:
//	    pre: run-once
//
// Supported formats: .yaml, .yml, .json, .toml.
// Records are shape-checked at load time; nothing is deferred to plan building.
package script

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Extensions lists the definition file extensions LoadDir picks up.
var Extensions = []string{".yaml", ".yml", ".json", ".toml"}

var recordFields = map[string]bool{
	"command": true,
	"pre":     true,
	"post":    true,
	"options": true,
}

// LoadDir loads every definition file in dir (lexical filename order) into a new Registry.
// Subdirectories are not traversed.
func LoadDir(dir string) (*Registry, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("scripts directory is empty")
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scripts dir: %w", err)
	}

	reg := NewRegistry()
	files := 0
	for _, ent := range ents {
		if ent.IsDir() || !supportedExt(ent.Name()) {
			continue
		}
		files++
		p := filepath.Join(dir, ent.Name())
		tpls, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		for _, t := range tpls {
			if err := reg.Add(t); err != nil {
				return nil, err
			}
		}
	}
	if files == 0 {
		return nil, &DefinitionError{Path: dir, Msg: "no definition files (" + strings.Join(Extensions, ", ") + ")"}
	}
	return reg, nil
}

// LoadFile reads and validates a single definition file.
func LoadFile(path string) ([]Template, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("empty path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b, strings.ToLower(filepath.Ext(path)), path)
}

// Parse decodes definition data in the format named by ext and validates every record.
// source is recorded on each template and in errors.
func Parse(data []byte, ext, source string) ([]Template, error) {
	var raw any
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, &DefinitionError{Path: source, Msg: "malformed yaml", Err: err}
		}
	case ".json":
		// JSON is decoded as YAML so repeated keys are rejected like in the other formats.
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, &DefinitionError{Path: source, Msg: "malformed json", Err: err}
		}
	case ".toml":
		var m map[string]any
		if _, err := toml.Decode(string(data), &m); err != nil {
			return nil, &DefinitionError{Path: source, Msg: "malformed toml", Err: err}
		}
		raw = m
	default:
		return nil, &DefinitionError{Path: source, Msg: fmt.Sprintf("unsupported definition file type %q", ext)}
	}

	doc, ok := asMapping(raw)
	if !ok {
		return nil, &DefinitionError{Path: source, Msg: "definition file must be a mapping of script name to record"}
	}
	if len(doc) == 0 {
		return nil, &DefinitionError{Path: source, Msg: "definition file defines no scripts"}
	}

	names := make([]string, 0, len(doc))
	for name := range doc {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Template, 0, len(names))
	for _, name := range names {
		t, err := parseRecord(source, name, doc[name])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func parseRecord(source, name string, raw any) (Template, error) {
	fail := func(field, format string, args ...any) (Template, error) {
		return Template{}, &DefinitionError{Path: source, Script: name, Field: field, Msg: fmt.Sprintf(format, args...)}
	}

	if strings.TrimSpace(name) == "" {
		return Template{}, &DefinitionError{Path: source, Msg: "script name is empty"}
	}
	if _, err := TokenizeStrict(name); err != nil {
		return fail("", "%v", err)
	}

	rec, ok := asMapping(raw)
	if !ok {
		return fail("", "record must be a mapping (got %s)", kindOf(raw))
	}

	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !recordFields[k] {
			return fail(k, "unknown field")
		}
	}

	t := Template{Name: name, Source: source}

	var err error
	if t.Commands, err = stringList(rec["command"]); err != nil {
		return fail("command"+indexOf(err), "%v", err)
	}
	if len(t.Commands) == 0 {
		return fail("command", "at least one command is required")
	}
	if t.Pre, err = stringList(rec["pre"]); err != nil {
		return fail("pre"+indexOf(err), "%v", err)
	}
	if t.Post, err = stringList(rec["post"]); err != nil {
		return fail("post"+indexOf(err), "%v", err)
	}

	if v, present := rec["options"]; present && v != nil {
		opts, ok := asMapping(v)
		if !ok {
			return fail("options", "must be a mapping of phase to options (got %s)", kindOf(v))
		}
		for _, phase := range sortedKeys(opts) {
			var po *PhaseOptions
			switch phase {
			case "pre":
				po = &t.PreOptions
			case "post":
				po = &t.PostOptions
			default:
				return fail("options."+phase, "unknown phase (expected pre or post)")
			}
			vals, err := stringList(opts[phase])
			if err != nil {
				return fail("options."+phase+indexOf(err), "%v", err)
			}
			for i, o := range vals {
				switch strings.TrimSpace(o) {
				case OptionRunOnce:
					po.RunOnce = true
				default:
					return fail(fmt.Sprintf("options.%s[%d]", phase, i), "unknown option %q (expected %s)", o, OptionRunOnce)
				}
			}
		}
	}

	return t, nil
}

// listError carries the offending index so the caller can build an indexed field path.
type listError struct {
	index int
	msg   string
}

func (e *listError) Error() string { return e.msg }

func indexOf(err error) string {
	var le *listError
	if errors.As(err, &le) && le.index >= 0 {
		return fmt.Sprintf("[%d]", le.index)
	}
	return ""
}

// stringList accepts a string (shorthand for a one-element list), a list of strings, or nil.
// Blank entries are rejected.
func stringList(v any) ([]string, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(x) == "" {
			return nil, &listError{index: -1, msg: "must not be blank"}
		}
		return []string{x}, nil
	case []any:
		out := make([]string, 0, len(x))
		for i, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, &listError{index: i, msg: fmt.Sprintf("must be a string (got %s)", kindOf(item))}
			}
			if strings.TrimSpace(s) == "" {
				return nil, &listError{index: i, msg: "must not be blank"}
			}
			out = append(out, s)
		}
		return out, nil
	case []string:
		return stringList(toAnySlice(x))
	case []map[string]any:
		return nil, &listError{index: -1, msg: "must be a string or list of strings (got table array)"}
	default:
		return nil, &listError{index: -1, msg: fmt.Sprintf("must be a string or list of strings (got %s)", kindOf(v))}
	}
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// asMapping normalizes the mapping shapes produced by yaml.v3 and toml.
func asMapping(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case int, int64, uint64, float64:
		return "number"
	case []any:
		return "list"
	case map[string]any, map[any]any:
		return "mapping"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func supportedExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// FindDir locates the scripts directory named name, starting at start and walking up parent
// directories. Absolute names are checked as-is.
func FindDir(start, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("scripts directory name is empty")
	}
	if filepath.IsAbs(name) {
		if isDir(name) {
			return name, nil
		}
		return "", fmt.Errorf("scripts directory %s: %w", name, fs.ErrNotExist)
	}

	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolve start dir: %w", err)
	}
	for {
		p := filepath.Join(dir, name)
		if isDir(p) {
			return p, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("scripts directory %q not found from %s: %w", name, start, fs.ErrNotExist)
		}
		dir = parent
	}
}

func isDir(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.IsDir()
}
