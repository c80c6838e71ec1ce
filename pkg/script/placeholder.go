package script

import (
	"fmt"
	"strings"
)

// SegmentKind distinguishes literal text from ${identifier} placeholders.
type SegmentKind int

const (
	Literal SegmentKind = iota
	Placeholder
)

// Segment is one node of a tokenized name or command.
//
// For placeholders, Text holds the raw token (e.g. "${env}") and Name the identifier ("env").
type Segment struct {
	Kind SegmentKind
	Text string
	Name string
}

// Binding pairs a placeholder token with the literal value substituted for it.
type Binding struct {
	Token string
	Value string
}

// Tokenize splits s into literal and placeholder segments.
// Malformed "${" sequences are kept as literal text; use TokenizeStrict to reject them.
func Tokenize(s string) []Segment {
	segs, _ := tokenize(s, false)
	return segs
}

// TokenizeStrict is like Tokenize but fails on a "${" that does not start a well-formed token.
func TokenizeStrict(s string) ([]Segment, error) {
	return tokenize(s, true)
}

func tokenize(s string, strict bool) ([]Segment, error) {
	var out []Segment
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			out = append(out, Segment{Kind: Literal, Text: lit.String()})
			lit.Reset()
		}
	}

	i := 0
	for i < len(s) {
		j := strings.Index(s[i:], "${")
		if j < 0 {
			lit.WriteString(s[i:])
			break
		}
		lit.WriteString(s[i : i+j])
		start := i + j

		end := strings.IndexByte(s[start+2:], '}')
		if end >= 0 {
			name := s[start+2 : start+2+end]
			if isIdentifier(name) {
				flush()
				raw := s[start : start+2+end+1]
				out = append(out, Segment{Kind: Placeholder, Text: raw, Name: name})
				i = start + len(raw)
				continue
			}
			if strict {
				return nil, fmt.Errorf("invalid placeholder %q at offset %d", s[start:start+2+end+1], start)
			}
		} else if strict {
			return nil, fmt.Errorf("unterminated placeholder at offset %d", start)
		}

		lit.WriteString("${")
		i = start + 2
	}
	flush()
	return out, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// HasPlaceholders reports whether s contains at least one well-formed placeholder token.
func HasPlaceholders(s string) bool {
	for _, seg := range Tokenize(s) {
		if seg.Kind == Placeholder {
			return true
		}
	}
	return false
}

// Substitute replaces every bound placeholder in s with its value.
// Unbound placeholders are left untouched so the shell can still expand them.
func Substitute(s string, bindings []Binding) string {
	if len(bindings) == 0 || !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, seg := range Tokenize(s) {
		if seg.Kind == Placeholder {
			if v, ok := lookupBinding(bindings, seg.Text); ok {
				b.WriteString(v)
				continue
			}
		}
		b.WriteString(seg.Text)
	}
	return b.String()
}

func lookupBinding(bindings []Binding, token string) (string, bool) {
	for _, bd := range bindings {
		if bd.Token == token {
			return bd.Value, true
		}
	}
	return "", false
}
