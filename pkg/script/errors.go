package script

import (
	"errors"
	"strings"
)

// ErrInvalidDefinition is matched (errors.Is) by every DefinitionError.
var ErrInvalidDefinition = errors.New("invalid script definition")

// DefinitionError reports a definition file or record that fails validation.
type DefinitionError struct {
	// Path is the definition file, if known.
	Path string
	// Script is the offending script name, if the error is scoped to one record.
	Script string
	// Field is a dotted/indexed path inside the record (e.g. "command[1]").
	Field string
	Msg   string
	// Err is an underlying decode error, if any.
	Err error
}

func (e *DefinitionError) Error() string {
	var b strings.Builder
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	if e.Script != "" {
		b.WriteString(e.Script)
		if e.Field != "" {
			b.WriteString(".")
			b.WriteString(e.Field)
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Msg)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *DefinitionError) Unwrap() error { return e.Err }

func (e *DefinitionError) Is(target error) bool { return target == ErrInvalidDefinition }
