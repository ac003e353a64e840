// Package errors defines the two typed failures golox can return from
// interpreting a source string: a CompileError for diagnostics raised while
// translating source to bytecode, and a RuntimeError for faults raised while
// executing it.
package errors

import (
	"errors"
	"fmt"
)

// CompileError is a single diagnostic raised by the scanner or compiler.
// A compilation pass may accumulate several of these (via go-multierror)
// before giving up; the chunk it was building is discarded regardless.
//
// Where is the offending token's lexeme, "end" if the token was EOF, or ""
// if the token itself was a scanner error (an unterminated string, say) —
// in that last case the Reason alone already says what went wrong.
type CompileError struct {
	Line   int
	Where  string
	Reason string
}

func (e *CompileError) Error() string {
	if e.Where == "" {
		return fmt.Sprintf("[line %d] Error: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("[line %d] Error at %s: %s", e.Line, e.Where, e.Reason)
}

// RuntimeError is raised by the VM once a valid chunk is already executing.
// Unlike CompileError, there is always exactly one: execution stops at the
// first fault.
type RuntimeError struct {
	Line   int
	Reason string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s\n[line %d] in script", e.Reason, e.Line)
}

// Unreachable marks a branch that well-formed input can never reach, e.g. an
// infix handler invoked for a token type that isn't in the precedence table.
var Unreachable = errors.New("internal error: entered unreachable code")
