package vellum

import (
	"errors"
	"fmt"

	"github.com/vellumtext/vellum/lexer"
)

// ErrorKind describes the type of error.
type ErrorKind int

const (
	// ErrSyntax is a malformed variable or filter expression.
	ErrSyntax ErrorKind = iota
	// ErrInvalidTag is a block tag with no registered compiler.
	ErrInvalidTag
	// ErrUnclosedTag is a block tag whose terminator was never seen.
	ErrUnclosedTag
	// ErrEmptyTag is a variable or block tag with no content.
	ErrEmptyTag
	// ErrInvalidFilter is a filter name with no registered callable, or a
	// filter applied with an incompatible argument count.
	ErrInvalidFilter
	// ErrTemplateNotFound is a template name the engine cannot load.
	ErrTemplateNotFound
	// ErrRender wraps a failure raised while rendering a node.
	ErrRender
)

func (k ErrorKind) String() string {
	switch k {
	case ErrSyntax:
		return "syntax error"
	case ErrInvalidTag:
		return "invalid tag"
	case ErrUnclosedTag:
		return "unclosed tag"
	case ErrEmptyTag:
		return "empty tag"
	case ErrInvalidFilter:
		return "invalid filter"
	case ErrTemplateNotFound:
		return "template not found"
	case ErrRender:
		return "render error"
	default:
		return "error"
	}
}

// Error represents an error that occurred while compiling or rendering a
// template. Compile-time kinds are always fatal. The originating token is
// kept so that recursive parse calls never overwrite an already-annotated
// inner failure; Debug is filled in lazily when the engine runs in debug
// mode.
type Error struct {
	Kind    ErrorKind
	Message string
	Token   *lexer.Token
	Origin  *Origin
	Debug   *ExceptionInfo
	Cause   error
}

func (e *Error) Error() string {
	if e.Origin != nil && e.Token != nil {
		return fmt.Sprintf("%s: %s (in %s, line %d)", e.Kind, e.Message, e.Origin.Name, e.Token.Lineno)
	}
	if e.Token != nil {
		return fmt.Sprintf("%s: %s (line %d)", e.Kind, e.Message, e.Token.Lineno)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithToken attaches the originating token unless one is already set.
// Innermost failure wins.
func (e *Error) WithToken(t *lexer.Token) *Error {
	if e.Token == nil {
		e.Token = t
	}
	return e
}

// WithOrigin attaches the template origin unless one is already set.
func (e *Error) WithOrigin(o *Origin) *Error {
	if e.Origin == nil {
		e.Origin = o
	}
	return e
}

// VariableDoesNotExist is a render-time lookup miss. It carries the failing
// segment and the value it was looked up against for diagnostics. It is
// recovered into the engine's invalid-variable fallback unless propagation
// is explicitly requested.
type VariableDoesNotExist struct {
	Msg     string
	Segment string
	Current any
}

func (e *VariableDoesNotExist) Error() string {
	return fmt.Sprintf(e.Msg, e.Segment, e.Current)
}

// silentFailer marks errors that templates swallow and replace with the
// invalid-variable fallback.
type silentFailer interface {
	SilentVariableFailure() bool
}

type silentError struct {
	err error
}

func (s silentError) Error() string               { return s.err.Error() }
func (s silentError) Unwrap() error               { return s.err }
func (s silentError) SilentVariableFailure() bool { return true }

// Silent marks an error as a silent variable failure: raised from a callable
// invoked during lookup, it is replaced by the fallback value instead of
// aborting the render.
func Silent(err error) error {
	if err == nil {
		return nil
	}
	return silentError{err}
}

// IsSilentFailure reports whether an error anywhere in the chain is marked
// as a silent variable failure.
func IsSilentFailure(err error) bool {
	var s silentFailer
	return errors.As(err, &s) && s.SilentVariableFailure()
}
