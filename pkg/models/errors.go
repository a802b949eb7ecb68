// Package models defines the shared domain types and error taxonomy for the
// workflow engine: document/plan errors, node-handler errors, and the
// execution record shape emitted by the executor.
package models

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors, matched with errors.Is by callers.
var (
	ErrNodeNotFound      = errors.New("node not found")
	ErrInputNotFound     = errors.New("input not found")
	ErrCyclicDependency  = errors.New("cyclic dependency detected")
	ErrSelfDependency    = errors.New("node cannot depend on itself")
	ErrUnresolvedRef     = errors.New("unresolved reference")
	ErrExecutorNotFound  = errors.New("node kind has no registered handler")
	ErrInvalidConfig     = errors.New("invalid node configuration")
	ErrRequired          = errors.New("required field is missing")
	ErrExecutionCancelled = errors.New("execution cancelled")
	ErrSharedAggregate   = errors.New("nested fan-out groups cannot share one aggregate")
)

// ParseError is returned by document parsing (load time, fatal).
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s", e.Message)
}

// ValidationError is a single validation failure found by the
// validator and collected into a ValidationErrors slice (see plan.Validate
// for which passes run and which stop early). Err, when set, is one of the
// sentinels above, so callers can errors.Is a specific ValidationError (or
// the aggregate ValidationErrors it's collected into) against it.
type ValidationError struct {
	Node    string // node name the error concerns, "" for document-level errors
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("node %q: %s: %s", e.Node, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ValidationErrors aggregates every error found across the validator's
// passes. Unlike a single ValidationError, Error() reports all of them so
// nothing is silently swallowed.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	lines := make([]string, len(e))
	for i, ve := range e {
		lines[i] = ve.Error()
	}
	return fmt.Sprintf("%d validation error(s):\n%s", len(e), strings.Join(lines, "\n"))
}

// Is reports whether any collected error wraps target, so a caller can
// errors.Is(err, models.ErrCyclicDependency) directly against whatever
// Validate returned without first type-asserting and ranging over it.
func (e ValidationErrors) Is(target error) bool {
	for _, ve := range e {
		if errors.Is(ve, target) {
			return true
		}
	}
	return false
}

// TemplateError is a render-time failure: a reference into a node that
// should have produced a value but didn't (as opposed to a Skipped node,
// which renders empty/null rather than erroring).
type TemplateError struct {
	Template string
	Ref      string
	Err      error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template error in %q: failed to resolve %q: %v", e.Template, e.Ref, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// HandlerError wraps a node-kind-specific execution failure with a Kind
// sub-tag (e.g. "timeout", "http-status", "serialization").
type HandlerError struct {
	NodeKind string
	Sub      string
	Err      error
}

func (e *HandlerError) Error() string {
	if e.Sub != "" {
		return fmt.Sprintf("%s handler error (%s): %v", e.NodeKind, e.Sub, e.Err)
	}
	return fmt.Sprintf("%s handler error: %v", e.NodeKind, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// SerializationError is a terminal error for node output that cannot be
// represented as JSON (e.g. a script handler returning a function value).
type SerializationError struct {
	NodeKind string
	Err      error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("%s output is not JSON-serializable: %v", e.NodeKind, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }
