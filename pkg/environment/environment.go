// Package environment implements the layered variable scope (spec §4.3)
// that template expressions render against: env.* at the bottom, inputs.*
// above it, per-node outputs keyed by node name, and one map of loop
// bindings on top (a single layer; loop bindings are not stacked). Grounded in the teacher's pkg/engine/execution_state.go
// ExecutionState, narrowed to the single-writer-per-key discipline spec §5
// requires and redesigned around models.NodeOutput's Success/Skipped/Failed
// union instead of a bare interface{}.
package environment

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nelsonlove/seriesoftubes-sub001/pkg/models"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/template"
)

// Output is the stored record of a terminal node. Exactly one of Value
// (Success), SkipReason (Skipped), or Err (Failed) applies; Status
// disambiguates.
type Output struct {
	Status     models.NodeStatus
	Value      any
	SkipReason string
	Err        error
	Inputs     map[string]any
	Timestamp  time.Time
}

// Environment is the single mutable structure shared across an execution.
// Every node output is written exactly once (single-writer-per-key, spec
// §5), so reads never race writes once the write has happened-before the
// read via the executor's completion notification.
type Environment struct {
	mu      sync.RWMutex
	env     map[string]string
	inputs  map[string]any
	outputs map[string]*Output
}

// New snapshots the process environment (spec §6 "env.* is ... snapshot at
// execution start") and seeds resolved inputs.
func New(inputs map[string]any) *Environment {
	e := &Environment{
		env:     map[string]string{},
		inputs:  inputs,
		outputs: map[string]*Output{},
	}
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			e.env[kv[:i]] = kv[i+1:]
		}
	}
	if e.inputs == nil {
		e.inputs = map[string]any{}
	}
	return e
}

// Publish records a node's terminal output. It must be called exactly once
// per node name; a second call overwrites, which callers must never do
// (the executor's state machine guarantees each node reaches exactly one
// terminal state).
func (e *Environment) Publish(node string, out *Output) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outputs[node] = out
}

// Output returns the published output for node, if any.
func (e *Environment) Output(node string) (*Output, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out, ok := e.outputs[node]
	return out, ok
}

// AllOutputs returns a snapshot copy of every published output, keyed by
// node name, for building the final ExecutionRecord.
func (e *Environment) AllOutputs() map[string]*Output {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]*Output, len(e.outputs))
	for k, v := range e.outputs {
		out[k] = v
	}
	return out
}

// Scope builds the template.Scope a given node should render its config
// against: env and inputs at the base, every already-published node output
// by name (Skipped nodes surface as an empty map so dotted-path access
// renders to nil rather than erroring, per spec §4.2's "reference into a
// Skipped node renders empty/null"), and loopVars layered on top with
// highest precedence.
func (e *Environment) Scope(loopVars map[string]any) template.Scope {
	e.mu.RLock()
	defer e.mu.RUnlock()

	scope := template.Scope{}
	envMap := make(map[string]any, len(e.env))
	for k, v := range e.env {
		envMap[k] = v
	}
	scope["env"] = envMap
	scope["inputs"] = e.inputs

	for name, out := range e.outputs {
		scope[name] = outputValue(out)
	}
	for k, v := range loopVars {
		scope[k] = v
	}
	return scope
}

// outputValue projects a stored Output into the shape a template reference
// resolves to: the raw value for Success, an empty map for Skipped so field
// access renders empty rather than failing, and an object surfacing the
// error for Failed so a downstream skip_errors node can inspect it via the
// default filter.
func outputValue(out *Output) any {
	switch out.Status {
	case models.NodeSuccess:
		return out.Value
	case models.NodeSkipped:
		return map[string]any{}
	case models.NodeFailed:
		msg := ""
		if out.Err != nil {
			msg = out.Err.Error()
		}
		return map[string]any{"error": msg}
	default:
		return nil
	}
}
