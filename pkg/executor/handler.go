// Package executor provides the Handler interface and registry that
// dispatch a node's kind to its implementation (spec §4.4), grounded in the
// teacher's pkg/executor Executor/Manager shape but narrowed to the exact
// handler contract spec §6 names: a pure function of (expanded config,
// environment view, cancel signal) -> (value, error).
package executor

import (
	"context"

	"github.com/nelsonlove/seriesoftubes-sub001/pkg/adapters"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/document"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/template"
)

// Request is the read-only view a handler receives. Config is the node's
// config after template expansion against Scope; Raw is the original,
// unexpanded config, used by handlers whose fields are expressions rather
// than renderable strings (route.when, filter.condition, split.field,
// aggregate.key).
type Request struct {
	NodeName string
	Node     *document.NodeDecl
	Config   map[string]any
	Raw      map[string]any
	Scope    template.Scope
	Engine   *template.Engine
	Adapters *adapters.Set

	// Elements is populated by the executor only for aggregate/join
	// dispatch: one entry per surviving fan-out element (aggregate) or one
	// entry per named source (join), in declaration/index order. Each
	// element carries the per-instance scope snapshot the aggregate/join
	// node should evaluate config expressions (e.g. aggregate.key) against.
	Elements []ElementView
}

// ElementView is one collected value reaching an aggregate or join node.
type ElementView struct {
	Name  string // source name for join; "" for aggregate
	Value any
	Scope template.Scope
}

// Handler is a kind-specific node implementation. Execute returns the
// node's Success value, or an error the executor wraps into a Failed
// NodeOutput via models.HandlerError.
type Handler interface {
	Execute(ctx context.Context, req *Request) (any, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, req *Request) (any, error)

func (f HandlerFunc) Execute(ctx context.Context, req *Request) (any, error) {
	return f(ctx, req)
}
