package handlers

import (
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/document"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/executor"
)

// RegisterAll wires every built-in handler into reg, grounded in the
// teacher's builtin.RegisterBuiltins idiom. foreach has no handler: it is
// desugared into split/transform/aggregate at parse time (document.Parse).
func RegisterAll(reg *executor.Registry) {
	reg.Register(document.KindLLM, LLM{})
	reg.Register(document.KindHTTP, HTTP{})
	reg.Register(document.KindRoute, Route{})
	reg.Register(document.KindFile, File{})
	reg.Register(document.KindScript, Script{})
	reg.Register(document.KindSplit, Split{})
	reg.Register(document.KindFilter, Filter{})
	reg.Register(document.KindTransform, Transform{})
	reg.Register(document.KindAggregate, Aggregate{})
	reg.Register(document.KindJoin, Join{})
}
