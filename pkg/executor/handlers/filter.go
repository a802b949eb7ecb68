package handlers

import (
	"context"
	"fmt"

	"github.com/nelsonlove/seriesoftubes-sub001/pkg/executor"
)

// Filter evaluates config.condition against the node's scope and returns
// the boolean result. The engine's fan-out dispatcher reads this value to
// decide whether the element's sub-DAG short-circuits (spec §4.5 filter) —
// the handler itself has no notion of fan-out groups.
type Filter struct{}

func (Filter) Execute(ctx context.Context, req *executor.Request) (any, error) {
	cond, ok := req.Raw["condition"].(string)
	if !ok {
		return nil, fmt.Errorf("filter: config.condition is required")
	}
	return req.Engine.EvalBool(cond, req.Scope)
}
