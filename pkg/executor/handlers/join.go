package handlers

import (
	"context"
	"fmt"

	"github.com/nelsonlove/seriesoftubes-sub001/pkg/executor"
)

// Join is a synchronization barrier: the planner makes every
// config.sources node a dependency, so the executor waits for each to
// terminate before dispatching Join, then populates
// req.Elements with one named ElementView per source (spec §4.5 join).
type Join struct{}

func (Join) Execute(ctx context.Context, req *executor.Request) (any, error) {
	onExpr, keyed := req.Raw["on"].(string)

	if keyed {
		out := make(map[string]any, len(req.Elements))
		for _, el := range req.Elements {
			k, err := req.Engine.EvalExpr(onExpr, el.Scope)
			if err != nil {
				return nil, fmt.Errorf("join: evaluate on: %w", err)
			}
			out[fmt.Sprintf("%v", k)] = el.Value
		}
		return out, nil
	}

	out := make(map[string]any, len(req.Elements))
	for _, el := range req.Elements {
		out[el.Name] = el.Value
	}
	return out, nil
}
