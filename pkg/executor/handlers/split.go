package handlers

import (
	"context"
	"fmt"

	"github.com/nelsonlove/seriesoftubes-sub001/pkg/executor"
)

// Split evaluates config.field to an array; its Success value is the array
// itself. The engine's fan-out dispatcher reads it to instantiate one
// sub-DAG execution per element, binding config.item_name (default "item")
// and the "item" alias plus loop.index in each instance's scope (spec
// §4.5 split). The handler does no iteration itself — fan-out
// instantiation is the executor's concern.
type Split struct{}

func (Split) Execute(ctx context.Context, req *executor.Request) (any, error) {
	field, ok := req.Raw["field"].(string)
	if !ok {
		return nil, fmt.Errorf("split: config.field is required")
	}
	v, err := req.Engine.RenderValue(field, req.Scope)
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("split: config.field did not resolve to an array")
	}
	return arr, nil
}

// ItemName returns the configured loop binding name for a split node,
// defaulting to "item".
func ItemName(cfg map[string]any) string {
	if s, ok := cfg["item_name"].(string); ok && s != "" {
		return s
	}
	return "item"
}
