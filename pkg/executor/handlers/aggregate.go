package handlers

import (
	"fmt"

	"context"

	"github.com/nelsonlove/seriesoftubes-sub001/pkg/executor"
)

// Aggregate closes the innermost fan-out group (spec §4.5 aggregate). The
// executor populates req.Elements with one ElementView per surviving
// element, already in original-index order with filtered-out elements
// removed, so array/concat mode is a direct projection.
type Aggregate struct{}

func (Aggregate) Execute(ctx context.Context, req *executor.Request) (any, error) {
	mode, _ := req.Raw["mode"].(string)

	switch mode {
	case "array":
		out := make([]any, len(req.Elements))
		for i, el := range req.Elements {
			out[i] = el.Value
		}
		return out, nil

	case "concat":
		var out []any
		for _, el := range req.Elements {
			arr, ok := el.Value.([]any)
			if !ok {
				return nil, fmt.Errorf("aggregate: concat mode requires each element value to be an array")
			}
			out = append(out, arr...)
		}
		if out == nil {
			out = []any{}
		}
		return out, nil

	case "sum":
		var total float64
		for _, el := range req.Elements {
			n, ok := asNumber(el.Value)
			if !ok {
				return nil, fmt.Errorf("aggregate: sum mode requires each element value to be numeric")
			}
			total += n
		}
		return total, nil

	case "object":
		keyExpr, ok := req.Raw["key"].(string)
		if !ok {
			return nil, fmt.Errorf("aggregate: object mode requires config.key")
		}
		out := make(map[string]any, len(req.Elements))
		for _, el := range req.Elements {
			k, err := req.Engine.EvalExpr(keyExpr, el.Scope)
			if err != nil {
				return nil, fmt.Errorf("aggregate: evaluate key: %w", err)
			}
			ks := fmt.Sprintf("%v", k)
			if _, exists := out[ks]; exists {
				return nil, fmt.Errorf("aggregate: duplicate key %q in object mode", ks)
			}
			out[ks] = el.Value
		}
		return out, nil

	default:
		return nil, fmt.Errorf("aggregate: unknown mode %q", mode)
	}
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
