package template

import "fmt"

// ExpandConfig recursively renders every string leaf of cfg against scope,
// preserving map/slice/number/bool structure and the whole-value native
// type rule for any leaf that is itself a bare template string.
func (e *Engine) ExpandConfig(cfg map[string]any, scope Scope) (map[string]any, error) {
	out, err := e.expandValue(cfg, scope)
	if err != nil {
		return nil, err
	}
	m, _ := out.(map[string]any)
	return m, nil
}

func (e *Engine) expandValue(v any, scope Scope) (any, error) {
	switch t := v.(type) {
	case string:
		return e.RenderValue(t, scope)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			rv, err := e.expandValue(vv, scope)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			rv, err := e.expandValue(vv, scope)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}
