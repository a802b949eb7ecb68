package handlers

import (
	"context"
	"fmt"

	"github.com/nelsonlove/seriesoftubes-sub001/pkg/executor"
)

// Route evaluates config.routes (an ordered list of {when|is_default, to|then})
// in order and returns {"chosen": <target name>} for the first matching
// branch (spec §4.4 route/conditional). Marking the chosen branch's
// descendants reachable, and its siblings' exclusive descendants
// Skipped{"not taken"}, is the engine's concern — Route itself only
// selects.
type Route struct{}

func (Route) Execute(ctx context.Context, req *executor.Request) (any, error) {
	raw, ok := req.Raw["routes"].([]any)
	if !ok {
		return nil, fmt.Errorf("route: config.routes is required")
	}

	var defaultTarget string
	for _, r := range raw {
		rm, ok := r.(map[string]any)
		if !ok {
			continue
		}
		target := stringField(rm, "to", "then")

		if isDefault, _ := rm["is_default"].(bool); isDefault {
			defaultTarget = target
			continue
		}

		when, ok := rm["when"].(string)
		if !ok {
			continue
		}
		matched, err := req.Engine.EvalBool(when, req.Scope)
		if err != nil {
			return nil, fmt.Errorf("route: evaluate when: %w", err)
		}
		if matched {
			return map[string]any{"chosen": target}, nil
		}
	}

	if defaultTarget != "" {
		return map[string]any{"chosen": defaultTarget}, nil
	}

	return nil, fmt.Errorf("route: no branch matched (reason: no-match)")
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// ChosenTarget extracts the target name Route selected from its Success
// value, used by the engine to compute reachability.
func ChosenTarget(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	s, ok := m["chosen"].(string)
	return s, ok
}
