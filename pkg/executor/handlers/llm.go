package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nelsonlove/seriesoftubes-sub001/pkg/executor"
)

// LLM calls the configured LLM adapter (spec §4.4 llm). On success the
// result is parsed as JSON conforming to config.schema when one is given,
// otherwise the raw text is returned. Transport failures retry once with
// exponential delay (executor.LLMRetryPolicy); a structural schema-
// validation failure is terminal, not retried.
type LLM struct{}

func (LLM) Execute(ctx context.Context, req *executor.Request) (any, error) {
	if req.Adapters == nil || req.Adapters.LLM == nil {
		return nil, fmt.Errorf("llm: no LLM adapter configured")
	}

	model, _ := req.Config["model"].(string)
	if model == "" {
		return nil, fmt.Errorf("llm: config.model is required")
	}

	prompt, ok := req.Config["prompt"].(string)
	if !ok || prompt == "" {
		prompt, _ = req.Config["prompt_template"].(string)
	}
	if prompt == "" {
		return nil, fmt.Errorf("llm: config.prompt or config.prompt_template is required")
	}

	schema, _ := req.Config["schema"].(map[string]any)

	var result any
	retry := executor.LLMRetryPolicy()
	err := retry.Do(ctx, func() error {
		v, err := req.Adapters.LLM.Complete(ctx, model, prompt, schema)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	if schema == nil {
		return result, nil
	}

	parsed, err := coerceToSchema(result, schema)
	if err != nil {
		return nil, fmt.Errorf("llm: output does not conform to schema: %w", err)
	}
	return parsed, nil
}

// coerceToSchema parses a raw-text result as JSON and checks its shape
// against a minimal JSON-Schema subset (object/array/string/number/boolean
// types and object "required"), per spec §4.4's "schema (a JSON-Schema
// subset)".
func coerceToSchema(result any, schema map[string]any) (any, error) {
	var v any
	switch r := result.(type) {
	case string:
		if err := json.Unmarshal([]byte(r), &v); err != nil {
			return nil, fmt.Errorf("result is not valid JSON: %w", err)
		}
	default:
		v = result
	}

	if err := checkSchema(v, schema); err != nil {
		return nil, err
	}
	return v, nil
}

func checkSchema(v any, schema map[string]any) error {
	typ, _ := schema["type"].(string)
	switch typ {
	case "object":
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("expected object, got %T", v)
		}
		if required, ok := schema["required"].([]any); ok {
			for _, r := range required {
				name, _ := r.(string)
				if _, ok := m[name]; !ok {
					return fmt.Errorf("missing required field %q", name)
				}
			}
		}
	case "array":
		if _, ok := v.([]any); !ok {
			return fmt.Errorf("expected array, got %T", v)
		}
	case "string":
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
	case "number":
		switch v.(type) {
		case float64, int, int64:
		default:
			return fmt.Errorf("expected number, got %T", v)
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", v)
		}
	}
	return nil
}
