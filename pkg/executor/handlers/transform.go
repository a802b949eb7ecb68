// Package handlers implements the node-kind handlers spec §4.4/§4.5
// describe, dispatched through executor.Registry. Grounded in the
// teacher's pkg/executor/builtin executors, narrowed to this engine's
// Handler contract and data-flow semantics.
package handlers

import (
	"context"
	"fmt"

	"github.com/itchyny/gojq"

	"github.com/nelsonlove/seriesoftubes-sub001/pkg/executor"
)

// Transform expands config.template against the node's scope, or — when
// config.filter is set instead — runs a jq filter over config.input (a
// template reference, default the whole scope), grounded on the teacher's
// builtin.TransformExecutor "jq" mode (spec §4.5 transform, supplemented
// jq filter mode).
type Transform struct{}

func (Transform) Execute(ctx context.Context, req *executor.Request) (any, error) {
	if filterStr, ok := req.Raw["filter"].(string); ok {
		return runJQ(req, filterStr)
	}

	tmpl, ok := req.Raw["template"]
	if !ok {
		return nil, fmt.Errorf("transform: config.template or config.filter is required")
	}
	switch t := tmpl.(type) {
	case string:
		return req.Engine.RenderValue(t, req.Scope)
	case map[string]any:
		return req.Engine.ExpandConfig(t, req.Scope)
	default:
		return tmpl, nil
	}
}

func runJQ(req *executor.Request, filterStr string) (any, error) {
	query, err := gojq.Parse(filterStr)
	if err != nil {
		return nil, fmt.Errorf("transform: parse jq filter: %w", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("transform: compile jq filter: %w", err)
	}

	var inputData any = map[string]any(req.Scope)
	if inputRef, ok := req.Raw["input"].(string); ok {
		inputData, err = req.Engine.RenderValue(inputRef, req.Scope)
		if err != nil {
			return nil, fmt.Errorf("transform: %w", err)
		}
	}

	iter := code.Run(inputData)
	v, ok := iter.Next()
	if !ok {
		return nil, fmt.Errorf("transform: jq filter produced no output")
	}
	if jqErr, ok := v.(error); ok {
		return nil, fmt.Errorf("transform: jq filter execution error: %w", jqErr)
	}
	return v, nil
}
