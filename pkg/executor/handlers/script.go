package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nelsonlove/seriesoftubes-sub001/pkg/executor"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/models"
)

// Script evaluates config.code or config.file through the configured
// script host, exposing config.context as the script's read-only input
// (spec §4.4 script/python). A non-JSON-serializable return value is
// returned as a terminal *models.SerializationError, which the executor
// wraps in a HandlerError.
type Script struct{}

func (Script) Execute(ctx context.Context, req *executor.Request) (any, error) {
	if req.Adapters == nil || req.Adapters.Script == nil {
		return nil, fmt.Errorf("script: no script host configured")
	}

	code, _ := req.Config["code"].(string)
	if code == "" {
		code, _ = req.Config["file"].(string)
	}
	if code == "" {
		return nil, fmt.Errorf("script: config.code or config.file is required")
	}

	scriptCtx, _ := req.Config["context"].(map[string]any)

	result, err := req.Adapters.Script.Eval(ctx, code, scriptCtx)
	if err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}

	if _, err := json.Marshal(result); err != nil {
		return nil, &models.SerializationError{NodeKind: "script", Err: err}
	}
	return result, nil
}
