package adapters

import (
	"context"
	"fmt"
)

// UnconfiguredLLM reports a clear error for every call. LLM provider HTTP
// clients are an out-of-scope external collaborator (spec §1); embed an
// application-supplied LLM that satisfies the LLM interface to enable the
// llm node kind.
type UnconfiguredLLM struct{}

func (UnconfiguredLLM) Complete(ctx context.Context, model, prompt string, schema map[string]any) (any, error) {
	return nil, fmt.Errorf("no LLM adapter configured for model %q", model)
}

// UnconfiguredScript reports a clear error for every call. The embedded
// scripting runtime is an out-of-scope external collaborator (spec §1);
// embed an application-supplied Script host to enable the script node kind.
type UnconfiguredScript struct{}

func (UnconfiguredScript) Eval(ctx context.Context, codeOrFile string, scriptContext map[string]any) (any, error) {
	return nil, fmt.Errorf("no script host configured")
}
