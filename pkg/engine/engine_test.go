package engine_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nelsonlove/seriesoftubes-sub001/pkg/adapters"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/document"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/engine"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/models"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/plan"
)

// echoLLM is a fake adapters.LLM that returns the already-expanded prompt
// verbatim, so a test can assert on what the engine resolved a
// prompt_template to rather than on anything a real provider would add.
type echoLLM struct{}

func (echoLLM) Complete(ctx context.Context, model, prompt string, schema map[string]any) (any, error) {
	return fmt.Sprintf("%s via %s", prompt, model), nil
}

func mustPlan(t *testing.T, text string) *plan.Plan {
	t.Helper()
	doc, err := document.Parse([]byte(text))
	require.NoError(t, err)
	p, err := plan.Validate(doc)
	require.NoError(t, err)
	return p
}

// S1 (data-flow): split -> filter -> transform -> aggregate(array).
func TestEngine_DataFlowFilterTransformAggregate(t *testing.T) {
	p := mustPlan(t, `
name: dataflow
inputs:
  companies:
    type: array
    required: true
nodes:
  s:
    kind: split
    config:
      field: "{{ inputs.companies }}"
      item_name: company
  f:
    kind: filter
    depends_on: [s]
    config:
      condition: "company.rev > 1000000"
  t:
    kind: transform
    depends_on: [f]
    config:
      template:
        r: "{{ company.rev / 1000000 }}"
  a:
    kind: aggregate
    depends_on: [t]
    config:
      mode: array
outputs:
  result: a
`)

	e := engine.New(nil)
	rec, err := e.Run(context.Background(), p, map[string]any{
		"companies": []any{
			map[string]any{"rev": 2e6},
			map[string]any{"rev": 5e5},
			map[string]any{"rev": 5e6},
		},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, models.ExecutionCompleted, rec.Status)

	got := rec.Outputs["result"]
	arr, ok := got.([]any)
	require.True(t, ok, "expected array output, got %T: %v", got, got)
	require.Len(t, arr, 2)
	assert.Equal(t, 2.0, arr[0].(map[string]any)["r"])
	assert.Equal(t, 5.0, arr[1].(map[string]any)["r"])
}

// S2 (conditional routing): a classify node feeds a route; only the chosen
// branch runs, the others are Skipped{"not taken"}.
func TestEngine_RouteSelectsOneBranchAndSkipsOthers(t *testing.T) {
	p := mustPlan(t, `
name: routing
nodes:
  classify:
    kind: transform
    config:
      template:
        size: enterprise
  r:
    kind: route
    depends_on: [classify]
    config:
      routes:
        - when: 'classify.size == "enterprise"'
          to: a
        - when: 'classify.size == "startup"'
          to: b
        - is_default: true
          to: c
  a:
    kind: transform
    depends_on: [r]
    config: { template: "A ran" }
  b:
    kind: transform
    depends_on: [r]
    config: { template: "B ran" }
  c:
    kind: transform
    depends_on: [r]
    config: { template: "C ran" }
outputs:
  chosen: r.chosen
  a_out: a
`)

	e := engine.New(nil)
	rec, err := e.Run(context.Background(), p, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, models.NodeSuccess, rec.Progress["a"].Status)
	assert.Equal(t, models.NodeSkipped, rec.Progress["b"].Status)
	assert.Equal(t, models.NodeSkipped, rec.Progress["c"].Status)
	assert.Equal(t, "a", rec.Outputs["chosen"])
	assert.Equal(t, "A ran", rec.Outputs["a_out"])
}

// S4 (partial failure with skip_errors): an http node with an unreachable
// adapter fails; a downstream node with skip_errors:true still runs and
// sees Failed for it; overall status is partial.
func TestEngine_SkipErrorsPartialFailure(t *testing.T) {
	p := mustPlan(t, `
name: partial
nodes:
  x:
    kind: http
    config:
      url: "https://example.com/data"
      method: GET
  downstream:
    kind: transform
    depends_on: [x]
    skip_errors: true
    config:
      template:
        saw_error: "{{ x.error | default('none') }}"
  unaffected:
    kind: transform
    config:
      template: "ok"
outputs:
  x_out: x
  downstream_out: downstream
  unaffected_out: unaffected
`)

	e := engine.New(nil) // nil adapters -> http handler fails with HandlerError
	rec, err := e.Run(context.Background(), p, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionPartial, rec.Status)
	assert.Equal(t, models.NodeFailed, rec.Progress["x"].Status)
	assert.Equal(t, models.NodeSuccess, rec.Progress["downstream"].Status)
	assert.NotContains(t, rec.Outputs, "x_out")
	assert.Equal(t, "ok", rec.Outputs["unaffected_out"])
	require.Contains(t, rec.Errors, "x")
}

// S6 (aggregate ordering): aggregate(array) over a split preserves the
// original array's index order regardless of per-element work.
func TestEngine_AggregatePreservesOriginalOrder(t *testing.T) {
	p := mustPlan(t, `
name: ordering
inputs:
  letters:
    type: array
    required: true
nodes:
  s:
    kind: split
    config:
      field: "{{ inputs.letters }}"
  t:
    kind: transform
    depends_on: [s]
    config:
      template: "{{ item | upper() }}"
  a:
    kind: aggregate
    depends_on: [t]
    config:
      mode: array
outputs:
  out: a
`)

	e := engine.New(nil)
	rec, err := e.Run(context.Background(), p, map[string]any{
		"letters": []any{"a", "b", "c", "d"},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, models.ExecutionCompleted, rec.Status)

	arr, ok := rec.Outputs["out"].([]any)
	require.True(t, ok)
	assert.Equal(t, []any{"A", "B", "C", "D"}, arr)
}

// join is a synchronization barrier: it waits for every declared source to
// terminate and emits one entry per source keyed by source name.
func TestEngine_JoinCombinesNamedSources(t *testing.T) {
	p := mustPlan(t, `
name: joined
nodes:
  a:
    kind: transform
    config: { template: "{{ 1.0 + 1.0 }}" }
  b:
    kind: transform
    config: { template: "{{ 2.0 + 2.0 }}" }
  j:
    kind: join
    depends_on: [a, b]
    config:
      sources: [a, b]
outputs:
  out: j
`)

	e := engine.New(nil)
	rec, err := e.Run(context.Background(), p, nil, nil)
	require.NoError(t, err)
	require.Equal(t, models.ExecutionCompleted, rec.Status)

	out, ok := rec.Outputs["out"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 2.0, out["a"])
	assert.Equal(t, 4.0, out["b"])
}

// llm's config.context (spec §4.4) widens the scope used to expand the rest
// of that node's config before the handler runs, so prompt_template can
// reach a local name bound to a source reference that isn't itself a
// dependency-declared node output already in scope under its own name.
func TestEngine_LLMContextWidensTemplateScope(t *testing.T) {
	p := mustPlan(t, `
name: llmctx
nodes:
  profile:
    kind: transform
    config:
      template:
        name: acme
  classify:
    kind: llm
    depends_on: [profile]
    config:
      model: gpt-test
      context:
        company: profile
      prompt_template: "Classify {{ company.name }}"
outputs:
  out: classify
`)

	e := engine.New(&adapters.Set{LLM: echoLLM{}})
	rec, err := e.Run(context.Background(), p, nil, nil)
	require.NoError(t, err)
	require.Equal(t, models.ExecutionCompleted, rec.Status)
	assert.Equal(t, "Classify acme via gpt-test", rec.Outputs["out"])
}

// S5 (cancellation): a run whose context is already cancelled before
// dispatch still returns a terminal record, and no node is left pending.
func TestEngine_CancellationReachesTerminalRecord(t *testing.T) {
	p := mustPlan(t, `
name: cancelled
nodes:
  a:
    kind: transform
    config: { template: "a" }
  b:
    kind: transform
    depends_on: [a]
    config: { template: "b" }
`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel before Run even starts dispatch

	e := engine.New(nil)
	rec, err := e.Run(ctx, p, nil, nil)
	require.NoError(t, err)

	for name, prog := range rec.Progress {
		assert.True(t, prog.Status.IsTerminal(), "node %q did not reach a terminal state: %v", name, prog.Status)
	}
}
