package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nelsonlove/seriesoftubes-sub001/pkg/executor"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/template"
)

func newReq(raw map[string]any, scope template.Scope) *executor.Request {
	eng := template.New()
	cfg, _ := eng.ExpandConfig(raw, scope)
	return &executor.Request{Config: cfg, Raw: raw, Scope: scope, Engine: eng}
}

func TestTransform_RendersTemplateNativeType(t *testing.T) {
	req := newReq(map[string]any{"template": "{{ a.x }}"}, template.Scope{"a": map[string]any{"x": 3}})
	out, err := Transform{}.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 3, out)
}

func TestTransform_RendersMapTemplate(t *testing.T) {
	req := newReq(map[string]any{"template": map[string]any{"r": "{{ a.rev / 2 }}"}}, template.Scope{"a": map[string]any{"rev": 10.0}})
	out, err := Transform{}.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"r": 5.0}, out)
}

func TestFilter_EvaluatesCondition(t *testing.T) {
	req := newReq(map[string]any{"condition": "item.rev > 1000000"}, template.Scope{"item": map[string]any{"rev": 2000000.0}})
	out, err := Filter{}.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestSplit_ReturnsArray(t *testing.T) {
	req := newReq(map[string]any{"field": "{{ inputs.companies }}"}, template.Scope{"inputs": map[string]any{"companies": []any{1.0, 2.0}}})
	out, err := Split{}.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0}, out)
}

func TestAggregate_ArrayModePreservesOrder(t *testing.T) {
	eng := template.New()
	req := &executor.Request{
		Raw:    map[string]any{"mode": "array"},
		Engine: eng,
		Elements: []executor.ElementView{
			{Value: 1.0}, {Value: 2.0}, {Value: 3.0},
		},
	}
	out, err := Aggregate{}.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0, 3.0}, out)
}

func TestAggregate_ObjectModeRejectsDuplicateKeys(t *testing.T) {
	eng := template.New()
	req := &executor.Request{
		Raw:    map[string]any{"mode": "object", "key": "k"},
		Engine: eng,
		Elements: []executor.ElementView{
			{Value: "a", Scope: template.Scope{"k": "x"}},
			{Value: "b", Scope: template.Scope{"k": "x"}},
		},
	}
	_, err := Aggregate{}.Execute(context.Background(), req)
	require.Error(t, err)
}

func TestRoute_FirstMatchingBranchWins(t *testing.T) {
	req := newReq(map[string]any{
		"routes": []any{
			map[string]any{"when": `size == "enterprise"`, "to": "A"},
			map[string]any{"when": `size == "startup"`, "to": "B"},
			map[string]any{"is_default": true, "to": "C"},
		},
	}, template.Scope{"size": "enterprise"})
	out, err := Route{}.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"chosen": "A"}, out)
}

func TestRoute_FallsBackToDefault(t *testing.T) {
	req := newReq(map[string]any{
		"routes": []any{
			map[string]any{"when": `size == "enterprise"`, "to": "A"},
			map[string]any{"is_default": true, "to": "C"},
		},
	}, template.Scope{"size": "startup"})
	out, err := Route{}.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"chosen": "C"}, out)
}

func TestRoute_NoMatchIsError(t *testing.T) {
	req := newReq(map[string]any{
		"routes": []any{
			map[string]any{"when": `size == "enterprise"`, "to": "A"},
		},
	}, template.Scope{"size": "startup"})
	_, err := Route{}.Execute(context.Background(), req)
	require.Error(t, err)
}

func TestJoin_KeyedByOn(t *testing.T) {
	eng := template.New()
	req := &executor.Request{
		Raw:    map[string]any{"on": "id"},
		Engine: eng,
		Elements: []executor.ElementView{
			{Value: "a-val", Scope: template.Scope{"id": "a"}},
			{Value: "b-val", Scope: template.Scope{"id": "b"}},
		},
	}
	out, err := Join{}.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "a-val", "b": "b-val"}, out)
}
