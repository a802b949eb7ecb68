package plan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nelsonlove/seriesoftubes-sub001/pkg/document"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/models"
)

func docFromYAML(t *testing.T, text string) *document.Document {
	t.Helper()
	doc, err := document.Parse([]byte(text))
	require.NoError(t, err)
	return doc
}

func TestValidate_SimpleChainOK(t *testing.T) {
	doc := docFromYAML(t, `
name: simple
inputs:
  city:
    type: string
    required: true
nodes:
  a:
    kind: transform
    config:
      template: "{{ inputs.city }}"
  b:
    kind: transform
    depends_on: [a]
    config:
      template: "{{ a }}"
outputs:
  result: b
`)
	p, err := Validate(doc)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Len(t, p.Waves, 2)
	assert.Equal(t, []string{"a"}, p.Waves[0])
	assert.Equal(t, []string{"b"}, p.Waves[1])
}

func TestValidate_UnresolvedRef(t *testing.T) {
	doc := docFromYAML(t, `
name: bad-ref
nodes:
  a:
    kind: transform
    config:
      template: "{{ nonexistent.field }}"
`)
	_, err := Validate(doc)
	require.Error(t, err)
	ve, ok := err.(models.ValidationErrors)
	require.True(t, ok)
	assert.NotEmpty(t, ve)
}

func TestValidate_SelfDependencyRejected(t *testing.T) {
	doc := docFromYAML(t, `
name: self-dep
nodes:
  a:
    kind: transform
    depends_on: [a]
    config: {template: "x"}
`)
	_, err := Validate(doc)
	require.Error(t, err)
}

func TestValidate_CycleRejected(t *testing.T) {
	doc := docFromYAML(t, `
name: cycle
nodes:
  a:
    kind: transform
    depends_on: [b]
    config: {template: "{{ b }}"}
  b:
    kind: transform
    depends_on: [a]
    config: {template: "{{ a }}"}
`)
	_, err := Validate(doc)
	require.Error(t, err)
}

func TestValidate_HTTPBadURLScheme(t *testing.T) {
	doc := docFromYAML(t, `
name: bad-url
nodes:
  a:
    kind: http
    config:
      url: "ftp://example.com"
      method: GET
`)
	_, err := Validate(doc)
	require.Error(t, err)
	ve := err.(models.ValidationErrors)
	found := false
	for _, e := range ve {
		if e.Field == "url" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidate_SplitAggregateFanOutGroup(t *testing.T) {
	doc := docFromYAML(t, `
name: fanout
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
      condition: "{{ company.rev > 1000000 }}"
  t:
    kind: transform
    depends_on: [f]
    config:
      template:
        r: "{{ company.rev / 1000000 }}"
  agg:
    kind: aggregate
    depends_on: [t]
    config:
      mode: array
outputs:
  result: agg
`)
	p, err := Validate(doc)
	require.NoError(t, err)
	require.Len(t, p.Groups, 1)
	g := p.Groups[0]
	assert.Equal(t, "s", g.Split)
	assert.Equal(t, "agg", g.Aggregate)
	assert.ElementsMatch(t, []string{"f", "t"}, g.Members)
}

// Two unrelated split/.../aggregate pipelines in the same document must be
// matched independently: a node in one pipeline's member chain must never
// end up assigned to the other pipeline's group.
func TestValidate_TwoIndependentFanOutGroupsDoNotCrossWire(t *testing.T) {
	doc := docFromYAML(t, `
name: siblings
inputs:
  xs:
    type: array
    required: true
  ys:
    type: array
    required: true
nodes:
  s1:
    kind: split
    config:
      field: "{{ inputs.xs }}"
      item_name: x
  t1:
    kind: transform
    depends_on: [s1]
    config:
      template: "{{ x }}"
  a1:
    kind: aggregate
    depends_on: [t1]
    config:
      mode: array
  s2:
    kind: split
    config:
      field: "{{ inputs.ys }}"
      item_name: y
  t2:
    kind: transform
    depends_on: [s2]
    config:
      template: "{{ y }}"
  a2:
    kind: aggregate
    depends_on: [t2]
    config:
      mode: array
outputs:
  out1: a1
  out2: a2
`)
	p, err := Validate(doc)
	require.NoError(t, err)
	require.Len(t, p.Groups, 2)

	byAgg := map[string]*FanOutGroup{}
	for _, g := range p.Groups {
		byAgg[g.Aggregate] = g
	}
	g1, g2 := byAgg["a1"], byAgg["a2"]
	require.NotNil(t, g1)
	require.NotNil(t, g2)
	assert.Equal(t, "s1", g1.Split)
	assert.ElementsMatch(t, []string{"t1"}, g1.Members)
	assert.Equal(t, "s2", g2.Split)
	assert.ElementsMatch(t, []string{"t2"}, g2.Members)
}

// Two aggregates both downstream of the same split (via independent member
// branches) cannot both close it (spec §9 open question (b)).
func TestValidate_SharedAggregateRejected(t *testing.T) {
	doc := docFromYAML(t, `
name: shared-agg
inputs:
  xs:
    type: array
    required: true
nodes:
  s1:
    kind: split
    config:
      field: "{{ inputs.xs }}"
      item_name: x
  m1:
    kind: transform
    depends_on: [s1]
    config:
      template: "{{ x }}"
  m2:
    kind: transform
    depends_on: [s1]
    config:
      template: "{{ x }}"
  a1:
    kind: aggregate
    depends_on: [m1]
    config:
      mode: array
  a2:
    kind: aggregate
    depends_on: [m2]
    config:
      mode: array
`)
	_, err := Validate(doc)
	require.Error(t, err)
	ve, ok := err.(models.ValidationErrors)
	require.True(t, ok)
	assert.True(t, errors.Is(ve, models.ErrSharedAggregate))
}

func TestValidate_SentinelsWireThroughErrorsIs(t *testing.T) {
	doc := docFromYAML(t, `
name: self-dep
nodes:
  a:
    kind: transform
    depends_on: [a]
    config: {template: "x"}
`)
	_, err := Validate(doc)
	require.Error(t, err)
	ve, ok := err.(models.ValidationErrors)
	require.True(t, ok)
	assert.True(t, errors.Is(ve, models.ErrSelfDependency))
}

func TestValidate_UnmatchedSplitRejected(t *testing.T) {
	doc := docFromYAML(t, `
name: unmatched
inputs:
  xs:
    type: array
    required: true
nodes:
  s:
    kind: split
    config:
      field: "{{ inputs.xs }}"
`)
	_, err := Validate(doc)
	require.Error(t, err)
}

func TestValidate_InputDefaultTypeMismatch(t *testing.T) {
	doc := docFromYAML(t, `
name: bad-default
inputs:
  count:
    type: number
    default: "not-a-number"
nodes:
  a:
    kind: transform
    config: {template: "{{ inputs.count }}"}
`)
	_, err := Validate(doc)
	require.Error(t, err)
}
