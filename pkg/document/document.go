// Package document defines the Document model — the parsed, in-memory form
// of a workflow's human-writable text — and parse(), which turns document
// text into a Document or a ParseError.
package document

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/nelsonlove/seriesoftubes-sub001/pkg/models"
)

// InputType is the declared type of a document input.
type InputType string

const (
	TypeString  InputType = "string"
	TypeNumber  InputType = "number"
	TypeBoolean InputType = "boolean"
	TypeObject  InputType = "object"
	TypeArray   InputType = "array"
)

func (t InputType) valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeObject, TypeArray:
		return true
	}
	return false
}

// InputDecl declares a single workflow input.
type InputDecl struct {
	Type        InputType `yaml:"type"`
	Required    bool      `yaml:"required"`
	Default     any       `yaml:"default"`
	Description string    `yaml:"description"`
}

// Kind is a node's handler kind.
type Kind string

const (
	KindLLM       Kind = "llm"
	KindHTTP      Kind = "http"
	KindRoute     Kind = "route"
	KindFile      Kind = "file"
	KindScript    Kind = "script"
	KindSplit     Kind = "split"
	KindFilter    Kind = "filter"
	KindTransform Kind = "transform"
	KindAggregate Kind = "aggregate"
	KindJoin      Kind = "join"
	KindForeach   Kind = "foreach"
)

// kindAliases normalizes spec-sanctioned alternate spellings onto the
// canonical Kind used internally (route|conditional, script|python).
var kindAliases = map[string]Kind{
	"conditional": KindRoute,
	"python":      KindScript,
}

func normalizeKind(raw string) Kind {
	if alias, ok := kindAliases[raw]; ok {
		return alias
	}
	return Kind(raw)
}

func (k Kind) valid() bool {
	switch k {
	case KindLLM, KindHTTP, KindRoute, KindFile, KindScript,
		KindSplit, KindFilter, KindTransform, KindAggregate, KindJoin, KindForeach:
		return true
	}
	return false
}

// NodeDecl declares a single node in the document.
type NodeDecl struct {
	Kind        Kind           `yaml:"kind"`
	DependsOn   []string       `yaml:"depends_on"`
	Config      map[string]any `yaml:"config"`
	Description string         `yaml:"description"`
	SkipErrors  bool           `yaml:"skip_errors"`
}

// Document is the read-only, parsed form of a workflow's text. The engine
// never mutates a Document after parse/validate.
type Document struct {
	Name        string
	Version     string
	Description string
	Inputs      map[string]*InputDecl
	Nodes       map[string]*NodeDecl
	Outputs     map[string]string // declared output name -> source expression
}

// rawDocument mirrors the on-disk YAML shape before normalization.
type rawDocument struct {
	Name        string                    `yaml:"name"`
	Version     string                    `yaml:"version"`
	Description string                    `yaml:"description"`
	Inputs      map[string]*InputDecl     `yaml:"inputs"`
	Nodes       map[string]rawNodeDecl    `yaml:"nodes"`
	Outputs     map[string]string         `yaml:"outputs"`
}

type rawNodeDecl struct {
	Kind        string         `yaml:"kind"`
	DependsOn   []string       `yaml:"depends_on"`
	Config      map[string]any `yaml:"config"`
	Description string         `yaml:"description"`
	SkipErrors  bool           `yaml:"skip_errors"`
}

// Parse decodes document text (YAML, the structured key/value text format
// named in spec §6) into a Document. Structural/syntax problems are
// reported as a *models.ParseError; Parse never returns a partially
// decoded Document on error.
func Parse(text []byte) (*Document, error) {
	var raw rawDocument
	if err := yaml.Unmarshal(text, &raw); err != nil {
		return nil, &models.ParseError{Message: err.Error()}
	}

	if raw.Name == "" {
		return nil, &models.ParseError{Message: "document name is required"}
	}
	if len(raw.Nodes) == 0 {
		return nil, &models.ParseError{Message: "document must declare at least one node"}
	}

	doc := &Document{
		Name:        raw.Name,
		Version:     raw.Version,
		Description: raw.Description,
		Inputs:      raw.Inputs,
		Nodes:       make(map[string]*NodeDecl, len(raw.Nodes)),
		Outputs:     raw.Outputs,
	}
	if doc.Inputs == nil {
		doc.Inputs = map[string]*InputDecl{}
	}
	if doc.Outputs == nil {
		doc.Outputs = map[string]string{}
	}

	for name, rn := range raw.Nodes {
		kind := normalizeKind(rn.Kind)
		if !kind.valid() {
			return nil, &models.ParseError{Message: fmt.Sprintf("node %q: unknown kind %q", name, rn.Kind)}
		}
		nd := &NodeDecl{
			Kind:        kind,
			DependsOn:   rn.DependsOn,
			Config:      rn.Config,
			Description: rn.Description,
			SkipErrors:  rn.SkipErrors,
		}
		if nd.Config == nil {
			nd.Config = map[string]any{}
		}
		if nd.Kind == KindForeach {
			expandForeach(doc, name, nd)
			continue
		}
		doc.Nodes[name] = nd
	}

	return doc, nil
}

// expandForeach desugars a foreach node into an anonymous split/transform/
// aggregate triple at parse time, per SPEC_FULL.md §5, so the planner and
// executor never special-case foreach. config shape mirrors split+transform:
//   foreach:
//     config: {field: <ref>, item_name?: "item", template: <mapping|expression>, mode?: "array"}
func expandForeach(doc *Document, name string, nd *NodeDecl) {
	itemName, _ := nd.Config["item_name"].(string)
	if itemName == "" {
		itemName = "item"
	}
	mode, _ := nd.Config["mode"].(string)
	if mode == "" {
		mode = "array"
	}

	splitName := name + "__split"
	transformName := name + "__map"

	doc.Nodes[splitName] = &NodeDecl{
		Kind:      KindSplit,
		DependsOn: nd.DependsOn,
		Config: map[string]any{
			"field":     nd.Config["field"],
			"item_name": itemName,
		},
		Description: nd.Description,
	}
	doc.Nodes[transformName] = &NodeDecl{
		Kind:      KindTransform,
		DependsOn: []string{splitName},
		Config: map[string]any{
			"template": nd.Config["template"],
		},
	}
	doc.Nodes[name] = &NodeDecl{
		Kind:      KindAggregate,
		DependsOn: []string{transformName},
		Config: map[string]any{
			"mode": mode,
			"key":  nd.Config["key"],
		},
		Description: nd.Description,
		SkipErrors:  nd.SkipErrors,
	}
}
