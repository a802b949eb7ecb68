// Package plan validates a parsed document.Document into a Plan: a
// topologically ordered, fan-out-aware, scheduler-ready view, grounded in
// the teacher's pkg/engine/dag_utils.go BuildDAG/TopologicalSort idiom and
// extended with the textual-reference edges and fan-out group detection
// this engine's data-flow operators require.
package plan

import (
	"fmt"

	"github.com/nelsonlove/seriesoftubes-sub001/pkg/document"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/models"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/template"
)

var httpMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true, "PATCH": true, "HEAD": true,
}

var fileFormats = map[string]bool{"json": true, "yaml": true, "text": true, "bytes": true}
var fileModes = map[string]bool{"read": true, "write": true}
var aggregateModes = map[string]bool{"array": true, "object": true, "concat": true, "sum": true}

// Validate runs the depends_on, reference, input-default and shape passes
// over doc and collects every failure they find. The cycle check runs only
// when those passes found nothing, and fan-out group matching only when the
// graph is acyclic; fan-out matching reports only its first problem. If no
// failure is found, Validate returns a scheduler-ready Plan.
func Validate(doc *document.Document) (*Plan, error) {
	var errs models.ValidationErrors

	refs := make(map[string][]string, len(doc.Nodes))
	for name, nd := range doc.Nodes {
		refs[name] = template.ExtractRefs(nd.Config)
	}

	errs = append(errs, validateDependsOn(doc)...)
	errs = append(errs, validateRefs(doc, refs)...)
	errs = append(errs, validateInputDefaults(doc)...)
	errs = append(errs, validateShapes(doc)...)

	if len(errs) > 0 {
		return nil, errs
	}

	g := buildGraph(doc, refs)

	if sccs := findSCCs(g); len(sccs) > 0 {
		for _, scc := range sccs {
			errs = append(errs, &models.ValidationError{
				Node:    scc[0],
				Field:   "depends_on",
				Message: fmt.Sprintf("cyclic dependency: %v", scc),
				Err:     models.ErrCyclicDependency,
			})
		}
		return nil, errs
	}

	waves, ok := topoWaves(g)
	if !ok {
		errs = append(errs, &models.ValidationError{Field: "nodes", Message: "dependency graph could not be topologically sorted"})
		return nil, errs
	}

	groups, err := detectFanOutGroups(doc)
	if err != nil {
		if ve, ok := err.(*models.ValidationError); ok {
			errs = append(errs, ve)
		} else {
			errs = append(errs, &models.ValidationError{Field: "nodes", Message: err.Error()})
		}
		return nil, errs
	}

	return &Plan{
		Document: doc,
		Waves:    waves,
		Groups:   groups,
		Deps:     g.edges,
	}, nil
}

// validateDependsOn checks pass-0 structural requirements that the other
// passes assume hold: every depends_on name exists, and no self-reference.
func validateDependsOn(doc *document.Document) models.ValidationErrors {
	var errs models.ValidationErrors
	for name, nd := range doc.Nodes {
		for _, dep := range nd.DependsOn {
			if dep == name {
				errs = append(errs, &models.ValidationError{Node: name, Field: "depends_on", Message: "node cannot depend on itself", Err: models.ErrSelfDependency})
				continue
			}
			if _, ok := doc.Nodes[dep]; !ok {
				errs = append(errs, &models.ValidationError{Node: name, Field: "depends_on", Message: fmt.Sprintf("unknown node %q", dep), Err: models.ErrNodeNotFound})
			}
		}
	}
	return errs
}

// validateRefs is pass 1: every textual template reference in a node's
// config must resolve to a declared input, an env.* lookup, another
// declared node, a known loop binding introduced by an enclosing split, or
// (spec §4.4) one of the node's own config.context local names.
func validateRefs(doc *document.Document, refs map[string][]string) models.ValidationErrors {
	var errs models.ValidationErrors
	bindings := loopBindings(doc)

	for name, tokens := range refs {
		local := bindings[name]
		nodeCtx, _ := doc.Nodes[name].Config["context"].(map[string]any)
		for _, tok := range tokens {
			root := tok
			for i, c := range tok {
				if c == '.' || c == '[' {
					root = tok[:i]
					break
				}
			}
			switch root {
			case "env", "inputs":
				continue
			}
			if _, ok := doc.Nodes[root]; ok {
				continue
			}
			if local[root] {
				continue
			}
			if _, ok := nodeCtx[root]; ok {
				continue
			}
			errs = append(errs, &models.ValidationError{
				Node:    name,
				Field:   "config",
				Message: fmt.Sprintf("unresolved reference %q", tok),
				Err:     models.ErrUnresolvedRef,
			})
		}
	}
	return errs
}

// loopBindings returns, for every node, the set of loop-local identifiers
// (item_name plus the "item" alias, and "loop") visible at that node because
// it is reachable from an enclosing split without having passed its
// matching aggregate yet. Approximated by depends_on transitive closure
// from each split, which is sound because textual references can only
// target nodes already structurally upstream.
func loopBindings(doc *document.Document) map[string]map[string]bool {
	result := make(map[string]map[string]bool, len(doc.Nodes))
	for name := range doc.Nodes {
		result[name] = map[string]bool{}
	}

	children := make(map[string][]string) // dep -> dependents
	for name, nd := range doc.Nodes {
		for _, dep := range nd.DependsOn {
			children[dep] = append(children[dep], name)
		}
	}

	for name, nd := range doc.Nodes {
		if nd.Kind != document.KindSplit {
			continue
		}
		itemName, _ := nd.Config["item_name"].(string)
		if itemName == "" {
			itemName = "item"
		}
		visited := map[string]bool{}
		var walk func(string)
		walk = func(n string) {
			for _, child := range children[n] {
				if visited[child] {
					continue
				}
				visited[child] = true
				result[child][itemName] = true
				result[child]["item"] = true
				result[child]["loop"] = true
				if doc.Nodes[child].Kind != document.KindAggregate {
					walk(child)
				}
			}
		}
		walk(name)
	}
	return result
}

// validateInputDefaults is pass 4: declared input defaults must match
// their declared type, unless the input is required (default is ignored).
func validateInputDefaults(doc *document.Document) models.ValidationErrors {
	var errs models.ValidationErrors
	for name, in := range doc.Inputs {
		if !in.Type.valid() {
			errs = append(errs, &models.ValidationError{Node: name, Field: "type", Message: fmt.Sprintf("unknown input type %q", in.Type), Err: models.ErrInvalidConfig})
			continue
		}
		if in.Required || in.Default == nil {
			continue
		}
		if !typeMatches(in.Type, in.Default) {
			errs = append(errs, &models.ValidationError{
				Node:    name,
				Field:   "default",
				Message: fmt.Sprintf("default value does not match declared type %q", in.Type),
				Err:     models.ErrInvalidConfig,
			})
		}
	}
	return errs
}

func typeMatches(t document.InputType, v any) bool {
	switch t {
	case document.TypeString:
		_, ok := v.(string)
		return ok
	case document.TypeNumber:
		switch v.(type) {
		case int, int64, float64:
			return true
		}
		return false
	case document.TypeBoolean:
		_, ok := v.(bool)
		return ok
	case document.TypeObject:
		_, ok := v.(map[string]any)
		return ok
	case document.TypeArray:
		_, ok := v.([]any)
		return ok
	}
	return false
}

// validateShapes is pass 3: kind-specific required/optional config keys
// and expected literal types, per spec §4.1 item 3 and §4.4/§4.5.
func validateShapes(doc *document.Document) models.ValidationErrors {
	var errs models.ValidationErrors
	for name, nd := range doc.Nodes {
		switch nd.Kind {
		case document.KindHTTP:
			errs = append(errs, validateHTTPShape(name, nd)...)
		case document.KindRoute:
			errs = append(errs, validateRouteShape(name, nd)...)
		case document.KindFile:
			errs = append(errs, validateFileShape(name, nd)...)
		case document.KindSplit:
			errs = append(errs, validateSplitShape(name, nd)...)
		case document.KindAggregate:
			errs = append(errs, validateAggregateShape(name, nd)...)
		case document.KindJoin:
			errs = append(errs, validateJoinShape(name, nd)...)
		case document.KindLLM:
			errs = append(errs, validateLLMShape(name, nd)...)
		}
	}
	return errs
}

func validateHTTPShape(name string, nd *document.NodeDecl) models.ValidationErrors {
	var errs models.ValidationErrors
	url, ok := nd.Config["url"]
	if !ok {
		errs = append(errs, &models.ValidationError{Node: name, Field: "url", Message: "required", Err: models.ErrRequired})
	} else if s, ok := url.(string); !ok || s == "" {
		errs = append(errs, &models.ValidationError{Node: name, Field: "url", Message: "must be a non-empty string", Err: models.ErrInvalidConfig})
	} else if !isTemplateRef(s) && !isLiteralURL(s) {
		errs = append(errs, &models.ValidationError{Node: name, Field: "url", Message: `must start with "http://" or "https://"`, Err: models.ErrInvalidConfig})
	}
	if method, ok := nd.Config["method"]; ok {
		if s, ok := method.(string); !ok || !httpMethods[s] {
			errs = append(errs, &models.ValidationError{Node: name, Field: "method", Message: "must be one of GET, POST, PUT, DELETE, PATCH, HEAD", Err: models.ErrInvalidConfig})
		}
	}
	return errs
}

func isTemplateRef(s string) bool { return exprSpan.MatchString(s) }

func isLiteralURL(s string) bool {
	return len(s) >= 7 && (s[:7] == "http://" || (len(s) >= 8 && s[:8] == "https://"))
}

func validateRouteShape(name string, nd *document.NodeDecl) models.ValidationErrors {
	var errs models.ValidationErrors
	raw, ok := nd.Config["routes"]
	if !ok {
		return models.ValidationErrors{{Node: name, Field: "routes", Message: "required", Err: models.ErrRequired}}
	}
	routes, ok := raw.([]any)
	if !ok || len(routes) == 0 {
		return models.ValidationErrors{{Node: name, Field: "routes", Message: "must be a non-empty ordered list", Err: models.ErrInvalidConfig}}
	}
	for i, r := range routes {
		rm, ok := r.(map[string]any)
		if !ok {
			errs = append(errs, &models.ValidationError{Node: name, Field: "routes", Message: fmt.Sprintf("entry %d must be a mapping", i), Err: models.ErrInvalidConfig})
			continue
		}
		_, hasWhen := rm["when"]
		isDefault, _ := rm["is_default"].(bool)
		if hasWhen == isDefault {
			errs = append(errs, &models.ValidationError{Node: name, Field: "routes", Message: fmt.Sprintf("entry %d must have exactly one of when/is_default", i), Err: models.ErrInvalidConfig})
		}
		target := firstNonEmpty(rm["to"], rm["then"])
		if target == "" {
			errs = append(errs, &models.ValidationError{Node: name, Field: "routes", Message: fmt.Sprintf("entry %d missing to/then target", i), Err: models.ErrRequired})
		}
	}
	return errs
}

func firstNonEmpty(vals ...any) string {
	for _, v := range vals {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func validateFileShape(name string, nd *document.NodeDecl) models.ValidationErrors {
	var errs models.ValidationErrors
	_, hasPath := nd.Config["path"]
	_, hasPattern := nd.Config["pattern"]
	if !hasPath && !hasPattern {
		errs = append(errs, &models.ValidationError{Node: name, Field: "path", Message: "one of path or pattern is required", Err: models.ErrRequired})
	}
	if format, ok := nd.Config["format"]; ok {
		if s, ok := format.(string); !ok || !fileFormats[s] {
			errs = append(errs, &models.ValidationError{Node: name, Field: "format", Message: "must be one of json, yaml, text, bytes", Err: models.ErrInvalidConfig})
		}
	}
	if mode, ok := nd.Config["mode"]; ok {
		if s, ok := mode.(string); !ok || !fileModes[s] {
			errs = append(errs, &models.ValidationError{Node: name, Field: "mode", Message: "must be one of read, write", Err: models.ErrInvalidConfig})
		}
	}
	return errs
}

func validateSplitShape(name string, nd *document.NodeDecl) models.ValidationErrors {
	field, ok := nd.Config["field"]
	if !ok {
		return models.ValidationErrors{{Node: name, Field: "field", Message: "required", Err: models.ErrRequired}}
	}
	s, ok := field.(string)
	if !ok || !isTemplateRef(s) {
		return models.ValidationErrors{{Node: name, Field: "field", Message: "must be a reference to an array", Err: models.ErrInvalidConfig}}
	}
	return nil
}

func validateAggregateShape(name string, nd *document.NodeDecl) models.ValidationErrors {
	mode, ok := nd.Config["mode"]
	if !ok {
		return models.ValidationErrors{{Node: name, Field: "mode", Message: "required", Err: models.ErrRequired}}
	}
	s, ok := mode.(string)
	if !ok || !aggregateModes[s] {
		return models.ValidationErrors{{Node: name, Field: "mode", Message: "must be one of array, object, concat, sum", Err: models.ErrInvalidConfig}}
	}
	if s == "object" {
		if _, ok := nd.Config["key"]; !ok {
			return models.ValidationErrors{{Node: name, Field: "key", Message: "required for object mode", Err: models.ErrRequired}}
		}
	}
	return nil
}

func validateJoinShape(name string, nd *document.NodeDecl) models.ValidationErrors {
	raw, ok := nd.Config["sources"]
	if !ok {
		return models.ValidationErrors{{Node: name, Field: "sources", Message: "required", Err: models.ErrRequired}}
	}
	sources, ok := raw.([]any)
	if !ok || len(sources) == 0 {
		return models.ValidationErrors{{Node: name, Field: "sources", Message: "must be a non-empty ordered list", Err: models.ErrInvalidConfig}}
	}
	return nil
}

func validateLLMShape(name string, nd *document.NodeDecl) models.ValidationErrors {
	_, hasPrompt := nd.Config["prompt"]
	_, hasTemplate := nd.Config["prompt_template"]
	if !hasPrompt && !hasTemplate {
		return models.ValidationErrors{{Node: name, Field: "prompt", Message: "one of prompt or prompt_template is required", Err: models.ErrRequired}}
	}
	if _, ok := nd.Config["model"]; !ok {
		return models.ValidationErrors{{Node: name, Field: "model", Message: "required", Err: models.ErrRequired}}
	}
	return nil
}
