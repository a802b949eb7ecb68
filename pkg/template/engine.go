// Package template implements the `{{ expr }}` / `{% if/elif/else/endif %}`
// expander used to expand node configuration against a node's environment
// view. The outer tokenization (locating `{{ }}` and `{% %}` spans in
// surrounding text) is regex-based in the same idiom as the teacher's
// internal/application/template package; the inner expression grammar
// (attribute/index access, operators, literals, filter pipeline) is
// delegated to github.com/expr-lang/expr, whose native `|` pipe operator
// maps directly onto the filter-pipeline syntax this engine exposes.
package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/nelsonlove/seriesoftubes-sub001/pkg/models"
)

// exprPattern matches a single {{ ... }} expression span.
var exprPattern = regexp.MustCompile(`\{\{(.*?)\}\}`)

// wholeValuePattern matches text that is exactly one {{ expr }} span and
// nothing else (aside from surrounding whitespace) — the case where
// rendering must preserve the expression's native type rather than
// stringifying it.
var wholeValuePattern = regexp.MustCompile(`^\s*\{\{(.*)\}\}\s*$`)

// blockPattern matches a {% if/elif/else/endif %} tag.
var blockPattern = regexp.MustCompile(`\{%-?\s*(if|elif|else|endif)\s*(.*?)-?%\}`)

// Scope is the variable environment exposed to a single expression
// evaluation: top-level keys are layer roots (env, inputs, node names,
// loop bindings) as spec §4.3 describes. Values are plain JSON-shaped
// data (map[string]any / []any / string / float64 / bool / nil).
type Scope map[string]any

// Engine compiles and runs template expressions against a Scope. It is
// pure and deterministic: no expression may have a side effect.
type Engine struct {
	cache *programCache
}

// New creates a template engine with its own compiled-program cache.
func New() *Engine {
	return &Engine{cache: newProgramCache(256)}
}

func (e *Engine) compile(code string) (*vm.Program, error) {
	if prog, ok := e.cache.Get(code); ok {
		return prog, nil
	}
	prog, err := expr.Compile(code, exprOptions()...)
	if err != nil {
		return nil, err
	}
	e.cache.Put(code, prog)
	return prog, nil
}

// EvalExpr compiles (or reuses a cached compile of) and runs a single
// expr-lang expression (no surrounding `{{ }}`) against scope.
func (e *Engine) EvalExpr(code string, scope Scope) (any, error) {
	prog, err := e.compile(code)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", code, err)
	}
	out, err := expr.Run(prog, map[string]any(scope))
	if err != nil {
		return nil, fmt.Errorf("eval %q: %w", code, err)
	}
	return out, nil
}

// EvalBool evaluates code and requires a boolean result, used for route
// `when` branches and filter `condition`s.
func (e *Engine) EvalBool(code string, scope Scope) (bool, error) {
	out, err := e.EvalExpr(code, scope)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q did not evaluate to a boolean (got %T)", code, out)
	}
	return b, nil
}

// RenderValue expands a single template string against scope following the
// whole-value-vs-mixed-text rule: a string that is exactly one {{ expr }}
// span preserves the expression's native type; any other string (mixed
// text, block tags, multiple expressions, or no expressions at all) is
// rendered to a string.
func (e *Engine) RenderValue(text string, scope Scope) (any, error) {
	if m := wholeValuePattern.FindStringSubmatch(text); m != nil {
		out, err := e.EvalExpr(strings.TrimSpace(m[1]), scope)
		if err != nil {
			return nil, &models.TemplateError{Template: text, Ref: strings.TrimSpace(m[1]), Err: err}
		}
		return out, nil
	}
	return e.RenderString(text, scope)
}

// RenderString expands block tags and {{ }} expressions in text, always
// returning a string. Undefined references rendered in mixed text become
// the empty string rather than erroring.
func (e *Engine) RenderString(text string, scope Scope) (string, error) {
	processed, err := e.renderBlocks(text, scope)
	if err != nil {
		return "", err
	}

	var renderErr error
	result := exprPattern.ReplaceAllStringFunc(processed, func(match string) string {
		if renderErr != nil {
			return ""
		}
		code := strings.TrimSpace(exprPattern.FindStringSubmatch(match)[1])
		out, err := e.EvalExpr(code, scope)
		if err != nil {
			renderErr = &models.TemplateError{Template: text, Ref: code, Err: err}
			return ""
		}
		return stringify(out)
	})
	if renderErr != nil {
		return "", renderErr
	}
	return result, nil
}

// renderBlocks resolves {% if %}...{% elif %}...{% else %}...{% endif %}
// tags by picking the first truthy branch's inner text. The chosen branch
// is rendered again, so nested if blocks resolve, and the result is
// rendered again, so later sibling if blocks resolve too.
func (e *Engine) renderBlocks(text string, scope Scope) (string, error) {
	// Find an "if" tag, then its matching "endif", splitting the
	// intervening text into branches at "elif"/"else" tags at the same
	// nesting depth (depth tracked so nested if/endif pairs pass through).
	ifIdx := findTag(text, 0, "if")
	if ifIdx == nil {
		return text, nil
	}
	endIdx := findMatchingEndif(text, ifIdx.end)
	if endIdx == nil {
		return text, fmt.Errorf("template %q: unterminated {%% if %%}", text)
	}

	branches := splitBranches(text, ifIdx, endIdx)
	chosen := ""
	matched := false
	for _, br := range branches {
		if br.isElse {
			chosen = br.body
			matched = true
			break
		}
		ok, err := e.EvalBool(br.cond, scope)
		if err != nil {
			return "", &models.TemplateError{Template: text, Ref: br.cond, Err: err}
		}
		if ok {
			chosen = br.body
			matched = true
			break
		}
	}
	if !matched {
		chosen = ""
	}

	rest, err := e.renderBlocks(chosen, scope)
	if err != nil {
		return "", err
	}

	out := text[:ifIdx.start] + rest + text[endIdx.end:]
	return e.renderBlocks(out, scope)
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}
