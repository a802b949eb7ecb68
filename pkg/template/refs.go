package template

import (
	"regexp"
	"strings"
)

// identPattern matches a dotted/bracket-indexed identifier path, e.g.
// inputs.name, env.API_KEY, item.rows[0].id.
var identPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*|\[[^\]]*\])*`)

// stringLiteral matches a quoted string literal inside an expression, whose
// contents are text rather than references.
var stringLiteral = regexp.MustCompile(`'[^']*'|"[^"]*"`)

var reservedWords = map[string]bool{
	"if": true, "elif": true, "else": true, "endif": true,
	"and": true, "or": true, "not": true,
	"true": true, "false": true, "null": true, "nil": true,
	"default": true, "replace": true, "lower": true, "upper": true,
	"round": true, "length": true, "join": true,
}

// ExtractRefs statically scans every string leaf of cfg for {{ }}/{% %}
// spans and returns every referenced dotted-path identifier found inside
// them (e.g. "inputs.name", "mynode.field"). Used by the validator's
// reference-resolution pass; it is a heuristic scan in the same spirit as
// the teacher's regex-based ExtractVariables, not a full re-parse.
func ExtractRefs(cfg map[string]any) []string {
	var refs []string
	seen := map[string]bool{}

	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			spans := append(exprPattern.FindAllString(t, -1), blockPattern.FindAllString(t, -1)...)
			for _, span := range spans {
				span = stringLiteral.ReplaceAllString(span, "")
				for _, tok := range identPattern.FindAllString(span, -1) {
					root := tok
					if i := strings.IndexAny(root, ".["); i >= 0 {
						root = root[:i]
					}
					if reservedWords[root] {
						continue
					}
					if !seen[tok] {
						seen[tok] = true
						refs = append(refs, tok)
					}
				}
			}
		case map[string]any:
			for _, vv := range t {
				walk(vv)
			}
		case []any:
			for _, vv := range t {
				walk(vv)
			}
		}
	}
	walk(cfg)
	return refs
}
