package template

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
)

// exprOptions returns the expr-lang compile options shared by every
// expression this engine evaluates: the filter functions named in spec
// §4.2 (default, replace, lower, upper, round, length, join), invoked via
// expr-lang's native pipe operator (`expr | filter(args)`).
func exprOptions() []expr.Option {
	return []expr.Option{
		expr.Function("default", filterDefault),
		expr.Function("replace", filterReplace),
		expr.Function("lower", filterLower),
		expr.Function("upper", filterUpper),
		expr.Function("round", filterRound),
		expr.Function("length", filterLength),
		expr.Function("join", filterJoin),
		expr.AllowUndefinedVariables(),
	}
}

func filterDefault(params ...any) (any, error) {
	if len(params) != 2 {
		return nil, fmt.Errorf("default(value, fallback) takes exactly 2 arguments")
	}
	v := params[0]
	if v == nil {
		return params[1], nil
	}
	if s, ok := v.(string); ok && s == "" {
		return params[1], nil
	}
	return v, nil
}

func filterReplace(params ...any) (any, error) {
	if len(params) != 3 {
		return nil, fmt.Errorf("replace(value, old, new) takes exactly 3 arguments")
	}
	s, ok := params[0].(string)
	if !ok {
		return nil, fmt.Errorf("replace: value must be a string")
	}
	old, _ := params[1].(string)
	repl, _ := params[2].(string)
	return strings.ReplaceAll(s, old, repl), nil
}

func filterLower(params ...any) (any, error) {
	s, ok := asString(params)
	if !ok {
		return nil, fmt.Errorf("lower: value must be a string")
	}
	return strings.ToLower(s), nil
}

func filterUpper(params ...any) (any, error) {
	s, ok := asString(params)
	if !ok {
		return nil, fmt.Errorf("upper: value must be a string")
	}
	return strings.ToUpper(s), nil
}

func filterRound(params ...any) (any, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("round(value) requires a value")
	}
	f, ok := asFloat(params[0])
	if !ok {
		return nil, fmt.Errorf("round: value must be numeric")
	}
	precision := 0
	if len(params) > 1 {
		p, ok := asFloat(params[1])
		if ok {
			precision = int(p)
		}
	}
	mult := 1.0
	for i := 0; i < precision; i++ {
		mult *= 10
	}
	rounded := float64(int64(f*mult+sign(f)*0.5)) / mult
	return rounded, nil
}

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}

func filterLength(params ...any) (any, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("length(value) takes exactly 1 argument")
	}
	switch v := params[0].(type) {
	case string:
		return len([]rune(v)), nil
	case []any:
		return len(v), nil
	case map[string]any:
		return len(v), nil
	case nil:
		return 0, nil
	default:
		return nil, fmt.Errorf("length: unsupported type %T", v)
	}
}

func filterJoin(params ...any) (any, error) {
	if len(params) < 1 {
		return nil, fmt.Errorf("join(value, sep?) requires a value")
	}
	sep := ","
	if len(params) > 1 {
		if s, ok := params[1].(string); ok {
			sep = s
		}
	}
	arr, ok := params[0].([]any)
	if !ok {
		return nil, fmt.Errorf("join: value must be an array")
	}
	parts := make([]string, len(arr))
	for i, v := range arr {
		parts[i] = stringify(v)
	}
	return strings.Join(parts, sep), nil
}

func asString(params []any) (string, bool) {
	if len(params) == 0 {
		return "", false
	}
	s, ok := params[0].(string)
	return s, ok
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
