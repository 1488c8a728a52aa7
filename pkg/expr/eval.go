package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Getter lets callers expose structured values without building a map.
type Getter interface {
	Get(key string) (any, bool)
}

func eval(n node, env Env) (any, error) {
	switch n := n.(type) {
	case literal:
		return n.value, nil
	case ident:
		v, ok := env[n.name]
		if !ok {
			return nil, fmt.Errorf("%w: %s is not defined", ErrEval, n.name)
		}
		return normalize(v), nil
	case member:
		obj, err := eval(n.object, env)
		if err != nil {
			return nil, err
		}
		return property(obj, n.name)
	case index:
		obj, err := eval(n.object, env)
		if err != nil {
			return nil, err
		}
		key, err := eval(n.key, env)
		if err != nil {
			return nil, err
		}
		return property(obj, toKey(key))
	case unary:
		v, err := eval(n.operand, env)
		if err != nil {
			return nil, err
		}
		switch n.op {
		case "!":
			return !Truthy(v), nil
		case "-":
			return -toNumber(v), nil
		default:
			return toNumber(v), nil
		}
	case binary:
		return evalBinary(n, env)
	}
	return nil, fmt.Errorf("%w: unknown node %T", ErrEval, n)
}

func evalBinary(n binary, env Env) (any, error) {
	left, err := eval(n.left, env)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "&&":
		if !Truthy(left) {
			return left, nil
		}
		return eval(n.right, env)
	case "||":
		if Truthy(left) {
			return left, nil
		}
		return eval(n.right, env)
	}

	right, err := eval(n.right, env)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "==":
		return looseEqual(left, right), nil
	case "!=":
		return !looseEqual(left, right), nil
	case "===":
		return strictEqual(left, right), nil
	case "!==":
		return !strictEqual(left, right), nil
	case "<", "<=", ">", ">=":
		return compare(n.op, left, right), nil
	case "+":
		ls, lok := left.(string)
		rs, rok := right.(string)
		if lok || rok {
			if !lok {
				ls = toString(left)
			}
			if !rok {
				rs = toString(right)
			}
			return ls + rs, nil
		}
		return toNumber(left) + toNumber(right), nil
	case "-":
		return toNumber(left) - toNumber(right), nil
	case "*":
		return toNumber(left) * toNumber(right), nil
	case "/":
		return toNumber(left) / toNumber(right), nil
	case "%":
		return math.Mod(toNumber(left), toNumber(right)), nil
	}
	return nil, fmt.Errorf("%w: unknown operator %q", ErrEval, n.op)
}

func property(obj any, key string) (any, error) {
	switch o := obj.(type) {
	case nil:
		return nil, fmt.Errorf("%w: cannot read property %q of undefined", ErrEval, key)
	case map[string]any:
		return normalize(o[key]), nil
	case Getter:
		v, _ := o.Get(key)
		return normalize(v), nil
	case []any:
		if key == "length" {
			return float64(len(o)), nil
		}
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(o) {
			return nil, nil
		}
		return normalize(o[i]), nil
	case string:
		if key == "length" {
			return float64(len(o)), nil
		}
	}
	return nil, nil
}

// normalize folds Go numeric and slice types into the evaluator's value set.
func normalize(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case map[string]int:
		out := make(map[string]any, len(t))
		for k, n := range t {
			out[k] = float64(n)
		}
		return out
	}
	return v
}

// Truthy follows the usual scripting rules: nil, false, 0, NaN and "" are false.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case string:
		return t != ""
	}
	return true
}

func toNumber(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	return math.NaN()
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return "undefined"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func toKey(v any) string { return toString(v) }

func strictEqual(a, b any) bool {
	switch at := a.(type) {
	case nil:
		return b == nil
	case float64:
		bt, ok := b.(float64)
		return ok && at == bt
	case string:
		bt, ok := b.(string)
		return ok && at == bt
	case bool:
		bt, ok := b.(bool)
		return ok && at == bt
	}
	// Maps and slices compare by identity, which the evaluator cannot observe.
	return false
}

func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if strictEqual(a, b) {
		return true
	}
	switch a.(type) {
	case float64, bool, string:
	default:
		return false
	}
	switch b.(type) {
	case float64, bool, string:
	default:
		return false
	}
	_, as := a.(string)
	_, bs := b.(string)
	if as && bs {
		return false
	}
	return toNumber(a) == toNumber(b)
}

func compare(op string, a, b any) bool {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch op {
		case "<":
			return as < bs
		case "<=":
			return as <= bs
		case ">":
			return as > bs
		default:
			return as >= bs
		}
	}
	x, y := toNumber(a), toNumber(b)
	switch op {
	case "<":
		return x < y
	case "<=":
		return x <= y
	case ">":
		return x > y
	default:
		return x >= y
	}
}
