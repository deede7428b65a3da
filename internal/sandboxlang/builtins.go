package sandboxlang

import (
	"context"
	"encoding/json"
	"math"
	"strings"
)

// NewBaseEnvironment builds the root scope shared by every evaluation: the
// Math/JSON/Object/Array namespaces and a console shim. context and vars
// are bound separately by the eval package once this scope exists, since
// they differ per request.
func NewBaseEnvironment(log func(args []any)) *Environment {
	env := NewEnvironment(nil)
	env.Define("Math", mathNamespace())
	env.Define("JSON", jsonNamespace())
	env.Define("Object", objectNamespace())
	env.Define("Array", arrayNamespace())
	env.Define("console", consoleNamespace(log))
	env.Define("NaN", math.NaN())
	env.Define("Infinity", math.Inf(1))
	return env
}

func nf(name string, fn func(ctx context.Context, args []any) (any, error)) *NativeFunc {
	return &NativeFunc{Name: name, Fn: fn}
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return Undefined{}
}

func mathNamespace() map[string]any {
	unary := func(name string, f func(float64) float64) *NativeFunc {
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			return f(toNumber(arg(args, 0))), nil
		})
	}
	return map[string]any{
		"PI":    math.Pi,
		"E":     math.E,
		"abs":   unary("abs", math.Abs),
		"floor": unary("floor", math.Floor),
		"ceil":  unary("ceil", math.Ceil),
		"round": unary("round", math.Round),
		"sqrt":  unary("sqrt", math.Sqrt),
		"trunc": unary("trunc", math.Trunc),
		"sign": unary("sign", func(x float64) float64 {
			switch {
			case x > 0:
				return 1
			case x < 0:
				return -1
			default:
				return 0
			}
		}),
		"pow": nf("pow", func(ctx context.Context, args []any) (any, error) {
			return math.Pow(toNumber(arg(args, 0)), toNumber(arg(args, 1))), nil
		}),
		"max": nf("max", func(ctx context.Context, args []any) (any, error) {
			if len(args) == 0 {
				return math.Inf(-1), nil
			}
			m := toNumber(args[0])
			for _, a := range args[1:] {
				if v := toNumber(a); v > m {
					m = v
				}
			}
			return m, nil
		}),
		"min": nf("min", func(ctx context.Context, args []any) (any, error) {
			if len(args) == 0 {
				return math.Inf(1), nil
			}
			m := toNumber(args[0])
			for _, a := range args[1:] {
				if v := toNumber(a); v < m {
					m = v
				}
			}
			return m, nil
		}),
		"random": nf("random", func(ctx context.Context, args []any) (any, error) {
			// Sandbox runs are replayed by re-executing their recorded
			// source text, so Math.random returns a fixed value rather than
			// sourcing entropy that a replay could never reproduce.
			return 0.5, nil
		}),
	}
}

func consoleNamespace(log func(args []any)) map[string]any {
	if log == nil {
		log = func(args []any) {}
	}
	entry := func(level string) *NativeFunc {
		return nf(level, func(ctx context.Context, args []any) (any, error) {
			log(args)
			return Undefined{}, nil
		})
	}
	return map[string]any{
		"log":   entry("log"),
		"info":  entry("info"),
		"warn":  entry("warn"),
		"error": entry("error"),
		"debug": entry("debug"),
	}
}

func objectNamespace() map[string]any {
	return map[string]any{
		"keys": nf("keys", func(ctx context.Context, args []any) (any, error) {
			m, ok := arg(args, 0).(map[string]any)
			if !ok {
				return &Array{}, nil
			}
			keys := sortedKeys(m)
			items := make([]any, len(keys))
			for i, k := range keys {
				items[i] = k
			}
			return &Array{Items: items}, nil
		}),
		"values": nf("values", func(ctx context.Context, args []any) (any, error) {
			m, ok := arg(args, 0).(map[string]any)
			if !ok {
				return &Array{}, nil
			}
			keys := sortedKeys(m)
			items := make([]any, len(keys))
			for i, k := range keys {
				items[i] = m[k]
			}
			return &Array{Items: items}, nil
		}),
		"entries": nf("entries", func(ctx context.Context, args []any) (any, error) {
			m, ok := arg(args, 0).(map[string]any)
			if !ok {
				return &Array{}, nil
			}
			keys := sortedKeys(m)
			items := make([]any, len(keys))
			for i, k := range keys {
				items[i] = &Array{Items: []any{k, m[k]}}
			}
			return &Array{Items: items}, nil
		}),
		"assign": nf("assign", func(ctx context.Context, args []any) (any, error) {
			target, ok := arg(args, 0).(map[string]any)
			if !ok {
				target = map[string]any{}
			}
			for _, src := range args[1:] {
				if sm, ok := src.(map[string]any); ok {
					for k, v := range sm {
						target[k] = v
					}
				}
			}
			return target, nil
		}),
		"freeze": nf("freeze", func(ctx context.Context, args []any) (any, error) {
			return arg(args, 0), nil
		}),
	}
}

func jsonNamespace() map[string]any {
	return map[string]any{
		"stringify": nf("stringify", func(ctx context.Context, args []any) (any, error) {
			v := ToPlainValue(arg(args, 0))
			indent := ""
			if len(args) >= 3 {
				if n, ok := args[2].(float64); ok {
					indent = strings.Repeat(" ", int(n))
				} else if s, ok := args[2].(string); ok {
					indent = s
				}
			}
			var b []byte
			var err error
			if indent != "" {
				b, err = json.MarshalIndent(v, "", indent)
			} else {
				b, err = json.Marshal(v)
			}
			if err != nil {
				return nil, throwf("JSON.stringify: %v", err)
			}
			return string(b), nil
		}),
		"parse": nf("parse", func(ctx context.Context, args []any) (any, error) {
			s, _ := arg(args, 0).(string)
			var v any
			if err := json.Unmarshal([]byte(s), &v); err != nil {
				return nil, throwf("JSON.parse: %v", err)
			}
			return FromPlainValue(v), nil
		}),
	}
}

func arrayNamespace() map[string]any {
	return map[string]any{
		"isArray": nf("isArray", func(ctx context.Context, args []any) (any, error) {
			_, ok := toArrayItems(arg(args, 0))
			return ok, nil
		}),
		"from": nf("from", func(ctx context.Context, args []any) (any, error) {
			items, ok := toArrayItems(arg(args, 0))
			if !ok {
				if s, isStr := arg(args, 0).(string); isStr {
					for _, r := range s {
						items = append(items, string(r))
					}
				}
			}
			return &Array{Items: append([]any(nil), items...)}, nil
		}),
	}
}

// ToPlainValue converts sandbox-internal wrapper types (*Array, Undefined)
// into plain Go values suitable for encoding/json.
func ToPlainValue(v any) any {
	switch x := v.(type) {
	case Undefined:
		return nil
	case *Array:
		out := make([]any, len(x.Items))
		for i, it := range x.Items {
			out[i] = ToPlainValue(it)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = ToPlainValue(val)
		}
		return out
	default:
		return x
	}
}

// FromPlainValue converts values decoded by encoding/json (plain
// []any/map[string]any/float64/...) into sandbox-internal representation
// (wrapping arrays as *Array).
func FromPlainValue(v any) any {
	switch x := v.(type) {
	case []any:
		items := make([]any, len(x))
		for i, it := range x {
			items[i] = FromPlainValue(it)
		}
		return &Array{Items: items}
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = FromPlainValue(val)
		}
		return out
	default:
		return x
	}
}

// arrayMethod resolves a bound Array.prototype-style method on arr.
func arrayMethod(arr *Array, name string) (*NativeFunc, bool) {
	switch name {
	case "push":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			arr.Items = append(arr.Items, args...)
			return float64(len(arr.Items)), nil
		}), true
	case "pop":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			if len(arr.Items) == 0 {
				return Undefined{}, nil
			}
			last := arr.Items[len(arr.Items)-1]
			arr.Items = arr.Items[:len(arr.Items)-1]
			return last, nil
		}), true
	case "shift":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			if len(arr.Items) == 0 {
				return Undefined{}, nil
			}
			first := arr.Items[0]
			arr.Items = arr.Items[1:]
			return first, nil
		}), true
	case "unshift":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			arr.Items = append(append([]any{}, args...), arr.Items...)
			return float64(len(arr.Items)), nil
		}), true
	case "includes":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			target := arg(args, 0)
			for _, it := range arr.Items {
				if strictEquals(it, target) {
					return true, nil
				}
			}
			return false, nil
		}), true
	case "indexOf":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			target := arg(args, 0)
			for i, it := range arr.Items {
				if strictEquals(it, target) {
					return float64(i), nil
				}
			}
			return float64(-1), nil
		}), true
	case "join":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			sep := ","
			if len(args) > 0 {
				sep = toDisplayString(args[0])
			}
			parts := make([]string, len(arr.Items))
			for i, it := range arr.Items {
				parts[i] = toDisplayString(it)
			}
			return strings.Join(parts, sep), nil
		}), true
	case "slice":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			start, end := sliceBounds(len(arr.Items), args)
			return &Array{Items: append([]any(nil), arr.Items[start:end]...)}, nil
		}), true
	case "reverse":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			n := len(arr.Items)
			for i := 0; i < n/2; i++ {
				arr.Items[i], arr.Items[n-1-i] = arr.Items[n-1-i], arr.Items[i]
			}
			return arr, nil
		}), true
	case "concat":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			out := append([]any(nil), arr.Items...)
			for _, a := range args {
				if items, ok := toArrayItems(a); ok {
					out = append(out, items...)
				} else {
					out = append(out, a)
				}
			}
			return &Array{Items: out}, nil
		}), true
	case "map":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			return mapArray(ctx, arr, arg(args, 0))
		}), true
	case "filter":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			return filterArray(ctx, arr, arg(args, 0))
		}), true
	case "forEach":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			return Undefined{}, forEachArray(ctx, arr, arg(args, 0))
		}), true
	case "reduce":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			return reduceArray(ctx, arr, args)
		}), true
	case "find":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			return findArray(ctx, arr, arg(args, 0))
		}), true
	case "some":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			found, err := findArray(ctx, arr, arg(args, 0))
			if err != nil {
				return nil, err
			}
			return !isNil(found), nil
		}), true
	}
	return nil, false
}

func sliceBounds(n int, args []any) (int, int) {
	start, end := 0, n
	if len(args) > 0 {
		start = normalizeIndex(toNumber(args[0]), n)
	}
	if len(args) > 1 {
		end = normalizeIndex(toNumber(args[1]), n)
	}
	if start > end {
		start = end
	}
	return start, end
}

func normalizeIndex(f float64, n int) int {
	i := int(f)
	if i < 0 {
		i += n
	}
	if i < 0 {
		i = 0
	}
	if i > n {
		i = n
	}
	return i
}

func callCallback(ctx context.Context, callback any, args []any) (any, error) {
	in := &interpreter{ctx: ctx}
	return in.call(callback, args)
}

func mapArray(ctx context.Context, arr *Array, callback any) (any, error) {
	out := make([]any, len(arr.Items))
	for i, it := range arr.Items {
		v, err := callCallback(ctx, callback, []any{it, float64(i), arr})
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return &Array{Items: out}, nil
}

func filterArray(ctx context.Context, arr *Array, callback any) (any, error) {
	var out []any
	for i, it := range arr.Items {
		v, err := callCallback(ctx, callback, []any{it, float64(i), arr})
		if err != nil {
			return nil, err
		}
		if truthy(v) {
			out = append(out, it)
		}
	}
	return &Array{Items: out}, nil
}

func forEachArray(ctx context.Context, arr *Array, callback any) error {
	for i, it := range arr.Items {
		if _, err := callCallback(ctx, callback, []any{it, float64(i), arr}); err != nil {
			return err
		}
	}
	return nil
}

func findArray(ctx context.Context, arr *Array, callback any) (any, error) {
	for i, it := range arr.Items {
		v, err := callCallback(ctx, callback, []any{it, float64(i), arr})
		if err != nil {
			return nil, err
		}
		if truthy(v) {
			return it, nil
		}
	}
	return Undefined{}, nil
}

func reduceArray(ctx context.Context, arr *Array, args []any) (any, error) {
	callback := arg(args, 0)
	var acc any
	start := 0
	if len(args) > 1 {
		acc = args[1]
	} else {
		if len(arr.Items) == 0 {
			return nil, throwf("Reduce of empty array with no initial value")
		}
		acc = arr.Items[0]
		start = 1
	}
	for i := start; i < len(arr.Items); i++ {
		v, err := callCallback(ctx, callback, []any{acc, arr.Items[i], float64(i), arr})
		if err != nil {
			return nil, err
		}
		acc = v
	}
	return acc, nil
}

// stringMethod resolves a bound String.prototype-style method on s.
func stringMethod(s string, name string) (*NativeFunc, bool) {
	switch name {
	case "toUpperCase":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			return strings.ToUpper(s), nil
		}), true
	case "toLowerCase":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			return strings.ToLower(s), nil
		}), true
	case "trim":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			return strings.TrimSpace(s), nil
		}), true
	case "includes":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			return strings.Contains(s, toDisplayString(arg(args, 0))), nil
		}), true
	case "startsWith":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			return strings.HasPrefix(s, toDisplayString(arg(args, 0))), nil
		}), true
	case "endsWith":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			return strings.HasSuffix(s, toDisplayString(arg(args, 0))), nil
		}), true
	case "indexOf":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			return float64(strings.Index(s, toDisplayString(arg(args, 0)))), nil
		}), true
	case "split":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			sep := toDisplayString(arg(args, 0))
			var parts []string
			if sep == "" {
				for _, r := range s {
					parts = append(parts, string(r))
				}
			} else {
				parts = strings.Split(s, sep)
			}
			items := make([]any, len(parts))
			for i, p := range parts {
				items[i] = p
			}
			return &Array{Items: items}, nil
		}), true
	case "slice":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			runes := []rune(s)
			start, end := sliceBounds(len(runes), args)
			return string(runes[start:end]), nil
		}), true
	case "replace":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			return strings.Replace(s, toDisplayString(arg(args, 0)), toDisplayString(arg(args, 1)), 1), nil
		}), true
	case "replaceAll":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			return strings.ReplaceAll(s, toDisplayString(arg(args, 0)), toDisplayString(arg(args, 1))), nil
		}), true
	case "repeat":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			n := int(toNumber(arg(args, 0)))
			if n < 0 {
				return nil, throwf("invalid count value: %d", n)
			}
			return strings.Repeat(s, n), nil
		}), true
	case "padStart":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			return padString(s, args, true), nil
		}), true
	case "padEnd":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			return padString(s, args, false), nil
		}), true
	case "charAt":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			runes := []rune(s)
			i := int(toNumber(arg(args, 0)))
			if i < 0 || i >= len(runes) {
				return "", nil
			}
			return string(runes[i]), nil
		}), true
	case "concat":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			var b strings.Builder
			b.WriteString(s)
			for _, a := range args {
				b.WriteString(toDisplayString(a))
			}
			return b.String(), nil
		}), true
	case "toString":
		return nf(name, func(ctx context.Context, args []any) (any, error) {
			return s, nil
		}), true
	}
	return nil, false
}

func padString(s string, args []any, start bool) string {
	target := int(toNumber(arg(args, 0)))
	pad := " "
	if len(args) > 1 {
		pad = toDisplayString(args[1])
	}
	if pad == "" || len([]rune(s)) >= target {
		return s
	}
	need := target - len([]rune(s))
	var b strings.Builder
	for b.Len() < need*len([]byte(pad)) && len([]rune(b.String())) < need {
		b.WriteString(pad)
	}
	padding := []rune(b.String())
	if len(padding) > need {
		padding = padding[:need]
	}
	if start {
		return string(padding) + s
	}
	return s + string(padding)
}
