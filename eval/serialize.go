package eval

import (
	"github.com/klendathu-run/klendathu/internal/sandboxlang"
)

// maxSerializeDepth bounds recursion when a returned value or console
// argument contains a reference cycle; the repo this is modeled on does
// not address cycles, so deep-enough structures get a sentinel instead
// of a stack overflow.
const maxSerializeDepth = 64

// Serialize converts a sandbox-internal value into a plain, JSON-ready
// Go value: errors become {__error, name, message, stack}, *Array and
// []any recurse element-wise, map[string]any recurses key-wise,
// functions and Undefined disappear (become nil), and primitives pass
// through unchanged.
func Serialize(v any) any {
	return serializeDepth(v, 0)
}

func serializeDepth(v any, depth int) any {
	if depth > maxSerializeDepth {
		return map[string]any{"__cycle": true}
	}
	switch x := v.(type) {
	case nil:
		return nil
	case sandboxlang.Undefined:
		return nil
	case *sandboxlang.Array:
		out := make([]any, len(x.Items))
		for i, it := range x.Items {
			out[i] = serializeDepth(it, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, it := range x {
			out[i] = serializeDepth(it, depth+1)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = serializeDepth(val, depth+1)
		}
		if ok, _ := out["__error"].(bool); ok {
			normalizeErrorShape(out)
		}
		return out
	case *sandboxlang.Function, *sandboxlang.NativeFunc:
		return nil
	default:
		return x
	}
}

// normalizeErrorShape fills in missing name/message/stack keys on an
// already-serialized __error-tagged map, so any value carrying
// __error: true — whether it escaped uncaught through ErrorShape or
// was caught with try/catch and handed back as an ordinary return
// value — round-trips with all four fields present, per the
// serialization rule for error-shaped values.
func normalizeErrorShape(m map[string]any) {
	name, _ := m["name"].(string)
	if name == "" {
		name = "Error"
	}
	m["name"] = name
	message, _ := m["message"].(string)
	m["message"] = message
	if _, ok := m["stack"].(string); !ok {
		m["stack"] = ""
	}
}

// ErrorShape builds the {__error: true, name, message, stack} record
// for a value thrown from sandboxed code, matching the serialization
// rule for error-shaped values regardless of what the agent's code
// actually threw (a string, a plain object, or an Error-shaped map).
func ErrorShape(thrown *sandboxlang.ThrownError) map[string]any {
	stack := ""
	if len(thrown.Stack) > 0 {
		stack = thrown.Stack[0]
		for _, frame := range thrown.Stack[1:] {
			stack += "\n" + frame
		}
	}
	if m, ok := thrown.Value.(map[string]any); ok {
		name, _ := m["name"].(string)
		if name == "" {
			name = "Error"
		}
		message, _ := m["message"].(string)
		if message == "" {
			message = thrown.Error()
		}
		if s, ok := m["stack"].(string); ok && s != "" {
			stack = s
		}
		return map[string]any{
			"__error": true,
			"name":    name,
			"message": message,
			"stack":   stack,
		}
	}
	return map[string]any{
		"__error": true,
		"name":    "Error",
		"message": thrown.Error(),
		"stack":   stack,
	}
}
