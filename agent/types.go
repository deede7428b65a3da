package agent

import "strconv"

// Item wraps a context entry with a human description, so its
// ContextDescriptor can describe an opaque handle value (a browser page, a
// database connection) without resorting to reflection-based type
// naming.
type Item struct {
	Value       any
	Description string
}

// ContextDescriptor is the prompt-facing projection of one context
// entry: name, a type tag, and an optional description. For error
// values the description carries the message plus stack.
type ContextDescriptor struct {
	Name        string
	Type        string
	Description string
}

// UnwrapContext builds the map bound into the sandbox as `context`:
// every Item-wrapped entry is replaced by its underlying Value, so
// code executed in the sandbox sees the real value (a page handle, a
// connection) rather than the Item wrapper itself. Entries that are
// not wrapped pass through unchanged. DescribeContext, by contrast,
// keeps the wrapper so it can read Item.Description for the prompt.
func UnwrapContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for name, raw := range ctx {
		if item, ok := raw.(Item); ok {
			out[name] = item.Value
			continue
		}
		out[name] = raw
	}
	return out
}

// DescribeContext projects ctx into ContextDescriptor values, which the
// orchestrator records in the transcript's task. Entries wrapped in Item
// carry their Description through; error values are described via
// ExtractCallStack; everything else gets a JSON-style type tag ("null",
// "string", "boolean", "number", "object" or "array") and no
// description.
func DescribeContext(ctx map[string]any) []ContextDescriptor {
	descriptors := make([]ContextDescriptor, 0, len(ctx))
	for name, raw := range ctx {
		descriptors = append(descriptors, describeOne(name, raw))
	}
	return descriptors
}

func describeOne(name string, raw any) ContextDescriptor {
	if item, ok := raw.(Item); ok {
		return ContextDescriptor{Name: name, Type: typeTag(item.Value), Description: item.Description}
	}
	if err, ok := raw.(error); ok {
		frames := ExtractCallStack(err)
		return ContextDescriptor{Name: name, Type: "error", Description: formatErrorDescription(err, frames)}
	}
	return ContextDescriptor{Name: name, Type: typeTag(raw)}
}

func typeTag(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, int, int64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return "object"
	}
}

func formatErrorDescription(err error, frames []StackFrame) string {
	msg := err.Error()
	if len(frames) == 0 {
		return msg
	}
	desc := msg + "\n"
	for _, f := range frames {
		desc += "  at " + f.Function + " (" + f.File + ":" + strconv.Itoa(f.Line) + ")\n"
	}
	return desc
}
