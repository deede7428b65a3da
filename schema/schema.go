// Package schema describes the shape of a value an agent must produce,
// reduces that shape to a JSON-Schema map for prompt rendering and cache
// keying, and validates candidate values against it.
package schema

import (
	"fmt"
	"sort"
)

// Kind is the tagged type of a field descriptor.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
)

// Field is a single field descriptor: a type tag, validation constraints,
// and an optional human-readable description.
type Field struct {
	Kind        Kind
	Description string
	Optional    bool

	// Array
	Items *Field

	// Object
	Properties map[string]Field

	// Numeric constraints
	min *float64
	max *float64

	// String constraints
	MinLength *int
	MaxLength *int
	Pattern   string

	Enum []any
}

// Schema is a mapping from field name to field descriptor.
type Schema map[string]Field

// Builder helpers. These give agents a fluent "field.min(0)" style for
// describing constraints, e.g. schema.Object(map[string]schema.Field{
// "n": schema.Number().Min(0)}).

func String() Field  { return Field{Kind: KindString} }
func Number() Field  { return Field{Kind: KindNumber} }
func Integer() Field { return Field{Kind: KindInteger} }
func Boolean() Field { return Field{Kind: KindBoolean} }
func Array(items Field) Field {
	return Field{Kind: KindArray, Items: &items}
}
func Object(props map[string]Field) Field {
	return Field{Kind: KindObject, Properties: props}
}

func (f Field) Describe(desc string) Field {
	f.Description = desc
	return f
}

func (f Field) Min(v float64) Field {
	f.min = &v
	return f
}

func (f Field) Max(v float64) Field {
	f.max = &v
	return f
}

func (f Field) MinLen(v int) Field {
	f.MinLength = &v
	return f
}

func (f Field) MaxLen(v int) Field {
	f.MaxLength = &v
	return f
}

func (f Field) OneOf(values ...any) Field {
	f.Enum = values
	return f
}

func (f Field) AsOptional() Field {
	f.Optional = true
	return f
}

// sortedNames returns the schema's field names sorted for deterministic
// iteration (JSON-Schema rendering, cache-key hashing).
func (s Schema) sortedNames() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f Field) typeTag() string {
	if f.Kind == "" {
		return "string"
	}
	return string(f.Kind)
}

// ToJSONSchema reduces the Schema to a JSON-Schema-shaped map, hand-built
// field by field rather than produced by reflection.
func (s Schema) ToJSONSchema() map[string]any {
	props := make(map[string]any, len(s))
	var required []string
	for _, name := range s.sortedNames() {
		f := s[name]
		props[name] = fieldToJSONSchema(f)
		if !f.Optional {
			required = append(required, name)
		}
	}
	out := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func fieldToJSONSchema(f Field) map[string]any {
	out := map[string]any{"type": f.typeTag()}
	if f.Description != "" {
		out["description"] = f.Description
	}
	if f.min != nil {
		out["minimum"] = *f.min
	}
	if f.max != nil {
		out["maximum"] = *f.max
	}
	if f.MinLength != nil {
		out["minLength"] = *f.MinLength
	}
	if f.MaxLength != nil {
		out["maxLength"] = *f.MaxLength
	}
	if f.Pattern != "" {
		out["pattern"] = f.Pattern
	}
	if len(f.Enum) > 0 {
		out["enum"] = f.Enum
	}
	switch f.Kind {
	case KindArray:
		if f.Items != nil {
			out["items"] = fieldToJSONSchema(*f.Items)
		}
	case KindObject:
		props := make(map[string]any, len(f.Properties))
		var required []string
		names := make([]string, 0, len(f.Properties))
		for name := range f.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			sub := f.Properties[name]
			props[name] = fieldToJSONSchema(sub)
			if !sub.Optional {
				required = append(required, name)
			}
		}
		out["properties"] = props
		if len(required) > 0 {
			out["required"] = required
		}
	}
	return out
}

// Issue describes a single validation failure.
type Issue struct {
	Path    string
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Path, i.Message)
}

// Validate validates value (expected to be a map[string]any, the shape a
// serialized set_result return value takes) against the schema. It returns
// the accepted value and a nil issue slice on success, or a zero value and
// a non-empty issue slice on failure.
func (s Schema) Validate(value any) (map[string]any, []Issue) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, []Issue{{Path: "$", Message: fmt.Sprintf("expected object, got %T", value)}}
	}

	var issues []Issue
	for _, name := range s.sortedNames() {
		f := s[name]
		v, present := obj[name]
		if !present {
			if !f.Optional {
				issues = append(issues, Issue{Path: name, Message: "required field missing"})
			}
			continue
		}
		issues = append(issues, validateField(name, f, v)...)
	}
	if len(issues) > 0 {
		return nil, issues
	}
	return obj, nil
}

func validateField(path string, f Field, v any) []Issue {
	var issues []Issue
	switch f.Kind {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return []Issue{{Path: path, Message: "expected string"}}
		}
		if f.MinLength != nil && len(s) < *f.MinLength {
			issues = append(issues, Issue{Path: path, Message: fmt.Sprintf("length below minimum %d", *f.MinLength)})
		}
		if f.MaxLength != nil && len(s) > *f.MaxLength {
			issues = append(issues, Issue{Path: path, Message: fmt.Sprintf("length above maximum %d", *f.MaxLength)})
		}
	case KindNumber, KindInteger:
		n, ok := asFloat(v)
		if !ok {
			return []Issue{{Path: path, Message: "expected number"}}
		}
		if f.Kind == KindInteger && n != float64(int64(n)) {
			issues = append(issues, Issue{Path: path, Message: "expected integer"})
		}
		if f.min != nil && n < *f.min {
			issues = append(issues, Issue{Path: path, Message: fmt.Sprintf("below minimum %g", *f.min)})
		}
		if f.max != nil && n > *f.max {
			issues = append(issues, Issue{Path: path, Message: fmt.Sprintf("above maximum %g", *f.max)})
		}
	case KindBoolean:
		if _, ok := v.(bool); !ok {
			return []Issue{{Path: path, Message: "expected boolean"}}
		}
	case KindArray:
		arr, ok := v.([]any)
		if !ok {
			return []Issue{{Path: path, Message: "expected array"}}
		}
		if f.Items != nil {
			for i, elem := range arr {
				issues = append(issues, validateField(fmt.Sprintf("%s[%d]", path, i), *f.Items, elem)...)
			}
		}
	case KindObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return []Issue{{Path: path, Message: "expected object"}}
		}
		names := make([]string, 0, len(f.Properties))
		for name := range f.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			sub := f.Properties[name]
			sv, present := obj[name]
			if !present {
				if !sub.Optional {
					issues = append(issues, Issue{Path: path + "." + name, Message: "required field missing"})
				}
				continue
			}
			issues = append(issues, validateField(path+"."+name, sub, sv)...)
		}
	}
	if len(f.Enum) > 0 {
		match := false
		for _, e := range f.Enum {
			if fmt.Sprint(e) == fmt.Sprint(v) {
				match = true
				break
			}
		}
		if !match {
			issues = append(issues, Issue{Path: path, Message: "value not in allowed set"})
		}
	}
	return issues
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// IssuesString renders issues as "path: msg; path: msg", the message
// format surfaced back to the agent when set_result is rejected.
func IssuesString(issues []Issue) string {
	out := ""
	for i, iss := range issues {
		if i > 0 {
			out += "; "
		}
		out += iss.String()
	}
	return out
}
