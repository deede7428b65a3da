package schema

import (
	"testing"
)

func TestToJSONSchema_Basic(t *testing.T) {
	s := Schema{
		"doubled": Array(Number()).Describe("doubled values"),
	}
	js := s.ToJSONSchema()
	if js["type"] != "object" {
		t.Fatalf("expected type object, got %v", js["type"])
	}
	props, ok := js["properties"].(map[string]any)
	if !ok {
		t.Fatalf("expected properties map")
	}
	doubled, ok := props["doubled"].(map[string]any)
	if !ok {
		t.Fatalf("expected doubled field descriptor")
	}
	if doubled["type"] != "array" {
		t.Errorf("expected array type, got %v", doubled["type"])
	}
	items, ok := doubled["items"].(map[string]any)
	if !ok || items["type"] != "number" {
		t.Errorf("expected items.type=number, got %v", doubled["items"])
	}
	required, ok := js["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "doubled" {
		t.Errorf("expected required=[doubled], got %v", js["required"])
	}
}

func TestValidate_ScalarComputationScenario(t *testing.T) {
	s := Schema{"doubled": Array(Number())}
	value := map[string]any{"doubled": []any{2.0, 4.0, 6.0, 8.0, 10.0}}
	accepted, issues := s.Validate(value)
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	if accepted["doubled"].([]any)[0] != 2.0 {
		t.Errorf("unexpected accepted value: %v", accepted)
	}
}

func TestValidate_MinConstraint(t *testing.T) {
	s := Schema{"n": Number().Min(0)}

	if _, issues := s.Validate(map[string]any{"n": -1.0}); len(issues) == 0 {
		t.Fatal("expected validation failure for n=-1")
	}

	accepted, issues := s.Validate(map[string]any{"n": 1.0})
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	if accepted["n"] != 1.0 {
		t.Errorf("unexpected accepted value: %v", accepted)
	}
}

func TestValidate_MissingRequiredField(t *testing.T) {
	s := Schema{"n": Number()}
	_, issues := s.Validate(map[string]any{})
	if len(issues) != 1 || issues[0].Path != "n" {
		t.Fatalf("expected missing-field issue for n, got %v", issues)
	}
}

func TestValidate_NotAnObject(t *testing.T) {
	s := Schema{"n": Number()}
	_, issues := s.Validate(42)
	if len(issues) != 1 {
		t.Fatalf("expected single top-level issue, got %v", issues)
	}
}

func TestIssuesString_Format(t *testing.T) {
	issues := []Issue{{Path: "n", Message: "below minimum 0"}, {Path: "x", Message: "required field missing"}}
	got := IssuesString(issues)
	want := "n: below minimum 0; x: required field missing"
	if got != want {
		t.Errorf("got %q want %q", got, want)
	}
}

func TestSchema_NestedObjectAndOptional(t *testing.T) {
	s := Schema{
		"meta": Object(map[string]Field{
			"tag":   String().AsOptional(),
			"count": Integer(),
		}),
	}
	_, issues := s.Validate(map[string]any{"meta": map[string]any{"count": 3.0}})
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	_, issues = s.Validate(map[string]any{"meta": map[string]any{}})
	if len(issues) != 1 || issues[0].Path != "meta.count" {
		t.Fatalf("expected missing meta.count issue, got %v", issues)
	}
}
