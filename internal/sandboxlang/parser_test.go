package sandboxlang

import "testing"

func TestParse_ArrowWithParams(t *testing.T) {
	node, err := Parse(`(a, b) => a + b`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fn, ok := node.(*FunctionExpr)
	if !ok {
		t.Fatalf("expected *FunctionExpr, got %T", node)
	}
	if len(fn.Params) != 2 || fn.Params[0] != "a" || fn.Params[1] != "b" {
		t.Fatalf("unexpected params: %v", fn.Params)
	}
	if fn.IsBody {
		t.Fatalf("expected expression body")
	}
}

func TestParse_AsyncArrowWithBlockBody(t *testing.T) {
	node, err := Parse(`async () => { return 1; }`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fn, ok := node.(*FunctionExpr)
	if !ok {
		t.Fatalf("expected *FunctionExpr, got %T", node)
	}
	if !fn.Async {
		t.Fatalf("expected Async true")
	}
	if !fn.IsBody {
		t.Fatalf("expected block body")
	}
}

func TestParse_RejectsGeneralForLoop(t *testing.T) {
	_, err := Parse(`() => { for (let i = 0; i < 10; i++) {} }`)
	if err == nil {
		t.Fatal("expected error rejecting C-style for loop")
	}
}

func TestParse_TrailingTokensError(t *testing.T) {
	_, err := Parse(`() => 1 extra`)
	if err == nil {
		t.Fatal("expected trailing-token error")
	}
}

func TestParse_TemplateLiteralWithExpr(t *testing.T) {
	node, err := Parse("() => `hi ${name}`")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fn := node.(*FunctionExpr)
	tl, ok := fn.Body.(*TemplateLit)
	if !ok {
		t.Fatalf("expected *TemplateLit body, got %T", fn.Body)
	}
	if len(tl.Parts) != 2 || len(tl.Exprs) != 1 {
		t.Fatalf("unexpected template shape: parts=%v exprs=%v", tl.Parts, tl.Exprs)
	}
}

func TestParse_ObjectLiteralShorthandAndComputed(t *testing.T) {
	node, err := Parse(`(x) => ({ x, ["y"]: 2 })`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fn := node.(*FunctionExpr)
	obj, ok := fn.Body.(*ObjectLit)
	if !ok {
		t.Fatalf("expected *ObjectLit, got %T", fn.Body)
	}
	if len(obj.Props) != 2 {
		t.Fatalf("expected 2 properties, got %d", len(obj.Props))
	}
	if obj.Props[0].Key != "x" {
		t.Fatalf("expected shorthand key x, got %q", obj.Props[0].Key)
	}
	if obj.Props[1].Computed == nil {
		t.Fatalf("expected computed key for second property")
	}
}

func TestParse_OptionalChaining(t *testing.T) {
	node, err := Parse(`(x) => x?.a?.b`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fn := node.(*FunctionExpr)
	m, ok := fn.Body.(*Member)
	if !ok || !m.Optional {
		t.Fatalf("expected optional member chain, got %#v", fn.Body)
	}
}
