package sandboxlang

import (
	"context"
	"fmt"
	"reflect"
)

// MaxRecursionDepth bounds how deeply sandbox function calls may nest
// within one interpreter; a call beyond this depth returns the
// {__cycle: true} sentinel instead of running its body.
const MaxRecursionDepth = 64

// Run parses src as a single expression (expected to be a function
// expression), invokes it with zero arguments, awaits the result if it is
// an Awaiter, and returns the resulting value or a *ThrownError.
func Run(ctx context.Context, src string, env *Environment) (any, error) {
	node, err := Parse(src)
	if err != nil {
		return nil, err
	}
	interp := &interpreter{ctx: ctx}
	fnVal, err := interp.eval(node, env)
	if err != nil {
		return nil, err
	}
	result, err := interp.call(fnVal, nil)
	if err != nil {
		return nil, err
	}
	return interp.maybeAwait(result)
}

type interpreter struct {
	ctx   context.Context
	depth int
}

func (in *interpreter) maybeAwait(v any) (any, error) {
	if aw, ok := v.(Awaiter); ok {
		return aw.Await(in.ctx)
	}
	return v, nil
}

// eval evaluates an expression node.
func (in *interpreter) eval(node Node, env *Environment) (any, error) {
	select {
	case <-in.ctx.Done():
		return nil, in.ctx.Err()
	default:
	}

	switch n := node.(type) {
	case *NumberLit:
		return n.Value, nil
	case *StringLit:
		return n.Value, nil
	case *BoolLit:
		return n.Value, nil
	case *NullLit:
		return nil, nil
	case *UndefinedLit:
		return Undefined{}, nil
	case *TemplateLit:
		out := n.Parts[0]
		for i, e := range n.Exprs {
			v, err := in.eval(e, env)
			if err != nil {
				return nil, err
			}
			out += toDisplayString(v) + n.Parts[i+1]
		}
		return out, nil
	case *Ident:
		v, ok := env.Get(n.Name)
		if !ok {
			return nil, throwf("%s is not defined", n.Name)
		}
		return v, nil
	case *ArrayLit:
		arr := &Array{Items: make([]any, 0, len(n.Elements))}
		for _, e := range n.Elements {
			v, err := in.eval(e, env)
			if err != nil {
				return nil, err
			}
			arr.Items = append(arr.Items, v)
		}
		return arr, nil
	case *ObjectLit:
		obj := make(map[string]any, len(n.Props))
		for _, p := range n.Props {
			key := p.Key
			if p.Computed != nil {
				kv, err := in.eval(p.Computed, env)
				if err != nil {
					return nil, err
				}
				key = toDisplayString(kv)
			}
			v, err := in.eval(p.Value, env)
			if err != nil {
				return nil, err
			}
			obj[key] = v
		}
		return obj, nil
	case *FunctionExpr:
		closure := env
		if n.Name != "" {
			// Named function expressions can recurse by their own name;
			// bind it in a thin scope between the function and its
			// defining environment.
			closure = NewEnvironment(env)
		}
		fn := &Function{Decl: n, Closure: closure}
		if n.Name != "" {
			closure.Define(n.Name, fn)
		}
		return fn, nil
	case *Unary:
		return in.evalUnary(n, env)
	case *TypeOf:
		v, err := in.eval(n.Arg, env)
		if err != nil {
			if _, ok := err.(*ThrownError); ok {
				return "undefined", nil
			}
			return nil, err
		}
		return typeOf(v), nil
	case *Await:
		v, err := in.eval(n.Arg, env)
		if err != nil {
			return nil, err
		}
		return in.maybeAwait(v)
	case *Binary:
		return in.evalBinary(n, env)
	case *Logical:
		return in.evalLogical(n, env)
	case *Conditional:
		t, err := in.eval(n.Test, env)
		if err != nil {
			return nil, err
		}
		if truthy(t) {
			return in.eval(n.Then, env)
		}
		return in.eval(n.Else, env)
	case *Assign:
		return in.evalAssign(n, env)
	case *Call:
		return in.evalCall(n, env)
	case *Member:
		obj, err := in.eval(n.Object, env)
		if err != nil {
			return nil, err
		}
		if n.Optional && isNil(obj) {
			return Undefined{}, nil
		}
		return in.getProperty(obj, n.Property)
	case *Index:
		obj, err := in.eval(n.Object, env)
		if err != nil {
			return nil, err
		}
		idx, err := in.eval(n.Property, env)
		if err != nil {
			return nil, err
		}
		return in.getProperty(obj, toDisplayString(idx))
	}
	return nil, throwf("unsupported expression node %T", node)
}

func typeOf(v any) string {
	switch v.(type) {
	case nil:
		return "object"
	case Undefined:
		return "undefined"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case *Function, *NativeFunc:
		return "function"
	default:
		return "object"
	}
}

func (in *interpreter) evalUnary(n *Unary, env *Environment) (any, error) {
	v, err := in.eval(n.Operand, env)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "!":
		return !truthy(v), nil
	case "-":
		return -toNumber(v), nil
	case "+":
		return toNumber(v), nil
	}
	return nil, throwf("unsupported unary operator %s", n.Op)
}

func (in *interpreter) evalLogical(n *Logical, env *Environment) (any, error) {
	left, err := in.eval(n.Left, env)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "&&":
		if !truthy(left) {
			return left, nil
		}
		return in.eval(n.Right, env)
	case "||":
		if truthy(left) {
			return left, nil
		}
		return in.eval(n.Right, env)
	case "??":
		if !isNil(left) {
			return left, nil
		}
		return in.eval(n.Right, env)
	}
	return nil, throwf("unsupported logical operator %s", n.Op)
}

func (in *interpreter) evalBinary(n *Binary, env *Environment) (any, error) {
	left, err := in.eval(n.Left, env)
	if err != nil {
		return nil, err
	}
	right, err := in.eval(n.Right, env)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "+":
		if ls, ok := left.(string); ok {
			return ls + toDisplayString(right), nil
		}
		if rs, ok := right.(string); ok {
			return toDisplayString(left) + rs, nil
		}
		return toNumber(left) + toNumber(right), nil
	case "-":
		return toNumber(left) - toNumber(right), nil
	case "*":
		return toNumber(left) * toNumber(right), nil
	case "/":
		return toNumber(left) / toNumber(right), nil
	case "%":
		lf, rf := toNumber(left), toNumber(right)
		return float64(int64(lf) % int64(rf)), nil
	case "==":
		return looseEquals(left, right), nil
	case "!=":
		return !looseEquals(left, right), nil
	case "===":
		return strictEquals(left, right), nil
	case "!==":
		return !strictEquals(left, right), nil
	case "<":
		return compare(left, right) < 0, nil
	case ">":
		return compare(left, right) > 0, nil
	case "<=":
		return compare(left, right) <= 0, nil
	case ">=":
		return compare(left, right) >= 0, nil
	case "in":
		return in.hasProperty(right, toDisplayString(left)), nil
	}
	return nil, throwf("unsupported binary operator %s", n.Op)
}

func compare(a, b any) int {
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			switch {
			case as < bs:
				return -1
			case as > bs:
				return 1
			default:
				return 0
			}
		}
	}
	af, bf := toNumber(a), toNumber(b)
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	default:
		return 0
	}
}

func (in *interpreter) hasProperty(v any, key string) bool {
	switch x := v.(type) {
	case map[string]any:
		_, ok := x[key]
		return ok
	case *Array:
		idx, err := indexFromString(key)
		return err == nil && idx >= 0 && idx < len(x.Items)
	}
	return false
}

func indexFromString(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func (in *interpreter) evalAssign(n *Assign, env *Environment) (any, error) {
	value, err := in.eval(n.Value, env)
	if err != nil {
		return nil, err
	}
	if n.Op != "=" {
		cur, err := in.eval(n.Target, env)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case "+=":
			if ls, ok := cur.(string); ok {
				value = ls + toDisplayString(value)
			} else {
				value = toNumber(cur) + toNumber(value)
			}
		case "-=":
			value = toNumber(cur) - toNumber(value)
		case "*=":
			value = toNumber(cur) * toNumber(value)
		case "/=":
			value = toNumber(cur) / toNumber(value)
		}
	}
	if err := in.assignTo(n.Target, value, env); err != nil {
		return nil, err
	}
	return value, nil
}

func (in *interpreter) assignTo(target Node, value any, env *Environment) error {
	switch t := target.(type) {
	case *Ident:
		env.Set(t.Name, value)
		return nil
	case *Member:
		obj, err := in.eval(t.Object, env)
		if err != nil {
			return err
		}
		return in.setProperty(obj, t.Property, value)
	case *Index:
		obj, err := in.eval(t.Object, env)
		if err != nil {
			return err
		}
		idx, err := in.eval(t.Property, env)
		if err != nil {
			return err
		}
		return in.setProperty(obj, toDisplayString(idx), value)
	}
	return throwf("invalid assignment target")
}

func (in *interpreter) setProperty(obj any, key string, value any) error {
	switch o := obj.(type) {
	case map[string]any:
		o[key] = value
		return nil
	case *Array:
		idx, err := indexFromString(key)
		if err != nil {
			return throwf("invalid array index %q", key)
		}
		for idx >= len(o.Items) {
			o.Items = append(o.Items, Undefined{})
		}
		o.Items[idx] = value
		return nil
	}
	return throwf("cannot set property %q on %T", key, obj)
}

func (in *interpreter) evalCall(n *Call, env *Environment) (any, error) {
	var thisVal any
	var callee any
	var err error
	if m, ok := n.Callee.(*Member); ok {
		thisVal, err = in.eval(m.Object, env)
		if err != nil {
			return nil, err
		}
		if m.Optional && isNil(thisVal) {
			return Undefined{}, nil
		}
		callee, err = in.getProperty(thisVal, m.Property)
		if err != nil {
			return nil, err
		}
	} else if idx, ok := n.Callee.(*Index); ok {
		thisVal, err = in.eval(idx.Object, env)
		if err != nil {
			return nil, err
		}
		key, err2 := in.eval(idx.Property, env)
		if err2 != nil {
			return nil, err2
		}
		callee, err = in.getProperty(thisVal, toDisplayString(key))
		if err != nil {
			return nil, err
		}
	} else {
		callee, err = in.eval(n.Callee, env)
		if err != nil {
			return nil, err
		}
	}

	args := make([]any, len(n.Args))
	for i, a := range n.Args {
		v, err := in.eval(a, env)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return in.callWithThis(callee, thisVal, args)
}

func (in *interpreter) call(callee any, args []any) (any, error) {
	return in.callWithThis(callee, nil, args)
}

func (in *interpreter) callWithThis(callee, this any, args []any) (any, error) {
	switch fn := callee.(type) {
	case *Function:
		return in.callSandboxFunc(fn, args)
	case *NativeFunc:
		return fn.Fn(in.ctx, args)
	case nil:
		return nil, throwf("attempted to call undefined")
	default:
		rv := reflect.ValueOf(callee)
		if rv.Kind() == reflect.Func {
			return callGoFunc(in.ctx, rv, args)
		}
		return nil, throwf("value of type %T is not callable", callee)
	}
}

func (in *interpreter) callSandboxFunc(fn *Function, args []any) (any, error) {
	in.depth++
	defer func() { in.depth-- }()
	if in.depth > MaxRecursionDepth {
		return map[string]any{"__cycle": true}, nil
	}

	scope := NewEnvironment(fn.Closure)
	for i, p := range fn.Decl.Params {
		if i < len(args) {
			scope.Define(p, args[i])
		} else {
			scope.Define(p, Undefined{})
		}
	}

	if !fn.Decl.IsBody {
		return in.eval(fn.Decl.Body, scope)
	}

	sig, err := in.exec(fn.Decl.Body, scope)
	if err != nil {
		return nil, err
	}
	if sig != nil && sig.kind == ctrlReturn {
		return sig.value, nil
	}
	return Undefined{}, nil
}

// getProperty resolves member/index access across the value kinds the
// sandbox supports: plain objects, arrays/strings with a small built-in
// method set, and arbitrary host values accessed via reflection (handles
// to external resources bound into the call's context).
func (in *interpreter) getProperty(obj any, key string) (any, error) {
	switch o := obj.(type) {
	case nil:
		return nil, throwf("cannot read property %q of null", key)
	case Undefined:
		return nil, throwf("cannot read property %q of undefined", key)
	case map[string]any:
		if v, ok := o[key]; ok {
			return v, nil
		}
		return Undefined{}, nil
	case *Array:
		if key == "length" {
			return float64(len(o.Items)), nil
		}
		if fn, ok := arrayMethod(o, key); ok {
			return fn, nil
		}
		if idx, err := indexFromString(key); err == nil {
			if idx >= 0 && idx < len(o.Items) {
				return o.Items[idx], nil
			}
			return Undefined{}, nil
		}
		return Undefined{}, nil
	case []any:
		return in.getProperty(&Array{Items: o}, key)
	case string:
		if key == "length" {
			return float64(len([]rune(o))), nil
		}
		if fn, ok := stringMethod(o, key); ok {
			return fn, nil
		}
		if idx, err := indexFromString(key); err == nil {
			runes := []rune(o)
			if idx >= 0 && idx < len(runes) {
				return string(runes[idx]), nil
			}
			return Undefined{}, nil
		}
		return Undefined{}, nil
	default:
		return reflectGetProperty(obj, key)
	}
}

// reflectGetProperty supports host-provided structs/pointers exposed
// through context values (e.g. a handle to an external resource). It
// looks up an exported field or a method under the key's Go-exported
// (capitalized) form.
func reflectGetProperty(obj any, key string) (any, error) {
	rv := reflect.ValueOf(obj)
	if !rv.IsValid() {
		return Undefined{}, nil
	}
	name := exportedName(key)

	direct := rv
	if direct.Kind() == reflect.Ptr && !direct.IsNil() {
		direct = direct.Elem()
	}
	if direct.Kind() == reflect.Struct {
		if f := direct.FieldByName(name); f.IsValid() && f.CanInterface() {
			return f.Interface(), nil
		}
	}

	if m := rv.MethodByName(name); m.IsValid() {
		return &NativeFunc{Name: key, Fn: func(ctx context.Context, args []any) (any, error) {
			return callGoFunc(ctx, m, args)
		}}, nil
	}
	return Undefined{}, nil
}

func exportedName(key string) string {
	if key == "" {
		return key
	}
	r := []rune(key)
	if r[0] >= 'a' && r[0] <= 'z' {
		r[0] = r[0] - 32
	}
	return string(r)
}

// callGoFunc invokes an arbitrary Go function value (bound from Context or
// returned by reflection-based member access) with sandbox argument
// values, converting common (value, error) return shapes.
func callGoFunc(ctx context.Context, fn reflect.Value, args []any) (any, error) {
	ft := fn.Type()
	in := make([]reflect.Value, 0, len(args))
	for i := 0; i < ft.NumIn() && i < len(args); i++ {
		pt := ft.In(i)
		if pt.String() == "context.Context" {
			in = append(in, reflect.ValueOf(ctx))
			continue
		}
		av := args[i]
		if av == nil {
			in = append(in, reflect.Zero(pt))
			continue
		}
		argVal := reflect.ValueOf(av)
		if argVal.Type().ConvertibleTo(pt) {
			in = append(in, argVal.Convert(pt))
		} else {
			in = append(in, argVal)
		}
	}
	for len(in) < ft.NumIn() {
		in = append(in, reflect.Zero(ft.In(len(in))))
	}

	out := fn.Call(in)
	switch len(out) {
	case 0:
		return Undefined{}, nil
	case 1:
		if errV, ok := out[0].Interface().(error); ok {
			return nil, errV
		}
		return out[0].Interface(), nil
	default:
		last := out[len(out)-1]
		if errV, ok := last.Interface().(error); ok && !last.IsNil() {
			return nil, errV
		} else if ok && errV == nil {
			return out[0].Interface(), nil
		}
		return out[0].Interface(), nil
	}
}

// exec executes a statement, returning a non-nil *controlSignal when a
// return/break/continue needs to propagate to an enclosing construct.
func (in *interpreter) exec(node Node, env *Environment) (*controlSignal, error) {
	switch n := node.(type) {
	case *Block:
		scope := NewEnvironment(env)
		for _, s := range n.Stmts {
			sig, err := in.exec(s, scope)
			if err != nil || sig != nil {
				return sig, err
			}
		}
		return nil, nil
	case *VarDecl:
		var v any = Undefined{}
		if n.Init != nil {
			var err error
			v, err = in.eval(n.Init, env)
			if err != nil {
				return nil, err
			}
		}
		env.Define(n.Name, v)
		return nil, nil
	case *ExprStmt:
		_, err := in.eval(n.Expr, env)
		return nil, err
	case *ReturnStmt:
		var v any = Undefined{}
		if n.Arg != nil {
			var err error
			v, err = in.eval(n.Arg, env)
			if err != nil {
				return nil, err
			}
		}
		return &controlSignal{kind: ctrlReturn, value: v}, nil
	case *IfStmt:
		t, err := in.eval(n.Test, env)
		if err != nil {
			return nil, err
		}
		if truthy(t) {
			return in.exec(n.Then, env)
		}
		if n.Else != nil {
			return in.exec(n.Else, env)
		}
		return nil, nil
	case *WhileStmt:
		for {
			t, err := in.eval(n.Test, env)
			if err != nil {
				return nil, err
			}
			if !truthy(t) {
				return nil, nil
			}
			sig, err := in.exec(n.Body, env)
			if err != nil {
				return nil, err
			}
			if sig != nil {
				if sig.kind == ctrlBreak {
					return nil, nil
				}
				if sig.kind == ctrlReturn {
					return sig, nil
				}
			}
		}
	case *ForOfStmt:
		right, err := in.eval(n.Right, env)
		if err != nil {
			return nil, err
		}
		items, ok := toArrayItems(right)
		if !ok {
			if m, isMap := right.(map[string]any); isMap {
				for _, k := range sortedKeys(m) {
					items = append(items, k)
				}
			} else {
				return nil, throwf("value is not iterable in for...of")
			}
		}
		for _, item := range items {
			scope := NewEnvironment(env)
			scope.Define(n.Name, item)
			sig, err := in.exec(n.Body, scope)
			if err != nil {
				return nil, err
			}
			if sig != nil {
				if sig.kind == ctrlBreak {
					return nil, nil
				}
				if sig.kind == ctrlReturn {
					return sig, nil
				}
			}
		}
		return nil, nil
	case *TryStmt:
		sig, err := in.exec(n.Block, env)
		if err != nil {
			if te, ok := err.(*ThrownError); ok && n.CatchBlock != nil {
				scope := NewEnvironment(env)
				if n.CatchParam != "" {
					scope.Define(n.CatchParam, te.Value)
				}
				sig, err = in.exec(n.CatchBlock, scope)
			}
		}
		if n.FinallyBlock != nil {
			fsig, ferr := in.exec(n.FinallyBlock, env)
			if ferr != nil {
				return fsig, ferr
			}
			if fsig != nil {
				return fsig, nil
			}
		}
		return sig, err
	case *ThrowStmt:
		v, err := in.eval(n.Arg, env)
		if err != nil {
			return nil, err
		}
		return nil, &ThrownError{Value: v}
	case *BreakStmt:
		return &controlSignal{kind: ctrlBreak}, nil
	case *ContinueStmt:
		return &controlSignal{kind: ctrlContinue}, nil
	}
	return nil, throwf("unsupported statement node %T", node)
}
