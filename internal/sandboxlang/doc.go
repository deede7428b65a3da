// Package sandboxlang is a small tree-walking interpreter for the
// function-expression language the sandboxed evaluator executes:
// evaluate a function-expression string, invoke it, await the result,
// and return or throw.
//
// It implements a JavaScript-like subset: arrow functions
// ("async () => { ... }"), let/const declarations, if/for-of/while,
// member and index access and assignment, object and array literals,
// the usual operators, and await. There is no embeddable ECMAScript
// engine available to build on, so this interpreter walks its own AST
// directly rather than wrapping one.
package sandboxlang
