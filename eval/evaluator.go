package eval

import (
	"context"
	"fmt"

	"github.com/klendathu-run/klendathu/internal/sandboxlang"
	"github.com/klendathu-run/klendathu/schema"
)

// Logger is the minimal logging seam every component in this module
// accepts. A nil Logger is valid and logs nothing.
type Logger interface {
	Logf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Logf(string, ...any) {}

// ConsoleEntry is one captured console invocation from a single eval
// call: {level, args} with args already serialized.
type ConsoleEntry struct {
	Level string
	Args  []any
}

// EvalOutcome is the result of a single eval() tool call.
type EvalOutcome struct {
	Result  any
	Console []ConsoleEntry
}

// Evaluator is a per-request stateful object bound to (context, vars,
// schema, optional caller-supplied validator). It is not safe for
// concurrent use, and the Tool Surface adds no locking of its own: calls
// run in submission order because the agent adapter issues tool calls
// one at a time.
type Evaluator struct {
	context   map[string]any
	vars      map[string]any
	schema    schema.Schema
	validator func(any) error
	logger    Logger

	base       *sandboxlang.Environment
	persistent *sandboxlang.Environment

	completion *Completion
}

// New builds an Evaluator bound to ctxValues/vars/schema. validator may
// be nil. logger may be nil (defaults to a no-op logger).
func New(ctxValues, vars map[string]any, sch schema.Schema, validator func(any) error, logger Logger) *Evaluator {
	if logger == nil {
		logger = noopLogger{}
	}
	base := sandboxlang.NewBaseEnvironment(nil)
	persistent := sandboxlang.NewEnvironment(base)
	persistent.Define("context", ctxValues)
	persistent.Define("vars", vars)
	return &Evaluator{
		context:    ctxValues,
		vars:       vars,
		schema:     sch,
		validator:  validator,
		logger:     logger,
		base:       base,
		persistent: persistent,
		completion: NewCompletion(),
	}
}

// Completion returns the request's single-shot completion promise.
func (e *Evaluator) Completion() *Completion { return e.completion }

// runCapturingConsole parses, invokes, and awaits code against a fresh
// child scope of e.persistent so that `context` and `vars` resolve to
// the shared, mutating maps while console output is captured per call.
func (e *Evaluator) runCapturingConsole(ctx context.Context, code string) (any, []ConsoleEntry, error) {
	var entries []ConsoleEntry
	callEnv := sandboxlang.NewEnvironment(e.persistent)
	callEnv.Define("console", consoleCapture(&entries))

	result, err := sandboxlang.Run(ctx, code, callEnv)
	return result, entries, err
}

func consoleCapture(entries *[]ConsoleEntry) map[string]any {
	capture := func(level string) *sandboxlang.NativeFunc {
		return &sandboxlang.NativeFunc{Name: level, Fn: func(ctx context.Context, args []any) (any, error) {
			serialized := make([]any, len(args))
			for i, a := range args {
				serialized[i] = Serialize(a)
			}
			*entries = append(*entries, ConsoleEntry{Level: level, Args: serialized})
			return sandboxlang.Undefined{}, nil
		}}
	}
	return map[string]any{
		"log":   capture("log"),
		"info":  capture("info"),
		"warn":  capture("warn"),
		"error": capture("error"),
		"debug": capture("debug"),
		"trace": capture("trace"),
	}
}

// Eval executes code as "(<code>)()" against the shared (context, vars)
// scope and returns its serialized result plus any captured console
// output. Thrown errors are returned as *EvalError; they are not
// swallowed here, matching "exceptions are NOT caught here; they are
// caught by the Tool Surface."
func (e *Evaluator) Eval(ctx context.Context, code string) (EvalOutcome, error) {
	result, entries, err := e.runCapturingConsole(ctx, code)
	if err != nil {
		return EvalOutcome{}, evalErrorFrom(err)
	}
	return EvalOutcome{Result: Serialize(result), Console: entries}, nil
}

func evalErrorFrom(err error) *EvalError {
	if te, ok := err.(*sandboxlang.ThrownError); ok {
		shape := ErrorShape(te)
		name, _ := shape["name"].(string)
		message, _ := shape["message"].(string)
		stack, _ := shape["stack"].(string)
		return &EvalError{Message: fmt.Sprintf("%s: %s", name, message), Stack: stack}
	}
	return &EvalError{Message: err.Error()}
}

// SetResult executes code, validates its serialized return value
// against the schema (and the caller-supplied validator, if any), and
// on success resolves the completion promise with the validated value.
// A failing call returns an error and leaves the promise unsettled so
// the agent can retry with revised code.
func (e *Evaluator) SetResult(ctx context.Context, code string) (any, error) {
	result, _, err := e.runCapturingConsole(ctx, code)
	if err != nil {
		return nil, evalErrorFrom(err)
	}
	serialized := Serialize(result)

	validated, issues := e.schema.Validate(serialized)
	if len(issues) > 0 {
		return nil, &ValidationError{Message: schema.IssuesString(issues)}
	}

	if e.validator != nil {
		if verr := e.validator(validated); verr != nil {
			return nil, &ValidationError{Message: verr.Error()}
		}
	}

	e.completion.Resolve(validated)
	return validated, nil
}

// SetBailError rejects the completion promise with a BailError. A
// set_result call after bail still executes, but Resolve on an
// already-settled Completion is a no-op.
func (e *Evaluator) SetBailError(message string) {
	e.completion.Reject(&BailError{Reason: message})
}

// AwaitCompletion blocks on the single-shot completion promise.
func (e *Evaluator) AwaitCompletion(ctx context.Context) (any, error) {
	return e.completion.Await(ctx)
}
