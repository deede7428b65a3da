package eval

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolResult is the single string content block a tool call returns to
// the agent, with the retryable/fatal distinction the agent relies on
// to decide whether to retry.
type ToolResult struct {
	Text    string
	IsError bool
}

// ToolDefinition pairs a hand-authored mcp.Tool literal (name,
// description, input schema) with the handler that executes it. The
// teacher repo always hand-writes InputSchema as a map[string]any
// literal rather than deriving it by reflection; this module does the
// same for its fixed three-tool protocol.
type ToolDefinition struct {
	Tool    mcp.Tool
	Handler func(ctx context.Context, arg string) ToolResult
}

// Outcome is the tagged union recorded for one tool call: either Ok
// with serialized data, or Err with a message and optional stack.
type Outcome struct {
	OK      bool
	Data    any
	Message string
	Stack   string
}

// OnToolCall is invoked once per tool call, before the Tool Surface
// returns to the agent, so the Transcript can be updated synchronously.
type OnToolCall func(tool, code string, outcome Outcome)

// Surface wires eval/set_result/bail to an Evaluator, recording every
// call through onToolCall before returning to the agent.
type Surface struct {
	evaluator  *Evaluator
	onToolCall OnToolCall
	stopAgent  func()
}

// NewSurface builds a Tool Surface bound to evaluator. onToolCall may be
// nil (no-op). stopAgent, if non-nil, is invoked once set_result
// succeeds, signalling the orchestrator's agent adapter to stop.
func NewSurface(evaluator *Evaluator, onToolCall OnToolCall, stopAgent func()) *Surface {
	if onToolCall == nil {
		onToolCall = func(string, string, Outcome) {}
	}
	if stopAgent == nil {
		stopAgent = func() {}
	}
	return &Surface{evaluator: evaluator, onToolCall: onToolCall, stopAgent: stopAgent}
}

// Tools returns the three tool definitions for this surface, in the
// order an agent catalog would list them.
func (s *Surface) Tools() []ToolDefinition {
	return []ToolDefinition{
		{
			Tool: mcp.Tool{
				Name:        "eval",
				Description: "Execute a JavaScript-like async function expression against the live context and the persistent vars scratch namespace. Returns the serialized result and any captured console output.",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"code": map[string]any{
							"type":        "string",
							"description": "Source for an async function expression, invoked as (code)().",
						},
					},
					"required": []any{"code"},
				},
			},
			Handler: s.handleEval,
		},
		{
			Tool: mcp.Tool{
				Name:        "set_result",
				Description: "Execute a final async function expression and validate its return value against the result schema. On success this completes the request.",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"code": map[string]any{
							"type":        "string",
							"description": "Source for an async function expression producing the final result.",
						},
					},
					"required": []any{"code"},
				},
			},
			Handler: s.handleSetResult,
		},
		{
			Tool: mcp.Tool{
				Name:        "bail",
				Description: "Give up on the task with an explanatory message. This fails the request.",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"message": map[string]any{
							"type":        "string",
							"description": "Why the task could not be completed.",
						},
					},
					"required": []any{"message"},
				},
			},
			Handler: s.handleBail,
		},
	}
}

func (s *Surface) handleEval(ctx context.Context, code string) ToolResult {
	outcome, err := s.evaluator.Eval(ctx, code)
	if err != nil {
		ee := err.(*EvalError)
		s.onToolCall("eval", code, Outcome{OK: false, Message: ee.Message, Stack: ee.Stack})
		return ToolResult{Text: ee.Error(), IsError: true}
	}
	data := map[string]any{"result": outcome.Result}
	if len(outcome.Console) > 0 {
		console := make([]any, len(outcome.Console))
		for i, c := range outcome.Console {
			console[i] = map[string]any{"level": c.Level, "args": c.Args}
		}
		data["console"] = console
	}
	s.onToolCall("eval", code, Outcome{OK: true, Data: data})
	return ToolResult{Text: renderJSON(data)}
}

func (s *Surface) handleSetResult(ctx context.Context, code string) ToolResult {
	value, err := s.evaluator.SetResult(ctx, code)
	if err != nil {
		msg, stack := errMessageAndStack(err)
		s.onToolCall("set_result", code, Outcome{OK: false, Message: msg, Stack: stack})
		return ToolResult{Text: msg, IsError: true}
	}
	s.onToolCall("set_result", code, Outcome{OK: true, Data: value})
	s.stopAgent()
	return ToolResult{Text: "Result computed"}
}

func (s *Surface) handleBail(ctx context.Context, message string) ToolResult {
	s.evaluator.SetBailError(message)
	s.onToolCall("bail", message, Outcome{OK: false, Message: message})
	return ToolResult{Text: fmt.Sprintf("Implementation failed: %s", message), IsError: true}
}

func errMessageAndStack(err error) (string, string) {
	switch e := err.(type) {
	case *EvalError:
		return e.Message, e.Stack
	case *ValidationError:
		return e.Message, ""
	default:
		return err.Error(), ""
	}
}

func renderJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
