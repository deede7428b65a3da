// Package agenttest provides a deterministic fake agent.Adapter for
// this module's own tests and examples, standing in for an LLM-backed
// agent without driving a real model.
package agenttest

import (
	"context"
	"sync"

	"github.com/klendathu-run/klendathu/agent"
	"github.com/klendathu-run/klendathu/eval"
)

// Step is one scripted tool call: which tool to invoke and what code
// (or, for bail, what message) to pass it.
type Step struct {
	Tool string
	Code string
}

// FakeAdapter drives a fixed Script of tool calls against whatever
// tools.Tools() it is given, in order. A set_result that reports
// IsError does not stop the script (so a scripted retry step can supply
// corrected code); the script stops early once set_result succeeds.
type FakeAdapter struct {
	mu sync.Mutex

	Script  []Step
	Summary agent.RunSummary

	// Calls records, in order, which tool names were invoked.
	Calls []string
}

// Run executes FakeAdapter's Script against tools, emitting a tool-call
// and a tool-result StatusMessage per step, then a summary message, on
// status if non-nil.
func (f *FakeAdapter) Run(ctx context.Context, prompt string, tools []eval.ToolDefinition, status chan<- agent.StatusMessage) (agent.RunSummary, error) {
	byName := make(map[string]eval.ToolDefinition, len(tools))
	for _, td := range tools {
		byName[td.Tool.Name] = td
	}

	for _, step := range f.Script {
		td, ok := byName[step.Tool]
		if !ok {
			continue
		}
		f.mu.Lock()
		f.Calls = append(f.Calls, step.Tool)
		f.mu.Unlock()

		res := td.Handler(ctx, step.Code)
		f.emitStatus(status, step, res)

		if step.Tool == "set_result" && !res.IsError {
			break
		}
		select {
		case <-ctx.Done():
			return f.Summary, ctx.Err()
		default:
		}
	}

	f.emitSummary(status)
	return f.Summary, nil
}

func (f *FakeAdapter) emitStatus(status chan<- agent.StatusMessage, step Step, res eval.ToolResult) {
	if status == nil {
		return
	}
	select {
	case status <- agent.StatusMessage{Kind: agent.StatusToolCall, Tool: step.Tool, Code: step.Code}:
	default:
	}
	select {
	case status <- agent.StatusMessage{Kind: agent.StatusToolResult, Tool: step.Tool, Result: res.Text, IsError: res.IsError}:
	default:
	}
}

func (f *FakeAdapter) emitSummary(status chan<- agent.StatusMessage) {
	if status == nil {
		return
	}
	summary := f.Summary
	select {
	case status <- agent.StatusMessage{Kind: agent.StatusSummary, Summary: &summary}:
	default:
	}
}
