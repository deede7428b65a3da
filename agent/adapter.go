package agent

import (
	"context"

	"github.com/klendathu-run/klendathu/eval"
)

// Adapter drives an LLM-backed agent against a Tool Surface until the
// agent calls set_result successfully, bails, exits without either, or
// ctx is canceled.
//
// Contract:
//   - Concurrency: a single Adapter value is used for one request at a
//     time; the orchestrator does not call Run concurrently on the same
//     Adapter.
//   - Context: Run must honor ctx cancellation and return promptly,
//     translating cancellation into a status the orchestrator can map
//     to CancellationError.
//   - Transport: an Adapter may run the agent in-process (Go code
//     calling tools.Tools() handlers directly) or drive a process over a
//     local socket using the go-sdk/mcp tool-calling convention; both
//     are valid implementations of this same interface.
//   - Ownership: prompt and tools are read-only to the Adapter; the
//     returned RunSummary is caller-owned.
type Adapter interface {
	// Run drives the agent with the given prompt against the tool
	// definitions in tools until completion is externally resolved (by a
	// successful set_result or a bail) or the agent stops on its own.
	// status, if non-nil, receives diagnostic StatusMessage values as
	// the run progresses; Run must not block on an unread status
	// channel indefinitely — it should drop or buffer messages rather
	// than stall completion.
	Run(ctx context.Context, prompt string, tools []eval.ToolDefinition, status chan<- StatusMessage) (RunSummary, error)
}

// RunSummary reports usage and termination metadata for one agent run.
type RunSummary struct {
	Turns             int
	Cost              float64
	FinishReason      string
	InputTokens       int
	OutputTokens      int
	TotalTokens       int
	ReasoningTokens   int
	CachedInputTokens int
	ToolCallsCount    int
	Warnings          []string
}

// StatusMessage is a diagnostic event emitted during an agent run. Kind
// discriminates which other fields are meaningful; this mirrors a
// tagged union without needing a type switch at every call site.
type StatusMessage struct {
	Kind StatusKind

	// Log carries a free-form log line when Kind == StatusLog.
	Log string

	// Tool/Code are set for StatusToolCall; Tool/Result/IsError for
	// StatusToolResult.
	Tool     string
	Code     string
	Result   string
	IsError  bool

	// Turn is set for StatusTurn.
	Turn int

	// Summary is set for StatusSummary, duplicating the value Run
	// ultimately returns so a live status consumer need not wait for
	// Run to return to learn final usage.
	Summary *RunSummary
}

// StatusKind discriminates StatusMessage.
type StatusKind int

const (
	StatusLog StatusKind = iota
	StatusServerStarted
	StatusTurn
	StatusToolCall
	StatusToolResult
	StatusSummary
)
