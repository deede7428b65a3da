// Package transcript records the ordered sequence of tool calls (and,
// optionally, opaque agent messages) for one request, and persists that
// record to disk as JSON on a best-effort basis.
package transcript

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/klendathu-run/klendathu/eval"
)

// ToolResult is the on-disk tagged union for a single tool call's
// outcome: exactly one of Data or Message/Stack is meaningful,
// distinguished by OK.
type ToolResult struct {
	OK      bool   `json:"ok"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// ToolCall is one recorded invocation.
type ToolCall struct {
	Tool   string     `json:"tool"`
	Code   string     `json:"code"`
	Result ToolResult `json:"result"`
}

// Task describes the request this transcript belongs to, recorded for
// diagnostic replay and cache-file readability.
type Task struct {
	Prompt  string         `json:"prompt"`
	Schema  map[string]any `json:"schema,omitempty"`
	Context []ContextEntry `json:"context,omitempty"`
}

// ContextEntry is the descriptor form of one context binding: name and
// type tag, never the live value (Open Question resolution — see
// DESIGN.md: descriptors, not live values, are recorded).
type ContextEntry struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Transcript is the append-only per-request record. Messages are opaque
// and MAY be omitted (Open Question resolution: not consulted on
// replay, so this module does not require callers to populate them).
type Transcript struct {
	mu       sync.Mutex
	Success  bool       `json:"success"`
	Task     Task       `json:"task"`
	Messages []any      `json:"messages,omitempty"`
	Calls    []ToolCall `json:"calls"`
}

// New builds an empty Transcript for the given task description.
func New(task Task) *Transcript {
	return &Transcript{Task: task}
}

// RecordToolCall appends a tool call, converting an eval.Outcome into
// the on-disk ToolResult shape. Safe for concurrent use, though the
// spec's scheduling model means calls arrive strictly sequentially.
func (t *Transcript) RecordToolCall(tool, code string, outcome eval.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, ToolCall{
		Tool: tool,
		Code: code,
		Result: ToolResult{
			OK:      outcome.OK,
			Data:    outcome.Data,
			Message: outcome.Message,
			Stack:   outcome.Stack,
		},
	})
}

// RecordMessage appends an opaque agent message for diagnostic reading.
func (t *Transcript) RecordMessage(msg any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Messages = append(t.Messages, msg)
}

// SetSuccess sets the authoritative success flag ahead of a final save.
func (t *Transcript) SetSuccess(success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Success = success
}

// CallsSnapshot returns a copy of the recorded calls so far, safe to
// read without racing a concurrent RecordToolCall.
func (t *Transcript) CallsSnapshot() []ToolCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ToolCall(nil), t.Calls...)
}

// transcriptSnapshot mirrors Transcript's fields without the mutex, so it
// can be copied and marshaled freely.
type transcriptSnapshot struct {
	Success  bool       `json:"success"`
	Task     Task       `json:"task"`
	Messages []any      `json:"messages,omitempty"`
	Calls    []ToolCall `json:"calls"`
}

// snapshot returns a value safe to marshal without holding the lock
// during I/O.
func (t *Transcript) snapshot() transcriptSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return transcriptSnapshot{
		Success:  t.Success,
		Task:     t.Task,
		Messages: append([]any(nil), t.Messages...),
		Calls:    append([]ToolCall(nil), t.Calls...),
	}
}

// Logger is the minimal logging seam for swallowed persistence errors.
type Logger interface {
	Logf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Logf(string, ...any) {}

// Save writes the transcript to path as JSON, creating parent
// directories as needed. Failures are logged (if logger is non-nil)
// and otherwise swallowed — per the persistence policy, every
// intermediate write carries success=false (set by the caller via
// SetSuccess before each save) and only the final write is
// authoritative.
func (t *Transcript) Save(path string, logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	snap := t.snapshot()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		logger.Logf("transcript: marshal failed: %v", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Logf("transcript: mkdir failed: %v", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Logf("transcript: write failed: %v", err)
		return
	}
}

// Load reads and parses a transcript file. Returns (nil, nil) if the
// file does not exist, matching the cache store's "missing is not an
// error" lookup semantics.
func Load(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
