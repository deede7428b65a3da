package socket

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/klendathu-run/klendathu/agent"
	"github.com/klendathu-run/klendathu/eval"
)

// ErrProtocol reports a malformed or out-of-sequence wire message.
var ErrProtocol = errors.New("socket: protocol error")

// Adapter implements agent.Adapter by driving an agent process over a
// Connection: it sends the prompt and tool catalog once, answers
// inbound tool calls synchronously in the order they arrive (matching
// the "each tool call reaches the Tool Surface exactly once, in
// agent-issued order" contract), and waits for a matching run-finished
// reply to settle Run.
type Adapter struct {
	conn      Connection
	requestID atomic.Uint64
}

// New builds an Adapter over conn.
func New(conn Connection) *Adapter {
	return &Adapter{conn: conn}
}

// Run implements agent.Adapter.
func (a *Adapter) Run(ctx context.Context, prompt string, tools []eval.ToolDefinition, status chan<- agent.StatusMessage) (agent.RunSummary, error) {
	id := fmt.Sprintf("%d", a.requestID.Add(1))
	byName := make(map[string]eval.ToolDefinition, len(tools))
	catalog := make([]any, 0, len(tools))
	for _, td := range tools {
		byName[td.Tool.Name] = td
		catalog = append(catalog, map[string]any{
			"name":        td.Tool.Name,
			"description": td.Tool.Description,
			"inputSchema": td.Tool.InputSchema,
		})
	}

	if err := a.conn.Send(Message{Type: MsgRunStart, ID: id, Payload: map[string]any{
		"prompt": prompt,
		"tools":  catalog,
	}}); err != nil {
		return agent.RunSummary{}, err
	}

	msgs := make(chan Message, 16)
	recvErrs := make(chan error, 1)
	go func() {
		for {
			msg, err := a.conn.Recv()
			if err != nil {
				recvErrs <- err
				return
			}
			msgs <- msg
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return agent.RunSummary{}, ctx.Err()
		case err := <-recvErrs:
			return agent.RunSummary{}, err
		case msg := <-msgs:
			if done, summary, err := a.handle(ctx, msg, id, byName, status); done {
				return summary, err
			}
		}
	}
}

func (a *Adapter) handle(ctx context.Context, msg Message, id string, byName map[string]eval.ToolDefinition, status chan<- agent.StatusMessage) (bool, agent.RunSummary, error) {
	switch msg.Type {
	case MsgToolCall:
		a.handleToolCall(ctx, msg, byName)
		return false, agent.RunSummary{}, nil
	case MsgStatus:
		forwardStatus(msg, status)
		return false, agent.RunSummary{}, nil
	case MsgRunFinished:
		if msg.ID != id {
			return false, agent.RunSummary{}, nil
		}
		return true, summaryFromPayload(msg.Payload), nil
	case MsgError:
		if msg.ID != id {
			return false, agent.RunSummary{}, nil
		}
		reason := getString(msg.Payload, "error")
		if reason == "" {
			reason = "unknown error"
		}
		return true, agent.RunSummary{}, errors.New(reason)
	default:
		return false, agent.RunSummary{}, nil
	}
}

func (a *Adapter) handleToolCall(ctx context.Context, msg Message, byName map[string]eval.ToolDefinition) {
	name := getString(msg.Payload, "name")
	code := getString(msg.Payload, "code")

	td, ok := byName[name]
	if !ok {
		a.conn.Send(Message{Type: MsgToolResult, ID: msg.ID, Payload: map[string]any{
			"text":     fmt.Sprintf("%v: unknown tool %q", ErrProtocol, name),
			"is_error": true,
		}})
		return
	}

	res := td.Handler(ctx, code)
	a.conn.Send(Message{Type: MsgToolResult, ID: msg.ID, Payload: map[string]any{
		"text":     res.Text,
		"is_error": res.IsError,
	}})
}

func forwardStatus(msg Message, status chan<- agent.StatusMessage) {
	if status == nil {
		return
	}
	select {
	case status <- agent.StatusMessage{Kind: agent.StatusLog, Log: getString(msg.Payload, "log")}:
	default:
	}
}

func summaryFromPayload(payload map[string]any) agent.RunSummary {
	return agent.RunSummary{
		Turns:          intField(payload, "turns"),
		FinishReason:   getString(payload, "finish_reason"),
		ToolCallsCount: intField(payload, "tool_calls_count"),
	}
}

func intField(payload map[string]any, key string) int {
	if v, ok := payload[key].(float64); ok {
		return int(v)
	}
	return 0
}
