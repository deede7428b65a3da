package socket

import "encoding/json"

// MessageType discriminates the wire protocol's message shapes.
type MessageType string

const (
	// MsgRunStart is sent once, from us to the remote agent process:
	// the prompt and the tool catalog (name/description/input schema).
	MsgRunStart MessageType = "run_start"

	// MsgToolCall is sent from the remote agent process to us: it wants
	// to invoke one of the tools named in MsgRunStart's catalog.
	MsgToolCall MessageType = "tool_call"

	// MsgToolResult is our synchronous reply to a MsgToolCall, carrying
	// the same ID so the remote side can correlate it.
	MsgToolResult MessageType = "tool_result"

	// MsgStatus is an out-of-band diagnostic event forwarded onto the
	// local status channel.
	MsgStatus MessageType = "status"

	// MsgRunFinished is the remote agent process's reply to our
	// MsgRunStart, carrying the run summary. It ends the Run call.
	MsgRunFinished MessageType = "run_finished"

	// MsgError reports a protocol-level failure tied to a request ID.
	MsgError MessageType = "error"
)

// Message is the single wire envelope exchanged in both directions.
// Payload's meaning depends on Type.
type Message struct {
	Type    MessageType    `json:"type"`
	ID      string         `json:"id"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Connection is the transport a Adapter is built on: a framed,
// bidirectional channel of Messages. Implementations own the actual
// socket, pipe, or in-process channel framing.
type Connection interface {
	// Send writes one message. Implementations must be safe to call
	// concurrently with Recv but need not support concurrent Sends.
	Send(msg Message) error

	// Recv blocks for the next inbound message, returning an error
	// (e.g. io.EOF) when the connection closes.
	Recv() (Message, error)

	Close() error
}

// Codec serializes a Message to and from wire bytes. Connection
// implementations that frame raw bytes (rather than passing Message
// values directly, as an in-process pipe can) use a Codec internally.
type Codec interface {
	Encode(msg Message) ([]byte, error)
	Decode(data []byte) (Message, error)
}

// JSONCodec is the default Codec.
type JSONCodec struct{}

func (JSONCodec) Encode(msg Message) ([]byte, error) { return json.Marshal(msg) }

func (JSONCodec) Decode(data []byte) (Message, error) {
	var msg Message
	err := json.Unmarshal(data, &msg)
	return msg, err
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
