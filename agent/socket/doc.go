// Package socket is the optional out-of-process transport shape for
// agent.Adapter: driving an agent process over a local connection
// instead of in the same process. No concrete transport (a net.Conn
// framing, a process launcher) is implemented — callers supply a
// Connection — but the request/response correlation this needs (match
// an outbound run-start to its eventual summary, while tool calls
// arrive inline and are answered synchronously) is implemented here so
// a real transport is a thin Connection to plug in, not a protocol to
// design.
package socket
