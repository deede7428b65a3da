// Package eval implements the sandboxed code Evaluator and the Tool
// Surface the agent drives it through: eval, set_result, and bail.
//
// An Evaluator is bound to one request's (context, vars, schema) and
// exposes eval/set_result/set_bail_error/await_completion. The Tool
// Surface wraps those calls as mcp.Tool definitions with a single
// string parameter each, recording every call through an on-tool-call
// callback before returning to the agent.
package eval
