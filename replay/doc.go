// Package replay re-executes a cached transcript's recorded tool calls
// in order, deciding whether a cache hit is safe to trust.
//
// Replay re-runs each recorded eval call against a fresh Evaluator
// bound to the caller's current context and an empty vars namespace,
// then the recorded set_result call. If no recorded call raises or
// returns a serialized error on the fresh run, the value produced by the
// fresh set_result is returned (it can differ from the cached result
// when the context differs); the first failure reports a mismatch so the
// caller can fall back to a live agent run without the agent ever seeing
// the discrepancy.
package replay
