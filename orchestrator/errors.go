package orchestrator

import (
	"errors"
	"fmt"
)

// Sentinel errors for the taxonomy that surfaces all the way to the
// caller. EvalRuntimeError and ValidationError never reach here — they
// are retryable and visible only to the agent via the Tool Surface.
var (
	// ErrAgentExitWithoutCompletion indicates the agent finished its
	// run without a successful set_result or a bail.
	ErrAgentExitWithoutCompletion = errors.New("agent exited without completion")

	// ErrCancellation indicates an externally supplied cancellation
	// handle fired before the request completed.
	ErrCancellation = errors.New("request canceled")

	// ErrCacheRequiredButMissing indicates force-use cache mode found
	// no usable cache entry.
	ErrCacheRequiredButMissing = errors.New("cache required but missing")

	// ErrConfiguration indicates an invalid or incomplete Config.
	ErrConfiguration = errors.New("configuration error")
)

// RequestError wraps the failure that ended a request (one of the
// sentinel errors above, an *eval.BailError, or a cache-key error) with
// the request state that produced it, for diagnostic logging.
type RequestError struct {
	State State
	Err   error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed in state %s: %v", e.State, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

func (e *RequestError) Is(target error) bool {
	return errors.Is(e.Err, target)
}
