package eval

import (
	"context"
	"sync"
)

// Completion is the single-shot promise associated with one request.
// It resolves with the validated result when set_result succeeds, or
// rejects when bail is invoked, the agent exits without completing, or
// the request is cancelled. Only the first Resolve/Reject call has any
// effect; later calls are no-ops, matching the "a failing set_result
// does not resolve the promise, but the agent may retry" rule and the
// "bail after set_result already settled it" rule alike.
type Completion struct {
	mu    sync.Mutex
	done  chan struct{}
	value any
	err   error
}

// NewCompletion returns a fresh, unsettled Completion.
func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Resolve settles the completion with value. Returns true iff this call
// performed the settling (false if already settled).
func (c *Completion) Resolve(value any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return false
	default:
	}
	c.value = value
	close(c.done)
	return true
}

// Reject settles the completion with err. Returns true iff this call
// performed the settling.
func (c *Completion) Reject(err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return false
	default:
	}
	c.err = err
	close(c.done)
	return true
}

// Settled reports whether Resolve or Reject has already taken effect.
func (c *Completion) Settled() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Await blocks until the completion settles or ctx is cancelled first.
func (c *Completion) Await(ctx context.Context) (any, error) {
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.value, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
