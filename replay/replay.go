package replay

import (
	"context"
	"errors"

	"github.com/klendathu-run/klendathu/cachestore"
	"github.com/klendathu-run/klendathu/eval"
	"github.com/klendathu-run/klendathu/schema"
)

// ErrReplayMismatch signals that a recorded call's fresh outcome
// disagrees with what was cached. It is internal-only: callers outside
// this package see it only indirectly, as a cache miss that falls back
// to a live run.
var ErrReplayMismatch = errors.New("replay: recorded outcome does not match a fresh run")

// Logger is the minimal logging seam for reporting a mismatch before
// falling back.
type Logger interface {
	Logf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Logf(string, ...any) {}

// Run replays entry's recorded calls against a fresh Evaluator bound
// to ctxValues and sch, re-raising the caller's validator (if any) on
// the final set_result. A mismatch is narrowly an Ok recorded call
// raising or returning a serialized error on the fresh run — a result
// that legitimately differs in value from entry.Result because
// ctxValues differs from what was cached is NOT a mismatch; replaying
// the recorded code against the caller's fresh context, value and all,
// is the point. On the first mismatch Run returns ErrReplayMismatch
// (joined with the fresh call's error, if it raised one) and a nil
// result, and logs which call diverged via logger if non-nil.
func Run(ctx context.Context, entry *cachestore.Entry, ctxValues map[string]any, sch schema.Schema, validator func(any) error, logger Logger) (any, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	if len(entry.Calls) == 0 {
		return nil, mapMismatch(logger, "empty transcript", nil)
	}

	ev := eval.New(ctxValues, map[string]any{}, sch, validator, nil)

	for _, call := range entry.Calls[:len(entry.Calls)-1] {
		if call.Tool != "eval" {
			return nil, mapMismatch(logger, "unexpected non-eval call before the final call", nil)
		}
		out, err := ev.Eval(ctx, call.Code)
		if err != nil {
			return nil, mapMismatch(logger, "eval call diverged on replay", err)
		}
		if m, ok := out.Result.(map[string]any); ok {
			if isErr, _ := m["__error"].(bool); isErr {
				return nil, mapMismatch(logger, "eval call returned a serialized error on replay", nil)
			}
		}
	}

	final := entry.Calls[len(entry.Calls)-1]
	if final.Tool != "set_result" {
		return nil, mapMismatch(logger, "final recorded call was not set_result", nil)
	}
	value, err := ev.SetResult(ctx, final.Code)
	if err != nil {
		return nil, mapMismatch(logger, "set_result diverged on replay", err)
	}

	return value, nil
}

func mapMismatch(logger Logger, reason string, cause error) error {
	logger.Logf("replay: %s: %v", reason, cause)
	if cause != nil {
		return errors.Join(ErrReplayMismatch, cause)
	}
	return ErrReplayMismatch
}
