package replay

import (
	"context"
	"errors"
	"testing"

	"github.com/klendathu-run/klendathu/cachestore"
	"github.com/klendathu-run/klendathu/schema"
)

func TestRun_AgreeingReplayReturnsCachedResult(t *testing.T) {
	entry := &cachestore.Entry{
		Success: true,
		Result:  map[string]any{"doubled": []any{2.0, 4.0}},
		Calls: []cachestore.EntryToolCall{
			{Tool: "eval", Code: `async () => { vars.n = 2; return vars.n; }`},
			{Tool: "set_result", Code: `async () => ({ doubled: [vars.n, vars.n * 2] })`},
		},
	}
	sch := schema.Schema{"doubled": schema.Array(schema.Number())}

	value, err := Run(context.Background(), entry, map[string]any{}, sch, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	obj := value.(map[string]any)
	doubled := obj["doubled"].([]any)
	if doubled[0] != 2.0 || doubled[1] != 4.0 {
		t.Fatalf("unexpected replayed result: %v", value)
	}
}

func TestRun_DivergingEvalReportsMismatch(t *testing.T) {
	entry := &cachestore.Entry{
		Success: true,
		Result:  map[string]any{"n": 1.0},
		Calls: []cachestore.EntryToolCall{
			{Tool: "eval", Code: `async () => { throw new_error_now(); }`},
			{Tool: "set_result", Code: `async () => ({ n: 1 })`},
		},
	}
	sch := schema.Schema{"n": schema.Number()}

	_, err := Run(context.Background(), entry, map[string]any{}, sch, nil, nil)
	if !errors.Is(err, ErrReplayMismatch) {
		t.Fatalf("expected ErrReplayMismatch, got %v", err)
	}
}

func TestRun_ResultDivergingFromFreshContextIsNotAMismatch(t *testing.T) {
	entry := &cachestore.Entry{
		Success: true,
		Result:  map[string]any{"doubled": 20.0},
		Calls: []cachestore.EntryToolCall{
			{Tool: "eval", Code: `async () => { vars.n = context.x * 2; return vars.n; }`},
			{Tool: "set_result", Code: `async () => ({ doubled: vars.n })`},
		},
	}
	sch := schema.Schema{"doubled": schema.Number()}

	value, err := Run(context.Background(), entry, map[string]any{"x": 99.0}, sch, nil, nil)
	if err != nil {
		t.Fatalf("a value that legitimately differs because ctxValues differs must not be a mismatch: %v", err)
	}
	if value.(map[string]any)["doubled"] != 198.0 {
		t.Fatalf("expected the recorded code re-executed against the fresh context, got %v", value)
	}
}

func TestRun_ValidatorRejectingReplayedResultReportsMismatch(t *testing.T) {
	entry := &cachestore.Entry{
		Success: true,
		Result:  map[string]any{"n": 1.0},
		Calls: []cachestore.EntryToolCall{
			{Tool: "set_result", Code: `async () => ({ n: 1 })`},
		},
	}
	sch := schema.Schema{"n": schema.Number()}
	validator := func(v any) error {
		return errors.New("caller's validator now disagrees")
	}

	_, err := Run(context.Background(), entry, map[string]any{}, sch, validator, nil)
	if !errors.Is(err, ErrReplayMismatch) {
		t.Fatalf("expected ErrReplayMismatch from a disagreeing validator, got %v", err)
	}
}
