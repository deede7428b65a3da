package agenttest

import (
	"context"
	"testing"

	"github.com/klendathu-run/klendathu/agent"
	"github.com/klendathu-run/klendathu/eval"
	"github.com/klendathu-run/klendathu/schema"
)

func TestFakeAdapter_RunsScriptedStepsAndStopsOnSuccess(t *testing.T) {
	sch := schema.Schema{"n": schema.Number()}
	ev := eval.New(map[string]any{}, map[string]any{}, sch, nil, nil)
	surface := eval.NewSurface(ev, nil, nil)

	fake := &FakeAdapter{
		Script: []Step{
			{Tool: "eval", Code: `async () => { vars.n = 7; return vars.n; }`},
			{Tool: "set_result", Code: `async () => ({ n: vars.n })`},
		},
	}

	status := make(chan agent.StatusMessage, 16)
	_, err := fake.Run(context.Background(), "double the number", surface.Tools(), status)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.Calls) != 2 || fake.Calls[0] != "eval" || fake.Calls[1] != "set_result" {
		t.Fatalf("unexpected call order: %v", fake.Calls)
	}

	value, err := ev.AwaitCompletion(context.Background())
	if err != nil {
		t.Fatalf("completion rejected: %v", err)
	}
	if value.(map[string]any)["n"] != 7.0 {
		t.Fatalf("unexpected completion value: %v", value)
	}
}
