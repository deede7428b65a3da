package klendathu_test

import (
	"context"
	"fmt"

	"github.com/klendathu-run/klendathu"
	"github.com/klendathu-run/klendathu/agent/agenttest"
	"github.com/klendathu-run/klendathu/schema"
)

func ExampleKlendathu_Implement() {
	fake := &agenttest.FakeAdapter{
		Script: []agenttest.Step{
			{Tool: "eval", Code: `async () => { vars.total = context.items.reduce((a, b) => a + b, 0); return vars.total; }`},
			{Tool: "set_result", Code: `async () => ({ total: vars.total })`},
		},
	}

	k, err := klendathu.New(klendathu.Options{
		Agent:     fake,
		CacheRoot: "/tmp/klendathu-example-implement",
		CacheMode: klendathu.CacheIgnore,
	})
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	sch := schema.Schema{"total": schema.Number()}
	ctxValues := map[string]any{"items": []any{1.0, 2.0, 3.0}}

	value, err := k.Implement(context.Background(), "sum the items", ctxValues, sch, nil)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	fmt.Println("total:", value.(map[string]any)["total"])
	// Output:
	// total: 6
}

func ExampleKlendathu_Investigate() {
	fake := &agenttest.FakeAdapter{
		Script: []agenttest.Step{
			{Tool: "set_result", Code: `async () => ({ text: "the items sum to " + context.items.reduce((a, b) => a + b, 0) })`},
		},
	}

	k, err := klendathu.New(klendathu.Options{
		Agent:     fake,
		CacheRoot: "/tmp/klendathu-example-investigate",
		CacheMode: klendathu.CacheIgnore,
	})
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	handle := k.Investigate(context.Background(), "describe the items", map[string]any{"items": []any{1.0, 2.0, 3.0}})
	text, err := handle.Text()
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	fmt.Println(text)
	// Output:
	// the items sum to 6
}
