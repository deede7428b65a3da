package orchestrator

import (
	"context"
	"testing"

	"github.com/klendathu-run/klendathu/agent"
	"github.com/klendathu-run/klendathu/agent/agenttest"
	"github.com/klendathu-run/klendathu/cachestore"
	"github.com/klendathu-run/klendathu/schema"
)

func TestOrchestrator_ImplementLiveRunResolvesAndWritesCache(t *testing.T) {
	dir := t.TempDir()
	fake := &agenttest.FakeAdapter{
		Script: []agenttest.Step{
			{Tool: "eval", Code: `async () => { vars.n = context.x * 2; return vars.n; }`},
			{Tool: "set_result", Code: `async () => ({ doubled: vars.n })`},
		},
	}
	orc, err := New(WithAgent(fake), WithCacheRoot(dir))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := Request{
		Instruction: "double x",
		Context:     map[string]any{"x": 21.0},
		Schema:      schema.Schema{"doubled": schema.Number()},
	}
	value, err := orc.Implement(context.Background(), req)
	if err != nil {
		t.Fatalf("Implement: %v", err)
	}
	if value.(map[string]any)["doubled"] != 42.0 {
		t.Fatalf("unexpected result: %v", value)
	}

	key, _ := cachestore.Key(req.Instruction, req.Schema.ToJSONSchema())
	store := cachestore.New(dir, cachestore.Normal)
	entry, lerr := store.Lookup(key)
	if lerr != nil {
		t.Fatalf("lookup: %v", lerr)
	}
	if entry == nil {
		t.Fatal("expected a cache entry to have been written")
	}
	if len(entry.Calls) != 2 {
		t.Fatalf("expected 2 recorded calls, got %d", len(entry.Calls))
	}
}

func TestOrchestrator_SecondRequestReplaysFromCache(t *testing.T) {
	dir := t.TempDir()
	script := []agenttest.Step{
		{Tool: "eval", Code: `async () => { vars.n = context.x * 2; return vars.n; }`},
		{Tool: "set_result", Code: `async () => ({ doubled: vars.n })`},
	}
	req := Request{
		Instruction: "double x",
		Context:     map[string]any{"x": 10.0},
		Schema:      schema.Schema{"doubled": schema.Number()},
	}

	first, err := New(WithAgent(&agenttest.FakeAdapter{Script: script}), WithCacheRoot(dir))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := first.Implement(context.Background(), req); err != nil {
		t.Fatalf("first Implement: %v", err)
	}

	explosive := &agenttest.FakeAdapter{Script: []agenttest.Step{
		{Tool: "bail", Code: "should never run"},
	}}
	second, err := New(WithAgent(explosive), WithCacheRoot(dir))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	value, err := second.Implement(context.Background(), req)
	if err != nil {
		t.Fatalf("second Implement should replay from cache: %v", err)
	}
	if value.(map[string]any)["doubled"] != 20.0 {
		t.Fatalf("unexpected replayed result: %v", value)
	}
	if len(explosive.Calls) != 0 {
		t.Fatal("expected the live agent to never run on a cache hit")
	}
}

func TestOrchestrator_BailRejectsWithFailure(t *testing.T) {
	fake := &agenttest.FakeAdapter{Script: []agenttest.Step{
		{Tool: "bail", Code: "cannot satisfy constraint"},
	}}
	orc, err := New(WithAgent(fake), WithCacheRoot(t.TempDir()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	req := Request{Instruction: "impossible task", Schema: schema.Schema{"n": schema.Number()}}
	_, err = orc.Implement(context.Background(), req)
	if err == nil {
		t.Fatal("expected an error from a bailed request")
	}
}

func TestOrchestrator_ForceUseModeFailsOnMiss(t *testing.T) {
	fake := &agenttest.FakeAdapter{}
	orc, err := New(WithAgent(fake), WithCacheRoot(t.TempDir()), WithCacheMode(cachestore.ForceUse))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	req := Request{Instruction: "anything", Schema: schema.Schema{"n": schema.Number()}}
	_, err = orc.Implement(context.Background(), req)
	if err == nil {
		t.Fatal("expected ErrCacheRequiredButMissing")
	}
}

func TestOrchestrator_ItemWrappedContextIsUnwrappedForSandboxCode(t *testing.T) {
	fake := &agenttest.FakeAdapter{
		Script: []agenttest.Step{
			{Tool: "eval", Code: `async () => { return context.page; }`},
			{Tool: "set_result", Code: `async () => ({ page: context.page })`},
		},
	}
	orc, err := New(WithAgent(fake), WithCacheRoot(t.TempDir()), WithCacheMode(cachestore.Ignore))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	req := Request{
		Instruction: "read the page handle",
		Context: map[string]any{
			"page": agent.Item{Value: "handle-42", Description: "the active browser tab"},
		},
		Schema: schema.Schema{"page": schema.String()},
	}
	value, err := orc.Implement(context.Background(), req)
	if err != nil {
		t.Fatalf("Implement: %v", err)
	}
	if value.(map[string]any)["page"] != "handle-42" {
		t.Fatalf("expected sandbox code to see the unwrapped Item value, got %v", value)
	}
}

func TestOrchestrator_RetriedSetResultIsFilteredFromCacheThenReplays(t *testing.T) {
	dir := t.TempDir()
	req := Request{
		Instruction: "pick a non-negative number",
		Schema:      schema.Schema{"n": schema.Number().Min(0)},
	}

	// Scenario 3 (schema violation then retry): the agent first submits
	// an invalid result, then retries with a valid one. Only the
	// retry's successful set_result should ever reach the cache.
	first := &agenttest.FakeAdapter{Script: []agenttest.Step{
		{Tool: "set_result", Code: `async () => ({ n: -1 })`},
		{Tool: "set_result", Code: `async () => ({ n: 5 })`},
	}}
	orc, err := New(WithAgent(first), WithCacheRoot(dir))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	value, err := orc.Implement(context.Background(), req)
	if err != nil {
		t.Fatalf("Implement: %v", err)
	}
	if value.(map[string]any)["n"] != 5.0 {
		t.Fatalf("unexpected result: %v", value)
	}

	key, _ := cachestore.Key(req.Instruction, req.Schema.ToJSONSchema())
	store := cachestore.New(dir, cachestore.Normal)
	entry, lerr := store.Lookup(key)
	if lerr != nil {
		t.Fatalf("lookup: %v", lerr)
	}
	if entry == nil {
		t.Fatal("expected a cache entry to have been written")
	}
	if len(entry.Calls) != 1 {
		t.Fatalf("expected only the successful retry to be cached, got %d calls: %#v", len(entry.Calls), entry.Calls)
	}
	if entry.Calls[0].Tool != "set_result" || !entry.Calls[0].OK {
		t.Fatalf("expected a single Ok set_result call, got %#v", entry.Calls[0])
	}

	// Scenario 5 (replay): a second request with the same instruction
	// and schema must replay from the filtered entry rather than ever
	// invoking the agent — an agent scripted only to bail proves it.
	explosive := &agenttest.FakeAdapter{Script: []agenttest.Step{
		{Tool: "bail", Code: "should never run"},
	}}
	second, err := New(WithAgent(explosive), WithCacheRoot(dir))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	value, err = second.Implement(context.Background(), req)
	if err != nil {
		t.Fatalf("second Implement should replay from cache: %v", err)
	}
	if value.(map[string]any)["n"] != 5.0 {
		t.Fatalf("unexpected replayed result: %v", value)
	}
	if len(explosive.Calls) != 0 {
		t.Fatal("expected the live agent to never run on a cache hit")
	}
}

func TestOrchestrator_CacheModeEnvVarAppliesWhenOptionNotSet(t *testing.T) {
	t.Setenv("KLENDATHU_CACHE_MODE", "force-use")

	fake := &agenttest.FakeAdapter{}
	orc, err := New(WithAgent(fake), WithCacheRoot(t.TempDir()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	req := Request{Instruction: "anything", Schema: schema.Schema{"n": schema.Number()}}
	_, err = orc.Implement(context.Background(), req)
	if err == nil {
		t.Fatal("expected KLENDATHU_CACHE_MODE=force-use to fail a cache miss without running the agent")
	}
	if len(fake.Calls) != 0 {
		t.Fatal("expected the live agent to never run under force-use on a cache miss")
	}
}

func TestOrchestrator_WithCacheModeOverridesEnvVar(t *testing.T) {
	t.Setenv("KLENDATHU_CACHE_MODE", "force-use")

	fake := &agenttest.FakeAdapter{Script: []agenttest.Step{
		{Tool: "set_result", Code: `async () => ({ n: 1 })`},
	}}
	orc, err := New(WithAgent(fake), WithCacheRoot(t.TempDir()), WithCacheMode(cachestore.Normal))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	req := Request{Instruction: "anything", Schema: schema.Schema{"n": schema.Number()}}
	if _, err := orc.Implement(context.Background(), req); err != nil {
		t.Fatalf("expected an explicit WithCacheMode(Normal) to override KLENDATHU_CACHE_MODE=force-use: %v", err)
	}
}

func TestOrchestrator_MissingAgentFailsValidation(t *testing.T) {
	_, err := New(WithCacheRoot(t.TempDir()))
	if err == nil {
		t.Fatal("expected ErrConfiguration for a missing Agent")
	}
}

func TestOrchestrator_InvestigateReturnsTextAndSummary(t *testing.T) {
	fake := &agenttest.FakeAdapter{
		Script: []agenttest.Step{
			{Tool: "set_result", Code: `async () => ({ text: "done" })`},
		},
		Summary: agent.RunSummary{Turns: 1, FinishReason: "completed"},
	}
	orc, err := New(WithAgent(fake), WithCacheRoot(t.TempDir()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	handle := orc.Investigate(context.Background(), "what is happening?", nil)
	text, err := handle.Text()
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if text != "done" {
		t.Fatalf("got %q", text)
	}
}
