// Package klendathu is the unified facade for AI-driven runtime code
// execution with deterministic replay caching.
//
// It combines the Evaluator, the Tool Surface, the cache store, the
// replay engine, and an Agent Adapter into the two entry points a
// caller needs: Implement for a schema-validated result, and
// Investigate for an open-ended, streamable run.
package klendathu

import (
	"context"

	"github.com/klendathu-run/klendathu/agent"
	"github.com/klendathu-run/klendathu/cachestore"
	"github.com/klendathu-run/klendathu/orchestrator"
	"github.com/klendathu-run/klendathu/schema"
)

// Logger is the minimal logging seam every component in this module
// accepts. A nil Logger is valid and logs nothing.
type Logger = orchestrator.Logger

// CacheMode controls whether a request consults and writes the cache,
// ignores it, or requires a hit.
type CacheMode = cachestore.Mode

const (
	CacheNormal   = cachestore.Normal
	CacheIgnore   = cachestore.Ignore
	CacheForceUse = cachestore.ForceUse
)

// Klendathu is the unified facade over one configured Orchestrator.
type Klendathu struct {
	orch *orchestrator.Orchestrator
}

// Options configures a Klendathu instance.
type Options struct {
	// Agent drives the sandboxed Tool Surface on behalf of the caller.
	// Required.
	Agent agent.Adapter

	// CacheRoot is the directory cache entries are read from and
	// written to. Defaults to KLENDATHU_CACHE if set, else to
	// .klendathu/cache under the nearest ancestor of the current working
	// directory that holds a .klendathu or .git entry (or under the
	// working directory itself when none does).
	CacheRoot string

	// CacheMode controls lookup/write behavior. The zero value
	// (CacheNormal) leaves the mode to KLENDATHU_CACHE_MODE, which means
	// CacheNormal when unset; an explicit CacheNormal therefore does not
	// override that variable.
	CacheMode CacheMode

	// Logger receives diagnostic log lines. Defaults to a best-effort
	// logger gated on KLENDATHU_TRACE.
	Logger Logger
}

// New builds a Klendathu instance from opts.
func New(opts Options) (*Klendathu, error) {
	var orchOpts []orchestrator.Option
	orchOpts = append(orchOpts, orchestrator.WithAgent(opts.Agent))
	if opts.CacheRoot != "" {
		orchOpts = append(orchOpts, orchestrator.WithCacheRoot(opts.CacheRoot))
	}
	if opts.CacheMode != 0 {
		orchOpts = append(orchOpts, orchestrator.WithCacheMode(opts.CacheMode))
	}
	if opts.Logger != nil {
		orchOpts = append(orchOpts, orchestrator.WithLogger(opts.Logger))
	}

	orch, err := orchestrator.New(orchOpts...)
	if err != nil {
		return nil, err
	}
	return &Klendathu{orch: orch}, nil
}

// Implement asks the agent to produce a value matching sch for
// instruction, given ctxValues as the live context bound inside the
// sandbox. A successful prior run with the same (instruction, schema)
// replays from cache instead of driving the agent again, unless
// CacheMode says otherwise. validator, if non-nil, runs after schema
// validation and may reject an otherwise-valid value.
func (k *Klendathu) Implement(ctx context.Context, instruction string, ctxValues map[string]any, sch schema.Schema, validator func(any) error) (any, error) {
	return k.orch.Implement(ctx, orchestrator.Request{
		Instruction: instruction,
		Context:     ctxValues,
		Schema:      sch,
		Validator:   validator,
	})
}

// InvestigateHandle exposes the diagnostic surface of an in-flight or
// completed Investigate call: a live status stream and, once the run
// ends, a usage summary and the final text.
type InvestigateHandle = orchestrator.InvestigateHandle

// Investigate runs an open-ended request whose result is free-form
// text, returning a handle with a live status stream and a usage
// summary rather than a single synchronous value. Use this for
// exploratory requests that do not fit a fixed schema.
func (k *Klendathu) Investigate(ctx context.Context, instruction string, ctxValues map[string]any) *InvestigateHandle {
	return k.orch.Investigate(ctx, instruction, ctxValues)
}
