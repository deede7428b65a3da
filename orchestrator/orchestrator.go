package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"sync"

	"github.com/klendathu-run/klendathu/agent"
	"github.com/klendathu-run/klendathu/cachestore"
	"github.com/klendathu-run/klendathu/eval"
	"github.com/klendathu-run/klendathu/replay"
	"github.com/klendathu-run/klendathu/schema"
	"github.com/klendathu-run/klendathu/transcript"
)

// Orchestrator drives requests through the lifecycle state machine
// against one Config's agent adapter and cache store.
type Orchestrator struct {
	cfg   Config
	store *cachestore.Store
}

// New builds an Orchestrator from opts. Returns ErrConfiguration if a
// required field is missing.
func New(opts ...Option) (*Orchestrator, error) {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &Orchestrator{
		cfg:   cfg,
		store: cachestore.New(cfg.CacheRoot, cfg.CacheMode),
	}, nil
}

// Request is one call's parameters: an instruction for the agent, the
// live context it may read, and the schema its final result must
// satisfy. Validator, if non-nil, runs after schema validation.
type Request struct {
	Instruction string
	Context     map[string]any
	Schema      schema.Schema
	Validator   func(any) error
}

// Implement runs Request through the full lifecycle and returns the
// validated result, or an error from the taxonomy in RequestError.
func (o *Orchestrator) Implement(ctx context.Context, req Request) (any, error) {
	value, _, err := o.run(ctx, req, nil)
	return value, err
}

// InvestigateHandle exposes the diagnostic surface Implement does not
// need: a live status stream and, once the run ends, a usage summary.
type InvestigateHandle struct {
	status chan agent.StatusMessage

	mu      sync.Mutex
	summary agent.RunSummary
	done    bool
	err     error
	value   any

	wait chan struct{}
}

// StatusStream returns a channel of diagnostic status messages. It is
// closed when the run ends.
func (h *InvestigateHandle) StatusStream() <-chan agent.StatusMessage { return h.status }

// Summary blocks until the run ends and returns its usage summary.
func (h *InvestigateHandle) Summary() (agent.RunSummary, error) {
	<-h.wait
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.summary, h.err
}

// Text blocks until the run ends and returns the investigate result as
// text, or the failure that ended it.
func (h *InvestigateHandle) Text() (string, error) {
	<-h.wait
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return "", h.err
	}
	obj, _ := h.value.(map[string]any)
	text, _ := obj["text"].(string)
	return text, nil
}

var investigateSchema = schema.Schema{"text": schema.String()}

// Investigate runs an open-ended request whose result is free-form
// text, returning a handle that exposes the live status stream and
// usage summary alongside the completion future. ctxValues is bound
// into the sandbox and described in the transcript the same way
// Implement's Request.Context is. The prompt handed to the agent adapter
// is the instruction text alone; no context descriptors or schema are
// rendered into it.
func (o *Orchestrator) Investigate(ctx context.Context, instruction string, ctxValues map[string]any) *InvestigateHandle {
	handle := &InvestigateHandle{
		status: make(chan agent.StatusMessage, 64),
		wait:   make(chan struct{}),
	}
	req := Request{Instruction: instruction, Context: ctxValues, Schema: investigateSchema}

	go func() {
		value, summary, err := o.run(ctx, req, handle.status)
		close(handle.status)
		handle.mu.Lock()
		handle.value, handle.summary, handle.err, handle.done = value, summary, err, true
		handle.mu.Unlock()
		close(handle.wait)
	}()

	return handle
}

// run is the shared lifecycle engine behind Implement and Investigate.
// status may be nil; if non-nil it receives StatusMessage values
// forwarded from the agent adapter.
func (o *Orchestrator) run(ctx context.Context, req Request, status chan<- agent.StatusMessage) (any, agent.RunSummary, error) {
	state := StateNew
	logger := o.cfg.Logger

	// READY: build context descriptors, reduce schema, form the cache key.
	state = StateReady
	jsonSchema := req.Schema.ToJSONSchema()
	key, err := cachestore.Key(req.Instruction, jsonSchema)
	if err != nil {
		return nil, agent.RunSummary{}, &RequestError{State: state, Err: err}
	}

	t := transcript.New(transcript.Task{
		Prompt:  req.Instruction,
		Schema:  jsonSchema,
		Context: toContextEntries(agent.DescribeContext(req.Context)),
	})

	// The sandbox binds the unwrapped values; agent.Item is a
	// prompt-description wrapper only and must be transparent to code
	// evaluated against context.<name>.
	ctxValues := agent.UnwrapContext(req.Context)

	entry, lookupErr := o.store.Lookup(key)
	if lookupErr == nil && entry != nil {
		state = StateReplay
		value, rerr := replay.Run(ctx, entry, ctxValues, req.Schema, req.Validator, logger)
		if rerr == nil {
			state = StateReturn
			t.SetSuccess(true)
			o.saveTranscript(t, key)
			return value, agent.RunSummary{}, nil
		}
		logger.Logf("replay mismatch for %s, falling back to a live run: %v", key, rerr)
	} else if o.cfg.CacheMode == cachestore.ForceUse {
		state = StateFail
		t.SetSuccess(false)
		o.saveTranscript(t, key)
		return nil, agent.RunSummary{}, &RequestError{State: state, Err: ErrCacheRequiredButMissing}
	}

	// LIVE
	state = StateLive
	ev := eval.New(ctxValues, map[string]any{}, req.Schema, req.Validator, logger)

	var stopOnce sync.Once
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := func() { stopOnce.Do(cancel) }

	surface := eval.NewSurface(ev, func(tool, code string, outcome eval.Outcome) {
		t.RecordToolCall(tool, code, outcome)
		t.SetSuccess(false)
		o.saveTranscript(t, key)
	}, stop)

	summaryCh := make(chan agent.RunSummary, 1)
	runErrCh := make(chan error, 1)
	go func() {
		summary, rerr := o.cfg.Agent.Run(runCtx, req.Instruction, surface.Tools(), status)
		// Failsafe: an agent that returns without a successful set_result
		// or a bail rejects the completion here. Reject is a no-op once the
		// completion has settled; a cancelled request is left to ctx.
		if ctx.Err() == nil {
			ev.Completion().Reject(eval.ErrAgentExitWithoutCompletion)
		}
		summaryCh <- summary
		runErrCh <- rerr
	}()

	// COMPLETING: await either the completion promise or cancellation.
	state = StateCompleting
	value, compErr := ev.AwaitCompletion(ctx)
	stop()
	summary := <-summaryCh
	agentErr := <-runErrCh

	if compErr == nil {
		state = StateReturn
		t.SetSuccess(true)
		o.saveTranscript(t, key)
		o.saveCacheEntry(key, t, value)
		return value, summary, nil
	}

	state = StateFail
	t.SetSuccess(false)
	o.saveTranscript(t, key)

	if errors.Is(compErr, context.Canceled) || errors.Is(compErr, context.DeadlineExceeded) {
		return nil, summary, &RequestError{State: state, Err: ErrCancellation}
	}
	if _, ok := compErr.(*eval.BailError); ok {
		return nil, summary, &RequestError{State: state, Err: compErr}
	}
	if agentErr != nil {
		logger.Logf("agent adapter returned an error before completion settled: %v", agentErr)
	}
	return nil, summary, &RequestError{State: state, Err: ErrAgentExitWithoutCompletion}
}

func (o *Orchestrator) saveTranscript(t *transcript.Transcript, key string) {
	path := filepath.Join(o.store.Root, key+".transcript.json")
	t.Save(path, o.cfg.Logger)
}

// saveCacheEntry persists the calls that produced value, filtered to
// Ok calls only (spec §4.5 step 1): a schema violation or eval error
// the agent retried past is never replayed, since replaying it would
// just reproduce the same failure and diverge from what actually
// happened on the live run.
func (o *Orchestrator) saveCacheEntry(key string, t *transcript.Transcript, value any) {
	calls := make([]cachestore.EntryToolCall, 0)
	for _, c := range t.CallsSnapshot() {
		if !c.Result.OK {
			continue
		}
		calls = append(calls, cachestore.EntryToolCall{Tool: c.Tool, Code: c.Code, OK: true})
	}
	entry := cachestore.Entry{Success: true, Result: eval.Serialize(value), Calls: calls}
	if err := o.store.Save(key, entry); err != nil {
		o.cfg.Logger.Logf("cache save failed for %s: %v", key, err)
	}
}

func toContextEntries(descs []agent.ContextDescriptor) []transcript.ContextEntry {
	out := make([]transcript.ContextEntry, len(descs))
	for i, d := range descs {
		out[i] = transcript.ContextEntry{Name: d.Name, Type: d.Type, Description: d.Description}
	}
	return out
}
