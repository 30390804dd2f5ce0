// Package router drives a declarative plan to a terminal outcome, emitting
// one event per state transition. The append is the commit: a transition
// that is not in the event log did not happen.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mcp-tool-shop/nexus-router/dispatch"
	"github.com/mcp-tool-shop/nexus-router/fault"
	"github.com/mcp-tool-shop/nexus-router/internal/canonical"
	"github.com/mcp-tool-shop/nexus-router/internal/model"
	"github.com/mcp-tool-shop/nexus-router/internal/policy"
	"github.com/mcp-tool-shop/nexus-router/internal/redact"
	"github.com/mcp-tool-shop/nexus-router/internal/store"
	"github.com/mcp-tool-shop/nexus-router/internal/telemetry"
)

// Router executes runs against one event store and one adapter registry.
// A Router is the sole writer to any run it opens. It holds no per-run
// state: each Run call is independent, but calls must not run concurrently
// for the same run_id.
type Router struct {
	store    *store.Store
	registry *dispatch.Registry
	logger   *slog.Logger
	redactor *redact.Redactor
	instr    *telemetry.Instruments
}

// New creates a router. registry must resolve a default adapter for
// requests without an explicit dispatch block. redactor and instr may be
// nil.
func New(s *store.Store, registry *dispatch.Registry, logger *slog.Logger, redactor *redact.Redactor, instr *telemetry.Instruments) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if redactor == nil {
		redactor = redact.NewDefault()
	}
	return &Router{
		store:    s,
		registry: registry,
		logger:   logger,
		redactor: redactor,
		instr:    instr,
	}
}

// Run drives one request to a terminal event.
//
// Operational terminal outcomes (unknown adapter, missing capability, policy
// denial, cancellation) are reported in Response.Error with a nil error
// return; operational step failures do not end the run and show up in the
// summary and per-step results. A non-nil error means a bug-class failure,
// recorded in the log where possible and re-surfaced to the caller, or a
// run that could not be opened (RUN_EXISTS for a duplicate run_id).
func (r *Router) Run(ctx context.Context, req model.Request) (model.Response, error) {
	started := time.Now()

	mode := req.Mode
	if mode == "" {
		mode = model.ModeDryRun
	}
	if !mode.Valid() {
		return model.Response{}, fault.NewBug(fault.CodeBug,
			"invalid mode %q slipped past request validation", req.Mode)
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	run, err := r.store.CreateRun(ctx, runID, req.Goal, mode, "")
	if err != nil {
		return model.Response{}, err
	}
	logger := r.logger.With("run_id", runID, "mode", string(mode))
	logger.Info("run started", "goal", req.Goal, "plan_steps", len(req.PlanOverride))

	if _, err := r.store.Append(ctx, runID, model.EventRunStarted, model.RunStartedPayload{
		Goal: req.Goal,
		Mode: mode,
		Request: map[string]any{
			"plan_steps": len(req.PlanOverride),
			"policy":     req.Policy,
			"dispatch":   req.Dispatch,
		},
	}); err != nil {
		return model.Response{}, err
	}

	st := &runState{
		router:  r,
		logger:  logger,
		run:     run,
		mode:    mode,
		started: started,
	}

	// Dispatch selection.
	adapter, selectionSource, err := r.selectAdapter(req)
	if err != nil {
		return st.failRun(ctx, err)
	}
	st.adapter = adapter
	st.capabilities = adapter.Capabilities()

	st.dispatch = &model.DispatchInfo{
		AdapterID:       adapter.AdapterID(),
		AdapterKind:     adapter.AdapterKind(),
		SelectionSource: selectionSource,
	}
	if _, err := r.store.Append(ctx, runID, model.EventDispatchSelected, model.DispatchSelectedPayload{
		AdapterID:       adapter.AdapterID(),
		AdapterKind:     adapter.AdapterKind(),
		Capabilities:    st.capabilities.Sorted(),
		SelectionSource: selectionSource,
	}); err != nil {
		return model.Response{}, err
	}

	// Capability enforcement: the union of requested capabilities and the
	// mode-implied ones, checked after the selection is on record.
	if err := r.enforceCapabilities(req, mode, adapter); err != nil {
		return st.failRun(ctx, err)
	}

	// Policy gate, before the plan exists in the log.
	plan := req.PlanOverride
	if err := policy.Check(mode, req.Policy, len(plan)); err != nil {
		return st.failRun(ctx, err)
	}

	// Duplicate step ids are a schema-level error; reaching this point with
	// one is a bug.
	if dup := duplicateStepID(plan); dup != "" {
		bug := fault.NewBug(fault.CodeBug, "duplicate step_id %q in plan", dup)
		if _, e := st.failRun(ctx, bug); e != nil {
			return model.Response{}, e
		}
		return model.Response{}, bug
	}

	if plan == nil {
		plan = []model.Step{}
	}
	st.planSteps = len(plan)
	if _, err := r.store.Append(ctx, runID, model.EventPlanCreated, model.PlanCreatedPayload{
		Steps: plan,
	}); err != nil {
		return model.Response{}, err
	}

	// Execute loop: strictly sequential, one step to completion before the
	// next starts. Cancellation is honored at step boundaries only: steps and
	// their event appends run on a context that ignores cancellation, so an
	// in-flight adapter call is not interrupted and its events are recorded.
	stepCtx := context.WithoutCancel(ctx)
	for _, step := range plan {
		if ctx.Err() != nil {
			cancelErr := fault.NewOperational(fault.CodeCancelled,
				"run cancelled before step %q", step.StepID).
				WithDetails(map[string]any{"step_id": step.StepID})
			return st.failRun(stepCtx, cancelErr)
		}
		resp, err := st.executeStep(stepCtx, step)
		if err != nil {
			return resp, err
		}
	}

	return st.completeRun(stepCtx)
}

// selectAdapter resolves the adapter per the request's dispatch block,
// falling back to the registry default.
func (r *Router) selectAdapter(req model.Request) (dispatch.Adapter, string, error) {
	if req.Dispatch != nil && req.Dispatch.AdapterID != "" {
		a, err := r.registry.Get(req.Dispatch.AdapterID)
		if err != nil {
			return nil, "", err
		}
		return a, "request", nil
	}
	a, err := r.registry.GetDefault()
	if err != nil {
		return nil, "", err
	}
	return a, "default", nil
}

// enforceCapabilities checks the union of requested capabilities and the
// mode-implied ones against the adapter's declared set.
func (r *Router) enforceCapabilities(req model.Request, mode model.Mode, adapter dispatch.Adapter) error {
	var required []dispatch.Capability
	if req.Dispatch != nil {
		for _, c := range req.Dispatch.RequireCapabilities {
			required = append(required, dispatch.Capability(c))
		}
	}
	if mode == model.ModeApply {
		required = append(required, dispatch.CapabilityApply)
	}
	caps := adapter.Capabilities()
	for _, c := range required {
		if !caps.Has(c) {
			return fault.NewOperational(fault.CodeCapabilityMissing,
				"adapter %q lacks required capability %q", adapter.AdapterID(), c).
				WithDetails(map[string]any{
					"adapter_id":           adapter.AdapterID(),
					"required_capability":  string(c),
					"adapter_capabilities": caps.Sorted(),
				})
		}
	}
	return nil
}

func duplicateStepID(plan []model.Step) string {
	seen := make(map[string]struct{}, len(plan))
	for _, s := range plan {
		if _, ok := seen[s.StepID]; ok {
			return s.StepID
		}
		seen[s.StepID] = struct{}{}
	}
	return ""
}

// runState carries the per-run bookkeeping of one Run call.
type runState struct {
	router       *Router
	logger       *slog.Logger
	run          model.Run
	mode         model.Mode
	started      time.Time
	adapter      dispatch.Adapter
	capabilities dispatch.CapabilitySet
	dispatch     *model.DispatchInfo
	planSteps    int
	results      []model.StepResult
	stepsOK      int
	stepsError   int
}

// executeStep runs one plan step to completion. A non-nil error return is
// bug-class and has already been recorded.
func (st *runState) executeStep(ctx context.Context, step model.Step) (model.Response, error) {
	r := st.router
	runID := st.run.RunID

	if _, err := r.store.Append(ctx, runID, model.EventStepStarted, model.StepStartedPayload{
		StepID: step.StepID,
		Intent: step.Intent,
		Call:   st.redactedCall(step.Call),
	}); err != nil {
		return model.Response{}, err
	}
	if _, err := r.store.Append(ctx, runID, model.EventToolCallRequested, model.ToolCallRequestedPayload{
		StepID:              step.StepID,
		Call:                st.redactedCall(step.Call),
		AdapterID:           st.adapter.AdapterID(),
		AdapterCapabilities: st.capabilities.Sorted(),
	}); err != nil {
		return model.Response{}, err
	}

	output, simulated, durationMs, callErr := st.dispatchCall(ctx, step.Call)
	if r.instr != nil {
		r.instr.ToolCallDuration.Record(ctx, float64(durationMs))
	}

	status := "ok"
	switch {
	case callErr == nil:
		if _, err := r.store.Append(ctx, runID, model.EventToolCallSucceeded, model.ToolCallSucceededPayload{
			StepID:     step.StepID,
			Output:     r.redactor.Map(output),
			Simulated:  simulated,
			DurationMs: durationMs,
		}); err != nil {
			return model.Response{}, err
		}
		st.stepsOK++

	case fault.IsOperational(callErr):
		// Operational failures are step-scoped: record and move on.
		status = "error"
		st.stepsError++
		if _, err := r.store.Append(ctx, runID, model.EventToolCallFailed, model.ToolCallFailedPayload{
			StepID:     step.StepID,
			ErrorKind:  "operational",
			ErrorCode:  fault.CodeOf(callErr),
			Message:    r.redactor.Text(callErr.Error()),
			Details:    r.redactor.Map(fault.DetailsOf(callErr)),
			DurationMs: durationMs,
		}); err != nil {
			return model.Response{}, err
		}
		st.logger.Warn("tool call failed",
			"step_id", step.StepID, "error_code", fault.CodeOf(callErr))

	default:
		// Bug or unclassified: record, terminate, re-surface.
		code := fault.CodeOf(callErr)
		if !fault.IsBug(callErr) {
			code = fault.CodeUnknown
		}
		if _, err := r.store.Append(ctx, runID, model.EventToolCallFailed, model.ToolCallFailedPayload{
			StepID:     step.StepID,
			ErrorKind:  "bug",
			ErrorCode:  code,
			Message:    r.redactor.Text(callErr.Error()),
			DurationMs: durationMs,
		}); err != nil {
			return model.Response{}, err
		}
		resp, failErr := st.failRunWith(ctx, code, callErr.Error(),
			map[string]any{"step_id": step.StepID}, step.StepID)
		if failErr != nil {
			return model.Response{}, failErr
		}
		return resp, fmt.Errorf("router: step %q: %w", step.StepID, callErr)
	}

	if _, err := r.store.Append(ctx, runID, model.EventStepCompleted, model.StepCompletedPayload{
		StepID: step.StepID,
		Status: status,
	}); err != nil {
		return model.Response{}, err
	}

	st.results = append(st.results, model.StepResult{
		StepID:    step.StepID,
		Status:    status,
		Simulated: simulated,
		Output:    output,
	})
	return model.Response{}, nil
}

// dispatchCall performs the adapter invocation, or synthesizes a
// deterministic placeholder in dry_run mode. Dry runs never touch the
// adapter, whatever its capabilities.
func (st *runState) dispatchCall(ctx context.Context, call model.Call) (map[string]any, bool, int64, error) {
	if st.mode == model.ModeDryRun {
		return map[string]any{
			"simulated":  true,
			"adapter_id": st.adapter.AdapterID(),
			"tool":       call.Tool,
			"method":     call.Method,
		}, true, 0, nil
	}

	start := time.Now()
	output, err := st.adapter.Call(ctx, call.Tool, call.Method, call.Args)
	durationMs := time.Since(start).Milliseconds()
	if err != nil {
		return nil, false, durationMs, err
	}
	return output, false, durationMs, nil
}

// failRun terminates the run for an operational error, recording
// RUN_FAILED and building the error response. Bug-class input is recorded
// the same way but the caller re-surfaces the error itself.
func (st *runState) failRun(ctx context.Context, cause error) (model.Response, error) {
	return st.failRunWith(ctx, fault.CodeOf(cause), cause.Error(), fault.DetailsOf(cause), "")
}

func (st *runState) failRunWith(ctx context.Context, code, message string, details map[string]any, stepID string) (model.Response, error) {
	r := st.router
	runID := st.run.RunID

	if _, err := r.store.Append(ctx, runID, model.EventRunFailed, model.RunFailedPayload{
		ErrorCode: code,
		Message:   r.redactor.Text(message),
		Details:   r.redactor.Map(details),
		StepID:    stepID,
	}); err != nil {
		return model.Response{}, err
	}
	if err := r.store.SetStatus(ctx, runID, model.RunStatusFailed); err != nil {
		return model.Response{}, err
	}
	if r.instr != nil {
		r.instr.RunsFailed.Add(ctx, 1)
	}
	st.logger.Warn("run failed", "error_code", code)

	st.run.Status = model.RunStatusFailed
	resp := st.buildResponse()
	resp.Error = &model.ErrorInfo{
		ErrorCode: code,
		Message:   r.redactor.Text(message),
		Details:   r.redactor.Map(details),
	}
	return resp, nil
}

// completeRun records the terminal RUN_COMPLETED with the summary.
func (st *runState) completeRun(ctx context.Context) (model.Response, error) {
	r := st.router
	runID := st.run.RunID

	summary := st.summary()
	if _, err := r.store.Append(ctx, runID, model.EventRunCompleted, model.RunCompletedPayload{
		Summary: summary,
	}); err != nil {
		return model.Response{}, err
	}
	if err := r.store.SetStatus(ctx, runID, model.RunStatusCompleted); err != nil {
		return model.Response{}, err
	}
	if r.instr != nil {
		r.instr.RunsCompleted.Add(ctx, 1)
	}
	st.logger.Info("run completed",
		"steps_ok", st.stepsOK, "steps_error", st.stepsError)

	st.run.Status = model.RunStatusCompleted
	resp := st.buildResponse()

	events, err := r.store.Events(ctx, runID)
	if err != nil {
		return model.Response{}, err
	}
	prov, err := canonical.Provenance(st.run, events)
	if err != nil {
		return model.Response{}, err
	}
	resp.Provenance = &prov
	return resp, nil
}

func (st *runState) summary() model.Summary {
	adapterID := ""
	if st.adapter != nil {
		adapterID = st.adapter.AdapterID()
	}
	// StepsTotal is the planned step count, fixed at PLAN_CREATED. It stays
	// ahead of StepsOK+StepsError when a bug or cancellation cuts the run
	// short, which is exactly the signal the field carries.
	return model.Summary{
		AdapterID:  adapterID,
		StepsTotal: st.planSteps,
		StepsOK:    st.stepsOK,
		StepsError: st.stepsError,
		DurationMs: time.Since(st.started).Milliseconds(),
	}
}

func (st *runState) buildResponse() model.Response {
	return model.Response{
		Run:      st.run,
		Dispatch: st.dispatch,
		Summary:  st.summary(),
		Results:  st.results,
	}
}

func (st *runState) redactedCall(call model.Call) model.Call {
	call.Args = st.router.redactor.Map(call.Args)
	return call
}
