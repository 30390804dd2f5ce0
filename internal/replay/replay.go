// Package replay reconstructs a run view from its event log and validates
// the ordering laws the router guarantees.
package replay

import (
	"context"
	"fmt"
	"sort"

	"github.com/mcp-tool-shop/nexus-router/internal/model"
	"github.com/mcp-tool-shop/nexus-router/internal/store"
)

// Violation is one failed invariant.
type Violation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Seq     int64  `json:"seq"`
}

// StepView is the reconstructed timeline of one step.
type StepView struct {
	StepID  string        `json:"step_id"`
	Events  []model.Event `json:"events"`
	Outcome string        `json:"outcome"` // "ok", "error", or "incomplete"
}

// View is the reconstructed run: header, ordered step timeline, and the
// invariant check outcome. When strict is unset, violations are reported
// but OK stays true.
type View struct {
	RunID      string      `json:"run_id"`
	Goal       string      `json:"goal,omitempty"`
	Mode       string      `json:"mode,omitempty"`
	Terminal   string      `json:"terminal,omitempty"`
	Steps      []StepView  `json:"steps"`
	Events     int         `json:"events"`
	OK         bool        `json:"ok"`
	Strict     bool        `json:"strict"`
	Violations []Violation `json:"violations"`
}

// FromStore loads a run's events and checks them.
func FromStore(ctx context.Context, s *store.Store, runID string, strict bool) (View, error) {
	events, err := s.Events(ctx, runID)
	if err != nil {
		return View{}, err
	}
	view := Check(runID, events, strict)
	return view, nil
}

// Check validates the invariants over an ordered event slice and builds the
// run view. The slice is what the store yields: ascending seq.
func Check(runID string, events []model.Event, strict bool) View {
	view := View{
		RunID:      runID,
		Strict:     strict,
		Events:     len(events),
		Violations: []Violation{},
		Steps:      []StepView{},
	}
	addViolation := func(seq int64, code, format string, args ...any) {
		view.Violations = append(view.Violations, Violation{
			Code:    code,
			Message: fmt.Sprintf(format, args...),
			Seq:     seq,
		})
	}

	if len(events) == 0 {
		addViolation(0, "EMPTY_LOG", "run has no events")
		view.OK = !strict
		return view
	}

	// Sequence: starts at 0, contiguous, strictly increasing.
	for i, e := range events {
		if e.Seq != int64(i) {
			addViolation(e.Seq, "SEQ_GAP",
				"expected seq %d at position %d, found %d", i, i, e.Seq)
			break
		}
	}

	// RUN_STARTED exists exactly once, at seq 0.
	startedCount := 0
	for _, e := range events {
		if e.Type == model.EventRunStarted {
			startedCount++
		}
	}
	if events[0].Type != model.EventRunStarted {
		addViolation(events[0].Seq, "RUN_STARTED_NOT_FIRST",
			"first event is %s, want RUN_STARTED", events[0].Type)
	}
	if startedCount != 1 {
		addViolation(0, "RUN_STARTED_COUNT",
			"found %d RUN_STARTED events, want exactly 1", startedCount)
	} else {
		if goal, ok := events[0].Payload["goal"].(string); ok {
			view.Goal = goal
		}
		if mode, ok := events[0].Payload["mode"].(string); ok {
			view.Mode = mode
		}
	}

	// PLAN_CREATED appears after RUN_STARTED.
	for _, e := range events {
		if e.Type == model.EventPlanCreated && e.Seq == 0 {
			addViolation(e.Seq, "PLAN_BEFORE_START", "PLAN_CREATED at seq 0")
		}
	}

	// Exactly one terminal event, at the highest seq.
	var terminals []model.Event
	for _, e := range events {
		if e.Type.Terminal() {
			terminals = append(terminals, e)
		}
	}
	last := events[len(events)-1]
	switch {
	case len(terminals) == 0:
		addViolation(last.Seq, "NO_TERMINAL", "run has no terminal event")
	case len(terminals) > 1:
		addViolation(terminals[1].Seq, "MULTIPLE_TERMINALS",
			"found %d terminal events, want exactly 1", len(terminals))
	case !last.Type.Terminal():
		addViolation(terminals[0].Seq, "TERMINAL_NOT_LAST",
			"terminal %s at seq %d is not the highest seq", terminals[0].Type, terminals[0].Seq)
	default:
		view.Terminal = string(last.Type)
	}

	// Dispatch selection consistency and capability snapshots.
	dispatchAdapter := ""
	for _, e := range events {
		switch e.Type {
		case model.EventDispatchSelected:
			if id, ok := e.Payload["adapter_id"].(string); ok {
				dispatchAdapter = id
			}
		case model.EventToolCallRequested:
			id, hasID := e.Payload["adapter_id"].(string)
			if !hasID || id == "" {
				addViolation(e.Seq, "REQUEST_MISSING_ADAPTER",
					"TOOL_CALL_REQUESTED without adapter_id")
			}
			if _, hasCaps := e.Payload["adapter_capabilities"]; !hasCaps {
				addViolation(e.Seq, "REQUEST_MISSING_CAPABILITIES",
					"TOOL_CALL_REQUESTED without adapter_capabilities snapshot")
			}
			if dispatchAdapter != "" && hasID && id != dispatchAdapter {
				addViolation(e.Seq, "ADAPTER_MISMATCH",
					"TOOL_CALL_REQUESTED adapter %q differs from DISPATCH_SELECTED %q",
					id, dispatchAdapter)
			}
		}
	}

	// Per-step ordering: STEP_STARTED < TOOL_CALL_* < STEP_COMPLETED, each
	// boundary exactly once.
	type stepTrack struct {
		started   []int64
		completed []int64
		toolCalls []int64
		events    []model.Event
		outcome   string
	}
	steps := map[string]*stepTrack{}
	var stepOrder []string
	track := func(stepID string) *stepTrack {
		t, ok := steps[stepID]
		if !ok {
			t = &stepTrack{}
			steps[stepID] = t
			stepOrder = append(stepOrder, stepID)
		}
		return t
	}
	for _, e := range events {
		stepID, _ := e.Payload["step_id"].(string)
		if stepID == "" {
			continue
		}
		t := track(stepID)
		t.events = append(t.events, e)
		switch e.Type {
		case model.EventStepStarted:
			t.started = append(t.started, e.Seq)
		case model.EventStepCompleted:
			t.completed = append(t.completed, e.Seq)
			if status, ok := e.Payload["status"].(string); ok {
				t.outcome = status
			}
		case model.EventToolCallRequested, model.EventToolCallSucceeded, model.EventToolCallFailed:
			t.toolCalls = append(t.toolCalls, e.Seq)
		}
	}

	for _, stepID := range stepOrder {
		t := steps[stepID]
		if len(t.started) != 1 {
			addViolation(firstSeq(t.events), "STEP_STARTED_COUNT",
				"step %q has %d STEP_STARTED events, want 1", stepID, len(t.started))
		}
		if len(t.completed) != 1 {
			addViolation(firstSeq(t.events), "STEP_COMPLETED_COUNT",
				"step %q has %d STEP_COMPLETED events, want 1", stepID, len(t.completed))
		}
		if len(t.started) == 1 && len(t.completed) == 1 {
			for _, seq := range t.toolCalls {
				if seq <= t.started[0] || seq >= t.completed[0] {
					addViolation(seq, "TOOL_CALL_OUT_OF_STEP",
						"tool call at seq %d for step %q outside [%d, %d]",
						seq, stepID, t.started[0], t.completed[0])
				}
			}
		}
		outcome := t.outcome
		if outcome == "" {
			outcome = "incomplete"
		}
		view.Steps = append(view.Steps, StepView{
			StepID:  stepID,
			Events:  t.events,
			Outcome: outcome,
		})
	}

	sort.SliceStable(view.Violations, func(i, j int) bool {
		return view.Violations[i].Seq < view.Violations[j].Seq
	})
	view.OK = !strict || len(view.Violations) == 0
	return view
}

func firstSeq(events []model.Event) int64 {
	if len(events) == 0 {
		return 0
	}
	return events[0].Seq
}
