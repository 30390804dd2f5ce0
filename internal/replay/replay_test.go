package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-tool-shop/nexus-router/internal/model"
)

func event(seq int64, typ model.EventType, payload map[string]any) model.Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return model.Event{
		EventID: "e" + string(rune('a'+seq)),
		RunID:   "r1",
		Seq:     seq,
		Type:    typ,
		TS:      "2025-01-01T00:00:00.000Z",
		Payload: payload,
	}
}

// goodLog is a complete single-step run with consistent dispatch metadata.
func goodLog() []model.Event {
	return []model.Event{
		event(0, model.EventRunStarted, map[string]any{"goal": "demo", "mode": "apply"}),
		event(1, model.EventDispatchSelected, map[string]any{"adapter_id": "fake"}),
		event(2, model.EventPlanCreated, map[string]any{"steps": []any{}}),
		event(3, model.EventStepStarted, map[string]any{"step_id": "s1"}),
		event(4, model.EventToolCallRequested, map[string]any{
			"step_id": "s1", "adapter_id": "fake",
			"adapter_capabilities": []any{"apply", "dry_run"},
		}),
		event(5, model.EventToolCallSucceeded, map[string]any{"step_id": "s1"}),
		event(6, model.EventStepCompleted, map[string]any{"step_id": "s1", "status": "ok"}),
		event(7, model.EventRunCompleted, nil),
	}
}

func TestCheckCleanLog(t *testing.T) {
	view := Check("r1", goodLog(), true)
	assert.True(t, view.OK)
	assert.Empty(t, view.Violations)
	assert.Equal(t, "demo", view.Goal)
	assert.Equal(t, "apply", view.Mode)
	assert.Equal(t, "RUN_COMPLETED", view.Terminal)
	require.Len(t, view.Steps, 1)
	assert.Equal(t, "s1", view.Steps[0].StepID)
	assert.Equal(t, "ok", view.Steps[0].Outcome)
	assert.Len(t, view.Steps[0].Events, 4)
}

func TestCheckEmptyLog(t *testing.T) {
	strict := Check("r1", nil, true)
	assert.False(t, strict.OK)

	lax := Check("r1", nil, false)
	assert.True(t, lax.OK)
	assert.NotEmpty(t, lax.Violations, "violations reported even without strict")
}

func TestCheckSequenceGap(t *testing.T) {
	events := goodLog()
	events[3].Seq = 9 // hole at 3

	view := Check("r1", events, true)
	assert.False(t, view.OK)
	assertViolation(t, view, "SEQ_GAP")
}

func TestCheckMissingRunStarted(t *testing.T) {
	events := goodLog()[1:]
	for i := range events {
		events[i].Seq = int64(i)
	}
	view := Check("r1", events, true)
	assert.False(t, view.OK)
	assertViolation(t, view, "RUN_STARTED_NOT_FIRST")
}

func TestCheckDuplicateRunStarted(t *testing.T) {
	events := goodLog()
	events[2] = event(2, model.EventRunStarted, nil)
	view := Check("r1", events, true)
	assert.False(t, view.OK)
	assertViolation(t, view, "RUN_STARTED_COUNT")
}

func TestCheckNoTerminal(t *testing.T) {
	events := goodLog()[:7]
	view := Check("r1", events, true)
	assert.False(t, view.OK)
	assertViolation(t, view, "NO_TERMINAL")
}

func TestCheckMultipleTerminals(t *testing.T) {
	events := append(goodLog(), event(8, model.EventRunFailed, nil))
	view := Check("r1", events, true)
	assert.False(t, view.OK)
	assertViolation(t, view, "MULTIPLE_TERMINALS")
}

func TestCheckTerminalNotLast(t *testing.T) {
	events := []model.Event{
		event(0, model.EventRunStarted, nil),
		event(1, model.EventRunCompleted, nil),
		event(2, model.EventPlanCreated, nil),
	}
	view := Check("r1", events, true)
	assert.False(t, view.OK)
	assertViolation(t, view, "TERMINAL_NOT_LAST")
}

func TestCheckToolCallOutsideStep(t *testing.T) {
	events := []model.Event{
		event(0, model.EventRunStarted, nil),
		event(1, model.EventToolCallRequested, map[string]any{
			"step_id": "s1", "adapter_id": "fake",
			"adapter_capabilities": []any{"apply"},
		}),
		event(2, model.EventStepStarted, map[string]any{"step_id": "s1"}),
		event(3, model.EventStepCompleted, map[string]any{"step_id": "s1", "status": "ok"}),
		event(4, model.EventRunCompleted, nil),
	}
	view := Check("r1", events, true)
	assert.False(t, view.OK)
	assertViolation(t, view, "TOOL_CALL_OUT_OF_STEP")
}

func TestCheckStepBoundaryCounts(t *testing.T) {
	events := []model.Event{
		event(0, model.EventRunStarted, nil),
		event(1, model.EventStepStarted, map[string]any{"step_id": "s1"}),
		event(2, model.EventStepStarted, map[string]any{"step_id": "s1"}),
		event(3, model.EventRunCompleted, nil),
	}
	view := Check("r1", events, true)
	assert.False(t, view.OK)
	assertViolation(t, view, "STEP_STARTED_COUNT")
	assertViolation(t, view, "STEP_COMPLETED_COUNT")
}

func TestCheckRequestedWithoutAdapterID(t *testing.T) {
	events := goodLog()
	events[4].Payload = map[string]any{"step_id": "s1"}
	view := Check("r1", events, true)
	assert.False(t, view.OK)
	assertViolation(t, view, "REQUEST_MISSING_ADAPTER")
	assertViolation(t, view, "REQUEST_MISSING_CAPABILITIES")
}

func TestCheckAdapterMismatch(t *testing.T) {
	events := goodLog()
	events[4].Payload["adapter_id"] = "other"
	view := Check("r1", events, true)
	assert.False(t, view.OK)
	assertViolation(t, view, "ADAPTER_MISMATCH")
}

func TestStrictFlagControlsOK(t *testing.T) {
	events := goodLog()
	events[4].Payload = map[string]any{"step_id": "s1"}

	strict := Check("r1", events, true)
	assert.False(t, strict.OK)

	lax := Check("r1", events, false)
	assert.True(t, lax.OK)
	assert.Equal(t, len(strict.Violations), len(lax.Violations))
}

func assertViolation(t *testing.T, view View, code string) {
	t.Helper()
	for _, v := range view.Violations {
		if v.Code == code {
			return
		}
	}
	t.Fatalf("expected violation %s, got %v", code, view.Violations)
}
