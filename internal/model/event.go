package model

// EventType is the category of a run event. The set is closed: the router
// never emits, and replay never accepts, a type outside it.
type EventType string

const (
	EventRunStarted        EventType = "RUN_STARTED"
	EventDispatchSelected  EventType = "DISPATCH_SELECTED"
	EventPlanCreated       EventType = "PLAN_CREATED"
	EventStepStarted       EventType = "STEP_STARTED"
	EventToolCallRequested EventType = "TOOL_CALL_REQUESTED"
	EventToolCallSucceeded EventType = "TOOL_CALL_SUCCEEDED"
	EventToolCallFailed    EventType = "TOOL_CALL_FAILED"
	EventStepCompleted     EventType = "STEP_COMPLETED"
	EventRunCompleted      EventType = "RUN_COMPLETED"
	EventRunFailed         EventType = "RUN_FAILED"
)

// KnownEventType reports whether t belongs to the closed event-type set.
func KnownEventType(t EventType) bool {
	switch t {
	case EventRunStarted, EventDispatchSelected, EventPlanCreated,
		EventStepStarted, EventToolCallRequested, EventToolCallSucceeded,
		EventToolCallFailed, EventStepCompleted, EventRunCompleted,
		EventRunFailed:
		return true
	}
	return false
}

// Terminal reports whether t ends a run.
func (t EventType) Terminal() bool {
	return t == EventRunCompleted || t == EventRunFailed
}

// Event is an append-only record of a run state transition.
// Source of truth. Never mutated; deleted only when an overwrite import
// replaces the whole run.
type Event struct {
	EventID string         `json:"event_id"`
	RunID   string         `json:"run_id"`
	Seq     int64          `json:"seq"`
	Type    EventType      `json:"type"`
	TS      string         `json:"ts"`
	Payload map[string]any `json:"payload"`
}

// RunStartedPayload is the payload for RUN_STARTED events.
type RunStartedPayload struct {
	Goal    string         `json:"goal"`
	Mode    Mode           `json:"mode"`
	Request map[string]any `json:"request,omitempty"`
}

// DispatchSelectedPayload is the payload for DISPATCH_SELECTED events.
type DispatchSelectedPayload struct {
	AdapterID       string   `json:"adapter_id"`
	AdapterKind     string   `json:"adapter_kind"`
	Capabilities    []string `json:"capabilities"`
	SelectionSource string   `json:"selection_source"`
}

// PlanCreatedPayload is the payload for PLAN_CREATED events.
type PlanCreatedPayload struct {
	Steps []Step `json:"steps"`
}

// StepStartedPayload is the payload for STEP_STARTED events.
type StepStartedPayload struct {
	StepID string `json:"step_id"`
	Intent string `json:"intent,omitempty"`
	Call   Call   `json:"call"`
}

// ToolCallRequestedPayload is the payload for TOOL_CALL_REQUESTED events.
// Every request carries the adapter identity and a snapshot of its
// capabilities at dispatch time.
type ToolCallRequestedPayload struct {
	StepID              string   `json:"step_id"`
	Call                Call     `json:"call"`
	AdapterID           string   `json:"adapter_id"`
	AdapterCapabilities []string `json:"adapter_capabilities"`
}

// ToolCallSucceededPayload is the payload for TOOL_CALL_SUCCEEDED events.
type ToolCallSucceededPayload struct {
	StepID     string         `json:"step_id"`
	Output     map[string]any `json:"output"`
	Simulated  bool           `json:"simulated"`
	DurationMs int64          `json:"duration_ms"`
}

// ToolCallFailedPayload is the payload for TOOL_CALL_FAILED events.
type ToolCallFailedPayload struct {
	StepID     string         `json:"step_id"`
	ErrorKind  string         `json:"error_kind"` // "operational" or "bug"
	ErrorCode  string         `json:"error_code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// StepCompletedPayload is the payload for STEP_COMPLETED events.
type StepCompletedPayload struct {
	StepID string `json:"step_id"`
	Status string `json:"status"` // "ok" or "error"
}

// RunCompletedPayload is the payload for RUN_COMPLETED events.
type RunCompletedPayload struct {
	Summary Summary `json:"summary"`
}

// RunFailedPayload is the payload for RUN_FAILED events.
type RunFailedPayload struct {
	ErrorCode string         `json:"error_code"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	StepID    string         `json:"step_id,omitempty"`
}
