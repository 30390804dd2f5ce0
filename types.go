package nexus

import (
	"github.com/mcp-tool-shop/nexus-router/dispatch"
	"github.com/mcp-tool-shop/nexus-router/internal/export"
	"github.com/mcp-tool-shop/nexus-router/internal/model"
	"github.com/mcp-tool-shop/nexus-router/internal/redact"
	"github.com/mcp-tool-shop/nexus-router/internal/replay"
	"github.com/mcp-tool-shop/nexus-router/internal/telemetry"
)

// Pass-through aliases for the domain types. Aliases (not copies) so that
// a bundle exported here and imported elsewhere is the same value shape,
// byte for byte, under the canonical encoding.
type (
	Mode         = model.Mode
	RunStatus    = model.RunStatus
	Run          = model.Run
	RunCounts    = model.RunCounts
	Event        = model.Event
	EventType    = model.EventType
	Call         = model.Call
	Step         = model.Step
	Policy       = model.Policy
	DispatchSpec = model.DispatchSpec
	Request      = model.Request
	Summary      = model.Summary
	DispatchInfo = model.DispatchInfo
	ErrorInfo    = model.ErrorInfo
	StepResult   = model.StepResult
	Response     = model.Response
	Provenance   = model.Provenance
	Bundle       = model.Bundle
)

// Execution modes.
const (
	ModeDryRun = model.ModeDryRun
	ModeApply  = model.ModeApply
)

// Run lifecycle states.
const (
	RunStatusRunning   = model.RunStatusRunning
	RunStatusCompleted = model.RunStatusCompleted
	RunStatusFailed    = model.RunStatusFailed
)

// Import surface.
type (
	ImportMode    = export.ImportMode
	ImportOptions = export.ImportOptions
	ImportResult  = export.ImportResult
)

const (
	ImportRejectOnConflict = export.RejectOnConflict
	ImportNewRunID         = export.NewRunID
	ImportOverwrite        = export.Overwrite
)

// DefaultImportOptions verifies digest and replay and rejects conflicts.
func DefaultImportOptions() ImportOptions { return export.DefaultImportOptions() }

// Replay surface.
type (
	ReplayView      = replay.View
	ReplayStepView  = replay.StepView
	ReplayViolation = replay.Violation
)

// Redaction and telemetry, re-exported so hosts outside the module can
// configure them.
type (
	Redactor    = redact.Redactor
	Instruments = telemetry.Instruments
)

// NewDefaultRedactor returns the standard redactor (token/secret/password
// keys, bearer tokens, obvious key prefixes).
func NewDefaultRedactor() *Redactor { return redact.NewDefault() }

// NewInstruments creates the nexus-router OTel instrument set on the
// global meter provider.
func NewInstruments() (*Instruments, error) { return telemetry.NewInstruments() }

// InspectQuery selects either one run (RunID set) or a filtered listing.
type InspectQuery struct {
	RunID  string `json:"run_id,omitempty"`
	Status string `json:"status,omitempty"`
	Since  string `json:"since,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// InspectResult is the outcome of an Inspect call. For a single-run query,
// Run and Events are set (Run nil when the run does not exist); for a
// listing, Runs and Counts are set.
type InspectResult struct {
	Run    *Run      `json:"run,omitempty"`
	Events []Event   `json:"events,omitempty"`
	Runs   []Run     `json:"runs,omitempty"`
	Counts RunCounts `json:"counts"`
}

// AdapterListing is the outcome of ListAdapters.
type AdapterListing struct {
	Adapters         []dispatch.AdapterInfo `json:"adapters"`
	DefaultAdapterID string                 `json:"default_adapter_id"`
	Total            int                    `json:"total"`
}
