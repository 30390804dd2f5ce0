package export

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mcp-tool-shop/nexus-router/fault"
	"github.com/mcp-tool-shop/nexus-router/internal/canonical"
	"github.com/mcp-tool-shop/nexus-router/internal/model"
	"github.com/mcp-tool-shop/nexus-router/internal/replay"
	"github.com/mcp-tool-shop/nexus-router/internal/store"
)

// ImportMode resolves a run_id conflict with the target store.
type ImportMode string

const (
	// RejectOnConflict fails with RUN_EXISTS when the run_id is present.
	RejectOnConflict ImportMode = "reject_on_conflict"
	// NewRunID rewrites the bundle onto a fresh run_id (and fresh event
	// ids) before inserting.
	NewRunID ImportMode = "new_run_id"
	// Overwrite atomically replaces an existing run and its events.
	Overwrite ImportMode = "overwrite"
)

// ImportOptions governs one import.
type ImportOptions struct {
	Mode         ImportMode
	NewRunID     string // used by NewRunID mode; generated when empty
	VerifyDigest bool
	VerifyReplay bool
}

// DefaultImportOptions verifies both digest and replay and rejects
// conflicts.
func DefaultImportOptions() ImportOptions {
	return ImportOptions{
		Mode:         RejectOnConflict,
		VerifyDigest: true,
		VerifyReplay: true,
	}
}

// ImportResult reports the outcome of an import.
type ImportResult struct {
	ImportedRunID  string             `json:"imported_run_id"`
	EventsInserted int                `json:"events_inserted"`
	ReplayOK       bool               `json:"replay_ok"`
	Violations     []replay.Violation `json:"violations,omitempty"`
}

// Import loads a bundle into the store. The insert is a single
// transaction: any failure leaves the store unchanged. Verification
// (structure, digest, replay) happens before the first write.
func Import(ctx context.Context, s *store.Store, bundle model.Bundle, opts ImportOptions) (ImportResult, error) {
	if opts.Mode == "" {
		opts.Mode = RejectOnConflict
	}

	if err := validateBundle(bundle); err != nil {
		return ImportResult{}, err
	}

	if opts.VerifyDigest {
		if err := verifyDigest(bundle); err != nil {
			return ImportResult{}, err
		}
	}

	run := bundle.Run
	events := append([]model.Event(nil), bundle.Events...)
	originalRunID := run.RunID

	if opts.Mode == NewRunID {
		target := opts.NewRunID
		if target == "" {
			target = uuid.NewString()
		}
		// A caller-provided id that collides falls back to a generated one,
		// so NewRunID mode never rejects.
		if existing, err := s.GetRun(ctx, target); err != nil {
			return ImportResult{}, err
		} else if existing != nil {
			target = uuid.NewString()
		}
		run, events = remapRunID(run, events, originalRunID, target)
	}

	result := ImportResult{ImportedRunID: run.RunID, ReplayOK: true}

	if opts.VerifyReplay {
		view := replay.Check(run.RunID, events, true)
		result.ReplayOK = view.OK
		result.Violations = view.Violations
		if !view.OK {
			return result, fault.NewOperational(fault.CodeInvalidBundle,
				"bundle fails replay verification with %d violations", len(view.Violations)).
				WithDetails(map[string]any{"violations": len(view.Violations)})
		}
	}

	overwrite := opts.Mode == Overwrite
	if err := s.InsertRunWithEvents(ctx, run, events, overwrite); err != nil {
		return result, err
	}
	result.EventsInserted = len(events)
	return result, nil
}

func validateBundle(b model.Bundle) error {
	missing := func(field string) error {
		return fault.NewOperational(fault.CodeInvalidBundle,
			"bundle missing %s", field).
			WithDetails(map[string]any{"field": field})
	}
	if b.SchemaVersion == "" {
		return missing("schema_version")
	}
	if b.SchemaVersion != model.BundleSchemaVersion {
		return fault.NewOperational(fault.CodeInvalidBundle,
			"unsupported bundle schema_version %q", b.SchemaVersion).
			WithDetails(map[string]any{"schema_version": b.SchemaVersion})
	}
	if b.Run.RunID == "" {
		return missing("run.run_id")
	}
	if !b.Run.Mode.Valid() {
		return fault.NewOperational(fault.CodeInvalidBundle,
			"bundle run has invalid mode %q", b.Run.Mode)
	}
	if b.Run.Status == "" {
		return missing("run.status")
	}
	if b.Run.CreatedAt == "" {
		return missing("run.created_at")
	}
	for i, e := range b.Events {
		switch {
		case e.EventID == "":
			return missing(fmt.Sprintf("events[%d].event_id", i))
		case e.RunID == "":
			return missing(fmt.Sprintf("events[%d].run_id", i))
		case e.Type == "":
			return missing(fmt.Sprintf("events[%d].type", i))
		case e.TS == "":
			return missing(fmt.Sprintf("events[%d].ts", i))
		}
		if !model.KnownEventType(e.Type) {
			return fault.NewOperational(fault.CodeInvalidBundle,
				"events[%d] has unknown type %q", i, e.Type)
		}
	}
	return nil
}

func verifyDigest(b model.Bundle) error {
	if b.Provenance == nil || b.Provenance.Digest == "" {
		return fault.NewOperational(fault.CodeInvalidBundle,
			"bundle has no provenance digest to verify")
	}
	actual, err := canonical.Digest(b.Run, b.Events)
	if err != nil {
		return err
	}
	if actual != b.Provenance.Digest {
		return fault.NewOperational(fault.CodeDigestMismatch,
			"bundle digest mismatch").
			WithDetails(map[string]any{
				"expected": b.Provenance.Digest,
				"actual":   actual,
			})
	}
	return nil
}

// remapRunID rewrites the run and every event onto a new run_id. Event ids
// are freshly allocated to avoid global collisions, and payloads that
// reference the old run_id (nested summaries and the like) are remapped
// recursively.
func remapRunID(run model.Run, events []model.Event, oldID, newID string) (model.Run, []model.Event) {
	run.RunID = newID
	out := make([]model.Event, len(events))
	for i, e := range events {
		e.EventID = uuid.NewString()
		e.RunID = newID
		e.Payload = remapPayload(e.Payload, oldID, newID)
		out[i] = e
	}
	return run, out
}

func remapPayload(payload map[string]any, oldID, newID string) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = remapValue(k, v, oldID, newID)
	}
	return out
}

func remapValue(key string, v any, oldID, newID string) any {
	switch t := v.(type) {
	case string:
		if key == "run_id" && t == oldID {
			return newID
		}
		return t
	case map[string]any:
		return remapPayload(t, oldID, newID)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = remapValue("", item, oldID, newID)
		}
		return out
	default:
		return v
	}
}
