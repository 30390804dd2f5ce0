package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/mcp-tool-shop/nexus-router/fault"
	"github.com/mcp-tool-shop/nexus-router/internal/model"
)

// Append writes the next event for runID, allocating seq = max(seq)+1
// inside a single transaction. A concurrent writer advancing the same run
// surfaces as SEQUENCE_CONFLICT: the append is the commit, so losing the
// race means the caller's view of the run is stale.
func (s *Store) Append(ctx context.Context, runID string, eventType model.EventType, payload any) (model.Event, error) {
	payloadJSON, err := marshalPayload(payload)
	if err != nil {
		return model.Event{}, err
	}

	event := model.Event{
		EventID: allocEventID(),
		RunID:   runID,
		Type:    eventType,
		TS:      s.Now(),
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq) + 1, 0) FROM events WHERE run_id = ?`, runID,
		).Scan(&event.Seq); err != nil {
			return fmt.Errorf("store: next seq: %w", err)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO events (event_id, run_id, seq, type, ts, payload_json)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			event.EventID, event.RunID, event.Seq, string(event.Type), event.TS, payloadJSON,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fault.NewBug(fault.CodeSequenceConflict,
					"concurrent writer advanced run %q past seq %d", runID, event.Seq).
					WithCause(err)
			}
			return fmt.Errorf("store: insert event: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Event{}, err
	}

	if err := json.Unmarshal([]byte(payloadJSON), &event.Payload); err != nil {
		return model.Event{}, fault.NewBug(fault.CodeBug, "reparse appended payload").WithCause(err)
	}
	if s.instr != nil {
		s.instr.EventsAppended.Add(ctx, 1)
	}
	return event, nil
}

// Events loads all events of a run in ascending seq order.
func (s *Store) Events(ctx context.Context, runID string) ([]model.Event, error) {
	var events []model.Event
	for event, err := range s.IterEvents(ctx, runID) {
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// IterEvents lazily yields a run's events in ascending seq order. The
// sequence is finite; iteration stops early when the caller breaks.
func (s *Store) IterEvents(ctx context.Context, runID string) iter.Seq2[model.Event, error] {
	return func(yield func(model.Event, error) bool) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT event_id, run_id, seq, type, ts, payload_json
			 FROM events WHERE run_id = ? ORDER BY seq ASC`, runID)
		if err != nil {
			yield(model.Event{}, fmt.Errorf("store: query events: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var e model.Event
			var payloadJSON string
			if err := rows.Scan(&e.EventID, &e.RunID, &e.Seq, &e.Type, &e.TS, &payloadJSON); err != nil {
				yield(model.Event{}, fmt.Errorf("store: scan event: %w", err))
				return
			}
			if err := json.Unmarshal([]byte(payloadJSON), &e.Payload); err != nil {
				yield(model.Event{}, fmt.Errorf("store: decode payload seq %d: %w", e.Seq, err))
				return
			}
			if !yield(e, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(model.Event{}, fmt.Errorf("store: iterate events: %w", err))
		}
	}
}

// CountEvents returns the number of events recorded for a run.
func (s *Store) CountEvents(ctx context.Context, runID string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE run_id = ?`, runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count events: %w", err)
	}
	return n, nil
}

// InsertRunWithEvents inserts a run row plus its events, preserving the
// incoming seq and ts values, in one transaction. This is the import
// primitive: when overwrite is set an existing run (and its events) is
// deleted first; otherwise an existing run_id fails with RUN_EXISTS and
// the store is left unchanged.
func (s *Store) InsertRunWithEvents(ctx context.Context, run model.Run, events []model.Event, overwrite bool) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var existing string
		err := tx.QueryRowContext(ctx,
			`SELECT run_id FROM runs WHERE run_id = ?`, run.RunID).Scan(&existing)
		switch {
		case err == nil:
			if !overwrite {
				return fault.NewOperational(fault.CodeRunExists,
					"run %q already exists", run.RunID)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE run_id = ?`, run.RunID); err != nil {
				return fmt.Errorf("store: overwrite delete events: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, run.RunID); err != nil {
				return fmt.Errorf("store: overwrite delete run: %w", err)
			}
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("store: check existing run: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (run_id, goal, mode, status, created_at) VALUES (?, ?, ?, ?, ?)`,
			run.RunID, run.Goal, string(run.Mode), string(run.Status), run.CreatedAt,
		); err != nil {
			return fmt.Errorf("store: insert imported run: %w", err)
		}

		for _, e := range events {
			payloadJSON, err := marshalPayload(e.Payload)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO events (event_id, run_id, seq, type, ts, payload_json)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				e.EventID, run.RunID, e.Seq, string(e.Type), e.TS, payloadJSON,
			); err != nil {
				if isUniqueViolation(err) {
					return fault.NewBug(fault.CodeSequenceConflict,
						"duplicate seq %d while importing run %q", e.Seq, run.RunID).
						WithCause(err)
				}
				return fmt.Errorf("store: insert imported event seq %d: %w", e.Seq, err)
			}
		}
		return nil
	})
}
