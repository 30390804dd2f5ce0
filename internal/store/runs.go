package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mcp-tool-shop/nexus-router/fault"
	"github.com/mcp-tool-shop/nexus-router/internal/model"
)

// CreateRun inserts a new run row with status "running". Fails with
// RUN_EXISTS when the run_id is already present.
func (s *Store) CreateRun(ctx context.Context, runID, goal string, mode model.Mode, createdAt string) (model.Run, error) {
	if createdAt == "" {
		createdAt = s.Now()
	}
	run := model.Run{
		RunID:     runID,
		Goal:      goal,
		Mode:      mode,
		Status:    model.RunStatusRunning,
		CreatedAt: createdAt,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, goal, mode, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		run.RunID, run.Goal, string(run.Mode), string(run.Status), run.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Run{}, fault.NewOperational(fault.CodeRunExists,
				"run %q already exists", runID).WithCause(err)
		}
		return model.Run{}, fmt.Errorf("store: create run: %w", err)
	}
	if s.instr != nil {
		s.instr.RunsStarted.Add(ctx, 1)
	}
	return run, nil
}

// SetStatus updates the run status. Setting the current value again is a
// no-op rather than an error.
func (s *Store) SetStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ? WHERE run_id = ?`, string(status), runID)
	if err != nil {
		return fmt.Errorf("store: set status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: set status rows: %w", err)
	}
	if n == 0 {
		return fault.NewOperational(fault.CodeRunNotFound, "run %q not found", runID)
	}
	return nil
}

// GetRun retrieves a run by id, or nil when absent.
func (s *Store) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var run model.Run
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, goal, mode, status, created_at FROM runs WHERE run_id = ?`, runID,
	).Scan(&run.RunID, &run.Goal, &run.Mode, &run.Status, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get run: %w", err)
	}
	return &run, nil
}

// ListRuns returns runs matching the filter, newest first, plus status
// counts over the since-bounded set (the status filter narrows the listing
// but not the counts).
func (s *Store) ListRuns(ctx context.Context, f model.RunFilter) ([]model.Run, model.RunCounts, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	countWhere, countArgs := "", []any{}
	if f.Since != "" {
		countWhere = " WHERE created_at >= ?"
		countArgs = append(countArgs, f.Since)
	}

	var counts model.RunCounts
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM runs`+countWhere+` GROUP BY status`, countArgs...)
	if err != nil {
		return nil, counts, fmt.Errorf("store: count runs: %w", err)
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, counts, fmt.Errorf("store: scan run count: %w", err)
		}
		counts.Total += n
		switch model.RunStatus(status) {
		case model.RunStatusCompleted:
			counts.Completed = n
		case model.RunStatusFailed:
			counts.Failed = n
		case model.RunStatusRunning:
			counts.Running = n
		}
	}
	if err := rows.Close(); err != nil {
		return nil, counts, fmt.Errorf("store: close count rows: %w", err)
	}

	where, args := []string{}, []any{}
	if f.Since != "" {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	query := `SELECT run_id, goal, mode, status, created_at FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, run_id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	runRows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, counts, fmt.Errorf("store: list runs: %w", err)
	}
	defer runRows.Close()

	var runs []model.Run
	for runRows.Next() {
		var r model.Run
		if err := runRows.Scan(&r.RunID, &r.Goal, &r.Mode, &r.Status, &r.CreatedAt); err != nil {
			return nil, counts, fmt.Errorf("store: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, counts, runRows.Err()
}
