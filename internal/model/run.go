// Package model defines the core domain types for nexus-router.
//
// All types correspond directly to database rows, event payloads, or the
// request/response surface. Timestamps are carried as pre-formatted UTC
// strings rather than time.Time: they participate in content digests, so the
// stored text is the canonical representation and must survive export/import
// byte for byte.
package model

// Mode selects between simulated and real dispatch.
type Mode string

const (
	ModeDryRun Mode = "dry_run"
	ModeApply  Mode = "apply"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeDryRun || m == ModeApply
}

// RunStatus represents the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is the top-level execution context. Created at RUN_STARTED, mutated
// only via terminal events.
type Run struct {
	RunID     string    `json:"run_id"`
	Goal      string    `json:"goal"`
	Mode      Mode      `json:"mode"`
	Status    RunStatus `json:"status"`
	CreatedAt string    `json:"created_at"`
}

// RunCounts aggregates run totals by status for listings.
type RunCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Running   int `json:"running"`
}

// RunFilter narrows a run listing.
type RunFilter struct {
	Status string // empty means all statuses
	Since  string // inclusive lower bound on created_at, RFC 3339
	Limit  int    // <= 0 means the default page size
	Offset int
}
