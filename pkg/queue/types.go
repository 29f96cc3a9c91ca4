// Package queue provides a generic claim-and-process worker pool shared by
// every role (captain, manager, operator, executor, expert). Each role
// plugs in its own RoleExecutor, so the polling loop, heartbeat, and
// orphan-recovery machinery is written once and reused five times.
package queue

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by a RoleExecutor's ClaimNext/Process methods.
var (
	// ErrNoWorkAvailable indicates no claimable row exists right now.
	ErrNoWorkAvailable = errors.New("no work available")
)

// RoleExecutor is implemented once per role. It owns all knowledge of the
// ent entity the role polls (Event for Captain, Task for Manager, Action
// for Operator, Command for Executor, Execution for Expert's summarizer).
type RoleExecutor interface {
	// ClaimNext atomically locks and claims the next available row,
	// stamping it with podID, and returns its id. It returns
	// ErrNoWorkAvailable when the queue is empty.
	ClaimNext(ctx context.Context, podID string) (id string, err error)

	// Process runs the full handling for a claimed row. It is called
	// with the id returned by ClaimNext and must leave the row in a
	// terminal or next-stage status on return, whatever the outcome.
	Process(ctx context.Context, id string) error

	// Heartbeat refreshes the liveness marker for a row this worker
	// currently holds, so orphan detection knows the pod is still alive.
	Heartbeat(ctx context.Context, id string) error
}

// OrphanScanner is optionally implemented alongside RoleExecutor to let a
// role's worker pool reclaim rows abandoned by a pod that stopped
// heartbeating. Not every role needs one; pools started without a scanner
// simply skip orphan detection.
type OrphanScanner interface {
	// ScanAndRecover finds rows whose last heartbeat is older than
	// threshold and returns them to a claimable state (or a terminal
	// failure state, at the role's discretion). It returns the count
	// recovered.
	ScanAndRecover(ctx context.Context, threshold time.Time) (int, error)
}

// PoolHealth reports the aggregate health of a role's worker pool.
type PoolHealth struct {
	PodID            string         `json:"pod_id"`
	Role             string         `json:"role"`
	ActiveWorkers    int            `json:"active_workers"`
	TotalWorkers     int            `json:"total_workers"`
	WorkerStats      []WorkerHealth `json:"worker_stats"`
	LastOrphanScan   time.Time      `json:"last_orphan_scan"`
	OrphansRecovered int            `json:"orphans_recovered"`
}

// WorkerHealth reports the health of a single worker goroutine.
type WorkerHealth struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	CurrentRowID  string    `json:"current_row_id,omitempty"`
	RowsProcessed int       `json:"rows_processed"`
	LastActivity  time.Time `json:"last_activity"`
}
