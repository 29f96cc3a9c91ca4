package services

import (
	"context"
	"fmt"
	"time"

	"entgo.io/ent/dialect/sql"
	"github.com/codeready-toolchain/deepsoc/ent"
	"github.com/codeready-toolchain/deepsoc/ent/execution"
	"github.com/google/uuid"
)

// ExecutionService manages Executions, one attempt to run a Command.
type ExecutionService struct {
	client *ent.Client
}

// NewExecutionService creates a new ExecutionService.
func NewExecutionService(client *ent.Client) *ExecutionService {
	return &ExecutionService{client: client}
}

// Create inserts an Execution for a Command, in either `completed` (or
// `failed`) for playbook commands, or `waiting` for manual commands.
func (s *ExecutionService) Create(ctx context.Context, commandID, actionID, taskID, eventID, roundID string, status execution.Status, result string) (*ent.Execution, error) {
	builder := s.client.Execution.Create().
		SetID(uuid.New().String()).
		SetCommandID(commandID).
		SetActionID(actionID).
		SetTaskID(taskID).
		SetEventID(eventID).
		SetRoundID(roundID).
		SetStatus(status)

	if result != "" {
		builder = builder.SetExecutionResult(result)
	}

	e, err := builder.Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}
	return e, nil
}

// ClaimNextCompleted atomically claims the oldest `completed` Execution for
// the summarizer: a short transaction locks the row, flips it to the
// transient `summarizing` state, and commits, releasing the lock before
// the caller ever talks to the LLM. Any number of summarizer instances can
// run concurrently without double-summarizing the same row.
func (s *ExecutionService) ClaimNextCompleted(ctx context.Context) (*ent.Execution, error) {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	e, err := tx.Execution.Query().
		Where(execution.StatusEQ(execution.StatusCompleted)).
		Order(ent.Asc(execution.FieldCreatedAt)).
		Limit(1).
		ForUpdate(sql.WithLockAction(sql.SkipLocked)).
		First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("query completed execution: %w", err)
	}

	e, err = e.Update().SetStatus(execution.StatusSummarizing).Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("claim execution: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return e, nil
}

// SetSummary writes the Expert-generated narrative and moves the Execution
// from `summarizing` to `summarized` (or `summarized_error` on LLM
// failure). Called after the LLM round-trip, outside any lock.
func (s *ExecutionService) SetSummary(ctx context.Context, id, summary string, failed bool) error {
	status := execution.StatusSummarized
	if failed {
		status = execution.StatusSummarizedError
	}
	builder := s.client.Execution.UpdateOneID(id).SetStatus(status)
	if summary != "" {
		builder = builder.SetAiSummary(summary)
	}
	if err := builder.Exec(ctx); err != nil {
		return fmt.Errorf("set execution summary: %w", err)
	}
	return nil
}

// CompleteManual transitions a `waiting` manual-handoff Execution to
// `completed`, the HTTP API's
// `/api/v1/events/:id/executions/:execution_id/complete` endpoint. It
// returns the updated Execution so the caller can propagate the
// completion up to the Execution's Command, Action and Task, which are
// left untouched here since ExecutionService has no reference to its
// sibling services.
func (s *ExecutionService) CompleteManual(ctx context.Context, id, result string) (*ent.Execution, error) {
	n, err := s.client.Execution.Update().
		Where(execution.IDEQ(id), execution.StatusEQ(execution.StatusWaiting)).
		SetStatus(execution.StatusCompleted).
		SetExecutionResult(result).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("complete manual execution: %w", err)
	}
	if n == 0 {
		exists, existsErr := s.client.Execution.Query().Where(execution.IDEQ(id)).Exist(ctx)
		if existsErr != nil {
			return nil, fmt.Errorf("check execution exists: %w", existsErr)
		}
		if !exists {
			return nil, ErrNotFound
		}
		return nil, ErrInvalidTransition
	}
	return s.ByID(ctx, id)
}

// ByID retrieves an Execution by id.
func (s *ExecutionService) ByID(ctx context.Context, id string) (*ent.Execution, error) {
	e, err := s.client.Execution.Get(ctx, id)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return e, nil
}

// ByCommand lists every Execution belonging to a Command.
func (s *ExecutionService) ByCommand(ctx context.Context, commandID string) ([]*ent.Execution, error) {
	executions, err := s.client.Execution.Query().
		Where(execution.CommandIDEQ(commandID)).
		Order(ent.Asc(execution.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list command executions: %w", err)
	}
	return executions, nil
}

// AllFinal reports whether every Execution of a Command is in a final
// state (summarized, summarized_error, or failed), and whether any of them
// indicates failure.
func (s *ExecutionService) AllFinal(ctx context.Context, commandID string) (allFinal bool, anyFailed bool, err error) {
	executions, err := s.ByCommand(ctx, commandID)
	if err != nil {
		return false, false, err
	}
	if len(executions) == 0 {
		return false, false, nil
	}
	for _, e := range executions {
		switch e.Status {
		case execution.StatusSummarized:
		case execution.StatusSummarizedError, execution.StatusFailed:
			anyFailed = true
		default:
			return false, false, nil
		}
	}
	return true, anyFailed, nil
}

// ByEventRoundFinal reports whether every Execution linked to an
// Event/round's tasks is in a final state, used by the lifecycle manager's
// `processing -> tasks_completed|failed` step.
func (s *ExecutionService) ByEventRoundFinal(ctx context.Context, eventID, roundID string) (allFinal bool, anyFailed bool, err error) {
	executions, err := s.client.Execution.Query().
		Where(execution.EventIDEQ(eventID), execution.RoundIDEQ(roundID)).
		All(ctx)
	if err != nil {
		return false, false, fmt.Errorf("list round executions: %w", err)
	}
	for _, e := range executions {
		switch e.Status {
		case execution.StatusSummarized:
		case execution.StatusSummarizedError, execution.StatusFailed:
			anyFailed = true
		default:
			return false, false, nil
		}
	}
	return true, anyFailed, nil
}

// FindOrphaned lists Executions still `completed` (not yet claimed by a
// summarizer) whose created_at is older than threshold. Executions that a
// crashed summarizer left `summarizing` are not returned;
// RequeueStaleSummarizing resets those.
func (s *ExecutionService) FindOrphaned(ctx context.Context, threshold time.Duration) ([]*ent.Execution, error) {
	cutoff := time.Now().Add(-threshold)
	executions, err := s.client.Execution.Query().
		Where(execution.StatusEQ(execution.StatusCompleted), execution.CreatedAtLT(cutoff)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("find orphaned executions: %w", err)
	}
	return executions, nil
}

// RequeueStaleSummarizing resets Executions stuck in the transient
// `summarizing` claim state past threshold back to `completed`, for a
// summarizer process that crashed between claim and SetSummary. Returns
// the number of rows reset.
func (s *ExecutionService) RequeueStaleSummarizing(ctx context.Context, threshold time.Duration) (int, error) {
	cutoff := time.Now().Add(-threshold)
	n, err := s.client.Execution.Update().
		Where(execution.StatusEQ(execution.StatusSummarizing), execution.UpdatedAtLT(cutoff)).
		SetStatus(execution.StatusCompleted).
		Save(ctx)
	if err != nil {
		return 0, fmt.Errorf("requeue stale summarizing executions: %w", err)
	}
	return n, nil
}
