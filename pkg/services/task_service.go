package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"entgo.io/ent/dialect/sql"
	"github.com/codeready-toolchain/deepsoc/ent"
	"github.com/codeready-toolchain/deepsoc/ent/task"
	"github.com/google/uuid"
)

// TaskService manages Tasks, the units of work Captain produces when
// decomposing an Event.
type TaskService struct {
	client *ent.Client
}

// NewTaskService creates a new TaskService.
func NewTaskService(client *ent.Client) *TaskService {
	return &TaskService{client: client}
}

// TaskPlan describes one task to insert for an Event/round.
type TaskPlan struct {
	Name     string
	TaskType task.TaskType
}

// CreateForRound inserts one Task per plan, all belonging to the same
// Event and round, inside a single transaction. Used by Captain on a TASK
// response.
func (s *TaskService) CreateForRound(ctx context.Context, tx *ent.Tx, eventID string, round int, plans []TaskPlan) ([]*ent.Task, error) {
	roundID := strconv.Itoa(round)
	created := make([]*ent.Task, 0, len(plans))
	for _, p := range plans {
		t, err := tx.Task.Create().
			SetID(uuid.New().String()).
			SetEventID(eventID).
			SetName(p.Name).
			SetTaskType(p.TaskType).
			SetRoundID(roundID).
			SetStatus(task.StatusPending).
			Save(ctx)
		if err != nil {
			return nil, fmt.Errorf("create task %q: %w", p.Name, err)
		}
		created = append(created, t)
	}
	return created, nil
}

// PendingGroups returns the distinct (event_id, round_id) pairs that have
// at least one pending Task, the unit of work Manager processes atomically.
func (s *TaskService) PendingGroups(ctx context.Context) ([]EventRoundGroup, error) {
	rows, err := s.client.Task.Query().
		Where(task.StatusEQ(task.StatusPending)).
		Select(task.FieldEventID, task.FieldRoundID).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("query pending task groups: %w", err)
	}

	seen := make(map[EventRoundGroup]struct{})
	var groups []EventRoundGroup
	for _, t := range rows {
		g := EventRoundGroup{EventID: t.EventID, RoundID: t.RoundID}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		groups = append(groups, g)
	}
	return groups, nil
}

// EventRoundGroup identifies a single (event, round) unit of work shared by
// Manager and Operator.
type EventRoundGroup struct {
	EventID string `json:"event_id"`
	RoundID string `json:"round_id"`
}

// PendingInGroup returns every pending Task for one (event_id, round_id)
// group, locked FOR UPDATE within tx.
func (s *TaskService) PendingInGroup(ctx context.Context, tx *ent.Tx, eventID, roundID string) ([]*ent.Task, error) {
	tasks, err := tx.Task.Query().
		Where(
			task.EventIDEQ(eventID),
			task.RoundIDEQ(roundID),
			task.StatusEQ(task.StatusPending),
		).
		ForUpdate(sql.WithLockAction(sql.SkipLocked)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("query group tasks: %w", err)
	}
	return tasks, nil
}

// SetProcessing moves a Task to `processing`, called by Manager once it has
// produced a matching Action.
func (s *TaskService) SetProcessing(ctx context.Context, tx *ent.Tx, id string) error {
	if err := tx.Task.UpdateOneID(id).SetStatus(task.StatusProcessing).Exec(ctx); err != nil {
		return fmt.Errorf("set task processing: %w", err)
	}
	return nil
}

// ByID retrieves a Task by id.
func (s *TaskService) ByID(ctx context.Context, id string) (*ent.Task, error) {
	t, err := s.client.Task.Get(ctx, id)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ByEventRound lists every Task for an Event/round, in creation order.
func (s *TaskService) ByEventRound(ctx context.Context, eventID, roundID string) ([]*ent.Task, error) {
	tasks, err := s.client.Task.Query().
		Where(task.EventIDEQ(eventID), task.RoundIDEQ(roundID)).
		Order(ent.Asc(task.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// ByEvent lists every Task ever created for an Event, across all rounds;
// this is the "history" Captain includes in its next LLM request.
func (s *TaskService) ByEvent(ctx context.Context, eventID string) ([]*ent.Task, error) {
	tasks, err := s.client.Task.Query().
		Where(task.EventIDEQ(eventID)).
		Order(ent.Asc(task.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list event tasks: %w", err)
	}
	return tasks, nil
}

// AllTerminal reports whether every Task in (eventID, roundID) is in a
// terminal status, and whether any of them failed. Used by the Expert
// lifecycle manager's per-cycle Event re-evaluation.
func (s *TaskService) AllTerminal(ctx context.Context, eventID, roundID string) (allTerminal bool, anyFailed bool, err error) {
	tasks, err := s.ByEventRound(ctx, eventID, roundID)
	if err != nil {
		return false, false, err
	}
	if len(tasks) == 0 {
		return true, false, nil
	}
	for _, t := range tasks {
		if t.Status != task.StatusCompleted && t.Status != task.StatusFailed {
			return false, false, nil
		}
		if t.Status == task.StatusFailed {
			anyFailed = true
		}
	}
	return true, anyFailed, nil
}

// StalePending returns Tasks stuck `pending` past threshold, never refined
// into an Action by Manager across repeated cycles.
func (s *TaskService) StalePending(ctx context.Context, threshold time.Duration) ([]*ent.Task, error) {
	cutoff := time.Now().Add(-threshold)
	tasks, err := s.client.Task.Query().
		Where(task.StatusEQ(task.StatusPending), task.CreatedAtLT(cutoff)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("query stale tasks: %w", err)
	}
	return tasks, nil
}

// MarkFailed marks a Task `failed`, the retry/abort policy applied to a
// Task that Manager has repeatedly failed to refine (see Open Questions).
func (s *TaskService) MarkFailed(ctx context.Context, id string) error {
	if err := s.client.Task.UpdateOneID(id).SetStatus(task.StatusFailed).Exec(ctx); err != nil {
		if ent.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("mark task failed: %w", err)
	}
	return nil
}

// SetTerminal locks, re-reads and idempotently sets a Task's terminal
// status from its child Actions; a no-op if the Task is already terminal.
// This is one link of the upward status-propagation chain.
func (s *TaskService) SetTerminal(ctx context.Context, tx *ent.Tx, id string, failed bool) (*ent.Task, error) {
	t, err := tx.Task.Query().Where(task.IDEQ(id)).ForUpdate().Only(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock task: %w", err)
	}
	if t.Status == task.StatusCompleted || t.Status == task.StatusFailed {
		return t, nil
	}

	next := task.StatusCompleted
	if failed {
		next = task.StatusFailed
	}
	t, err = tx.Task.UpdateOneID(id).SetStatus(next).Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("set task terminal status: %w", err)
	}
	return t, nil
}
