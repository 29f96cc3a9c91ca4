package services

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql"
	"github.com/codeready-toolchain/deepsoc/ent"
	"github.com/codeready-toolchain/deepsoc/ent/action"
	"github.com/google/uuid"
)

// ActionService manages Actions, the Task refinements Manager produces.
type ActionService struct {
	client *ent.Client
}

// NewActionService creates a new ActionService.
func NewActionService(client *ent.Client) *ActionService {
	return &ActionService{client: client}
}

// Create inserts one Action for a Task inside tx, inheriting the Task's
// type and round.
func (s *ActionService) Create(ctx context.Context, tx *ent.Tx, taskID, eventID, roundID, name string, actionType action.ActionType) (*ent.Action, error) {
	a, err := tx.Action.Create().
		SetID(uuid.New().String()).
		SetTaskID(taskID).
		SetEventID(eventID).
		SetRoundID(roundID).
		SetName(name).
		SetActionType(actionType).
		SetStatus(action.StatusPending).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("create action: %w", err)
	}
	return a, nil
}

// PendingGroups returns the distinct (event_id, round_id) pairs that have
// at least one pending Action, the unit of work Operator processes
// atomically.
func (s *ActionService) PendingGroups(ctx context.Context) ([]EventRoundGroup, error) {
	rows, err := s.client.Action.Query().
		Where(action.StatusEQ(action.StatusPending)).
		Select(action.FieldEventID, action.FieldRoundID).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("query pending action groups: %w", err)
	}

	seen := make(map[EventRoundGroup]struct{})
	var groups []EventRoundGroup
	for _, a := range rows {
		g := EventRoundGroup{EventID: a.EventID, RoundID: a.RoundID}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		groups = append(groups, g)
	}
	return groups, nil
}

// PendingInGroup returns every pending Action for one (event_id, round_id)
// group, locked FOR UPDATE within tx.
func (s *ActionService) PendingInGroup(ctx context.Context, tx *ent.Tx, eventID, roundID string) ([]*ent.Action, error) {
	actions, err := tx.Action.Query().
		Where(
			action.EventIDEQ(eventID),
			action.RoundIDEQ(roundID),
			action.StatusEQ(action.StatusPending),
		).
		ForUpdate(sql.WithLockAction(sql.SkipLocked)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("query group actions: %w", err)
	}
	return actions, nil
}

// SetProcessing moves an Action to `processing`, called by Operator once it
// has produced a matching Command.
func (s *ActionService) SetProcessing(ctx context.Context, tx *ent.Tx, id string) error {
	if err := tx.Action.UpdateOneID(id).SetStatus(action.StatusProcessing).Exec(ctx); err != nil {
		return fmt.Errorf("set action processing: %w", err)
	}
	return nil
}

// ByID retrieves an Action by id.
func (s *ActionService) ByID(ctx context.Context, id string) (*ent.Action, error) {
	a, err := s.client.Action.Get(ctx, id)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get action: %w", err)
	}
	return a, nil
}

// ByTask lists every Action belonging to a Task.
func (s *ActionService) ByTask(ctx context.Context, taskID string) ([]*ent.Action, error) {
	actions, err := s.client.Action.Query().
		Where(action.TaskIDEQ(taskID)).
		Order(ent.Asc(action.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list task actions: %w", err)
	}
	return actions, nil
}

// AllTerminal reports whether every Action of a Task is terminal, and
// whether any of them failed.
func (s *ActionService) AllTerminal(ctx context.Context, taskID string) (allTerminal bool, anyFailed bool, err error) {
	actions, err := s.ByTask(ctx, taskID)
	if err != nil {
		return false, false, err
	}
	if len(actions) == 0 {
		return true, false, nil
	}
	for _, a := range actions {
		if a.Status != action.StatusCompleted && a.Status != action.StatusFailed {
			return false, false, nil
		}
		if a.Status == action.StatusFailed {
			anyFailed = true
		}
	}
	return true, anyFailed, nil
}

// SetTerminal locks, re-reads and idempotently sets an Action's terminal
// status from its child Commands; a no-op if already terminal.
func (s *ActionService) SetTerminal(ctx context.Context, tx *ent.Tx, id string, failed bool) (*ent.Action, error) {
	a, err := tx.Action.Query().Where(action.IDEQ(id)).ForUpdate().Only(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock action: %w", err)
	}
	if a.Status == action.StatusCompleted || a.Status == action.StatusFailed {
		return a, nil
	}

	next := action.StatusCompleted
	if failed {
		next = action.StatusFailed
	}
	a, err = tx.Action.UpdateOneID(id).SetStatus(next).Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("set action terminal status: %w", err)
	}
	return a, nil
}
