package services

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql"
	"github.com/codeready-toolchain/deepsoc/ent"
	"github.com/codeready-toolchain/deepsoc/ent/command"
	"github.com/google/uuid"
)

// CommandService manages Commands, the executable operations Operator
// produces and Executor consumes.
type CommandService struct {
	client *ent.Client
}

// NewCommandService creates a new CommandService.
func NewCommandService(client *ent.Client) *CommandService {
	return &CommandService{client: client}
}

// CommandPlan describes one command to insert for an Action.
type CommandPlan struct {
	ActionID      string
	Name          string
	CommandType   command.CommandType
	CommandEntity map[string]any
	CommandParams map[string]any
}

// Create inserts one Command for an Action inside tx.
func (s *CommandService) Create(ctx context.Context, tx *ent.Tx, taskID, eventID, roundID string, plan CommandPlan) (*ent.Command, error) {
	builder := tx.Command.Create().
		SetID(uuid.New().String()).
		SetActionID(plan.ActionID).
		SetTaskID(taskID).
		SetEventID(eventID).
		SetRoundID(roundID).
		SetName(plan.Name).
		SetCommandType(plan.CommandType).
		SetStatus(command.StatusPending)

	if plan.CommandEntity != nil {
		builder = builder.SetCommandEntity(plan.CommandEntity)
	}
	if plan.CommandParams != nil {
		builder = builder.SetCommandParams(plan.CommandParams)
	}

	c, err := builder.Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("create command: %w", err)
	}
	return c, nil
}

// ClaimNextPending atomically claims the oldest pending Command for
// Executor, moving it to `processing`.
func (s *CommandService) ClaimNextPending(ctx context.Context) (*ent.Command, error) {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	c, err := tx.Command.Query().
		Where(command.StatusEQ(command.StatusPending)).
		Order(ent.Asc(command.FieldCreatedAt)).
		Limit(1).
		ForUpdate(sql.WithLockAction(sql.SkipLocked)).
		First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("query pending command: %w", err)
	}

	c, err = tx.Command.UpdateOneID(c.ID).SetStatus(command.StatusProcessing).Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("claim command: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return c, nil
}

// ByID retrieves a Command by id.
func (s *CommandService) ByID(ctx context.Context, id string) (*ent.Command, error) {
	c, err := s.client.Command.Get(ctx, id)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get command: %w", err)
	}
	return c, nil
}

// ByAction lists every Command belonging to an Action.
func (s *CommandService) ByAction(ctx context.Context, actionID string) ([]*ent.Command, error) {
	commands, err := s.client.Command.Query().
		Where(command.ActionIDEQ(actionID)).
		Order(ent.Asc(command.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list action commands: %w", err)
	}
	return commands, nil
}

// AllTerminal reports whether every Command of an Action is terminal, and
// whether any of them failed.
func (s *CommandService) AllTerminal(ctx context.Context, actionID string) (allTerminal bool, anyFailed bool, err error) {
	commands, err := s.ByAction(ctx, actionID)
	if err != nil {
		return false, false, err
	}
	if len(commands) == 0 {
		return true, false, nil
	}
	for _, c := range commands {
		if c.Status != command.StatusCompleted && c.Status != command.StatusFailed {
			return false, false, nil
		}
		if c.Status == command.StatusFailed {
			anyFailed = true
		}
	}
	return true, anyFailed, nil
}

// SetResult writes a Command's structured result and terminal status,
// called by Executor immediately after a playbook run resolves.
func (s *CommandService) SetResult(ctx context.Context, id string, result map[string]any, failed bool) error {
	status := command.StatusCompleted
	if failed {
		status = command.StatusFailed
	}
	err := s.client.Command.UpdateOneID(id).
		SetStatus(status).
		SetResult(result).
		Exec(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("set command result: %w", err)
	}
	return nil
}

// SetStatus performs an unconditional status transition, used by the
// Executor to fail a Command it cannot run (unknown command_type, playbook
// without playbook_id). A manual Command needs no call: it stays
// `processing` from its claim.
func (s *CommandService) SetStatus(ctx context.Context, id string, status command.Status) error {
	if err := s.client.Command.UpdateOneID(id).SetStatus(status).Exec(ctx); err != nil {
		if ent.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("set command status: %w", err)
	}
	return nil
}

// SetTerminal locks, re-reads and idempotently sets a Command's terminal
// status from its child Executions; a no-op if already terminal.
func (s *CommandService) SetTerminal(ctx context.Context, tx *ent.Tx, id string, failed bool) (*ent.Command, error) {
	c, err := tx.Command.Query().Where(command.IDEQ(id)).ForUpdate().Only(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock command: %w", err)
	}
	if c.Status == command.StatusCompleted || c.Status == command.StatusFailed {
		return c, nil
	}

	next := command.StatusCompleted
	if failed {
		next = command.StatusFailed
	}
	c, err = tx.Command.UpdateOneID(id).SetStatus(next).Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("set command terminal status: %w", err)
	}
	return c, nil
}
