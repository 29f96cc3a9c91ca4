package services

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/deepsoc/ent"
)

// PropagateActionAndTask propagates a Command's terminal status up to its
// Action and, if that was the Task's last pending Action, up to the Task
// itself. Callers (the Executor worker's playbook path, and the API's
// manual-completion handler) must have already set the triggering
// Command to `completed`/`failed` before calling this.
//
// Each level commits before the next level's AllTerminal check reads it,
// since that check runs against client rather than the transaction that
// wrote the level below it.
func PropagateActionAndTask(ctx context.Context, client *ent.Client, actionID, taskID string) error {
	commands := NewCommandService(client)
	actions := NewActionService(client)
	tasks := NewTaskService(client)

	allCmdTerminal, anyCmdFailed, err := commands.AllTerminal(ctx, actionID)
	if err != nil {
		return fmt.Errorf("check action commands terminal: %w", err)
	}
	if !allCmdTerminal {
		return nil
	}

	actionTx, err := client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin action propagation tx: %w", err)
	}
	if _, err := actions.SetTerminal(ctx, actionTx, actionID, anyCmdFailed); err != nil {
		_ = actionTx.Rollback()
		return fmt.Errorf("propagate action terminal status: %w", err)
	}
	if err := actionTx.Commit(); err != nil {
		return fmt.Errorf("commit action propagation: %w", err)
	}

	allActionTerminal, anyActionFailed, err := actions.AllTerminal(ctx, taskID)
	if err != nil {
		return fmt.Errorf("check task actions terminal: %w", err)
	}
	if !allActionTerminal {
		return nil
	}

	taskTx, err := client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin task propagation tx: %w", err)
	}
	if _, err := tasks.SetTerminal(ctx, taskTx, taskID, anyActionFailed); err != nil {
		_ = taskTx.Rollback()
		return fmt.Errorf("propagate task terminal status: %w", err)
	}
	if err := taskTx.Commit(); err != nil {
		return fmt.Errorf("commit task propagation: %w", err)
	}
	return nil
}
