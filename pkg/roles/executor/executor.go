// Package executor implements the Executor role worker: it runs a single
// Command, either dispatching a SOAR playbook and waiting for it to
// finish or recording a manual handoff for a human operator.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/codeready-toolchain/deepsoc/ent"
	"github.com/codeready-toolchain/deepsoc/ent/command"
	"github.com/codeready-toolchain/deepsoc/ent/execution"
	"github.com/codeready-toolchain/deepsoc/ent/message"
	"github.com/codeready-toolchain/deepsoc/pkg/events"
	"github.com/codeready-toolchain/deepsoc/pkg/queue"
	"github.com/codeready-toolchain/deepsoc/pkg/services"
	"github.com/codeready-toolchain/deepsoc/pkg/soar"
)

// Worker implements queue.RoleExecutor for the Executor role.
type Worker struct {
	client     *ent.Client
	commands   *services.CommandService
	executions *services.ExecutionService
	messages   *services.MessageService
	soar       *soar.Client
	publisher  *events.Publisher
}

// New creates an Executor Worker.
func New(client *ent.Client, soarClient *soar.Client, publisher *events.Publisher) *Worker {
	return &Worker{
		client:     client,
		commands:   services.NewCommandService(client),
		executions: services.NewExecutionService(client),
		messages:   services.NewMessageService(client),
		soar:       soarClient,
		publisher:  publisher,
	}
}

// ClaimNext claims the oldest pending Command.
func (w *Worker) ClaimNext(ctx context.Context, podID string) (string, error) {
	c, err := w.commands.ClaimNextPending(ctx)
	if err != nil {
		return "", err
	}
	if c == nil {
		return "", queue.ErrNoWorkAvailable
	}
	return c.ID, nil
}

// Heartbeat is a no-op; Commands carry no pod_id column. ClaimNextPending
// commits the move to `processing` before Process runs and only selects
// `pending` rows, so a Command whose Executor dies mid-Process stays
// `processing`; the executor pool has no orphan scanner that requeues it.
func (w *Worker) Heartbeat(ctx context.Context, id string) error {
	return nil
}

func stringParams(params map[string]any) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		switch vv := v.(type) {
		case string:
			out[k] = vv
		default:
			b, err := json.Marshal(vv)
			if err != nil {
				out[k] = fmt.Sprintf("%v", vv)
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}

// Process runs one Command to completion. Playbook commands dispatch to
// SOAR and block until the playbook finishes or times out; manual
// commands only create a `waiting` Execution for a human to close out
// later through the API, and the Command itself stays `processing`.
func (w *Worker) Process(ctx context.Context, id string) error {
	c, err := w.commands.ByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load command: %w", err)
	}

	switch c.CommandType {
	case command.CommandTypePlaybook:
		return w.runPlaybook(ctx, c)
	case command.CommandTypeManual:
		return w.runManual(ctx, c)
	default:
		return w.fail(ctx, c, fmt.Sprintf("unknown command_type %q", c.CommandType))
	}
}

func (w *Worker) runPlaybook(ctx context.Context, c *ent.Command) error {
	playbookID, _ := c.CommandEntity["playbook_id"].(string)
	if playbookID == "" {
		return w.fail(ctx, c, "playbook command missing playbook_id")
	}

	activityID, err := w.soar.ExecutePlaybook(ctx, playbookID, stringParams(c.CommandParams))
	if err != nil {
		return w.failWithExecution(ctx, c, fmt.Sprintf("playbook dispatch failed: %v", err))
	}

	result, err := w.soar.WaitForCompletion(ctx, activityID)
	if err != nil {
		return w.failWithExecution(ctx, c, fmt.Sprintf("playbook did not complete: %v", err))
	}

	raw, err := json.Marshal(result)
	if err != nil {
		raw = []byte(fmt.Sprintf("%v", result))
	}

	e, err := w.executions.Create(ctx, c.ID, c.ActionID, c.TaskID, c.EventID, c.RoundID, execution.StatusCompleted, string(raw))
	if err != nil {
		return fmt.Errorf("create execution: %w", err)
	}
	if err := w.commands.SetResult(ctx, c.ID, result, false); err != nil {
		return fmt.Errorf("set command result: %w", err)
	}

	return w.finish(ctx, c, e, false)
}

func (w *Worker) runManual(ctx context.Context, c *ent.Command) error {
	e, err := w.executions.Create(ctx, c.ID, c.ActionID, c.TaskID, c.EventID, c.RoundID, execution.StatusWaiting, "")
	if err != nil {
		return fmt.Errorf("create manual execution: %w", err)
	}

	_, err = w.messages.Append(ctx, c.EventID, message.MessageFromExecutor, "manual_execution_created",
		map[string]any{"command_id": c.ID, "execution_id": e.ID}, c.RoundID, "")
	return err
}

func (w *Worker) failWithExecution(ctx context.Context, c *ent.Command, reason string) error {
	e, err := w.executions.Create(ctx, c.ID, c.ActionID, c.TaskID, c.EventID, c.RoundID, execution.StatusFailed, reason)
	if err != nil {
		return fmt.Errorf("create failed execution: %w", err)
	}
	if err := w.commands.SetResult(ctx, c.ID, map[string]any{"error": reason}, true); err != nil {
		return fmt.Errorf("set command failed: %w", err)
	}
	return w.finish(ctx, c, e, true)
}

func (w *Worker) fail(ctx context.Context, c *ent.Command, reason string) error {
	if err := w.commands.SetStatus(ctx, c.ID, command.StatusFailed); err != nil {
		return fmt.Errorf("set command failed: %w", err)
	}
	_, err := w.messages.Append(ctx, c.EventID, message.MessageFromSystem, "error_internal",
		map[string]any{"command_id": c.ID, "error": reason}, c.RoundID, "")
	return err
}

// finish propagates a terminal Execution up through its Action and, if
// that was the Task's last pending Action, up to the Task itself, then
// publishes the command_result notification. Commands are the direct
// parent of Executions, but since a playbook Command has exactly one
// Execution, the Command's own terminal status was already set by the
// caller (SetResult); finish only needs to propagate from Action upward.
func (w *Worker) finish(ctx context.Context, c *ent.Command, e *ent.Execution, failed bool) error {
	if err := services.PropagateActionAndTask(ctx, w.client, c.ActionID, c.TaskID); err != nil {
		return err
	}

	msgTx, err := w.client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin message tx: %w", err)
	}
	if _, err := w.messages.AppendTx(ctx, msgTx, c.EventID, message.MessageFromExecutor, "command_result",
		map[string]any{"command_id": c.ID, "execution_id": e.ID, "failed": failed}, c.RoundID, ""); err != nil {
		_ = msgTx.Rollback()
		return fmt.Errorf("persist command_result message: %w", err)
	}
	if err := msgTx.Commit(); err != nil {
		return fmt.Errorf("commit propagation: %w", err)
	}

	if w.publisher != nil {
		_ = w.publisher.Publish(ctx, events.ChannelExecutionReady, events.ExecutionReadyPayload{
			BasePayload: events.BasePayload{Type: events.EventTypeExecutionReady, EventID: c.EventID, Timestamp: time.Now().Format(time.RFC3339)},
			ExecutionID: e.ID,
			CommandID:   c.ID,
			RoundID:     c.RoundID,
		})
	}
	return nil
}
