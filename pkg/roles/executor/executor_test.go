package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/codeready-toolchain/deepsoc/ent/command"
	"github.com/codeready-toolchain/deepsoc/ent/execution"
	"github.com/codeready-toolchain/deepsoc/ent/task"
	"github.com/codeready-toolchain/deepsoc/pkg/config"
	"github.com/codeready-toolchain/deepsoc/pkg/models"
	"github.com/codeready-toolchain/deepsoc/pkg/queue"
	"github.com/codeready-toolchain/deepsoc/pkg/services"
	"github.com/codeready-toolchain/deepsoc/pkg/soar"
	testdb "github.com/codeready-toolchain/deepsoc/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSOAR(t *testing.T, activityResult map[string]any, failActivity bool) *soar.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/event/execution":
			_ = json.NewEncoder(w).Encode(map[string]string{"result": "activity-1"})
		case r.URL.Path == "/odp/core/v1/api/activity/activity-1":
			status := "SUCCESS"
			if failActivity {
				status = "FAILED"
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]string{"executeStatus": status}})
		case r.URL.Path == "/odp/core/v1/api/event/activity":
			_ = json.NewEncoder(w).Encode(map[string]any{"result": activityResult})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	return soar.NewClient(config.SOARConfig{
		BaseURL:      srv.URL,
		Token:        "test-token",
		Timeout:      2 * time.Second,
		PollInterval: 10 * time.Millisecond,
		PollTimeout:  2 * time.Second,
	})
}

type testDeps struct {
	worker     *Worker
	events     *services.EventService
	tasks      *services.TaskService
	actions    *services.ActionService
	commands   *services.CommandService
	executions *services.ExecutionService
}

func newTestWorker(t *testing.T, soarClient *soar.Client) testDeps {
	t.Helper()
	client := testdb.NewTestClient(t)
	return testDeps{
		worker:     New(client.Client, soarClient, nil),
		events:     services.NewEventService(client.Client),
		tasks:      services.NewTaskService(client.Client),
		actions:    services.NewActionService(client.Client),
		commands:   services.NewCommandService(client.Client),
		executions: services.NewExecutionService(client.Client),
	}
}

func newPendingCommand(t *testing.T, deps testDeps, ctx context.Context, plan services.CommandPlan) (eventID, commandID string) {
	t.Helper()
	ev, err := deps.events.CreateEvent(ctx, models.CreateEventRequest{Message: "event"})
	require.NoError(t, err)

	tx, err := deps.worker.client.Tx(ctx)
	require.NoError(t, err)
	created, err := deps.tasks.CreateForRound(ctx, tx, ev.ID, 1, []services.TaskPlan{{Name: "a", TaskType: "query"}})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx, err = deps.worker.client.Tx(ctx)
	require.NoError(t, err)
	a, err := deps.actions.Create(ctx, tx, created[0].ID, ev.ID, "1", "check disk", "query")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	plan.ActionID = a.ID
	tx, err = deps.worker.client.Tx(ctx)
	require.NoError(t, err)
	c, err := deps.commands.Create(ctx, tx, created[0].ID, ev.ID, "1", plan)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	return ev.ID, c.ID
}

func TestWorker_ClaimNextAndHeartbeat(t *testing.T) {
	deps := newTestWorker(t, newTestSOAR(t, nil, false))
	ctx := context.Background()

	_, err := deps.worker.ClaimNext(ctx, "pod-1")
	assert.ErrorIs(t, err, queue.ErrNoWorkAvailable)

	_, commandID := newPendingCommand(t, deps, ctx, services.CommandPlan{
		Name:          "run playbook",
		CommandType:   command.CommandTypePlaybook,
		CommandEntity: map[string]any{"playbook_id": "disk-check"},
	})

	id, err := deps.worker.ClaimNext(ctx, "pod-1")
	require.NoError(t, err)
	assert.Equal(t, commandID, id)

	require.NoError(t, deps.worker.Heartbeat(ctx, id))
}

func TestWorker_ProcessPlaybookCommandSucceeds(t *testing.T) {
	deps := newTestWorker(t, newTestSOAR(t, map[string]any{"disk_usage": "42%"}, false))
	ctx := context.Background()

	eventID, commandID := newPendingCommand(t, deps, ctx, services.CommandPlan{
		Name:          "run playbook",
		CommandType:   command.CommandTypePlaybook,
		CommandEntity: map[string]any{"playbook_id": "disk-check"},
		CommandParams: map[string]any{"host": "db-1"},
	})

	id, err := deps.worker.ClaimNext(ctx, "pod-1")
	require.NoError(t, err)
	require.NoError(t, deps.worker.Process(ctx, id))

	executions, err := deps.executions.ByCommand(ctx, commandID)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, execution.StatusCompleted, executions[0].Status)
	require.NotNil(t, executions[0].ExecutionResult)
	assert.Contains(t, *executions[0].ExecutionResult, "disk_usage")

	gotCmd, err := deps.commands.ByID(ctx, commandID)
	require.NoError(t, err)
	assert.Equal(t, command.StatusCompleted, gotCmd.Status)
	assert.Equal(t, "42%", gotCmd.Result["disk_usage"])

	_ = eventID
}

func TestWorker_ProcessPlaybookCommandFails(t *testing.T) {
	deps := newTestWorker(t, newTestSOAR(t, nil, true))
	ctx := context.Background()

	_, commandID := newPendingCommand(t, deps, ctx, services.CommandPlan{
		Name:          "run playbook",
		CommandType:   command.CommandTypePlaybook,
		CommandEntity: map[string]any{"playbook_id": "disk-check"},
	})

	id, err := deps.worker.ClaimNext(ctx, "pod-1")
	require.NoError(t, err)
	require.NoError(t, deps.worker.Process(ctx, id))

	executions, err := deps.executions.ByCommand(ctx, commandID)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, execution.StatusFailed, executions[0].Status)

	gotCmd, err := deps.commands.ByID(ctx, commandID)
	require.NoError(t, err)
	assert.Equal(t, command.StatusFailed, gotCmd.Status)
}

func TestWorker_ProcessPlaybookCommandMissingPlaybookID(t *testing.T) {
	deps := newTestWorker(t, newTestSOAR(t, nil, false))
	ctx := context.Background()

	_, commandID := newPendingCommand(t, deps, ctx, services.CommandPlan{
		Name:        "run playbook",
		CommandType: command.CommandTypePlaybook,
	})

	id, err := deps.worker.ClaimNext(ctx, "pod-1")
	require.NoError(t, err)
	require.NoError(t, deps.worker.Process(ctx, id))

	gotCmd, err := deps.commands.ByID(ctx, commandID)
	require.NoError(t, err)
	assert.Equal(t, command.StatusFailed, gotCmd.Status)
}

func TestWorker_ProcessManualCommandCreatesWaitingExecution(t *testing.T) {
	deps := newTestWorker(t, newTestSOAR(t, nil, false))
	ctx := context.Background()

	_, commandID := newPendingCommand(t, deps, ctx, services.CommandPlan{
		Name:        "notify on-call",
		CommandType: command.CommandTypeManual,
	})

	id, err := deps.worker.ClaimNext(ctx, "pod-1")
	require.NoError(t, err)
	require.NoError(t, deps.worker.Process(ctx, id))

	executions, err := deps.executions.ByCommand(ctx, commandID)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, execution.StatusWaiting, executions[0].Status)

	gotCmd, err := deps.commands.ByID(ctx, commandID)
	require.NoError(t, err)
	assert.Equal(t, command.StatusProcessing, gotCmd.Status, "manual commands stay processing until an operator completes them")
}

func TestWorker_ProcessPropagatesActionTerminalStatus(t *testing.T) {
	deps := newTestWorker(t, newTestSOAR(t, map[string]any{"ok": true}, false))
	ctx := context.Background()

	ev, err := deps.events.CreateEvent(ctx, models.CreateEventRequest{Message: "event"})
	require.NoError(t, err)

	tx, err := deps.worker.client.Tx(ctx)
	require.NoError(t, err)
	created, err := deps.tasks.CreateForRound(ctx, tx, ev.ID, 1, []services.TaskPlan{{Name: "a", TaskType: "query"}})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx, err = deps.worker.client.Tx(ctx)
	require.NoError(t, err)
	a, err := deps.actions.Create(ctx, tx, created[0].ID, ev.ID, "1", "check disk", "query")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx, err = deps.worker.client.Tx(ctx)
	require.NoError(t, err)
	cmd, err := deps.commands.Create(ctx, tx, created[0].ID, ev.ID, "1", services.CommandPlan{
		ActionID:      a.ID,
		Name:          "run playbook",
		CommandType:   command.CommandTypePlaybook,
		CommandEntity: map[string]any{"playbook_id": "disk-check"},
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	id, err := deps.worker.ClaimNext(ctx, "pod-1")
	require.NoError(t, err)
	require.Equal(t, cmd.ID, id)
	require.NoError(t, deps.worker.Process(ctx, id))

	gotAction, err := deps.actions.ByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", string(gotAction.Status))

	gotTask, err := deps.tasks.ByID(ctx, created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, gotTask.Status,
		"the single Action's completion must also close out its parent Task")
}
