package expert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/codeready-toolchain/deepsoc/ent/execution"
	"github.com/codeready-toolchain/deepsoc/pkg/config"
	"github.com/codeready-toolchain/deepsoc/pkg/llm"
	"github.com/codeready-toolchain/deepsoc/pkg/models"
	"github.com/codeready-toolchain/deepsoc/pkg/promptbuilder"
	"github.com/codeready-toolchain/deepsoc/pkg/queue"
	"github.com/codeready-toolchain/deepsoc/pkg/services"
	testdb "github.com/codeready-toolchain/deepsoc/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLLM(t *testing.T, content string) *llm.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "test-model",
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	t.Cleanup(srv.Close)

	return llm.NewClient(config.LLMConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Model:      "test-model",
		Timeout:    2 * time.Second,
		MaxRetries: 0,
	})
}

type summarizerDeps struct {
	summarizer *Summarizer
	events     *services.EventService
	tasks      *services.TaskService
	actions    *services.ActionService
	commands   *services.CommandService
	executions *services.ExecutionService
}

func newSummarizerDeps(t *testing.T, llmContent string) summarizerDeps {
	t.Helper()
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	prompts := services.NewPromptService(client.Client)
	require.NoError(t, promptbuilder.SeedDefaults(ctx, prompts))
	builder := promptbuilder.NewBuilder(prompts)

	llmClient := newTestLLM(t, llmContent)
	return summarizerDeps{
		summarizer: NewSummarizer(client.Client, llmClient, builder, nil),
		events:     services.NewEventService(client.Client),
		tasks:      services.NewTaskService(client.Client),
		actions:    services.NewActionService(client.Client),
		commands:   services.NewCommandService(client.Client),
		executions: services.NewExecutionService(client.Client),
	}
}

func newCompletedExecution(t *testing.T, deps summarizerDeps, ctx context.Context, result string) (eventID, executionID string) {
	t.Helper()
	ev, err := deps.events.CreateEvent(ctx, models.CreateEventRequest{Message: "event"})
	require.NoError(t, err)

	tx, err := deps.summarizer.client.Tx(ctx)
	require.NoError(t, err)
	created, err := deps.tasks.CreateForRound(ctx, tx, ev.ID, 1, []services.TaskPlan{{Name: "investigate", TaskType: "query"}})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx, err = deps.summarizer.client.Tx(ctx)
	require.NoError(t, err)
	a, err := deps.actions.Create(ctx, tx, created[0].ID, ev.ID, "1", "check disk", "query")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx, err = deps.summarizer.client.Tx(ctx)
	require.NoError(t, err)
	c, err := deps.commands.Create(ctx, tx, created[0].ID, ev.ID, "1", services.CommandPlan{
		ActionID:      a.ID,
		Name:          "run playbook",
		CommandType:   "playbook",
		CommandEntity: map[string]any{"playbook_id": "disk-check"},
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	e, err := deps.executions.Create(ctx, c.ID, a.ID, created[0].ID, ev.ID, "1", execution.StatusCompleted, result)
	require.NoError(t, err)

	return ev.ID, e.ID
}

func TestSummarizer_ClaimNext_NoWork(t *testing.T) {
	deps := newSummarizerDeps(t, "summary: nothing to report")
	ctx := context.Background()

	_, err := deps.summarizer.ClaimNext(ctx, "pod-1")
	assert.ErrorIs(t, err, queue.ErrNoWorkAvailable)
}

func TestSummarizer_ProcessWritesSummary(t *testing.T) {
	deps := newSummarizerDeps(t, "```yaml\nsummary: disk usage is at 42 percent\n```")
	ctx := context.Background()

	_, executionID := newCompletedExecution(t, deps, ctx, "disk_usage: 42%")

	id, err := deps.summarizer.ClaimNext(ctx, "pod-1")
	require.NoError(t, err)
	require.Equal(t, executionID, id)

	require.NoError(t, deps.summarizer.Process(ctx, id))

	got, err := deps.executions.ByID(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusSummarized, got.Status)
	require.NotNil(t, got.AiSummary)
	assert.Equal(t, "disk usage is at 42 percent", *got.AiSummary)
}

func TestSummarizer_ProcessFallsBackToRawContentWithoutYAML(t *testing.T) {
	deps := newSummarizerDeps(t, "the disk is fine, no action needed")
	ctx := context.Background()

	_, executionID := newCompletedExecution(t, deps, ctx, "disk_usage: 10%")

	id, err := deps.summarizer.ClaimNext(ctx, "pod-1")
	require.NoError(t, err)

	require.NoError(t, deps.summarizer.Process(ctx, id))

	got, err := deps.executions.ByID(ctx, executionID)
	require.NoError(t, err)
	require.NotNil(t, got.AiSummary)
	assert.Equal(t, "the disk is fine, no action needed", *got.AiSummary)
}

func TestSummarizer_Heartbeat_IsNoOp(t *testing.T) {
	deps := newSummarizerDeps(t, "summary: ok")
	require.NoError(t, deps.summarizer.Heartbeat(context.Background(), "anything"))
}

func TestSummarizer_ScanAndRecoverRequeuesStaleSummarizing(t *testing.T) {
	deps := newSummarizerDeps(t, "summary: ok")
	ctx := context.Background()

	_, executionID := newCompletedExecution(t, deps, ctx, "disk_usage: 5%")

	id, err := deps.summarizer.ClaimNext(ctx, "pod-1")
	require.NoError(t, err)
	require.Equal(t, executionID, id)

	n, err := deps.summarizer.ScanAndRecover(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := deps.executions.ByID(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusCompleted, got.Status)
}
