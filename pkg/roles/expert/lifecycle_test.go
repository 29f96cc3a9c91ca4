package expert

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/codeready-toolchain/deepsoc/ent"
	"github.com/codeready-toolchain/deepsoc/ent/event"
	"github.com/codeready-toolchain/deepsoc/ent/message"
	"github.com/codeready-toolchain/deepsoc/pkg/config"
	"github.com/codeready-toolchain/deepsoc/pkg/llm"
	"github.com/codeready-toolchain/deepsoc/pkg/models"
	"github.com/codeready-toolchain/deepsoc/pkg/promptbuilder"
	"github.com/codeready-toolchain/deepsoc/pkg/services"
	testdb "github.com/codeready-toolchain/deepsoc/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMaxRound = 3

func newFailingTestLLM(t *testing.T) *llm.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	return llm.NewClient(config.LLMConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Model:      "test-model",
		MaxRetries: 0,
	})
}

type lifecycleDeps struct {
	lifecycle *Lifecycle
	client    *ent.Client
	events    *services.EventService
	tasks     *services.TaskService
	summaries *services.SummaryService
	messages  *services.MessageService
	settings  *services.GlobalSettingService
}

func newLifecycleDeps(t *testing.T, llmClient *llm.Client) lifecycleDeps {
	t.Helper()
	dbClient := testdb.NewTestClient(t)
	ctx := context.Background()

	prompts := services.NewPromptService(dbClient.Client)
	require.NoError(t, promptbuilder.SeedDefaults(ctx, prompts))
	builder := promptbuilder.NewBuilder(prompts)

	return lifecycleDeps{
		lifecycle: NewLifecycle(dbClient.DB(), dbClient.Client, llmClient, builder, nil, testMaxRound),
		client:    dbClient.Client,
		events:    services.NewEventService(dbClient.Client),
		tasks:     services.NewTaskService(dbClient.Client),
		summaries: services.NewSummaryService(dbClient.Client),
		messages:  services.NewMessageService(dbClient.Client),
		settings:  services.NewGlobalSettingService(dbClient.Client),
	}
}

func newProcessingEventWithTask(t *testing.T, deps lifecycleDeps, ctx context.Context) (eventID, taskID string) {
	t.Helper()
	ev, err := deps.events.CreateEvent(ctx, models.CreateEventRequest{Message: "event"})
	require.NoError(t, err)
	require.NoError(t, deps.events.SetStatus(ctx, ev.ID, event.StatusProcessing))

	tx, err := deps.client.Tx(ctx)
	require.NoError(t, err)
	created, err := deps.tasks.CreateForRound(ctx, tx, ev.ID, 1, []services.TaskPlan{{Name: "a", TaskType: "query"}})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	return ev.ID, created[0].ID
}

func TestLifecycle_EvaluateProcessing_NotTerminalStaysProcessing(t *testing.T) {
	deps := newLifecycleDeps(t, newFailingTestLLM(t))
	ctx := context.Background()
	evID, _ := newProcessingEventWithTask(t, deps, ctx)

	n, err := deps.lifecycle.evaluateProcessing(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := deps.events.GetEvent(ctx, evID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusProcessing, got.Status)
}

func TestLifecycle_EvaluateProcessing_FailedTaskMovesEventToFailed(t *testing.T) {
	deps := newLifecycleDeps(t, newFailingTestLLM(t))
	ctx := context.Background()
	evID, taskID := newProcessingEventWithTask(t, deps, ctx)

	require.NoError(t, deps.tasks.MarkFailed(ctx, taskID))

	n, err := deps.lifecycle.evaluateProcessing(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := deps.events.GetEvent(ctx, evID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusFailed, got.Status)
}

func TestLifecycle_EvaluateProcessing_CompletedTaskMovesEventToTasksCompleted(t *testing.T) {
	deps := newLifecycleDeps(t, newFailingTestLLM(t))
	ctx := context.Background()
	evID, taskID := newProcessingEventWithTask(t, deps, ctx)

	tx, err := deps.client.Tx(ctx)
	require.NoError(t, err)
	_, err = deps.tasks.SetTerminal(ctx, tx, taskID, false)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	n, err := deps.lifecycle.evaluateProcessing(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := deps.events.GetEvent(ctx, evID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusTasksCompleted, got.Status)
}

func TestLifecycle_AdvanceTasksCompleted_MovesToToBeSummarized(t *testing.T) {
	deps := newLifecycleDeps(t, newFailingTestLLM(t))
	ctx := context.Background()

	ev, err := deps.events.CreateEvent(ctx, models.CreateEventRequest{Message: "event"})
	require.NoError(t, err)
	require.NoError(t, deps.events.SetStatus(ctx, ev.ID, event.StatusTasksCompleted))

	n, err := deps.lifecycle.advanceTasksCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := deps.events.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusToBeSummarized, got.Status)
}

func TestLifecycle_SummarizeRounds_ToBeSummarizedMovesToSummarized(t *testing.T) {
	deps := newLifecycleDeps(t, newTestLLM(t, "```yaml\nsummary: round one found nothing unusual\n```"))
	ctx := context.Background()

	ev, err := deps.events.CreateEvent(ctx, models.CreateEventRequest{Message: "event"})
	require.NoError(t, err)
	require.NoError(t, deps.events.SetStatus(ctx, ev.ID, event.StatusToBeSummarized))

	n, err := deps.lifecycle.summarizeRounds(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := deps.events.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusSummarized, got.Status)

	sums, err := deps.summaries.ByEvent(ctx, ev.ID)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, "round one found nothing unusual", sums[0].EventSummary)
}

func TestLifecycle_SummarizeRounds_ResolvedMovesToCompleted(t *testing.T) {
	deps := newLifecycleDeps(t, newTestLLM(t, "```yaml\nsummary: closed after manual review\n```"))
	ctx := context.Background()

	ev, err := deps.events.CreateEvent(ctx, models.CreateEventRequest{Message: "event"})
	require.NoError(t, err)
	require.NoError(t, deps.events.Resolve(ctx, ev.ID, "handled by on-call"))

	n, err := deps.lifecycle.summarizeRounds(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := deps.events.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusCompleted, got.Status)
}

func TestLifecycle_SummarizeRounds_LLMFailureMovesToSummaryFailed(t *testing.T) {
	deps := newLifecycleDeps(t, newFailingTestLLM(t))
	ctx := context.Background()

	ev, err := deps.events.CreateEvent(ctx, models.CreateEventRequest{Message: "event"})
	require.NoError(t, err)
	require.NoError(t, deps.events.SetStatus(ctx, ev.ID, event.StatusToBeSummarized))

	n, err := deps.lifecycle.summarizeRounds(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := deps.events.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusSummaryFailed, got.Status)
}

func TestLifecycle_AdvanceSummarized_MovesToRoundFinishedBelowMaxRound(t *testing.T) {
	deps := newLifecycleDeps(t, newFailingTestLLM(t))
	ctx := context.Background()

	ev, err := deps.events.CreateEvent(ctx, models.CreateEventRequest{Message: "event"})
	require.NoError(t, err)
	require.NoError(t, deps.events.SetStatus(ctx, ev.ID, event.StatusSummarized))

	n, err := deps.lifecycle.advanceSummarized(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := deps.events.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusRoundFinished, got.Status)
}

func TestLifecycle_AdvanceSummarized_CompletesAtMaxRound(t *testing.T) {
	deps := newLifecycleDeps(t, newFailingTestLLM(t))
	ctx := context.Background()

	ev, err := deps.events.CreateEvent(ctx, models.CreateEventRequest{Message: "event"})
	require.NoError(t, err)
	require.NoError(t, deps.client.Event.UpdateOneID(ev.ID).SetCurrentRound(testMaxRound).Exec(ctx))
	require.NoError(t, deps.events.SetStatus(ctx, ev.ID, event.StatusSummarized))

	n, err := deps.lifecycle.advanceSummarized(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := deps.events.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, testMaxRound, got.CurrentRound)
	assert.Equal(t, event.StatusCompleted, got.Status)
}

func TestLifecycle_AdvanceSummarized_SummaryFailedMovesToFailed(t *testing.T) {
	deps := newLifecycleDeps(t, newFailingTestLLM(t))
	ctx := context.Background()

	ev, err := deps.events.CreateEvent(ctx, models.CreateEventRequest{Message: "event"})
	require.NoError(t, err)
	require.NoError(t, deps.events.SetStatus(ctx, ev.ID, event.StatusSummaryFailed))

	n, err := deps.lifecycle.advanceSummarized(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := deps.events.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusFailed, got.Status)
}

func TestLifecycle_AdvanceRoundFinished_StartsNextRound(t *testing.T) {
	deps := newLifecycleDeps(t, newFailingTestLLM(t))
	ctx := context.Background()

	ev, err := deps.events.CreateEvent(ctx, models.CreateEventRequest{Message: "event"})
	require.NoError(t, err)
	require.NoError(t, deps.events.SetStatus(ctx, ev.ID, event.StatusRoundFinished))

	n, err := deps.lifecycle.advanceRoundFinished(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := deps.events.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentRound)
	assert.Equal(t, event.StatusPending, got.Status)
}

func TestLifecycle_AdvanceRoundFinished_ManualModeParksUntilRequested(t *testing.T) {
	deps := newLifecycleDeps(t, newFailingTestLLM(t))
	ctx := context.Background()

	require.NoError(t, deps.settings.Set(ctx, services.DrivingModeKey, services.DrivingModeManual))

	ev, err := deps.events.CreateEvent(ctx, models.CreateEventRequest{Message: "event"})
	require.NoError(t, err)
	require.NoError(t, deps.events.SetStatus(ctx, ev.ID, event.StatusRoundFinished))

	n, err := deps.lifecycle.advanceRoundFinished(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := deps.events.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusRoundFinished, got.Status)
	assert.Equal(t, 1, got.CurrentRound)

	_, err = deps.messages.Append(ctx, ev.ID, message.MessageFromUser, "round_advance_requested",
		map[string]any{"round_id": 1}, "1", "")
	require.NoError(t, err)

	n, err = deps.lifecycle.advanceRoundFinished(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = deps.events.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentRound)
	assert.Equal(t, event.StatusPending, got.Status)
}

func TestLifecycle_Cycle_DrivesAnEventThroughSeveralSteps(t *testing.T) {
	deps := newLifecycleDeps(t, newTestLLM(t, "```yaml\nsummary: nothing to report\n```"))
	ctx := context.Background()
	evID, taskID := newProcessingEventWithTask(t, deps, ctx)

	tx, err := deps.client.Tx(ctx)
	require.NoError(t, err)
	_, err = deps.tasks.SetTerminal(ctx, tx, taskID, false)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	n, err := deps.lifecycle.cycle(ctx)
	require.NoError(t, err)
	assert.True(t, n > 0)

	got, err := deps.events.GetEvent(ctx, evID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusPending, got.Status)
	assert.Equal(t, 2, got.CurrentRound)
}
