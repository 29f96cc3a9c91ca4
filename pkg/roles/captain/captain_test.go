package captain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/codeready-toolchain/deepsoc/ent/event"
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

func newTestWorker(t *testing.T, llmContent string) (*Worker, *services.EventService) {
	t.Helper()
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	prompts := services.NewPromptService(client.Client)
	require.NoError(t, promptbuilder.SeedDefaults(ctx, prompts))
	builder := promptbuilder.NewBuilder(prompts)

	llmClient := newTestLLM(t, llmContent)
	w := New(client.Client, llmClient, builder, nil)
	return w, services.NewEventService(client.Client)
}

func TestWorker_ClaimNextAndHeartbeat(t *testing.T) {
	w, events := newTestWorker(t, "response_type: ROGER")
	ctx := context.Background()

	_, err := w.ClaimNext(ctx, "pod-1")
	assert.ErrorIs(t, err, queue.ErrNoWorkAvailable)

	ev, err := events.CreateEvent(ctx, models.CreateEventRequest{Message: "brute force attempt"})
	require.NoError(t, err)

	id, err := w.ClaimNext(ctx, "pod-1")
	require.NoError(t, err)
	assert.Equal(t, ev.ID, id)

	require.NoError(t, w.Heartbeat(ctx, id))
}

func TestWorker_ProcessTaskResponse(t *testing.T) {
	w, events := newTestWorker(t, "```yaml\nresponse_type: TASK\nevent_name: brute force login\ntasks:\n  - name: check source ip\n    task_type: query\ncomment: investigate\n```")
	ctx := context.Background()

	ev, err := events.CreateEvent(ctx, models.CreateEventRequest{Message: "many failed logins"})
	require.NoError(t, err)

	id, err := w.ClaimNext(ctx, "pod-1")
	require.NoError(t, err)
	require.Equal(t, ev.ID, id)

	require.NoError(t, w.Process(ctx, id))

	got, err := events.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "brute force login", got.Name)
	assert.Equal(t, event.StatusProcessing, got.Status)
}

func TestWorker_ProcessMissionComplete(t *testing.T) {
	w, events := newTestWorker(t, "response_type: MISSION_COMPLETE")
	ctx := context.Background()

	ev, err := events.CreateEvent(ctx, models.CreateEventRequest{Message: "resolved itself"})
	require.NoError(t, err)

	_, err = w.ClaimNext(ctx, "pod-1")
	require.NoError(t, err)

	require.NoError(t, w.Process(ctx, ev.ID))

	got, err := events.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusCompleted, got.Status)
}

func TestWorker_ProcessRogerResponse(t *testing.T) {
	w, events := newTestWorker(t, "response_type: ROGER\nresponse_text: need more detail")
	ctx := context.Background()

	ev, err := events.CreateEvent(ctx, models.CreateEventRequest{Message: "ambiguous alert"})
	require.NoError(t, err)

	_, err = w.ClaimNext(ctx, "pod-1")
	require.NoError(t, err)

	require.NoError(t, w.Process(ctx, ev.ID))

	got, err := events.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusErrorFromLlm, got.Status)
}

func TestWorker_ProcessUnexpectedResponseType(t *testing.T) {
	w, events := newTestWorker(t, "response_type: NONSENSE")
	ctx := context.Background()

	ev, err := events.CreateEvent(ctx, models.CreateEventRequest{Message: "weird"})
	require.NoError(t, err)

	_, err = w.ClaimNext(ctx, "pod-1")
	require.NoError(t, err)

	require.NoError(t, w.Process(ctx, ev.ID))

	got, err := events.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusErrorProcessing, got.Status)
}

func TestWorker_ScanAndRecover(t *testing.T) {
	w, events := newTestWorker(t, "response_type: ROGER")
	ctx := context.Background()

	ev, err := events.CreateEvent(ctx, models.CreateEventRequest{Message: "stuck"})
	require.NoError(t, err)

	_, err = w.ClaimNext(ctx, "pod-dead")
	require.NoError(t, err)

	n, err := w.ScanAndRecover(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := events.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusPending, got.Status)
}
