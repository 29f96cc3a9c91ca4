// Package captain implements the Captain role worker: it triages pending
// Events, asks the LLM how to proceed, and either decomposes the event
// into Tasks, closes it out, or flags it for manual attention.
package captain

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/codeready-toolchain/deepsoc/ent"
	"github.com/codeready-toolchain/deepsoc/ent/event"
	"github.com/codeready-toolchain/deepsoc/ent/message"
	"github.com/codeready-toolchain/deepsoc/ent/task"
	"github.com/codeready-toolchain/deepsoc/pkg/events"
	"github.com/codeready-toolchain/deepsoc/pkg/llm"
	"github.com/codeready-toolchain/deepsoc/pkg/promptbuilder"
	"github.com/codeready-toolchain/deepsoc/pkg/queue"
	"github.com/codeready-toolchain/deepsoc/pkg/services"
	"gopkg.in/yaml.v3"
)

// Response type tokens the Captain LLM prompt is contracted to reply with.
const (
	responseTypeTask            = "TASK"
	responseTypeMissionComplete = "MISSION_COMPLETE"
	responseTypeRoger           = "ROGER"
)

// Worker implements queue.RoleExecutor and queue.OrphanScanner for the
// Captain role.
type Worker struct {
	client    *ent.Client
	events    *services.EventService
	tasks     *services.TaskService
	summaries *services.SummaryService
	messages  *services.MessageService
	records   *services.LLMRecordService
	llm       *llm.Client
	prompts   *promptbuilder.Builder
	publisher *events.Publisher
}

// New creates a Captain Worker.
func New(client *ent.Client, llmClient *llm.Client, prompts *promptbuilder.Builder, publisher *events.Publisher) *Worker {
	return &Worker{
		client:    client,
		events:    services.NewEventService(client),
		tasks:     services.NewTaskService(client),
		summaries: services.NewSummaryService(client),
		messages:  services.NewMessageService(client),
		records:   services.NewLLMRecordService(client),
		llm:       llmClient,
		prompts:   prompts,
		publisher: publisher,
	}
}

// ClaimNext claims the oldest pending Event.
func (w *Worker) ClaimNext(ctx context.Context, podID string) (string, error) {
	ev, err := w.events.ClaimNextPending(ctx, podID)
	if err != nil {
		return "", err
	}
	if ev == nil {
		return "", queue.ErrNoWorkAvailable
	}
	return ev.ID, nil
}

// Heartbeat refreshes the claimed Event's liveness marker.
func (w *Worker) Heartbeat(ctx context.Context, id string) error {
	return w.events.Heartbeat(ctx, id)
}

// ScanAndRecover requeues Events whose Captain pod went quiet mid-pickup.
func (w *Worker) ScanAndRecover(ctx context.Context, threshold time.Time) (int, error) {
	orphaned, err := w.events.FindOrphaned(ctx, time.Since(threshold))
	if err != nil {
		return 0, err
	}
	for _, ev := range orphaned {
		if err := w.events.Requeue(ctx, ev.ID); err != nil {
			return 0, fmt.Errorf("requeue orphaned event %s: %w", ev.ID, err)
		}
	}
	return len(orphaned), nil
}

// requestData is the YAML payload sent to the Captain LLM, grounded on the
// original captain service's request_data + history_tasks shape.
type requestData struct {
	Type         string        `yaml:"type"`
	ReqID        string        `yaml:"req_id"`
	ResID        string        `yaml:"res_id"`
	EventID      string        `yaml:"event_id"`
	RoundID      int           `yaml:"round_id"`
	EventName    string        `yaml:"event_name"`
	Message      string        `yaml:"message"`
	Context      string        `yaml:"context,omitempty"`
	Source       string        `yaml:"source,omitempty"`
	Severity     string        `yaml:"severity,omitempty"`
	CreatedAt    string        `yaml:"created_at"`
	HistoryTasks []historyTask `yaml:"history_tasks"`
}

type historyTask struct {
	TaskID    string `yaml:"task_id"`
	Name      string `yaml:"name"`
	TaskType  string `yaml:"task_type"`
	Status    string `yaml:"status"`
	CreatedAt string `yaml:"created_at"`
	UpdatedAt string `yaml:"updated_at"`
}

// captainResponse mirrors models.CaptainResponse but accepts the wider set
// of fields the LLM may echo back; only response_type and its associated
// fields drive behavior.
type captainResponse struct {
	ResponseType string `yaml:"response_type"`
	EventName    string `yaml:"event_name"`
	ResponseText string `yaml:"response_text"`
	Tasks        []struct {
		Name     string `yaml:"name"`
		TaskType string `yaml:"task_type"`
	} `yaml:"tasks"`
}

// Process runs one Captain pickup: build the request, call the LLM,
// interpret response_type, and commit whatever follows.
func (w *Worker) Process(ctx context.Context, id string) error {
	ev, err := w.events.GetEvent(ctx, id)
	if err != nil {
		return fmt.Errorf("load event: %w", err)
	}

	history, err := w.tasks.ByEvent(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("load task history: %w", err)
	}

	var previousSummary string
	if ev.CurrentRound > 1 {
		sm, err := w.summaries.Previous(ctx, ev.ID, strconv.Itoa(ev.CurrentRound-1))
		if err != nil {
			return fmt.Errorf("load previous summary: %w", err)
		}
		if sm != nil {
			previousSummary = sm.EventSummary
		}
	}

	systemPrompt, err := w.prompts.Build(ctx, promptbuilder.NameCaptainRole)
	if err != nil {
		return fmt.Errorf("build captain prompt: %w", err)
	}

	req := requestData{
		Type:      "request_tasks_by_event",
		ReqID:     ev.ID,
		ResID:     ev.ID,
		EventID:   ev.ID,
		RoundID:   ev.CurrentRound,
		EventName: ev.Name,
		Message:   ev.Message,
		Context:   ev.Context,
		Source:    ev.Source,
		Severity:  ev.Severity,
		CreatedAt: ev.CreatedAt.Format(time.RFC3339),
	}
	for _, t := range history {
		req.HistoryTasks = append(req.HistoryTasks, historyTask{
			TaskID:    t.ID,
			Name:      t.Name,
			TaskType:  string(t.TaskType),
			Status:    string(t.Status),
			CreatedAt: t.CreatedAt.Format(time.RFC3339),
			UpdatedAt: t.UpdatedAt.Format(time.RFC3339),
		})
	}

	body, err := yaml.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal captain request: %w", err)
	}

	userPrompt := "```yaml\n" + string(body) + "```\n"
	if previousSummary != "" {
		userPrompt = previousSummary + "\n\n" + userPrompt
	}

	if _, err := w.messages.Append(ctx, ev.ID, message.MessageFromSystem, "llm_request",
		map[string]any{"round_id": ev.CurrentRound, "prompt": userPrompt}, strconv.Itoa(ev.CurrentRound), ""); err != nil {
		return fmt.Errorf("persist llm_request message: %w", err)
	}

	start := time.Now()
	completion, completeErr := w.llm.Complete(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}, llm.CompleteOptions{LongText: len(history) > 50})
	elapsed := time.Since(start)

	recordIn := services.RecordInput{
		EventID: ev.ID,
		RoundID: strconv.Itoa(ev.CurrentRound),
		Role:    "_captain",
		RequestMessages: []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		DurationMS: int(elapsed.Milliseconds()),
	}
	if completeErr != nil {
		recordIn.ErrorMessage = completeErr.Error()
	} else {
		recordIn.Model = completion.Model
		recordIn.Response = completion.Content
		recordIn.PromptTokens = completion.PromptTokens
		recordIn.CompletionTokens = completion.CompletionTokens
		recordIn.TotalTokens = completion.TotalTokens
		recordIn.CachedTokens = completion.CachedTokens
	}
	if _, err := w.records.Record(ctx, recordIn); err != nil {
		return fmt.Errorf("record llm invocation: %w", err)
	}

	if completeErr != nil {
		return w.fail(ctx, ev, fmt.Sprintf("llm request failed: %v", completeErr))
	}

	var resp captainResponse
	if err := llm.ParseYAMLResponse(completion.Content, &resp); err != nil {
		return w.fail(ctx, ev, fmt.Sprintf("failed to parse captain response: %v", err))
	}

	if _, err := w.messages.Append(ctx, ev.ID, message.MessageFromCaptain, "llm_response",
		map[string]any{"response_type": resp.ResponseType, "response_text": resp.ResponseText}, strconv.Itoa(ev.CurrentRound), ""); err != nil {
		return fmt.Errorf("persist llm_response message: %w", err)
	}

	switch resp.ResponseType {
	case responseTypeTask:
		return w.handleTask(ctx, ev, resp)
	case responseTypeMissionComplete:
		if err := w.events.SetStatus(ctx, ev.ID, event.StatusCompleted); err != nil {
			return fmt.Errorf("complete event: %w", err)
		}
		_, err := w.messages.Append(ctx, ev.ID, message.MessageFromSystem, "event_completed_by_captain",
			map[string]any{"event_id": ev.ID}, strconv.Itoa(ev.CurrentRound), "")
		return err
	case responseTypeRoger:
		if err := w.events.SetStatus(ctx, ev.ID, event.StatusErrorFromLlm); err != nil {
			return fmt.Errorf("set roger status: %w", err)
		}
		_, err := w.messages.Append(ctx, ev.ID, message.MessageFromCaptain, "llm_roger_response",
			map[string]any{"response_text": resp.ResponseText}, strconv.Itoa(ev.CurrentRound), "")
		return err
	default:
		return w.fail(ctx, ev, fmt.Sprintf("unexpected captain response_type: %q", resp.ResponseType))
	}
}

func (w *Worker) handleTask(ctx context.Context, ev *ent.Event, resp captainResponse) error {
	if resp.EventName != "" && resp.EventName != ev.Name {
		if err := w.events.Rename(ctx, ev.ID, resp.EventName); err != nil {
			return fmt.Errorf("rename event: %w", err)
		}
	}

	plans := make([]services.TaskPlan, 0, len(resp.Tasks))
	for _, t := range resp.Tasks {
		plans = append(plans, services.TaskPlan{Name: t.Name, TaskType: task.TaskType(t.TaskType)})
	}

	tx, err := w.client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created, err := w.tasks.CreateForRound(ctx, tx, ev.ID, ev.CurrentRound, plans)
	if err != nil {
		return fmt.Errorf("create tasks: %w", err)
	}

	if _, err := w.messages.AppendTx(ctx, tx, ev.ID, message.MessageFromCaptain, "tasks_created",
		map[string]any{"count": len(created)}, strconv.Itoa(ev.CurrentRound), ""); err != nil {
		return fmt.Errorf("persist tasks_created message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tasks: %w", err)
	}

	if w.publisher != nil {
		for _, t := range created {
			_ = w.publisher.Publish(ctx, events.ChannelTaskCreated, events.TaskCreatedPayload{
				BasePayload: events.BasePayload{Type: events.EventTypeTaskCreated, EventID: ev.ID, Timestamp: time.Now().Format(time.RFC3339)},
				TaskID:      t.ID,
				RoundID:     t.RoundID,
			})
		}
	}
	return nil
}

func (w *Worker) fail(ctx context.Context, ev *ent.Event, reason string) error {
	if err := w.events.SetStatus(ctx, ev.ID, event.StatusErrorProcessing); err != nil {
		return fmt.Errorf("set error_processing: %w", err)
	}
	_, err := w.messages.Append(ctx, ev.ID, message.MessageFromSystem, "error_internal",
		map[string]any{"error": reason}, strconv.Itoa(ev.CurrentRound), "")
	return err
}
