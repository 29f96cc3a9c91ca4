// Package manager implements the Manager role worker: it refines a
// round's pending Tasks for one Event into concrete Actions.
package manager

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/codeready-toolchain/deepsoc/ent"
	"github.com/codeready-toolchain/deepsoc/ent/action"
	"github.com/codeready-toolchain/deepsoc/ent/message"
	"github.com/codeready-toolchain/deepsoc/pkg/events"
	"github.com/codeready-toolchain/deepsoc/pkg/llm"
	"github.com/codeready-toolchain/deepsoc/pkg/promptbuilder"
	"github.com/codeready-toolchain/deepsoc/pkg/queue"
	"github.com/codeready-toolchain/deepsoc/pkg/services"
	"gopkg.in/yaml.v3"
)

const responseTypeAction = "ACTION"

// groupSep joins event_id and round_id into the single id string the
// queue.RoleExecutor interface expects; Process re-splits it. Any number
// of workers may claim the same group concurrently since PendingInGroup
// locks individual rows FOR UPDATE SKIP LOCKED, so a collision just
// splits the group's rows between two workers instead of corrupting
// anything.
const groupSep = "|"

// Worker implements queue.RoleExecutor for the Manager role.
type Worker struct {
	client    *ent.Client
	tasks     *services.TaskService
	actions   *services.ActionService
	messages  *services.MessageService
	records   *services.LLMRecordService
	llm       *llm.Client
	prompts   *promptbuilder.Builder
	publisher *events.Publisher
}

// New creates a Manager Worker.
func New(client *ent.Client, llmClient *llm.Client, prompts *promptbuilder.Builder, publisher *events.Publisher) *Worker {
	return &Worker{
		client:    client,
		tasks:     services.NewTaskService(client),
		actions:   services.NewActionService(client),
		messages:  services.NewMessageService(client),
		records:   services.NewLLMRecordService(client),
		llm:       llmClient,
		prompts:   prompts,
		publisher: publisher,
	}
}

// ClaimNext picks any (event_id, round_id) group with pending Tasks.
// There is no per-group claim here; the group stays visible to every
// worker until its last pending Task is refined, and PendingInGroup's
// row-level locking is what keeps two workers from refining the same
// Task twice.
func (w *Worker) ClaimNext(ctx context.Context, podID string) (string, error) {
	groups, err := w.tasks.PendingGroups(ctx)
	if err != nil {
		return "", err
	}
	if len(groups) == 0 {
		return "", queue.ErrNoWorkAvailable
	}
	g := groups[0]
	return g.EventID + groupSep + g.RoundID, nil
}

// Heartbeat is a no-op: Tasks carry no pod_id/last_interaction_at column,
// and a Manager cycle's transaction is short-lived, so a crash mid-cycle
// simply rolls back and leaves the group's Tasks `pending` for the next
// pickup.
func (w *Worker) Heartbeat(ctx context.Context, id string) error {
	return nil
}

type taskEntry struct {
	TaskID   string `yaml:"task_id"`
	Name     string `yaml:"name"`
	TaskType string `yaml:"task_type"`
}

type requestData struct {
	Type    string      `yaml:"type"`
	EventID string      `yaml:"event_id"`
	RoundID string      `yaml:"round_id"`
	Tasks   []taskEntry `yaml:"tasks"`
}

type managerResponse struct {
	ResponseType string `yaml:"response_type"`
	ResponseText string `yaml:"response_text"`
	Actions      []struct {
		TaskID string `yaml:"task_id"`
		Name   string `yaml:"name"`
	} `yaml:"actions"`
}

// Process refines every pending Task of one (event_id, round_id) group
// into Actions, all inside a single transaction per spec: either the
// whole group's refinement commits together, or none of it does.
func (w *Worker) Process(ctx context.Context, id string) error {
	eventID, roundID, ok := strings.Cut(id, groupSep)
	if !ok {
		return fmt.Errorf("malformed manager group id: %q", id)
	}

	tx, err := w.client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	pending, err := w.tasks.PendingInGroup(ctx, tx, eventID, roundID)
	if err != nil {
		return fmt.Errorf("query pending tasks: %w", err)
	}
	if len(pending) == 0 {
		return tx.Commit()
	}

	systemPrompt, err := w.prompts.Build(ctx, promptbuilder.NameManagerRole)
	if err != nil {
		return fmt.Errorf("build manager prompt: %w", err)
	}

	req := requestData{Type: "request_actions_by_tasks", EventID: eventID, RoundID: roundID}
	byID := make(map[string]*ent.Task, len(pending))
	for _, t := range pending {
		req.Tasks = append(req.Tasks, taskEntry{TaskID: t.ID, Name: t.Name, TaskType: string(t.TaskType)})
		byID[t.ID] = t
	}

	body, err := yaml.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal manager request: %w", err)
	}
	userPrompt := "```yaml\n" + string(body) + "```\n"

	if _, err := w.messages.AppendTx(ctx, tx, eventID, message.MessageFromSystem, "llm_request",
		map[string]any{"round_id": roundID, "prompt": userPrompt}, roundID, ""); err != nil {
		return fmt.Errorf("persist llm_request message: %w", err)
	}

	start := time.Now()
	completion, completeErr := w.llm.Complete(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	})
	elapsed := time.Since(start)

	recordIn := services.RecordInput{
		EventID: eventID,
		RoundID: roundID,
		Role:    "_manager",
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
		if _, mErr := w.messages.AppendTx(ctx, tx, eventID, message.MessageFromSystem, "error_internal",
			map[string]any{"error": completeErr.Error()}, roundID, ""); mErr != nil {
			return fmt.Errorf("persist error message: %w", mErr)
		}
		return tx.Commit()
	}

	var resp managerResponse
	if err := llm.ParseYAMLResponse(completion.Content, &resp); err != nil {
		if _, mErr := w.messages.AppendTx(ctx, tx, eventID, message.MessageFromSystem, "error_internal",
			map[string]any{"error": fmt.Sprintf("failed to parse manager response: %v", err)}, roundID, ""); mErr != nil {
			return fmt.Errorf("persist parse-error message: %w", mErr)
		}
		return tx.Commit()
	}

	if _, err := w.messages.AppendTx(ctx, tx, eventID, message.MessageFromManager, "llm_response",
		map[string]any{"response_type": resp.ResponseType, "response_text": resp.ResponseText}, roundID, ""); err != nil {
		return fmt.Errorf("persist llm_response message: %w", err)
	}

	var created []*ent.Action
	if resp.ResponseType == responseTypeAction {
		for _, a := range resp.Actions {
			t, ok := byID[a.TaskID]
			if !ok {
				// The LLM referenced a task_id outside this group, or
				// omitted one; omitted tasks simply stay `pending` and
				// are retried on the next cycle.
				continue
			}
			created_, err := w.actions.Create(ctx, tx, t.ID, eventID, roundID, a.Name, action.ActionType(t.TaskType))
			if err != nil {
				return fmt.Errorf("create action for task %s: %w", t.ID, err)
			}
			if err := w.tasks.SetProcessing(ctx, tx, t.ID); err != nil {
				return fmt.Errorf("set task processing %s: %w", t.ID, err)
			}
			created = append(created, created_)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit group: %w", err)
	}

	if w.publisher != nil {
		for _, a := range created {
			_ = w.publisher.Publish(ctx, events.ChannelActionCreated, events.ActionCreatedPayload{
				BasePayload: events.BasePayload{Type: events.EventTypeActionCreated, EventID: eventID, Timestamp: time.Now().Format(time.RFC3339)},
				ActionID:    a.ID,
				TaskID:      a.TaskID,
				RoundID:     a.RoundID,
			})
		}
	}
	return nil
}
