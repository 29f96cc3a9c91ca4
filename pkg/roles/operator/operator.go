// Package operator implements the Operator role worker: it translates a
// round's pending Actions for one Event into executable Commands, either
// a SOAR playbook invocation or a manual handoff.
package operator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/codeready-toolchain/deepsoc/ent"
	"github.com/codeready-toolchain/deepsoc/ent/command"
	"github.com/codeready-toolchain/deepsoc/ent/message"
	"github.com/codeready-toolchain/deepsoc/pkg/events"
	"github.com/codeready-toolchain/deepsoc/pkg/llm"
	"github.com/codeready-toolchain/deepsoc/pkg/promptbuilder"
	"github.com/codeready-toolchain/deepsoc/pkg/queue"
	"github.com/codeready-toolchain/deepsoc/pkg/services"
	"gopkg.in/yaml.v3"
)

const responseTypeCommand = "COMMAND"

// groupSep matches the manager package's group-id encoding; the two are
// independent but identical in shape since both process (event_id,
// round_id) groups through the same single-id RoleExecutor contract.
const groupSep = "|"

// Worker implements queue.RoleExecutor for the Operator role.
type Worker struct {
	client    *ent.Client
	actions   *services.ActionService
	commands  *services.CommandService
	messages  *services.MessageService
	records   *services.LLMRecordService
	llm       *llm.Client
	prompts   *promptbuilder.Builder
	publisher *events.Publisher
}

// New creates an Operator Worker.
func New(client *ent.Client, llmClient *llm.Client, prompts *promptbuilder.Builder, publisher *events.Publisher) *Worker {
	return &Worker{
		client:    client,
		actions:   services.NewActionService(client),
		commands:  services.NewCommandService(client),
		messages:  services.NewMessageService(client),
		records:   services.NewLLMRecordService(client),
		llm:       llmClient,
		prompts:   prompts,
		publisher: publisher,
	}
}

// ClaimNext picks any (event_id, round_id) group with pending Actions.
func (w *Worker) ClaimNext(ctx context.Context, podID string) (string, error) {
	groups, err := w.actions.PendingGroups(ctx)
	if err != nil {
		return "", err
	}
	if len(groups) == 0 {
		return "", queue.ErrNoWorkAvailable
	}
	g := groups[0]
	return g.EventID + groupSep + g.RoundID, nil
}

// Heartbeat is a no-op; see manager.Worker.Heartbeat for the rationale,
// which applies identically to Actions.
func (w *Worker) Heartbeat(ctx context.Context, id string) error {
	return nil
}

type actionEntry struct {
	ActionID   string `yaml:"action_id"`
	Name       string `yaml:"name"`
	ActionType string `yaml:"action_type"`
}

type requestData struct {
	Type    string        `yaml:"type"`
	EventID string        `yaml:"event_id"`
	RoundID string        `yaml:"round_id"`
	Actions []actionEntry `yaml:"actions"`
}

type operatorResponse struct {
	ResponseType string `yaml:"response_type"`
	ResponseText string `yaml:"response_text"`
	Commands     []struct {
		ActionID      string         `yaml:"action_id"`
		Name          string         `yaml:"name"`
		CommandType   string         `yaml:"command_type"`
		PlaybookID    string         `yaml:"playbook_id"`
		CommandParams map[string]any `yaml:"command_params"`
	} `yaml:"commands"`
}

// Process refines every pending Action of one (event_id, round_id) group
// into Commands inside a single transaction.
func (w *Worker) Process(ctx context.Context, id string) error {
	eventID, roundID, ok := strings.Cut(id, groupSep)
	if !ok {
		return fmt.Errorf("malformed operator group id: %q", id)
	}

	tx, err := w.client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	pending, err := w.actions.PendingInGroup(ctx, tx, eventID, roundID)
	if err != nil {
		return fmt.Errorf("query pending actions: %w", err)
	}
	if len(pending) == 0 {
		return tx.Commit()
	}

	systemPrompt, err := w.prompts.Build(ctx, promptbuilder.NameOperatorRole)
	if err != nil {
		return fmt.Errorf("build operator prompt: %w", err)
	}

	req := requestData{Type: "request_commands_by_actions", EventID: eventID, RoundID: roundID}
	byID := make(map[string]*ent.Action, len(pending))
	for _, a := range pending {
		req.Actions = append(req.Actions, actionEntry{ActionID: a.ID, Name: a.Name, ActionType: string(a.ActionType)})
		byID[a.ID] = a
	}

	body, err := yaml.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal operator request: %w", err)
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
		Role:    "_operator",
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

	var resp operatorResponse
	if err := llm.ParseYAMLResponse(completion.Content, &resp); err != nil {
		if _, mErr := w.messages.AppendTx(ctx, tx, eventID, message.MessageFromSystem, "error_internal",
			map[string]any{"error": fmt.Sprintf("failed to parse operator response: %v", err)}, roundID, ""); mErr != nil {
			return fmt.Errorf("persist parse-error message: %w", mErr)
		}
		return tx.Commit()
	}

	if _, err := w.messages.AppendTx(ctx, tx, eventID, message.MessageFromOperator, "llm_response",
		map[string]any{"response_type": resp.ResponseType, "response_text": resp.ResponseText}, roundID, ""); err != nil {
		return fmt.Errorf("persist llm_response message: %w", err)
	}

	var created []*ent.Command
	if resp.ResponseType == responseTypeCommand {
		for _, c := range resp.Commands {
			a, ok := byID[c.ActionID]
			if !ok {
				continue
			}
			plan := services.CommandPlan{
				ActionID:      a.ID,
				Name:          c.Name,
				CommandType:   command.CommandType(c.CommandType),
				CommandParams: c.CommandParams,
			}
			if c.PlaybookID != "" {
				plan.CommandEntity = map[string]any{"playbook_id": c.PlaybookID}
			}
			cmd, err := w.commands.Create(ctx, tx, a.TaskID, eventID, roundID, plan)
			if err != nil {
				return fmt.Errorf("create command for action %s: %w", a.ID, err)
			}
			if err := w.actions.SetProcessing(ctx, tx, a.ID); err != nil {
				return fmt.Errorf("set action processing %s: %w", a.ID, err)
			}
			created = append(created, cmd)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit group: %w", err)
	}

	if w.publisher != nil {
		for _, c := range created {
			_ = w.publisher.Publish(ctx, events.ChannelCommandCreated, events.CommandCreatedPayload{
				BasePayload: events.BasePayload{Type: events.EventTypeCommandCreated, EventID: eventID, Timestamp: time.Now().Format(time.RFC3339)},
				CommandID:   c.ID,
				ActionID:    c.ActionID,
				RoundID:     c.RoundID,
			})
		}
	}
	return nil
}
