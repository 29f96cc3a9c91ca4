// Package expert implements the two Expert-role workers: the Execution
// summarizer (a horizontally-scalable queue.RoleExecutor) and the
// lifecycle manager (a single consolidated loop, see lifecycle.go).
package expert

import (
	"context"
	"fmt"
	"time"

	"github.com/codeready-toolchain/deepsoc/ent"
	"github.com/codeready-toolchain/deepsoc/ent/message"
	"github.com/codeready-toolchain/deepsoc/pkg/events"
	"github.com/codeready-toolchain/deepsoc/pkg/llm"
	"github.com/codeready-toolchain/deepsoc/pkg/promptbuilder"
	"github.com/codeready-toolchain/deepsoc/pkg/queue"
	"github.com/codeready-toolchain/deepsoc/pkg/services"
	"gopkg.in/yaml.v3"
)

// Summarizer implements queue.RoleExecutor: it claims completed
// Executions and asks the LLM for an objective factual narrative of what
// ran and what it found.
type Summarizer struct {
	client     *ent.Client
	executions *services.ExecutionService
	commands   *services.CommandService
	actions    *services.ActionService
	tasks      *services.TaskService
	messages   *services.MessageService
	records    *services.LLMRecordService
	llm        *llm.Client
	prompts    *promptbuilder.Builder
	publisher  *events.Publisher
}

// NewSummarizer creates a Summarizer.
func NewSummarizer(client *ent.Client, llmClient *llm.Client, prompts *promptbuilder.Builder, publisher *events.Publisher) *Summarizer {
	return &Summarizer{
		client:     client,
		executions: services.NewExecutionService(client),
		commands:   services.NewCommandService(client),
		actions:    services.NewActionService(client),
		tasks:      services.NewTaskService(client),
		messages:   services.NewMessageService(client),
		records:    services.NewLLMRecordService(client),
		llm:        llmClient,
		prompts:    prompts,
		publisher:  publisher,
	}
}

// ClaimNext claims the oldest `completed` Execution, flipping it to the
// transient `summarizing` state.
func (s *Summarizer) ClaimNext(ctx context.Context, podID string) (string, error) {
	e, err := s.executions.ClaimNextCompleted(ctx)
	if err != nil {
		return "", err
	}
	if e == nil {
		return "", queue.ErrNoWorkAvailable
	}
	return e.ID, nil
}

// Heartbeat is a no-op: the `summarizing` claim state carries no
// pod_id/last_interaction_at column, and the claim itself is only held
// for the LLM round-trip, not across a process crash spanning multiple
// poll cycles. A summarizer that dies mid-call leaves its Execution
// stuck `summarizing`; that is caught by ScanAndRecover below rather than
// a heartbeat.
func (s *Summarizer) Heartbeat(ctx context.Context, id string) error {
	return nil
}

type executionContext struct {
	ExecutionID     string `yaml:"execution_id"`
	CommandName     string `yaml:"command_name"`
	ActionName      string `yaml:"action_name"`
	TaskName        string `yaml:"task_name"`
	ExecutionResult string `yaml:"execution_result"`
}

type executionSummaryResponse struct {
	Summary string `yaml:"summary"`
}

// Process builds the LLM prompt for one Execution's ancestry, asks for a
// factual narrative, and writes it back as ai_summary.
func (s *Summarizer) Process(ctx context.Context, id string) error {
	e, err := s.executions.ByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load execution: %w", err)
	}

	c, err := s.commands.ByID(ctx, e.CommandID)
	if err != nil {
		return fmt.Errorf("load command: %w", err)
	}
	a, err := s.actions.ByID(ctx, e.ActionID)
	if err != nil {
		return fmt.Errorf("load action: %w", err)
	}
	t, err := s.tasks.ByID(ctx, e.TaskID)
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}

	systemPrompt, err := s.prompts.Build(ctx, promptbuilder.NameExpertRole)
	if err != nil {
		return fmt.Errorf("build expert prompt: %w", err)
	}

	var executionResult string
	if e.ExecutionResult != nil {
		executionResult = *e.ExecutionResult
	}
	req := executionContext{
		ExecutionID:     e.ID,
		CommandName:     c.Name,
		ActionName:      a.Name,
		TaskName:        t.Name,
		ExecutionResult: executionResult,
	}
	body, err := yaml.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal execution context: %w", err)
	}
	userPrompt := "Summarize objectively what this step did and found. Report facts only, no recommendations.\n```yaml\n" +
		string(body) + "```\n"

	if _, err := s.messages.Append(ctx, e.EventID, message.MessageFromSystem, "expert_llm_request_execution_summary",
		map[string]any{"execution_id": e.ID}, e.RoundID, ""); err != nil {
		return fmt.Errorf("persist llm_request message: %w", err)
	}

	start := time.Now()
	completion, completeErr := s.llm.Complete(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	})
	elapsed := time.Since(start)

	recordIn := services.RecordInput{
		EventID: e.EventID,
		RoundID: e.RoundID,
		Role:    "_expert",
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
	if _, err := s.records.Record(ctx, recordIn); err != nil {
		return fmt.Errorf("record llm invocation: %w", err)
	}

	if completeErr != nil {
		return s.finalize(ctx, e, c, a, "", true)
	}

	var resp executionSummaryResponse
	summary := completion.Content
	if err := llm.ParseYAMLResponse(completion.Content, &resp); err == nil && resp.Summary != "" {
		summary = resp.Summary
	}

	return s.finalize(ctx, e, c, a, summary, false)
}

func (s *Summarizer) finalize(ctx context.Context, e *ent.Execution, c *ent.Command, a *ent.Action, summary string, failed bool) error {
	if err := s.executions.SetSummary(ctx, e.ID, summary, failed); err != nil {
		return fmt.Errorf("set execution summary: %w", err)
	}

	if _, err := s.messages.Append(ctx, e.EventID, message.MessageFromExpert, "execution_summary_generated",
		map[string]any{
			"execution_id": e.ID,
			"command_id":   c.ID,
			"action_id":    a.ID,
			"task_id":      a.TaskID,
			"ai_summary":   summary,
		}, e.RoundID, ""); err != nil {
		return fmt.Errorf("persist execution_summary_generated message: %w", err)
	}

	if s.publisher != nil {
		_ = s.publisher.Publish(ctx, events.ChannelRoundFinished, events.RoundFinishedPayload{
			BasePayload: events.BasePayload{Type: events.EventTypeRoundFinished, EventID: e.EventID, Timestamp: time.Now().Format(time.RFC3339)},
			RoundID:     e.RoundID,
		})
	}
	return nil
}

// ScanAndRecover requeues Executions stuck `summarizing` past threshold
// back to `completed` so another summarizer can retry them; a summarizer
// that crashes between claim and SetSummary otherwise leaves the row
// unreachable by ClaimNextCompleted (which only looks at `completed`
// rows) forever.
func (s *Summarizer) ScanAndRecover(ctx context.Context, threshold time.Time) (int, error) {
	return s.executions.RequeueStaleSummarizing(ctx, time.Since(threshold))
}
