package expert

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/codeready-toolchain/deepsoc/ent"
	"github.com/codeready-toolchain/deepsoc/ent/event"
	"github.com/codeready-toolchain/deepsoc/ent/message"
	"github.com/codeready-toolchain/deepsoc/pkg/events"
	"github.com/codeready-toolchain/deepsoc/pkg/llm"
	"github.com/codeready-toolchain/deepsoc/pkg/models"
	"github.com/codeready-toolchain/deepsoc/pkg/promptbuilder"
	"github.com/codeready-toolchain/deepsoc/pkg/services"
	"gopkg.in/yaml.v3"
)

// lifecycleLockKey is the pg_advisory_lock key guarding the single
// Lifecycle instance invariant: any number of Execution summarizers may
// run concurrently, but exactly one process may run the round-evaluation
// cycle below at a time, since its five steps are a pipeline where a
// second concurrent runner would just duplicate work, not corrupt it,
// but would also double every LLM call.
const lifecycleLockKey = 487_901_221

// messageTypeRoundAdvanceRequested is the Message type an operator posts
// (via the API's round-advance endpoint) to unpark a `round_finished`
// Event while driving_mode is "manual".
const messageTypeRoundAdvanceRequested = "round_advance_requested"

// Lifecycle implements the Expert subsystem's consolidated worker loop:
// each cycle re-evaluates every Event against the five transitions of
// the round life cycle, in order, then sleeps on a backoff that grows
// while idle and resets the moment any step finds work.
type Lifecycle struct {
	db         *stdsql.DB
	events     *services.EventService
	tasks      *services.TaskService
	executions *services.ExecutionService
	summaries  *services.SummaryService
	messages   *services.MessageService
	records    *services.LLMRecordService
	settings   *services.GlobalSettingService
	llm        *llm.Client
	prompts    *promptbuilder.Builder
	publisher  *events.Publisher
	maxRound   int

	minInterval time.Duration
	maxInterval time.Duration
}

// NewLifecycle creates a Lifecycle manager.
func NewLifecycle(db *stdsql.DB, client *ent.Client, llmClient *llm.Client, prompts *promptbuilder.Builder, publisher *events.Publisher, maxRound int) *Lifecycle {
	return &Lifecycle{
		db:          db,
		events:      services.NewEventService(client),
		tasks:       services.NewTaskService(client),
		executions:  services.NewExecutionService(client),
		summaries:   services.NewSummaryService(client),
		messages:    services.NewMessageService(client),
		records:     services.NewLLMRecordService(client),
		settings:    services.NewGlobalSettingService(client),
		llm:         llmClient,
		prompts:     prompts,
		publisher:   publisher,
		maxRound:    maxRound,
		minInterval: 5 * time.Second,
		maxInterval: 10 * time.Second,
	}
}

// Run blocks until ctx is cancelled, first acquiring the session-level
// advisory lock that enforces the single-instance rule. If another
// process already holds it, Run retries acquiring it on minInterval
// rather than erroring out, so a second `expert` pod started for
// redundancy just waits its turn instead of crash-looping.
func (l *Lifecycle) Run(ctx context.Context) error {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire dedicated connection: %w", err)
	}
	defer conn.Close()

	for {
		var locked bool
		if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", lifecycleLockKey).Scan(&locked); err != nil {
			return fmt.Errorf("acquire lifecycle lock: %w", err)
		}
		if locked {
			break
		}
		slog.Info("lifecycle manager lock held elsewhere, waiting", "key", lifecycleLockKey)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.minInterval):
		}
	}
	defer conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", lifecycleLockKey)

	interval := l.minInterval
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := l.cycle(ctx)
		if err != nil {
			slog.Error("lifecycle cycle failed", "error", err)
		}

		if n > 0 {
			interval = l.minInterval
		} else {
			interval *= 2
			if interval > l.maxInterval {
				interval = l.maxInterval
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// Cycle runs the five round-evaluation steps once and returns how many
// Events moved, without acquiring the single-instance advisory lock Run
// holds for its whole loop. Exported for callers outside the package (the
// end-to-end test) that want a single deterministic pass instead of Run's
// backoff loop.
func (l *Lifecycle) Cycle(ctx context.Context) (int, error) {
	return l.cycle(ctx)
}

// cycle performs the five round-evaluation steps once, returning how many
// Events it moved, so Run can decide whether to reset its backoff.
func (l *Lifecycle) cycle(ctx context.Context) (int, error) {
	moved := 0

	n, err := l.evaluateProcessing(ctx)
	if err != nil {
		return moved, fmt.Errorf("step 1 (processing): %w", err)
	}
	moved += n

	n, err = l.advanceTasksCompleted(ctx)
	if err != nil {
		return moved, fmt.Errorf("step 2 (tasks_completed): %w", err)
	}
	moved += n

	n, err = l.summarizeRounds(ctx)
	if err != nil {
		return moved, fmt.Errorf("step 3 (to_be_summarized/resolved): %w", err)
	}
	moved += n

	n, err = l.advanceSummarized(ctx)
	if err != nil {
		return moved, fmt.Errorf("step 4 (summarized/summary_failed): %w", err)
	}
	moved += n

	n, err = l.advanceRoundFinished(ctx)
	if err != nil {
		return moved, fmt.Errorf("step 5 (round_finished): %w", err)
	}
	moved += n

	return moved, nil
}

// evaluateProcessing is step 1: for every `processing` Event, check
// whether its current round's Tasks and Executions have all reached a
// terminal state, and if so move it to `tasks_completed` or `failed`.
func (l *Lifecycle) evaluateProcessing(ctx context.Context) (int, error) {
	evs, err := l.events.EventsInStatus(ctx, event.StatusProcessing)
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, ev := range evs {
		roundID := strconv.Itoa(ev.CurrentRound)

		tasksTerminal, tasksFailed, err := l.tasks.AllTerminal(ctx, ev.ID, roundID)
		if err != nil {
			return moved, fmt.Errorf("check tasks for event %s: %w", ev.ID, err)
		}
		if !tasksTerminal {
			continue
		}

		executionsFinal, executionsFailed, err := l.executions.ByEventRoundFinal(ctx, ev.ID, roundID)
		if err != nil {
			return moved, fmt.Errorf("check executions for event %s: %w", ev.ID, err)
		}
		if !executionsFinal {
			continue
		}

		next := event.StatusTasksCompleted
		if tasksFailed || executionsFailed {
			next = event.StatusFailed
		}
		if err := l.events.SetStatus(ctx, ev.ID, next); err != nil {
			return moved, fmt.Errorf("set event %s status: %w", ev.ID, err)
		}
		moved++
	}
	return moved, nil
}

// advanceTasksCompleted is step 2: `tasks_completed` events move straight
// to `to_be_summarized` with no LLM call.
func (l *Lifecycle) advanceTasksCompleted(ctx context.Context) (int, error) {
	evs, err := l.events.EventsInStatus(ctx, event.StatusTasksCompleted)
	if err != nil {
		return 0, err
	}
	for _, ev := range evs {
		if err := l.events.SetStatus(ctx, ev.ID, event.StatusToBeSummarized); err != nil {
			return 0, fmt.Errorf("advance event %s to to_be_summarized: %w", ev.ID, err)
		}
	}
	return len(evs), nil
}

type summaryContext struct {
	EventID         string   `yaml:"event_id"`
	EventName       string   `yaml:"event_name"`
	RoundID         string   `yaml:"round_id"`
	PreviousSummary string   `yaml:"previous_summary,omitempty"`
	TaskNames       []string `yaml:"task_names"`
}

// summarizeRounds is step 3: every `to_be_summarized` or `resolved` Event
// gets an LLM-generated round Summary. `to_be_summarized` events become
// `summarized` (continuing through step 4's round/completion logic);
// `resolved` events are a terminal manual intervention, so their summary
// is the last one ever written for the Event and it moves straight to
// `completed` rather than back through round_finished.
func (l *Lifecycle) summarizeRounds(ctx context.Context) (int, error) {
	evs, err := l.events.EventsInStatus(ctx, event.StatusToBeSummarized, event.StatusResolved)
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, ev := range evs {
		wasResolved := ev.Status == event.StatusResolved
		if err := l.summarizeOne(ctx, ev, wasResolved); err != nil {
			slog.Error("summarize round failed", "event_id", ev.ID, "error", err)
			if sErr := l.events.SetStatus(ctx, ev.ID, event.StatusSummaryFailed); sErr != nil {
				return moved, fmt.Errorf("set event %s summary_failed: %w", ev.ID, sErr)
			}
			moved++
			continue
		}
		moved++
	}
	return moved, nil
}

func (l *Lifecycle) summarizeOne(ctx context.Context, ev *ent.Event, wasResolved bool) error {
	roundID := strconv.Itoa(ev.CurrentRound)

	tasks, err := l.tasks.ByEventRound(ctx, ev.ID, roundID)
	if err != nil {
		return fmt.Errorf("load round tasks: %w", err)
	}
	names := make([]string, 0, len(tasks))
	for _, t := range tasks {
		names = append(names, t.Name)
	}

	var previous string
	if ev.CurrentRound > 1 {
		prev, err := l.summaries.Previous(ctx, ev.ID, strconv.Itoa(ev.CurrentRound-1))
		if err != nil {
			return fmt.Errorf("load previous summary: %w", err)
		}
		if prev != nil {
			previous = prev.EventSummary
		}
	}

	systemPrompt, err := l.prompts.Build(ctx, promptbuilder.NameExpertRole)
	if err != nil {
		return fmt.Errorf("build expert prompt: %w", err)
	}

	req := summaryContext{
		EventID:         ev.ID,
		EventName:       ev.Name,
		RoundID:         roundID,
		PreviousSummary: previous,
		TaskNames:       names,
	}
	body, err := yaml.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal summary context: %w", err)
	}

	instructions := "Summarize this round's work for the team. Respond in YAML with `summary` and optionally `suggestion`.\n"
	if wasResolved {
		instructions = "This event has been manually resolved. Write the final closing summary. Respond in YAML with `summary` and optionally `suggestion`.\n"
	}
	userPrompt := instructions + "```yaml\n" + string(body) + "```\n"

	if _, err := l.messages.Append(ctx, ev.ID, message.MessageFromSystem, "expert_llm_request_event_summary",
		map[string]any{"round_id": roundID}, roundID, ""); err != nil {
		return fmt.Errorf("persist llm_request message: %w", err)
	}

	start := time.Now()
	completion, completeErr := l.llm.Complete(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}, llm.CompleteOptions{LongText: true})
	elapsed := time.Since(start)

	recordIn := services.RecordInput{
		EventID: ev.ID,
		RoundID: roundID,
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
	if _, rErr := l.records.Record(ctx, recordIn); rErr != nil {
		return fmt.Errorf("record llm invocation: %w", rErr)
	}
	if completeErr != nil {
		return fmt.Errorf("llm request failed: %w", completeErr)
	}

	var resp models.ExpertSummaryResponse
	summaryText := completion.Content
	if err := llm.ParseYAMLResponse(completion.Content, &resp); err == nil && resp.EventSummary != "" {
		summaryText = resp.EventSummary
	}

	sm, err := l.summaries.Create(ctx, ev.ID, roundID, summaryText, resp.EventSuggestion)
	if err != nil {
		return fmt.Errorf("create summary: %w", err)
	}

	if _, err := l.messages.Append(ctx, ev.ID, message.MessageFromExpert, "event_summary_generated",
		map[string]any{
			"event_id":         ev.ID,
			"round_id":         roundID,
			"summary_id":       sm.ID,
			"event_summary":    sm.EventSummary,
			"event_suggestion": sm.EventSuggestion,
		}, roundID, ""); err != nil {
		return fmt.Errorf("persist event_summary_generated message: %w", err)
	}

	next := event.StatusSummarized
	if wasResolved {
		next = event.StatusCompleted
	}
	if err := l.events.SetStatus(ctx, ev.ID, next); err != nil {
		return fmt.Errorf("set event status: %w", err)
	}
	return nil
}

// advanceSummarized is step 4: `summarized` events either wrap up
// (current_round at the configured max) or move to `round_finished` for
// step 5 to pick up; `summary_failed` events are terminal failures.
func (l *Lifecycle) advanceSummarized(ctx context.Context) (int, error) {
	moved := 0

	evs, err := l.events.EventsInStatus(ctx, event.StatusSummarized)
	if err != nil {
		return 0, err
	}
	for _, ev := range evs {
		next := event.StatusRoundFinished
		if ev.CurrentRound >= l.maxRound {
			next = event.StatusCompleted
		}
		if err := l.events.SetStatus(ctx, ev.ID, next); err != nil {
			return moved, fmt.Errorf("advance summarized event %s: %w", ev.ID, err)
		}
		moved++
	}

	failedEvs, err := l.events.EventsInStatus(ctx, event.StatusSummaryFailed)
	if err != nil {
		return moved, err
	}
	for _, ev := range failedEvs {
		if err := l.events.SetStatus(ctx, ev.ID, event.StatusFailed); err != nil {
			return moved, fmt.Errorf("fail event %s after summary failure: %w", ev.ID, err)
		}
		moved++
	}

	return moved, nil
}

// advanceRoundFinished is step 5: every `round_finished` Event starts its
// next round. In "auto" driving_mode this happens unconditionally; in
// "manual" mode an Event stays parked in round_finished until an operator
// has posted a round_advance_requested Message for the round that just
// finished, so a human gets a chance to review the round summary first.
func (l *Lifecycle) advanceRoundFinished(ctx context.Context) (int, error) {
	evs, err := l.events.EventsInStatus(ctx, event.StatusRoundFinished)
	if err != nil {
		return 0, err
	}

	mode, err := l.settings.DrivingMode(ctx)
	if err != nil {
		return 0, fmt.Errorf("load driving mode: %w", err)
	}

	moved := 0
	for _, ev := range evs {
		if mode == services.DrivingModeManual {
			requested, err := l.messages.HasType(ctx, ev.ID, strconv.Itoa(ev.CurrentRound), messageTypeRoundAdvanceRequested)
			if err != nil {
				return moved, fmt.Errorf("check round_advance_requested for event %s: %w", ev.ID, err)
			}
			if !requested {
				continue
			}
		}

		if err := l.events.AdvanceRound(ctx, ev.ID); err != nil {
			return moved, fmt.Errorf("advance round for event %s: %w", ev.ID, err)
		}
		moved++
		if l.publisher != nil {
			_ = l.publisher.Publish(ctx, events.ChannelEventIncoming, events.EventIncomingPayload{
				BasePayload: events.BasePayload{Type: events.EventTypeEventIncoming, EventID: ev.ID, Timestamp: time.Now().Format(time.RFC3339)},
			})
		}
	}
	return moved, nil
}
