package events

// BasePayload is embedded in every typed payload so consumers can always
// discriminate on Type before deciding whether to decode the rest or
// simply treat the NOTIFY as a wake-up hint and re-poll.
type BasePayload struct {
	Type      string `json:"type"`
	EventID   string `json:"event_id"`
	Timestamp string `json:"timestamp"`
}

// TaskCreatedPayload is broadcast on ChannelTaskCreated.
type TaskCreatedPayload struct {
	BasePayload
	TaskID  string `json:"task_id"`
	RoundID string `json:"round_id"`
}

// ActionCreatedPayload is broadcast on ChannelActionCreated.
type ActionCreatedPayload struct {
	BasePayload
	ActionID string `json:"action_id"`
	TaskID   string `json:"task_id"`
	RoundID  string `json:"round_id"`
}

// CommandCreatedPayload is broadcast on ChannelCommandCreated.
type CommandCreatedPayload struct {
	BasePayload
	CommandID string `json:"command_id"`
	ActionID  string `json:"action_id"`
	RoundID   string `json:"round_id"`
}

// ExecutionReadyPayload is broadcast on ChannelExecutionReady once an
// Execution finished running and is waiting to be summarized.
type ExecutionReadyPayload struct {
	BasePayload
	ExecutionID string `json:"execution_id"`
	CommandID   string `json:"command_id"`
	RoundID     string `json:"round_id"`
}

// EventIncomingPayload is broadcast on ChannelEventIncoming when the
// Expert lifecycle manager moves an Event back to `pending` for its next
// round. Creating an Event publishes nothing.
type EventIncomingPayload struct {
	BasePayload
}

// RoundFinishedPayload is broadcast on ChannelRoundFinished by the Expert
// summarizer after each Execution summary it writes; it does not mean the
// round has no outstanding work left.
type RoundFinishedPayload struct {
	BasePayload
	RoundID string `json:"round_id"`
}
