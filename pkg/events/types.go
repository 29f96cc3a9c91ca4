// Package events implements PostgreSQL NOTIFY/LISTEN signalling: role
// workers call Publisher.Publish after committing the rows a signal
// announces, and a Listener lets a process subscribe to channels. The
// role worker pools do not LISTEN; they find work by polling their own
// tables, so a missed notification loses no work.
package events

// Channels. None of them are scoped per-event; the payload carries the
// event_id.
const (
	// ChannelTaskCreated announces Tasks the Captain created.
	ChannelTaskCreated = "deepsoc_task_created"
	// ChannelActionCreated announces Actions the Manager created.
	ChannelActionCreated = "deepsoc_action_created"
	// ChannelCommandCreated announces Commands the Operator created.
	ChannelCommandCreated = "deepsoc_command_created"
	// ChannelExecutionReady announces an Execution the Executor finished.
	ChannelExecutionReady = "deepsoc_execution_ready"
	// ChannelEventIncoming announces an Event the Expert lifecycle manager
	// moved back to `pending` for its next round.
	ChannelEventIncoming = "deepsoc_event_incoming"
	// ChannelRoundFinished is published by the Expert summarizer after
	// each Execution summary it writes.
	ChannelRoundFinished = "deepsoc_round_finished"
)

// Event types carried in NOTIFY payloads, used as the Type discriminator
// so a listener can decode only what it needs.
const (
	EventTypeTaskCreated    = "task.created"
	EventTypeActionCreated  = "action.created"
	EventTypeCommandCreated = "command.created"
	EventTypeExecutionReady = "execution.ready"
	EventTypeEventIncoming  = "event.incoming"
	EventTypeRoundFinished  = "round.finished"
)
