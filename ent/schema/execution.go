package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Execution holds the schema definition for the Execution entity.
// One attempt to run a Command, produced by Executor and narrated by
// Expert's summarizer.
type Execution struct {
	ent.Schema
}

// Fields of the Execution.
func (Execution) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("execution_id").
			Unique().
			Immutable(),
		field.String("command_id").
			Immutable(),
		field.String("action_id").
			Immutable(),
		field.String("task_id").
			Immutable(),
		field.String("event_id").
			Immutable(),
		field.String("round_id").
			Immutable(),
		field.Text("execution_result").
			Optional().
			Nillable().
			Comment("Raw text/JSON returned by SOAR, or operator free text for manual commands"),
		field.Text("ai_summary").
			Optional().
			Nillable(),
		field.Enum("status").
			Values("waiting", "completed", "summarizing", "summarized", "summarized_error", "failed").
			Comment("summarizing is a transient claim state held only for the duration of the claim transaction, never across the LLM call").
			Default("waiting"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Edges of the Execution.
func (Execution) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("command", Command.Type).
			Ref("executions").
			Field("command_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the Execution.
func (Execution) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("command_id"),
		index.Fields("status"),
		index.Fields("event_id", "round_id"),
	}
}
