package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Event holds the schema definition for the Event entity.
// Root aggregate of the SOC workflow: a security alert or incident
// description that is decomposed into Tasks, refined into Actions and
// Commands, executed, and summarized round by round.
type Event struct {
	ent.Schema
}

// Fields of the Event.
func (Event) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("event_id").
			Unique().
			Immutable(),
		field.String("name").
			Optional().
			Comment("May be renamed by Captain on TASK response"),
		field.Text("message").
			Comment("Original alert payload"),
		field.Text("context").
			Optional().
			Comment("Free text or JSON blob supplied at creation"),
		field.String("source").
			Optional(),
		field.String("severity").
			Optional(),
		field.Enum("status").
			Values(
				"pending", "processing", "tasks_completed", "to_be_summarized",
				"summarized", "round_finished", "completed", "failed",
				"resolved", "summary_failed", "error_from_llm", "error_processing",
			).
			Default("pending"),
		field.Int("current_round").
			Default(1),
		field.String("pod_id").
			Optional().
			Nillable().
			Comment("Claiming worker, for multi-replica coordination"),
		field.Time("last_interaction_at").
			Optional().
			Nillable().
			Comment("Heartbeat, for orphan detection"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
		field.Time("deleted_at").
			Optional().
			Nillable().
			Comment("Soft delete for retention policy"),
		field.Text("resolution_note").
			Optional().
			Nillable().
			Comment("Operator-supplied note recorded when manually resolving an event"),
	}
}

// Edges of the Event.
func (Event) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("tasks", Task.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("summaries", Summary.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("messages", Message.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("llm_records", LLMRecord.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Event.
func (Event) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status"),
		index.Fields("status", "created_at"),
		index.Fields("status", "last_interaction_at"),
		index.Fields("deleted_at").
			Annotations(entsql.IndexWhere("deleted_at IS NOT NULL")),
	}
}
