package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Action holds the schema definition for the Action entity.
// A refinement of a Task produced by Manager.
type Action struct {
	ent.Schema
}

// Fields of the Action.
func (Action) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("action_id").
			Unique().
			Immutable(),
		field.String("task_id").
			Immutable(),
		field.String("event_id").
			Immutable().
			Comment("Denormalized for round-scoped queries"),
		field.String("round_id").
			Immutable().
			Comment("Must equal parent Task.round_id"),
		field.String("name"),
		field.Enum("action_type").
			Values("query", "write", "notify").
			Comment("Inherited from parent Task.task_type"),
		field.String("assignee").
			Default("_operator").
			Immutable(),
		field.Enum("status").
			Values("pending", "processing", "completed", "failed").
			Default("pending"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Edges of the Action.
func (Action) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("task", Task.Type).
			Ref("actions").
			Field("task_id").
			Unique().
			Required().
			Immutable(),
		edge.To("commands", Command.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Action.
func (Action) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("event_id", "round_id"),
		index.Fields("task_id"),
		index.Fields("status"),
		index.Fields("status", "created_at"),
	}
}
