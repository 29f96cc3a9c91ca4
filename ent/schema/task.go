package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Task holds the schema definition for the Task entity.
// A unit of work produced by Captain when decomposing an Event.
type Task struct {
	ent.Schema
}

// Fields of the Task.
func (Task) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("task_id").
			Unique().
			Immutable(),
		field.String("event_id").
			Immutable(),
		field.String("name"),
		field.Enum("task_type").
			Values("query", "write", "notify"),
		field.String("assignee").
			Default("_manager").
			Immutable(),
		field.Enum("status").
			Values("pending", "processing", "completed", "failed").
			Default("pending"),
		field.String("round_id").
			Immutable().
			Comment("Stringified round number, matches parent Event.current_round at creation"),
		field.Text("result").
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Edges of the Task.
func (Task) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("event", Event.Type).
			Ref("tasks").
			Field("event_id").
			Unique().
			Required().
			Immutable(),
		edge.To("actions", Action.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Task.
func (Task) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("event_id", "round_id"),
		index.Fields("status"),
		index.Fields("status", "created_at"),
	}
}
