package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Command holds the schema definition for the Command entity.
// A concrete executable operation produced by Operator.
type Command struct {
	ent.Schema
}

// Fields of the Command.
func (Command) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("command_id").
			Unique().
			Immutable(),
		field.String("action_id").
			Immutable(),
		field.String("task_id").
			Immutable().
			Comment("Denormalized for ancestor lookups without joining Action"),
		field.String("event_id").
			Immutable(),
		field.String("round_id").
			Immutable(),
		field.String("name"),
		field.Enum("command_type").
			Values("playbook", "manual"),
		field.String("assignee").
			Default("_executor").
			Immutable(),
		field.JSON("command_entity", map[string]interface{}{}).
			Optional().
			Comment("e.g. playbook id"),
		field.JSON("command_params", map[string]interface{}{}).
			Optional(),
		field.Enum("status").
			Values("pending", "processing", "completed", "failed").
			Default("pending"),
		field.JSON("result", map[string]interface{}{}).
			Optional(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Edges of the Command.
func (Command) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("action", Action.Type).
			Ref("commands").
			Field("action_id").
			Unique().
			Required().
			Immutable(),
		edge.To("executions", Execution.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Command.
func (Command) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("action_id"),
		index.Fields("status"),
		index.Fields("status", "created_at"),
	}
}
