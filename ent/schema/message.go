package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Message holds the schema definition for the Message entity.
// Immutable append-only log of every notable occurrence, fanned out to
// real-time UI subscribers via the events package.
type Message struct {
	ent.Schema
}

// Fields of the Message.
func (Message) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("message_id").
			Unique().
			Immutable(),
		field.String("event_id").
			Immutable(),
		field.String("round_id").
			Optional().
			Nillable(),
		field.Enum("message_from").
			Values("system", "user", "_captain", "_manager", "_operator", "_executor", "_expert"),
		field.String("message_type").
			Comment("Open-ended tag, e.g. llm_request, llm_response, command_result"),
		field.JSON("message_content", map[string]interface{}{}),
		field.String("user_id").
			Optional().
			Nillable(),
		field.Int("sequence_number").
			Comment("Event-scoped monotonic order, independent of the auto-increment PK"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the Message.
func (Message) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("event", Event.Type).
			Ref("messages").
			Field("event_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the Message.
func (Message) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("event_id", "sequence_number").
			Unique(),
		index.Fields("event_id", "message_from"),
	}
}
