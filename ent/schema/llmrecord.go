package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// LLMRecord holds the schema definition for the LLMRecord entity.
// Audit trail of every LLM invocation made by any role worker.
type LLMRecord struct {
	ent.Schema
}

// Fields of the LLMRecord.
func (LLMRecord) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("llm_record_id").
			Unique().
			Immutable(),
		field.String("event_id").
			Immutable(),
		field.String("round_id").
			Optional().
			Nillable(),
		field.String("role").
			Immutable().
			Comment("_captain, _manager, _operator, _expert"),
		field.String("model"),
		field.JSON("request_messages", []map[string]interface{}{}),
		field.Text("response").
			Optional().
			Nillable(),
		field.Int("prompt_tokens").
			Optional().
			Nillable(),
		field.Int("completion_tokens").
			Optional().
			Nillable(),
		field.Int("total_tokens").
			Optional().
			Nillable(),
		field.Int("cached_tokens").
			Optional().
			Nillable(),
		field.Int("duration_ms").
			Optional().
			Nillable(),
		field.String("error_message").
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the LLMRecord.
func (LLMRecord) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("event", Event.Type).
			Ref("llm_records").
			Field("event_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the LLMRecord.
func (LLMRecord) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("event_id", "created_at"),
		index.Fields("role", "created_at"),
	}
}
