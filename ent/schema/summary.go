package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Summary holds the schema definition for the Summary entity.
// Expert-generated per-round event narrative, fed back to Captain as
// context for the next round.
type Summary struct {
	ent.Schema
}

// Fields of the Summary.
func (Summary) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("summary_id").
			Unique().
			Immutable(),
		field.String("event_id").
			Immutable(),
		field.String("round_id").
			Immutable(),
		field.Text("event_summary"),
		field.Text("event_suggestion").
			Optional(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the Summary.
func (Summary) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("event", Event.Type).
			Ref("summaries").
			Field("event_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the Summary.
func (Summary) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("event_id", "round_id").
			Unique(),
	}
}
