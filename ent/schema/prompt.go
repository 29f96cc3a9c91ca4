package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Prompt holds the schema definition for the Prompt entity.
// Named text rows (role templates and background snippets) used to
// assemble system prompts for the five AI roles.
type Prompt struct {
	ent.Schema
}

// Fields of the Prompt.
func (Prompt) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("prompt_id").
			Unique().
			Immutable(),
		field.String("name").
			Unique().
			Comment("e.g. captain_role, manager_role, background_soc_context"),
		field.Enum("category").
			Values("role", "background"),
		field.Text("content"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Indexes of the Prompt.
func (Prompt) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("category"),
	}
}
