package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
)

// GlobalSetting holds the schema definition for the GlobalSetting entity.
// Small pieces of singleton state, e.g. driving mode = auto|manual.
type GlobalSetting struct {
	ent.Schema
}

// Fields of the GlobalSetting.
func (GlobalSetting) Fields() []ent.Field {
	return []ent.Field{
		field.String("key").
			StorageKey("setting_key").
			Unique().
			Immutable(),
		field.String("value"),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}
