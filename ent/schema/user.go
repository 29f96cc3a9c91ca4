package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// User holds the schema definition for the User entity.
// Credentials and role for the out-of-scope HTTP API; carried here only
// so the core can attribute human Messages (message_from=user) to an
// identity and so `init` can seed an admin account.
type User struct {
	ent.Schema
}

// Fields of the User.
func (User) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("user_id").
			Unique().
			Immutable(),
		field.String("username").
			Unique(),
		field.String("password_hash").
			Sensitive(),
		field.Enum("role").
			Values("admin", "operator", "viewer").
			Default("viewer"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the User.
func (User) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("username").
			Unique(),
	}
}
