package database

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql"
)

// CreateSearchIndexes creates full-text search GIN indexes not expressed
// by the ent schema, so analysts can search incoming alert text and the
// resulting AI narrative.
func CreateSearchIndexes(ctx context.Context, driver *sql.Driver) error {
	db := driver.DB()

	if _, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_events_message_gin
		ON events USING gin(to_tsvector('english', message))`); err != nil {
		return fmt.Errorf("create message GIN index: %w", err)
	}

	if _, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_summaries_event_summary_gin
		ON summaries USING gin(to_tsvector('english', event_summary))`); err != nil {
		return fmt.Errorf("create event_summary GIN index: %w", err)
	}

	return nil
}
