// Package models contains request/response models for the event API and
// the fields role workers exchange with the LLM.
package models

import "github.com/codeready-toolchain/deepsoc/ent"

// CreateEventRequest contains fields for creating a new Event.
type CreateEventRequest struct {
	Message  string `json:"message" validate:"required"`
	Name     string `json:"event_name,omitempty"`
	Context  string `json:"context,omitempty"`
	Source   string `json:"source,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// EventFilters contains filtering options for listing Events.
type EventFilters struct {
	Status         string `json:"status,omitempty"`
	Source         string `json:"source,omitempty"`
	Severity       string `json:"severity,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	Offset         int    `json:"offset,omitempty"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
}

// EventListResponse contains a paginated Event list.
type EventListResponse struct {
	Events     []*ent.Event `json:"events"`
	TotalCount int          `json:"total_count"`
	Limit      int          `json:"limit"`
	Offset     int          `json:"offset"`
}

// ResolveEventRequest carries an operator's manual-resolution note.
type ResolveEventRequest struct {
	ResolutionNote string `json:"resolution_note,omitempty"`
}

// SendMessageRequest carries a human message posted into an Event.
type SendMessageRequest struct {
	Content string `json:"content" validate:"required"`
	UserID  string `json:"user_id,omitempty"`
}

// CompleteExecutionRequest carries the manual-handoff completion payload
// posted by an operator against a `waiting` Execution.
type CompleteExecutionRequest struct {
	Result string `json:"result" validate:"required"`
}
