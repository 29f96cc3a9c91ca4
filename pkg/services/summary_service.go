package services

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/deepsoc/ent"
	"github.com/codeready-toolchain/deepsoc/ent/summary"
	"github.com/google/uuid"
)

// SummaryService manages Summaries, the Expert-generated per-round Event
// narrative fed back to Captain.
type SummaryService struct {
	client *ent.Client
}

// NewSummaryService creates a new SummaryService.
func NewSummaryService(client *ent.Client) *SummaryService {
	return &SummaryService{client: client}
}

// Create inserts a round Summary. Called once per (event, round) by the
// Expert lifecycle manager.
func (s *SummaryService) Create(ctx context.Context, eventID, roundID, eventSummary, suggestion string) (*ent.Summary, error) {
	builder := s.client.Summary.Create().
		SetID(uuid.New().String()).
		SetEventID(eventID).
		SetRoundID(roundID).
		SetEventSummary(eventSummary)
	if suggestion != "" {
		builder = builder.SetEventSuggestion(suggestion)
	}

	sm, err := builder.Save(ctx)
	if err != nil {
		if ent.IsConstraintError(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("create summary: %w", err)
	}
	return sm, nil
}

// Previous returns the Summary for the given round, if it exists. Captain
// and the lifecycle manager call it with the round before the current one,
// to carry that round's summary forward into the next round's prompts.
func (s *SummaryService) Previous(ctx context.Context, eventID, roundID string) (*ent.Summary, error) {
	sm, err := s.client.Summary.Query().
		Where(summary.EventIDEQ(eventID), summary.RoundIDEQ(roundID)).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get previous summary: %w", err)
	}
	return sm, nil
}

// ByEvent lists every Summary for an Event in round order.
func (s *SummaryService) ByEvent(ctx context.Context, eventID string) ([]*ent.Summary, error) {
	summaries, err := s.client.Summary.Query().
		Where(summary.EventIDEQ(eventID)).
		Order(ent.Asc(summary.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list event summaries: %w", err)
	}
	return summaries, nil
}
