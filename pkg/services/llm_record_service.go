package services

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/deepsoc/ent"
	"github.com/google/uuid"
)

// LLMRecordService writes the audit trail of every LLM invocation made by
// any role worker.
type LLMRecordService struct {
	client *ent.Client
}

// NewLLMRecordService creates a new LLMRecordService.
func NewLLMRecordService(client *ent.Client) *LLMRecordService {
	return &LLMRecordService{client: client}
}

// RecordInput carries the fields of one LLM invocation to persist.
type RecordInput struct {
	EventID          string
	RoundID          string
	Role             string
	Model            string
	RequestMessages  []map[string]any
	Response         string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CachedTokens     int
	DurationMS       int
	ErrorMessage     string
}

// Record writes one LLMRecord row. Called exactly once per LLM invocation
// that completes (successfully or not), so token accounting and cost
// audits stay exact.
func (s *LLMRecordService) Record(ctx context.Context, in RecordInput) (*ent.LLMRecord, error) {
	builder := s.client.LLMRecord.Create().
		SetID(uuid.New().String()).
		SetEventID(in.EventID).
		SetRole(in.Role).
		SetModel(in.Model).
		SetRequestMessages(in.RequestMessages)

	if in.RoundID != "" {
		builder = builder.SetRoundID(in.RoundID)
	}
	if in.Response != "" {
		builder = builder.SetResponse(in.Response)
	}
	if in.PromptTokens > 0 {
		builder = builder.SetPromptTokens(in.PromptTokens)
	}
	if in.CompletionTokens > 0 {
		builder = builder.SetCompletionTokens(in.CompletionTokens)
	}
	if in.TotalTokens > 0 {
		builder = builder.SetTotalTokens(in.TotalTokens)
	}
	if in.CachedTokens > 0 {
		builder = builder.SetCachedTokens(in.CachedTokens)
	}
	if in.DurationMS > 0 {
		builder = builder.SetDurationMs(in.DurationMS)
	}
	if in.ErrorMessage != "" {
		builder = builder.SetErrorMessage(in.ErrorMessage)
	}

	rec, err := builder.Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("record llm invocation: %w", err)
	}
	return rec, nil
}
