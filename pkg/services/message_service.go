package services

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/deepsoc/ent"
	"github.com/codeready-toolchain/deepsoc/ent/message"
	"github.com/google/uuid"
)

// MessageService manages Messages, the immutable append-only log of every
// notable occurrence within an Event.
type MessageService struct {
	client *ent.Client
}

// NewMessageService creates a new MessageService.
func NewMessageService(client *ent.Client) *MessageService {
	return &MessageService{client: client}
}

// Append inserts the next Message for an Event, assigning an event-scoped
// monotonic sequence_number. Callers needing the Message to be durable in
// the same transaction as a status change should use AppendTx.
func (s *MessageService) Append(ctx context.Context, eventID string, from message.MessageFrom, msgType string, content map[string]any, roundID, userID string) (*ent.Message, error) {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	m, err := s.AppendTx(ctx, tx, eventID, from, msgType, content, roundID, userID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit message: %w", err)
	}
	return m, nil
}

// AppendTx inserts the next Message for an Event within an existing
// transaction, so the append-only log stays consistent with whatever
// status change it is narrating.
func (s *MessageService) AppendTx(ctx context.Context, tx *ent.Tx, eventID string, from message.MessageFrom, msgType string, content map[string]any, roundID, userID string) (*ent.Message, error) {
	last, err := tx.Message.Query().
		Where(message.EventIDEQ(eventID)).
		Order(ent.Desc(message.FieldSequenceNumber)).
		First(ctx)
	seq := 1
	if err == nil {
		seq = last.SequenceNumber + 1
	} else if !ent.IsNotFound(err) {
		return nil, fmt.Errorf("query last sequence number: %w", err)
	}

	builder := tx.Message.Create().
		SetID(uuid.New().String()).
		SetEventID(eventID).
		SetMessageFrom(from).
		SetMessageType(msgType).
		SetMessageContent(content).
		SetSequenceNumber(seq)
	if roundID != "" {
		builder = builder.SetRoundID(roundID)
	}
	if userID != "" {
		builder = builder.SetUserID(userID)
	}

	m, err := builder.Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return m, nil
}

// HasType reports whether an Event already has a Message of the given
// type for a round, the existence check the round lifecycle manager uses
// to gate manual-driving-mode round advancement on an operator-posted
// round_advance_requested Message.
func (s *MessageService) HasType(ctx context.Context, eventID, roundID, msgType string) (bool, error) {
	exists, err := s.client.Message.Query().
		Where(
			message.EventIDEQ(eventID),
			message.RoundIDEQ(roundID),
			message.MessageTypeEQ(msgType),
		).
		Exist(ctx)
	if err != nil {
		return false, fmt.Errorf("check message type %q: %w", msgType, err)
	}
	return exists, nil
}

// SinceID lists Messages for an Event with sequence_number greater than
// lastSeenID, optionally filtered by message_from, in ascending order for
// clients polling incrementally. sequence_number is the event-scoped
// monotonic ordering key (see the Message schema's field comment).
func (s *MessageService) SinceID(ctx context.Context, eventID string, lastSeenDBID int, from string) ([]*ent.Message, error) {
	query := s.client.Message.Query().Where(message.EventIDEQ(eventID))
	if lastSeenDBID > 0 {
		query = query.Where(message.SequenceNumberGT(lastSeenDBID))
	}
	if from != "" {
		query = query.Where(message.MessageFromEQ(message.MessageFrom(from)))
	}

	messages, err := query.Order(ent.Asc(message.FieldSequenceNumber)).All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}
