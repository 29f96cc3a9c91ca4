package services

import (
	"context"
	"fmt"
	"time"

	"entgo.io/ent/dialect/sql"
	"github.com/codeready-toolchain/deepsoc/ent"
	"github.com/codeready-toolchain/deepsoc/ent/event"
	"github.com/codeready-toolchain/deepsoc/pkg/models"
	"github.com/google/uuid"
)

// EventService manages the Event root aggregate and its state machine.
type EventService struct {
	client *ent.Client
}

// NewEventService creates a new EventService.
func NewEventService(client *ent.Client) *EventService {
	return &EventService{client: client}
}

// CreateEvent inserts a new Event in status `pending`.
func (s *EventService) CreateEvent(ctx context.Context, req models.CreateEventRequest) (*ent.Event, error) {
	if req.Message == "" {
		return nil, NewValidationError("message", "required")
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	builder := s.client.Event.Create().
		SetID(uuid.New().String()).
		SetMessage(req.Message).
		SetStatus(event.StatusPending).
		SetCurrentRound(1)

	if req.Name != "" {
		builder = builder.SetName(req.Name)
	}
	if req.Context != "" {
		builder = builder.SetContext(req.Context)
	}
	if req.Source != "" {
		builder = builder.SetSource(req.Source)
	}
	if req.Severity != "" {
		builder = builder.SetSeverity(req.Severity)
	}

	ev, err := builder.Save(writeCtx)
	if err != nil {
		if ent.IsConstraintError(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("create event: %w", err)
	}
	return ev, nil
}

// GetEvent retrieves an Event by id.
func (s *EventService) GetEvent(ctx context.Context, id string) (*ent.Event, error) {
	ev, err := s.client.Event.Query().
		Where(event.IDEQ(id), event.DeletedAtIsNil()).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

// ListEvents lists Events with filtering and pagination.
func (s *EventService) ListEvents(ctx context.Context, filters models.EventFilters) (*models.EventListResponse, error) {
	query := s.client.Event.Query()

	if filters.Status != "" {
		query = query.Where(event.StatusEQ(event.Status(filters.Status)))
	}
	if filters.Source != "" {
		query = query.Where(event.SourceEQ(filters.Source))
	}
	if filters.Severity != "" {
		query = query.Where(event.SeverityEQ(filters.Severity))
	}
	if !filters.IncludeDeleted {
		query = query.Where(event.DeletedAtIsNil())
	}

	total, err := query.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	events, err := query.
		Limit(limit).
		Offset(offset).
		Order(ent.Desc(event.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	return &models.EventListResponse{
		Events:     events,
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
	}, nil
}

// ClaimNextPending atomically claims the oldest pending Event for Captain,
// moving it to `processing`. Returns (nil, nil) when no work is available.
func (s *EventService) ClaimNextPending(ctx context.Context, podID string) (*ent.Event, error) {
	claimCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tx, err := s.client.Tx(claimCtx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ev, err := tx.Event.Query().
		Where(event.StatusEQ(event.StatusPending), event.DeletedAtIsNil()).
		Order(ent.Asc(event.FieldCreatedAt)).
		Limit(1).
		ForUpdate(sql.WithLockAction(sql.SkipLocked)).
		First(claimCtx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("query pending event: %w", err)
	}

	ev, err = tx.Event.UpdateOneID(ev.ID).
		SetStatus(event.StatusProcessing).
		SetPodID(podID).
		SetLastInteractionAt(time.Now()).
		Save(claimCtx)
	if err != nil {
		return nil, fmt.Errorf("claim event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return ev, nil
}

// SetStatus performs an unconditional status transition, used by Captain and
// the Expert lifecycle manager once they have decided the next state.
func (s *EventService) SetStatus(ctx context.Context, id string, status event.Status) error {
	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.client.Event.UpdateOneID(id).
		SetStatus(status).
		SetLastInteractionAt(time.Now()).
		Exec(writeCtx)
	if err != nil {
		if ent.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("set event status: %w", err)
	}
	return nil
}

// Heartbeat refreshes last_interaction_at for an Event a Captain worker
// currently holds `processing`, so the orphan scanner knows the pod is
// still alive.
func (s *EventService) Heartbeat(ctx context.Context, id string) error {
	err := s.client.Event.UpdateOneID(id).SetLastInteractionAt(time.Now()).Exec(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("heartbeat event: %w", err)
	}
	return nil
}

// Rename sets the Event's display name, used by Captain on a TASK response
// that includes event_name.
func (s *EventService) Rename(ctx context.Context, id, name string) error {
	err := s.client.Event.UpdateOneID(id).SetName(name).Exec(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("rename event: %w", err)
	}
	return nil
}

// AdvanceRound increments current_round and sets status back to `pending`,
// owned by the Expert lifecycle manager on `round_finished`.
func (s *EventService) AdvanceRound(ctx context.Context, id string) error {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ev, err := tx.Event.Query().Where(event.IDEQ(id)).ForUpdate().Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("lock event: %w", err)
	}
	if ev.Status != event.StatusRoundFinished {
		return nil
	}

	if err := tx.Event.UpdateOneID(id).
		SetStatus(event.StatusPending).
		SetCurrentRound(ev.CurrentRound + 1).
		Exec(ctx); err != nil {
		return fmt.Errorf("advance round: %w", err)
	}

	return tx.Commit()
}

// Resolve transitions an Event into `resolved` regardless of its current
// state, recording an operator-supplied note. This is the manual API hook
// from the state machine's "any -> resolved" edge.
func (s *EventService) Resolve(ctx context.Context, id string, note string) error {
	update := s.client.Event.UpdateOneID(id).
		SetStatus(event.StatusResolved).
		SetLastInteractionAt(time.Now())
	if note != "" {
		update = update.SetResolutionNote(note)
	}
	if err := update.Exec(ctx); err != nil {
		if ent.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("resolve event: %w", err)
	}
	return nil
}

// FindOrphaned finds Events stuck in `processing` past the claim timeout,
// whose pod heartbeat has gone stale.
func (s *EventService) FindOrphaned(ctx context.Context, timeout time.Duration) ([]*ent.Event, error) {
	threshold := time.Now().Add(-timeout)

	events, err := s.client.Event.Query().
		Where(
			event.StatusEQ(event.StatusProcessing),
			event.LastInteractionAtNotNil(),
			event.LastInteractionAtLT(threshold),
		).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("find orphaned events: %w", err)
	}
	return events, nil
}

// Requeue resets an orphaned Event back to `pending` so another Captain
// pickup can claim it.
func (s *EventService) Requeue(ctx context.Context, id string) error {
	err := s.client.Event.UpdateOneID(id).
		SetStatus(event.StatusPending).
		ClearPodID().
		Exec(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("requeue event: %w", err)
	}
	return nil
}

// EventsInStatus lists every Event currently in one of the given statuses,
// used by the Expert lifecycle manager's per-cycle re-evaluation sweep.
func (s *EventService) EventsInStatus(ctx context.Context, statuses ...event.Status) ([]*ent.Event, error) {
	events, err := s.client.Event.Query().
		Where(event.StatusIn(statuses...)).
		Order(ent.Asc(event.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("query events by status: %w", err)
	}
	return events, nil
}
