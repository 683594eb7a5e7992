package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/taskdesk/domain-service/internal/contracts"
)

// ErrCommandInFlight reports that another execution currently holds the lease
// for the command's idempotency key. The transport should redeliver later.
var ErrCommandInFlight = errors.New("command is already being processed")

// EventStore is the per-aggregate append-only log the handlers run against.
// Two instances back the service: one for tasks, one for users (which also
// holds user-settings events).
type EventStore interface {
	// Append inserts a new event with dispatched=false. It fails with
	// ErrConflict if an event with the same id already exists.
	Append(ctx context.Context, ev contracts.Event) error
	// GetHistory returns all events for the entity ordered by timestamp,
	// ties broken by id.
	GetHistory(ctx context.Context, entityID string) ([]contracts.Event, error)
	// FindByIdempotencyKey returns every event one logical command produced,
	// in replay order (timestamp, insertedAt, id).
	FindByIdempotencyKey(ctx context.Context, key string) ([]contracts.StoredEvent, error)
	// MarkDispatched flips the event's dispatched flag; calling it again is
	// a no-op.
	MarkDispatched(ctx context.Context, ev contracts.Event) error
	// ExistsByIdempotencyKey is a cheap existence probe on the key index.
	ExistsByIdempotencyKey(ctx context.Context, key string) (bool, error)
	// HasEvents reports whether any events exist for the entity.
	HasEvents(ctx context.Context, entityID string) (bool, error)
}

// Service executes commands. It is stateless; any number of instances may
// run concurrently against the same stores.
type Service struct {
	Tasks       EventStore
	Users       EventStore
	Idempotency *Coordinator
	Dispatcher  Dispatcher
	NewID       func() string
}

func NewService(tasks, users EventStore, coordinator *Coordinator, dispatcher Dispatcher) *Service {
	return &Service{
		Tasks:       tasks,
		Users:       users,
		Idempotency: coordinator,
		Dispatcher:  dispatcher,
		NewID:       func() string { return uuid.Must(uuid.NewV4()).String() },
	}
}

// Handle routes a parsed command to its handler.
func (s *Service) Handle(ctx context.Context, cmd Command) error {
	switch cmd.EntityType {
	case contracts.EntityTask:
		switch cmd.Type {
		case contracts.CreateTask:
			return s.CreateTask(ctx, cmd)
		case contracts.UpdateTask:
			return s.UpdateTask(ctx, cmd)
		case contracts.CompleteTask:
			return s.CompleteTask(ctx, cmd)
		case contracts.ReopenTask:
			return s.ReopenTask(ctx, cmd)
		}
	case contracts.EntityUser:
		switch cmd.Type {
		case contracts.LoginUser:
			return s.LoginUser(ctx, cmd)
		case contracts.LogoutUser:
			return s.LogoutUser(ctx, cmd)
		}
	case contracts.EntityUserSettings:
		if cmd.Type == contracts.UpdateUserSettings {
			return s.UpdateUserSettings(ctx, cmd)
		}
	}
	return fmt.Errorf("%w: %s/%s", ErrUnknownCommand, cmd.EntityType, cmd.Type)
}

// run is the uniform handler state machine. build returns the events the
// command should produce; a nil slice means the precondition failed and the
// command resolves as a silent no-op.
func (s *Service) run(ctx context.Context, store EventStore, key string, build func(ctx context.Context) ([]contracts.Event, error)) error {
	result, err := s.Idempotency.TryStart(ctx, key)
	if err != nil {
		return err
	}

	switch result {
	case AlreadyProcessed:
		if _, err := s.replayStored(ctx, store, key); err != nil {
			return err
		}
		return s.Idempotency.MarkSucceeded(ctx, key)
	case InProgress:
		return ErrCommandInFlight
	}

	err = s.execute(ctx, store, key, build)
	if err == nil {
		return s.Idempotency.MarkSucceeded(ctx, key)
	}

	// Cancellation leaves the record in Processing; the lease expires and a
	// redelivery picks the key back up. Everything else releases the key now
	// so the retry does not have to wait out the lease.
	if ctx.Err() == nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		if markErr := s.Idempotency.MarkFailed(ctx, key); markErr != nil {
			return errors.Join(err, markErr)
		}
	}
	return err
}

func (s *Service) execute(ctx context.Context, store EventStore, key string, build func(ctx context.Context) ([]contracts.Event, error)) error {
	// A prior partial run may have stored events before failing between
	// append and mark-succeeded; finishing their dispatch is all that is
	// left to do.
	replayed, err := s.replayStored(ctx, store, key)
	if err != nil {
		return err
	}
	if replayed {
		return nil
	}

	events, err := build(ctx)
	if err != nil {
		return err
	}

	for _, ev := range events {
		if err := store.Append(ctx, ev); err != nil {
			return fmt.Errorf("append event %s: %w", ev.ID, err)
		}
		if err := s.Dispatcher.Dispatch(ctx, ev); err != nil {
			return fmt.Errorf("dispatch event %s: %w", ev.ID, err)
		}
		if err := store.MarkDispatched(ctx, ev); err != nil {
			return fmt.Errorf("mark event %s dispatched: %w", ev.ID, err)
		}
	}
	return nil
}

// replayStored re-delivers any not-yet-dispatched events a prior execution of
// the key left behind. It reports whether the key produced events at all.
func (s *Service) replayStored(ctx context.Context, store EventStore, key string) (bool, error) {
	stored, err := store.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return false, err
	}
	if len(stored) == 0 {
		return false, nil
	}

	for _, se := range stored {
		if se.Dispatched {
			continue
		}
		if err := s.Dispatcher.Dispatch(ctx, se.Event); err != nil {
			return true, fmt.Errorf("replay event %s: %w", se.ID, err)
		}
		if err := store.MarkDispatched(ctx, se.Event); err != nil {
			return true, fmt.Errorf("mark replayed event %s dispatched: %w", se.ID, err)
		}
	}
	return true, nil
}

func (s *Service) newEvent(cmd Command, entityID, entityType, eventType string, data []byte) contracts.Event {
	return contracts.Event{
		ID:             s.NewID(),
		EntityID:       entityID,
		EntityType:     entityType,
		Type:           eventType,
		Data:           data,
		Timestamp:      cmd.Timestamp,
		UserID:         cmd.UserID,
		IdempotencyKey: cmd.IdempotencyKey,
	}
}
