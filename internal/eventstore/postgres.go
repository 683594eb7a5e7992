package eventstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taskdesk/domain-service/internal/contracts"
	"github.com/taskdesk/domain-service/internal/domain"
)

const (
	taskEventsTable = "task_events"
	userEventsTable = "user_events"
)

const createEventsTableSQL = `
CREATE TABLE IF NOT EXISTS %s (
  entity_id text NOT NULL,
  event_id text NOT NULL,
  entity_type text NOT NULL,
  event_type text NOT NULL,
  data jsonb,
  event_timestamp bigint NOT NULL,
  user_id text NOT NULL,
  idempotency_key text NOT NULL,
  dispatched boolean NOT NULL DEFAULT false,
  inserted_at timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (entity_id, event_id)
)`

const createIdempotencyKeyIndexSQL = `
CREATE INDEX IF NOT EXISTS %s_idempotency_key_idx ON %s (idempotency_key)`

const insertEventSQL = `
INSERT INTO %s (
  entity_id, event_id, entity_type, event_type, data,
  event_timestamp, user_id, idempotency_key
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

const selectHistorySQL = `
SELECT entity_id, event_id, entity_type, event_type, data,
       event_timestamp, user_id, idempotency_key
FROM %s
WHERE entity_id = $1
ORDER BY event_timestamp ASC, event_id ASC`

const selectByIdempotencyKeySQL = `
SELECT entity_id, event_id, entity_type, event_type, data,
       event_timestamp, user_id, idempotency_key, dispatched, inserted_at
FROM %s
WHERE idempotency_key = $1
ORDER BY event_timestamp ASC, inserted_at ASC, event_id ASC`

const markDispatchedSQL = `
UPDATE %s SET dispatched = true WHERE entity_id = $1 AND event_id = $2`

const existsByIdempotencyKeySQL = `
SELECT EXISTS (SELECT 1 FROM %s WHERE idempotency_key = $1)`

const hasEventsSQL = `
SELECT EXISTS (SELECT 1 FROM %s WHERE entity_id = $1)`

// pgUniqueViolation is the Postgres error code for duplicate-key inserts.
const pgUniqueViolation = "23505"

// Store is an append-only per-entity event log backed by one Postgres table.
// The same implementation serves both aggregate kinds; only the table name
// differs.
type Store struct {
	Pool  *pgxpool.Pool
	table string
}

func NewTaskStore(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool, table: taskEventsTable}
}

func NewUserStore(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool, table: userEventsTable}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, fmt.Sprintf(createEventsTableSQL, s.table)); err != nil {
		return err
	}
	if _, err := s.Pool.Exec(ctx, fmt.Sprintf(createIdempotencyKeyIndexSQL, s.table, s.table)); err != nil {
		return err
	}
	return nil
}

// Append inserts the event with dispatched=false. A duplicate event id is
// classified as domain.ErrConflict; anything else propagates untouched.
func (s *Store) Append(ctx context.Context, ev contracts.Event) error {
	_, err := s.Pool.Exec(ctx, fmt.Sprintf(insertEventSQL, s.table),
		ev.EntityID,
		ev.ID,
		ev.EntityType,
		ev.Type,
		ev.Data,
		ev.Timestamp,
		ev.UserID,
		ev.IdempotencyKey,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("event %s already exists: %w", ev.ID, domain.ErrConflict)
		}
		return err
	}
	return nil
}

func (s *Store) GetHistory(ctx context.Context, entityID string) ([]contracts.Event, error) {
	rows, err := s.Pool.Query(ctx, fmt.Sprintf(selectHistorySQL, s.table), entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []contracts.Event
	for rows.Next() {
		var ev contracts.Event
		if err := rows.Scan(
			&ev.EntityID,
			&ev.ID,
			&ev.EntityType,
			&ev.Type,
			&ev.Data,
			&ev.Timestamp,
			&ev.UserID,
			&ev.IdempotencyKey,
		); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *Store) FindByIdempotencyKey(ctx context.Context, key string) ([]contracts.StoredEvent, error) {
	rows, err := s.Pool.Query(ctx, fmt.Sprintf(selectByIdempotencyKeySQL, s.table), key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []contracts.StoredEvent
	for rows.Next() {
		var se contracts.StoredEvent
		if err := rows.Scan(
			&se.EntityID,
			&se.ID,
			&se.EntityType,
			&se.Type,
			&se.Data,
			&se.Timestamp,
			&se.UserID,
			&se.IdempotencyKey,
			&se.Dispatched,
			&se.InsertedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, se)
	}
	return events, rows.Err()
}

func (s *Store) MarkDispatched(ctx context.Context, ev contracts.Event) error {
	_, err := s.Pool.Exec(ctx, fmt.Sprintf(markDispatchedSQL, s.table), ev.EntityID, ev.ID)
	return err
}

func (s *Store) ExistsByIdempotencyKey(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.Pool.QueryRow(ctx, fmt.Sprintf(existsByIdempotencyKeySQL, s.table), key).Scan(&exists)
	return exists, err
}

func (s *Store) HasEvents(ctx context.Context, entityID string) (bool, error) {
	var exists bool
	err := s.Pool.QueryRow(ctx, fmt.Sprintf(hasEventsSQL, s.table), entityID).Scan(&exists)
	return exists, err
}
