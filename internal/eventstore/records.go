package eventstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taskdesk/domain-service/internal/domain"
)

const createIdempotencyTableSQL = `
CREATE TABLE IF NOT EXISTS idempotency_records (
  idempotency_key text PRIMARY KEY,
  status text NOT NULL,
  token text NOT NULL,
  updated_at timestamptz NOT NULL
)`

const insertRecordSQL = `
INSERT INTO idempotency_records (idempotency_key, status, token, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (idempotency_key) DO NOTHING`

const selectRecordSQL = `
SELECT idempotency_key, status, token, updated_at
FROM idempotency_records
WHERE idempotency_key = $1`

const replaceRecordSQL = `
UPDATE idempotency_records
SET status = $2, token = $3, updated_at = $4
WHERE idempotency_key = $1 AND token = $5`

const upsertRecordSQL = `
INSERT INTO idempotency_records (idempotency_key, status, token, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (idempotency_key) DO UPDATE
SET status = EXCLUDED.status, token = EXCLUDED.token, updated_at = EXCLUDED.updated_at`

const deleteRecordSQL = `
DELETE FROM idempotency_records WHERE idempotency_key = $1`

// RecordStore keeps the idempotency coordination records in their own table,
// logically separate from all entity event logs. All writes are the
// conditional primitives the coordinator's protocol is built on.
type RecordStore struct {
	Pool *pgxpool.Pool
}

func NewRecordStore(pool *pgxpool.Pool) *RecordStore {
	return &RecordStore{Pool: pool}
}

func (r *RecordStore) EnsureSchema(ctx context.Context) error {
	_, err := r.Pool.Exec(ctx, createIdempotencyTableSQL)
	return err
}

func (r *RecordStore) InsertRecord(ctx context.Context, rec domain.ProcessingRecord) error {
	tag, err := r.Pool.Exec(ctx, insertRecordSQL, rec.Key, string(rec.Status), rec.Token, rec.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("idempotency record %s already exists: %w", rec.Key, domain.ErrConflict)
	}
	return nil
}

func (r *RecordStore) GetRecord(ctx context.Context, key string) (domain.ProcessingRecord, error) {
	var rec domain.ProcessingRecord
	var status string
	err := r.Pool.QueryRow(ctx, selectRecordSQL, key).Scan(&rec.Key, &status, &rec.Token, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ProcessingRecord{}, fmt.Errorf("idempotency record %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ProcessingRecord{}, err
	}
	rec.Status = domain.ProcessingStatus(status)
	return rec, nil
}

func (r *RecordStore) ReplaceRecord(ctx context.Context, rec domain.ProcessingRecord, expectedToken string) error {
	tag, err := r.Pool.Exec(ctx, replaceRecordSQL, rec.Key, string(rec.Status), rec.Token, rec.UpdatedAt, expectedToken)
	if err != nil {
		return err
	}
	// Zero rows means the token went stale or the record vanished; both
	// resolve the same way for the caller.
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("idempotency record %s token mismatch: %w", rec.Key, domain.ErrConflict)
	}
	return nil
}

func (r *RecordStore) UpsertRecord(ctx context.Context, rec domain.ProcessingRecord) error {
	_, err := r.Pool.Exec(ctx, upsertRecordSQL, rec.Key, string(rec.Status), rec.Token, rec.UpdatedAt)
	return err
}

func (r *RecordStore) DeleteRecord(ctx context.Context, key string) error {
	_, err := r.Pool.Exec(ctx, deleteRecordSQL, key)
	return err
}
