package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Storage sentinels. The store classifies conditional-write failures into
// these so the coordinator can react without sniffing backend error codes.
var (
	// ErrConflict reports a conditional write that lost: an insert hit an
	// existing row, or a replace saw a stale concurrency token.
	ErrConflict = errors.New("conflict")
	// ErrNotFound reports an absent record.
	ErrNotFound = errors.New("not found")
)

// ProcessingStatus is the lifecycle of an idempotency record.
type ProcessingStatus string

const (
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
)

// ProcessingRecord is the coordination record for one idempotency key. Token
// is the concurrency token compared on lease takeover.
type ProcessingRecord struct {
	Key       string
	Status    ProcessingStatus
	Token     string
	UpdatedAt time.Time
}

// RecordStore is the conditional-write surface the coordinator is built on.
type RecordStore interface {
	// InsertRecord creates the record, failing with ErrConflict if one
	// already exists for the key.
	InsertRecord(ctx context.Context, rec ProcessingRecord) error
	// GetRecord returns the record for the key, or ErrNotFound.
	GetRecord(ctx context.Context, key string) (ProcessingRecord, error)
	// ReplaceRecord overwrites the record only if its current token equals
	// expectedToken; otherwise it fails with ErrConflict. A vanished record
	// also fails with ErrConflict.
	ReplaceRecord(ctx context.Context, rec ProcessingRecord, expectedToken string) error
	// UpsertRecord writes the record unconditionally.
	UpsertRecord(ctx context.Context, rec ProcessingRecord) error
	// DeleteRecord removes the record; deleting an absent record is not an
	// error.
	DeleteRecord(ctx context.Context, key string) error
}

// StartResult is the outcome of TryStart.
type StartResult int

const (
	// Started grants this caller the execution for the key.
	Started StartResult = iota + 1
	// InProgress means another execution holds a fresh lease; back off and
	// let the transport redeliver.
	InProgress
	// AlreadyProcessed means a prior execution completed; only replay of
	// undispatched events remains.
	AlreadyProcessed
)

const DefaultLease = 30 * time.Second

// Coordinator grants at-most-one in-flight execution per idempotency key
// across any number of process instances. It holds no in-process locks;
// correctness comes entirely from the record store's conditional writes.
type Coordinator struct {
	Records  RecordStore
	Lease    time.Duration
	Now      func() time.Time
	NewToken func() string
}

func NewCoordinator(records RecordStore, lease time.Duration) *Coordinator {
	if lease <= 0 {
		lease = DefaultLease
	}
	return &Coordinator{
		Records:  records,
		Lease:    lease,
		Now:      func() time.Time { return time.Now().UTC() },
		NewToken: func() string { return uuid.Must(uuid.NewV4()).String() },
	}
}

// TryStart attempts to claim the key. A processing record whose lease has
// expired is reclaimed with a compare-and-swap on its token; losing that race
// retries the whole protocol once before reporting InProgress.
func (c *Coordinator) TryStart(ctx context.Context, key string) (StartResult, error) {
	for attempt := 0; attempt < 2; attempt++ {
		err := c.Records.InsertRecord(ctx, ProcessingRecord{
			Key:       key,
			Status:    StatusProcessing,
			Token:     c.NewToken(),
			UpdatedAt: c.Now(),
		})
		if err == nil {
			return Started, nil
		}
		if !errors.Is(err, ErrConflict) {
			return 0, fmt.Errorf("insert idempotency record: %w", err)
		}

		rec, err := c.Records.GetRecord(ctx, key)
		if errors.Is(err, ErrNotFound) {
			// Record vanished between insert and read; try again.
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("read idempotency record: %w", err)
		}

		if rec.Status == StatusCompleted {
			return AlreadyProcessed, nil
		}

		if c.Now().Sub(rec.UpdatedAt) < c.Lease {
			return InProgress, nil
		}

		// Stale lease: take it over if nobody beat us to it.
		err = c.Records.ReplaceRecord(ctx, ProcessingRecord{
			Key:       key,
			Status:    StatusProcessing,
			Token:     c.NewToken(),
			UpdatedAt: c.Now(),
		}, rec.Token)
		if err == nil {
			return Started, nil
		}
		if !errors.Is(err, ErrConflict) {
			return 0, fmt.Errorf("reclaim idempotency lease: %w", err)
		}
	}
	return InProgress, nil
}

// MarkSucceeded records the key as completed.
func (c *Coordinator) MarkSucceeded(ctx context.Context, key string) error {
	return c.Records.UpsertRecord(ctx, ProcessingRecord{
		Key:       key,
		Status:    StatusCompleted,
		Token:     c.NewToken(),
		UpdatedAt: c.Now(),
	})
}

// MarkFailed releases the key entirely so a redelivered command can retry
// from scratch.
func (c *Coordinator) MarkFailed(ctx context.Context, key string) error {
	return c.Records.DeleteRecord(ctx, key)
}
