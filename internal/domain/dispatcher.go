package domain

import (
	"context"
	"errors"
	"log"

	"github.com/taskdesk/domain-service/internal/contracts"
)

// Queue is the primary downstream consumer of finished events.
type Queue interface {
	Add(ctx context.Context, ev contracts.Event) error
}

// FallbackClient updates the read model directly when the queue is down.
type FallbackClient interface {
	Send(ctx context.Context, ev contracts.Event) error
}

// Dispatcher hands a finished event to downstream consumers.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev contracts.Event) error
}

// ResilientDispatcher gives every event one attempt at the queue and, on
// non-cancellation failure, one attempt at the synchronous fallback. It never
// retries beyond that; retry-by-redelivery belongs to the transport.
type ResilientDispatcher struct {
	Queue    Queue
	Fallback FallbackClient
}

func NewResilientDispatcher(queue Queue, fallback FallbackClient) *ResilientDispatcher {
	return &ResilientDispatcher{Queue: queue, Fallback: fallback}
}

func (d *ResilientDispatcher) Dispatch(ctx context.Context, ev contracts.Event) error {
	err := d.Queue.Add(ctx, ev)
	if err == nil {
		return nil
	}
	// Cancellation propagates without touching the fallback path: half
	// finished work must not be duplicated.
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	log.Printf("queue dispatch failed for event %s, falling back to read-model update: %v", ev.ID, err)
	return d.Fallback.Send(ctx, ev)
}
