package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/taskdesk/domain-service/internal/contracts"
)

type fakeQueue struct {
	added []contracts.Event
	err   error
}

func (q *fakeQueue) Add(_ context.Context, ev contracts.Event) error {
	if q.err != nil {
		return q.err
	}
	q.added = append(q.added, ev)
	return nil
}

type fakeFallback struct {
	sent []contracts.Event
	err  error
}

func (f *fakeFallback) Send(_ context.Context, ev contracts.Event) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, ev)
	return nil
}

func TestDispatch_QueueSuccessSkipsFallback(t *testing.T) {
	queue := &fakeQueue{}
	fallback := &fakeFallback{}
	d := NewResilientDispatcher(queue, fallback)

	if err := d.Dispatch(context.Background(), contracts.Event{ID: "e1"}); err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if len(queue.added) != 1 || len(fallback.sent) != 0 {
		t.Fatalf("expected queue only, got queue=%d fallback=%d", len(queue.added), len(fallback.sent))
	}
}

func TestDispatch_QueueFailureFallsBack(t *testing.T) {
	queue := &fakeQueue{err: errors.New("queue down")}
	fallback := &fakeFallback{}
	d := NewResilientDispatcher(queue, fallback)

	if err := d.Dispatch(context.Background(), contracts.Event{ID: "e1"}); err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if len(fallback.sent) != 1 || fallback.sent[0].ID != "e1" {
		t.Fatalf("expected fallback to receive the event, got %+v", fallback.sent)
	}
}

func TestDispatch_FallbackFailurePropagates(t *testing.T) {
	queue := &fakeQueue{err: errors.New("queue down")}
	fallbackErr := errors.New("updater down")
	d := NewResilientDispatcher(queue, &fakeFallback{err: fallbackErr})

	err := d.Dispatch(context.Background(), contracts.Event{ID: "e1"})
	if !errors.Is(err, fallbackErr) {
		t.Fatalf("expected fallback error, got %v", err)
	}
}

func TestDispatch_CancellationSkipsFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	queue := &fakeQueue{err: ctx.Err()}
	fallback := &fakeFallback{}
	d := NewResilientDispatcher(queue, fallback)

	err := d.Dispatch(ctx, contracts.Event{ID: "e1"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation to propagate, got %v", err)
	}
	if len(fallback.sent) != 0 {
		t.Fatal("fallback must not run on cancellation")
	}
}
