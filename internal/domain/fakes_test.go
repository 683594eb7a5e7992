package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/taskdesk/domain-service/internal/contracts"
)

// memStore is a deterministic in-memory EventStore. Insertion order stands in
// for the store-assigned insertedAt sequence.
type memStore struct {
	events    []contracts.StoredEvent
	appendErr error
}

var memStoreEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func (m *memStore) Append(_ context.Context, ev contracts.Event) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	for _, se := range m.events {
		if se.ID == ev.ID && se.EntityID == ev.EntityID {
			return fmt.Errorf("event %s already exists: %w", ev.ID, ErrConflict)
		}
	}
	m.events = append(m.events, contracts.StoredEvent{
		Event:      ev,
		Dispatched: false,
		InsertedAt: memStoreEpoch.Add(time.Duration(len(m.events)) * time.Millisecond),
	})
	return nil
}

func (m *memStore) GetHistory(_ context.Context, entityID string) ([]contracts.Event, error) {
	var events []contracts.Event
	for _, se := range m.events {
		if se.EntityID == entityID {
			events = append(events, se.Event)
		}
	}
	contracts.SortEvents(events)
	return events, nil
}

func (m *memStore) FindByIdempotencyKey(_ context.Context, key string) ([]contracts.StoredEvent, error) {
	var events []contracts.StoredEvent
	for _, se := range m.events {
		if se.IdempotencyKey == key {
			events = append(events, se)
		}
	}
	contracts.SortStoredEvents(events)
	return events, nil
}

func (m *memStore) MarkDispatched(_ context.Context, ev contracts.Event) error {
	for i := range m.events {
		if m.events[i].ID == ev.ID && m.events[i].EntityID == ev.EntityID {
			m.events[i].Dispatched = true
		}
	}
	return nil
}

func (m *memStore) ExistsByIdempotencyKey(_ context.Context, key string) (bool, error) {
	for _, se := range m.events {
		if se.IdempotencyKey == key {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) HasEvents(_ context.Context, entityID string) (bool, error) {
	for _, se := range m.events {
		if se.EntityID == entityID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) byType(eventType string) []contracts.StoredEvent {
	var matched []contracts.StoredEvent
	for _, se := range m.events {
		if se.Type == eventType {
			matched = append(matched, se)
		}
	}
	return matched
}

// memRecords is an in-memory RecordStore honoring the conditional-write
// contract.
type memRecords struct {
	recs       map[string]ProcessingRecord
	replaceErr error
}

func newMemRecords() *memRecords {
	return &memRecords{recs: map[string]ProcessingRecord{}}
}

func (m *memRecords) InsertRecord(_ context.Context, rec ProcessingRecord) error {
	if _, ok := m.recs[rec.Key]; ok {
		return fmt.Errorf("record %s exists: %w", rec.Key, ErrConflict)
	}
	m.recs[rec.Key] = rec
	return nil
}

func (m *memRecords) GetRecord(_ context.Context, key string) (ProcessingRecord, error) {
	rec, ok := m.recs[key]
	if !ok {
		return ProcessingRecord{}, fmt.Errorf("record %s: %w", key, ErrNotFound)
	}
	return rec, nil
}

func (m *memRecords) ReplaceRecord(_ context.Context, rec ProcessingRecord, expectedToken string) error {
	if m.replaceErr != nil {
		return m.replaceErr
	}
	current, ok := m.recs[rec.Key]
	if !ok || current.Token != expectedToken {
		return fmt.Errorf("record %s token mismatch: %w", rec.Key, ErrConflict)
	}
	m.recs[rec.Key] = rec
	return nil
}

func (m *memRecords) UpsertRecord(_ context.Context, rec ProcessingRecord) error {
	m.recs[rec.Key] = rec
	return nil
}

func (m *memRecords) DeleteRecord(_ context.Context, key string) error {
	delete(m.recs, key)
	return nil
}

// fakeDispatcher records dispatched events and can fail a fixed number of
// times first.
type fakeDispatcher struct {
	dispatched []contracts.Event
	failures   int
	err        error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, ev contracts.Event) error {
	if d.failures > 0 {
		d.failures--
		return d.err
	}
	d.dispatched = append(d.dispatched, ev)
	return nil
}

type testEnv struct {
	svc        *Service
	tasks      *memStore
	users      *memStore
	records    *memRecords
	dispatcher *fakeDispatcher
	now        time.Time
}

func newTestEnv() *testEnv {
	env := &testEnv{
		tasks:      &memStore{},
		users:      &memStore{},
		records:    newMemRecords(),
		dispatcher: &fakeDispatcher{},
		now:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	coordinator := NewCoordinator(env.records, DefaultLease)
	coordinator.Now = func() time.Time { return env.now }
	tokenSeq := 0
	coordinator.NewToken = func() string {
		tokenSeq++
		return fmt.Sprintf("token-%d", tokenSeq)
	}

	env.svc = NewService(env.tasks, env.users, coordinator, env.dispatcher)
	idSeq := 0
	env.svc.NewID = func() string {
		idSeq++
		return fmt.Sprintf("id-%d", idSeq)
	}
	return env
}

func taskCommand(key, cmdType, entityID string, data string) Command {
	var raw []byte
	if data != "" {
		raw = []byte(data)
	}
	return Command{
		EntityID:       entityID,
		EntityType:     contracts.EntityTask,
		Type:           cmdType,
		Data:           raw,
		UserID:         "user-1",
		Timestamp:      1000,
		IdempotencyKey: key,
	}
}
