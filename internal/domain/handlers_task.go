package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/taskdesk/domain-service/internal/contracts"
)

// CreateTask stores and dispatches a task-created event for a freshly
// generated task id. There is no precondition.
func (s *Service) CreateTask(ctx context.Context, cmd Command) error {
	return s.run(ctx, s.Tasks, cmd.IdempotencyKey, func(ctx context.Context) ([]contracts.Event, error) {
		taskID := s.NewID()
		ev := s.newEvent(cmd, taskID, contracts.EntityTask, contracts.TaskCreated, cmd.Data)
		return []contracts.Event{ev}, nil
	})
}

// UpdateTask merges the submitted fields into the task. The task id travels
// out of band, so an id field in the payload is stripped before the event is
// stored. Moving a done task to any category other than "done" reopens it by
// merging done:false into the same event.
func (s *Service) UpdateTask(ctx context.Context, cmd Command) error {
	return s.run(ctx, s.Tasks, cmd.IdempotencyKey, func(ctx context.Context) ([]contracts.Event, error) {
		history, err := s.Tasks.GetHistory(ctx, cmd.EntityID)
		if err != nil {
			return nil, err
		}
		state, exists := ProjectTask(history)
		if !exists {
			return nil, nil
		}

		payload, err := updatePayload(cmd.Data, state)
		if err != nil {
			return nil, err
		}

		ev := s.newEvent(cmd, cmd.EntityID, contracts.EntityTask, contracts.TaskUpdated, payload)
		return []contracts.Event{ev}, nil
	})
}

// CompleteTask marks an existing, not yet done task as done.
func (s *Service) CompleteTask(ctx context.Context, cmd Command) error {
	return s.run(ctx, s.Tasks, cmd.IdempotencyKey, func(ctx context.Context) ([]contracts.Event, error) {
		history, err := s.Tasks.GetHistory(ctx, cmd.EntityID)
		if err != nil {
			return nil, err
		}
		state, exists := ProjectTask(history)
		if !exists || state.Done {
			return nil, nil
		}

		ev := s.newEvent(cmd, cmd.EntityID, contracts.EntityTask, contracts.TaskCompleted, nil)
		return []contracts.Event{ev}, nil
	})
}

// ReopenTask clears the done flag of an existing, done task.
func (s *Service) ReopenTask(ctx context.Context, cmd Command) error {
	return s.run(ctx, s.Tasks, cmd.IdempotencyKey, func(ctx context.Context) ([]contracts.Event, error) {
		history, err := s.Tasks.GetHistory(ctx, cmd.EntityID)
		if err != nil {
			return nil, err
		}
		state, exists := ProjectTask(history)
		if !exists || !state.Done {
			return nil, nil
		}

		ev := s.newEvent(cmd, cmd.EntityID, contracts.EntityTask, contracts.TaskReopened, nil)
		return []contracts.Event{ev}, nil
	})
}

// updatePayload strips the out-of-band id field and applies the auto-reopen
// rule: a done task moved to a category other than "done" gets done:false
// merged into the update.
func updatePayload(data json.RawMessage, state TaskState) (json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("decode update payload: %w", err)
		}
	}
	delete(fields, "id")

	if state.Done {
		if raw, ok := fields["category"]; ok {
			var category string
			if err := json.Unmarshal(raw, &category); err == nil && !strings.EqualFold(category, "done") {
				fields["done"] = json.RawMessage("false")
			}
		}
	}

	return json.Marshal(fields)
}
