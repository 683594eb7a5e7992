package domain

import (
	"encoding/json"

	"github.com/taskdesk/domain-service/internal/contracts"
)

// TaskState is the current aggregate state of a task, derived by folding its
// event history. It is never persisted.
type TaskState struct {
	Title    string
	Notes    string
	Category string
	Order    int
	Done     bool
}

type taskPayload struct {
	Title    *string `json:"title"`
	Notes    *string `json:"notes"`
	Category *string `json:"category"`
	Order    *int    `json:"order"`
	Done     *bool   `json:"done"`
}

// ProjectTask folds an event history into the task's current state. The
// second return value reports whether any events exist for the task at all.
//
// The store already returns history in timestamp order, but the fold sorts a
// copy anyway since it is pure and cheap.
func ProjectTask(events []contracts.Event) (TaskState, bool) {
	if len(events) == 0 {
		return TaskState{}, false
	}

	ordered := make([]contracts.Event, len(events))
	copy(ordered, events)
	contracts.SortEvents(ordered)

	var state TaskState
	for _, ev := range ordered {
		applyTaskEvent(&state, ev)
	}
	return state, true
}

func applyTaskEvent(state *TaskState, ev contracts.Event) {
	switch ev.Type {
	case contracts.TaskCreated:
		var p taskPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		if p.Title != nil {
			state.Title = *p.Title
		}
		if p.Notes != nil {
			state.Notes = *p.Notes
		}
		if p.Category != nil {
			state.Category = *p.Category
		}
		if p.Order != nil {
			state.Order = *p.Order
		}
	case contracts.TaskUpdated:
		var p taskPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		if p.Title != nil {
			state.Title = *p.Title
		}
		if p.Notes != nil {
			state.Notes = *p.Notes
		}
		if p.Category != nil {
			state.Category = *p.Category
		}
		if p.Order != nil {
			state.Order = *p.Order
		}
		// An update can only clear the done flag (auto-reopen); it never
		// sets it. Completion goes through task-completed.
		if p.Done != nil && !*p.Done {
			state.Done = false
		}
	case contracts.TaskCompleted:
		state.Done = true
	case contracts.TaskReopened:
		state.Done = false
	}
}
