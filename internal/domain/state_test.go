package domain

import (
	"testing"

	"github.com/taskdesk/domain-service/internal/contracts"
)

func event(id string, ts int64, eventType, data string) contracts.Event {
	ev := contracts.Event{ID: id, EntityID: "t1", EntityType: contracts.EntityTask, Type: eventType, Timestamp: ts}
	if data != "" {
		ev.Data = []byte(data)
	}
	return ev
}

func TestProjectTask_CreateThenComplete(t *testing.T) {
	state, exists := ProjectTask([]contracts.Event{
		event("e1", 100, contracts.TaskCreated, `{"title":"write report","category":"work","order":2}`),
		event("e2", 200, contracts.TaskCompleted, ""),
	})

	if !exists {
		t.Fatal("expected task to exist")
	}
	if state.Title != "write report" || state.Category != "work" || state.Order != 2 {
		t.Fatalf("unexpected state: %+v", state)
	}
	if !state.Done {
		t.Fatal("expected done after task-completed")
	}
}

func TestProjectTask_UpdateMergesOnlyPresentFields(t *testing.T) {
	state, _ := ProjectTask([]contracts.Event{
		event("e1", 100, contracts.TaskCreated, `{"title":"t","notes":"n","category":"work"}`),
		event("e2", 200, contracts.TaskUpdated, `{"notes":"updated"}`),
	})

	if state.Notes != "updated" {
		t.Fatalf("expected merged notes, got %q", state.Notes)
	}
	if state.Title != "t" || state.Category != "work" {
		t.Fatalf("untouched fields changed: %+v", state)
	}
}

func TestProjectTask_UpdateDoneFalseClearsFlag(t *testing.T) {
	state, _ := ProjectTask([]contracts.Event{
		event("e1", 100, contracts.TaskCreated, `{"title":"t"}`),
		event("e2", 200, contracts.TaskCompleted, ""),
		event("e3", 300, contracts.TaskUpdated, `{"category":"fun","done":false}`),
	})

	if state.Done {
		t.Fatal("expected done cleared by update with done:false")
	}
}

func TestProjectTask_UpdateDoneTrueIsIgnored(t *testing.T) {
	state, _ := ProjectTask([]contracts.Event{
		event("e1", 100, contracts.TaskCreated, `{"title":"t"}`),
		event("e2", 200, contracts.TaskUpdated, `{"done":true}`),
	})

	if state.Done {
		t.Fatal("done must not be settable through the update path")
	}
}

func TestProjectTask_Reopened(t *testing.T) {
	state, _ := ProjectTask([]contracts.Event{
		event("e1", 100, contracts.TaskCreated, `{"title":"t"}`),
		event("e2", 200, contracts.TaskCompleted, ""),
		event("e3", 300, contracts.TaskReopened, ""),
	})

	if state.Done {
		t.Fatal("expected done cleared by task-reopened")
	}
}

func TestProjectTask_SortsUnorderedInput(t *testing.T) {
	state, _ := ProjectTask([]contracts.Event{
		event("e2", 200, contracts.TaskCompleted, ""),
		event("e1", 100, contracts.TaskCreated, `{"title":"t"}`),
	})

	if !state.Done || state.Title != "t" {
		t.Fatalf("fold did not normalize order: %+v", state)
	}
}

func TestProjectTask_NoEvents(t *testing.T) {
	_, exists := ProjectTask(nil)
	if exists {
		t.Fatal("expected no state for empty history")
	}
}
