package contracts

import (
	"encoding/json"
	"sort"
	"time"
)

// Entity types recognized by the domain service.
const (
	EntityTask         = "task"
	EntityUser         = "user"
	EntityUserSettings = "user-settings"
)

// Task event types.
const (
	TaskCreated   = "task-created"
	TaskUpdated   = "task-updated"
	TaskCompleted = "task-completed"
	TaskReopened  = "task-reopened"
)

// User and user-settings event types.
const (
	UserCreated         = "user-created"
	UserLoggedIn        = "user-logged-in"
	UserLoggedOut       = "user-logged-out"
	UserSettingsCreated = "user-settings-created"
	UserSettingsUpdated = "user-settings-updated"
)

// Command types accepted from the transport.
const (
	CreateTask         = "create-task"
	UpdateTask         = "update-task"
	CompleteTask       = "complete-task"
	ReopenTask         = "reopen-task"
	LoginUser          = "login-user"
	LogoutUser         = "logout-user"
	UpdateUserSettings = "update-user-settings"
)

// Event is the immutable record appended by command handlers and consumed
// downstream. Timestamp is logical event time in unix milliseconds, supplied
// by the client that issued the command.
type Event struct {
	ID             string          `json:"id"`
	EntityID       string          `json:"entityId"`
	EntityType     string          `json:"entityType"`
	Type           string          `json:"type"`
	Data           json.RawMessage `json:"data,omitempty"`
	Timestamp      int64           `json:"timestamp"`
	UserID         string          `json:"userId"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

// StoredEvent is an Event as it sits in the store. InsertedAt is assigned by
// the store and is used only to break timestamp ties during replay.
type StoredEvent struct {
	Event
	Dispatched bool
	InsertedAt time.Time
}

// CommandEnvelope is the inbound transport message. The inner command id
// doubles as the idempotency key for the execution it requests.
type CommandEnvelope struct {
	UserID  string         `json:"userId"`
	Command CommandMessage `json:"command"`
}

type CommandMessage struct {
	ID         string          `json:"id"`
	EntityType string          `json:"entityType"`
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  int64           `json:"timestamp"`
}

// SortEvents orders events by timestamp, breaking ties by id. This is the
// per-entity history order used for state projection.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Timestamp != events[j].Timestamp {
			return events[i].Timestamp < events[j].Timestamp
		}
		return events[i].ID < events[j].ID
	})
}

// SortStoredEvents orders stored events by timestamp, then store insertion
// time, then id. This total order defines replay order and must stay stable
// even when caller-supplied timestamps tie.
func SortStoredEvents(events []StoredEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Timestamp != events[j].Timestamp {
			return events[i].Timestamp < events[j].Timestamp
		}
		if !events[i].InsertedAt.Equal(events[j].InsertedAt) {
			return events[i].InsertedAt.Before(events[j].InsertedAt)
		}
		return events[i].ID < events[j].ID
	})
}
