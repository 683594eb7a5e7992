package domain

import (
	"context"
	"encoding/json"

	"github.com/taskdesk/domain-service/internal/contracts"
)

// DefaultUserSettings is the settings payload written on first login.
type UserSettings struct {
	TasksPerCategory int  `json:"tasksPerCategory"`
	ShowDoneTasks    bool `json:"showDoneTasks"`
}

var defaultUserSettings = UserSettings{TasksPerCategory: 3, ShowDoneTasks: false}

// LoginUser emits user-created plus user-settings-created with default
// settings on a user's first login, and user-logged-in on every later one.
// Both first-login events share the command's idempotency key; replay order
// between them is fixed by store insertion order since they share a
// timestamp.
func (s *Service) LoginUser(ctx context.Context, cmd Command) error {
	return s.run(ctx, s.Users, cmd.IdempotencyKey, func(ctx context.Context) ([]contracts.Event, error) {
		seen, err := s.Users.HasEvents(ctx, cmd.UserID)
		if err != nil {
			return nil, err
		}
		if seen {
			ev := s.newEvent(cmd, cmd.UserID, contracts.EntityUser, contracts.UserLoggedIn, nil)
			return []contracts.Event{ev}, nil
		}

		settings, err := json.Marshal(defaultUserSettings)
		if err != nil {
			return nil, err
		}
		created := s.newEvent(cmd, cmd.UserID, contracts.EntityUser, contracts.UserCreated, cmd.Data)
		settingsCreated := s.newEvent(cmd, cmd.UserID, contracts.EntityUserSettings, contracts.UserSettingsCreated, settings)
		return []contracts.Event{created, settingsCreated}, nil
	})
}

// LogoutUser records the logout. No precondition; state projection is
// skipped entirely.
func (s *Service) LogoutUser(ctx context.Context, cmd Command) error {
	return s.run(ctx, s.Users, cmd.IdempotencyKey, func(ctx context.Context) ([]contracts.Event, error) {
		ev := s.newEvent(cmd, cmd.UserID, contracts.EntityUser, contracts.UserLoggedOut, nil)
		return []contracts.Event{ev}, nil
	})
}

// UpdateUserSettings stores the submitted settings fields as-is.
func (s *Service) UpdateUserSettings(ctx context.Context, cmd Command) error {
	return s.run(ctx, s.Users, cmd.IdempotencyKey, func(ctx context.Context) ([]contracts.Event, error) {
		ev := s.newEvent(cmd, cmd.UserID, contracts.EntityUserSettings, contracts.UserSettingsUpdated, cmd.Data)
		return []contracts.Event{ev}, nil
	})
}
