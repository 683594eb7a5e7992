package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/taskdesk/domain-service/internal/contracts"
)

var (
	ErrUnknownCommand  = errors.New("unknown command")
	ErrMissingEntityID = errors.New("command payload is missing entity id")
	ErrMissingUserID   = errors.New("command envelope is missing userId")
	ErrMissingKey      = errors.New("command envelope is missing command id")
)

// Command is one typed, parsed unit of intent. It is consumed by exactly one
// handler invocation and never persisted. EntityID is empty for commands that
// create their entity (create-task) and for user commands, which address the
// acting user.
type Command struct {
	EntityID       string
	EntityType     string
	Type           string
	Data           json.RawMessage
	UserID         string
	Timestamp      int64
	IdempotencyKey string
}

// ParseCommand maps an inbound envelope to a typed Command. Unknown
// (entityType, type) combinations fail with ErrUnknownCommand so the
// transport can reject the message instead of silently dropping it.
func ParseCommand(env contracts.CommandEnvelope) (Command, error) {
	if env.UserID == "" {
		return Command{}, ErrMissingUserID
	}
	if env.Command.ID == "" {
		return Command{}, ErrMissingKey
	}

	cmd := Command{
		EntityType:     env.Command.EntityType,
		Type:           env.Command.Type,
		Data:           env.Command.Data,
		UserID:         env.UserID,
		Timestamp:      env.Command.Timestamp,
		IdempotencyKey: env.Command.ID,
	}

	switch env.Command.EntityType {
	case contracts.EntityTask:
		switch env.Command.Type {
		case contracts.CreateTask:
			return cmd, nil
		case contracts.UpdateTask, contracts.CompleteTask, contracts.ReopenTask:
			id, err := payloadEntityID(env.Command.Data)
			if err != nil {
				return Command{}, err
			}
			cmd.EntityID = id
			return cmd, nil
		}
	case contracts.EntityUser:
		switch env.Command.Type {
		case contracts.LoginUser, contracts.LogoutUser:
			cmd.EntityID = env.UserID
			return cmd, nil
		}
	case contracts.EntityUserSettings:
		if env.Command.Type == contracts.UpdateUserSettings {
			cmd.EntityID = env.UserID
			return cmd, nil
		}
	}

	return Command{}, fmt.Errorf("%w: %s/%s", ErrUnknownCommand, env.Command.EntityType, env.Command.Type)
}

func payloadEntityID(data json.RawMessage) (string, error) {
	var p struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.ID == "" {
		return "", ErrMissingEntityID
	}
	return p.ID, nil
}
