package commandapi

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nuid"
	"github.com/taskdesk/domain-service/internal/contracts"
	"github.com/taskdesk/domain-service/internal/domain"
	"github.com/taskdesk/domain-service/internal/sharding"
)

type PublishFunc func(subject string, payload []byte) error

// Service accepts command envelopes, stamps missing ids and timestamps, and
// publishes them to the sharded command stream. Authentication happens
// upstream; the envelope's userId is trusted here.
type Service struct {
	Publish PublishFunc
	Now     func() time.Time
	NewID   func() string
}

type CommandResponse struct {
	Status    string `json:"status"`
	CommandID string `json:"commandId"`
}

func NewService(publish PublishFunc) *Service {
	return &Service{
		Publish: publish,
		Now:     func() time.Time { return time.Now().UTC() },
		NewID:   nuid.Next,
	}
}

func (s *Service) Accept(env contracts.CommandEnvelope) (CommandResponse, error) {
	if env.Command.ID == "" {
		env.Command.ID = s.NewID()
	}
	if env.Command.Timestamp == 0 {
		env.Command.Timestamp = s.Now().UnixMilli()
	}

	// Parsing validates the envelope and resolves the entity the command
	// addresses; the worker parses again on its side of the stream.
	cmd, err := domain.ParseCommand(env)
	if err != nil {
		return CommandResponse{}, err
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return CommandResponse{}, err
	}

	// Commands without a target entity yet (create-task) shard by command
	// id; everything else shards by entity so per-entity order holds.
	routingKey := cmd.EntityID
	if routingKey == "" {
		routingKey = cmd.IdempotencyKey
	}
	subject := sharding.CommandSubject(cmd.EntityType, routingKey)
	if err := s.Publish(subject, payload); err != nil {
		return CommandResponse{}, err
	}

	return CommandResponse{Status: "accepted", CommandID: env.Command.ID}, nil
}
