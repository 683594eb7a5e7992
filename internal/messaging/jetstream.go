package messaging

import (
	"errors"

	"github.com/nats-io/nats.go"
)

const (
	commandsStream = "COMMANDS"
	eventsStream   = "EVENTS"
)

// CommandSubjects is the wildcard the domain service consumes commands from.
const CommandSubjects = "app.command.>"

// EventSubjects is the wildcard downstream consumers read events from.
const EventSubjects = "app.event.>"

// EnsureStreams creates (or validates) the two streams the service needs:
// - app.command.> (inbound command envelopes)
// - app.event.>   (dispatched domain events)
func EnsureStreams(js nats.JetStreamContext) error {
	if err := ensureStream(js, commandsStream, CommandSubjects); err != nil {
		return err
	}
	return ensureStream(js, eventsStream, EventSubjects)
}

func ensureStream(js nats.JetStreamContext, name, subjects string) error {
	_, err := js.StreamInfo(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      name,
		Subjects:  []string{subjects},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		Replicas:  1,
	})
	return err
}
