package broker

import (
	"context"
	"errors"

	"artspire/pkg/models"
)

// ErrEventsDisabled is returned by NewConsumer when no broker type is
// configured.
var ErrEventsDisabled = errors.New("broker: events are disabled")

type Producer interface {
	Publish(ctx context.Context, topic string, event models.Event) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

type HandlerFunc func(ctx context.Context, event models.Event) error
