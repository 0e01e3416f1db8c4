package rabbitmq

import (
	"errors"
	"fmt"
)

var (
	ErrConnectionClosed = errors.New("rabbitmq: connection is closed")
	ErrChannelClosed    = errors.New("rabbitmq: channel is closed")
	ErrNotConnected     = errors.New("rabbitmq: server is not connected")

	ErrClientClosed = errors.New("rabbitmq: client is closed")
	ErrCallTimeout  = errors.New("rabbitmq: call timed out")

	// ErrMissingReplyTo is a protocol violation: the request cannot be
	// answered.
	ErrMissingReplyTo = errors.New("rabbitmq: request has no reply_to")
)

// ConnectionError represents a connection-related error
type ConnectionError struct {
	Op  string
	URL string // sanitized
	Err error
}

func (e *ConnectionError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("rabbitmq connection error: %s %s failed: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("rabbitmq connection error: %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ChannelError represents a channel-related error
type ChannelError struct {
	Op    string
	Queue string
	Err   error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("rabbitmq channel error: %s on queue %q: %v", e.Op, e.Queue, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// PublishError represents a publish operation error
type PublishError struct {
	RoutingKey    string
	CorrelationID string
	Err           error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("rabbitmq publish error: failed to publish %s to %q: %v", e.CorrelationID, e.RoutingKey, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// ConsumerError represents a consumer-related error
type ConsumerError struct {
	Queue string
	Op    string
	Err   error
}

func (e *ConsumerError) Error() string {
	return fmt.Sprintf("rabbitmq consumer error: %s failed on queue %q: %v", e.Op, e.Queue, e.Err)
}

func (e *ConsumerError) Unwrap() error {
	return e.Err
}

// HandlerError is returned by Server.Run when a delivery could not be
// answered. The delivery has already been rejected without requeue.
type HandlerError struct {
	Queue         string
	CorrelationID string
	Err           error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("rabbitmq handler error: request %s on queue %q: %v", e.CorrelationID, e.Queue, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
