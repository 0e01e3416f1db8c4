package rabbitmq

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const contentTypeJSON = "application/json"

// Request is one RPC call as it travels to a server queue.
type Request struct {
	CorrelationID string
	ReplyTo       string
	RoutingKey    string
	Body          []byte
	Headers       amqp.Table
	// Expiration is the per-message TTL in milliseconds, empty for none.
	Expiration string
}

func (r Request) Publishing() amqp.Publishing {
	return amqp.Publishing{
		ContentType:   contentTypeJSON,
		CorrelationId: r.CorrelationID,
		ReplyTo:       r.ReplyTo,
		Expiration:    r.Expiration,
		Headers:       r.Headers,
		Timestamp:     time.Now().UTC(),
		Body:          r.Body,
	}
}

func (r Request) Validate() error {
	if r.ReplyTo == "" {
		return ErrMissingReplyTo
	}
	return nil
}

func RequestFromDelivery(d amqp.Delivery) Request {
	return Request{
		CorrelationID: d.CorrelationId,
		ReplyTo:       d.ReplyTo,
		RoutingKey:    d.RoutingKey,
		Body:          d.Body,
		Headers:       d.Headers,
		Expiration:    d.Expiration,
	}
}

// Response is the reply a server publishes to the caller's reply queue.
type Response struct {
	CorrelationID string
	Body          []byte
	Headers       amqp.Table
}

func (r Response) Publishing() amqp.Publishing {
	return amqp.Publishing{
		ContentType:   contentTypeJSON,
		CorrelationId: r.CorrelationID,
		Headers:       r.Headers,
		Timestamp:     time.Now().UTC(),
		Body:          r.Body,
	}
}

func ResponseFromDelivery(d amqp.Delivery) Response {
	return Response{
		CorrelationID: d.CorrelationId,
		Body:          d.Body,
		Headers:       d.Headers,
	}
}
