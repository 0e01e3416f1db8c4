package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/trace"

	"artspire/internal/config"
	"artspire/internal/constants"
	"artspire/internal/logger"
	"artspire/internal/rabbitmq"
	"artspire/pkg/logging"
	"artspire/pkg/metrics"
	"artspire/pkg/models"
	"artspire/pkg/retry"
	"artspire/pkg/tracing"
)

const exchangeKind = "topic"

// RabbitMQProducer publishes events over AMQP. With an exchange configured
// the topic is the routing key on that exchange; without one the topic
// names a durable queue on the default exchange.
type RabbitMQProducer struct {
	dialer   rabbitmq.Dialer
	exchange string
	logger   logger.Logger

	mu       sync.Mutex
	conn     *rabbitmq.Connection
	declared map[string]bool
}

func NewRabbitMQProducer(dialer rabbitmq.Dialer, exchange string, log logger.Logger) *RabbitMQProducer {
	if log == nil {
		log = logger.NopLogger()
	}
	return &RabbitMQProducer{
		dialer:   dialer,
		exchange: exchange,
		logger:   log.Named("event-producer"),
		declared: make(map[string]bool),
	}
}

func (p *RabbitMQProducer) Publish(ctx context.Context, topic string, event models.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensure(ctx, topic); err != nil {
		metrics.IncEventPublished(event.Type, "error")
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Type:         event.Type,
		Timestamp:    event.Timestamp,
		Headers:      tracing.InjectAMQPHeaders(ctx, nil),
		Body:         body,
	}
	if err := p.conn.PublishTo(ctx, p.exchange, topic, msg); err != nil {
		p.resetLocked()
		metrics.IncEventPublished(event.Type, "error")
		return &rabbitmq.PublishError{RoutingKey: topic, Err: err}
	}

	metrics.IncEventPublished(event.Type, "success")
	p.logger.DebugwCtx(ctx, "Event published",
		"topic", topic,
		"event_id", event.ID,
		"event_type", event.Type,
	)
	return nil
}

// ensure dials on first use or after a failed publish and declares the
// destination once per connection.
func (p *RabbitMQProducer) ensure(ctx context.Context, topic string) error {
	if p.conn == nil {
		conn, err := p.dialer.Dial(ctx)
		if err != nil {
			return err
		}
		p.conn = conn
		p.declared = make(map[string]bool)
	}

	if p.exchange != "" {
		if !p.declared[p.exchange] {
			if err := p.conn.DeclareExchange(p.exchange, exchangeKind); err != nil {
				p.resetLocked()
				return err
			}
			p.declared[p.exchange] = true
		}
		return nil
	}

	if !p.declared[topic] {
		if _, err := p.conn.DeclareQueue(rabbitmq.ServerQueue(topic)); err != nil {
			p.resetLocked()
			return err
		}
		p.declared[topic] = true
	}
	return nil
}

func (p *RabbitMQProducer) resetLocked() {
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *RabbitMQProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

// RabbitMQConsumer reads events from the queue for a topic. With an
// exchange configured each service gets its own queue, named
// "<topic>.<service>" and bound to the topic, so every service sees every
// event.
type RabbitMQConsumer struct {
	dialer      rabbitmq.Dialer
	exchange    string
	policy      retry.Policy
	logger      logger.Logger
	serviceName string
	retryDelay  time.Duration

	mu   sync.Mutex
	conn *rabbitmq.Connection
}

func NewRabbitMQConsumer(dialer rabbitmq.Dialer, exchange string, retryCfg config.RetryConfig, log logger.Logger) *RabbitMQConsumer {
	if log == nil {
		log = logger.NopLogger()
	}
	return &RabbitMQConsumer{
		dialer:      dialer,
		exchange:    exchange,
		policy:      policyFromConfig(retryCfg),
		logger:      log.Named("event-consumer"),
		serviceName: "unknown",
		retryDelay:  constants.DefaultConnectRetryDelay,
	}
}

func (c *RabbitMQConsumer) SetServiceName(name string) {
	c.serviceName = name
}

func (c *RabbitMQConsumer) queueName(topic string) string {
	if c.exchange == "" {
		return topic
	}
	return topic + "." + c.serviceName
}

// Consume blocks until ctx is cancelled, reconnecting whenever the broker
// drops the connection.
func (c *RabbitMQConsumer) Consume(ctx context.Context, topic string, handler HandlerFunc) error {
	ctx = logging.WithServiceName(ctx, c.serviceName)
	queue := c.queueName(topic)

	for {
		var (
			deliveries <-chan amqp.Delivery
			closed     <-chan *amqp.Error
		)
		err := retry.Forever(ctx, c.retryDelay, func() error {
			var err error
			deliveries, closed, err = c.subscribe(ctx, topic, queue)
			return err
		}, func(attempt int, err error) {
			c.logger.WarnwCtx(ctx, "Failed to subscribe to events, retrying",
				"attempt", attempt,
				"queue", queue,
				"error", err,
			)
		})
		if err != nil {
			return err
		}

		c.logger.InfowCtx(ctx, "Started consuming", "topic", topic, "queue", queue)
		if err := c.drain(ctx, topic, deliveries, closed, handler); err != nil {
			c.closeConn()
			if ctx.Err() != nil {
				c.logger.InfowCtx(ctx, "Stopped consuming", "topic", topic, "reason", "context canceled")
				return ctx.Err()
			}
			c.logger.WarnwCtx(ctx, "Event subscription lost, resubscribing",
				"topic", topic,
				"error", err,
			)
		}
	}
}

func (c *RabbitMQConsumer) subscribe(ctx context.Context, topic, queue string) (<-chan amqp.Delivery, <-chan *amqp.Error, error) {
	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		return nil, nil, err
	}

	setup := func() (<-chan amqp.Delivery, error) {
		if _, err := conn.DeclareQueue(rabbitmq.ServerQueue(queue)); err != nil {
			return nil, err
		}
		if c.exchange != "" {
			if err := conn.DeclareExchange(c.exchange, exchangeKind); err != nil {
				return nil, err
			}
			if err := conn.BindQueue(queue, topic, c.exchange); err != nil {
				return nil, err
			}
		}
		return conn.Consume(queue, c.serviceName)
	}

	closed := conn.NotifyClose()
	deliveries, err := setup()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return deliveries, closed, nil
}

func (c *RabbitMQConsumer) drain(ctx context.Context, topic string, deliveries <-chan amqp.Delivery, closed <-chan *amqp.Error, handler HandlerFunc) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr != nil {
				return &rabbitmq.ConnectionError{Op: "consume", Err: amqpErr}
			}
			return &rabbitmq.ConnectionError{Op: "consume", Err: rabbitmq.ErrConnectionClosed}
		case d, ok := <-deliveries:
			if !ok {
				return &rabbitmq.ConsumerError{Queue: c.queueName(topic), Op: "consume", Err: rabbitmq.ErrChannelClosed}
			}
			c.handleDelivery(ctx, topic, d, handler)
		}
	}
}

// handleDelivery acks processed events and rejects the rest without
// requeue; a redelivered poison event would otherwise loop forever.
func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, topic string, d amqp.Delivery, handler HandlerFunc) {
	msgCtx, span := tracing.StartSpanFromDelivery(ctx, "rabbitmq.consume "+topic, d.Headers, trace.SpanKindConsumer)
	defer span.End()

	var event models.Event
	if err := json.Unmarshal(d.Body, &event); err != nil {
		c.logger.ErrorwCtx(msgCtx, "Failed to unmarshal event",
			"error", err,
			"topic", topic,
			"message_id", d.MessageId,
		)
		c.reject(msgCtx, d, topic, "invalid_json")
		return
	}
	if err := models.ValidateEvent(&event); err != nil {
		c.logger.ErrorwCtx(msgCtx, "Dropping invalid event",
			"error", err,
			"topic", topic,
			"message_id", d.MessageId,
		)
		c.reject(msgCtx, d, topic, "invalid_event")
		return
	}

	msgCtx = eventContext(msgCtx, event, c.serviceName)
	if err := processWithRetry(msgCtx, c.logger, c.serviceName, topic, c.policy, handler, event); err != nil {
		span.RecordError(err)
		c.logger.ErrorwCtx(msgCtx, "Failed to process event after retries",
			"error", err,
			"topic", topic,
			"event_id", event.ID,
		)
		c.reject(msgCtx, d, topic, "max_retries_exceeded")
		return
	}

	if err := d.Ack(false); err != nil {
		c.logger.ErrorwCtx(msgCtx, "Failed to ack event", "error", err, "topic", topic)
	}
}

func (c *RabbitMQConsumer) reject(ctx context.Context, d amqp.Delivery, topic, reason string) {
	metrics.DLQMessagesTotal.WithLabelValues(c.serviceName, topic, reason).Inc()
	if err := d.Nack(false, false); err != nil {
		c.logger.ErrorwCtx(ctx, "Failed to reject event", "error", err, "topic", topic)
	}
}

func (c *RabbitMQConsumer) closeConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *RabbitMQConsumer) Close() error {
	c.closeConn()
	return nil
}
