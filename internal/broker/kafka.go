package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"artspire/internal/config"
	"artspire/internal/constants"
	"artspire/internal/logger"
	"artspire/pkg/logging"
	"artspire/pkg/metrics"
	"artspire/pkg/models"
	"artspire/pkg/retry"
	"artspire/pkg/tracing"
)

const eventTypeHeader = "event_type"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaProducer struct {
	writer messageWriter
	logger logger.Logger
}

func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
	}
	return &KafkaProducer{writer: w, logger: log}
}

// Publish writes event keyed by its id, so retries of the same event land
// on the same partition.
func (p *KafkaProducer) Publish(ctx context.Context, topic string, event models.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	headers := []kafka.Header{{Key: eventTypeHeader, Value: []byte(event.Type)}}
	headers = tracing.InjectKafkaHeaders(ctx, headers)

	start := time.Now()
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(event.ID),
		Value:   body,
		Headers: headers,
		Time:    start,
	})
	metrics.ObserveKafkaWriteDuration(serviceFromContext(ctx), topic, time.Since(start))
	if err != nil {
		metrics.IncEventPublished(event.Type, "error")
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	metrics.IncKafkaMessagesWritten(serviceFromContext(ctx), topic)
	metrics.IncEventPublished(event.Type, "success")
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

type KafkaConsumer struct {
	cfg         config.KafkaConfig
	logger      logger.Logger
	dlqProducer Producer
	serviceName string
	newReader   func(topic string) messageReader

	mu     sync.Mutex
	reader messageReader
}

func NewKafkaConsumer(cfg config.KafkaConfig, log logger.Logger) *KafkaConsumer {
	consumer := &KafkaConsumer{
		cfg:         cfg,
		logger:      log,
		serviceName: "unknown",
	}
	consumer.newReader = func(topic string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			GroupID:  cfg.GroupID,
			Topic:    topic,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		})
	}

	if cfg.DLQTopic != "" {
		consumer.dlqProducer = NewKafkaProducer(cfg, log)
	}

	return consumer
}

func (c *KafkaConsumer) SetServiceName(name string) {
	c.serviceName = name
}

// Consume blocks until ctx is cancelled, handing each event on topic to
// handler. Events that still fail after retries go to the DLQ topic when
// one is configured; either way they are committed so the partition keeps
// moving.
func (c *KafkaConsumer) Consume(ctx context.Context, topic string, handler HandlerFunc) error {
	c.logger.Infow("Creating Kafka reader",
		"topic", topic,
		"brokers", c.cfg.Brokers,
		"group_id", c.cfg.GroupID,
		"service_name", c.serviceName,
	)

	reader := c.newReader(topic)
	c.mu.Lock()
	c.reader = reader
	c.mu.Unlock()

	consumeCtx := logging.WithServiceName(ctx, c.serviceName)
	c.logger.InfowCtx(consumeCtx, "Started consuming", "topic", topic)
	policy := policyFromConfig(c.cfg.Retry)

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.InfowCtx(consumeCtx, "Stopped consuming",
					"topic", topic,
					"reason", "context canceled",
				)
				return ctx.Err()
			}
			c.logger.ErrorwCtx(consumeCtx, "Error fetching kafka message",
				"error", err,
				"topic", topic,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		metrics.IncKafkaMessagesRead(c.serviceName, topic)
		if m.HighWaterMark > 0 {
			metrics.SetKafkaConsumerLag(c.serviceName, topic, m.Partition, m.HighWaterMark-m.Offset-1)
		}
		c.handleMessage(ctx, reader, m, topic, policy, handler)
	}
}

func (c *KafkaConsumer) handleMessage(ctx context.Context, reader messageReader, m kafka.Message, topic string, policy retry.Policy, handler HandlerFunc) {
	msgCtx, span := tracing.StartSpanFromKafkaMessage(ctx, "kafka.consume "+topic, m.Headers)
	defer span.End()

	var event models.Event
	if err := json.Unmarshal(m.Value, &event); err != nil {
		c.logger.ErrorwCtx(msgCtx, "Failed to unmarshal event",
			"error", err,
			"topic", topic,
			"offset", m.Offset,
		)
		c.commit(ctx, reader, m, topic)
		return
	}
	if err := models.ValidateEvent(&event); err != nil {
		c.logger.ErrorwCtx(msgCtx, "Dropping invalid event",
			"error", err,
			"topic", topic,
			"offset", m.Offset,
		)
		c.commit(ctx, reader, m, topic)
		return
	}

	msgCtx = eventContext(msgCtx, event, c.serviceName)

	if err := processWithRetry(msgCtx, c.logger, c.serviceName, topic, policy, handler, event); err != nil {
		span.RecordError(err)
		c.logger.ErrorwCtx(msgCtx, "Failed to process event after retries",
			"error", err,
			"topic", topic,
			"event_id", event.ID,
		)
		if c.dlqProducer == nil {
			c.logger.WarnwCtx(msgCtx, "No DLQ configured, committing event to avoid blocking",
				"topic", topic,
			)
		} else if dlqErr := c.sendToDLQ(msgCtx, event, err, topic); dlqErr != nil {
			c.logger.ErrorwCtx(msgCtx, "Failed to send event to DLQ",
				"error", dlqErr,
				"topic", topic,
			)
		}
	}

	c.commit(ctx, reader, m, topic)
}

func (c *KafkaConsumer) commit(ctx context.Context, reader messageReader, m kafka.Message, topic string) {
	if err := reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.logger.ErrorwCtx(ctx, "Failed to commit message",
			"error", err,
			"topic", topic,
			"offset", m.Offset,
		)
	}
}

func (c *KafkaConsumer) Close() error {
	c.mu.Lock()
	reader := c.reader
	c.reader = nil
	c.mu.Unlock()

	var err error
	if reader != nil {
		err = reader.Close()
	}
	if c.dlqProducer != nil {
		if closeErr := c.dlqProducer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

func (c *KafkaConsumer) sendToDLQ(ctx context.Context, event models.Event, cause error, sourceTopic string) error {
	if err := c.dlqProducer.Publish(ctx, c.cfg.DLQTopic, withFailure(event, cause, sourceTopic)); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	metrics.DLQMessagesTotal.WithLabelValues(c.serviceName, sourceTopic, "max_retries_exceeded").Inc()
	c.logger.InfowCtx(ctx, "Event sent to DLQ",
		"source_topic", sourceTopic,
		"dlq_topic", c.cfg.DLQTopic,
		"reason", cause.Error(),
	)
	return nil
}
