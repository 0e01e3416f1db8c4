package broker

import (
	"context"
	"fmt"

	"artspire/internal/config"
	"artspire/internal/constants"
	"artspire/internal/logger"
	"artspire/internal/rabbitmq"
	"artspire/pkg/models"
)

// NewProducer builds the producer for cfg.Broker.Type. With no type
// configured events are dropped by a NopProducer.
func NewProducer(cfg *config.Config, dialer rabbitmq.Dialer, log logger.Logger) (Producer, error) {
	switch cfg.Broker.Type {
	case "":
		return NopProducer{}, nil
	case constants.BrokerTypeKafka:
		return NewKafkaProducer(cfg.Broker.Kafka, log), nil
	case constants.BrokerTypeRabbitMQ:
		return NewRabbitMQProducer(dialer, cfg.RabbitMQ.Exchange, log), nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Broker.Type)
	}
}

func NewConsumer(cfg *config.Config, dialer rabbitmq.Dialer, log logger.Logger) (Consumer, error) {
	switch cfg.Broker.Type {
	case "":
		return nil, ErrEventsDisabled
	case constants.BrokerTypeKafka:
		return NewKafkaConsumer(cfg.Broker.Kafka, log), nil
	case constants.BrokerTypeRabbitMQ:
		return NewRabbitMQConsumer(dialer, cfg.RabbitMQ.Exchange, cfg.Broker.Kafka.Retry, log), nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Broker.Type)
	}
}

// NopProducer discards every event.
type NopProducer struct{}

func (NopProducer) Publish(ctx context.Context, topic string, event models.Event) error {
	return nil
}

func (NopProducer) Close() error {
	return nil
}
