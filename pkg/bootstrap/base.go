package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"artspire/internal/broker"
	"artspire/internal/config"
	"artspire/internal/logger"
	"artspire/internal/rabbitmq"
	"artspire/pkg/metrics"
)

// Base holds what every service builds first: config, logger, the AMQP
// dialer, the event producer/consumer and the shared RPC client.
type Base struct {
	Config   *config.Config
	Logger   logger.Logger
	Dialer   rabbitmq.Dialer
	Producer broker.Producer
	Consumer broker.Consumer
	Caller   rabbitmq.Caller

	rpcClient   *rabbitmq.Client
	serviceName string
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// InitRabbitMQ creates the dialer used by the RPC client, the supervised
// servers and the rabbitmq event broker. Nothing is dialed yet.
func (b *Base) InitRabbitMQ(serviceName string) {
	b.serviceName = serviceName
	if b.Dialer == nil {
		b.Dialer = rabbitmq.NewDialer(b.Config.RabbitMQ, serviceName, b.Logger.Named("amqp"))
	}
	metrics.RegisterRPCMetrics()
}

// InitBroker builds the event producer and consumer. A service whose
// config disables events gets a NopProducer and a nil Consumer.
func (b *Base) InitBroker(serviceName string) error {
	producer, err := broker.NewProducer(b.Config, b.Dialer, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}

	consumer, err := broker.NewConsumer(b.Config, b.Dialer, b.Logger)
	switch {
	case errors.Is(err, broker.ErrEventsDisabled):
		b.Logger.Infow("Event consumer disabled", "service", serviceName)
	case err != nil:
		producer.Close()
		return fmt.Errorf("failed to create consumer: %w", err)
	default:
		if serviceName != "" {
			consumer.SetServiceName(serviceName)
		}
	}

	metrics.RegisterBrokerMetrics()
	b.Producer = producer
	b.Consumer = consumer
	return nil
}

// InitRPCClient builds the shared RPC client, behind per-endpoint circuit
// breakers when they are enabled.
func (b *Base) InitRPCClient(serviceName string) {
	opts := []rabbitmq.ClientOption{
		rabbitmq.WithClientName(serviceName),
		rabbitmq.WithClientLogger(b.Logger.Named("rpc-client")),
		rabbitmq.WithExpiration(b.Config.RabbitMQ.MessageExpiration()),
	}
	if b.Config.RPC.CallTimeout > 0 {
		opts = append(opts, rabbitmq.WithCallTimeout(b.Config.RPC.CallTimeout))
	}

	b.rpcClient = rabbitmq.NewClient(b.Dialer, opts...)
	b.Caller = b.rpcClient
	if b.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
		b.Caller = rabbitmq.NewBreakerCaller(b.rpcClient, b.Config.CircuitBreaker, b.Logger)
	}
}

// Supervise returns a supervisor that keeps a server for queue alive,
// building a fresh server with handler after every failure.
func (b *Base) Supervise(queue string, handler rabbitmq.Handler) *rabbitmq.Supervisor {
	serverOpts := []rabbitmq.ServerOption{
		rabbitmq.WithServerLogger(b.Logger.Named("rpc-server")),
	}
	if b.serviceName != "" {
		serverOpts = append(serverOpts, rabbitmq.WithConsumerTag(b.serviceName+"."+queue))
	}
	if b.Config.RPC.ConnectRetryDelay > 0 {
		serverOpts = append(serverOpts, rabbitmq.WithConnectRetryDelay(b.Config.RPC.ConnectRetryDelay))
	}

	supervisorOpts := []rabbitmq.SupervisorOption{
		rabbitmq.WithSupervisorLogger(b.Logger.Named("supervisor")),
	}
	if b.Config.RPC.RestartDelay > 0 {
		supervisorOpts = append(supervisorOpts, rabbitmq.WithRestartDelay(b.Config.RPC.RestartDelay))
	}
	if b.Config.RPC.StopTimeout > 0 {
		supervisorOpts = append(supervisorOpts, rabbitmq.WithStopTimeout(b.Config.RPC.StopTimeout))
	}

	return rabbitmq.NewSupervisor(queue, func() rabbitmq.Runner {
		return rabbitmq.NewServer(queue, handler, b.Dialer, serverOpts...)
	}, supervisorOpts...)
}

func (b *Base) ShutdownBroker() []error {
	var errs []error

	if b.rpcClient != nil {
		if err := b.rpcClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("rpc client close error: %w", err))
		}
	}

	if b.Producer != nil {
		if err := b.Producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
	}

	if b.Consumer != nil {
		if err := b.Consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer close error: %w", err))
		}
	}

	return errs
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error

	errs = append(errs, b.ShutdownBroker()...)

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
