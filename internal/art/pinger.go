package art

import (
	"context"
	"time"

	"artspire/internal/broker"
	"artspire/internal/constants"
	"artspire/internal/logger"
	"artspire/pkg/models"
)

// Pinger publishes a liveness event to a fixed topic on every tick. The
// first ping goes out immediately.
type Pinger struct {
	producer broker.Producer
	topic    string
	interval time.Duration
	source   string
	logger   logger.Logger
}

func NewPinger(producer broker.Producer, topic string, interval time.Duration, source string, log logger.Logger) *Pinger {
	if topic == "" {
		topic = constants.DefaultPingQueue
	}
	if interval <= 0 {
		interval = constants.DefaultPingPeriod
	}
	return &Pinger{
		producer: producer,
		topic:    topic,
		interval: interval,
		source:   source,
		logger:   log.Named("pinger"),
	}
}

func (p *Pinger) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.ping(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Pinger) ping(ctx context.Context) {
	event := models.NewEventBuilder(models.EventTypePing).
		WithSource(p.source).
		WithPayload(map[string]interface{}{"message": constants.PingMessageBody}).
		Build()

	if err := p.producer.Publish(ctx, p.topic, event); err != nil {
		if ctx.Err() == nil {
			p.logger.ErrorwCtx(ctx, "Error sending ping", "topic", p.topic, "error", err)
		}
		return
	}
	p.logger.DebugwCtx(ctx, "Ping", "topic", p.topic)
}
