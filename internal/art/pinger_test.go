package art

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artspire/internal/logger"
	"artspire/pkg/models"
)

type recordingProducer struct {
	mu     sync.Mutex
	topics []string
	events []models.Event
	err    error
}

func (p *recordingProducer) Publish(_ context.Context, topic string, event models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingProducer) Close() error { return nil }

func (p *recordingProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestPinger_PublishesOnEveryTick(t *testing.T) {
	producer := &recordingProducer{}
	pinger := NewPinger(producer, "ping_queue", 10*time.Millisecond, "art-service", logger.NopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pinger.Run(ctx) }()

	require.Eventually(t, func() bool { return producer.count() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	producer.mu.Lock()
	defer producer.mu.Unlock()
	assert.Equal(t, "ping_queue", producer.topics[0])
	assert.Equal(t, models.EventTypePing, producer.events[0].Type)
	assert.Equal(t, "art-service", producer.events[0].Source)
	assert.Equal(t, "ping", producer.events[0].Payload["message"])
}

func TestPinger_KeepsRunningOnPublishError(t *testing.T) {
	producer := &recordingProducer{err: errors.New("broker down")}
	pinger := NewPinger(producer, "", 5*time.Millisecond, "art-service", logger.NopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = pinger.Run(ctx) }()

	require.Eventually(t, func() bool { return producer.count() >= 2 }, time.Second, 5*time.Millisecond)

	producer.mu.Lock()
	defer producer.mu.Unlock()
	assert.Equal(t, "ping_queue", producer.topics[0])
}
