package broker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artspire/internal/config"
	"artspire/internal/logger"
	"artspire/pkg/models"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	msgs      chan kafka.Message
	mu        sync.Mutex
	committed []int64
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(msgs))}
	for i, m := range msgs {
		m.Offset = int64(i)
		r.msgs <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func (r *fakeReader) Close() error { return nil }

type recordingProducer struct {
	mu     sync.Mutex
	topics []string
	events []models.Event
}

func (p *recordingProducer) Publish(ctx context.Context, topic string, event models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func indexEvent(t *testing.T) (models.Event, []byte) {
	t.Helper()
	event := models.NewEventBuilder(models.EventTypeIndexUpdated).
		WithSource("recommendations-service").
		WithPayload(models.IndexUpdated{Collection: "similarity_index", Action: models.ActionUpsert, ArtIDs: []int{4, 8}}.Payload()).
		Build()
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return event, body
}

func fastRetry() config.RetryConfig {
	return config.RetryConfig{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 1}
}

func TestKafkaProducer_PublishKeysByEventID(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaProducer{writer: w, logger: logger.NopLogger()}
	event, _ := indexEvent(t)

	require.NoError(t, p.Publish(context.Background(), "similarity_index_events", event))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "similarity_index_events", msg.Topic)
	assert.Equal(t, []byte(event.ID), msg.Key)
	assert.Contains(t, msg.Headers, kafka.Header{Key: eventTypeHeader, Value: []byte(models.EventTypeIndexUpdated)})

	var decoded models.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
}

func TestKafkaProducer_WriteError(t *testing.T) {
	p := &KafkaProducer{writer: &fakeWriter{err: io.ErrClosedPipe}, logger: logger.NopLogger()}
	event, _ := indexEvent(t)
	assert.ErrorIs(t, p.Publish(context.Background(), "t", event), io.ErrClosedPipe)
}

func newTestKafkaConsumer(reader messageReader, dlq Producer) *KafkaConsumer {
	c := NewKafkaConsumer(config.KafkaConfig{DLQTopic: "events.dlq", Retry: fastRetry()}, logger.NopLogger())
	c.newReader = func(string) messageReader { return reader }
	c.dlqProducer = dlq
	c.SetServiceName("test")
	return c
}

func TestKafkaConsumer_HandlesAndCommits(t *testing.T) {
	event, body := indexEvent(t)
	reader := newFakeReader(kafka.Message{Value: body}, kafka.Message{Value: []byte("not json")})
	c := newTestKafkaConsumer(reader, &recordingProducer{})

	received := make(chan models.Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Consume(ctx, "similarity_index_events", func(ctx context.Context, e models.Event) error {
			received <- e
			return nil
		})
	}()

	got := <-received
	assert.Equal(t, event.ID, got.ID)
	require.Eventually(t, func() bool { return len(reader.Committed()) == 2 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.NoError(t, c.Close())
}

func TestKafkaConsumer_DeadLettersAfterRetries(t *testing.T) {
	_, body := indexEvent(t)
	reader := newFakeReader(kafka.Message{Value: body})
	dlq := &recordingProducer{}
	c := newTestKafkaConsumer(reader, dlq)

	var attempts int
	var mu sync.Mutex
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = c.Consume(ctx, "similarity_index_events", func(ctx context.Context, e models.Event) error {
			mu.Lock()
			attempts++
			mu.Unlock()
			return errors.New("mongo unavailable")
		})
	}()

	require.Eventually(t, func() bool { return len(reader.Committed()) == 1 }, time.Second, time.Millisecond)

	mu.Lock()
	assert.Equal(t, 2, attempts)
	mu.Unlock()

	dlq.mu.Lock()
	defer dlq.mu.Unlock()
	require.Len(t, dlq.events, 1)
	assert.Equal(t, "events.dlq", dlq.topics[0])
	assert.Equal(t, "mongo unavailable", dlq.events[0].Metadata.Failure["reason"])
	assert.Equal(t, "similarity_index_events", dlq.events[0].Metadata.Failure["source_topic"])
}

func TestKafkaConsumer_RecoversPanickingHandler(t *testing.T) {
	_, body := indexEvent(t)
	reader := newFakeReader(kafka.Message{Value: body})
	dlq := &recordingProducer{}
	c := newTestKafkaConsumer(reader, dlq)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = c.Consume(ctx, "t", func(ctx context.Context, e models.Event) error {
			panic("nil pointer")
		})
	}()

	require.Eventually(t, func() bool { return len(reader.Committed()) == 1 }, time.Second, time.Millisecond)
	dlq.mu.Lock()
	defer dlq.mu.Unlock()
	assert.Len(t, dlq.events, 1)
}
