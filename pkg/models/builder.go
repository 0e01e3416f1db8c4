package models

import (
	"time"

	"github.com/google/uuid"
)

type EventBuilder struct {
	event *Event
}

func NewEventBuilder(eventType string) *EventBuilder {
	return &EventBuilder{
		event: &Event{
			Type:     eventType,
			Payload:  make(map[string]interface{}),
			Metadata: Metadata{},
		},
	}
}

func (b *EventBuilder) WithID(id string) *EventBuilder {
	b.event.ID = id
	return b
}

func (b *EventBuilder) WithSource(source string) *EventBuilder {
	b.event.Source = source
	return b
}

func (b *EventBuilder) WithTimestamp(timestamp time.Time) *EventBuilder {
	b.event.Timestamp = timestamp
	return b
}

func (b *EventBuilder) WithPayload(payload map[string]interface{}) *EventBuilder {
	b.event.Payload = payload
	return b
}

func (b *EventBuilder) WithTraceID(traceID string) *EventBuilder {
	b.event.Metadata.TraceID = traceID
	return b
}

func (b *EventBuilder) WithCorrelationID(correlationID string) *EventBuilder {
	b.event.Metadata.CorrelationID = correlationID
	return b
}

// Build fills a random id and the current time when they were not set.
func (b *EventBuilder) Build() Event {
	if b.event.ID == "" {
		b.event.ID = uuid.NewString()
	}
	if b.event.Timestamp.IsZero() {
		b.event.Timestamp = time.Now().UTC()
	}
	return *b.event
}
