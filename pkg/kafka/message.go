package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	e "github.com/Ramsey-B/fern/internal/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string
}

func newIncoming(msg kafka.Message) *IncomingMessage {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return &IncomingMessage{
		Key:       string(msg.Key),
		Value:     msg.Value,
		Headers:   headers,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Topic:     msg.Topic,
	}
}

// Record decodes the message value as a flattened company record.
func (m *IncomingMessage) Record() (*models.PartialCompanyRecord, error) {
	var rec models.PartialCompanyRecord
	if err := json.Unmarshal(m.Value, &rec); err != nil {
		return nil, fmt.Errorf("%w: message %s/%d@%d: %v", e.ErrInvalidInput, m.Topic, m.Partition, m.Offset, err)
	}
	return &rec, nil
}

// Vendor returns the producing importer named in the headers, if any.
func (m *IncomingMessage) Vendor() string {
	return m.Headers["vendor"]
}

// EntityEvent represents an event about a company record
type EntityEvent struct {
	EventType string          `json:"event_type"` // entity.created, entity.updated, entity.deleted
	EntityID  string          `json:"entity_id"`
	Data      json.RawMessage `json:"data,omitempty"`
	// MergedInto names the survivor a deleted record was folded into.
	MergedInto string    `json:"merged_into,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
