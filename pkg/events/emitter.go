// Package events handles event emission for company record lifecycle changes
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/batch"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
)

const (
	EntityCreated = "entity.created"
	EntityUpdated = "entity.updated"
	EntityDeleted = "entity.deleted"
)

// Publisher writes entity events to a broker.
type Publisher interface {
	PublishEntityEvents(ctx context.Context, events ...*kafka.EntityEvent) error
}

// Emitter turns committed batches into entity events.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
	runID     string
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, runID string, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
		runID:     runID,
	}
}

// OnCommit is a batch.CommitHook. Publishing failures are logged; the
// batch is already durable and is not rolled back.
func (em *Emitter) OnCommit(ctx context.Context, b batch.Batch) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.OnCommit")
	defer span.End()

	events := em.Events(b)
	if err := em.publisher.PublishEntityEvents(ctx, events...); err != nil {
		em.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_id": b.ID,
			"kind":     b.Kind,
			"count":    len(events),
		}).Error("Failed to emit entity events")
	}
}

// Events builds one event per operation in b.
func (em *Emitter) Events(b batch.Batch) []*kafka.EntityEvent {
	out := make([]*kafka.EntityEvent, 0, len(b.Ops))
	for _, op := range b.Ops {
		event := &kafka.EntityEvent{EntityID: op.ID, RunID: em.runID}
		switch op.Kind {
		case models.OperationCreate:
			event.EventType = EntityCreated
			event.Data = marshal(op.Record.Values())
		case models.OperationUpdate:
			event.EventType = EntityUpdated
			event.Data = marshal(op.Plan.FieldsToSet)
		case models.OperationDelete:
			event.EventType = EntityDeleted
			if len(op.DependsOn) > 0 {
				event.MergedInto = op.DependsOn[0]
			}
		default:
			continue
		}
		out = append(out, event)
	}
	return out
}

func marshal(v map[string]any) json.RawMessage {
	if len(v) == 0 {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
