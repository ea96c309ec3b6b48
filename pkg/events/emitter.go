// Package events handles event emission for contact lifecycle changes
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/harperdesk/dedupe/pkg/kafka"
	"github.com/harperdesk/dedupe/pkg/models"
	"github.com/harperdesk/dedupe/pkg/tracing"
)

// Emitter publishes contact lifecycle events. A nil producer disables
// emission, so callers never have to branch on Kafka being configured.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitContactNormalized announces that a contact's derived fields were
// recomputed. Best effort; failures are logged, never propagated.
func (e *Emitter) EmitContactNormalized(ctx context.Context, contact *models.Contact) {
	if e == nil || e.producer == nil {
		return
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitContactNormalized")
	defer span.End()

	data, err := json.Marshal(contact)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to marshal contact for event")
		return
	}

	event := &kafka.ContactEvent{
		EventType: "contact.normalized",
		ContactID: contact.ID,
		Data:      data,
	}
	if err := e.producer.PublishContactEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit contact.normalized event")
	}
}

// EmitContactMerged announces a completed merge. Emitted after the merge
// transaction commits, once per merge call.
func (e *Emitter) EmitContactMerged(ctx context.Context, survivorID int64, mergedIDs []int64) {
	if e == nil || e.producer == nil {
		return
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitContactMerged")
	defer span.End()

	event := &kafka.ContactEvent{
		EventType: "contact.merged",
		ContactID: survivorID,
		MergedIDs: mergedIDs,
	}
	if err := e.producer.PublishContactEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit contact.merged event")
	}
}
