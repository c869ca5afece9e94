// Package notification publishes approval transition events for the external
// notification service. Delivery (email, push) happens elsewhere; this side
// only emits.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/unipro/procurement/internal/config"
	"github.com/unipro/procurement/internal/messaging"
)

// EventType names a purchase request transition.
type EventType string

const (
	EventSubmitted     EventType = "pr_submitted"
	EventStageAdvanced EventType = "pr_stage_advanced"
	EventApproved      EventType = "pr_approved"
	EventRejected      EventType = "pr_rejected"
)

// TransitionEvent is the JSON payload published on every state transition.
type TransitionEvent struct {
	PRID       int64     `json:"pr_id"`
	Number     string    `json:"number"`
	EventType  EventType `json:"event_type"`
	Stage      string    `json:"stage,omitempty"`
	ActorID    int64     `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Emitter publishes transition events to the message bus. Publishing is
// strictly fire-and-forget: a failed emit is logged and dropped, never
// surfaced, so approval correctness cannot depend on notification delivery.
type Emitter struct {
	publisher messaging.Client
	logger    *zap.Logger
	enabled   bool
}

// Params collects emitter dependencies.
type Params struct {
	fx.In

	Publisher messaging.Client
	Logger    *zap.Logger
	Config    config.Config
}

// Module provides the emitter.
var Module = fx.Provide(NewEmitter)

// NewEmitter wires an Emitter on top of the configured messaging client.
func NewEmitter(p Params) *Emitter {
	return &Emitter{
		publisher: p.Publisher,
		logger:    p.Logger,
		enabled:   p.Config.Messaging.Enabled,
	}
}

// Emit publishes one transition event.
func (e *Emitter) Emit(ctx context.Context, event TransitionEvent) {
	if !e.enabled || e.publisher == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		e.logger.Error("marshal transition event", zap.Error(err), zap.String("event", string(event.EventType)))
		return
	}
	key := []byte(fmt.Sprintf("pr-%d", event.PRID))
	if err := e.publisher.Publish(ctx, key, payload); err != nil {
		e.logger.Error("publish transition event",
			zap.Error(err),
			zap.Int64("pr_id", event.PRID),
			zap.String("event", string(event.EventType)),
		)
	}
}
