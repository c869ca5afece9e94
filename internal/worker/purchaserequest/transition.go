package purchaserequest

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/unipro/procurement/internal/config"
	"github.com/unipro/procurement/internal/messaging"
	"github.com/unipro/procurement/internal/notification"
	"github.com/unipro/procurement/internal/worker"
)

var workerTracer = otel.Tracer("github.com/unipro/procurement/worker/purchaserequest")

// Module registers purchase request worker handlers.
var Module = fx.Module("worker_purchaserequest",
	fx.Provide(
		fx.Annotate(
			NewTransitionHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewTransitionHandler consumes approval transition events. The actual
// notification delivery lives in an external service; this handler records
// the transitions the bus carries so operators can follow the workflow.
func NewTransitionHandler(logger *zap.Logger, cfg config.Config) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.purchase-requests.transition", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var event notification.TransitionEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("failed to decode transition event", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}
		logger.Info("purchase request transition processed",
			zap.Int64("pr_id", event.PRID),
			zap.String("number", event.Number),
			zap.String("event", string(event.EventType)),
			zap.String("stage", event.Stage),
			zap.Int64("actor_id", event.ActorID),
		)

		return nil
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: handler,
	}
}
