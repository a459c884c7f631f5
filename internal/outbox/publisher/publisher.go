package publisher

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/journeys/internal/clock"
	"github.com/smallbiznis/journeys/internal/events"
	"github.com/smallbiznis/journeys/internal/observability/metrics"
	"github.com/smallbiznis/journeys/internal/observability/tracing"
	"github.com/smallbiznis/journeys/internal/outbox/domain"
	"github.com/smallbiznis/journeys/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log           *zap.Logger
	GenID         *snowflake.Node
	Bus           *events.Bus
	Repo          domain.Repository
	Clock         clock.Clock
	Metrics       *metrics.Metrics       `optional:"true"`
	OutboxMetrics *metrics.OutboxMetrics `optional:"true"`
}

type Publisher struct {
	log           *zap.Logger
	genID         *snowflake.Node
	bus           *events.Bus
	repo          domain.Repository
	clock         clock.Clock
	metrics       *metrics.Metrics
	outboxMetrics *metrics.OutboxMetrics
	tracer        trace.Tracer
}

func New(p Params) domain.Publisher {
	return &Publisher{
		log:           p.Log.Named("outbox.publisher"),
		genID:         p.GenID,
		bus:           p.Bus,
		repo:          p.Repo,
		clock:         p.Clock,
		metrics:       p.Metrics,
		outboxMetrics: p.OutboxMetrics,
		tracer:        otel.Tracer("journeys/outbox"),
	}
}

// Publish runs in-process subscribers and appends one envelope, both on tx.
// The caller owns tx; any error here must abort it.
func (p *Publisher) Publish(ctx context.Context, tx *gorm.DB, evt events.Event) error {
	if err := events.Validate(evt); err != nil {
		return fmt.Errorf("%w: %v", events.ErrMalformedPayload, err)
	}
	eventType := string(evt.Type())

	ctx, correlationID := correlation.EnsureCorrelationID(ctx)
	ctx, span := p.tracer.Start(ctx, "outbox.publish", trace.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("event_id", evt.Meta().EventID),
	))
	defer span.End()

	if err := p.bus.Dispatch(ctx, tx, evt); err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "dispatch failed")
		return fmt.Errorf("dispatch %s: %w", eventType, err)
	}

	payload, err := events.Encode(evt)
	if err != nil {
		span.SetStatus(codes.Error, "encode failed")
		return fmt.Errorf("encode %s: %w", eventType, err)
	}

	envelope := domain.Envelope{
		ID:            p.genID.Generate(),
		EventType:     eventType,
		Payload:       datatypes.JSON(payload),
		CorrelationID: correlationID,
		Headers:       datatypes.JSONMap(correlation.Headers(ctx)),
		CreatedAt:     p.clock.Now(),
	}
	if err := p.repo.Append(ctx, tx, &envelope); err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "append failed")
		return fmt.Errorf("append %s: %w", eventType, err)
	}

	p.outboxMetrics.IncAppended(eventType)
	p.metrics.RecordEventPublished(ctx, eventType)
	p.log.Debug("event published",
		zap.String("event_type", eventType),
		zap.String("event_id", evt.Meta().EventID),
		zap.String("envelope_id", envelope.ID.String()),
		zap.String("correlation_id", correlationID),
	)
	return nil
}
