package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/smallbiznis/journeys/internal/clock"
	"github.com/smallbiznis/journeys/internal/events"
	"github.com/smallbiznis/journeys/internal/observability/logger"
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
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Bus           *events.Bus
	Repo          domain.Repository
	Clock         clock.Clock
	Config        Config                 `optional:"true"`
	OutboxMetrics *metrics.OutboxMetrics `optional:"true"`
	Classifier    Classifier             `optional:"true"`
}

type Processor struct {
	db       *gorm.DB
	log      *zap.Logger
	bus      *events.Bus
	repo     domain.Repository
	clock    clock.Clock
	cfg      Config
	metrics  *metrics.OutboxMetrics
	classify Classifier
	tracer   trace.Tracer
}

func New(p Params) *Processor {
	classify := p.Classifier
	if classify == nil {
		classify = IsPermanent
	}
	return &Processor{
		db:       p.DB,
		log:      p.Log.Named("outbox.processor"),
		bus:      p.Bus,
		repo:     p.Repo,
		clock:    p.Clock,
		cfg:      p.Config.withDefaults(),
		metrics:  p.OutboxMetrics,
		classify: classify,
		tracer:   otel.Tracer("journeys/outbox"),
	}
}

// BatchSize is the configured drain batch size.
func (p *Processor) BatchSize() int { return p.cfg.BatchSize }

// ProcessBatch redelivers up to maxSize pending envelopes in creation order and
// returns how many were delivered. A failing envelope never aborts the batch;
// cancellation is honoured between envelopes only.
func (p *Processor) ProcessBatch(ctx context.Context, maxSize int) (int, error) {
	if maxSize <= 0 {
		maxSize = p.cfg.BatchSize
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	start := time.Now()
	envelopes, err := p.repo.ListPending(ctx, p.db, maxSize)
	if err != nil {
		return 0, fmt.Errorf("list pending envelopes: %w", err)
	}

	delivered := 0
	for _, envelope := range envelopes {
		if err := ctx.Err(); err != nil {
			p.metrics.ObserveBatch(len(envelopes), time.Since(start))
			return delivered, err
		}
		if p.processEnvelope(ctx, envelope) == domain.OutcomeDelivered {
			delivered++
		}
	}

	p.metrics.ObserveBatch(len(envelopes), time.Since(start))
	return delivered, nil
}

// ProcessPendingMessages drains the outbox until a batch delivers fewer
// envelopes than the batch size.
func (p *Processor) ProcessPendingMessages(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		delivered, err := p.ProcessBatch(ctx, p.cfg.BatchSize)
		total += delivered
		if err != nil {
			return total, err
		}
		if delivered < p.cfg.BatchSize {
			return total, nil
		}
	}
}

func (p *Processor) processEnvelope(parent context.Context, envelope domain.Envelope) domain.Outcome {
	start := time.Now()

	// An envelope that has started is allowed to finish after shutdown begins.
	ctx := context.WithoutCancel(parent)
	ctx = correlation.ContextFromHeaders(ctx, envelope.Headers)
	if envelope.CorrelationID != "" {
		ctx = correlation.ContextWithCorrelationID(ctx, envelope.CorrelationID)
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.HandlerTimeout)
	defer cancel()

	ctx, span := p.tracer.Start(ctx, "outbox.deliver", trace.WithAttributes(
		attribute.String("event_type", envelope.EventType),
		attribute.String("envelope_id", envelope.ID.String()),
		attribute.Int("retry_count", envelope.RetryCount),
	))
	defer span.End()

	log := logger.WithContext(ctx, p.log).With(
		zap.String("envelope_id", envelope.ID.String()),
		zap.String("event_type", envelope.EventType),
		zap.Int("retry_count", envelope.RetryCount),
	)

	err := p.deliver(ctx, envelope)
	if err == nil {
		p.metrics.ObserveEnvelope(envelope.EventType, metrics.OutcomeDelivered, time.Since(start))
		log.Debug("envelope delivered")
		return domain.OutcomeDelivered
	}
	if errors.Is(err, domain.ErrNotPending) {
		log.Info("envelope already terminal, skipped")
		return domain.OutcomeSkipped
	}

	span.RecordError(tracing.SafeError(err))
	span.SetStatus(codes.Error, "delivery failed")
	outcome := p.recordFailure(ctx, log, envelope, err)
	p.metrics.IncHandlerError(envelope.EventType)
	if outcome != domain.OutcomeSkipped {
		p.metrics.ObserveEnvelope(envelope.EventType, string(outcome), time.Since(start))
	}
	return outcome
}

// deliver runs every subscriber and marks the envelope in one transaction.
func (p *Processor) deliver(ctx context.Context, envelope domain.Envelope) error {
	evt, err := events.Decode(envelope.EventType, envelope.Payload)
	if err != nil {
		return err
	}
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := p.bus.Dispatch(ctx, tx, evt); err != nil {
			return err
		}
		return p.repo.MarkDelivered(ctx, tx, envelope.ID, p.clock.Now())
	})
}

func (p *Processor) recordFailure(ctx context.Context, log *zap.Logger, envelope domain.Envelope, cause error) domain.Outcome {
	permanent := p.classify(cause)
	failure := domain.Failure{
		Message:     p.formatError(permanent, cause),
		Permanent:   permanent,
		MaxAttempts: p.cfg.MaxAttempts,
		At:          p.clock.Now(),
	}
	outcome := domain.OutcomeOf(envelope.RetryCount, failure)

	// The delivery context may already be past its deadline.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.HandlerTimeout)
	defer cancel()

	if err := p.repo.MarkFailed(recordCtx, p.db, envelope.ID, failure); err != nil {
		if errors.Is(err, domain.ErrNotPending) {
			log.Info("envelope already terminal, failure not recorded", zap.Error(cause))
			return domain.OutcomeSkipped
		}
		log.Error("failed to record envelope failure",
			zap.Error(err),
			zap.NamedError("cause", cause),
		)
		return domain.OutcomeRetry
	}

	fields := []zap.Field{
		zap.Error(cause),
		zap.Bool("permanent", permanent),
		zap.Int("attempt", envelope.RetryCount+1),
		zap.Int("max_attempts", p.cfg.MaxAttempts),
	}
	if outcome == domain.OutcomeDeadLettered {
		log.Error("envelope dead-lettered", fields...)
	} else {
		log.Warn("envelope delivery failed, will retry", fields...)
	}
	return outcome
}

func (p *Processor) formatError(permanent bool, err error) string {
	kind := "transient"
	if permanent {
		kind = "permanent"
	}
	return truncateUTF8(kind+": "+err.Error(), p.cfg.MaxErrorLength)
}

// truncateUTF8 cuts msg to at most max bytes without splitting a rune.
// last_error is a text column and postgres rejects invalid UTF-8.
func truncateUTF8(msg string, max int) string {
	msg = strings.ToValidUTF8(msg, "\uFFFD")
	if len(msg) <= max {
		return msg
	}
	n := max
	for n > 0 && !utf8.RuneStart(msg[n]) {
		n--
	}
	return msg[:n]
}
