package scheduler

import (
	"context"
	"time"

	obslogger "github.com/smallbiznis/journeys/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/journeys/internal/observability/metrics"
	"github.com/smallbiznis/journeys/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

// cycle is one relay run. It rides on the context so the job body can
// report progress without threading it through every call.
type cycle struct {
	log       *zap.Logger
	startedAt time.Time
	delivered int
	failures  int
}

type cycleKey struct{}

func (s *Scheduler) beginCycle(ctx context.Context, job string, batchSize int) (context.Context, *cycle) {
	// Each cycle gets its own correlation id; envelopes restore their own.
	ctx, _ = correlation.EnsureCorrelationID(ctx)
	c := &cycle{startedAt: s.clock.Now()}
	c.log = obslogger.WithContext(ctx, s.log).With(
		zap.String("job", job),
		zap.String("run_id", s.genID.Generate().String()),
	)
	c.log.Debug("scheduler.job.start", zap.Int("batch_size", batchSize))
	return context.WithValue(ctx, cycleKey{}, c), c
}

func cycleFrom(ctx context.Context) *cycle {
	c, _ := ctx.Value(cycleKey{}).(*cycle)
	return c
}

func (c *cycle) addDelivered(n int) {
	if c != nil && n > 0 {
		c.delivered += n
	}
}

// fail logs err with its classification and counts it against the cycle.
func (c *cycle) fail(msg string, err error) {
	if c == nil || err == nil {
		return
	}
	c.failures++
	f := obsmetrics.ClassifySchedulerError(err)
	c.log.Error(msg,
		zap.Error(err),
		zap.String("error_type", f.Type),
		zap.Bool("retryable", f.Retryable),
	)
}

// finish logs at Warn when anything failed and stays at Debug for idle polls.
func (c *cycle) finish(now time.Time) {
	fields := []zap.Field{
		zap.Int64("duration_ms", now.Sub(c.startedAt).Milliseconds()),
		zap.Int("processed_count", c.delivered),
		zap.Int("error_count", c.failures),
	}
	switch {
	case c.failures > 0:
		c.log.Warn("scheduler.job.finish", fields...)
	case c.delivered > 0:
		c.log.Info("scheduler.job.finish", fields...)
	default:
		c.log.Debug("scheduler.job.finish", fields...)
	}
}
