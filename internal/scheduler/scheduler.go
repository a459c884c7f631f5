package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/journeys/internal/clock"
	obsmetrics "github.com/smallbiznis/journeys/internal/observability/metrics"
	outboxdomain "github.com/smallbiznis/journeys/internal/outbox/domain"
	"github.com/sony/gobreaker"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const JobOutboxRelay = "outbox_relay"

var ErrInvalidConfig = errors.New("scheduler: invalid config")

type Params struct {
	fx.In

	Processor outboxdomain.Processor
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Metrics   *obsmetrics.SchedulerMetrics `optional:"true"`
	Config    Config                       `optional:"true"`
}

// Scheduler polls the outbox on an interval. Processor failures trip a
// circuit breaker; while it is open cycles are skipped and the interval
// doubles up to MaxPollInterval.
type Scheduler struct {
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	processor outboxdomain.Processor
	metrics   *obsmetrics.SchedulerMetrics
	breaker   *gobreaker.CircuitBreaker
}

func New(p Params) (*Scheduler, error) {
	if p.Processor == nil || p.Log == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	s := &Scheduler{
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		genID:     p.GenID,
		clock:     p.Clock,
		processor: p.Processor,
		metrics:   p.Metrics,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        JobOutboxRelay,
		MaxRequests: 1,
		Timeout:     s.cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: s.onBreakerStateChange,
	})
	s.metrics.SetBreakerState(JobOutboxRelay, gobreaker.StateClosed)
	s.metrics.SetPollInterval(JobOutboxRelay, s.cfg.PollInterval)
	return s, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) (err error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.beginCycle(ctx, name, batchSize)
	s.metrics.IncJobRun(name)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", name, r)
			run.fail("scheduler.job.panic", err)
			s.metrics.IncJobError(name, err)
		}
		now := s.clock.Now()
		s.metrics.ObserveJobDuration(name, now.Sub(run.startedAt))
		run.finish(now)
	}()

	err = fn(ctx)
	if err == nil {
		return nil
	}
	if run.failures == 0 {
		run.failures++
	}
	s.metrics.IncJobError(name, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.metrics.IncJobTimeout(name)
		run.log.Warn("job timed out", zap.Duration("timeout", timeout), zap.Error(err))
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs a single relay cycle. A cycle skipped by the open breaker is
// not an error.
func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, JobOutboxRelay, s.cfg.BatchSize, s.cfg.CycleTimeout, s.relayOutbox)
}

func (s *Scheduler) relayOutbox(ctx context.Context) error {
	run := cycleFrom(ctx)
	_, err := s.breaker.Execute(func() (any, error) {
		delivered, err := s.processor.ProcessBatch(ctx, s.cfg.BatchSize)
		run.addDelivered(delivered)
		s.metrics.AddBatchProcessed(JobOutboxRelay, "envelope", delivered)
		return delivered, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		s.metrics.IncJobSkipped(JobOutboxRelay, obsmetrics.SchedulerSkipReasonBreakerOpen)
		run.log.Debug("scheduler.job.skipped", zap.String("reason", obsmetrics.SchedulerSkipReasonBreakerOpen))
		return nil
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		run.fail("scheduler.outbox.relay.failed", err)
	}
	return err
}

// RunForever sleeps for the poll interval and then runs a cycle, until ctx is
// cancelled. Cycle errors are logged and never stop the loop.
func (s *Scheduler) RunForever(ctx context.Context) {
	interval := s.cfg.PollInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		next := s.nextInterval(interval)
		if next != interval {
			s.log.Info("scheduler.poll_interval.changed",
				zap.Duration("from", interval),
				zap.Duration("to", next),
			)
			s.metrics.SetPollInterval(JobOutboxRelay, next)
		}
		interval = next
		timer.Reset(interval)
	}
}

// nextInterval widens the poll interval while the breaker is open and
// restores the base interval once it closes.
func (s *Scheduler) nextInterval(current time.Duration) time.Duration {
	switch s.breaker.State() {
	case gobreaker.StateOpen:
		next := current * 2
		if next > s.cfg.MaxPollInterval {
			next = s.cfg.MaxPollInterval
		}
		return next
	case gobreaker.StateClosed:
		return s.cfg.PollInterval
	default:
		return current
	}
}

func (s *Scheduler) onBreakerStateChange(name string, from, to gobreaker.State) {
	log := s.log.With(
		zap.String("breaker", name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
	if to == gobreaker.StateOpen {
		log.Warn("scheduler.breaker.state_changed")
	} else {
		log.Info("scheduler.breaker.state_changed")
	}
	s.metrics.SetBreakerState(JobOutboxRelay, to)
}
