package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/journeys/internal/clock"
	"github.com/smallbiznis/journeys/internal/events"
	"github.com/smallbiznis/journeys/internal/observability/metrics"
	"github.com/smallbiznis/journeys/internal/outbox/domain"
	"github.com/smallbiznis/journeys/internal/outbox/publisher"
	"github.com/smallbiznis/journeys/internal/outbox/repository"
	"github.com/smallbiznis/journeys/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type deliveryRecord struct {
	ID      uint   `gorm:"primaryKey"`
	EventID string `gorm:"not null"`
}

type harness struct {
	db        *gorm.DB
	bus       *events.Bus
	repo      domain.Repository
	clock     *clock.FakeClock
	registry  *prometheus.Registry
	processor *Processor
	publisher domain.Publisher
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	conn, err := db.NewTest(t)
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Envelope{}, &deliveryRecord{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	h := &harness{
		db:       conn,
		bus:      events.NewBus(),
		repo:     repository.Provide(),
		clock:    clock.NewFakeClock(time.Date(2025, 4, 24, 9, 0, 0, 0, time.UTC)),
		registry: prometheus.NewRegistry(),
	}
	outboxMetrics := metrics.NewOutboxMetrics(h.registry, metrics.Config{ServiceName: "journeys"})
	h.processor = New(Params{
		DB:            conn,
		Log:           zap.NewNop(),
		Bus:           h.bus,
		Repo:          h.repo,
		Clock:         h.clock,
		Config:        cfg,
		OutboxMetrics: outboxMetrics,
	})
	h.publisher = publisher.New(publisher.Params{
		Log:           zap.NewNop(),
		GenID:         node,
		Bus:           h.bus,
		Repo:          h.repo,
		Clock:         h.clock,
		OutboxMetrics: outboxMetrics,
	})
	return h
}

// publish commits one JourneyCreated and advances the clock so creation order is strict.
func (h *harness) publish(t *testing.T, journeyID int64) events.JourneyCreated {
	t.Helper()
	evt := events.JourneyCreated{
		Metadata:  events.NewMetadata(h.clock.Now()),
		JourneyID: snowflake.ID(journeyID),
		OwnerID:   42,
	}
	err := h.db.Transaction(func(tx *gorm.DB) error {
		return h.publisher.Publish(context.Background(), tx, evt)
	})
	require.NoError(t, err)
	h.clock.Advance(time.Second)
	return evt
}

func (h *harness) envelopes(t *testing.T) []domain.Envelope {
	t.Helper()
	var envelopes []domain.Envelope
	require.NoError(t, h.db.Order("created_at asc, id asc").Find(&envelopes).Error)
	return envelopes
}

func (h *harness) recordCount(t *testing.T, eventID string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, h.db.Model(&deliveryRecord{}).Where("event_id = ?", eventID).Count(&count).Error)
	return count
}

type callLog struct {
	mu    sync.Mutex
	calls []snowflake.ID
}

func (c *callLog) add(id snowflake.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, id)
}

func (c *callLog) snapshot() []snowflake.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]snowflake.ID(nil), c.calls...)
}

func counterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if labelsMatch(metric.GetLabel(), labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(pairs []*dto.LabelPair, labels map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if want, ok := labels[pair.GetName()]; ok {
			if pair.GetValue() != want {
				return false
			}
			matched++
		}
	}
	return matched == len(labels)
}

func TestPublishDispatchesAndRedelivers(t *testing.T) {
	h := newHarness(t, Config{})
	events.Subscribe(h.bus, "record", func(ctx context.Context, tx *gorm.DB, evt events.JourneyCreated) error {
		return tx.Create(&deliveryRecord{EventID: evt.EventID}).Error
	})

	evt := h.publish(t, 1)
	assert.Equal(t, int64(1), h.recordCount(t, evt.EventID))

	envelopes := h.envelopes(t)
	require.Len(t, envelopes, 1)
	assert.True(t, envelopes[0].Pending())
	assert.Equal(t, 0, envelopes[0].RetryCount)
	assert.Equal(t, string(events.TypeJourneyCreated), envelopes[0].EventType)
	assert.NotEmpty(t, envelopes[0].CorrelationID)

	delivered, err := h.processor.ProcessBatch(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, int64(2), h.recordCount(t, evt.EventID))

	envelopes = h.envelopes(t)
	assert.False(t, envelopes[0].Pending())
	assert.Nil(t, envelopes[0].LastError)

	delivered, err = h.processor.ProcessBatch(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, delivered)
	assert.Equal(t, int64(2), h.recordCount(t, evt.EventID))
}

func TestPublishRollsBackWithCaller(t *testing.T) {
	h := newHarness(t, Config{})
	events.Subscribe(h.bus, "record", func(ctx context.Context, tx *gorm.DB, evt events.JourneyCreated) error {
		return tx.Create(&deliveryRecord{EventID: evt.EventID}).Error
	})

	evt := events.JourneyCreated{Metadata: events.NewMetadata(h.clock.Now()), JourneyID: 1, OwnerID: 42}
	errWrite := errors.New("journey insert failed")
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := h.publisher.Publish(context.Background(), tx, evt); err != nil {
			return err
		}
		return errWrite
	})
	require.ErrorIs(t, err, errWrite)

	assert.Empty(t, h.envelopes(t))
	assert.Equal(t, int64(0), h.recordCount(t, evt.EventID))
}

func TestPublishPropagatesHandlerFailure(t *testing.T) {
	h := newHarness(t, Config{})
	errHandler := errors.New("handler down")
	events.Subscribe(h.bus, "broken", func(ctx context.Context, tx *gorm.DB, evt events.JourneyCreated) error {
		return errHandler
	})

	err := h.db.Transaction(func(tx *gorm.DB) error {
		return h.publisher.Publish(context.Background(), tx, events.JourneyCreated{
			Metadata:  events.NewMetadata(h.clock.Now()),
			JourneyID: 1,
			OwnerID:   42,
		})
	})
	require.ErrorIs(t, err, errHandler)
	assert.Empty(t, h.envelopes(t))
}

func TestDeadLetterAfterThreeCycles(t *testing.T) {
	h := newHarness(t, Config{MaxAttempts: 3})
	attempts := 0
	h.publish(t, 1)
	events.Subscribe(h.bus, "always-fails", func(ctx context.Context, tx *gorm.DB, evt events.JourneyCreated) error {
		attempts++
		return errors.New("downstream unavailable")
	})

	for cycle := 1; cycle <= 3; cycle++ {
		delivered, err := h.processor.ProcessBatch(context.Background(), 100)
		require.NoError(t, err)
		assert.Equal(t, 0, delivered)

		envelope := h.envelopes(t)[0]
		assert.Equal(t, cycle, envelope.RetryCount)
		assert.Equal(t, cycle == 3, envelope.ProcessedAt != nil)
	}

	_, err := h.processor.ProcessBatch(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	envelope := h.envelopes(t)[0]
	assert.True(t, envelope.DeadLettered())
	require.NotNil(t, envelope.LastError)
	assert.True(t, strings.HasPrefix(*envelope.LastError, "transient: "))
	assert.Contains(t, *envelope.LastError, "downstream unavailable")

	assert.Equal(t, float64(2), counterValue(t, h.registry, "journeys_outbox_envelopes_total", map[string]string{
		"event_type": "JourneyCreated", "outcome": metrics.OutcomeRetry,
	}))
	assert.Equal(t, float64(1), counterValue(t, h.registry, "journeys_outbox_envelopes_total", map[string]string{
		"event_type": "JourneyCreated", "outcome": metrics.OutcomeDeadLettered,
	}))
}

func TestBatchIsolatesFailures(t *testing.T) {
	h := newHarness(t, Config{})
	h.publish(t, 1)
	h.publish(t, 2)
	h.publish(t, 3)

	calls := &callLog{}
	events.Subscribe(h.bus, "fails-on-two", func(ctx context.Context, tx *gorm.DB, evt events.JourneyCreated) error {
		calls.add(evt.JourneyID)
		if evt.JourneyID == 2 {
			return errors.New("journey 2 is poisoned")
		}
		return nil
	})

	delivered, err := h.processor.ProcessBatch(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)
	assert.Equal(t, []snowflake.ID{1, 2, 3}, calls.snapshot())

	envelopes := h.envelopes(t)
	require.Len(t, envelopes, 3)
	assert.False(t, envelopes[0].Pending())
	assert.True(t, envelopes[1].Pending())
	assert.Equal(t, 1, envelopes[1].RetryCount)
	assert.False(t, envelopes[2].Pending())
}

func TestProcessBatchHonoursMaxSizeAndOrder(t *testing.T) {
	h := newHarness(t, Config{})
	for id := int64(1); id <= 5; id++ {
		h.publish(t, id)
	}
	calls := &callLog{}
	events.Subscribe(h.bus, "order", func(ctx context.Context, tx *gorm.DB, evt events.JourneyCreated) error {
		calls.add(evt.JourneyID)
		return nil
	})

	delivered, err := h.processor.ProcessBatch(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)
	assert.Equal(t, []snowflake.ID{1, 2}, calls.snapshot())

	delivered, err = h.processor.ProcessBatch(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)
	assert.Equal(t, []snowflake.ID{1, 2, 3, 4}, calls.snapshot())
}

func TestProcessPendingMessagesDrains(t *testing.T) {
	h := newHarness(t, Config{BatchSize: 2})
	for id := int64(1); id <= 5; id++ {
		h.publish(t, id)
	}

	total, err := h.processor.ProcessPendingMessages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, total)

	for _, envelope := range h.envelopes(t) {
		assert.False(t, envelope.Pending())
	}
}

func TestProcessPendingMessagesStopsOnShortBatch(t *testing.T) {
	h := newHarness(t, Config{BatchSize: 2})
	for id := int64(1); id <= 4; id++ {
		h.publish(t, id)
	}
	events.Subscribe(h.bus, "fails-on-one", func(ctx context.Context, tx *gorm.DB, evt events.JourneyCreated) error {
		if evt.JourneyID == 1 {
			return errors.New("boom")
		}
		return nil
	})

	total, err := h.processor.ProcessPendingMessages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	envelopes := h.envelopes(t)
	assert.Equal(t, 1, envelopes[0].RetryCount)
	assert.True(t, envelopes[2].Pending())
	assert.True(t, envelopes[3].Pending())
}

func TestUnknownTagDeadLettersImmediately(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.repo.Append(context.Background(), h.db, &domain.Envelope{
		ID:        1,
		EventType: "JourneyArchived",
		Payload:   datatypes.JSON(`{"eventId":"x"}`),
		CreatedAt: h.clock.Now(),
	}))

	delivered, err := h.processor.ProcessBatch(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, delivered)

	envelope := h.envelopes(t)[0]
	assert.True(t, envelope.DeadLettered())
	assert.Equal(t, 1, envelope.RetryCount)
	require.NotNil(t, envelope.LastError)
	assert.True(t, strings.HasPrefix(*envelope.LastError, "permanent: "))
	assert.Contains(t, *envelope.LastError, "unknown_event_type")
}

func TestMalformedPayloadDeadLettersImmediately(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.repo.Append(context.Background(), h.db, &domain.Envelope{
		ID:        1,
		EventType: string(events.TypeJourneyCreated),
		Payload:   datatypes.JSON(`{"eventId":"x","journeyId":"0"}`),
		CreatedAt: h.clock.Now(),
	}))

	_, err := h.processor.ProcessBatch(context.Background(), 100)
	require.NoError(t, err)

	envelope := h.envelopes(t)[0]
	assert.True(t, envelope.DeadLettered())
	assert.Equal(t, 1, envelope.RetryCount)
}

func TestPermanentHandlerErrorDeadLettersImmediately(t *testing.T) {
	h := newHarness(t, Config{})
	h.publish(t, 1)
	events.Subscribe(h.bus, "rejects", func(ctx context.Context, tx *gorm.DB, evt events.JourneyCreated) error {
		return fmt.Errorf("%w: owner was purged", events.ErrPermanent)
	})

	_, err := h.processor.ProcessBatch(context.Background(), 100)
	require.NoError(t, err)

	envelope := h.envelopes(t)[0]
	assert.True(t, envelope.DeadLettered())
	assert.Equal(t, 1, envelope.RetryCount)
}

func TestHandlerTimeoutIsTransient(t *testing.T) {
	h := newHarness(t, Config{HandlerTimeout: 50 * time.Millisecond})
	h.publish(t, 1)
	events.Subscribe(h.bus, "hangs", func(ctx context.Context, tx *gorm.DB, evt events.JourneyCreated) error {
		<-ctx.Done()
		return ctx.Err()
	})

	_, err := h.processor.ProcessBatch(context.Background(), 100)
	require.NoError(t, err)

	envelope := h.envelopes(t)[0]
	assert.True(t, envelope.Pending())
	assert.Equal(t, 1, envelope.RetryCount)
	require.NotNil(t, envelope.LastError)
	assert.Contains(t, *envelope.LastError, "deadline exceeded")
}

func TestLongMultibyteErrorIsStoredAsValidUTF8(t *testing.T) {
	h := newHarness(t, Config{})
	h.publish(t, 1)
	events.Subscribe(h.bus, "rejects", func(ctx context.Context, tx *gorm.DB, evt events.JourneyCreated) error {
		return errors.New("journey name " + strings.Repeat("é", 1500))
	})

	_, err := h.processor.ProcessBatch(context.Background(), 100)
	require.NoError(t, err)

	envelope := h.envelopes(t)[0]
	assert.Equal(t, 1, envelope.RetryCount)
	require.NotNil(t, envelope.LastError)
	assert.True(t, utf8.ValidString(*envelope.LastError))
	assert.LessOrEqual(t, len(*envelope.LastError), DefaultConfig().MaxErrorLength)
	assert.True(t, strings.HasSuffix(*envelope.LastError, "é"))
}

func TestTruncateUTF8(t *testing.T) {
	assert.Equal(t, "abc", truncateUTF8("abc", 10))
	assert.Equal(t, "ab", truncateUTF8("abc", 2))
	// "é" is two bytes; a cut through its middle drops it whole.
	assert.Equal(t, "a", truncateUTF8("aé", 2))
	assert.Equal(t, "aé", truncateUTF8("aé", 3))
	assert.Equal(t, "a\uFFFDb", truncateUTF8("a\xffb", 10))
	assert.True(t, utf8.ValidString(truncateUTF8(strings.Repeat("日本", 100), 7)))
}

func TestCancelledContextLeavesEnvelopesPending(t *testing.T) {
	h := newHarness(t, Config{})
	h.publish(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	delivered, err := h.processor.ProcessBatch(ctx, 100)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, delivered)
	assert.True(t, h.envelopes(t)[0].Pending())
}

func TestCancellationFinishesInFlightEnvelope(t *testing.T) {
	h := newHarness(t, Config{})
	h.publish(t, 1)
	h.publish(t, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events.Subscribe(h.bus, "cancels", func(hctx context.Context, tx *gorm.DB, evt events.JourneyCreated) error {
		cancel()
		return hctx.Err()
	})

	delivered, err := h.processor.ProcessBatch(ctx, 100)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, delivered)

	envelopes := h.envelopes(t)
	assert.False(t, envelopes[0].Pending())
	assert.True(t, envelopes[1].Pending())
	assert.Equal(t, 0, envelopes[1].RetryCount)
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(fmt.Errorf("decode: %w", events.ErrUnknownType)))
	assert.True(t, IsPermanent(events.ErrMalformedPayload))
	assert.True(t, IsPermanent(fmt.Errorf("badge: %w", events.ErrPermanent)))
	assert.False(t, IsPermanent(errors.New("connection reset")))
	assert.False(t, IsPermanent(context.DeadlineExceeded))
	assert.False(t, IsPermanent(nil))
}
