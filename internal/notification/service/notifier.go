package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/journeys/internal/clock"
	"github.com/smallbiznis/journeys/internal/config"
	"github.com/smallbiznis/journeys/internal/events"
	journeydomain "github.com/smallbiznis/journeys/internal/journey/domain"
	"github.com/smallbiznis/journeys/internal/lock"
	"github.com/smallbiznis/journeys/internal/notification/domain"
	"github.com/smallbiznis/journeys/internal/observability/logger"
	"github.com/smallbiznis/journeys/internal/observability/metrics"
	"github.com/smallbiznis/journeys/internal/realtime"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	subscriberName = "notification.realtime"
	dedupeKeyFmt   = "journeys:notify:%s:%s"

	outcomeSent      = "sent"
	outcomeFailed    = "failed"
	outcomeDuplicate = "duplicate"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Journeys journeydomain.Repository
	Channel  realtime.Channel
	Config   config.Config
	Locker   *lock.Locker     `optional:"true"`
	Metrics  *metrics.Metrics `optional:"true"`
}

// Notifier pushes journey changes to users who favorited the journey and
// stores a fallback for every user the push could not reach.
type Notifier struct {
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	journeys  journeydomain.Repository
	channel   realtime.Channel
	locker    *lock.Locker
	dedupeTTL time.Duration
	metrics   *metrics.Metrics
}

func New(p Params) *Notifier {
	ttl := p.Config.Realtime.DedupeTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Notifier{
		log:       p.Log.Named("notification.realtime"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		journeys:  p.Journeys,
		channel:   p.Channel,
		locker:    p.Locker,
		dedupeTTL: ttl,
		metrics:   p.Metrics,
	}
}

func Register(bus *events.Bus, n *Notifier) {
	events.Subscribe(bus, subscriberName, func(ctx context.Context, tx *gorm.DB, evt events.JourneyUpdated) error {
		return n.Notify(ctx, tx, evt.Meta(), string(events.TypeJourneyUpdated), evt.JourneyID, evt.Journey)
	})
	events.Subscribe(bus, subscriberName, func(ctx context.Context, tx *gorm.DB, evt events.JourneyDeleted) error {
		return n.Notify(ctx, tx, evt.Meta(), string(events.TypeJourneyDeleted), evt.JourneyID, evt.Journey)
	})
}

// Notify pushes method to every favoriting user independently. Only a failure
// to persist a fallback is returned.
func (n *Notifier) Notify(ctx context.Context, tx *gorm.DB, meta events.Metadata, method string, journeyID snowflake.ID, snapshot *events.JourneySnapshot) error {
	userIDs, err := n.journeys.FavoritedBy(ctx, tx, journeyID)
	if err != nil {
		return fmt.Errorf("list favorites: %w", err)
	}
	if len(userIDs) == 0 {
		return nil
	}

	name, err := n.journeyName(ctx, tx, journeyID, snapshot)
	if err != nil {
		return err
	}
	notice := domain.JourneyNotice{
		ID:        journeyID.String(),
		Name:      name,
		Timestamp: n.clock.Now(),
	}

	log := logger.WithContext(ctx, n.log).With(
		zap.String("journey_id", journeyID.String()),
		zap.String("method", method),
	)

	var failed []snowflake.ID
	for _, userID := range userIDs {
		if err := n.push(ctx, meta.EventID, userID, method, notice); err != nil {
			log.Warn("realtime push failed, storing fallback",
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
			failed = append(failed, userID)
		}
	}

	for _, userID := range failed {
		if err := n.storeFallback(ctx, tx, meta.EventID, userID, method, journeyID, notice); err != nil {
			return err
		}
	}
	return nil
}

func (n *Notifier) push(ctx context.Context, eventID string, userID snowflake.ID, method string, notice domain.JourneyNotice) error {
	key := fmt.Sprintf(dedupeKeyFmt, eventID, userID.String())
	var token string
	if n.locker.Enabled() {
		t, ok, err := n.locker.TryLock(ctx, key, n.dedupeTTL)
		switch {
		case err != nil:
			n.log.Warn("notification dedupe unavailable", zap.Error(err))
		case !ok:
			n.metrics.RecordRealtimePush(ctx, method, outcomeDuplicate)
			return nil
		default:
			token = t
		}
	}

	if err := n.channel.SendToUser(ctx, userID.String(), method, notice); err != nil {
		if token != "" {
			if relErr := n.locker.Release(ctx, key, token); relErr != nil {
				n.log.Warn("release dedupe key failed", zap.String("key", key), zap.Error(relErr))
			}
		}
		n.metrics.RecordRealtimePush(ctx, method, outcomeFailed)
		return err
	}
	n.metrics.RecordRealtimePush(ctx, method, outcomeSent)
	return nil
}

func (n *Notifier) storeFallback(ctx context.Context, tx *gorm.DB, eventID string, userID snowflake.ID, method string, journeyID snowflake.ID, notice domain.JourneyNotice) error {
	payload, err := json.Marshal(domain.FallbackPayload{
		UserID:      userID,
		JourneyID:   journeyID,
		JourneyName: notice.Name,
		MessageType: method,
		Timestamp:   notice.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("encode fallback: %w", err)
	}

	created, err := n.repo.InsertIfAbsent(ctx, tx, &domain.FallbackNotification{
		ID:            n.genID.Generate(),
		EventType:     domain.TypeFallbackNotification,
		SourceEventID: eventID,
		UserID:        userID,
		Payload:       datatypes.JSON(payload),
		CreatedAt:     n.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("store fallback: %w", err)
	}
	if created {
		n.metrics.RecordFallbackNotification(ctx, method)
	}
	return nil
}

func (n *Notifier) journeyName(ctx context.Context, tx *gorm.DB, journeyID snowflake.ID, snapshot *events.JourneySnapshot) (string, error) {
	if snapshot != nil && snapshot.Name != "" {
		return snapshot.Name, nil
	}
	journey, err := n.journeys.FindByID(ctx, tx, journeyID)
	if err != nil {
		return "", fmt.Errorf("find journey: %w", err)
	}
	if journey == nil {
		return "", nil
	}
	return journey.Name, nil
}
