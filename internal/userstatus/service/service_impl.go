package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/journeys/internal/clock"
	"github.com/smallbiznis/journeys/internal/events"
	"github.com/smallbiznis/journeys/internal/observability/logger"
	outboxdomain "github.com/smallbiznis/journeys/internal/outbox/domain"
	"github.com/smallbiznis/journeys/internal/userstatus/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Publisher outboxdomain.Publisher
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	publisher outboxdomain.Publisher
}

func New(p Params) *Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("userstatus.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		publisher: p.Publisher,
	}
}

func (s *Service) ChangeStatus(ctx context.Context, req domain.ChangeStatusRequest) (domain.User, error) {
	if !req.NewStatus.Valid() {
		return domain.User{}, domain.ErrInvalidStatus
	}

	var user domain.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindUser(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.ErrUserNotFound
		}
		user = *existing
		if existing.Status == req.NewStatus {
			return nil
		}

		now := s.clock.Now()
		if err := s.repo.UpdateStatus(ctx, tx, req.UserID, req.NewStatus, now); err != nil {
			return err
		}
		user.Status = req.NewStatus
		user.UpdatedAt = now

		return s.publisher.Publish(ctx, tx, events.UserStatusChanged{
			Metadata:  events.NewMetadata(now),
			UserID:    req.UserID,
			OldStatus: string(existing.Status),
			NewStatus: string(req.NewStatus),
			ChangedBy: req.ChangedBy,
			Reason:    strings.TrimSpace(req.Reason),
		})
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// Auditor records every status change exactly once per event id.
type Auditor struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

type AuditorParams struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

func NewAuditor(p AuditorParams) *Auditor {
	return &Auditor{
		log:   p.Log.Named("userstatus.audit"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func RegisterAuditor(bus *events.Bus, a *Auditor) {
	events.Subscribe(bus, "userstatus.audit", a.Record)
}

func (a *Auditor) Record(ctx context.Context, tx *gorm.DB, evt events.UserStatusChanged) error {
	created, err := a.repo.InsertAuditIfAbsent(ctx, tx, &domain.StatusAudit{
		ID:        a.genID.Generate(),
		EventID:   evt.EventID,
		UserID:    evt.UserID,
		OldStatus: evt.OldStatus,
		NewStatus: evt.NewStatus,
		ChangedBy: evt.ChangedBy,
		Reason:    evt.Reason,
		ChangedAt: evt.OccurredAt,
		CreatedAt: a.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("insert status audit: %w", err)
	}
	if created {
		logger.WithUser(logger.WithContext(ctx, a.log), evt.UserID.String()).Info("user status changed",
			zap.String("old_status", evt.OldStatus),
			zap.String("new_status", evt.NewStatus),
		)
	}
	return nil
}
