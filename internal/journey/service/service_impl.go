package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/journeys/internal/clock"
	"github.com/smallbiznis/journeys/internal/events"
	"github.com/smallbiznis/journeys/internal/journey/domain"
	outboxdomain "github.com/smallbiznis/journeys/internal/outbox/domain"
	"github.com/smallbiznis/journeys/pkg/db"
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

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("journey.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		publisher: p.Publisher,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateJourneyRequest) (domain.Journey, error) {
	if req.OwnerID == 0 {
		return domain.Journey{}, domain.ErrInvalidOwner
	}
	fields, err := normalize(domain.Journey{
		Name:            req.Name,
		Description:     req.Description,
		StartLocation:   req.StartLocation,
		StartTime:       req.StartTime,
		ArrivalLocation: req.ArrivalLocation,
		ArrivalTime:     req.ArrivalTime,
		TransportType:   req.TransportType,
		DistanceKm:      req.DistanceKm,
		IsPublic:        req.IsPublic,
		RouteDataURL:    req.RouteDataURL,
	})
	if err != nil {
		return domain.Journey{}, err
	}

	now := s.clock.Now()
	journey := fields
	journey.ID = s.genID.Generate()
	journey.OwnerID = req.OwnerID
	journey.CreatedAt = now
	journey.UpdatedAt = now

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &journey); err != nil {
			return err
		}
		return s.publisher.Publish(ctx, tx, events.JourneyCreated{
			Metadata:  events.NewMetadata(now),
			JourneyID: journey.ID,
			OwnerID:   journey.OwnerID,
			Journey:   journey.Snapshot(),
		})
	})
	if err != nil {
		return domain.Journey{}, err
	}
	return journey, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.UpdateJourneyRequest) (domain.Journey, error) {
	fields, err := normalize(domain.Journey{
		Name:            req.Name,
		Description:     req.Description,
		StartLocation:   req.StartLocation,
		StartTime:       req.StartTime,
		ArrivalLocation: req.ArrivalLocation,
		ArrivalTime:     req.ArrivalTime,
		TransportType:   req.TransportType,
		DistanceKm:      req.DistanceKm,
		IsPublic:        req.IsPublic,
		RouteDataURL:    req.RouteDataURL,
	})
	if err != nil {
		return domain.Journey{}, err
	}

	var updated domain.Journey
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.ErrNotFound
		}
		if existing.IsDeleted {
			return domain.ErrAlreadyDeleted
		}

		now := s.clock.Now()
		updated = fields
		updated.ID = existing.ID
		updated.OwnerID = existing.OwnerID
		updated.IsDailyGoalAchieved = existing.IsDailyGoalAchieved
		updated.CreatedAt = existing.CreatedAt
		updated.UpdatedAt = now
		if err := s.repo.Save(ctx, tx, &updated); err != nil {
			return err
		}

		evt := events.JourneyUpdated{
			Metadata:  events.NewMetadata(now),
			JourneyID: updated.ID,
			OwnerID:   updated.OwnerID,
			Journey:   updated.Snapshot(),
		}
		if !existing.StartTime.Equal(updated.StartTime) {
			previous := existing.StartTime.UTC()
			evt.PreviousStartTime = &previous
		}
		return s.publisher.Publish(ctx, tx, evt)
	})
	if err != nil {
		return domain.Journey{}, err
	}
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Journey, error) {
	journey, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Journey{}, err
	}
	if journey == nil || journey.IsDeleted {
		return domain.Journey{}, domain.ErrNotFound
	}
	return *journey, nil
}

// Delete soft-deletes the journey so consumers can still resolve it.
func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		journey, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if journey == nil {
			return domain.ErrNotFound
		}
		if journey.IsDeleted {
			return domain.ErrAlreadyDeleted
		}

		now := s.clock.Now()
		journey.IsDeleted = true
		journey.UpdatedAt = now
		if err := s.repo.Save(ctx, tx, journey); err != nil {
			return err
		}
		return s.publisher.Publish(ctx, tx, events.JourneyDeleted{
			Metadata:  events.NewMetadata(now),
			JourneyID: journey.ID,
			OwnerID:   journey.OwnerID,
			Journey:   journey.Snapshot(),
		})
	})
}

func (s *Service) Favorite(ctx context.Context, userID, journeyID snowflake.ID) error {
	if userID == 0 {
		return domain.ErrInvalidOwner
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		journey, err := s.repo.FindByID(ctx, tx, journeyID)
		if err != nil {
			return err
		}
		if journey == nil || journey.IsDeleted {
			return domain.ErrNotFound
		}
		if journey.OwnerID == userID {
			return domain.ErrCannotFavoriteOwn
		}
		err = s.repo.InsertFavorite(ctx, tx, &domain.JourneyFavorite{
			ID:        s.genID.Generate(),
			UserID:    userID,
			JourneyID: journeyID,
			CreatedAt: s.clock.Now(),
		})
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrAlreadyFavorited
		}
		return err
	})
}

func normalize(j domain.Journey) (domain.Journey, error) {
	j.Name = strings.TrimSpace(j.Name)
	if j.Name == "" {
		return domain.Journey{}, domain.ErrInvalidName
	}
	j.Description = strings.TrimSpace(j.Description)
	j.StartLocation = strings.TrimSpace(j.StartLocation)
	j.ArrivalLocation = strings.TrimSpace(j.ArrivalLocation)
	j.RouteDataURL = strings.TrimSpace(j.RouteDataURL)
	if !j.TransportType.Valid() {
		return domain.Journey{}, domain.ErrInvalidTransport
	}
	if j.StartTime.IsZero() || j.ArrivalTime.IsZero() || j.ArrivalTime.Before(j.StartTime) {
		return domain.Journey{}, domain.ErrInvalidTimeRange
	}
	j.StartTime = j.StartTime.UTC()
	j.ArrivalTime = j.ArrivalTime.UTC()

	distance, err := domain.NormalizeDistance(j.DistanceKm)
	if err != nil {
		return domain.Journey{}, err
	}
	j.DistanceKm = distance
	return j, nil
}
