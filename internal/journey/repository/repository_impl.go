package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/journeys/internal/journey/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, journey *domain.Journey) error {
	return db.WithContext(ctx).Create(journey).Error
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, journey *domain.Journey) error {
	return db.WithContext(ctx).Exec(
		`UPDATE journeys
		 SET name = ?, description = ?, start_location = ?, start_time = ?, arrival_location = ?,
		     arrival_time = ?, transport_type = ?, distance_km = ?, is_public = ?, route_data_url = ?,
		     is_deleted = ?, updated_at = ?
		 WHERE id = ?`,
		journey.Name,
		journey.Description,
		journey.StartLocation,
		journey.StartTime,
		journey.ArrivalLocation,
		journey.ArrivalTime,
		journey.TransportType,
		journey.DistanceKm,
		journey.IsPublic,
		journey.RouteDataURL,
		journey.IsDeleted,
		journey.UpdatedAt,
		journey.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Journey, error) {
	var journey domain.Journey
	err := db.WithContext(ctx).
		Model(&domain.Journey{}).
		Where("id = ?", id).
		Limit(1).
		Find(&journey).Error
	if err != nil {
		return nil, err
	}
	if journey.ID == 0 {
		return nil, nil
	}
	return &journey, nil
}

func (r *repo) SumDistance(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, from, to time.Time) (domain.DistanceTotal, error) {
	var row struct {
		Total decimal.Decimal
		Count int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(distance_km), 0) AS total, COUNT(*) AS count
		 FROM journeys
		 WHERE owner_id = ? AND is_deleted = ? AND start_time >= ? AND start_time < ?`,
		ownerID,
		false,
		from.UTC(),
		to.UTC(),
	).Scan(&row).Error
	if err != nil {
		return domain.DistanceTotal{}, err
	}
	return domain.DistanceTotal{TotalKm: row.Total.Round(2), Count: row.Count}, nil
}

func (r *repo) MarkDailyGoalAchieved(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE journeys SET is_daily_goal_achieved = ? WHERE id = ?`,
		true,
		id,
	).Error
}

func (r *repo) InsertFavorite(ctx context.Context, db *gorm.DB, favorite *domain.JourneyFavorite) error {
	return db.WithContext(ctx).Create(favorite).Error
}

func (r *repo) FavoritedBy(ctx context.Context, db *gorm.DB, journeyID snowflake.ID) ([]snowflake.ID, error) {
	var userIDs []snowflake.ID
	err := db.WithContext(ctx).
		Model(&domain.JourneyFavorite{}).
		Where("journey_id = ?", journeyID).
		Order("user_id asc").
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, err
	}
	return userIDs, nil
}
