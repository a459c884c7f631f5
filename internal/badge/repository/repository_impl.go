package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/journeys/internal/badge/domain"
	"github.com/smallbiznis/journeys/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByUserAndDate(ctx context.Context, conn *gorm.DB, userID snowflake.ID, awardDate time.Time) (*domain.DailyDistanceBadge, error) {
	var badge domain.DailyDistanceBadge
	err := conn.WithContext(ctx).
		Where("user_id = ? AND award_date = ?", userID, awardDate).
		Limit(1).
		Find(&badge).Error
	if err != nil {
		return nil, err
	}
	if badge.ID == 0 {
		return nil, nil
	}
	return &badge, nil
}

// InsertIfAbsent uses ON CONFLICT DO NOTHING so a losing racer does not abort
// the surrounding postgres transaction.
func (r *repo) InsertIfAbsent(ctx context.Context, conn *gorm.DB, badge *domain.DailyDistanceBadge) (bool, error) {
	result := conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "award_date"}},
			DoNothing: true,
		}).
		Create(badge)
	if result.Error != nil {
		if db.IsDuplicateKeyErr(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListByUser(ctx context.Context, conn *gorm.DB, userID snowflake.ID) ([]domain.DailyDistanceBadge, error) {
	var badges []domain.DailyDistanceBadge
	err := conn.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("award_date asc").
		Find(&badges).Error
	if err != nil {
		return nil, err
	}
	return badges, nil
}
