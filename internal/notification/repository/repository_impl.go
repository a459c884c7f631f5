package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/journeys/internal/notification/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, notification *domain.FallbackNotification) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_event_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(notification)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]domain.FallbackNotification, error) {
	var notifications []domain.FallbackNotification
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at asc, id asc").
		Find(&notifications).Error
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *repo) ListPending(ctx context.Context, db *gorm.DB, userID, afterID snowflake.ID, limit int) ([]domain.FallbackNotification, error) {
	var notifications []domain.FallbackNotification
	stmt := db.WithContext(ctx).
		Where("user_id = ? AND processed_at IS NULL", userID)
	if afterID != 0 {
		stmt = stmt.Where("id > ?", afterID)
	}
	err := stmt.
		Order("id asc").
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, userID snowflake.ID, ids []snowflake.ID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := db.WithContext(ctx).
		Model(&domain.FallbackNotification{}).
		Where("user_id = ? AND id IN ? AND processed_at IS NULL", userID, ids).
		Update("processed_at", at)
	return result.RowsAffected, result.Error
}
