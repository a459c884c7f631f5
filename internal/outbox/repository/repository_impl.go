package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/journeys/internal/outbox/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Append(ctx context.Context, db *gorm.DB, envelope *domain.Envelope) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO outbox_messages (id, event_type, payload, correlation_id, headers, created_at, processed_at, retry_count, last_error)
		 VALUES (?, ?, ?, ?, ?, ?, NULL, 0, NULL)`,
		envelope.ID,
		envelope.EventType,
		envelope.Payload,
		envelope.CorrelationID,
		envelope.Headers,
		envelope.CreatedAt,
	).Error
}

func (r *repo) ListPending(ctx context.Context, db *gorm.DB, limit int) ([]domain.Envelope, error) {
	if limit <= 0 {
		return nil, nil
	}
	var envelopes []domain.Envelope
	err := db.WithContext(ctx).Raw(
		`SELECT id, event_type, payload, correlation_id, headers, created_at, processed_at, retry_count, last_error
		 FROM outbox_messages
		 WHERE processed_at IS NULL
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		limit,
	).Scan(&envelopes).Error
	if err != nil {
		return nil, err
	}
	return envelopes, nil
}

func (r *repo) MarkDelivered(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE outbox_messages
		 SET processed_at = ?, last_error = NULL
		 WHERE id = ? AND processed_at IS NULL`,
		at,
		id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotPending
	}
	return nil
}

// processed_at is assigned first: MySQL evaluates SET clauses left to right.
func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, failure domain.Failure) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE outbox_messages
		 SET processed_at = CASE WHEN ? OR retry_count + 1 >= ? THEN ? ELSE NULL END,
		     last_error = ?,
		     retry_count = retry_count + 1
		 WHERE id = ? AND processed_at IS NULL`,
		failure.Permanent,
		failure.MaxAttempts,
		failure.At,
		failure.Message,
		id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotPending
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Envelope, error) {
	var envelope domain.Envelope
	err := db.WithContext(ctx).Raw(
		`SELECT id, event_type, payload, correlation_id, headers, created_at, processed_at, retry_count, last_error
		 FROM outbox_messages WHERE id = ?`,
		id,
	).Scan(&envelope).Error
	if err != nil {
		return nil, err
	}
	if envelope.ID == 0 {
		return nil, nil
	}
	return &envelope, nil
}

func (r *repo) CountPending(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Envelope{}).
		Where("processed_at IS NULL").
		Count(&count).Error
	return count, err
}
