package metrics

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smallbiznis/journeys/pkg/db"
	"github.com/sony/gobreaker"
	"gorm.io/gorm"
)

// Error types label log lines; reasons label the error counter. Both stay
// low-cardinality.
const (
	SchedulerErrorTypeDeadlineExceeded = "deadline_exceeded"
	SchedulerErrorTypeBreakerOpen      = "breaker_open"
	SchedulerErrorTypeDB               = "db"
	SchedulerErrorTypeProcessing       = "processing"

	SchedulerJobReasonDeadlineExceeded     = "deadline_exceeded"
	SchedulerJobReasonDBLockTimeout        = "db_lock_timeout"
	SchedulerJobReasonSerializationFailure = "serialization_failure"
	SchedulerJobReasonUniqueViolation      = "unique_violation"
	SchedulerJobReasonUnknown              = "unknown"

	SchedulerSkipReasonBreakerOpen = "breaker_open"
)

// SchedulerFailure is the classification of one failed relay cycle.
type SchedulerFailure struct {
	Type      string
	Reason    string
	Retryable bool
}

var gormDBErrors = []error{
	gorm.ErrInvalidDB,
	gorm.ErrInvalidTransaction,
	gorm.ErrInvalidField,
	gorm.ErrInvalidData,
	gorm.ErrMissingWhereClause,
	gorm.ErrUnsupportedDriver,
	gorm.ErrDuplicatedKey,
}

func ClassifySchedulerError(err error) SchedulerFailure {
	f := SchedulerFailure{Type: SchedulerErrorTypeProcessing, Reason: SchedulerJobReasonUnknown}
	if err == nil {
		return f
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		f.Type, f.Reason, f.Retryable = SchedulerErrorTypeDeadlineExceeded, SchedulerJobReasonDeadlineExceeded, true
		return f
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		f.Type, f.Retryable = SchedulerErrorTypeBreakerOpen, true
		return f
	}

	switch {
	case db.IsLockTimeoutErr(err):
		f.Reason = SchedulerJobReasonDBLockTimeout
	case db.IsSerializationErr(err):
		f.Reason = SchedulerJobReasonSerializationFailure
	case db.IsDuplicateKeyErr(err):
		f.Reason = SchedulerJobReasonUniqueViolation
	}
	if isDBError(err) {
		f.Type = SchedulerErrorTypeDB
		f.Retryable = true
	}
	if db.IsRetryableErr(err) {
		f.Retryable = true
	}
	return f
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	for _, target := range gormDBErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
