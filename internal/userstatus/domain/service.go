package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type ChangeStatusRequest struct {
	UserID    snowflake.ID
	NewStatus Status
	ChangedBy *snowflake.ID
	Reason    string
}

type Service interface {
	// ChangeStatus is a no-op when the user already has NewStatus.
	ChangeStatus(ctx context.Context, req ChangeStatusRequest) (User, error)
}
