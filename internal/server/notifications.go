package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	notificationdomain "github.com/smallbiznis/journeys/internal/notification/domain"
	"github.com/smallbiznis/journeys/pkg/db/pagination"
)

type fallbackResponse struct {
	ID            string          `json:"id"`
	SourceEventID string          `json:"sourceEventId"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// ListMyNotifications pages the realtime messages the caller missed while offline.
func (s *Server) ListMyNotifications(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var afterID snowflake.ID
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			AbortWithError(c, newValidationError("page_token", "invalid_page_token", "invalid page token"))
			return
		}
		afterID, err = snowflake.ParseString(cursor.ID)
		if err != nil {
			AbortWithError(c, newValidationError("page_token", "invalid_page_token", "invalid page token"))
			return
		}
	}

	limit := page.Limit()
	rows, err := s.notificationRepo.ListPending(c.Request.Context(), s.db, userID, afterID, limit+1)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	rows, info, err := pagination.BuildCursorPageInfo(rows, limit, func(n notificationdomain.FallbackNotification) pagination.Cursor {
		return pagination.Cursor{ID: n.ID.String()}
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	out := make([]fallbackResponse, 0, len(rows))
	for _, n := range rows {
		out = append(out, fallbackResponse{
			ID:            n.ID.String(),
			SourceEventID: n.SourceEventID,
			Payload:       json.RawMessage(n.Payload),
			CreatedAt:     n.CreatedAt.UTC(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "page_info": info})
}

type ackNotificationsRequest struct {
	IDs []string `json:"ids" binding:"required,min=1,max=100"`
}

func (s *Server) AckMyNotifications(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req ackNotificationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	ids := make([]snowflake.ID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("ids", "invalid_id", "ids must be numeric"))
			return
		}
		ids = append(ids, id)
	}

	changed, err := s.notificationRepo.MarkProcessed(c.Request.Context(), s.db, userID, ids, s.clock.Now())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"acknowledged": changed}})
}
