package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	userstatusdomain "github.com/smallbiznis/journeys/internal/userstatus/domain"
)

type changeUserStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

func (s *Server) ChangeUserStatus(c *gin.Context) {
	adminID, err := currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	userID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req changeUserStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.userStatusSvc.ChangeStatus(c.Request.Context(), userstatusdomain.ChangeStatusRequest{
		UserID:    userID,
		NewStatus: userstatusdomain.ParseStatus(req.Status),
		ChangedBy: &adminID,
		Reason:    req.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"id":     user.ID.String(),
		"status": string(user.Status),
	}})
}

func (s *Server) MonthlyDistance(c *gin.Context) {
	userID, err := snowflake.ParseString(c.Query("userId"))
	if err != nil || userID == 0 {
		AbortWithError(c, newValidationError("userId", "invalid_user_id", "userId is required"))
		return
	}
	year, err := strconv.Atoi(c.Query("year"))
	if err != nil || year < 1 {
		AbortWithError(c, newValidationError("year", "invalid_year", "year is required"))
		return
	}
	month, err := strconv.Atoi(c.Query("month"))
	if err != nil || month < 1 || month > 12 {
		AbortWithError(c, newValidationError("month", "invalid_month", "month must be between 1 and 12"))
		return
	}

	row, err := s.analyticsRepo.Find(c.Request.Context(), s.db, userID, year, month)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	total := decimal.Zero
	var count int64
	if row != nil {
		total = row.TotalDistanceKm
		count = row.JourneyCount
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"userId":          userID.String(),
		"year":            year,
		"month":           month,
		"totalDistanceKm": total.StringFixed(2),
		"journeyCount":    count,
	}})
}

type badgeResponse struct {
	ID              string `json:"id"`
	JourneyID       string `json:"journeyId"`
	AwardDate       string `json:"awardDate"`
	TotalDistanceKm string `json:"totalDistanceKm"`
}

func (s *Server) ListMyBadges(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	badges, err := s.badgeRepo.ListByUser(c.Request.Context(), s.db, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	out := make([]badgeResponse, 0, len(badges))
	for _, b := range badges {
		out = append(out, badgeResponse{
			ID:              b.ID.String(),
			JourneyID:       b.JourneyID.String(),
			AwardDate:       b.AwardDate.Format(time.DateOnly),
			TotalDistanceKm: b.TotalDistanceKm.StringFixed(2),
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}
