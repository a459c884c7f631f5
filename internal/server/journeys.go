package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	journeydomain "github.com/smallbiznis/journeys/internal/journey/domain"
)

type journeyRequest struct {
	Name            string          `json:"name" binding:"required"`
	Description     string          `json:"description"`
	StartLocation   string          `json:"startLocation" binding:"required"`
	StartTime       time.Time       `json:"startTime" binding:"required"`
	ArrivalLocation string          `json:"arrivalLocation" binding:"required"`
	ArrivalTime     time.Time       `json:"arrivalTime" binding:"required"`
	TransportType   string          `json:"transportType" binding:"required"`
	DistanceKm      decimal.Decimal `json:"distanceKm"`
	IsPublic        bool            `json:"isPublic"`
	RouteDataURL    string          `json:"routeDataUrl"`
}

type journeyResponse struct {
	ID                  string    `json:"id"`
	OwnerID             string    `json:"ownerId"`
	Name                string    `json:"name"`
	Description         string    `json:"description,omitempty"`
	StartLocation       string    `json:"startLocation"`
	StartTime           time.Time `json:"startTime"`
	ArrivalLocation     string    `json:"arrivalLocation"`
	ArrivalTime         time.Time `json:"arrivalTime"`
	TransportType       string    `json:"transportType"`
	DistanceKm          string    `json:"distanceKm"`
	IsPublic            bool      `json:"isPublic"`
	RouteDataURL        string    `json:"routeDataUrl,omitempty"`
	IsDailyGoalAchieved bool      `json:"isDailyGoalAchieved"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

func toJourneyResponse(j journeydomain.Journey) journeyResponse {
	return journeyResponse{
		ID:                  j.ID.String(),
		OwnerID:             j.OwnerID.String(),
		Name:                j.Name,
		Description:         j.Description,
		StartLocation:       j.StartLocation,
		StartTime:           j.StartTime.UTC(),
		ArrivalLocation:     j.ArrivalLocation,
		ArrivalTime:         j.ArrivalTime.UTC(),
		TransportType:       string(j.TransportType),
		DistanceKm:          j.DistanceKm.StringFixed(2),
		IsPublic:            j.IsPublic,
		RouteDataURL:        j.RouteDataURL,
		IsDailyGoalAchieved: j.IsDailyGoalAchieved,
		CreatedAt:           j.CreatedAt.UTC(),
		UpdatedAt:           j.UpdatedAt.UTC(),
	}
}

func (s *Server) CreateJourney(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req journeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	journey, err := s.journeySvc.Create(c.Request.Context(), journeydomain.CreateJourneyRequest{
		OwnerID:         userID,
		Name:            req.Name,
		Description:     req.Description,
		StartLocation:   req.StartLocation,
		StartTime:       req.StartTime,
		ArrivalLocation: req.ArrivalLocation,
		ArrivalTime:     req.ArrivalTime,
		TransportType:   journeydomain.TransportType(req.TransportType),
		DistanceKm:      req.DistanceKm,
		IsPublic:        req.IsPublic,
		RouteDataURL:    req.RouteDataURL,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": toJourneyResponse(journey)})
}

func (s *Server) GetJourney(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	journey, err := s.journeySvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	// Private journeys are reported missing to everyone but the owner.
	if journey.OwnerID != userID && !journey.IsPublic {
		AbortWithError(c, ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toJourneyResponse(journey)})
}

func (s *Server) UpdateJourney(c *gin.Context) {
	id, ok := s.ownedJourneyID(c)
	if !ok {
		return
	}
	var req journeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	journey, err := s.journeySvc.Update(c.Request.Context(), id, journeydomain.UpdateJourneyRequest{
		Name:            req.Name,
		Description:     req.Description,
		StartLocation:   req.StartLocation,
		StartTime:       req.StartTime,
		ArrivalLocation: req.ArrivalLocation,
		ArrivalTime:     req.ArrivalTime,
		TransportType:   journeydomain.TransportType(req.TransportType),
		DistanceKm:      req.DistanceKm,
		IsPublic:        req.IsPublic,
		RouteDataURL:    req.RouteDataURL,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toJourneyResponse(journey)})
}

func (s *Server) DeleteJourney(c *gin.Context) {
	id, ok := s.ownedJourneyID(c)
	if !ok {
		return
	}
	if err := s.journeySvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) FavoriteJourney(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.journeySvc.Favorite(c.Request.Context(), userID, id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ownedJourneyID aborts the request unless the caller owns the journey.
func (s *Server) ownedJourneyID(c *gin.Context) (snowflake.ID, bool) {
	userID, err := currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return 0, false
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return 0, false
	}
	journey, err := s.journeySvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return 0, false
	}
	if journey.OwnerID != userID {
		AbortWithError(c, ErrForbidden)
		return 0, false
	}
	return id, true
}
