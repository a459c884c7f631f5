package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obslogger "github.com/smallbiznis/journeys/internal/observability/logger"
	"github.com/smallbiznis/journeys/internal/ratelimit"
	"github.com/smallbiznis/journeys/internal/realtime"
	"go.uber.org/zap"
)

// The gateway in front of the service authenticates callers and forwards
// these headers.
const (
	HeaderUserID   = realtime.HeaderUserID
	HeaderUserRole = "X-User-Role"

	contextUserIDKey = "user_id"
	RoleAdmin        = "admin"
)

func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, err := snowflake.ParseString(raw)
		if err != nil || userID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Set(contextUserIDKey, userID.String())
		c.Next()
	}
}

func RequireRole(role ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		granted := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserRole)))
		for _, r := range role {
			if granted == strings.ToLower(r) {
				c.Next()
				return
			}
		}
		AbortWithError(c, ErrForbidden)
	}
}

// WriteRateLimited must run after AuthRequired. Limiter failures let the
// request through.
func WriteRateLimited(limiter *ratelimit.WriteLimiter, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Enabled() {
			c.Next()
			return
		}
		userID, err := currentUserID(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		res, err := limiter.AllowUser(c.Request.Context(), userID)
		if err != nil {
			obslogger.WithContext(c.Request.Context(), log).Warn("journey write rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

func currentUserID(c *gin.Context) (snowflake.ID, error) {
	id, err := snowflake.ParseString(c.GetString(contextUserIDKey))
	if err != nil || id == 0 {
		return 0, ErrUnauthorized
	}
	return id, nil
}

func parseIDParam(c *gin.Context, name string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || id == 0 {
		return 0, ErrNotFound
	}
	return id, nil
}
