package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	analyticsdomain "github.com/smallbiznis/journeys/internal/analytics/domain"
	badgedomain "github.com/smallbiznis/journeys/internal/badge/domain"
	"github.com/smallbiznis/journeys/internal/clock"
	"github.com/smallbiznis/journeys/internal/config"
	journeydomain "github.com/smallbiznis/journeys/internal/journey/domain"
	notificationdomain "github.com/smallbiznis/journeys/internal/notification/domain"
	"github.com/smallbiznis/journeys/internal/observability"
	obsmiddleware "github.com/smallbiznis/journeys/internal/observability/logger"
	obstracing "github.com/smallbiznis/journeys/internal/observability/tracing"
	"github.com/smallbiznis/journeys/internal/ratelimit"
	"github.com/smallbiznis/journeys/internal/realtime"
	userstatusdomain "github.com/smallbiznis/journeys/internal/userstatus/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, gatherer prometheus.Gatherer, log *zap.Logger) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Log:             log,
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return r
}

func RunHTTP(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log = log.Named("http")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Params struct {
	fx.In

	Engine           *gin.Engine
	DB               *gorm.DB
	Log              *zap.Logger
	Clock            clock.Clock
	JourneySvc       journeydomain.Service
	UserStatusSvc    userstatusdomain.Service
	BadgeRepo        badgedomain.Repository
	AnalyticsRepo    analyticsdomain.Repository
	NotificationRepo notificationdomain.Repository
	Realtime         *realtime.Handler
	Limiter          *ratelimit.WriteLimiter `optional:"true"`
}

type Server struct {
	engine           *gin.Engine
	db               *gorm.DB
	log              *zap.Logger
	clock            clock.Clock
	journeySvc       journeydomain.Service
	userStatusSvc    userstatusdomain.Service
	badgeRepo        badgedomain.Repository
	analyticsRepo    analyticsdomain.Repository
	notificationRepo notificationdomain.Repository
	realtime         *realtime.Handler
	limiter          *ratelimit.WriteLimiter
}

func NewServer(p Params) *Server {
	return &Server{
		engine:           p.Engine,
		db:               p.DB,
		log:              p.Log.Named("http"),
		clock:            p.Clock,
		journeySvc:       p.JourneySvc,
		userStatusSvc:    p.UserStatusSvc,
		badgeRepo:        p.BadgeRepo,
		analyticsRepo:    p.AnalyticsRepo,
		notificationRepo: p.NotificationRepo,
		realtime:         p.Realtime,
		limiter:          p.Limiter,
	}
}

func (s *Server) RegisterRoutes() {
	s.engine.GET("/ready", s.Ready)
	s.engine.GET("/ws/journeys", s.realtime.Connect)

	api := s.engine.Group("/api", AuthRequired())
	writes := WriteRateLimited(s.limiter, s.log)
	{
		api.POST("/journeys", writes, s.CreateJourney)
		api.GET("/journeys/:id", s.GetJourney)
		api.PUT("/journeys/:id", writes, s.UpdateJourney)
		api.DELETE("/journeys/:id", writes, s.DeleteJourney)
		api.POST("/journeys/:id/favorite", writes, s.FavoriteJourney)
		api.GET("/me/badges", s.ListMyBadges)
		api.GET("/me/notifications", s.ListMyNotifications)
		api.POST("/me/notifications/ack", s.AckMyNotifications)
	}

	admin := s.engine.Group("/admin", AuthRequired(), RequireRole(RoleAdmin))
	{
		admin.PATCH("/users/:id/status", s.ChangeUserStatus)
		admin.GET("/statistics/monthly-distance", s.MonthlyDistance)
	}
}

func (s *Server) Ready(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		s.log.Warn("readiness check failed", zap.Error(err))
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
