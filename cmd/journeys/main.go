package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/journeys/internal/analytics"
	"github.com/smallbiznis/journeys/internal/badge"
	"github.com/smallbiznis/journeys/internal/clock"
	"github.com/smallbiznis/journeys/internal/config"
	"github.com/smallbiznis/journeys/internal/events"
	"github.com/smallbiznis/journeys/internal/journey"
	"github.com/smallbiznis/journeys/internal/lock"
	"github.com/smallbiznis/journeys/internal/migration"
	"github.com/smallbiznis/journeys/internal/notification"
	"github.com/smallbiznis/journeys/internal/observability"
	"github.com/smallbiznis/journeys/internal/outbox"
	"github.com/smallbiznis/journeys/internal/ratelimit"
	"github.com/smallbiznis/journeys/internal/realtime"
	"github.com/smallbiznis/journeys/internal/scheduler"
	"github.com/smallbiznis/journeys/internal/server"
	"github.com/smallbiznis/journeys/internal/userstatus"
	"github.com/smallbiznis/journeys/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		lock.Module,
		ratelimit.Module,

		// Event pipeline
		events.Module,
		outbox.Module,
		scheduler.Module,

		// Functional Domains
		journey.Module,
		userstatus.Module,
		badge.Module,
		analytics.Module,
		realtime.Module,
		notification.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
