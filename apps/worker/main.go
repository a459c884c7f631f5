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
	"github.com/smallbiznis/journeys/internal/notification"
	"github.com/smallbiznis/journeys/internal/observability"
	obsmetrics "github.com/smallbiznis/journeys/internal/observability/metrics"
	"github.com/smallbiznis/journeys/internal/outbox"
	"github.com/smallbiznis/journeys/internal/realtime"
	"github.com/smallbiznis/journeys/internal/scheduler"
	"github.com/smallbiznis/journeys/internal/userstatus"
	"github.com/smallbiznis/journeys/pkg/db"
	"go.uber.org/fx"
)

// The worker relays the outbox without serving HTTP. Realtime pushes reach
// users through the redis backend when REALTIME_BACKEND=redis; otherwise the
// local hub has no connections and every push falls back to the store.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		obsmetrics.PushModule,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		lock.Module,

		events.Module,
		outbox.Module,
		scheduler.Module,

		journey.Module,
		userstatus.Module,
		badge.Module,
		analytics.Module,
		realtime.Module,
		notification.Module,

		// No server module!
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
