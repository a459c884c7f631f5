package realtime

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/journeys/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("realtime",
	fx.Provide(NewHub),
	fx.Provide(NewHandler),
	fx.Provide(provideChannel),
)

type channelParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Hub       *Hub
	Redis     *redis.Client `optional:"true"`
	Log       *zap.Logger
}

// provideChannel picks the in-memory hub or the redis fan-out.
func provideChannel(p channelParams) Channel {
	if p.Config.Realtime.Backend != config.RealtimeBackendRedis {
		return p.Hub
	}
	if p.Redis == nil {
		p.Log.Warn("realtime backend is redis but redis is not configured, using local hub")
		return p.Hub
	}

	bridge := NewBridge(p.Redis, p.Hub, p.Log)
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			bridge.Start(context.Background())
			return nil
		},
		OnStop: func(context.Context) error {
			return bridge.Stop()
		},
	})
	return NewRedisChannel(p.Redis)
}
