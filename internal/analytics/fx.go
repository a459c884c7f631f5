package analytics

import (
	"github.com/smallbiznis/journeys/internal/analytics/repository"
	"github.com/smallbiznis/journeys/internal/analytics/service"
	"go.uber.org/fx"
)

var Module = fx.Module("analytics.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Invoke(service.Register),
)
