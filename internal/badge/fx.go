package badge

import (
	"github.com/smallbiznis/journeys/internal/badge/repository"
	"github.com/smallbiznis/journeys/internal/badge/service"
	"go.uber.org/fx"
)

var Module = fx.Module("badge.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Invoke(service.Register),
)
