package journey

import (
	"github.com/smallbiznis/journeys/internal/journey/repository"
	"github.com/smallbiznis/journeys/internal/journey/service"
	"go.uber.org/fx"
)

var Module = fx.Module("journey.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
