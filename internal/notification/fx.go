package notification

import (
	"github.com/smallbiznis/journeys/internal/notification/repository"
	"github.com/smallbiznis/journeys/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Invoke(service.Register),
)
