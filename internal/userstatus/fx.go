package userstatus

import (
	"github.com/smallbiznis/journeys/internal/userstatus/domain"
	"github.com/smallbiznis/journeys/internal/userstatus/repository"
	"github.com/smallbiznis/journeys/internal/userstatus/service"
	"go.uber.org/fx"
)

var Module = fx.Module("userstatus.service",
	fx.Provide(repository.Provide),
	fx.Provide(
		fx.Annotate(service.New, fx.As(new(domain.Service))),
	),
	fx.Provide(service.NewAuditor),
	fx.Invoke(service.RegisterAuditor),
)
