package outbox

import (
	"github.com/smallbiznis/journeys/internal/outbox/domain"
	"github.com/smallbiznis/journeys/internal/outbox/processor"
	"github.com/smallbiznis/journeys/internal/outbox/publisher"
	"github.com/smallbiznis/journeys/internal/outbox/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("outbox",
	fx.Provide(repository.Provide),
	fx.Provide(publisher.New),
	fx.Provide(processor.NewConfig),
	fx.Provide(processor.New),
	fx.Provide(func(p *processor.Processor) domain.Processor { return p }),
)
