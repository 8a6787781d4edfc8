package mapping

import (
	"github.com/smallbiznis/domainlink/internal/cache"
	"github.com/smallbiznis/domainlink/internal/mapping/repository"
	"github.com/smallbiznis/domainlink/internal/mapping/service"
	"go.uber.org/fx"
)

var Module = fx.Module("mapping.service",
	fx.Provide(cache.NewMappingResolverCache),
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
