package entitlement

import (
	"go.uber.org/fx"

	"github.com/saurav5380/apicompass/internal/cache"
	"github.com/saurav5380/apicompass/internal/entitlement/service"
)

var Module = fx.Module("entitlement",
	fx.Provide(cache.NewSnapshotCache),
	fx.Provide(service.NewService),
)
