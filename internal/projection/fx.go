package projection

import (
	"go.uber.org/fx"

	"github.com/saurav5380/apicompass/internal/projection/service"
)

var Module = fx.Module("projection.service",
	fx.Provide(service.NewService),
)
