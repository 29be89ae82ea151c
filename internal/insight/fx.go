package insight

import (
	"go.uber.org/fx"

	"github.com/saurav5380/apicompass/internal/insight/service"
)

var Module = fx.Module("insight.service",
	fx.Provide(service.NewService),
)
