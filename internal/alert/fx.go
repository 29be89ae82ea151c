package alert

import (
	"go.uber.org/fx"

	"github.com/saurav5380/apicompass/internal/alert/service"
)

var Module = fx.Module("alert.service",
	fx.Provide(service.NewService),
)
