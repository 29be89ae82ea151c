package budget

import (
	"github.com/saurav5380/apicompass/internal/budget/service"
	"go.uber.org/fx"
)

var Module = fx.Module("budget",
	fx.Provide(service.NewService),
)
