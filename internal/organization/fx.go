package organization

import (
	"github.com/saurav5380/apicompass/internal/organization/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("organization",
	fx.Provide(repository.NewRepository),
)
