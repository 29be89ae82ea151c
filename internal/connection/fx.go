package connection

import (
	"github.com/saurav5380/apicompass/internal/connection/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("connection",
	fx.Provide(repository.NewRepository),
)
