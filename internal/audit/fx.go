package audit

import (
	"go.uber.org/fx"

	"github.com/saurav5380/apicompass/internal/audit/repository"
	"github.com/saurav5380/apicompass/internal/audit/service"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
