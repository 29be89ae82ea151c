package notify

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/saurav5380/apicompass/internal/config"
)

func New(cfg config.Config, log *zap.Logger) Notifier {
	switch cfg.Notify.Backend {
	case "smtp":
		return NewSMTP(cfg.Notify)
	default:
		return NewLog(log)
	}
}

var Module = fx.Module("notify",
	fx.Provide(New),
)
