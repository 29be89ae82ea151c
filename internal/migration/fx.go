package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/saurav5380/apicompass/internal/config"
	"github.com/saurav5380/apicompass/internal/seed"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// Embedded SQL targets postgres; other dialects are for tests
		// and migrate through gorm AutoMigrate there.
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		}

		if cfg.DefaultOrgID != 0 {
			return seed.EnsureMainOrgWithID(conn, cfg.DefaultOrgID)
		}
		return seed.EnsureMainOrg(conn)
	}),
)
