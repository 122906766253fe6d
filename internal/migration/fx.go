package migration

import (
	"github.com/smallbiznis/plantops/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.MigrateOnStart {
			log.Named("migrations").Info("migrations on start disabled")
			return nil
		}
		if cfg.DB.Type != "postgres" {
			log.Named("migrations").Warn("skipping migrations for non-postgres database", zap.String("type", cfg.DB.Type))
			return nil
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
