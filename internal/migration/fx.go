package migration

import (
	"github.com/smallbiznis/mrpledger/internal/config"
	"github.com/smallbiznis/mrpledger/internal/seed"
	"github.com/smallbiznis/mrpledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if db.IsPostgres(conn) {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else if err := AutoMigrate(conn); err != nil {
			return err
		}

		if cfg.SeedDemoData {
			log.Info("seeding demo catalog")
			return seed.EnsureDemoCatalog(conn)
		}
		return nil
	}),
)
