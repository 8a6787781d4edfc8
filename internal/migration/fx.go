package migration

import (
	"github.com/smallbiznis/domainlink/internal/config"
	handoffdomain "github.com/smallbiznis/domainlink/internal/handoff/domain"
	mappingdomain "github.com/smallbiznis/domainlink/internal/mapping/domain"
	"github.com/smallbiznis/domainlink/internal/site"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// Versioned SQL is written for postgres; other dialects (local
		// sqlite, mysql) get their schema from the models.
		if err := conn.AutoMigrate(
			&mappingdomain.DomainMapping{},
			&handoffdomain.HandoffToken{},
			&site.Site{},
			&site.PlatformSetting{},
		); err != nil {
			return err
		}

		// MySQL has no partial indexes; there the single-primary invariant
		// relies on InnoDB's locking reads during the clear-then-set swap.
		if cfg.DBType == "mysql" {
			return nil
		}
		return conn.Exec(
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_domain_mappings_one_primary ON domain_mappings (tenant_id) WHERE is_primary",
		).Error
	}),
)
