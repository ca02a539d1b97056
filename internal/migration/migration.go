package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	alertdomain "github.com/smallbiznis/mrpledger/internal/alert/domain"
	auditdomain "github.com/smallbiznis/mrpledger/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/mrpledger/internal/catalog/domain"
	inventorydomain "github.com/smallbiznis/mrpledger/internal/inventory/domain"
	requirementdomain "github.com/smallbiznis/mrpledger/internal/requirement/domain"
	scheduledomain "github.com/smallbiznis/mrpledger/internal/schedule/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies the embedded SQL migrations to a Postgres database.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every persisted model, in dependency order.
func Models() []any {
	return []any{
		&catalogdomain.Part{},
		&catalogdomain.Product{},
		&catalogdomain.ProductBomLine{},
		&scheduledomain.ProductionSchedule{},
		&scheduledomain.CustomerOrder{},
		&requirementdomain.MaterialRequirement{},
		&inventorydomain.Movement{},
		&alertdomain.Alert{},
		&auditdomain.AuditLog{},
	}
}

// AutoMigrate creates the schema from the models. Used for SQLite and MySQL,
// which the embedded Postgres migrations do not target.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}
	return db.AutoMigrate(Models()...)
}
