package database

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationsTable keeps the ledger's schema version apart from any other
// schema sharing the database
const MigrationsTable = "ledger_schema_migrations"

// ErrSchemaOutdated is returned when the database is behind the embedded migrations
var ErrSchemaOutdated = errors.New("ledger schema is not up to date")

// SchemaStatus describes the applied version against the embedded migrations
type SchemaStatus struct {
	Applied uint
	Latest  uint
	Dirty   bool
}

// Current reports whether the schema is clean and fully migrated
func (s SchemaStatus) Current() bool {
	return !s.Dirty && s.Applied == s.Latest
}

// getMigrationDatabaseURL reads the database location straight from the environment
// so migrations can run without the rest of the configuration
func getMigrationDatabaseURL() string {
	return ConstructDatabaseURL(os.Getenv("DATABASE_URL"), os.Getenv("DATABASE_NAME"))
}

// MigrateUp runs all pending migrations
func MigrateUp() error {
	return RunMigrationsWithURL(getMigrationDatabaseURL())
}

// MigrateDown rolls back the specified number of migrations
func MigrateDown(stepsStr string) error {
	steps, err := strconv.Atoi(stepsStr)
	if err != nil {
		return fmt.Errorf("invalid steps value: %w", err)
	}
	if steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", steps)
	}

	m, err := getMigrate(getMigrationDatabaseURL())
	if err != nil {
		return err
	}
	defer m.Close()

	log.WithField("steps", steps).Warn("Rolling back ledger migrations")
	if err := m.Steps(-steps); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("No migrations to roll back")
			return nil
		}
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}

	version, _, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		log.Info("Rolled back all migrations")
		return nil
	}
	log.WithField("version", version).Info("Successfully rolled back")
	return nil
}

// MigrateStatus logs the applied and latest migration versions
func MigrateStatus() error {
	status, err := CheckSchema(getMigrationDatabaseURL())
	if err != nil && !errors.Is(err, ErrSchemaOutdated) {
		return err
	}

	log.WithFields(log.Fields{
		"applied": status.Applied,
		"latest":  status.Latest,
		"dirty":   status.Dirty,
		"pending": status.Latest > status.Applied,
	}).Info("Ledger schema status")
	return nil
}

// RunMigrationsWithURL runs all pending migrations against an explicit URL.
// Test containers use it because their URL is only known at runtime.
func RunMigrationsWithURL(databaseURL string) error {
	m, err := getMigrate(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Debug("No new migrations to apply")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, _, _ := m.Version()
	log.WithField("version", version).Info("Successfully migrated")
	return nil
}

// CheckSchema compares the database against the embedded migrations. It returns
// ErrSchemaOutdated, with the status filled in, when the schema is dirty or behind.
func CheckSchema(databaseURL string) (SchemaStatus, error) {
	latest, err := latestMigrationVersion()
	if err != nil {
		return SchemaStatus{}, err
	}
	status := SchemaStatus{Latest: latest}

	m, err := getMigrate(databaseURL)
	if err != nil {
		return status, err
	}
	defer m.Close()

	applied, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return status, fmt.Errorf("failed to get migration version: %w", err)
	}
	status.Applied = applied
	status.Dirty = dirty

	if !status.Current() {
		return status, fmt.Errorf("%w: applied %d (dirty=%t), latest %d", ErrSchemaOutdated, applied, dirty, latest)
	}
	return status, nil
}

func newMigrationSource() (source.Driver, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	return src, nil
}

// latestMigrationVersion walks the embedded migrations to the last version
func latestMigrationVersion() (uint, error) {
	src, err := newMigrationSource()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	version, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("no embedded migrations: %w", err)
	}
	for {
		next, err := src.Next(version)
		if errors.Is(err, fs.ErrNotExist) {
			return version, nil
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read migration after %d: %w", version, err)
		}
		version = next
	}
}

func getMigrate(databaseURL string) (*migrate.Migrate, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	db := stdlib.OpenDB(*config.ConnConfig)

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	src, err := newMigrationSource()
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}
