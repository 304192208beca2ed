// Package db persists rasters and run history in SQLite.
package db

import (
	"database/sql"
	"embed"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DB is a SQLite database holding the schema of the migrations directory.
type DB struct {
	*sql.DB
	logger zerolog.Logger
}

// Open opens (creating if needed) the database at path and migrates it to the latest schema.
func Open(path string, logger zerolog.Logger) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", path)
	}

	// SQLite serialises writers; a single connection avoids SQLITE_BUSY between them.
	sqlDB.SetMaxOpenConns(1)

	_, err = sqlDB.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`)
	if err != nil {
		sqlDB.Close()
		return nil, errors.Wrap(err, "unable to set pragmas")
	}

	db := &DB{DB: sqlDB, logger: logger}

	err = db.MigrateUp()
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	return db, nil
}

// MigrateUp runs all pending migrations. It is a no-op on an up to date database.
func (db *DB) MigrateUp() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "migration up failed")
	}

	return nil
}

// MigrateVersion returns the current schema version, zero before any migration.
func (db *DB) MigrateVersion() (uint, bool, error) {
	m, err := db.newMigrate()
	if err != nil {
		return 0, false, err
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, errors.Wrap(err, "unable to read migration version")
	}

	return version, dirty, nil
}

// newMigrate builds a migrate instance over the embedded migrations. It is never closed, as that
// would close the underlying connection.
func (db *DB) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, errors.Wrap(err, "unable to read embedded migrations")
	}

	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create sqlite driver")
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create migrate instance")
	}

	m.Log = &migrateLogger{logger: db.logger}

	return m, nil
}

// migrateLogger implements migrate.Logger on zerolog.
type migrateLogger struct {
	logger zerolog.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug().Msgf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}
