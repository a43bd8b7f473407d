package database

import (
	"strings"

	"cellar-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// sqlitePrefix selects the embedded driver, e.g. "sqlite:cellar.db" or "sqlite::memory:".
const sqlitePrefix = "sqlite:"

// Open opens a GORM DB from DSN (Supabase/Postgres pooler URL, or sqlite:<path>).
// PreferSimpleProtocol disables prepared statement caching to avoid 42P05
// ("prepared statement already exists") when using connection poolers (e.g. PgBouncer, Supabase, Render).
func Open(dsn string) (*gorm.DB, error) {
	if strings.HasPrefix(dsn, sqlitePrefix) {
		return openSQLite(strings.TrimPrefix(dsn, sqlitePrefix))
	}
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{TranslateError: true})
}

// OpenMemory opens a private in-memory database with the schema migrated. Used by tests.
func OpenMemory() (*gorm.DB, error) {
	db, err := openSQLite(":memory:")
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// SQLite serializes writers; one connection keeps ":memory:" a single database.
func openSQLite(path string) (*gorm.DB, error) {
	if path != ":memory:" && !strings.Contains(path, "?") {
		path += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if path == ":memory:" {
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, err
		}
	}
	return db, nil
}

// AutoMigrate runs migrations for the cellar models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.House{},
		&domain.HouseMember{},
		&domain.Wine{},
		&domain.Purchase{},
	)
}
