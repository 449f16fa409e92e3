package database

import (
	"strings"

	"talentgate-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open opens a GORM DB from DSN. postgres:// URLs go through pgx with
// PreferSimpleProtocol (poolers like PgBouncer reject cached prepared
// statements); sqlite:// or file paths open a local SQLite database.
func Open(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn), TranslateError: true}
	if path, ok := sqlitePath(dsn); ok {
		db, err := gorm.Open(sqlite.Open(path), cfg)
		if err != nil {
			return nil, err
		}
		// SQLite has no row locks; one connection serializes writers instead.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), cfg)
}

func sqlitePath(dsn string) (string, bool) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return strings.TrimPrefix(dsn, "sqlite://"), true
	case dsn == ":memory:" || strings.HasSuffix(dsn, ".db"):
		return dsn, true
	}
	return "", false
}

// Models lists every table owned by this service.
func Models() []interface{} {
	return []interface{}{
		&domain.Invitation{},
		&domain.Interview{},
		&domain.Answer{},
		&domain.Attempt{},
		&domain.TimedTestState{},
		&domain.VoiceTranscription{},
		&domain.Profile{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
