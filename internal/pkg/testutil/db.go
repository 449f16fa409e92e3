package testutil

import (
	"strings"
	"sync"
	"testing"

	"talentgate-backend/internal/infrastructure/database"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB returns an in-memory SQLite database with every table migrated.
// A single connection keeps the in-memory database shared across goroutines
// and serializes transactions the way a row lock would.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))
	return db
}

// MissNextQuery makes the next query whose SQL contains fragment report
// gorm.ErrRecordNotFound, as if a concurrent writer had not committed yet.
func MissNextQuery(t *testing.T, db *gorm.DB, fragment string) {
	t.Helper()
	var once sync.Once
	err := db.Callback().Query().After("gorm:query").Register("testutil:miss_next_query", func(d *gorm.DB) {
		if strings.Contains(d.Statement.SQL.String(), fragment) {
			once.Do(func() { _ = d.AddError(gorm.ErrRecordNotFound) })
		}
	})
	require.NoError(t, err)
}
