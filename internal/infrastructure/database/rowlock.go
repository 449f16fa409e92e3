package database

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WithRowLock loads dest by primary key with SELECT ... FOR UPDATE inside a
// transaction and runs fn with that transaction. The lock is held until fn
// returns; fn's error rolls the transaction back. gorm.ErrRecordNotFound is
// returned unchanged when the row does not exist.
//
// Dialects without row locks (SQLite) ignore the locking clause; callers there
// rely on the single-writer connection set up by Open.
func WithRowLock(ctx context.Context, db *gorm.DB, dest interface{}, id interface{}, fn func(tx *gorm.DB) error) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(dest, "id = ?", id).Error; err != nil {
			return err
		}
		return fn(tx)
	})
}

// WithRowLockWhere is WithRowLock for tables whose key column is not "id".
func WithRowLockWhere(ctx context.Context, db *gorm.DB, dest interface{}, fn func(tx *gorm.DB) error, query string, args ...interface{}) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where(query, args...).First(dest).Error; err != nil {
			return err
		}
		return fn(tx)
	})
}
