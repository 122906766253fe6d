package db

import (
	"context"
	"database/sql"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Locked runs fn in a transaction meant to be serialized by a row lock taken
// with ForUpdate as its first statement. On postgres and mysql it runs at
// READ COMMITTED so every statement after the lock sees the rows committed by
// the previous holder. SQLite transactions are already serialized by its
// writer lock.
func Locked(ctx context.Context, conn *gorm.DB, fn func(tx *gorm.DB) error) error {
	if opts := lockedTxOptions(conn.Dialector.Name()); opts != nil {
		return conn.WithContext(ctx).Transaction(fn, opts)
	}
	return conn.WithContext(ctx).Transaction(fn)
}

func lockedTxOptions(dialect string) *sql.TxOptions {
	switch dialect {
	case "postgres", "mysql":
		return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	default:
		return nil
	}
}

// ForUpdate adds a row lock to the next query when the dialect supports it.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if !SupportsRowLocking(tx) {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
