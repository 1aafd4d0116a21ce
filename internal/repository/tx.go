package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	svcErr "github.com/oggyb/muzz-matching/internal/errors"
)

// InTx runs fn inside a transaction. Everything fn touches must go through tx.
func InTx(ctx context.Context, database *gorm.DB, fn func(tx *gorm.DB) error) error {
	return database.WithContext(ctx).Transaction(fn)
}

// InnoDB errors raised when two transactions contend for the same rows.
const (
	mysqlLockWaitTimeout uint16 = 1205
	mysqlDeadlock        uint16 = 1213
)

// RetryOnConflict re-runs fn while it fails with ErrConcurrentWriteLost, at most
// limit times in total. The last conflict is returned once the budget is spent.
// A MySQL deadlock or lock wait timeout counts as a lost write.
func RetryOnConflict(ctx context.Context, limit int, fn func() error) error {
	if limit < 1 {
		limit = 1
	}
	var err error
	for attempt := 0; attempt < limit; attempt++ {
		err = asWriteConflict(fn())
		if !errors.Is(err, svcErr.ErrConcurrentWriteLost) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}

// asWriteConflict rewraps lock contention as ErrConcurrentWriteLost. The
// driver error stays in the chain.
func asWriteConflict(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && (myErr.Number == mysqlDeadlock || myErr.Number == mysqlLockWaitTimeout) {
		return fmt.Errorf("%w: %w", svcErr.ErrConcurrentWriteLost, err)
	}
	return err
}

// forUpdate adds SELECT ... FOR UPDATE. The sqlite dialector drops the clause.
func forUpdate(q *gorm.DB) *gorm.DB {
	return q.Clauses(clause.Locking{Strength: "UPDATE"})
}

// takeOrNil maps a missing row to (nil, nil).
func takeOrNil[T any](q *gorm.DB) (*T, error) {
	var out T
	err := q.Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
