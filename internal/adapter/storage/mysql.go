package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/rl1809/seat-booking/internal/core/domain"
	"github.com/rl1809/seat-booking/internal/platform/retry"
)

const (
	errDupEntry        = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenMySQL opens a pool and waits for the server to answer, retrying with
// backoff. It fails once the policy is exhausted.
func OpenMySQL(ctx context.Context, name, dsn string, pool PoolOptions, policy retry.Policy, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", name, err)
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	err = retry.Do(ctx, policy, func(ctx context.Context) error {
		return db.PingContext(ctx)
	}, func(err error, attempt int, wait time.Duration) {
		logger.Warn("mysql not ready",
			zap.String("database", name),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err))
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: connect %s database: %w", domain.ErrTransientDependency, name, err)
	}

	logger.Info("connected to mysql", zap.String("database", name))
	return db, nil
}

// translate maps driver errors onto the domain taxonomy.
func translate(err error) error {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return err
	}
	switch me.Number {
	case errDupEntry:
		return fmt.Errorf("%w: %w", domain.ErrDuplicateRequest, err)
	case errLockWaitTimeout, errDeadlock:
		return fmt.Errorf("%w: %w", domain.ErrConflict, err)
	}
	return err
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == errDupEntry
}
