package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/api-sage/bank-ledger/src/internal/logger"
	_ "github.com/lib/pq"
)

// PoolSettings bounds the database/sql pool. Ledger writes hold a row lock for
// the whole unit of work, so MaxOpenConns caps concurrent mutations.
type PoolSettings struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

func DefaultPoolSettings() PoolSettings {
	return PoolSettings{
		MaxOpenConns:    30,
		MaxIdleConns:    20,
		ConnMaxIdleTime: 5 * time.Minute,
		ConnMaxLifetime: 15 * time.Minute,
	}
}

// withDefaults fills zero fields and keeps idle connections within the open limit.
func (p PoolSettings) withDefaults() PoolSettings {
	def := DefaultPoolSettings()
	if p.MaxOpenConns <= 0 {
		p.MaxOpenConns = def.MaxOpenConns
	}
	if p.MaxIdleConns <= 0 {
		p.MaxIdleConns = def.MaxIdleConns
	}
	if p.MaxIdleConns > p.MaxOpenConns {
		p.MaxIdleConns = p.MaxOpenConns
	}
	if p.ConnMaxIdleTime <= 0 {
		p.ConnMaxIdleTime = def.ConnMaxIdleTime
	}
	if p.ConnMaxLifetime <= 0 {
		p.ConnMaxLifetime = def.ConnMaxLifetime
	}
	return p
}

func (p PoolSettings) apply(db *sql.DB) {
	db.SetMaxOpenConns(p.MaxOpenConns)
	db.SetMaxIdleConns(p.MaxIdleConns)
	db.SetConnMaxIdleTime(p.ConnMaxIdleTime)
	db.SetConnMaxLifetime(p.ConnMaxLifetime)
}

// Open connects with lib/pq, verifies the server answers and sizes the pool.
func Open(ctx context.Context, dsn string, pool PoolSettings) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	pool = pool.withDefaults()
	pool.apply(db)

	logger.Info("postgres pool ready", logger.Fields{
		"maxOpenConns": pool.MaxOpenConns,
		"maxIdleConns": pool.MaxIdleConns,
	})
	return db, nil
}
