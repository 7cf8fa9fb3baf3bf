package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"booksaga/cmd/server/config"
	ordersdb "booksaga/internal/db/orders"
	"booksaga/internal/orders/saga"
	"booksaga/internal/store"

	"github.com/redis/go-redis/v9"
)

var openDB = func(driver, dsn string) (*sql.DB, error) {
	return sql.Open(driver, dsn)
}

// openDatabase opens the Postgres pool through the pgx stdlib driver.
func openDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	db, err := openDB("pgx", dsn)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// buildRecordStore picks the record store backend. db and rdb are only
// consulted by their backend.
func buildRecordStore(ctx context.Context, cfg config.StoreConfig, db *sql.DB, rdb *redis.Client) (saga.RecordStore, error) {
	switch cfg.Backend {
	case config.StorePostgres:
		if db == nil {
			return nil, errors.New("postgres store requires a database")
		}
		return ordersdb.NewPostgresRecordStoreWithSchema(ctx, db)
	case config.StoreRedis:
		if rdb == nil {
			return nil, errors.New("redis store requires REDIS_URL")
		}
		return store.NewRedisStore(rdb), nil
	case config.StoreMemory, "":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
