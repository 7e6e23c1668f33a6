package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/rootapp/internal/config"
)

// NewRedis creates the client used by the session stores. It parses the URL
// and pings before returning.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return client, nil
}

// Ping checks both backing stores. Used by the health endpoint.
func Ping(ctx context.Context, db *sql.DB, rdb *redis.Client) error {
	var errs []error
	if err := db.PingContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("mariadb: %w", err))
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		errs = append(errs, fmt.Errorf("redis: %w", err))
	}
	return errors.Join(errs...)
}
