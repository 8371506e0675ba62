package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"docchat/internal/platform/logger"
)

// Options is the subset of client settings the services tune.
type Options struct {
	Addr     string
	Password string
	DB       int
	// PoolSize defaults to go-redis' own sizing when zero. Each open event
	// stream holds one pub/sub connection outside the pool.
	PoolSize int
}

// New dials Redis and pings it before handing the client out.
func New(ctx context.Context, log *logger.Logger, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s failed: %w", opts.Addr, err)
	}

	log.Info("redis connected", "addr", opts.Addr, "db", opts.DB)
	return client, nil
}
