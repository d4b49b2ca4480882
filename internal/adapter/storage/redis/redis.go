package redis

import (
	"context"
	"fmt"

	"settlement-ledger/config"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewClient creates a Redis client and verifies connectivity.
func NewClient(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	log.Info().
		Str("addr", cfg.Addr()).
		Int("db", cfg.DB).
		Msg("Redis connection established")

	return client, nil
}

// NewEmbedded starts an in-process Redis server for the memory storage
// driver. The returned stop func closes both client and server.
func NewEmbedded(log zerolog.Logger) (*goredis.Client, func(), error) {
	srv, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("starting embedded redis: %w", err)
	}
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})

	log.Warn().Str("addr", srv.Addr()).Msg("using embedded Redis; state is lost on exit")

	stop := func() {
		_ = client.Close()
		srv.Close()
	}
	return client, stop, nil
}
