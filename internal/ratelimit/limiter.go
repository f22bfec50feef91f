package ratelimit

import (
	"context"
	"fmt"
	"time"

	"wallet-ledger-go/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultRequests = 10
	DefaultWindow   = time.Minute
)

// Limiter is a fixed-window request counter keyed by caller
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (bool, time.Duration, error)
}

// New builds a Redis limiter when an address is configured and an in-memory
// one otherwise. The returned func releases the Redis connection.
func New(ctx context.Context, cfg models.RateLimitConfig) (Limiter, func() error, error) {
	requests := cfg.Requests
	if requests <= 0 {
		requests = DefaultRequests
	}
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}

	if cfg.RedisAddr == "" {
		zap.L().Info("Using in-memory rate limiter",
			zap.Int("requests", requests),
			zap.Duration("window", window))
		return NewMemory(requests, window), func() error { return nil }, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis rate limiter unavailable: %w", err)
	}

	zap.L().Info("Using redis rate limiter",
		zap.String("addr", cfg.RedisAddr),
		zap.Int("requests", requests),
		zap.Duration("window", window))
	return NewRedis(client, requests, window, ""), client.Close, nil
}
