package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

// Connect parses redisURL, creates a client, and verifies connectivity with a ping.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return client, nil
}

// ConnectWithRetry calls Connect with exponential backoff until it succeeds,
// maxWait elapses, or ctx is done. A malformed URL fails immediately.
func ConnectWithRetry(ctx context.Context, redisURL string, maxWait time.Duration, log *slog.Logger) (*redis.Client, error) {
	if _, err := redis.ParseURL(redisURL); err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxElapsedTime = maxWait

	var client *redis.Client
	op := func() error {
		c, err := Connect(ctx, redisURL)
		if err != nil {
			return err
		}
		client = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("redis not ready, retrying", "err", err, "wait", wait)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, err
	}
	return client, nil
}
