package database

import (
	"context"
	"fmt"
	"time"

	"ethics-review/internal/common/config"
	"ethics-review/internal/common/logger"
)

// RetryWithBackoff runs operation until it succeeds, doubling the delay
// after each failure. It gives up after maxRetries attempts or when ctx ends.
func RetryWithBackoff(ctx context.Context, operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		if err = operation(); err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying", operationName), map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// ConnectPostgres opens Postgres and waits until it answers a ping.
func ConnectPostgres(ctx context.Context, cfg config.PostgresConfig, log logger.Logger) (*PostgresClient, error) {
	var pg *PostgresClient
	err := RetryWithBackoff(ctx, func() error {
		client, err := NewPostgres(cfg)
		if err != nil {
			return err
		}
		if err := client.Ping(ctx); err != nil {
			client.Close()
			return err
		}
		pg = client
		return nil
	}, 15, 2*time.Second, log, "PostgreSQL connection")
	return pg, err
}

// ConnectRedis opens Redis and waits until it answers a ping.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig, log logger.Logger) (*RedisClient, error) {
	var rc *RedisClient
	err := RetryWithBackoff(ctx, func() error {
		client, err := NewRedis(cfg)
		if err != nil {
			return err
		}
		if err := client.Ping(ctx); err != nil {
			client.Close()
			return err
		}
		rc = client
		return nil
	}, 10, 2*time.Second, log, "Redis connection")
	return rc, err
}
