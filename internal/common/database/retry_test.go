package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"ethics-review/internal/common/config"
	"ethics-review/internal/common/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoff_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	}, 5, time.Millisecond, logger.NewTestLogger(t), "op")

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_GivesUp(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), func() error {
		calls++
		return errors.New("down")
	}, 3, time.Millisecond, logger.NewTestLogger(t), "op")

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "op failed after 3 attempts")
	assert.Contains(t, err.Error(), "down")
}

func TestRetryWithBackoff_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryWithBackoff(ctx, func() error {
		calls++
		cancel()
		return errors.New("down")
	}, 5, time.Hour, logger.NewTestLogger(t), "op")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	rc, err := ConnectRedis(context.Background(), config.RedisConfig{Address: mr.Addr()}, logger.NewTestLogger(t))
	require.NoError(t, err)
	defer rc.Close()

	require.NoError(t, rc.Client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}
