package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"ethics-review/internal/common/logger"
	"ethics-review/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func sampleAggregate(id string) *models.ApplicationAggregate {
	return &models.ApplicationAggregate{
		Application: models.Application{
			ID:     id,
			Title:  "Sleep patterns in night-shift nurses",
			Status: models.StatusDraft,
		},
		Investigators: []models.Investigator{{Section: models.Section{ID: "i-1", ApplicationID: id}, Name: "Dr. Kim"}},
	}
}

func TestCache_SetGetDelete(t *testing.T) {
	mr, client := setupRedis(t)
	cache := NewCache(client, time.Minute, logger.NewTestLogger(t))
	ctx := context.Background()

	_, ok := cache.Get(ctx, "app-1")
	assert.False(t, ok)

	require.True(t, cache.Fill(ctx, sampleAggregate("app-1"), 0))
	assert.True(t, mr.Exists("app:app-1"))
	assert.Equal(t, time.Minute, mr.TTL("app:app-1"))

	got, ok := cache.Get(ctx, "app-1")
	require.True(t, ok)
	assert.Equal(t, "Sleep patterns in night-shift nurses", got.Title)
	require.Len(t, got.Investigators, 1)

	cache.Delete(ctx, "app-1")
	assert.False(t, mr.Exists("app:app-1"))
}

func TestCache_DefaultTTL(t *testing.T) {
	_, client := setupRedis(t)
	cache := NewCache(client, 0, logger.NewNoOpLogger())
	assert.Equal(t, DefaultCacheTTL, cache.ttl)
}

func TestCache_CorruptEntryIsDropped(t *testing.T) {
	mr, client := setupRedis(t)
	cache := NewCache(client, time.Minute, logger.NewTestLogger(t))

	require.NoError(t, mr.Set("app:app-1", "{not json"))

	_, ok := cache.Get(context.Background(), "app-1")
	assert.False(t, ok)
	assert.False(t, mr.Exists("app:app-1"))
}

func TestCache_RedisErrorsAreMisses(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewCache(client, time.Minute, logger.NewTestLogger(t))

	mock.ExpectGet("app:app-1").SetErr(errors.New("connection refused"))
	mock.ExpectDel("app:app-1").SetErr(errors.New("connection refused"))
	mock.ExpectIncr("app:gen:app-1").SetErr(errors.New("connection refused"))

	_, ok := cache.Get(context.Background(), "app-1")
	assert.False(t, ok)
	cache.Delete(context.Background(), "app-1")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_AggregateServedFromCache(t *testing.T) {
	db, mock := setupMockDB(t)
	_, client := setupRedis(t)
	cache := NewCache(client, time.Minute, logger.NewTestLogger(t))
	s := newTestStore(t, db, cache)

	require.True(t, cache.Fill(context.Background(), sampleAggregate("app-1"), 0))

	agg, err := s.Aggregate(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, "app-1", agg.ID)
	assert.NoError(t, mock.ExpectationsWereMet(), "no query when cached")

	s.Invalidate(context.Background(), "app-1")
	_, ok := cache.Get(context.Background(), "app-1")
	assert.False(t, ok)
}

func TestCache_FillAfterInvalidateIsDropped(t *testing.T) {
	mr, client := setupRedis(t)
	cache := NewCache(client, time.Minute, logger.NewTestLogger(t))
	ctx := context.Background()

	gen, ok := cache.Generation(ctx, "app-1")
	require.True(t, ok)
	assert.Equal(t, int64(0), gen)

	// A write lands between the read of the generation and the fill.
	cache.Delete(ctx, "app-1")

	assert.False(t, cache.Fill(ctx, sampleAggregate("app-1"), gen))
	assert.False(t, mr.Exists("app:app-1"))

	gen, ok = cache.Generation(ctx, "app-1")
	require.True(t, ok)
	assert.Equal(t, int64(1), gen)
	assert.Equal(t, time.Minute, mr.TTL("app:gen:app-1"))

	assert.True(t, cache.Fill(ctx, sampleAggregate("app-1"), gen))
	assert.True(t, mr.Exists("app:app-1"))
	assert.Equal(t, time.Minute, mr.TTL("app:app-1"))
}

func TestCache_GenerationReadErrorSkipsFill(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewCache(client, time.Minute, logger.NewTestLogger(t))

	mock.ExpectGet("app:gen:app-1").SetErr(errors.New("connection refused"))

	_, ok := cache.Generation(context.Background(), "app-1")
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_AggregateMissFillsCache(t *testing.T) {
	db, mock := setupMockDB(t)
	mr, client := setupRedis(t)
	cache := NewCache(client, time.Minute, logger.NewTestLogger(t))
	s := newTestStore(t, db, cache)

	mock.ExpectQuery("FROM applications WHERE id").WithArgs("app-1").
		WillReturnRows(applicationRow("app-1", models.StatusDraft))
	expectAggregateRelations(mock, "app-1")

	_, err := s.Aggregate(context.Background(), "app-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.True(t, mr.Exists("app:app-1"))
}
