//go:build integration

package ledger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "postgres://localhost:5432/aquamark_test?sslmode=disable"
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	if err := pool.Ping(context.Background()); err != nil {
		t.Fatalf("postgres not available: %v", err)
	}
	t.Cleanup(pool.Close)

	table := "usage_" + strings.ToLower(t.Name())
	store := NewPostgresStore(pool, table)
	require.NoError(t, store.EnsureSchema(context.Background()))
	t.Cleanup(func() {
		pool.Exec(context.Background(), fmt.Sprintf("DROP TABLE IF EXISTS %q", table))
	})
	return store
}

func newTestRedis(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	prefix := fmt.Sprintf("test:%s:", t.Name())
	t.Cleanup(func() {
		keys, _ := client.Keys(context.Background(), prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(context.Background(), keys...)
		}
	})
	return NewRedisStore(client, prefix)
}

func exerciseStore(t *testing.T, store Store, seed func(Record)) {
	ctx := context.Background()

	_, err := store.Get(ctx, "missing@example.com")
	assert.ErrorIs(t, err, ErrRecordNotFound)
	_, err = store.Consume(ctx, "missing@example.com", 1)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	seed(Record{UserEmail: "a@example.com", PageCredits: 10, PagesUsed: 0})

	rec, err := store.Consume(ctx, "a@example.com", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.PagesUsed)
	assert.Equal(t, 7, rec.Remaining())

	_, err = store.Consume(ctx, "a@example.com", 8)
	assert.ErrorIs(t, err, ErrInsufficientCredit)

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(ctx, "a@example.com", 1); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(7), ok.Load())

	rec, err = store.Get(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, 10, rec.PagesUsed)
}

func TestPostgresStore(t *testing.T) {
	store := newTestPostgres(t)
	exerciseStore(t, store, func(rec Record) {
		require.NoError(t, store.Upsert(context.Background(), rec))
	})
}

func TestRedisStore(t *testing.T) {
	store := newTestRedis(t)
	exerciseStore(t, store, func(rec Record) {
		require.NoError(t, store.Set(context.Background(), rec))
	})
}
