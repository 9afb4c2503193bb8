package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	*MemoryStore
	consumeErr error
}

func (s *failingStore) Consume(ctx context.Context, userEmail string, pages int) (Record, error) {
	return Record{}, s.consumeErr
}

func TestRecordRemaining(t *testing.T) {
	rec := Record{PageCredits: 10, PagesUsed: 4}
	assert.Equal(t, 6, rec.Remaining())
	assert.True(t, rec.Allows(6))
	assert.False(t, rec.Allows(7))
}

func TestCheckCredit(t *testing.T) {
	store := NewMemoryStore()
	store.Set("a@example.com", 10, 9)
	client := NewClient(store, 0, nil)
	ctx := context.Background()

	t.Run("allowed", func(t *testing.T) {
		rec, err := client.CheckCredit(ctx, "a@example.com", 1)
		require.NoError(t, err)
		assert.Equal(t, 9, rec.PagesUsed)
	})

	t.Run("insufficient does not mutate", func(t *testing.T) {
		_, err := client.CheckCredit(ctx, "a@example.com", 3)
		assert.ErrorIs(t, err, ErrInsufficientCredit)
		rec, err := store.Get(ctx, "a@example.com")
		require.NoError(t, err)
		assert.Equal(t, 9, rec.PagesUsed)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := client.CheckCredit(ctx, "nobody@example.com", 1)
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})

	t.Run("invalid amount", func(t *testing.T) {
		_, err := client.CheckCredit(ctx, "a@example.com", 0)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestCommitUsage(t *testing.T) {
	store := NewMemoryStore()
	store.Set("a@example.com", 10, 0)
	client := NewClient(store, 0, nil)
	ctx := context.Background()

	snap, err := client.CheckCredit(ctx, "a@example.com", 3)
	require.NoError(t, err)

	rec, err := client.CommitUsage(ctx, "a@example.com", 3, snap)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.PagesUsed)
	assert.Equal(t, 7, rec.Remaining())

	_, err = client.CommitUsage(ctx, "a@example.com", 8, rec)
	assert.ErrorIs(t, err, ErrInsufficientCredit)

	after, err := store.Get(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, 3, after.PagesUsed)
}

func TestCommitUsageWrapsBackendErrors(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore(), consumeErr: errors.New("connection reset")}
	client := NewClient(store, 0, nil)

	_, err := client.CommitUsage(context.Background(), "a@example.com", 1, Record{})
	assert.ErrorIs(t, err, ErrCommitFailed)
}

func TestConsumeNeverOvercommits(t *testing.T) {
	store := NewMemoryStore()
	store.Set("a@example.com", 10, 0)
	client := NewClient(store, 0, nil)

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.CommitUsage(context.Background(), "a@example.com", 1, Record{}); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), ok.Load())
	rec, err := store.Get(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, 10, rec.PagesUsed)
	assert.Equal(t, 0, rec.Remaining())
}
