package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"
)

// RedisStore keeps one hash per identity with the fields page_credits,
// pages_used and pages_remaining.
type RedisStore struct {
	client    goredis.Cmdable
	keyPrefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore uses keyPrefix (default "aquamark:usage:").
func NewRedisStore(client goredis.Cmdable, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "aquamark:usage:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) key(userEmail string) string {
	return s.keyPrefix + userEmail
}

// consumeScript atomically applies a conditional increment.
// KEYS[1] = usage hash key
// ARGV[1] = pages
//
// Returns {status, page_credits, pages_used}:
//
//	1  = consumed
//	0  = insufficient credit
//	-1 = record not found
var consumeScript = goredis.NewScript(`
local credits = redis.call("HGET", KEYS[1], "page_credits")
if not credits then
    return {-1, 0, 0}
end
credits = tonumber(credits)
local used = tonumber(redis.call("HGET", KEYS[1], "pages_used") or "0")
local pages = tonumber(ARGV[1])

if used + pages > credits then
    return {0, credits, used}
end

used = redis.call("HINCRBY", KEYS[1], "pages_used", pages)
redis.call("HSET", KEYS[1], "pages_remaining", credits - used)
return {1, credits, used}
`)

// Set creates or replaces the record for an identity.
func (s *RedisStore) Set(ctx context.Context, rec Record) error {
	err := s.client.HSet(ctx, s.key(rec.UserEmail),
		"page_credits", rec.PageCredits,
		"pages_used", rec.PagesUsed,
		"pages_remaining", rec.Remaining(),
	).Err()
	if err != nil {
		return fmt.Errorf("ledger/redis: set: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, userEmail string) (Record, error) {
	vals, err := s.client.HMGet(ctx, s.key(userEmail), "page_credits", "pages_used").Result()
	if err != nil {
		return Record{}, fmt.Errorf("ledger/redis: get: %w", err)
	}
	if len(vals) != 2 || vals[0] == nil {
		return Record{}, ErrRecordNotFound
	}
	credits, err := toInt(vals[0])
	if err != nil {
		return Record{}, fmt.Errorf("ledger/redis: page_credits: %w", err)
	}
	used := 0
	if vals[1] != nil {
		if used, err = toInt(vals[1]); err != nil {
			return Record{}, fmt.Errorf("ledger/redis: pages_used: %w", err)
		}
	}
	return Record{UserEmail: userEmail, PageCredits: credits, PagesUsed: used}, nil
}

func (s *RedisStore) Consume(ctx context.Context, userEmail string, pages int) (Record, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{s.key(userEmail)}, pages).Int64Slice()
	if err != nil {
		return Record{}, fmt.Errorf("ledger/redis: consume: %w", err)
	}
	if len(res) != 3 {
		return Record{}, errors.New("ledger/redis: unexpected script response")
	}
	rec := Record{UserEmail: userEmail, PageCredits: int(res[1]), PagesUsed: int(res[2])}
	switch res[0] {
	case 1:
		return rec, nil
	case 0:
		return rec, ErrInsufficientCredit
	default:
		return Record{}, ErrRecordNotFound
	}
}

func toInt(v interface{}) (int, error) {
	switch val := v.(type) {
	case string:
		return strconv.Atoi(val)
	case int64:
		return int(val), nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
