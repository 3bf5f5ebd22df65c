package budget

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// mgetChunk bounds the number of keys per MGET round trip.
const mgetChunk = 500

// RedisStore reads remaining budgets from the platform's Redis.
type RedisStore struct {
	client redis.UniversalClient
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore dials lazily; connectivity is checked on each Remaining call.
func NewRedisStore(opts RedisOptions) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})}
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Remaining(ctx context.Context, keys []string) (map[string]int64, error) {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: ping: %v", ErrStoreUnavailable, err)
	}

	out := make(map[string]int64, len(keys))
	for start := 0; start < len(keys); start += mgetChunk {
		end := min(start+mgetChunk, len(keys))
		batch := keys[start:end]

		vals, err := s.client.MGet(ctx, batch...).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: mget: %v", ErrStoreUnavailable, err)
		}
		for i, raw := range vals {
			if raw == nil {
				continue
			}
			n, err := parseBalance(raw)
			if err != nil {
				return nil, fmt.Errorf("key %s: %w", batch[i], err)
			}
			out[batch[i]] = n
		}
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func parseBalance(raw interface{}) (int64, error) {
	str, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected value type %T", raw)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(str), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed balance %q", str)
	}
	return n, nil
}
