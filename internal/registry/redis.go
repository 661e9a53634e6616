package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash that holds one field per slave.
const DefaultRedisKey = "rsocx:slaves"

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// Redis mirrors membership into a Redis hash keyed by slave address.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis connects to Redis and verifies the connection with PING.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	key := opts.Key
	if key == "" {
		key = DefaultRedisKey
	}

	rdb := redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Redis{client: rdb, key: key}, nil
}

var _ Registry = (*Redis)(nil)

func (r *Redis) Join(ctx context.Context, m Member) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal member: %w", err)
	}
	if err := r.client.HSet(ctx, r.key, m.Addr, data).Err(); err != nil {
		return fmt.Errorf("redis hset failed: %w", err)
	}
	return nil
}

func (r *Redis) Leave(ctx context.Context, addr string) error {
	if err := r.client.HDel(ctx, r.key, addr).Err(); err != nil {
		return fmt.Errorf("redis hdel failed: %w", err)
	}
	return nil
}

func (r *Redis) Members(ctx context.Context) ([]Member, error) {
	vals, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}

	out := make([]Member, 0, len(vals))
	for field, val := range vals {
		var m Member
		if err := json.Unmarshal([]byte(val), &m); err != nil {
			return nil, fmt.Errorf("unmarshal member %s: %w", field, err)
		}
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b Member) int { return strings.Compare(a.Addr, b.Addr) })
	return out, nil
}

// Reset removes every member, for a master starting with no slaves.
func (r *Redis) Reset(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
