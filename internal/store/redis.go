package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrBelowScript atomically increments a counter only while it is below
// the ceiling passed in ARGV[1]. Running as a Lua script ensures no other
// client can interleave between the read and the increment. Returns
// [count, applied] where count is the counter value after the operation.
var incrBelowScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count >= tonumber(ARGV[1]) then
    return {count, 0}
end
count = redis.call('INCR', KEYS[1])
return {count, 1}
`)

// Redis is a Redis-backed implementation of Store. Suitable for
// distributed deployments: all instances share one source of truth and
// counter increments are atomic at the server.
type Redis struct {
	client    *redis.Client
	prefix    string
	opTimeout time.Duration
}

// RedisConfig holds configuration for the Redis connection. Populate from
// your application's configuration; this package never reads environment
// variables directly.
type RedisConfig struct {
	// Addr is the Redis server address (e.g., "localhost:6379").
	Addr string

	// Password for Redis authentication (optional).
	Password string

	// DB is the Redis database number (default: 0).
	DB int

	// Prefix is prepended to every key. Leave empty to use the legacy
	// key layout where product hashes live at the bare product id.
	Prefix string

	// OpTimeout bounds each store call. Zero means 3s. A call that
	// exceeds it fails rather than hangs.
	OpTimeout time.Duration

	// PoolSize is the maximum number of connections (default: 10 * GOMAXPROCS).
	PoolSize int

	// DialTimeout is the timeout for establishing new connections (default: 5s).
	DialTimeout time.Duration
}

// NewRedis creates a Redis store with the given configuration. Validates
// the connection with a ping before returning.
func NewRedis(config RedisConfig) (*Redis, error) {
	if config.OpTimeout <= 0 {
		config.OpTimeout = 3 * time.Second
	}

	opts := &redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.DialTimeout > 0 {
		opts.DialTimeout = config.DialTimeout
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Redis{
		client:    client,
		prefix:    config.Prefix,
		opTimeout: config.OpTimeout,
	}, nil
}

// withTimeout bounds a single store call so a slow or partitioned server
// fails the request instead of hanging it.
func (r *Redis) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.opTimeout)
}

// HashSet upserts a field within the named hash.
func (r *Redis) HashSet(ctx context.Context, key, field, value string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.client.HSet(ctx, r.prefix+key, field, value).Err(); err != nil {
		return fmt.Errorf("redis hset failed: %w", err)
	}
	return nil
}

// HashGet reads a field from the named hash.
func (r *Redis) HashGet(ctx context.Context, key, field string) (string, bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	val, err := r.client.HGet(ctx, r.prefix+key, field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis hget failed: %w", err)
	}
	return val, true, nil
}

// SetAdd adds a member to the named set.
func (r *Redis) SetAdd(ctx context.Context, key, member string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.client.SAdd(ctx, r.prefix+key, member).Err(); err != nil {
		return fmt.Errorf("redis sadd failed: %w", err)
	}
	return nil
}

// SetPick returns an arbitrary member of the named set. SRANDMEMBER makes
// the non-determinism explicit rather than inheriting whatever iteration
// order SMEMBERS happens to produce.
func (r *Redis) SetPick(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	val, err := r.client.SRandMember(ctx, r.prefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis srandmember failed: %w", err)
	}
	return val, true, nil
}

// Incr atomically increments the named counter and returns the new value.
func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	val, err := r.client.Incr(ctx, r.prefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr failed: %w", err)
	}
	return val, nil
}

// IncrBelow atomically increments the named counter only while it is
// below ceiling, using a Lua script so concurrent callers cannot push the
// counter past the ceiling.
func (r *Redis) IncrBelow(ctx context.Context, key string, ceiling int64) (int64, bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := incrBelowScript.Run(ctx, r.client, []string{r.prefix + key}, ceiling).Slice()
	if err != nil {
		return 0, false, fmt.Errorf("redis incr-below failed: %w", err)
	}
	if len(result) != 2 {
		return 0, false, fmt.Errorf("unexpected result length: got %d, want 2", len(result))
	}

	count, ok := result[0].(int64)
	if !ok {
		return 0, false, fmt.Errorf("unexpected type for count: %T", result[0])
	}
	applied, ok := result[1].(int64)
	if !ok {
		return 0, false, fmt.Errorf("unexpected type for applied flag: %T", result[1])
	}

	return count, applied == 1, nil
}

// GetInt reads the named integer value.
func (r *Redis) GetInt(ctx context.Context, key string) (int64, bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	val, err := r.client.Get(ctx, r.prefix+key).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get failed: %w", err)
	}
	return val, true, nil
}

// SetInt writes the named integer value.
func (r *Redis) SetInt(ctx context.Context, key string, value int64) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Ping verifies the Redis server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close releases the Redis client connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
