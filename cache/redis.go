package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/warp/hoa-ledger/generic"
)

const defaultKeyPrefix = "hoa:aggregates:"

// Redis stores aggregates in one hash per unit, one field per period.
// The whole hash expires TTL after its last write.
type Redis struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// RedisOptions holds Redis connection settings.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedis connects and pings the server.
func NewRedis(opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisWithClient(client, "", opts.TTL), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *Redis {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &Redis{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (r *Redis) key(unitID generic.UnitID) string {
	return r.keyPrefix + string(unitID)
}

func (r *Redis) Put(ctx context.Context, unitID generic.UnitID, aggs []generic.PeriodAggregate) error {
	if len(aggs) == 0 {
		return nil
	}
	fields := make(map[string]any, len(aggs))
	for _, agg := range aggs {
		data, err := json.Marshal(agg)
		if err != nil {
			return fmt.Errorf("encode aggregate %s: %w", agg.Period, err)
		}
		fields[agg.Period.String()] = data
	}

	key := r.key(unitID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write aggregates: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, unitID generic.UnitID) ([]generic.PeriodAggregate, error) {
	fields, err := r.client.HGetAll(ctx, r.key(unitID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read aggregates: %w", err)
	}
	return decodeFields(fields)
}

func decodeFields(fields map[string]string) ([]generic.PeriodAggregate, error) {
	out := make([]generic.PeriodAggregate, 0, len(fields))
	for field, raw := range fields {
		var agg generic.PeriodAggregate
		if err := json.Unmarshal([]byte(raw), &agg); err != nil {
			return nil, fmt.Errorf("decode aggregate %s: %w", field, err)
		}
		out = append(out, agg)
	}
	sortByPeriod(out)
	return out, nil
}

// Clear deletes every key under the prefix.
func (r *Redis) Clear(ctx context.Context) error {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan aggregate keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete aggregates: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (r *Redis) Close() error {
	return r.client.Close()
}

var _ Backend = (*Redis)(nil)
