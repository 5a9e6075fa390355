package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"pairflow-go/internal/market"
)

const latestKeyPrefix = "latest:"

// Redis keeps the latest price per symbol under latest:<SYMBOL> with a TTL, so
// a restart or a stalled feed never serves stale quotes forever.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewRedis connects to Redis and verifies the connection before returning.
func NewRedis(addr, password string, ttl time.Duration, log zerolog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}

	return &Redis{client: client, ttl: ttl, log: log}, nil
}

func (c *Redis) Set(ctx context.Context, tick market.Tick) error {
	data, err := json.Marshal(tick)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, latestKeyPrefix+tick.Symbol, data, c.ttl).Err()
}

func (c *Redis) Get(ctx context.Context, symbol string) (market.Tick, bool, error) {
	data, err := c.client.Get(ctx, latestKeyPrefix+symbol).Result()
	if err != nil {
		if err == redis.Nil {
			return market.Tick{}, false, nil
		}
		return market.Tick{}, false, err
	}
	var tick market.Tick
	if err := json.Unmarshal([]byte(data), &tick); err != nil {
		return market.Tick{}, false, err
	}
	return tick, true, nil
}

func (c *Redis) Symbols(ctx context.Context) ([]string, error) {
	keys, err := c.client.Keys(ctx, latestKeyPrefix+"*").Result()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, key[len(latestKeyPrefix):])
	}
	return out, nil
}

func (c *Redis) Close() error {
	return c.client.Close()
}
