// Package cache holds the latest observed price per symbol for cheap
// point-in-time reads that skip the tick buffer entirely.
package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"pairflow-go/internal/market"
)

// LatestPrices stores and serves the most recent tick per symbol.
type LatestPrices interface {
	Set(ctx context.Context, tick market.Tick) error
	Get(ctx context.Context, symbol string) (market.Tick, bool, error)
	Symbols(ctx context.Context) ([]string, error)
	Close() error
}

// Memory is the in-process fallback used when no Redis address is configured.
// Entries older than the TTL are treated as absent.
type Memory struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[string]memoryEntry
}

type memoryEntry struct {
	tick     market.Tick
	storedAt time.Time
}

// NewMemory builds an in-memory cache. A non-positive TTL disables expiry.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, m: make(map[string]memoryEntry)}
}

func (c *Memory) Set(_ context.Context, tick market.Tick) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[tick.Symbol] = memoryEntry{tick: tick, storedAt: time.Now()}
	return nil
}

func (c *Memory) Get(_ context.Context, symbol string) (market.Tick, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.m[symbol]
	if !ok || c.expired(entry) {
		return market.Tick{}, false, nil
	}
	return entry.tick, true, nil
}

func (c *Memory) Symbols(_ context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.m))
	for symbol, entry := range c.m {
		if !c.expired(entry) {
			out = append(out, symbol)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (c *Memory) Close() error { return nil }

func (c *Memory) expired(entry memoryEntry) bool {
	return c.ttl > 0 && time.Since(entry.storedAt) > c.ttl
}
