// Package store owns the in-memory and durable market data stores.
package store

import (
	"sort"
	"sync"

	"pairflow-go/internal/market"
)

// DefaultBufferCapacity bounds the per-symbol tick history kept in memory.
const DefaultBufferCapacity = 10000

// TickBuffer keeps the most recent ticks per symbol in arrival order.
// Appends evict from the head once a symbol reaches capacity, so the buffer
// always holds the newest window of trades. Reads return copied snapshots.
type TickBuffer struct {
	mu       sync.Mutex
	capacity int
	rings    map[string]*tickRing
}

type tickRing struct {
	ticks []market.Tick
	head  int
	size  int
}

// NewTickBuffer creates a buffer with the given per-symbol capacity.
func NewTickBuffer(capacity int) *TickBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &TickBuffer{
		capacity: capacity,
		rings:    make(map[string]*tickRing),
	}
}

// Add appends a tick to its symbol's sequence, evicting the oldest entry
// once the symbol is at capacity.
func (b *TickBuffer) Add(tk market.Tick) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ring := b.rings[tk.Symbol]
	if ring == nil {
		ring = &tickRing{ticks: make([]market.Tick, b.capacity)}
		b.rings[tk.Symbol] = ring
	}
	if ring.size < b.capacity {
		ring.ticks[(ring.head+ring.size)%b.capacity] = tk
		ring.size++
		return
	}
	ring.ticks[ring.head] = tk
	ring.head = (ring.head + 1) % b.capacity
}

// Recent returns up to the last limit ticks for symbol, oldest first.
// Unknown symbols yield an empty slice, never an error. limit <= 0 means
// the whole buffered window.
func (b *TickBuffer) Recent(symbol string, limit int) []market.Tick {
	b.mu.Lock()
	defer b.mu.Unlock()

	ring := b.rings[symbol]
	if ring == nil || ring.size == 0 {
		return nil
	}
	n := ring.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]market.Tick, n)
	start := ring.head + ring.size - n
	for i := 0; i < n; i++ {
		out[i] = ring.ticks[(start+i)%b.capacity]
	}
	return out
}

// Len reports how many ticks are buffered for symbol.
func (b *TickBuffer) Len(symbol string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	ring := b.rings[symbol]
	if ring == nil {
		return 0
	}
	return ring.size
}

// Symbols lists every symbol that has received at least one tick, sorted for
// determinism.
func (b *TickBuffer) Symbols() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.rings))
	for sym, ring := range b.rings {
		if ring.size > 0 {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}
