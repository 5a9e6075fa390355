package store

import (
	"sync"

	"pairflow-go/internal/market"
)

// BarTable holds the current resampled bars per (symbol, timeframe) pair.
// Each resampling pass replaces a pair's sequence wholesale, so readers only
// ever observe a complete, internally consistent bar series.
type BarTable struct {
	mu   sync.RWMutex
	bars map[tableKey][]market.Bar
}

type tableKey struct {
	symbol    string
	timeframe string
}

// NewBarTable creates an empty table.
func NewBarTable() *BarTable {
	return &BarTable{bars: make(map[tableKey][]market.Bar)}
}

// Replace swaps in a new bar sequence for (symbol, timeframe).
func (t *BarTable) Replace(symbol, timeframe string, bars []market.Bar) {
	t.mu.Lock()
	t.bars[tableKey{symbol, timeframe}] = bars
	t.mu.Unlock()
}

// Bars returns up to the last limit bars for (symbol, timeframe), oldest
// first. limit <= 0 returns the whole sequence. Unknown pairs yield an empty
// slice.
func (t *BarTable) Bars(symbol, timeframe string, limit int) []market.Bar {
	t.mu.RLock()
	defer t.mu.RUnlock()

	seq := t.bars[tableKey{symbol, timeframe}]
	if len(seq) == 0 {
		return nil
	}
	if limit > 0 && limit < len(seq) {
		seq = seq[len(seq)-limit:]
	}
	out := make([]market.Bar, len(seq))
	copy(out, seq)
	return out
}
