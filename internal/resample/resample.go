// Package resample converts buffered ticks into fixed-interval OHLCV bars.
package resample

import (
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"pairflow-go/internal/market"
	"pairflow-go/internal/metrics"
	"pairflow-go/internal/store"
)

const (
	defaultRecentLimit = 1000
	defaultPersistTail = 100
)

// Persister mirrors a bar slice to durable storage.
type Persister interface {
	UpsertBars(bars []market.Bar) error
}

// Resampler periodically recomputes OHLCV bars from the tick buffer for
// every known symbol and configured timeframe. Each pass is a pure function
// of the buffer snapshot it reads, so re-running over unchanged ticks leaves
// the bar table unchanged.
type Resampler struct {
	buffer      *store.TickBuffer
	table       *store.BarTable
	persister   Persister
	timeframes  market.Timeframes
	recentLimit int
	persistTail int
	log         zerolog.Logger
}

// Option configures Resampler construction parameters.
type Option func(*Resampler)

// WithRecentLimit bounds how many buffered ticks a pass reads per symbol.
func WithRecentLimit(n int) Option {
	return func(r *Resampler) {
		if n > 0 {
			r.recentLimit = n
		}
	}
}

// WithPersistTail bounds how many of the newest bars are mirrored to storage.
func WithPersistTail(n int) Option {
	return func(r *Resampler) {
		if n > 0 {
			r.persistTail = n
		}
	}
}

// New wires a resampler over the shared buffer and bar table. persister may
// be nil to run memory-only.
func New(buffer *store.TickBuffer, table *store.BarTable, persister Persister, timeframes market.Timeframes, log zerolog.Logger, opts ...Option) *Resampler {
	r := &Resampler{
		buffer:      buffer,
		table:       table,
		persister:   persister,
		timeframes:  timeframes,
		recentLimit: defaultRecentLimit,
		persistTail: defaultPersistTail,
		log:         log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resample recomputes the bar sequence for (symbol, timeframe) from the
// current buffer contents and swaps it into the in-memory table. The second
// return is false when the symbol has fewer than 2 buffered ticks — a
// legitimate empty state for a cold symbol, not an error. Buckets without
// ticks are never synthesized; consumers handle timestamp gaps.
func (r *Resampler) Resample(symbol string, tf market.Timeframe) ([]market.Bar, bool) {
	ticks := r.buffer.Recent(symbol, r.recentLimit)
	if len(ticks) < 2 {
		return nil, false
	}

	aggs := make(map[time.Time]*barAgg)
	for _, tk := range ticks {
		bucket := tf.Bucket(tk.Ts)
		agg := aggs[bucket]
		if agg == nil {
			aggs[bucket] = &barAgg{
				open: tk.Price, high: tk.Price, low: tk.Price,
				close: tk.Price, volume: tk.Qty,
			}
			continue
		}
		if tk.Price > agg.high {
			agg.high = tk.Price
		}
		if tk.Price < agg.low {
			agg.low = tk.Price
		}
		agg.close = tk.Price
		agg.volume += tk.Qty
	}

	buckets := make([]time.Time, 0, len(aggs))
	for bucket := range aggs {
		buckets = append(buckets, bucket)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Before(buckets[j]) })

	bars := make([]market.Bar, 0, len(buckets))
	for _, bucket := range buckets {
		agg := aggs[bucket]
		bars = append(bars, market.Bar{
			Symbol:    symbol,
			Timeframe: tf.Name,
			Ts:        bucket,
			Open:      agg.open,
			High:      agg.high,
			Low:       agg.low,
			Close:     agg.close,
			Volume:    agg.volume,
		})
	}

	r.table.Replace(symbol, tf.Name, bars)
	metrics.ResamplesTotal.WithLabelValues(symbol, tf.Name).Inc()

	r.persist(symbol, tf, bars)
	return bars, true
}

type barAgg struct {
	open, high, low, close, volume float64
}

// persist mirrors the newest bars to durable storage. Failures are logged
// and counted but never affect the in-memory result.
func (r *Resampler) persist(symbol string, tf market.Timeframe, bars []market.Bar) {
	if r.persister == nil || len(bars) == 0 {
		return
	}
	tail := bars
	if len(tail) > r.persistTail {
		tail = tail[len(tail)-r.persistTail:]
	}
	if err := r.persister.UpsertBars(tail); err != nil {
		metrics.PersistErrorsTotal.Inc()
		r.log.Error().Err(err).Str("symbol", symbol).Str("timeframe", tf.Name).Msg("persist bars failed")
	}
}

// Pass runs one resampling sweep over every known symbol and timeframe.
func (r *Resampler) Pass() {
	for _, symbol := range r.buffer.Symbols() {
		for _, tf := range r.timeframes {
			r.Resample(symbol, tf)
		}
	}
}

// Schedule registers the periodic pass on a seconds-capable cron instance.
func (r *Resampler) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, r.Pass)
}
