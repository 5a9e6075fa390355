// Package market standardizes payloads shared between the ingestion,
// resampling, and analytics layers.
package market

import "time"

// Tick models a single normalized trade event from an upstream feed.
// Ticks are immutable once constructed.
type Tick struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Qty    float64   `json:"quantity"`
	Ts     time.Time `json:"timestamp"`
}

// Bar is an OHLCV aggregate over one fixed time bucket. Ts is the bucket
// start.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Ts        time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Timeframe names a fixed-width resampling interval.
type Timeframe struct {
	Name    string
	Seconds int
}

// Duration returns the bucket width.
func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tf.Seconds) * time.Second
}

// Bucket returns the start of the bucket containing ts. Buckets are aligned
// to absolute epoch boundaries, so every tick with the same truncated
// timestamp lands in the same bar regardless of when it arrived.
func (tf Timeframe) Bucket(ts time.Time) time.Time {
	return ts.Truncate(tf.Duration())
}

// Timeframes is the ordered registry of configured intervals.
type Timeframes []Timeframe

// Lookup resolves a timeframe by name. The second return is false for
// unknown names; callers at the request boundary reject those before any
// core code runs.
func (tfs Timeframes) Lookup(name string) (Timeframe, bool) {
	for _, tf := range tfs {
		if tf.Name == name {
			return tf, true
		}
	}
	return Timeframe{}, false
}

// DefaultTimeframes mirrors the dashboard's stock configuration.
func DefaultTimeframes() Timeframes {
	return Timeframes{
		{Name: "1s", Seconds: 1},
		{Name: "1m", Seconds: 60},
		{Name: "5m", Seconds: 300},
	}
}
