// Package exchange hosts connectors for upstream tick sources.
package exchange

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pairflow-go/internal/market"
	"pairflow-go/internal/metrics"
)

const (
	// ProviderStub emits deterministic synthetic ticks (useful for tests/offline work).
	ProviderStub = "stub"
	// ProviderBinance streams live trades from Binance futures public websockets.
	ProviderBinance = "binance"
)

const (
	defaultBaseURL      = "wss://fstream.binance.com/ws"
	defaultBackoff      = 2 * time.Second
	defaultStubInterval = 100 * time.Millisecond
)

// Feed represents a pluggable market data stream implementation. Run opens
// one independent connection per symbol and pushes normalized ticks onto a
// channel until the context is canceled.
type Feed struct {
	provider     string
	symbols      []string
	log          zerolog.Logger
	baseURL      string
	backoff      time.Duration
	stubInterval time.Duration
}

// Option configures Feed construction parameters.
type Option func(*Feed)

// WithBaseURL overrides the websocket endpoint (primarily for tests).
func WithBaseURL(url string) Option {
	return func(f *Feed) {
		if url != "" {
			f.baseURL = strings.TrimSuffix(url, "/")
		}
	}
}

// WithBackoff overrides the fixed reconnect delay.
func WithBackoff(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.backoff = d
		}
	}
}

// WithStubInterval overrides the synthetic tick cadence of the stub provider.
func WithStubInterval(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.stubInterval = d
		}
	}
}

// NewFeed constructs a feed backed by the requested provider. Symbols are
// deduplicated and sorted for determinism.
func NewFeed(provider string, symbols []string, log zerolog.Logger, opts ...Option) *Feed {
	if provider == "" {
		provider = ProviderStub
	}
	f := &Feed{
		provider:     strings.ToLower(provider),
		log:          log,
		baseURL:      defaultBaseURL,
		backoff:      defaultBackoff,
		stubInterval: defaultStubInterval,
	}
	f.setSymbols(symbols)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Feed) setSymbols(symbols []string) {
	unique := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		sym = strings.TrimSpace(strings.ToUpper(sym))
		if sym == "" {
			continue
		}
		unique[sym] = struct{}{}
	}
	f.symbols = f.symbols[:0]
	for sym := range unique {
		f.symbols = append(f.symbols, sym)
	}
	sort.Strings(f.symbols)
}

// Symbols returns the tracked symbol list.
func (f *Feed) Symbols() []string {
	out := make([]string, len(f.symbols))
	copy(out, f.symbols)
	return out
}

// Run pushes ticks onto the provided channel until the context is canceled.
// Each symbol gets its own connection loop; a failure on one stream never
// stalls the others.
func (f *Feed) Run(ctx context.Context, out chan<- market.Tick) error {
	switch f.provider {
	case ProviderBinance:
		return f.runBinance(ctx, out)
	default:
		return f.runStub(ctx, out)
	}
}

func (f *Feed) runBinance(ctx context.Context, out chan<- market.Tick) error {
	var wg sync.WaitGroup
	for _, sym := range f.symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			f.runSymbol(ctx, symbol, out)
		}(sym)
	}
	wg.Wait()
	return ctx.Err()
}

// runStub emits a deterministic upward price walk per symbol.
func (f *Feed) runStub(ctx context.Context, out chan<- market.Tick) error {
	ticker := time.NewTicker(f.stubInterval)
	defer ticker.Stop()

	prices := make(map[string]float64, len(f.symbols))
	for i, sym := range f.symbols {
		prices[sym] = 100.0 * float64(i+1)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ts := <-ticker.C:
			for _, sym := range f.symbols {
				prices[sym] += 0.1
				tick := market.Tick{Symbol: sym, Price: prices[sym], Qty: 1, Ts: ts}
				select {
				case out <- tick:
					metrics.TicksTotal.WithLabelValues(sym).Inc()
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}
