package store

import (
	"path/filepath"
	"testing"
	"time"

	"pairflow-go/internal/market"
)

func openTestStore(t *testing.T) *BarStore {
	t.Helper()
	s, err := NewBarStore(filepath.Join(t.TempDir(), "bars.db"))
	if err != nil {
		t.Fatalf("open bar store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBarStoreRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	bar := market.Bar{
		Symbol: "BTCUSDT", Timeframe: "1m", Ts: ts,
		Open: 100.5, High: 101.25, Low: 99.75, Close: 100.875, Volume: 42.5,
	}
	if err := s.UpsertBars([]market.Bar{bar}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.QueryBars("BTCUSDT", "1m", 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 bar, got %d", len(got))
	}
	b := got[0]
	if !b.Ts.Equal(ts) {
		t.Fatalf("timestamp mismatch: %s vs %s", b.Ts, ts)
	}
	if b.Open != bar.Open || b.High != bar.High || b.Low != bar.Low || b.Close != bar.Close || b.Volume != bar.Volume {
		t.Fatalf("round-trip mismatch: %+v vs %+v", b, bar)
	}
}

func TestBarStoreUpsertOverwrites(t *testing.T) {
	s := openTestStore(t)
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first := market.Bar{Symbol: "ETHUSDT", Timeframe: "1s", Ts: ts, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10}
	second := first
	second.Close = 1.75
	second.Volume = 12

	if err := s.UpsertBars([]market.Bar{first}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := s.UpsertBars([]market.Bar{second}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := s.QueryBars("ETHUSDT", "1s", 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 bar after re-upsert, got %d", len(got))
	}
	if got[0].Close != 1.75 || got[0].Volume != 12 {
		t.Fatalf("expected overwrite, got %+v", got[0])
	}
}

func TestBarStoreQueryOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	var bars []market.Bar
	for i := 0; i < 5; i++ {
		bars = append(bars, market.Bar{
			Symbol: "BTCUSDT", Timeframe: "1m", Ts: base.Add(time.Duration(i) * time.Minute),
			Open: float64(i), High: float64(i), Low: float64(i), Close: float64(i), Volume: 1,
		})
	}
	if err := s.UpsertBars(bars); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.QueryBars("BTCUSDT", "1m", 3)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(got))
	}
	if got[0].Close != 2 || got[2].Close != 4 {
		t.Fatalf("expected the newest 3 bars ascending, got %+v", got)
	}
}
