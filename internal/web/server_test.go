package web

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pairflow-go/internal/analytics"
	"pairflow-go/internal/cache"
	"pairflow-go/internal/market"
	"pairflow-go/internal/store"
)

var barBase = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testServer() (*Server, *store.BarTable, *cache.Memory) {
	table := store.NewBarTable()
	prices := cache.NewMemory(0)
	srv := NewServer(
		store.NewTickBuffer(100),
		table,
		analytics.NewAnalyzer(analytics.DefaultWindow, zerolog.Nop()),
		prices,
		market.DefaultTimeframes(),
		NewHub(zerolog.Nop()),
		zerolog.Nop(),
	)
	return srv, table, prices
}

func seedBars(table *store.BarTable, symbol string, closes []float64) {
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{
			Symbol:    symbol,
			Timeframe: "1m",
			Ts:        barBase.Add(time.Duration(i) * time.Minute),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    10,
		}
	}
	table.Replace(symbol, "1m", bars)
}

func getJSON(t *testing.T, srv *Server, path string, into any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if into != nil && (rec.Code == http.StatusOK || rec.Code >= 400) {
		if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
			t.Fatalf("decode %s: %v (body %s)", path, err, rec.Body.String())
		}
	}
	return rec.Code
}

func TestHealth(t *testing.T) {
	srv, _, _ := testServer()
	var body map[string]string
	if code := getJSON(t, srv, "/health", &body); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestOHLCVUnknownTimeframe(t *testing.T) {
	srv, _, _ := testServer()
	var body map[string]string
	if code := getJSON(t, srv, "/api/ohlcv/BTCUSDT/7h", &body); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown timeframe, got %d", code)
	}
	if body["error"] == "" {
		t.Fatal("expected an error message")
	}
}

func TestOHLCVDropsNonFiniteRows(t *testing.T) {
	srv, table, _ := testServer()
	bars := []market.Bar{
		{Symbol: "BTCUSDT", Timeframe: "1m", Ts: barBase, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 3},
		{Symbol: "BTCUSDT", Timeframe: "1m", Ts: barBase.Add(time.Minute), Open: math.NaN(), High: 2, Low: 1, Close: 1.5, Volume: 3},
		{Symbol: "BTCUSDT", Timeframe: "1m", Ts: barBase.Add(2 * time.Minute), Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 4},
	}
	table.Replace("BTCUSDT", "1m", bars)

	var body struct {
		Bars []market.Bar `json:"bars"`
	}
	if code := getJSON(t, srv, "/api/ohlcv/BTCUSDT/1m", &body); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if len(body.Bars) != 2 {
		t.Fatalf("expected NaN row dropped, got %d bars", len(body.Bars))
	}
}

func TestOHLCVEmptiesBelowTwoRows(t *testing.T) {
	srv, table, _ := testServer()
	table.Replace("BTCUSDT", "1m", []market.Bar{
		{Symbol: "BTCUSDT", Timeframe: "1m", Ts: barBase, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 3},
	})

	var body struct {
		Bars []market.Bar `json:"bars"`
	}
	if code := getJSON(t, srv, "/api/ohlcv/BTCUSDT/1m", &body); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if len(body.Bars) != 0 {
		t.Fatalf("expected empty response below two plottable rows, got %d", len(body.Bars))
	}
}

func TestStatsNotFoundWithoutData(t *testing.T) {
	srv, _, _ := testServer()
	var body map[string]string
	if code := getJSON(t, srv, "/api/stats/BTCUSDT?timeframe=1m", &body); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestStatsWithData(t *testing.T) {
	srv, table, _ := testServer()
	seedBars(table, "BTCUSDT", []float64{100, 101, 102, 103})

	var body struct {
		Symbol string               `json:"symbol"`
		Stats  analytics.BasicStats `json:"stats"`
	}
	if code := getJSON(t, srv, "/api/stats/BTCUSDT?timeframe=1m", &body); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if body.Symbol != "BTCUSDT" || body.Stats.Last != 103 {
		t.Fatalf("unexpected payload %+v", body)
	}
}

func TestAnalyzeInsufficientDataIsOK(t *testing.T) {
	srv, table, _ := testServer()
	seedBars(table, "BTCUSDT", []float64{100, 101})
	seedBars(table, "ETHUSDT", []float64{50, 51})

	var body map[string]any
	if code := getJSON(t, srv, "/api/analyze/BTCUSDT/ETHUSDT?timeframe=1m", &body); code != http.StatusOK {
		t.Fatalf("insufficient overlap must stay a 200, got %d", code)
	}
	msg, ok := body["error"].(string)
	if !ok || !strings.Contains(msg, "insufficient aligned data") {
		t.Fatalf("unexpected payload %v", body)
	}
}

func TestAnalyzeSuccess(t *testing.T) {
	srv, table, _ := testServer()
	c1 := make([]float64, 40)
	c2 := make([]float64, 40)
	for i := range c1 {
		c1[i] = 100 + float64(i)*0.5 + math.Sin(float64(i))
		c2[i] = 50 + float64(i)*0.25 + 0.5*math.Cos(float64(i))
	}
	seedBars(table, "BTCUSDT", c1)
	seedBars(table, "ETHUSDT", c2)

	var body map[string]any
	if code := getJSON(t, srv, "/api/analyze/BTCUSDT/ETHUSDT?timeframe=1m&window=20", &body); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if _, hasErr := body["error"]; hasErr {
		t.Fatalf("unexpected error payload: %v", body)
	}
	if body["symbol1"] != "BTCUSDT" {
		t.Fatalf("unexpected payload %v", body)
	}
	if _, ok := body["hedge_ratio"].(float64); !ok {
		t.Fatalf("expected numeric hedge_ratio, got %v", body["hedge_ratio"])
	}
}

func TestAnalyzeRejectsBadWindow(t *testing.T) {
	srv, _, _ := testServer()
	var body map[string]string
	if code := getJSON(t, srv, "/api/analyze/A/B?timeframe=1m&window=1", &body); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for window below 2, got %d", code)
	}
}

func TestPriceEndpoint(t *testing.T) {
	srv, _, prices := testServer()

	var miss map[string]string
	if code := getJSON(t, srv, "/api/prices/BTCUSDT", &miss); code != http.StatusNotFound {
		t.Fatalf("expected 404 before any tick, got %d", code)
	}

	prices.Set(context.Background(), market.Tick{Symbol: "BTCUSDT", Price: 50000, Ts: barBase})
	var tick market.Tick
	if code := getJSON(t, srv, "/api/prices/BTCUSDT", &tick); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if tick.Price != 50000 {
		t.Fatalf("unexpected tick %+v", tick)
	}
}

func TestStreamDeliversBroadcasts(t *testing.T) {
	srv, _, _ := testServer()
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for srv.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	srv.hub.Broadcast(market.Tick{Symbol: "BTCUSDT", Price: 123.5, Ts: barBase})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var tick market.Tick
	if err := conn.ReadJSON(&tick); err != nil {
		t.Fatalf("read: %v", err)
	}
	if tick.Symbol != "BTCUSDT" || tick.Price != 123.5 {
		t.Fatalf("unexpected tick %+v", tick)
	}
}
