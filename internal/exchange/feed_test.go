package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pairflow-go/internal/market"
)

func TestFeedRunEmitsTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := NewFeed(ProviderStub, []string{"BTCUSDT"}, zerolog.Nop(), WithStubInterval(10*time.Millisecond))
	ticks := make(chan market.Tick, 1)

	go func() {
		_ = feed.Run(ctx, ticks)
	}()

	select {
	case tk := <-ticks:
		if tk.Symbol != "BTCUSDT" {
			t.Fatalf("unexpected symbol %s", tk.Symbol)
		}
		cancel()
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tick")
	}
}

func TestParseTradeSkipsMalformed(t *testing.T) {
	feed := NewFeed(ProviderBinance, []string{"BTCUSDT"}, zerolog.Nop())

	cases := []struct {
		name    string
		message string
		ok      bool
	}{
		{"trade", `{"e":"trade","s":"BTCUSDT","p":"50000.5","q":"0.25","T":1700000000000}`, true},
		{"non-trade event", `{"e":"aggTrade","s":"BTCUSDT","p":"50000.5","q":"0.25","T":1700000000000}`, false},
		{"bad price", `{"e":"trade","s":"BTCUSDT","p":"oops","q":"0.25","T":1700000000000}`, false},
		{"bad quantity", `{"e":"trade","s":"BTCUSDT","p":"50000.5","q":"","T":1700000000000}`, false},
		{"not json", `{{{`, false},
	}
	for _, tc := range cases {
		tick, ok := feed.parseTrade([]byte(tc.message), "BTCUSDT")
		if ok != tc.ok {
			t.Fatalf("%s: expected ok=%v, got %v", tc.name, tc.ok, ok)
		}
		if !ok {
			continue
		}
		if tick.Price != 50000.5 || tick.Qty != 0.25 {
			t.Fatalf("%s: unexpected tick %+v", tc.name, tick)
		}
		if tick.Ts.UnixMilli() != 1700000000000 {
			t.Fatalf("%s: expected millisecond timestamp preserved, got %s", tc.name, tick.Ts)
		}
	}
}

func TestRunBinanceEmitsAndReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	conns := make(chan struct{}, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- struct{}{}
		msgs := []string{
			`{"e":"trade","s":"BTCUSDT","p":"100.5","q":"1","T":1700000000000}`,
			`{"e":"depthUpdate"}`,
			`{"e":"trade","s":"BTCUSDT","p":"101.5","q":"2","T":1700000001000}`,
		}
		for _, m := range msgs {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				break
			}
		}
		conn.Close()
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := NewFeed(ProviderBinance, []string{"btcusdt"}, zerolog.Nop(),
		WithBaseURL(wsURL), WithBackoff(20*time.Millisecond))

	ticks := make(chan market.Tick, 16)
	done := make(chan struct{})
	go func() {
		_ = feed.Run(ctx, ticks)
		close(done)
	}()

	var got []market.Tick
	deadline := time.After(3 * time.Second)
	for len(got) < 2 {
		select {
		case tk := <-ticks:
			got = append(got, tk)
		case <-deadline:
			t.Fatalf("timed out: got %d ticks", len(got))
		}
	}
	if got[0].Price != 100.5 || got[1].Price != 101.5 {
		t.Fatalf("unexpected tick prices: %+v", got)
	}

	// The server closes after each burst; the feed should dial again.
	<-conns
	select {
	case <-conns:
	case <-time.After(3 * time.Second):
		t.Fatal("feed did not reconnect after disconnect")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop after cancel")
	}
}
