package exchange

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"pairflow-go/internal/market"
	"pairflow-go/internal/metrics"
)

type binanceTrade struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

// runSymbol maintains one trade stream for a single symbol, reconnecting
// with a fixed backoff forever. Transport failures are logged, never fatal.
func (f *Feed) runSymbol(ctx context.Context, symbol string, out chan<- market.Tick) {
	url := f.baseURL + "/" + strings.ToLower(symbol) + "@trade"
	for {
		if ctx.Err() != nil {
			return
		}
		if err := f.consumeTradeStream(ctx, url, symbol, out); err != nil {
			if ctx.Err() != nil {
				return
			}
			f.log.Warn().Err(err).Str("symbol", symbol).Msg("trade stream disconnected, retrying")
			select {
			case <-time.After(f.backoff):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (f *Feed) consumeTradeStream(ctx context.Context, url, symbol string, out chan<- market.Tick) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	f.log.Info().Str("provider", ProviderBinance).Str("symbol", symbol).Msg("connected trade stream")

	conn.SetReadLimit(1 << 20)

	// Unblock the read loop when the context is canceled.
	closeCtx, closeCancel := context.WithCancel(ctx)
	defer closeCancel()
	go func() {
		<-closeCtx.Done()
		conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		tick, ok := f.parseTrade(message, symbol)
		if !ok {
			continue
		}

		select {
		case out <- tick:
			metrics.TicksTotal.WithLabelValues(tick.Symbol).Inc()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// parseTrade normalizes a raw feed message. Malformed or non-trade payloads
// report ok=false and are skipped by the caller.
func (f *Feed) parseTrade(message []byte, fallbackSymbol string) (market.Tick, bool) {
	var trade binanceTrade
	if err := json.Unmarshal(message, &trade); err != nil {
		f.log.Warn().Err(err).Msg("failed to decode feed message")
		return market.Tick{}, false
	}
	if trade.EventType != "trade" {
		return market.Tick{}, false
	}
	px, err := strconv.ParseFloat(trade.Price, 64)
	if err != nil {
		f.log.Warn().Err(err).Msg("invalid price in trade message")
		return market.Tick{}, false
	}
	qty, err := strconv.ParseFloat(trade.Quantity, 64)
	if err != nil {
		f.log.Warn().Err(err).Msg("invalid quantity in trade message")
		return market.Tick{}, false
	}
	symbol := strings.ToUpper(trade.Symbol)
	if symbol == "" {
		symbol = fallbackSymbol
	}
	return market.Tick{
		Symbol: symbol,
		Price:  px,
		Qty:    qty,
		Ts:     time.UnixMilli(trade.TradeTime),
	}, true
}
