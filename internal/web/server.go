// Package web serves the HTTP API, the live tick stream, and the metrics
// endpoint.
package web

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pairflow-go/internal/analytics"
	"pairflow-go/internal/cache"
	"pairflow-go/internal/market"
	"pairflow-go/internal/metrics"
	"pairflow-go/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Server exposes the dashboard API over HTTP.
type Server struct {
	buffer     *store.TickBuffer
	table      *store.BarTable
	analyzer   *analytics.Analyzer
	prices     cache.LatestPrices
	timeframes market.Timeframes
	hub        *Hub
	log        zerolog.Logger
}

// NewServer wires the API surface over the shared stores.
func NewServer(buffer *store.TickBuffer, table *store.BarTable, analyzer *analytics.Analyzer, prices cache.LatestPrices, timeframes market.Timeframes, hub *Hub, log zerolog.Logger) *Server {
	return &Server{
		buffer:     buffer,
		table:      table,
		analyzer:   analyzer,
		prices:     prices,
		timeframes: timeframes,
		hub:        hub,
		log:        log,
	}
}

// Router assembles the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Get("/api/symbols", s.handleSymbols)
	r.Get("/api/ohlcv/{symbol}/{timeframe}", s.handleOHLCV)
	r.Get("/api/analyze/{symbol1}/{symbol2}", s.handleAnalyze)
	r.Get("/api/stats/{symbol}", s.handleStats)
	r.Get("/api/prices/{symbol}", s.handlePrice)
	r.Get("/ws", s.handleStream)
	r.Handle("/metrics", metrics.Handler())
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	symbols := s.buffer.Symbols()
	if cached, err := s.prices.Symbols(r.Context()); err == nil {
		symbols = mergeSorted(symbols, cached)
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbols": symbols})
}

func (s *Server) handleOHLCV(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	tf, ok := s.timeframes.Lookup(chi.URLParam(r, "timeframe"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown timeframe")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	bars := plottableBars(s.table.Bars(symbol, tf.Name, limit))
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":    symbol,
		"timeframe": tf.Name,
		"bars":      bars,
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	symbol1 := strings.ToUpper(chi.URLParam(r, "symbol1"))
	symbol2 := strings.ToUpper(chi.URLParam(r, "symbol2"))

	tfName := r.URL.Query().Get("timeframe")
	if tfName == "" && len(s.timeframes) > 0 {
		tfName = s.timeframes[0].Name
	}
	tf, ok := s.timeframes.Lookup(tfName)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown timeframe")
		return
	}

	window := 0
	if raw := r.URL.Query().Get("window"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 2 {
			writeError(w, http.StatusBadRequest, "invalid window")
			return
		}
		window = n
	}

	prices1 := closeSeries(s.table.Bars(symbol1, tf.Name, 0))
	prices2 := closeSeries(s.table.Bars(symbol2, tf.Name, 0))

	result, err := s.analyzer.AnalyzePair(symbol1, symbol2, prices1, prices2, window)
	if err != nil {
		// Thin overlap is an expected state while the buffers warm up, so it
		// is reported inside a 200 payload the dashboard can render.
		writeJSON(w, http.StatusOK, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))

	tfName := r.URL.Query().Get("timeframe")
	if tfName == "" && len(s.timeframes) > 0 {
		tfName = s.timeframes[0].Name
	}
	tf, ok := s.timeframes.Lookup(tfName)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown timeframe")
		return
	}

	series := closeSeries(s.table.Bars(symbol, tf.Name, 0))
	stats, ok := analytics.ComputeBasicStats(series)
	if !ok {
		writeError(w, http.StatusNotFound, "no data for symbol")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":    symbol,
		"timeframe": tf.Name,
		"stats":     stats,
	})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	tick, ok, err := s.prices.Get(r.Context(), symbol)
	if err != nil {
		s.log.Error().Err(err).Str("symbol", symbol).Msg("price cache read failed")
		writeError(w, http.StatusInternalServerError, "cache unavailable")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no recent price for symbol")
		return
	}
	writeJSON(w, http.StatusOK, tick)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.hub.serve(r.Context(), conn)
}

// Run serves the router until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// plottableBars removes rows carrying any non-finite field and refuses to
// return a sequence too short to chart.
func plottableBars(bars []market.Bar) []market.Bar {
	out := make([]market.Bar, 0, len(bars))
	for _, b := range bars {
		if finite(b.Open) && finite(b.High) && finite(b.Low) && finite(b.Close) && finite(b.Volume) {
			out = append(out, b)
		}
	}
	if len(out) < 2 {
		return []market.Bar{}
	}
	return out
}

func closeSeries(bars []market.Bar) analytics.Series {
	out := make(analytics.Series, 0, len(bars))
	for _, b := range bars {
		out = append(out, analytics.Point{Ts: b.Ts, Value: b.Close})
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func mergeSorted(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(a, b...) {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
