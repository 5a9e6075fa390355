package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"pairflow-go/internal/analytics"
	"pairflow-go/internal/cache"
	"pairflow-go/internal/config"
	"pairflow-go/internal/exchange"
	"pairflow-go/internal/market"
	"pairflow-go/internal/resample"
	"pairflow-go/internal/store"
	"pairflow-go/internal/util"
	"pairflow-go/internal/web"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// No file is a supported mode: defaults plus env cover local runs.
		cfg = config.Default()
	}

	log := util.NewLogger(cfg.App.LogLevel, cfg.App.PrettyLog)
	log.Info().Str("name", cfg.App.Name).Str("provider", cfg.Feed.Provider).Msg("starting")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	barStore, err := store.NewBarStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatal().Err(err).Msg("open bar store")
	}
	defer barStore.Close()

	buffer := store.NewTickBuffer(cfg.Buffer.Capacity)
	table := store.NewBarTable()

	var journal *store.TickJournal
	if cfg.Buffer.JournalPath != "" {
		journal, err = store.NewTickJournal(cfg.Buffer.JournalPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Buffer.JournalPath).Msg("open tick journal")
		}
		defer journal.Close()
	}

	prices := newPriceCache(cfg, log)
	defer prices.Close()

	timeframes := cfg.TimeframeRegistry()
	warmStart(barStore, table, timeframes, log)

	hub := web.NewHub(util.Component(log, "hub"))

	feed := exchange.NewFeed(
		cfg.Feed.Provider,
		cfg.Feed.Symbols,
		util.Component(log, "feed"),
		exchange.WithBaseURL(cfg.Feed.BaseURL),
		exchange.WithBackoff(time.Duration(cfg.Feed.BackoffSecs)*time.Second),
	)
	ticks := make(chan market.Tick, 1024)

	go func() {
		if err := feed.Run(ctx, ticks); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("feed stopped")
			cancel()
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case tk := <-ticks:
				buffer.Add(tk)
				if journal != nil {
					journal.Record(tk)
				}
				if err := prices.Set(ctx, tk); err != nil {
					log.Warn().Err(err).Str("symbol", tk.Symbol).Msg("price cache write failed")
				}
				hub.Broadcast(tk)
			}
		}
	}()

	resampler := resample.New(
		buffer, table, barStore, timeframes,
		util.Component(log, "resample"),
		resample.WithRecentLimit(cfg.Buffer.RecentLimit),
		resample.WithPersistTail(cfg.Storage.PersistTail),
	)
	scheduler := cron.New(cron.WithSeconds())
	if _, err := resampler.Schedule(scheduler, cfg.Resample.Schedule); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Resample.Schedule).Msg("register resample job")
	}
	scheduler.Start()
	defer scheduler.Stop()

	analyzer := analytics.NewAnalyzer(cfg.Analytics.Window, util.Component(log, "analytics"))
	server := web.NewServer(buffer, table, analyzer, prices, timeframes, hub, util.Component(log, "web"))

	if err := server.Run(ctx, cfg.Server.Addr); err != nil {
		log.Error().Err(err).Msg("http server stopped")
	}
	log.Info().Msg("shutting down")
}

// warmStart seeds the in-memory bar table from the persisted history so the
// API serves data immediately after a restart. The next resampling pass over
// live ticks replaces these rows.
func warmStart(barStore *store.BarStore, table *store.BarTable, timeframes market.Timeframes, log zerolog.Logger) {
	symbols, err := barStore.Symbols()
	if err != nil {
		log.Warn().Err(err).Msg("warm start skipped")
		return
	}
	loaded := 0
	for _, sym := range symbols {
		for _, tf := range timeframes {
			bars, err := barStore.QueryBars(sym, tf.Name, 0)
			if err != nil {
				log.Warn().Err(err).Str("symbol", sym).Str("timeframe", tf.Name).Msg("warm start query failed")
				continue
			}
			if len(bars) > 0 {
				table.Replace(sym, tf.Name, bars)
				loaded += len(bars)
			}
		}
	}
	if loaded > 0 {
		log.Info().Int("bars", loaded).Int("symbols", len(symbols)).Msg("warm start loaded persisted bars")
	}
}

// newPriceCache selects Redis when configured, the in-process map otherwise.
func newPriceCache(cfg *config.Config, log zerolog.Logger) cache.LatestPrices {
	ttl := time.Duration(cfg.Cache.TTLSecs) * time.Second
	if cfg.Cache.RedisAddr == "" {
		return cache.NewMemory(ttl)
	}
	redisCache, err := cache.NewRedis(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, ttl, util.Component(log, "cache"))
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.Cache.RedisAddr).Msg("redis unavailable, using in-memory price cache")
		return cache.NewMemory(ttl)
	}
	return redisCache
}
