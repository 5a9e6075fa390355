// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"pairflow-go/internal/market"
)

// App captures process-wide runtime settings such as name, environment, and logging.
type App struct {
	Name      string `yaml:"name"`
	Env       string `yaml:"env"`
	LogLevel  string `yaml:"log_level"`
	PrettyLog bool   `yaml:"pretty_log"`
}

// Server holds the HTTP listen address for the API, websocket, and metrics surface.
type Server struct {
	Addr string `yaml:"addr"`
}

// Feed describes the upstream tick source connectivity parameters.
type Feed struct {
	Provider    string   `yaml:"provider"`
	BaseURL     string   `yaml:"base_url"`
	Symbols     []string `yaml:"symbols"`
	BackoffSecs int      `yaml:"backoff_secs"`
}

// Buffer tunes the in-memory tick buffer and the optional tick journal.
type Buffer struct {
	Capacity    int    `yaml:"capacity"`
	RecentLimit int    `yaml:"recent_limit"`
	JournalPath string `yaml:"journal_path"`
}

// Storage points at the SQLite database mirroring resampled bars.
type Storage struct {
	SQLitePath  string `yaml:"sqlite_path"`
	PersistTail int    `yaml:"persist_tail"`
}

// Cache configures the optional Redis latest-price cache. An empty address
// selects the in-process fallback.
type Cache struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	TTLSecs       int    `yaml:"ttl_secs"`
}

// Resample controls the periodic resampling pass.
type Resample struct {
	Schedule   string         `yaml:"schedule"`
	Timeframes map[string]int `yaml:"timeframes"`
}

// Analytics groups tunable knobs for the pair analysis pipeline.
type Analytics struct {
	Window int `yaml:"window"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App       App       `yaml:"app"`
	Server    Server    `yaml:"server"`
	Feed      Feed      `yaml:"feed"`
	Buffer    Buffer    `yaml:"buffer"`
	Storage   Storage   `yaml:"storage"`
	Cache     Cache     `yaml:"cache"`
	Resample  Resample  `yaml:"resample"`
	Analytics Analytics `yaml:"analytics"`
}

// Load reads a YAML file from disk and hydrates a Config struct with
// defaults applied and environment overrides for deployment-sensitive values.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

// Default returns a Config usable without any file on disk.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "pairflow"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8001"
	}
	if c.Feed.Provider == "" {
		c.Feed.Provider = "binance"
	}
	if c.Feed.BaseURL == "" {
		c.Feed.BaseURL = "wss://fstream.binance.com/ws"
	}
	if len(c.Feed.Symbols) == 0 {
		c.Feed.Symbols = []string{"btcusdt", "ethusdt"}
	}
	if c.Feed.BackoffSecs <= 0 {
		c.Feed.BackoffSecs = 2
	}
	if c.Buffer.Capacity <= 0 {
		c.Buffer.Capacity = 10000
	}
	if c.Buffer.RecentLimit <= 0 {
		c.Buffer.RecentLimit = 1000
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "market_data.db"
	}
	if c.Storage.PersistTail <= 0 {
		c.Storage.PersistTail = 100
	}
	if c.Cache.TTLSecs <= 0 {
		c.Cache.TTLSecs = 120
	}
	if c.Resample.Schedule == "" {
		c.Resample.Schedule = "@every 1s"
	}
	if len(c.Resample.Timeframes) == 0 {
		c.Resample.Timeframes = map[string]int{"1s": 1, "1m": 60, "5m": 300}
	}
	if c.Analytics.Window <= 0 {
		c.Analytics.Window = 20
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PAIRFLOW_SQLITE_PATH"); v != "" {
		c.Storage.SQLitePath = v
	}
	if v := os.Getenv("PAIRFLOW_REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("PAIRFLOW_REDIS_PASSWORD"); v != "" {
		c.Cache.RedisPassword = v
	}
}

// TimeframeRegistry converts the configured timeframe map into the ordered
// registry consumed by the resampler and request validation. Ordering is by
// bucket width so listings stay stable.
func (c *Config) TimeframeRegistry() market.Timeframes {
	tfs := make(market.Timeframes, 0, len(c.Resample.Timeframes))
	for name, secs := range c.Resample.Timeframes {
		if secs <= 0 {
			continue
		}
		tfs = append(tfs, market.Timeframe{Name: name, Seconds: secs})
	}
	for i := 1; i < len(tfs); i++ {
		for j := i; j > 0 && tfs[j].Seconds < tfs[j-1].Seconds; j-- {
			tfs[j], tfs[j-1] = tfs[j-1], tfs[j]
		}
	}
	return tfs
}
