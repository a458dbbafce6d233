package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// PORTFOLIO_DB_DSN or PORTFOLIO_MARKET_DATA_QUOTE_CACHE_TTL.
const EnvPrefix = "PORTFOLIO"

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Cron       CronConfig       `mapstructure:"cron"`
	MarketData MarketDataConfig `mapstructure:"market_data"`
	Snapshot   SnapshotConfig   `mapstructure:"snapshot"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	// Driver is one of postgres, sqlite or memory.
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type CronConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Specs use the six-field format with seconds.
	DailySnapshot  string `mapstructure:"daily_snapshot"`
	HistoryRefresh string `mapstructure:"history_refresh"`
}

type MarketDataConfig struct {
	QuoteCacheTTL    time.Duration `mapstructure:"quote_cache_ttl"`
	ProviderDelay    time.Duration `mapstructure:"provider_delay"`
	SymbolDelay      time.Duration `mapstructure:"symbol_delay"`
	HistoryFreshness time.Duration `mapstructure:"history_freshness"`
	HistoryDays      int           `mapstructure:"history_days"`
	QuoteTimeout     time.Duration `mapstructure:"quote_timeout"`
	HistoryTimeout   time.Duration `mapstructure:"history_timeout"`
	HTTPTimeout      time.Duration `mapstructure:"http_timeout"`
	UserAgents       []string      `mapstructure:"user_agents"`
}

type SnapshotConfig struct {
	// Location names the time zone whose calendar defines "today".
	Location     string `mapstructure:"location"`
	BackfillDays int    `mapstructure:"backfill_days"`
	// RefreshHistory lets a backfill refetch history for symbols whose
	// persisted set is stale before reconstructing.
	RefreshHistory bool `mapstructure:"refresh_history"`
}

type ProvidersConfig struct {
	Finnhub      ProviderConfig `mapstructure:"finnhub"`
	Yahoo        ProviderConfig `mapstructure:"yahoo"`
	AlphaVantage ProviderConfig `mapstructure:"alphavantage"`
	TwelveData   ProviderConfig `mapstructure:"twelvedata"`
	FMP          ProviderConfig `mapstructure:"fmp"`
}

type ProviderConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	APIKey               string        `mapstructure:"api_key"`
	BaseURL              string        `mapstructure:"base_url"`
	MaxRequestsPerMinute int           `mapstructure:"max_requests_per_minute"`
	Burst                int           `mapstructure:"burst"`
	MinRequestInterval   time.Duration `mapstructure:"min_request_interval"`
	// HistoryDelay is slept before every history attempt on this provider.
	HistoryDelay time.Duration `mapstructure:"history_delay"`
}

// Usable reports whether the provider can be called.
func (p ProviderConfig) Usable(keyRequired bool) bool {
	return p.Enabled && (!keyRequired || p.APIKey != "")
}

func Default() Config {
	return Config{
		App:    AppConfig{Env: "dev"},
		Server: ServerConfig{HTTPAddr: ":8080", ShutdownTimeout: 10 * time.Second},
		Log:    LogConfig{Level: "info", Encoding: "console", Development: true},
		DB: DBConfig{
			Driver:          "postgres",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			AutoMigrate:     true,
		},
		Cron: CronConfig{
			Enabled:        true,
			DailySnapshot:  "0 30 21 * * 1-5",
			HistoryRefresh: "0 0 6 * * *",
		},
		MarketData: MarketDataConfig{
			QuoteCacheTTL:    30 * time.Second,
			ProviderDelay:    100 * time.Millisecond,
			SymbolDelay:      200 * time.Millisecond,
			HistoryFreshness: 24 * time.Hour,
			HistoryDays:      365,
			QuoteTimeout:     10 * time.Second,
			HistoryTimeout:   30 * time.Second,
			HTTPTimeout:      45 * time.Second,
		},
		Snapshot: SnapshotConfig{Location: "UTC", BackfillDays: 365, RefreshHistory: true},
		Providers: ProvidersConfig{
			Finnhub: ProviderConfig{
				Enabled:              true,
				MaxRequestsPerMinute: 60,
				Burst:                5,
			},
			Yahoo: ProviderConfig{
				Enabled:            true,
				MinRequestInterval: 250 * time.Millisecond,
			},
			AlphaVantage: ProviderConfig{
				Enabled:              true,
				MaxRequestsPerMinute: 5,
				Burst:                1,
				HistoryDelay:         12 * time.Second,
			},
			TwelveData: ProviderConfig{
				Enabled:              true,
				MaxRequestsPerMinute: 8,
				Burst:                1,
				HistoryDelay:         time.Second,
			},
			FMP: ProviderConfig{
				Enabled:              true,
				MaxRequestsPerMinute: 30,
				Burst:                2,
				HistoryDelay:         500 * time.Millisecond,
			},
		},
	}
}

// envAliases are the conventional variable names accepted next to the
// prefixed ones.
var envAliases = map[string]string{
	"providers.finnhub.api_key":      "FINNHUB_API_KEY",
	"providers.alphavantage.api_key": "ALPHAVANTAGE_API_KEY",
	"providers.twelvedata.api_key":   "TWELVEDATA_API_KEY",
	"providers.fmp.api_key":          "FMP_API_KEY",
	"db.dsn":                         "DATABASE_URL",
	"server.http_addr":               "HTTP_ADDR",
}

// Load reads a YAML or JSON config from path. If path is empty, config.yaml
// in the working directory is used when present; otherwise only defaults and
// environment variables apply.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	for key, alias := range envAliases {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, alias); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("app.env", d.App.Env)
	v.SetDefault("server.http_addr", d.Server.HTTPAddr)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.encoding", d.Log.Encoding)
	v.SetDefault("log.development", d.Log.Development)
	v.SetDefault("log.sampling", d.Log.Sampling)
	v.SetDefault("log.disable_caller", d.Log.DisableCaller)
	v.SetDefault("log.disable_stacktrace", d.Log.DisableStacktrace)

	v.SetDefault("db.driver", d.DB.Driver)
	v.SetDefault("db.dsn", d.DB.DSN)
	v.SetDefault("db.max_open_conns", d.DB.MaxOpenConns)
	v.SetDefault("db.max_idle_conns", d.DB.MaxIdleConns)
	v.SetDefault("db.conn_max_lifetime", d.DB.ConnMaxLifetime)
	v.SetDefault("db.conn_max_idle_time", d.DB.ConnMaxIdleTime)
	v.SetDefault("db.auto_migrate", d.DB.AutoMigrate)

	v.SetDefault("cron.enabled", d.Cron.Enabled)
	v.SetDefault("cron.daily_snapshot", d.Cron.DailySnapshot)
	v.SetDefault("cron.history_refresh", d.Cron.HistoryRefresh)

	v.SetDefault("market_data.quote_cache_ttl", d.MarketData.QuoteCacheTTL)
	v.SetDefault("market_data.provider_delay", d.MarketData.ProviderDelay)
	v.SetDefault("market_data.symbol_delay", d.MarketData.SymbolDelay)
	v.SetDefault("market_data.history_freshness", d.MarketData.HistoryFreshness)
	v.SetDefault("market_data.history_days", d.MarketData.HistoryDays)
	v.SetDefault("market_data.quote_timeout", d.MarketData.QuoteTimeout)
	v.SetDefault("market_data.history_timeout", d.MarketData.HistoryTimeout)
	v.SetDefault("market_data.http_timeout", d.MarketData.HTTPTimeout)
	v.SetDefault("market_data.user_agents", d.MarketData.UserAgents)

	v.SetDefault("snapshot.location", d.Snapshot.Location)
	v.SetDefault("snapshot.backfill_days", d.Snapshot.BackfillDays)
	v.SetDefault("snapshot.refresh_history", d.Snapshot.RefreshHistory)

	for name, p := range map[string]ProviderConfig{
		"finnhub":      d.Providers.Finnhub,
		"yahoo":        d.Providers.Yahoo,
		"alphavantage": d.Providers.AlphaVantage,
		"twelvedata":   d.Providers.TwelveData,
		"fmp":          d.Providers.FMP,
	} {
		prefix := "providers." + name + "."
		v.SetDefault(prefix+"enabled", p.Enabled)
		v.SetDefault(prefix+"api_key", p.APIKey)
		v.SetDefault(prefix+"base_url", p.BaseURL)
		v.SetDefault(prefix+"max_requests_per_minute", p.MaxRequestsPerMinute)
		v.SetDefault(prefix+"burst", p.Burst)
		v.SetDefault(prefix+"min_request_interval", p.MinRequestInterval)
		v.SetDefault(prefix+"history_delay", p.HistoryDelay)
	}
}

// TimeLocation resolves Snapshot.Location, falling back to UTC.
func (c Config) TimeLocation() (*time.Location, error) {
	if c.Snapshot.Location == "" || strings.EqualFold(c.Snapshot.Location, "UTC") {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Snapshot.Location)
	if err != nil {
		return time.UTC, fmt.Errorf("load location %q: %w", c.Snapshot.Location, err)
	}
	return loc, nil
}
