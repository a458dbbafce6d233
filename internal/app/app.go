// Package app builds the long-lived components from configuration. Every
// piece of mutable state (limiters, User-Agent rotation, caches) is owned by
// the values built here.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"portfoliotracker/internal/aggregate"
	"portfoliotracker/internal/clock"
	"portfoliotracker/internal/config"
	"portfoliotracker/internal/db"
	"portfoliotracker/internal/httpx"
	"portfoliotracker/internal/logger"
	"portfoliotracker/internal/provider"
	"portfoliotracker/internal/provider/alphavantage"
	"portfoliotracker/internal/provider/finnhub"
	"portfoliotracker/internal/provider/fmp"
	"portfoliotracker/internal/provider/ratelimit"
	"portfoliotracker/internal/provider/twelvedata"
	"portfoliotracker/internal/provider/yahoo"
	"portfoliotracker/internal/repository"
	gormrepository "portfoliotracker/internal/repository/gorm"
	"portfoliotracker/internal/repository/memory"
	"portfoliotracker/internal/snapshot"
)

type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Clock     clock.Clock
	Repo      repository.Repository
	Adapters  Adapters
	Quotes    *aggregate.Quotes
	History   *aggregate.History
	Snapshots *snapshot.Engine

	db *db.DB
}

type options struct {
	logger *zap.Logger
	clock  clock.Clock
	repo   repository.Repository
	doer   httpx.Doer
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = l } }

func WithClock(c clock.Clock) Option { return func(o *options) { o.clock = c } }

// WithRepository skips opening the configured database.
func WithRepository(r repository.Repository) Option { return func(o *options) { o.repo = r } }

// WithHTTPClient replaces the outbound client of every adapter.
func WithHTTPClient(d httpx.Doer) Option { return func(o *options) { o.doer = d } }

// New wires the repository, the adapters, both aggregators and the
// snapshot engine.
func New(cfg config.Config, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	log := logger.OrNop(o.logger)

	clk := o.clock
	if clk == nil {
		clk = NewClock(cfg, log)
	}

	a := &App{Config: cfg, Logger: log, Clock: clk, Repo: o.repo}
	if a.Repo == nil {
		if err := a.openRepository(); err != nil {
			return nil, err
		}
	}

	a.Adapters = BuildAdapters(cfg, clk, o.doer, log)
	if len(a.Adapters.Quote) == 0 {
		log.Warn("no quote provider is usable; only cached quotes will be served")
	}

	a.Quotes = aggregate.NewQuotes(aggregate.QuoteConfig{
		CacheTTL:      cfg.MarketData.QuoteCacheTTL,
		ProviderDelay: cfg.MarketData.ProviderDelay,
		SymbolDelay:   cfg.MarketData.SymbolDelay,
	}, a.Repo, a.Adapters.Quote, aggregate.WithClock(clk), aggregate.WithLogger(log.Named("quotes")))

	a.History = aggregate.NewHistory(aggregate.HistoryConfig{
		Freshness:   cfg.MarketData.HistoryFreshness,
		DefaultDays: cfg.MarketData.HistoryDays,
	}, a.Repo, a.Adapters.History, a.Quotes, aggregate.WithClock(clk), aggregate.WithLogger(log.Named("history")))

	engineOpts := []snapshot.Option{snapshot.WithClock(clk), snapshot.WithLogger(log.Named("snapshot"))}
	if cfg.Snapshot.RefreshHistory {
		engineOpts = append(engineOpts, snapshot.WithHistoryRefresher(a.History))
	}
	a.Snapshots = snapshot.New(a.Repo, a.Quotes, engineOpts...)

	log.Info("app ready",
		zap.String("env", cfg.App.Env),
		zap.String("db_driver", cfg.DB.Driver),
		zap.Strings("quote_providers", a.Quotes.Providers()),
		zap.Strings("history_providers", a.History.Providers()))
	return a, nil
}

// NewClock returns the wall clock in the configured snapshot location, so
// that "today" and history windows agree across binaries.
func NewClock(cfg config.Config, log *zap.Logger) clock.System {
	loc, err := cfg.TimeLocation()
	if err != nil {
		logger.OrNop(log).Warn("unknown snapshot location, using UTC", zap.Error(err))
	}
	return clock.System{Location: loc}
}

func (a *App) openRepository() error {
	if a.Config.DB.Driver == "memory" {
		a.Repo = memory.New()
		return nil
	}
	conn, err := db.Open(a.Config.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if a.Config.DB.AutoMigrate {
		if err := db.AutoMigrate(conn); err != nil {
			_ = db.Close(conn)
			return err
		}
	}
	a.db = conn
	a.Repo = gormrepository.New(conn.Gorm)
	return nil
}

// Close releases the database connection, if one was opened.
func (a *App) Close() error {
	return db.Close(a.db)
}

// HeldSymbols returns the symbols held by any active user.
func (a *App) HeldSymbols(ctx context.Context) ([]string, error) {
	users, err := a.Repo.ListActiveUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	var symbols []string
	for _, userID := range users {
		portfolios, err := a.Repo.ListPortfoliosWithHoldings(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load portfolios of %s: %w", userID, err)
		}
		for _, p := range portfolios {
			for _, h := range p.Holdings {
				symbols = append(symbols, h.Symbol)
			}
		}
	}
	return aggregate.UniqueSymbols(symbols), nil
}

// RefreshHeldHistory refetches stale history for every held symbol.
func (a *App) RefreshHeldHistory(ctx context.Context) error {
	symbols, err := a.HeldSymbols(ctx)
	if err != nil {
		return err
	}
	n, err := a.History.RefreshStale(ctx, symbols, a.Config.MarketData.HistoryDays)
	a.Logger.Info("history refresh finished", zap.Int("symbols", len(symbols)), zap.Int("refreshed", n))
	return err
}

// Adapters holds the usable, rate limited adapters. Quote and History share
// the same instances so each provider has one limiter.
type Adapters struct {
	All     []provider.Provider
	Quote   []provider.Provider
	History []aggregate.HistorySource
}

// BuildAdapters constructs every enabled provider whose key is present.
// The quote chain is finnhub, yahoo, twelvedata, fmp, alphavantage; the
// history chain is yahoo, twelvedata, fmp, alphavantage.
func BuildAdapters(cfg config.Config, clk clock.Clock, doer httpx.Doer, log *zap.Logger) Adapters {
	log = logger.OrNop(log)
	md := cfg.MarketData

	var shared, browser httpx.Doer = doer, doer
	if doer == nil {
		hc := httpx.New(md.HTTPTimeout)
		agents := md.UserAgents
		if len(agents) == 0 {
			agents = httpx.DefaultUserAgents
		}
		shared, browser = hc, hc.WithUserAgents(agents)
	}

	common := func(pc config.ProviderConfig, d httpx.Doer) []provider.Option {
		return []provider.Option{
			provider.WithBaseURL(pc.BaseURL),
			provider.WithHTTPClient(d),
			provider.WithTimeouts(md.QuoteTimeout, md.HistoryTimeout),
			provider.WithClock(clk),
		}
	}
	limit := func(p provider.Provider, pc config.ProviderConfig) provider.Provider {
		return ratelimit.Wrap(p, pc.MaxRequestsPerMinute, pc.Burst, pc.MinRequestInterval)
	}
	skip := func(name string, pc config.ProviderConfig) {
		if pc.Enabled {
			log.Info("provider skipped, no api key", zap.String("provider", name))
		}
	}

	var (
		fh, yh, av, td, fm provider.Provider
		ps                 = cfg.Providers
	)
	if ps.Finnhub.Usable(true) {
		fh = limit(finnhub.New(ps.Finnhub.APIKey, common(ps.Finnhub, shared)...), ps.Finnhub)
	} else {
		skip(finnhub.Name, ps.Finnhub)
	}
	if ps.Yahoo.Usable(false) {
		yh = limit(yahoo.New(common(ps.Yahoo, browser)...), ps.Yahoo)
	}
	if ps.TwelveData.Usable(true) {
		td = limit(twelvedata.New(ps.TwelveData.APIKey, common(ps.TwelveData, shared)...), ps.TwelveData)
	} else {
		skip(twelvedata.Name, ps.TwelveData)
	}
	if ps.FMP.Usable(true) {
		fm = limit(fmp.New(ps.FMP.APIKey, common(ps.FMP, shared)...), ps.FMP)
	} else {
		skip(fmp.Name, ps.FMP)
	}
	if ps.AlphaVantage.Usable(true) {
		av = limit(alphavantage.New(ps.AlphaVantage.APIKey, common(ps.AlphaVantage, shared)...), ps.AlphaVantage)
	} else {
		skip(alphavantage.Name, ps.AlphaVantage)
	}

	var out Adapters
	for _, p := range []provider.Provider{fh, yh, td, fm, av} {
		if p != nil {
			out.Quote = append(out.Quote, p)
			out.All = append(out.All, p)
		}
	}
	for _, s := range []struct {
		p   provider.Provider
		cfg config.ProviderConfig
	}{{yh, ps.Yahoo}, {td, ps.TwelveData}, {fm, ps.FMP}, {av, ps.AlphaVantage}} {
		if s.p != nil {
			out.History = append(out.History, aggregate.HistorySource{Provider: s.p, Delay: s.cfg.HistoryDelay})
		}
	}
	return out
}
