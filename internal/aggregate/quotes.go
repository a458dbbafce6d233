package aggregate

import (
	"context"
	"time"

	"go.uber.org/zap"

	"portfoliotracker/internal/models"
	"portfoliotracker/internal/provider"
	"portfoliotracker/internal/repository"
)

// Origin tells where a quote result came from.
type Origin string

const (
	// OriginCache is a persisted quote younger than the cache TTL.
	OriginCache Origin = "cache"
	// OriginProvider is a quote fetched during the call.
	OriginProvider Origin = "provider"
	// OriginStale is a persisted quote served because every provider failed.
	OriginStale Origin = "stale"
)

// QuoteResult separates the value handed to the caller from whether it
// reached the store.
type QuoteResult struct {
	Quote  models.Quote
	Origin Origin
	// Provider names the adapter that served a fetched quote.
	Provider string
	// Persisted is true when the value is known to be in the store.
	Persisted  bool
	PersistErr error
}

type QuoteConfig struct {
	CacheTTL      time.Duration
	ProviderDelay time.Duration
	SymbolDelay   time.Duration
}

func (c QuoteConfig) withDefaults() QuoteConfig {
	if c.CacheTTL <= 0 {
		c.CacheTTL = 30 * time.Second
	}
	if c.ProviderDelay < 0 {
		c.ProviderDelay = 0
	}
	if c.SymbolDelay < 0 {
		c.SymbolDelay = 0
	}
	return c
}

// Quotes serves the latest quote per symbol from the store while it is
// fresh and otherwise walks the providers in order.
type Quotes struct {
	cfg       QuoteConfig
	repo      repository.QuoteRepository
	providers []provider.Provider
	options
}

// NewQuotes builds a quote aggregator. providers is the fixed priority order.
func NewQuotes(cfg QuoteConfig, repo repository.QuoteRepository, providers []provider.Provider, opts ...Option) *Quotes {
	return &Quotes{
		cfg:       cfg.withDefaults(),
		repo:      repo,
		providers: providers,
		options:   newOptions(opts),
	}
}

// Providers returns the provider names in priority order.
func (a *Quotes) Providers() []string {
	names := make([]string, 0, len(a.providers))
	for _, p := range a.providers {
		names = append(names, p.Name())
	}
	return names
}

// GetQuote returns the quote for symbol. The boolean is false only when no
// provider produced a valid quote and nothing was ever stored.
func (a *Quotes) GetQuote(ctx context.Context, symbol string) (QuoteResult, bool) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return QuoteResult{}, false
	}

	cached, err := a.repo.GetQuote(ctx, symbol)
	if err != nil {
		a.logger.Warn("quote cache read failed", zap.String("symbol", symbol), zap.Error(err))
		cached = nil
	}
	if cached != nil && a.clock.Now().Sub(cached.UpdatedAt) < a.cfg.CacheTTL {
		return QuoteResult{Quote: *cached, Origin: OriginCache, Persisted: true}, true
	}

	a.logger.Debug("fetching quote", zap.String("symbol", symbol))
	if res, ok := a.fetch(ctx, symbol); ok {
		return res, true
	}

	if cached != nil {
		a.logger.Warn("all quote providers failed, serving stale quote",
			zap.String("symbol", symbol),
			zap.Time("updated_at", cached.UpdatedAt))
		return QuoteResult{Quote: *cached, Origin: OriginStale, Persisted: true}, true
	}
	a.logger.Warn("no quote available", zap.String("symbol", symbol))
	return QuoteResult{}, false
}

func (a *Quotes) fetch(ctx context.Context, symbol string) (QuoteResult, bool) {
	for i, p := range a.providers {
		if i > 0 {
			if err := a.clock.Sleep(ctx, a.cfg.ProviderDelay); err != nil {
				return QuoteResult{}, false
			}
		}
		if ctx.Err() != nil {
			return QuoteResult{}, false
		}

		q, err := p.FetchQuote(ctx, symbol)
		if err != nil {
			a.logger.Info("quote provider failed",
				zap.String("provider", p.Name()),
				zap.String("symbol", symbol),
				zap.Error(err))
			continue
		}
		if !q.Valid() {
			a.logger.Info("quote provider returned invalid price",
				zap.String("provider", p.Name()),
				zap.String("symbol", symbol),
				zap.Float64("price", q.Price))
			continue
		}

		q.Symbol = symbol
		if q.Source == "" {
			q.Source = p.Name()
		}
		q.UpdatedAt = a.clock.Now()

		res := QuoteResult{Quote: q, Origin: OriginProvider, Provider: p.Name()}
		if err := a.repo.UpsertQuote(ctx, &q); err != nil {
			a.logger.Error("persisting quote failed", zap.String("symbol", symbol), zap.Error(err))
			res.PersistErr = err
		} else {
			res.Persisted = true
		}
		return res, true
	}
	return QuoteResult{}, false
}

// GetQuotes fetches symbols one at a time. Symbols with no quote are absent
// from the result. The inter-symbol delay is skipped after a cache hit since
// no provider was contacted.
func (a *Quotes) GetQuotes(ctx context.Context, symbols []string) map[string]models.Quote {
	out := make(map[string]models.Quote, len(symbols))
	contacted := false
	for _, symbol := range UniqueSymbols(symbols) {
		if ctx.Err() != nil {
			break
		}
		if contacted {
			if err := a.clock.Sleep(ctx, a.cfg.SymbolDelay); err != nil {
				break
			}
		}
		res, ok := a.GetQuote(ctx, symbol)
		contacted = res.Origin != OriginCache
		if ok {
			out[symbol] = res.Quote
		}
	}
	return out
}
