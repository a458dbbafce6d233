package aggregate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"portfoliotracker/internal/clock"
	"portfoliotracker/internal/models"
	"portfoliotracker/internal/provider"
	"portfoliotracker/internal/repository"
)

const DefaultHistoryDays = 365

type HistoryConfig struct {
	// Freshness is how long a fetched history set is served without refetch.
	Freshness time.Duration
	// DefaultDays applies when a request does not name a window.
	DefaultDays int
}

func (c HistoryConfig) withDefaults() HistoryConfig {
	if c.Freshness <= 0 {
		c.Freshness = 24 * time.Hour
	}
	if c.DefaultDays <= 0 {
		c.DefaultDays = DefaultHistoryDays
	}
	return c
}

// HistorySource is one entry of the history chain. Delay is slept before
// every attempt on the provider.
type HistorySource struct {
	Provider provider.Provider
	Delay    time.Duration
}

type HistoryOptions struct {
	Days         int
	ForceRefresh bool
}

// QuoteGetter is the part of the quote aggregator used for symbol names.
type QuoteGetter interface {
	GetQuote(ctx context.Context, symbol string) (QuoteResult, bool)
}

// History keeps one persisted daily series per symbol and refetches it when
// its metadata says it is older than the freshness window.
type History struct {
	cfg     HistoryConfig
	repo    repository.HistoryRepository
	sources []HistorySource
	quotes  QuoteGetter
	group   singleflight.Group
	options
}

// NewHistory builds a history aggregator. sources is the fixed priority
// order; quotes may be nil, in which case metadata names are never filled.
func NewHistory(cfg HistoryConfig, repo repository.HistoryRepository, sources []HistorySource, quotes QuoteGetter, opts ...Option) *History {
	return &History{
		cfg:     cfg.withDefaults(),
		repo:    repo,
		sources: sources,
		quotes:  quotes,
		options: newOptions(opts),
	}
}

// Providers returns the history provider names in priority order.
func (h *History) Providers() []string {
	names := make([]string, 0, len(h.sources))
	for _, src := range h.sources {
		names = append(names, src.Provider.Name())
	}
	return names
}

// GetHistoricalData returns the daily bars of symbol dated within the last
// opts.Days days, oldest first. An error is returned only when the store
// cannot be read or a fetched set cannot be written.
func (h *History) GetHistoricalData(ctx context.Context, symbol string, opts HistoryOptions) ([]models.HistoryPoint, error) {
	symbol = NormalizeSymbol(symbol)
	days := opts.Days
	if days <= 0 {
		days = h.cfg.DefaultDays
	}
	since := provider.Window(h.clock.Now(), days)

	if !opts.ForceRefresh && h.HasRecentData(ctx, symbol) {
		return h.repo.ListHistorySince(ctx, symbol, since)
	}

	key := fmt.Sprintf("%s|%d|%t", symbol, days, opts.ForceRefresh)
	v, err, _ := h.group.Do(key, func() (any, error) {
		return h.refetch(ctx, symbol, days, since)
	})
	if err != nil {
		return nil, err
	}
	points, _ := v.([]models.HistoryPoint)
	return points, nil
}

func (h *History) refetch(ctx context.Context, symbol string, days int, since time.Time) ([]models.HistoryPoint, error) {
	points, source := h.fetch(ctx, symbol, days)
	if len(points) == 0 {
		h.logger.Warn("all history providers failed, serving persisted history", zap.String("symbol", symbol))
		return h.repo.ListHistorySince(ctx, symbol, since)
	}

	now := h.clock.Now()
	start, end := points[0].Date, points[len(points)-1].Date
	meta := models.SymbolMetadata{
		Symbol:           symbol,
		HistoryStartDate: &start,
		HistoryEndDate:   &end,
		LastFetchedAt:    &now,
	}
	if err := h.repo.ReplaceHistory(ctx, symbol, points, meta); err != nil {
		return nil, fmt.Errorf("replace history of %s: %w", symbol, err)
	}
	h.logger.Info("history stored",
		zap.String("symbol", symbol),
		zap.String("provider", source),
		zap.Int("points", len(points)),
		zap.String("from", clock.DayKey(start)),
		zap.String("to", clock.DayKey(end)))

	out := points[:0:0]
	for _, p := range points {
		if !p.Date.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

// fetch walks the chain and returns the first non-empty series, normalized
// and de-duplicated by day, with the name of the provider that served it.
func (h *History) fetch(ctx context.Context, symbol string, days int) ([]models.HistoryPoint, string) {
	for _, src := range h.sources {
		name := src.Provider.Name()
		if err := h.clock.Sleep(ctx, src.Delay); err != nil {
			return nil, ""
		}
		points, err := src.Provider.FetchHistory(ctx, symbol, days)
		if err != nil {
			h.logger.Info("history provider failed",
				zap.String("provider", name),
				zap.String("symbol", symbol),
				zap.Error(err))
			continue
		}
		points = dedupeByDay(provider.Normalize(symbol, points, time.Time{}))
		if len(points) == 0 {
			h.logger.Info("history provider returned no points", zap.String("provider", name), zap.String("symbol", symbol))
			continue
		}
		return points, name
	}
	return nil, ""
}

// dedupeByDay keeps the first point of each day from a sorted slice.
func dedupeByDay(points []models.HistoryPoint) []models.HistoryPoint {
	out := points[:0:0]
	last := ""
	for _, p := range points {
		key := clock.DayKey(p.Date)
		if key == last {
			continue
		}
		last = key
		out = append(out, p)
	}
	return out
}

// GetStockMetadata returns the stored metadata of symbol. When there is none,
// or it has no name, one quote lookup is made to learn the name, which is
// then persisted on a best-effort basis. It returns nil when the symbol is
// unknown everywhere.
func (h *History) GetStockMetadata(ctx context.Context, symbol string) (*models.SymbolMetadata, error) {
	symbol = NormalizeSymbol(symbol)
	meta, err := h.repo.GetSymbolMetadata(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("read metadata of %s: %w", symbol, err)
	}
	if (meta != nil && meta.Name != "") || h.quotes == nil {
		return meta, nil
	}

	res, ok := h.quotes.GetQuote(ctx, symbol)
	if !ok {
		return meta, nil
	}
	if meta == nil {
		meta = &models.SymbolMetadata{Symbol: symbol}
	}
	if res.Quote.Name == "" {
		return meta, nil
	}
	meta.Name = res.Quote.Name
	if err := h.repo.UpsertSymbolName(ctx, symbol, meta.Name); err != nil {
		h.logger.Warn("persisting symbol name failed", zap.String("symbol", symbol), zap.Error(err))
	}
	return meta, nil
}

// HasRecentData reports whether the history of symbol was fetched within
// the freshness window.
func (h *History) HasRecentData(ctx context.Context, symbol string) bool {
	meta, err := h.repo.GetSymbolMetadata(ctx, NormalizeSymbol(symbol))
	if err != nil {
		h.logger.Warn("metadata read failed", zap.String("symbol", symbol), zap.Error(err))
		return false
	}
	return meta.FetchedWithin(h.clock.Now(), h.cfg.Freshness)
}

// RefreshStale refetches the history of every symbol lacking recent data and
// returns how many were refreshed. Failures are logged and skipped; the
// first one is returned after all symbols were tried.
func (h *History) RefreshStale(ctx context.Context, symbols []string, days int) (int, error) {
	var (
		refreshed int
		firstErr  error
	)
	for _, symbol := range UniqueSymbols(symbols) {
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}
		if h.HasRecentData(ctx, symbol) {
			continue
		}
		if _, err := h.GetHistoricalData(ctx, symbol, HistoryOptions{Days: days}); err != nil {
			h.logger.Error("history refresh failed", zap.String("symbol", symbol), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if h.HasRecentData(ctx, symbol) {
			refreshed++
		}
	}
	return refreshed, firstErr
}
