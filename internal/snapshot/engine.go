// Package snapshot values user portfolios for a day and keeps one row per
// (user, day).
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"portfoliotracker/internal/aggregate"
	"portfoliotracker/internal/clock"
	"portfoliotracker/internal/models"
	"portfoliotracker/internal/provider"
)

// Repository is the storage the engine reads holdings and history from and
// writes snapshots to.
type Repository interface {
	ListPortfoliosWithHoldings(ctx context.Context, userID string) ([]models.Portfolio, error)
	ListActiveUserIDs(ctx context.Context) ([]string, error)
	ListHistorySince(ctx context.Context, symbol string, since time.Time) ([]models.HistoryPoint, error)
	UpsertSnapshot(ctx context.Context, item *models.PortfolioSnapshot) error
	ListSnapshotsSince(ctx context.Context, userID string, since time.Time) ([]models.PortfolioSnapshot, error)
}

// QuoteSource returns live quotes keyed by symbol; missing symbols are absent.
type QuoteSource interface {
	GetQuotes(ctx context.Context, symbols []string) map[string]models.Quote
}

// HistoryRefresher refetches stale history before a backfill.
type HistoryRefresher interface {
	RefreshStale(ctx context.Context, symbols []string, days int) (int, error)
}

// RunSummary describes one RecordAllUserSnapshots run.
type RunSummary struct {
	RunID    string
	Users    int
	Recorded int
	// Skipped counts users without holdings.
	Skipped int
	Failed  int
}

type Engine struct {
	repo    Repository
	quotes  QuoteSource
	history HistoryRefresher
	clock   clock.Clock
	logger  *zap.Logger
}

type Option func(*Engine)

func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithHistoryRefresher makes GenerateHistoricalSnapshots refresh stale
// history of the held symbols before loading it.
func WithHistoryRefresher(h HistoryRefresher) Option {
	return func(e *Engine) {
		e.history = h
	}
}

func New(repo Repository, quotes QuoteSource, opts ...Option) *Engine {
	e := &Engine{
		repo:   repo,
		quotes: quotes,
		clock:  clock.System{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) holdings(ctx context.Context, userID string) ([]models.Holding, error) {
	portfolios, err := e.repo.ListPortfoliosWithHoldings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load portfolios of %s: %w", userID, err)
	}
	var out []models.Holding
	for _, p := range portfolios {
		for _, h := range p.Holdings {
			h.Symbol = aggregate.NormalizeSymbol(h.Symbol)
			out = append(out, h)
		}
	}
	return out, nil
}

func symbolsOf(holdings []models.Holding) []string {
	symbols := make([]string, 0, len(holdings))
	for _, h := range holdings {
		symbols = append(symbols, h.Symbol)
	}
	return aggregate.UniqueSymbols(symbols)
}

// RecordDailySnapshot values the user's holdings at live prices and upserts
// the row for today. It returns nil when the user holds nothing.
func (e *Engine) RecordDailySnapshot(ctx context.Context, userID string) (*models.PortfolioSnapshot, error) {
	holdings, err := e.holdings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(holdings) == 0 {
		return nil, nil
	}

	quotes := e.quotes.GetQuotes(ctx, symbolsOf(holdings))

	var value, cost, gain decimal.Decimal
	for _, h := range holdings {
		shares := decimal.NewFromFloat(h.Shares)
		basis := decimal.NewFromFloat(h.AvgCostBasis)
		price, change := basis, decimal.Zero
		if q, ok := quotes[h.Symbol]; ok {
			price = decimal.NewFromFloat(q.Price)
			change = decimal.NewFromFloat(q.ChangeAmount)
		} else {
			e.logger.Warn("no quote for holding, valuing at cost basis",
				zap.String("user_id", userID),
				zap.String("symbol", h.Symbol))
		}
		value = value.Add(shares.Mul(price))
		cost = cost.Add(shares.Mul(basis))
		gain = gain.Add(shares.Mul(change))
	}

	snap := &models.PortfolioSnapshot{
		ID:         uuid.NewString(),
		UserID:     userID,
		Date:       clock.Day(e.clock.Now()),
		TotalValue: value,
		TotalCost:  cost,
		DayGain:    gain,
	}
	if err := e.repo.UpsertSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("upsert snapshot of %s: %w", userID, err)
	}
	e.logger.Info("daily snapshot recorded",
		zap.String("user_id", userID),
		zap.String("date", clock.DayKey(snap.Date)),
		zap.String("total_value", value.StringFixed(2)))
	return snap, nil
}

// GenerateHistoricalSnapshots rebuilds one snapshot per day from today-days
// to today out of persisted closes. Days without a close for any holding are
// skipped, except today which is always written. Holdings are taken as they
// are now, so the total cost is the same on every day. Write failures are
// logged and the day is left out of the result.
func (e *Engine) GenerateHistoricalSnapshots(ctx context.Context, userID string, days int) ([]models.PortfolioSnapshot, error) {
	if days < 0 {
		days = 0
	}
	holdings, err := e.holdings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(holdings) == 0 {
		return nil, nil
	}
	symbols := symbolsOf(holdings)

	if e.history != nil {
		n, err := e.history.RefreshStale(ctx, symbols, days)
		if err != nil {
			e.logger.Warn("history refresh before backfill failed, using stored history",
				zap.String("user_id", userID),
				zap.Error(err))
		} else if n > 0 {
			e.logger.Info("history refreshed before backfill", zap.String("user_id", userID), zap.Int("symbols", n))
		}
	}

	today := clock.Day(e.clock.Now())
	start := provider.Window(e.clock.Now(), days)

	// closes[symbol][day] with one extra day before start for the baseline.
	closes := make(map[string]map[string]decimal.Decimal, len(symbols))
	for _, symbol := range symbols {
		points, err := e.repo.ListHistorySince(ctx, symbol, start.AddDate(0, 0, -1))
		if err != nil {
			return nil, fmt.Errorf("load history of %s: %w", symbol, err)
		}
		byDay := make(map[string]decimal.Decimal, len(points))
		for _, p := range points {
			byDay[clock.DayKey(p.Date)] = decimal.NewFromFloat(p.Close)
		}
		closes[symbol] = byDay
	}

	var cost decimal.Decimal
	for _, h := range holdings {
		cost = cost.Add(decimal.NewFromFloat(h.Shares).Mul(decimal.NewFromFloat(h.AvgCostBasis)))
	}

	var out []models.PortfolioSnapshot
	for d := start; !d.After(today); d = d.AddDate(0, 0, 1) {
		key := clock.DayKey(d)
		prevKey := clock.DayKey(d.AddDate(0, 0, -1))

		var value, baseline decimal.Decimal
		hasData := false
		for _, h := range holdings {
			shares := decimal.NewFromFloat(h.Shares)
			basis := decimal.NewFromFloat(h.AvgCostBasis)
			price, prev := basis, basis
			if c, ok := closes[h.Symbol][key]; ok {
				hasData = true
				price, prev = c, c
				if p, ok := closes[h.Symbol][prevKey]; ok {
					prev = p
				}
			}
			value = value.Add(shares.Mul(price))
			baseline = baseline.Add(shares.Mul(prev))
		}

		if !hasData && !d.Equal(today) {
			continue
		}

		snap := models.PortfolioSnapshot{
			ID:         uuid.NewString(),
			UserID:     userID,
			Date:       d,
			TotalValue: value,
			TotalCost:  cost,
			DayGain:    value.Sub(baseline),
		}
		if err := e.repo.UpsertSnapshot(ctx, &snap); err != nil {
			e.logger.Warn("backfill snapshot not written",
				zap.String("user_id", userID),
				zap.String("date", key),
				zap.Error(err))
			continue
		}
		out = append(out, snap)
	}

	e.logger.Info("historical snapshots generated",
		zap.String("user_id", userID),
		zap.Int("days", days),
		zap.Int("snapshots", len(out)))
	return out, nil
}

// GetPerformanceHistory returns the user's snapshots dated on or after
// today-days, oldest first.
func (e *Engine) GetPerformanceHistory(ctx context.Context, userID string, days int) ([]models.PortfolioSnapshot, error) {
	if days < 0 {
		days = 0
	}
	rows, err := e.repo.ListSnapshotsSince(ctx, userID, provider.Window(e.clock.Now(), days))
	if err != nil {
		return nil, fmt.Errorf("load snapshots of %s: %w", userID, err)
	}
	return rows, nil
}

// RecordAllUserSnapshots records today's snapshot for every active user. A
// failing user is logged and counted; only a failure to list users or a
// cancelled context is returned.
func (e *Engine) RecordAllUserSnapshots(ctx context.Context) (RunSummary, error) {
	summary := RunSummary{RunID: uuid.NewString()}
	log := e.logger.With(zap.String("run_id", summary.RunID))

	users, err := e.repo.ListActiveUserIDs(ctx)
	if err != nil {
		return summary, fmt.Errorf("list active users: %w", err)
	}
	summary.Users = len(users)

	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		snap, err := e.RecordDailySnapshot(ctx, userID)
		switch {
		case err != nil:
			summary.Failed++
			log.Error("daily snapshot failed", zap.String("user_id", userID), zap.Error(err))
		case snap == nil:
			summary.Skipped++
		default:
			summary.Recorded++
		}
	}

	log.Info("daily snapshots done",
		zap.Int("users", summary.Users),
		zap.Int("recorded", summary.Recorded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
	return summary, nil
}
