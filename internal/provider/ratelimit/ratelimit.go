package ratelimit

import (
	"context"
	"sync"
	"time"

	"portfoliotracker/internal/models"
	"portfoliotracker/internal/provider"
)

// MinInterval wraps a provider and enforces a minimum time between calls to
// either endpoint. Concurrent calls wait until the interval has elapsed since
// the last call, or return early if the context is canceled.
type MinInterval struct {
	P        provider.Provider
	Interval time.Duration

	mu   sync.Mutex
	last time.Time
}

func (m *MinInterval) Name() string { return m.P.Name() }

func (m *MinInterval) FetchQuote(ctx context.Context, symbol string) (models.Quote, error) {
	if err := m.gate(ctx); err != nil {
		return models.Quote{}, err
	}
	defer m.mark()
	return m.P.FetchQuote(ctx, symbol)
}

func (m *MinInterval) FetchHistory(ctx context.Context, symbol string, days int) ([]models.HistoryPoint, error) {
	if err := m.gate(ctx); err != nil {
		return nil, err
	}
	defer m.mark()
	return m.P.FetchHistory(ctx, symbol, days)
}

func (m *MinInterval) gate(ctx context.Context) error {
	if m.Interval <= 0 {
		return nil
	}
	m.mu.Lock()
	wait := time.Until(m.last.Add(m.Interval))
	m.mu.Unlock()
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (m *MinInterval) mark() {
	if m.Interval <= 0 {
		return
	}
	m.mu.Lock()
	m.last = time.Now()
	m.mu.Unlock()
}
