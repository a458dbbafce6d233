// Package memory is an in-process Repository. It backs tests and the
// "memory" database driver; nothing survives a restart.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"portfoliotracker/internal/clock"
	"portfoliotracker/internal/models"
	"portfoliotracker/internal/repository"
)

var _ repository.Repository = (*Store)(nil)

type Store struct {
	mu         sync.RWMutex
	quotes     map[string]models.Quote
	meta       map[string]models.SymbolMetadata
	history    map[string]map[string]models.HistoryPoint
	users      map[string]models.User
	portfolios map[string]models.Portfolio
	snapshots  map[string]map[string]models.PortfolioSnapshot
}

func New() *Store {
	return &Store{
		quotes:     map[string]models.Quote{},
		meta:       map[string]models.SymbolMetadata{},
		history:    map[string]map[string]models.HistoryPoint{},
		users:      map[string]models.User{},
		portfolios: map[string]models.Portfolio{},
		snapshots:  map[string]map[string]models.PortfolioSnapshot{},
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) GetQuote(_ context.Context, symbol string) (*models.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (s *Store) UpsertQuote(_ context.Context, item *models.Quote) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[item.Symbol] = *item
	return nil
}

func (s *Store) GetSymbolMetadata(_ context.Context, symbol string) (*models.SymbolMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meta[symbol]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *Store) UpsertSymbolName(_ context.Context, symbol, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.meta[symbol]
	m.Symbol = symbol
	m.Name = name
	s.meta[symbol] = m
	return nil
}

// PutSymbolMetadata stores m as is.
func (s *Store) PutSymbolMetadata(m models.SymbolMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[m.Symbol] = m
}

func (s *Store) ListHistorySince(_ context.Context, symbol string, since time.Time) ([]models.HistoryPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.HistoryPoint
	for _, p := range s.history[symbol] {
		if p.Date.Before(since) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) ReplaceHistory(_ context.Context, symbol string, points []models.HistoryPoint, meta models.SymbolMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[string]models.HistoryPoint, len(points))
	for _, p := range points {
		p.Symbol = symbol
		key := clock.DayKey(p.Date)
		if _, dup := set[key]; dup {
			continue
		}
		set[key] = p
	}
	s.history[symbol] = set

	prev := s.meta[symbol]
	meta.Symbol = symbol
	if meta.Name == "" {
		meta.Name = prev.Name
	}
	s.meta[symbol] = meta
	return nil
}

// PutHistory adds points without touching metadata.
func (s *Store) PutHistory(points ...models.HistoryPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		set, ok := s.history[p.Symbol]
		if !ok {
			set = map[string]models.HistoryPoint{}
			s.history[p.Symbol] = set
		}
		set[clock.DayKey(p.Date)] = p
	}
}

// PutUser stores a user.
func (s *Store) PutUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// PutPortfolio stores a portfolio with its holdings.
func (s *Store) PutPortfolio(p models.Portfolio) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range p.Holdings {
		p.Holdings[i].PortfolioID = p.ID
	}
	s.portfolios[p.ID] = p
}

func (s *Store) ListPortfoliosWithHoldings(_ context.Context, userID string) ([]models.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Portfolio
	for _, p := range s.portfolios {
		if p.UserID != userID {
			continue
		}
		p.Holdings = slices.Clone(p.Holdings)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListActiveUserIDs(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for id, u := range s.users {
		if u.Active {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (s *Store) UpsertSnapshot(_ context.Context, item *models.PortfolioSnapshot) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.snapshots[item.UserID]
	if !ok {
		rows = map[string]models.PortfolioSnapshot{}
		s.snapshots[item.UserID] = rows
	}
	key := clock.DayKey(item.Date)
	if prev, ok := rows[key]; ok {
		item.ID = prev.ID
		item.CreatedAt = prev.CreatedAt
	}
	rows[key] = *item
	return nil
}

func (s *Store) ListSnapshotsSince(_ context.Context, userID string, since time.Time) ([]models.PortfolioSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.PortfolioSnapshot
	for _, row := range s.snapshots[userID] {
		if row.Date.Before(since) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// SnapshotCount returns the number of stored rows for the user.
func (s *Store) SnapshotCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots[strings.TrimSpace(userID)])
}
