package repository

import (
	"context"
	"time"

	"portfoliotracker/internal/models"
)

// Getters return (nil, nil) when the row does not exist.

type QuoteRepository interface {
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
	UpsertQuote(ctx context.Context, item *models.Quote) error
}

type HistoryRepository interface {
	GetSymbolMetadata(ctx context.Context, symbol string) (*models.SymbolMetadata, error)
	// UpsertSymbolName sets the display name without touching freshness.
	UpsertSymbolName(ctx context.Context, symbol, name string) error
	// ListHistorySince returns points dated on or after since, oldest first.
	ListHistorySince(ctx context.Context, symbol string, since time.Time) ([]models.HistoryPoint, error)
	// ReplaceHistory atomically deletes every point of the symbol, inserts
	// points (skipping duplicate dates) and upserts meta.
	ReplaceHistory(ctx context.Context, symbol string, points []models.HistoryPoint, meta models.SymbolMetadata) error
}

type PortfolioRepository interface {
	ListPortfoliosWithHoldings(ctx context.Context, userID string) ([]models.Portfolio, error)
	ListActiveUserIDs(ctx context.Context) ([]string, error)
}

type SnapshotRepository interface {
	// UpsertSnapshot inserts or overwrites the (user, date) row.
	UpsertSnapshot(ctx context.Context, item *models.PortfolioSnapshot) error
	// ListSnapshotsSince returns rows dated on or after since, oldest first.
	ListSnapshotsSince(ctx context.Context, userID string, since time.Time) ([]models.PortfolioSnapshot, error)
}

type Repository interface {
	QuoteRepository
	HistoryRepository
	PortfolioRepository
	SnapshotRepository
	Ping(ctx context.Context) error
}
