package gormrepository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"portfoliotracker/internal/models"
	"portfoliotracker/internal/repository"
)

var _ repository.Repository = (*Store)(nil)

const historyBatchSize = 500

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("database not configured")
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// --- quotes ---------------------------------------------------------------

func (s *Store) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Quote
	err := s.db.WithContext(ctx).Where("symbol = ?", symbol).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertQuote(ctx context.Context, item *models.Quote) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name",
			"price",
			"previous_close",
			"open",
			"high",
			"low",
			"volume",
			"market_cap",
			"change_amount",
			"change_percent",
			"source",
			"updated_at",
		}),
	}).Create(item).Error
}

// --- history --------------------------------------------------------------

func (s *Store) GetSymbolMetadata(ctx context.Context, symbol string) (*models.SymbolMetadata, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.SymbolMetadata
	err := s.db.WithContext(ctx).Where("symbol = ?", symbol).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertSymbolName(ctx context.Context, symbol, name string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"name"}),
	}).Create(&models.SymbolMetadata{Symbol: symbol, Name: name}).Error
}

func (s *Store) ListHistorySince(ctx context.Context, symbol string, since time.Time) ([]models.HistoryPoint, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.HistoryPoint
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND date >= ?", symbol, since).
		Order("date ASC").
		Find(&items).Error
	return items, err
}

func (s *Store) ReplaceHistory(ctx context.Context, symbol string, points []models.HistoryPoint, meta models.SymbolMetadata) error {
	meta.Symbol = symbol
	rows := make([]models.HistoryPoint, len(points))
	for i, p := range points {
		p.Symbol = symbol
		rows[i] = p
	}
	return s.InTx(ctx, func(tx *gorm.DB) error {
		if err := s.DeleteHistoryTx(ctx, tx, symbol); err != nil {
			return err
		}
		if err := s.InsertHistoryTx(ctx, tx, rows); err != nil {
			return err
		}
		return s.UpsertSymbolMetadataTx(ctx, tx, &meta)
	})
}

func (s *Store) DeleteHistoryTx(ctx context.Context, tx *gorm.DB, symbol string) error {
	if tx == nil {
		return nil
	}
	return tx.WithContext(ctx).Where("symbol = ?", symbol).Delete(&models.HistoryPoint{}).Error
}

// InsertHistoryTx inserts points in batches; rows colliding on (symbol, date)
// are skipped.
func (s *Store) InsertHistoryTx(ctx context.Context, tx *gorm.DB, points []models.HistoryPoint) error {
	if tx == nil {
		return nil
	}
	db := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Session(&gorm.Session{})
	return createInBatches(db, points, historyBatchSize)
}

func (s *Store) UpsertSymbolMetadataTx(ctx context.Context, tx *gorm.DB, item *models.SymbolMetadata) error {
	if tx == nil || item == nil {
		return nil
	}
	cols := []string{"history_start_date", "history_end_date", "last_fetched_at"}
	if item.Name != "" {
		cols = append(cols, "name")
	}
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns(cols),
	}).Create(item).Error
}

// --- portfolios -----------------------------------------------------------

func (s *Store) ListPortfoliosWithHoldings(ctx context.Context, userID string) ([]models.Portfolio, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Portfolio
	err := s.db.WithContext(ctx).
		Preload("Holdings").
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (s *Store) ListActiveUserIDs(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("active = ?", true).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// --- snapshots ------------------------------------------------------------

// UpsertSnapshot writes item and then reloads its ID and CreatedAt, which
// belong to the existing row when (user_id, date) was already recorded.
func (s *Store) UpsertSnapshot(ctx context.Context, item *models.PortfolioSnapshot) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.InTx(ctx, func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"total_value", "total_cost", "day_gain", "updated_at"}),
		}).Create(item).Error
		if err != nil {
			return err
		}
		var stored models.PortfolioSnapshot
		err = tx.Select("id", "created_at").
			Where("user_id = ? AND date = ?", item.UserID, item.Date).
			Take(&stored).Error
		if err != nil {
			return err
		}
		item.ID = stored.ID
		item.CreatedAt = stored.CreatedAt
		return nil
	})
}

func (s *Store) ListSnapshotsSince(ctx context.Context, userID string, since time.Time) ([]models.PortfolioSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.PortfolioSnapshot
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND date >= ?", userID, since).
		Order("date ASC").
		Find(&items).Error
	return items, err
}

func createInBatches[T any](db *gorm.DB, items []T, batchSize int) error {
	if len(items) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	for i := 0; i < len(items); i += batchSize {
		end := min(i+batchSize, len(items))
		if err := db.CreateInBatches(items[i:end], batchSize).Error; err != nil {
			return err
		}
	}
	return nil
}
