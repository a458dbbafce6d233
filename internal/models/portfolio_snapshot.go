package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioSnapshot is the summed value of all of a user's holdings on one day.
type PortfolioSnapshot struct {
	ID     string    `gorm:"primaryKey;type:text" json:"id"`
	UserID string    `gorm:"type:text;not null;uniqueIndex:idx_snapshot_user_date,priority:1" json:"user_id"`
	Date   time.Time `gorm:"type:date;not null;uniqueIndex:idx_snapshot_user_date,priority:2" json:"date"`

	TotalValue decimal.Decimal `gorm:"type:numeric(24,6);not null" json:"total_value"`
	TotalCost  decimal.Decimal `gorm:"type:numeric(24,6);not null" json:"total_cost"`
	DayGain    decimal.Decimal `gorm:"type:numeric(24,6);not null" json:"day_gain"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PortfolioSnapshot) TableName() string {
	return "portfolio_snapshots"
}
