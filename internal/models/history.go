package models

import "time"

// HistoryPoint is one daily OHLCV bar. Date has no time component.
type HistoryPoint struct {
	Symbol   string    `gorm:"primaryKey;type:text" json:"symbol"`
	Date     time.Time `gorm:"primaryKey;type:date" json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `gorm:"not null" json:"close"`
	AdjClose float64   `json:"adj_close"`
	Volume   int64     `json:"volume"`
}

func (HistoryPoint) TableName() string {
	return "market_history"
}

// SymbolMetadata tracks the freshness of the persisted history of a symbol.
type SymbolMetadata struct {
	Symbol           string     `gorm:"primaryKey;type:text" json:"symbol"`
	Name             string     `gorm:"type:text" json:"name,omitempty"`
	HistoryStartDate *time.Time `gorm:"type:date" json:"history_start_date,omitempty"`
	HistoryEndDate   *time.Time `gorm:"type:date" json:"history_end_date,omitempty"`
	LastFetchedAt    *time.Time `gorm:"index" json:"last_fetched_at,omitempty"`
}

func (SymbolMetadata) TableName() string {
	return "symbol_metadata"
}

// FetchedWithin reports whether history was fetched less than window before now.
func (m *SymbolMetadata) FetchedWithin(now time.Time, window time.Duration) bool {
	if m == nil || m.LastFetchedAt == nil {
		return false
	}
	return now.Sub(*m.LastFetchedAt) < window
}
