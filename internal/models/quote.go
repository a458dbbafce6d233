package models

import "time"

// Quote is the latest known price for a symbol. There is one row per symbol,
// overwritten in place on every refresh.
type Quote struct {
	Symbol        string    `gorm:"primaryKey;type:text" json:"symbol"`
	Name          string    `gorm:"type:text" json:"name,omitempty"`
	Price         float64   `gorm:"not null" json:"price"`
	PreviousClose float64   `json:"previous_close"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Volume        *int64    `json:"volume,omitempty"`
	MarketCap     *float64  `json:"market_cap,omitempty"`
	ChangeAmount  float64   `json:"change_amount"`
	ChangePercent float64   `json:"change_percent"`
	Source        string    `gorm:"type:text;not null" json:"source"`
	UpdatedAt     time.Time `gorm:"not null;autoUpdateTime:false" json:"updated_at"`
}

func (Quote) TableName() string {
	return "market_quotes"
}

// Valid reports whether the quote carries a usable price.
func (q Quote) Valid() bool {
	return q.Price > 0
}
