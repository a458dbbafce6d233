package models

// User, Portfolio and Holding are owned by the surrounding application.
// The engine only reads them.
type User struct {
	ID     string `gorm:"primaryKey;type:text"`
	Email  string `gorm:"type:text;uniqueIndex"`
	Active bool   `gorm:"not null;default:true;index"`
}

func (User) TableName() string {
	return "users"
}

type Portfolio struct {
	ID       string    `gorm:"primaryKey;type:text"`
	UserID   string    `gorm:"type:text;index;not null"`
	Name     string    `gorm:"type:text"`
	Holdings []Holding `gorm:"foreignKey:PortfolioID"`
}

func (Portfolio) TableName() string {
	return "portfolios"
}

type Holding struct {
	ID           string  `gorm:"primaryKey;type:text"`
	PortfolioID  string  `gorm:"type:text;index;not null"`
	Symbol       string  `gorm:"type:text;not null"`
	Shares       float64 `gorm:"not null"`
	AvgCostBasis float64 `gorm:"not null;default:0"`
}

func (Holding) TableName() string {
	return "holdings"
}
