package models

// All lists every model owned or read by the engine, in migration order.
func All() []any {
	return []any{
		&Quote{},
		&HistoryPoint{},
		&SymbolMetadata{},
		&User{},
		&Portfolio{},
		&Holding{},
		&PortfolioSnapshot{},
	}
}
