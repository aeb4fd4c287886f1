package domain

import (
	"time"
)

// OrderRow is the journal record of one completed logical order.
// Decimal values are stored as strings; SQLite has no decimal affinity.
type OrderRow struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Exchange    string    `gorm:"index" json:"exchange"`
	Pair        string    `gorm:"index" json:"pair"`
	Type        string    `json:"type"`
	Side        string    `json:"side"`
	Status      string    `json:"status"`
	Amount      string    `json:"amount"`
	Filled      string    `json:"filled"`
	AvgPrice    string    `json:"avg_price"`
	FeePercent  string    `json:"fee_percent"`
	Suborders   int       `json:"suborders"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// TradeRow is the journal record of one suborder's authoritative trade.
type TradeRow struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	OrderRowID uint      `gorm:"index" json:"order_row_id"`
	ExchangeID string    `json:"exchange_id"`
	Price      string    `json:"price"`
	Amount     string    `json:"amount"`
	Date       time.Time `json:"date"`
}
