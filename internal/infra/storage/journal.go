// Package storage persists completed orders and their trades to a local
// SQLite journal.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"broker_go/internal/domain"
)

// Journal is the append-mostly record of everything the execution core
// completed. One OrderRow per logical order, one TradeRow per suborder
// trade.
type Journal struct {
	db *gorm.DB
}

// NewJournal opens (and migrates) the SQLite journal at path.
func NewJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if err := db.AutoMigrate(&domain.OrderRow{}, &domain.TradeRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}

	return &Journal{db: db}, nil
}

// TradeRecord pairs an exchange order id with its authoritative trade.
type TradeRecord struct {
	ExchangeID string
	Record     domain.OrderRecord
}

// SaveOrder writes a completed order and its trades in one transaction
// and returns the new row id.
func (j *Journal) SaveOrder(exchange, pair string, typ domain.OrderType, sum domain.Summary, trades []TradeRecord) (uint, error) {
	row := domain.OrderRow{
		Exchange:    exchange,
		Pair:        pair,
		Type:        string(typ),
		Side:        string(sum.Side),
		Status:      sum.Status.String(),
		Amount:      sum.Amount.String(),
		Filled:      sum.Amount.String(),
		AvgPrice:    sum.Price.String(),
		FeePercent:  sum.FeePercent.String(),
		Suborders:   sum.Suborders,
		CompletedAt: time.Now(),
	}

	err := j.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		for _, t := range trades {
			tr := domain.TradeRow{
				OrderRowID: row.ID,
				ExchangeID: t.ExchangeID,
				Price:      t.Record.Price.String(),
				Amount:     t.Record.Amount.String(),
				Date:       t.Record.Date,
			}
			if err := tx.Create(&tr).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to save order: %w", err)
	}
	return row.ID, nil
}

// RecentOrders returns the latest completed orders, newest first.
func (j *Journal) RecentOrders(limit int) ([]domain.OrderRow, error) {
	var rows []domain.OrderRow
	err := j.db.Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// TradesFor returns the trades of one journaled order.
func (j *Journal) TradesFor(orderID uint) ([]domain.TradeRow, error) {
	var rows []domain.TradeRow
	err := j.db.Where("order_row_id = ?", orderID).Order("id ASC").Find(&rows).Error
	return rows, err
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
