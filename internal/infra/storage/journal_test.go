package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"broker_go/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("NewJournal failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func sampleSummary() domain.Summary {
	return domain.Summary{
		Side:       domain.SideBuy,
		Amount:     d("1"),
		Price:      d("101.2"),
		Fees:       map[string]decimal.Decimal{"USDT": d("0.3")},
		FeePercent: d("0.25"),
		Suborders:  2,
		Status:     domain.StateFilled,
	}
}

func TestSaveOrderAndReadBack(t *testing.T) {
	j := newTestJournal(t)

	trades := []TradeRecord{
		{ExchangeID: "ord-1", Record: domain.OrderRecord{Price: d("100"), Amount: d("0.4"), Date: time.Now()}},
		{ExchangeID: "ord-2", Record: domain.OrderRecord{Price: d("102"), Amount: d("0.6"), Date: time.Now()}},
	}
	id, err := j.SaveOrder("paper", "USDT/BTC", domain.OrderTypeSticky, sampleSummary(), trades)
	if err != nil {
		t.Fatalf("SaveOrder failed: %v", err)
	}
	if id == 0 {
		t.Fatal("SaveOrder returned a zero row id")
	}

	rows, err := j.RecentOrders(10)
	if err != nil {
		t.Fatalf("RecentOrders failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d orders, want 1", len(rows))
	}
	row := rows[0]
	if row.Status != "FILLED" || row.Side != "buy" || row.Type != "sticky" {
		t.Errorf("row = %+v, wrong status/side/type", row)
	}
	if row.AvgPrice != "101.2" || row.Suborders != 2 {
		t.Errorf("row = %+v, wrong price/suborders", row)
	}

	saved, err := j.TradesFor(id)
	if err != nil {
		t.Fatalf("TradesFor failed: %v", err)
	}
	if len(saved) != 2 {
		t.Fatalf("got %d trades, want 2", len(saved))
	}
	if saved[0].ExchangeID != "ord-1" || saved[0].Price != "100" {
		t.Errorf("first trade = %+v", saved[0])
	}
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	j := newTestJournal(t)

	for range [3]struct{}{} {
		if _, err := j.SaveOrder("paper", "USDT/BTC", domain.OrderTypeSticky, sampleSummary(), nil); err != nil {
			t.Fatalf("SaveOrder failed: %v", err)
		}
	}

	rows, err := j.RecentOrders(2)
	if err != nil {
		t.Fatalf("RecentOrders failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d orders, want 2", len(rows))
	}
	if rows[0].ID <= rows[1].ID {
		t.Errorf("orders not newest first: %d then %d", rows[0].ID, rows[1].ID)
	}
}
