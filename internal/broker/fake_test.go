package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"broker_go/internal/domain"
	"broker_go/internal/infra"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetry() infra.RetryOptions {
	return infra.RetryOptions{Factor: 1.2, Min: time.Millisecond, Max: 2 * time.Millisecond}
}

type fakeVenueOrder struct {
	amount   decimal.Decimal
	price    decimal.Decimal
	executed bool
}

// fakeVenue is a minimal scripted exchange for broker-level tests.
// Placed orders execute immediately when fillOnPlace is set.
type fakeVenue struct {
	mu          sync.Mutex
	capability  domain.Capability
	ticker      domain.Ticker
	tickerErrs  int
	fillOnPlace bool
	nextID      int
	orders      map[string]*fakeVenueOrder
	balances    []domain.Balance
	fee         decimal.Decimal
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{
		capability: domain.Capability{
			Name:       "fake",
			Currencies: []string{"USD"},
			Assets:     []string{"BTC"},
			Markets: []domain.MarketPair{{
				Currency:       "USD",
				Asset:          "BTC",
				MinAmount:      d("0.1"),
				MinPrice:       d("1"),
				TickSize:       d("1"),
				AmountDecimals: 8,
			}},
			Tradable: true,
			Interval: time.Millisecond,
		},
		ticker: domain.Ticker{Bid: d("100"), Ask: d("110")},
		orders: make(map[string]*fakeVenueOrder),
		balances: []domain.Balance{
			{Name: "USD", Amount: d("10000")},
			{Name: "BTC", Amount: d("2")},
		},
		fee: d("0.0025"),
	}
}

func (e *fakeVenue) Capabilities() domain.Capability {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.capability
}

func (e *fakeVenue) GetTicker(ctx context.Context) (domain.Ticker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tickerErrs > 0 {
		e.tickerErrs--
		return domain.Ticker{}, domain.NewExchangeError("getTicker", errors.New("venue down"))
	}
	return e.ticker, nil
}

func (e *fakeVenue) Buy(ctx context.Context, amount, price decimal.Decimal) (string, error) {
	return e.place(amount, price)
}

func (e *fakeVenue) Sell(ctx context.Context, amount, price decimal.Decimal) (string, error) {
	return e.place(amount, price)
}

func (e *fakeVenue) place(amount, price decimal.Decimal) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := fmt.Sprintf("ord-%d", e.nextID)
	e.orders[id] = &fakeVenueOrder{amount: amount, price: price, executed: e.fillOnPlace}
	return id, nil
}

func (e *fakeVenue) CheckOrder(ctx context.Context, id string) (domain.CheckResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ord, ok := e.orders[id]
	if !ok {
		return domain.CheckResult{}, domain.NewExchangeError("checkOrder", fmt.Errorf("unknown order %s", id))
	}
	filled := decimal.Zero
	if ord.executed {
		filled = ord.amount
	}
	return domain.CheckResult{Executed: ord.executed, Open: !ord.executed, Filled: &filled}, nil
}

func (e *fakeVenue) CancelOrder(ctx context.Context, id string) (domain.CancelResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ord, ok := e.orders[id]
	if !ok {
		return domain.CancelResult{}, domain.NewExchangeError("cancelOrder", fmt.Errorf("unknown order %s", id))
	}
	if ord.executed {
		return domain.CancelResult{Filled: true}, nil
	}
	zero := decimal.Zero
	delete(e.orders, id)
	return domain.CancelResult{PartialFill: &zero}, nil
}

func (e *fakeVenue) GetOrder(ctx context.Context, id string) (domain.OrderRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ord, ok := e.orders[id]
	if !ok {
		return domain.OrderRecord{}, domain.NewExchangeError("getOrder", fmt.Errorf("unknown order %s", id))
	}
	return domain.OrderRecord{Price: ord.price, Amount: ord.amount, Date: time.Now()}, nil
}

func (e *fakeVenue) GetPortfolio(ctx context.Context) ([]domain.Balance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Balance, len(e.balances))
	copy(out, e.balances)
	return out, nil
}

func (e *fakeVenue) GetFee(ctx context.Context) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fee, nil
}

func (e *fakeVenue) setTicker(bid, ask string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ticker = domain.Ticker{Bid: d(bid), Ask: d(ask)}
}

func newTestBroker(t *testing.T, e *fakeVenue, cfg Config) *Broker {
	t.Helper()
	b, err := New(e, cfg, testLogger(), fastRetry())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return b
}
