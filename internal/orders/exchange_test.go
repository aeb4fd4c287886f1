package orders

import (
	"context"
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

func testMarket() domain.MarketPair {
	return domain.MarketPair{
		Currency:       "USD",
		Asset:          "BTC",
		MinAmount:      d("0.1"),
		MinPrice:       d("1"),
		TickSize:       d("1"),
		AmountDecimals: 8,
	}
}

type fakeOrder struct {
	side      domain.Side
	amount    decimal.Decimal
	price     decimal.Decimal
	filled    decimal.Decimal
	executed  bool
	cancelled bool
}

type placement struct {
	id     string
	price  decimal.Decimal
	amount decimal.Decimal
}

type buyGate struct {
	entered chan struct{}
	release chan struct{}
}

// fakeExchange is a scripted in-memory venue. Tests drive it by filling
// or executing orders between polls and by moving the ticker.
type fakeExchange struct {
	mu         sync.Mutex
	capability domain.Capability
	ticker     domain.Ticker
	nextID     int
	orders     map[string]*fakeOrder
	placements []placement

	gate      *buyGate
	placeErrs []error
	// lateFill materializes at cancel time but is not reported in the
	// cancel response, modelling venues with limited cancel confirmation.
	lateFill map[string]decimal.Decimal
	records  map[string]domain.OrderRecord
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		capability: domain.Capability{
			Name:       "fake",
			Currencies: []string{"USD"},
			Assets:     []string{"BTC"},
			Markets:    []domain.MarketPair{testMarket()},
			Tradable:   true,
			Interval:   2 * time.Millisecond,
		},
		ticker:   domain.Ticker{Bid: d("100"), Ask: d("110")},
		orders:   make(map[string]*fakeOrder),
		lateFill: make(map[string]decimal.Decimal),
		records:  make(map[string]domain.OrderRecord),
	}
}

func (e *fakeExchange) Capabilities() domain.Capability {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.capability
}

func (e *fakeExchange) GetTicker(ctx context.Context) (domain.Ticker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ticker, nil
}

func (e *fakeExchange) Buy(ctx context.Context, amount, price decimal.Decimal) (string, error) {
	return e.place(domain.SideBuy, amount, price)
}

func (e *fakeExchange) Sell(ctx context.Context, amount, price decimal.Decimal) (string, error) {
	return e.place(domain.SideSell, amount, price)
}

func (e *fakeExchange) place(side domain.Side, amount, price decimal.Decimal) (string, error) {
	e.mu.Lock()
	if g := e.gate; g != nil {
		e.gate = nil
		e.mu.Unlock()
		g.entered <- struct{}{}
		<-g.release
		e.mu.Lock()
	}
	if len(e.placeErrs) > 0 {
		err := e.placeErrs[0]
		e.placeErrs = e.placeErrs[1:]
		if err != nil {
			e.mu.Unlock()
			return "", err
		}
	}
	e.nextID++
	id := fmt.Sprintf("ord-%d", e.nextID)
	e.orders[id] = &fakeOrder{side: side, amount: amount, price: price}
	e.placements = append(e.placements, placement{id: id, price: price, amount: amount})
	e.mu.Unlock()
	return id, nil
}

func (e *fakeExchange) CheckOrder(ctx context.Context, id string) (domain.CheckResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ord, ok := e.orders[id]
	if !ok {
		return domain.CheckResult{}, domain.NewExchangeError("checkOrder", fmt.Errorf("unknown order %s", id))
	}
	filled := ord.filled
	return domain.CheckResult{
		Executed: ord.executed,
		Open:     !ord.executed && !ord.cancelled,
		Filled:   &filled,
	}, nil
}

func (e *fakeExchange) CancelOrder(ctx context.Context, id string) (domain.CancelResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ord, ok := e.orders[id]
	if !ok {
		return domain.CancelResult{}, domain.NewExchangeError("cancelOrder", fmt.Errorf("unknown order %s", id))
	}
	if ord.executed {
		return domain.CancelResult{Filled: true}, nil
	}
	snap := ord.filled
	if lf, ok := e.lateFill[id]; ok {
		ord.filled = lf
		delete(e.lateFill, id)
	}
	ord.cancelled = true
	return domain.CancelResult{PartialFill: &snap}, nil
}

func (e *fakeExchange) GetOrder(ctx context.Context, id string) (domain.OrderRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rec, ok := e.records[id]; ok {
		return rec, nil
	}
	ord, ok := e.orders[id]
	if !ok {
		return domain.OrderRecord{}, domain.NewExchangeError("getOrder", fmt.Errorf("unknown order %s", id))
	}
	return domain.OrderRecord{Price: ord.price, Amount: ord.filled, Date: time.Now()}, nil
}

func (e *fakeExchange) GetPortfolio(ctx context.Context) ([]domain.Balance, error) {
	return []domain.Balance{
		{Name: "USD", Amount: d("10000")},
		{Name: "BTC", Amount: d("2")},
	}, nil
}

func (e *fakeExchange) GetFee(ctx context.Context) (decimal.Decimal, error) {
	return d("0.0025"), nil
}

// --- scripting helpers ---

func (e *fakeExchange) setTicker(bid, ask string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ticker = domain.Ticker{Bid: d(bid), Ask: d(ask)}
}

func (e *fakeExchange) fill(id, amount string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ord, ok := e.orders[id]; ok {
		ord.filled = d(amount)
	}
}

func (e *fakeExchange) execute(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ord, ok := e.orders[id]; ok {
		ord.executed = true
	}
}

func (e *fakeExchange) setRecord(id string, rec domain.OrderRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records[id] = rec
}

func (e *fakeExchange) placed() []placement {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]placement, len(e.placements))
	copy(out, e.placements)
	return out
}

// blockNextPlace makes the next Buy/Sell block until release is closed.
// The entered channel signals that the call arrived.
func (e *fakeExchange) blockNextPlace() (entered <-chan struct{}, release chan<- struct{}) {
	g := &buyGate{entered: make(chan struct{}, 1), release: make(chan struct{})}
	e.mu.Lock()
	e.gate = g
	e.mu.Unlock()
	return g.entered, g.release
}

func (e *fakeExchange) queuePlaceError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.placeErrs = append(e.placeErrs, err)
}

// --- observation helpers ---

type completion struct {
	state  domain.OrderState
	filled decimal.Decimal
}

func watchCompleted(o Order) <-chan completion {
	ch := make(chan completion, 4)
	o.Events().OnCompleted(func(s domain.OrderState, filled decimal.Decimal) {
		ch <- completion{state: s, filled: filled}
	})
	return ch
}

func watchSuborders(o Order) <-chan placement {
	ch := make(chan placement, 16)
	o.Events().OnSuborder(func(id string, price decimal.Decimal) {
		ch <- placement{id: id, price: price}
	})
	return ch
}

func watchFills(o Order) <-chan decimal.Decimal {
	ch := make(chan decimal.Decimal, 16)
	o.Events().OnFill(func(filled decimal.Decimal) {
		ch <- filled
	})
	return ch
}

func awaitCompletion(t *testing.T, ch <-chan completion) completion {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("order did not complete in time")
		return completion{}
	}
}

func awaitSuborder(t *testing.T, ch <-chan placement) placement {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no suborder confirmed in time")
		return placement{}
	}
}

func awaitFill(t *testing.T, ch <-chan decimal.Decimal) decimal.Decimal {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no fill event in time")
		return decimal.Zero
	}
}
