// Package paper implements an in-memory exchange for paper trading.
// Resting orders fill when the simulated book crosses their price, so
// the full order lifecycle can run without touching a real venue.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"broker_go/internal/domain"
	"broker_go/internal/infra"
)

type restingOrder struct {
	side    domain.Side
	amount  decimal.Decimal
	price   decimal.Decimal
	filled  decimal.Decimal
	open    bool
	created time.Time
}

// Exchange is a self-contained paper venue for one market.
type Exchange struct {
	log        *slog.Logger
	market     domain.MarketPair
	capability domain.Capability
	fee        decimal.Decimal

	mu       sync.Mutex
	ticker   domain.Ticker
	balances map[string]decimal.Decimal
	nextID   int
	orders   map[string]*restingOrder
}

// New builds a paper exchange seeded with a BTC/USDT book around 30000
// and a funded account.
func New(log *slog.Logger) *Exchange {
	market := domain.MarketPair{
		Currency:       "USDT",
		Asset:          "BTC",
		MinAmount:      decimal.RequireFromString("0.0001"),
		MinPrice:       decimal.RequireFromString("0.01"),
		TickSize:       decimal.RequireFromString("0.01"),
		AmountDecimals: 6,
	}

	return &Exchange{
		log:    infra.Component(log, "paper"),
		market: market,
		capability: domain.Capability{
			Name:       "paper",
			Currencies: []string{market.Currency},
			Assets:     []string{market.Asset},
			Markets:    []domain.MarketPair{market},
			Tradable:   true,
			Interval:   500 * time.Millisecond,
		},
		fee:    decimal.RequireFromString("0.001"),
		ticker: domain.Ticker{Bid: decimal.RequireFromString("30000"), Ask: decimal.RequireFromString("30001")},
		balances: map[string]decimal.Decimal{
			market.Currency: decimal.RequireFromString("100000"),
			market.Asset:    decimal.RequireFromString("5"),
		},
		orders: make(map[string]*restingOrder),
	}
}

func (e *Exchange) Capabilities() domain.Capability {
	return e.capability
}

func (e *Exchange) GetTicker(ctx context.Context) (domain.Ticker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ticker, nil
}

func (e *Exchange) Buy(ctx context.Context, amount, price decimal.Decimal) (string, error) {
	return e.place(domain.SideBuy, amount, price)
}

func (e *Exchange) Sell(ctx context.Context, amount, price decimal.Decimal) (string, error) {
	return e.place(domain.SideSell, amount, price)
}

func (e *Exchange) place(side domain.Side, amount, price decimal.Decimal) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	op := string(side)
	if !e.market.IsValidOrder(amount, price) {
		return "", domain.NewExchangeError(op, fmt.Errorf("order below market minimum: %s@%s", amount, price))
	}

	// Funds are checked up front but only settled on fill.
	if side == domain.SideBuy {
		cost := amount.Mul(price)
		if e.balances[e.market.Currency].LessThan(cost) {
			return "", domain.NewInsufficientFundsError(op, fmt.Errorf("need %s %s", cost, e.market.Currency))
		}
	} else {
		if e.balances[e.market.Asset].LessThan(amount) {
			return "", domain.NewInsufficientFundsError(op, fmt.Errorf("need %s %s", amount, e.market.Asset))
		}
	}

	e.nextID++
	id := fmt.Sprintf("paper-%d", e.nextID)
	e.orders[id] = &restingOrder{
		side:    side,
		amount:  amount,
		price:   price,
		open:    true,
		created: time.Now(),
	}
	e.matchLocked()
	return id, nil
}

// matchLocked fills every resting order the current book crosses.
func (e *Exchange) matchLocked() {
	for id, ord := range e.orders {
		if !ord.open {
			continue
		}
		crossed := (ord.side == domain.SideBuy && e.ticker.Ask.LessThanOrEqual(ord.price)) ||
			(ord.side == domain.SideSell && e.ticker.Bid.GreaterThanOrEqual(ord.price))
		if !crossed {
			continue
		}

		ord.filled = ord.amount
		ord.open = false
		e.settleLocked(ord)
		e.log.Debug("paper fill",
			slog.String("id", id),
			slog.String("side", string(ord.side)),
			slog.String("price", ord.price.String()),
			slog.String("amount", ord.amount.String()))
	}
}

func (e *Exchange) settleLocked(ord *restingOrder) {
	cost := ord.amount.Mul(ord.price)
	fee := cost.Mul(e.fee)
	if ord.side == domain.SideBuy {
		e.balances[e.market.Currency] = e.balances[e.market.Currency].Sub(cost).Sub(fee)
		e.balances[e.market.Asset] = e.balances[e.market.Asset].Add(ord.amount)
	} else {
		e.balances[e.market.Asset] = e.balances[e.market.Asset].Sub(ord.amount)
		e.balances[e.market.Currency] = e.balances[e.market.Currency].Add(cost).Sub(fee)
	}
}

func (e *Exchange) CheckOrder(ctx context.Context, id string) (domain.CheckResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ord, ok := e.orders[id]
	if !ok {
		return domain.CheckResult{}, domain.NewExchangeError("checkOrder", fmt.Errorf("unknown order %s", id))
	}
	filled := ord.filled
	return domain.CheckResult{
		Executed: !ord.open && ord.filled.Equal(ord.amount),
		Open:     ord.open,
		Filled:   &filled,
	}, nil
}

func (e *Exchange) CancelOrder(ctx context.Context, id string) (domain.CancelResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ord, ok := e.orders[id]
	if !ok {
		return domain.CancelResult{}, domain.NewExchangeError("cancelOrder", fmt.Errorf("unknown order %s", id))
	}
	if !ord.open && ord.filled.Equal(ord.amount) {
		return domain.CancelResult{Filled: true}, nil
	}
	ord.open = false
	partial := ord.filled
	return domain.CancelResult{PartialFill: &partial}, nil
}

func (e *Exchange) GetOrder(ctx context.Context, id string) (domain.OrderRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ord, ok := e.orders[id]
	if !ok {
		return domain.OrderRecord{}, domain.NewExchangeError("getOrder", fmt.Errorf("unknown order %s", id))
	}

	cost := ord.filled.Mul(ord.price)
	return domain.OrderRecord{
		Price:  ord.price,
		Amount: ord.filled,
		Date:   ord.created,
		Fees:   map[string]decimal.Decimal{e.market.Currency: cost.Mul(e.fee)},
	}, nil
}

func (e *Exchange) GetPortfolio(ctx context.Context) ([]domain.Balance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return []domain.Balance{
		{Name: e.market.Currency, Amount: e.balances[e.market.Currency]},
		{Name: e.market.Asset, Amount: e.balances[e.market.Asset]},
	}, nil
}

func (e *Exchange) GetFee(ctx context.Context) (decimal.Decimal, error) {
	return e.fee, nil
}

// SetTicker moves the simulated book and fills whatever it crosses.
func (e *Exchange) SetTicker(bid, ask decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ticker = domain.Ticker{Bid: bid, Ask: ask}
	e.matchLocked()
}

// Deposit credits a balance, for test and demo setup.
func (e *Exchange) Deposit(name string, amount decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balances[name] = e.balances[name].Add(amount)
}

// Drift random-walks the book until ctx is done. It gives demo runs a
// moving market to chase.
func (e *Exchange) Drift(ctx context.Context, interval time.Duration) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	tick := e.market.TickSize
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			steps := int64(rng.Intn(21) - 10)
			delta := tick.Mul(decimal.NewFromInt(steps))

			e.mu.Lock()
			bid := e.ticker.Bid.Add(delta)
			if bid.LessThan(e.market.MinPrice) {
				bid = e.market.MinPrice
			}
			e.ticker = domain.Ticker{Bid: bid, Ask: bid.Add(tick)}
			e.matchLocked()
			e.mu.Unlock()
		}
	}
}
