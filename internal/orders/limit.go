package orders

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"broker_go/internal/domain"
	"broker_go/internal/infra"
	"broker_go/pkg/quant"
)

// LimitParams configures a limit order.
type LimitParams struct {
	Price decimal.Decimal
	// PostOnly rejects the order up front when the price would cross the
	// book and execute immediately as a taker.
	PostOnly bool
}

// LimitOrder posts a single order at a fixed price and watches it until
// it fills or is cancelled. It never repositions itself; use the sticky
// order for that.
type LimitOrder struct {
	base

	amount   decimal.Decimal
	price    decimal.Decimal
	postOnly bool

	id       string
	filled   decimal.Decimal
	inFlight bool
	checking bool
	// cancelPending records a Cancel issued while a round trip is in
	// flight.
	cancelPending bool
	created       bool

	pollTimer    *time.Timer
	pollInterval time.Duration
	sumLimiter   *infra.RateLimiter

	ctx context.Context
}

// NewLimit builds a limit order at the given price.
func NewLimit(ex domain.Exchange, market domain.MarketPair, side domain.Side, amount decimal.Decimal, log *slog.Logger, retry infra.RetryOptions, params LimitParams) *LimitOrder {
	interval := ex.Capabilities().Interval
	if interval <= 0 {
		interval = time.Second
	}

	return &LimitOrder{
		base:         newBase(ex, market, side, infra.Component(log, "limit", "side", string(side)), retry),
		amount:       quant.RoundAmount(amount, market.AmountDecimals),
		price:        quant.SnapPrice(params.Price, market.TickSize),
		postOnly:     params.PostOnly,
		pollInterval: interval,
		sumLimiter:   infra.NewRateLimiter(1, 1.0/interval.Seconds()),
	}
}

// Create submits the order once and starts watching it.
func (o *LimitOrder) Create(ctx context.Context) {
	o.mu.Lock()
	if o.created || o.done {
		o.mu.Unlock()
		return
	}
	o.created = true
	o.ctx = ctx

	if o.postOnly && o.ticker != nil && o.wouldCrossLocked(*o.ticker) {
		o.finalizeLocked(domain.StateRejected, decimal.Zero)
		o.mu.Unlock()
		o.flush()
		return
	}

	o.inFlight = true
	o.setStatusLocked(domain.StateSubmitted)
	o.mu.Unlock()
	o.flush()

	infra.GlobalMetrics.RecordOrderCreated()

	id, outcome, err := o.submit(ctx, o.amount, o.price, decimal.Zero)

	o.mu.Lock()
	o.inFlight = false
	if o.done {
		o.mu.Unlock()
		return
	}
	if err != nil {
		o.failLocked(err, decimal.Zero)
		o.mu.Unlock()
		o.flush()
		return
	}
	if outcome != submitPlaced {
		o.finalizeLocked(domain.StateRejected, decimal.Zero)
		o.mu.Unlock()
		o.flush()
		return
	}

	o.id = id
	o.queueLocked(SuborderEvent{ID: id, Price: o.price})
	o.setStatusLocked(domain.StateOpen)
	if o.cancelPending {
		o.cancelPending = false
		o.mu.Unlock()
		o.flush()
		o.doCancel(ctx)
		return
	}
	o.schedulePollLocked()
	o.mu.Unlock()
	o.flush()
}

// Cancel requests cancellation, deferring it while the creation round
// trip is still in flight.
func (o *LimitOrder) Cancel() {
	o.mu.Lock()
	if o.done {
		o.mu.Unlock()
		return
	}
	if o.inFlight {
		o.cancelPending = true
		o.mu.Unlock()
		return
	}
	o.clearPollLocked()
	o.mu.Unlock()

	go o.doCancel(o.context())
}

// Summary fetches the authoritative trade record of the posted order.
func (o *LimitOrder) Summary(ctx context.Context) (domain.Summary, error) {
	o.mu.Lock()
	id := o.id
	sum := domain.Summary{
		Side:   o.side,
		Amount: o.filled,
		Price:  o.price,
		Status: o.state,
		Fees:   make(map[string]decimal.Decimal),
	}
	hasFill := o.filled.Sign() > 0
	o.mu.Unlock()

	if id == "" || !hasFill {
		return sum, nil
	}
	sum.Suborders = 1

	if err := o.sumLimiter.Wait(ctx); err != nil {
		return domain.Summary{}, err
	}
	rec, err := infra.Retry(ctx, o.log, "getOrder", o.retry, func(ctx context.Context) (domain.OrderRecord, error) {
		return o.ex.GetOrder(ctx, id)
	})
	if err != nil {
		return domain.Summary{}, err
	}

	sum.Price = rec.Price
	for cur, fee := range rec.Fees {
		sum.Fees[cur] = sum.Fees[cur].Add(fee)
	}
	if rec.FeePercent != nil {
		sum.FeePercent = *rec.FeePercent
	}
	return sum, nil
}

func (o *LimitOrder) context() context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ctx != nil {
		return o.ctx
	}
	return context.Background()
}

func (o *LimitOrder) wouldCrossLocked(t domain.Ticker) bool {
	if o.side == domain.SideBuy {
		return o.price.GreaterThanOrEqual(t.Ask)
	}
	return o.price.LessThanOrEqual(t.Bid)
}

func (o *LimitOrder) poll() {
	ctx := o.context()

	o.mu.Lock()
	if o.done || o.inFlight || o.checking || o.id == "" {
		o.mu.Unlock()
		return
	}
	o.checking = true
	id := o.id
	o.mu.Unlock()

	res, err := infra.Retry(ctx, o.log, "checkOrder", o.retry, func(ctx context.Context) (domain.CheckResult, error) {
		return o.ex.CheckOrder(ctx, id)
	})

	o.mu.Lock()
	o.checking = false
	if o.done || o.inFlight {
		o.mu.Unlock()
		return
	}
	if err != nil {
		o.failLocked(err, o.filled)
		o.mu.Unlock()
		o.flush()
		return
	}

	if res.Executed {
		o.filled = o.amount
		o.queueLocked(FillEvent{Filled: o.filled})
		o.finalizeLocked(domain.StateFilled, o.filled)
		o.mu.Unlock()
		o.flush()
		return
	}
	if !res.Open {
		o.failLocked(domain.NewExchangeError("checkOrder", errors.New("order disappeared from the book")), o.filled)
		o.mu.Unlock()
		o.flush()
		return
	}
	if res.Filled != nil && !res.Filled.Equal(o.filled) {
		o.filled = quant.Min(quant.Max(*res.Filled, decimal.Zero), o.amount)
		o.queueLocked(FillEvent{Filled: o.filled})
	}
	o.schedulePollLocked()
	o.mu.Unlock()
	o.flush()
}

func (o *LimitOrder) doCancel(ctx context.Context) {
	o.mu.Lock()
	if o.done {
		o.mu.Unlock()
		return
	}
	if o.inFlight {
		o.cancelPending = true
		o.mu.Unlock()
		return
	}
	o.inFlight = true
	o.clearPollLocked()
	id := o.id
	o.mu.Unlock()

	if id == "" {
		o.mu.Lock()
		o.inFlight = false
		o.finalizeLocked(domain.StateCancelled, o.filled)
		o.mu.Unlock()
		o.flush()
		return
	}

	res, err := infra.Retry(ctx, o.log, "cancelOrder", o.retry, func(ctx context.Context) (domain.CancelResult, error) {
		return o.ex.CancelOrder(ctx, id)
	})

	o.mu.Lock()
	o.inFlight = false
	if o.done {
		o.mu.Unlock()
		return
	}
	if err != nil {
		o.failLocked(err, o.filled)
		o.mu.Unlock()
		o.flush()
		return
	}
	if res.Filled {
		o.filled = o.amount
		o.queueLocked(FillEvent{Filled: o.filled})
		o.finalizeLocked(domain.StateFilled, o.filled)
	} else {
		if res.PartialFill != nil && !res.PartialFill.Equal(o.filled) {
			o.filled = quant.Min(quant.Max(*res.PartialFill, decimal.Zero), o.amount)
			o.queueLocked(FillEvent{Filled: o.filled})
		}
		o.finalizeLocked(domain.StateCancelled, o.filled)
	}
	o.mu.Unlock()
	o.flush()
}

func (o *LimitOrder) schedulePollLocked() {
	if o.done {
		return
	}
	o.clearPollLocked()
	o.pollTimer = time.AfterFunc(o.pollInterval, o.poll)
}

func (o *LimitOrder) clearPollLocked() {
	if o.pollTimer != nil {
		o.pollTimer.Stop()
		o.pollTimer = nil
	}
}
