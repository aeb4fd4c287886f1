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

type intentKind int

const (
	intentNone intentKind = iota
	intentCancel
	intentMoveLimit
	intentMoveAmount
)

// intent is the single pending mutation recorded while an exchange round
// trip is in flight. Later requests overwrite earlier ones
// (last-write-wins on the target), except that a pending cancel is never
// displaced by a move.
type intent struct {
	kind   intentKind
	limit  decimal.Decimal
	amount decimal.Decimal
}

// StickyParams configures a sticky order.
type StickyParams struct {
	// Limit is the hard price bound. Zero means unbounded.
	Limit decimal.Decimal
	// InitialLimit quotes the very first suborder exactly at Limit.
	InitialLimit bool
	// Outbid quotes one tick better than the best bid/ask for queue
	// priority, bounded by Limit and never crossing the book.
	Outbid bool
}

// StickyOrder fills an amount at the best reachable price without
// exceeding a hard limit, by maintaining one open limit order that is
// continuously cancelled and re-created as the book moves.
type StickyOrder struct {
	base

	amount       decimal.Decimal
	limit        decimal.Decimal
	limitSet     bool
	initialLimit bool
	outbid       bool

	// suborders tracks every exchange-visible order this logical order
	// created; ids keeps insertion order for deterministic summaries.
	suborders map[string]*domain.Suborder
	ids       []string
	currentID string
	price     decimal.Decimal

	// inFlight guards creation/cancel round trips; checking guards the
	// poll so only one check runs at a time.
	inFlight bool
	checking bool
	intent   intent
	created  bool

	pollTimer    *time.Timer
	pollInterval time.Duration
	sumLimiter   *infra.RateLimiter

	ctx context.Context
}

// NewSticky builds a sticky order. The broker injects the latest ticker
// through SetTicker before starting it with Create.
func NewSticky(ex domain.Exchange, market domain.MarketPair, side domain.Side, amount decimal.Decimal, log *slog.Logger, retry infra.RetryOptions, params StickyParams) *StickyOrder {
	interval := ex.Capabilities().Interval
	if interval <= 0 {
		interval = time.Second
	}

	o := &StickyOrder{
		base:         newBase(ex, market, side, infra.Component(log, "sticky", "side", string(side)), retry),
		amount:       quant.RoundAmount(amount, market.AmountDecimals),
		suborders:    make(map[string]*domain.Suborder),
		pollInterval: interval,
		// Summary fetches trade records serially, one per poll interval,
		// to respect exchange rate limits.
		sumLimiter: infra.NewRateLimiter(1, 1.0/interval.Seconds()),
	}

	if params.Limit.Sign() > 0 {
		o.limit = quant.SnapPrice(params.Limit, market.TickSize)
		o.limitSet = true
		o.initialLimit = params.InitialLimit
	}
	o.outbid = params.Outbid

	return o
}

// Create starts the order: obtains a ticker when none was injected,
// computes the quote and submits the first suborder.
func (o *StickyOrder) Create(ctx context.Context) {
	o.mu.Lock()
	if o.created || o.done {
		o.mu.Unlock()
		return
	}
	o.created = true
	o.ctx = ctx
	needTicker := o.ticker == nil
	o.mu.Unlock()

	infra.GlobalMetrics.RecordOrderCreated()

	if needTicker {
		tk, err := infra.Retry(ctx, o.log, "getTicker", o.retry, func(ctx context.Context) (domain.Ticker, error) {
			return o.ex.GetTicker(ctx)
		})
		if err != nil {
			o.mu.Lock()
			o.failLocked(err, o.calculateFilledLocked())
			o.mu.Unlock()
			o.flush()
			return
		}
		o.SetTicker(tk)
	}

	o.createNew(ctx)
}

// MoveLimit changes the hard price bound. Deferred and coalesced when
// another mutation is mid-flight; a no-op once the order completed.
func (o *StickyOrder) MoveLimit(limit decimal.Decimal) {
	limit = quant.SnapPrice(limit, o.market.TickSize)

	o.mu.Lock()
	if o.done || o.intent.kind == intentCancel {
		o.mu.Unlock()
		return
	}
	if o.inFlight {
		o.intent = intent{kind: intentMoveLimit, limit: limit}
		o.mu.Unlock()
		return
	}
	if o.limitSet && o.limit.Equal(limit) {
		o.mu.Unlock()
		return
	}
	o.clearPollLocked()
	needMove := o.applyLimitLocked(limit)
	if !needMove {
		o.schedulePollLocked()
	}
	o.mu.Unlock()

	if needMove {
		go o.move(o.context())
	}
}

// MoveAmount changes the requested amount. Deferred and coalesced when
// another mutation is mid-flight; a no-op once the order completed.
func (o *StickyOrder) MoveAmount(amount decimal.Decimal) {
	amount = quant.RoundAmount(amount, o.market.AmountDecimals)

	o.mu.Lock()
	if o.done || o.intent.kind == intentCancel {
		o.mu.Unlock()
		return
	}
	if o.inFlight {
		o.intent = intent{kind: intentMoveAmount, amount: amount}
		o.mu.Unlock()
		return
	}
	if o.amount.Equal(amount) {
		o.mu.Unlock()
		return
	}
	o.clearPollLocked()
	finished, needMove := o.applyAmountLocked(amount)
	if !finished && !needMove {
		o.schedulePollLocked()
	}
	o.mu.Unlock()
	o.flush()

	if needMove {
		go o.move(o.context())
	}
}

// Cancel requests cancellation. Cancellation always wins over pending
// moves; issued mid-flight it is recorded and executed automatically
// once the round trip confirms.
func (o *StickyOrder) Cancel() {
	o.mu.Lock()
	if o.done {
		o.mu.Unlock()
		return
	}
	if o.inFlight {
		o.intent = intent{kind: intentCancel}
		o.mu.Unlock()
		return
	}
	o.clearPollLocked()
	o.mu.Unlock()

	go o.doCancel(o.context())
}

// CalculateFilled returns the cumulative filled amount across all
// suborders. It never exceeds the requested amount.
func (o *StickyOrder) CalculateFilled() decimal.Decimal {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calculateFilledLocked()
}

// Summary fetches the authoritative trade record of every suborder with
// a nonzero tracked fill (serially, rate limited) and aggregates the
// volume-weighted average price and fees.
func (o *StickyOrder) Summary(ctx context.Context) (domain.Summary, error) {
	o.mu.Lock()
	type entry struct {
		id     string
		filled decimal.Decimal
	}
	var entries []entry
	for _, id := range o.ids {
		sub := o.suborders[id]
		if sub != nil && sub.Filled.Sign() > 0 {
			entries = append(entries, entry{id: id, filled: sub.Filled})
		}
	}
	sum := domain.Summary{
		Side:      o.side,
		Amount:    o.calculateFilledLocked(),
		Status:    o.state,
		Suborders: len(entries),
		Fees:      make(map[string]decimal.Decimal),
	}
	o.mu.Unlock()

	var prices, weights []decimal.Decimal
	var pctValues, pctWeights []decimal.Decimal

	for _, e := range entries {
		if err := o.sumLimiter.Wait(ctx); err != nil {
			return domain.Summary{}, err
		}
		rec, err := infra.Retry(ctx, o.log, "getOrder", o.retry, func(ctx context.Context) (domain.OrderRecord, error) {
			return o.ex.GetOrder(ctx, e.id)
		})
		if err != nil {
			return domain.Summary{}, err
		}

		prices = append(prices, rec.Price)
		weights = append(weights, e.filled)

		for cur, fee := range rec.Fees {
			sum.Fees[cur] = sum.Fees[cur].Add(fee)
		}
		if rec.FeePercent != nil {
			pctValues = append(pctValues, *rec.FeePercent)
			pctWeights = append(pctWeights, e.filled)
		}
	}

	sum.Price = quant.WeightedAverage(prices, weights)
	sum.FeePercent = quant.WeightedAverage(pctValues, pctWeights)
	return sum, nil
}

// --- internals ---

func (o *StickyOrder) context() context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ctx != nil {
		return o.ctx
	}
	return context.Background()
}

func (o *StickyOrder) calculateFilledLocked() decimal.Decimal {
	total := decimal.Zero
	for _, sub := range o.suborders {
		total = total.Add(sub.Filled)
	}
	if total.GreaterThan(o.amount) {
		return o.amount
	}
	return total
}

// calculatePriceLocked selects the quote for the current book. The
// limit, when set, is a hard bound; outbidding improves the quote by one
// tick without ever crossing the opposite side.
func (o *StickyOrder) calculatePriceLocked(t domain.Ticker) decimal.Decimal {
	tick := o.market.TickSize

	if o.initialLimit && o.limitSet && len(o.suborders) == 0 {
		return o.limit
	}

	if o.side == domain.SideBuy {
		if o.limitSet && t.Bid.GreaterThanOrEqual(o.limit) {
			return o.limit
		}
		if o.outbid && tick.Sign() > 0 {
			p := quant.Min(quant.OneTickBetter(t.Bid, tick, true), t.Ask.Sub(tick))
			if o.limitSet {
				p = quant.Min(p, o.limit)
			}
			return quant.Max(p, t.Bid)
		}
		if o.limitSet {
			return quant.Min(t.Bid, o.limit)
		}
		return t.Bid
	}

	if o.limitSet && t.Ask.LessThanOrEqual(o.limit) {
		return o.limit
	}
	if o.outbid && tick.Sign() > 0 {
		p := quant.Max(quant.OneTickBetter(t.Ask, tick, false), t.Bid.Add(tick))
		if o.limitSet {
			p = quant.Max(p, o.limit)
		}
		return quant.Min(p, t.Ask)
	}
	if o.limitSet {
		return quant.Max(t.Ask, o.limit)
	}
	return t.Ask
}

// createNew submits a suborder for the unfilled remainder at the current
// quote, confirms the new id and then executes whatever intent was
// queued during the round trip: cancel > moveLimit > moveAmount > resume
// polling.
func (o *StickyOrder) createNew(ctx context.Context) {
	o.mu.Lock()
	if o.done {
		o.mu.Unlock()
		return
	}
	o.inFlight = true
	o.clearPollLocked()
	o.price = o.calculatePriceLocked(*o.ticker)
	price := o.price
	already := o.calculateFilledLocked()
	remaining := o.amount.Sub(already)
	if o.state == domain.StateInitializing {
		o.setStatusLocked(domain.StateSubmitted)
	}
	prevID := o.currentID
	o.mu.Unlock()
	o.flush()

	id, outcome, err := o.submit(ctx, remaining, price, already)

	o.mu.Lock()
	if o.done {
		o.inFlight = false
		o.mu.Unlock()
		return
	}
	if err != nil {
		o.inFlight = false
		if domain.IsInsufficientFunds(err) && o.cap.LimitedCancelConfirmation && prevID != "" {
			o.mu.Unlock()
			o.recoverInsufficientFunds(ctx, prevID, err)
			return
		}
		o.failLocked(err, o.calculateFilledLocked())
		o.mu.Unlock()
		o.flush()
		return
	}

	switch outcome {
	case submitDust:
		o.inFlight = false
		o.finalizeLocked(domain.StateFilled, o.calculateFilledLocked())
		o.mu.Unlock()
		o.flush()
		return
	case submitRejected:
		o.inFlight = false
		o.finalizeLocked(domain.StateRejected, decimal.Zero)
		o.mu.Unlock()
		o.flush()
		return
	}

	// Confirmed: drop bookkeeping for the previous, still-unfilled
	// suborder so at most one live exchange id remains tracked as open.
	if prevID != "" {
		if sub := o.suborders[prevID]; sub != nil && sub.Filled.IsZero() {
			delete(o.suborders, prevID)
			o.ids = removeID(o.ids, prevID)
		}
	}
	o.suborders[id] = &domain.Suborder{Price: price}
	o.ids = append(o.ids, id)
	o.currentID = id
	o.queueLocked(SuborderEvent{ID: id, Price: price})
	o.setStatusLocked(domain.StateOpen)
	o.inFlight = false

	in := o.intent
	o.intent = intent{}

	var after func()
	switch in.kind {
	case intentCancel:
		after = func() { o.doCancel(ctx) }
	case intentMoveLimit:
		o.clearPollLocked()
		if o.applyLimitLocked(in.limit) {
			after = func() { o.move(ctx) }
		} else {
			o.schedulePollLocked()
		}
	case intentMoveAmount:
		finished, needMove := o.applyAmountLocked(in.amount)
		if needMove {
			after = func() { o.move(ctx) }
		} else if !finished {
			o.schedulePollLocked()
		}
	default:
		o.schedulePollLocked()
	}
	o.mu.Unlock()
	o.flush()

	if after != nil {
		after()
	}
}

// applyLimitLocked records the new limit and reports whether the live
// quote has to move.
func (o *StickyOrder) applyLimitLocked(limit decimal.Decimal) bool {
	o.limit = limit
	o.limitSet = true
	o.initialLimit = false
	if o.ticker == nil {
		return false
	}
	return !o.calculatePriceLocked(*o.ticker).Equal(o.price)
}

// applyAmountLocked records the new amount. Returns (finished, needMove):
// finished when the tracked fill already covers the new amount.
func (o *StickyOrder) applyAmountLocked(amount decimal.Decimal) (bool, bool) {
	if o.amount.Equal(amount) {
		return false, false
	}
	o.amount = amount
	filled := o.calculateFilledLocked()
	if filled.GreaterThanOrEqual(amount) {
		o.finalizeLocked(domain.StateFilled, filled)
		return true, false
	}
	return false, true
}

// poll checks the live suborder. Guarded so only one check runs at a
// time; reschedules itself while the order rests on the book.
func (o *StickyOrder) poll() {
	ctx := o.context()

	o.mu.Lock()
	if o.done || o.inFlight || o.checking || o.currentID == "" {
		o.mu.Unlock()
		return
	}
	o.checking = true
	id := o.currentID
	o.mu.Unlock()

	res, err := infra.Retry(ctx, o.log, "checkOrder", o.retry, func(ctx context.Context) (domain.CheckResult, error) {
		return o.ex.CheckOrder(ctx, id)
	})

	o.mu.Lock()
	o.checking = false
	if o.done || o.inFlight {
		// A mutation resolved while we were checking; it owns the
		// lifecycle now.
		o.mu.Unlock()
		return
	}
	if err != nil {
		o.failLocked(err, o.calculateFilledLocked())
		o.mu.Unlock()
		o.flush()
		return
	}

	if res.Executed {
		o.markSuborderFilledLocked(id)
		filled := o.calculateFilledLocked()
		o.queueLocked(FillEvent{Filled: filled})
		o.finalizeLocked(domain.StateFilled, filled)
		o.mu.Unlock()
		o.flush()
		return
	}

	if !res.Open {
		o.failLocked(domain.NewExchangeError("checkOrder", errors.New("order disappeared from the book")), o.calculateFilledLocked())
		o.mu.Unlock()
		o.flush()
		return
	}

	if res.Filled != nil {
		o.updateFillLocked(id, *res.Filled)
	}

	// Already quoting at the limit: repricing cannot improve anything,
	// just watch the order.
	if o.limitSet && o.price.Equal(o.limit) {
		o.schedulePollLocked()
		o.mu.Unlock()
		o.flush()
		return
	}
	o.mu.Unlock()
	o.flush()

	tk, err := infra.Retry(ctx, o.log, "getTicker", o.retry, func(ctx context.Context) (domain.Ticker, error) {
		return o.ex.GetTicker(ctx)
	})

	o.mu.Lock()
	if o.done || o.inFlight {
		o.mu.Unlock()
		return
	}
	if err != nil {
		o.failLocked(err, o.calculateFilledLocked())
		o.mu.Unlock()
		o.flush()
		return
	}
	o.ticker = &tk
	if !o.calculatePriceLocked(tk).Equal(o.price) {
		o.mu.Unlock()
		o.move(ctx)
		return
	}
	o.schedulePollLocked()
	o.mu.Unlock()
}

// move cancels the live suborder and re-creates it at the freshly
// computed quote, reconciling any partial fill the cancel reported.
func (o *StickyOrder) move(ctx context.Context) {
	o.mu.Lock()
	if o.done || o.inFlight {
		o.mu.Unlock()
		return
	}
	o.inFlight = true
	o.clearPollLocked()
	o.setStatusLocked(domain.StateMoving)
	id := o.currentID
	o.mu.Unlock()
	o.flush()

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
		o.failLocked(err, o.calculateFilledLocked())
		o.mu.Unlock()
		o.flush()
		return
	}

	if res.Filled {
		// The cancel raced a complete fill.
		o.markSuborderFilledLocked(id)
		filled := o.calculateFilledLocked()
		o.queueLocked(FillEvent{Filled: filled})
		o.finalizeLocked(domain.StateFilled, filled)
		o.mu.Unlock()
		o.flush()
		return
	}

	o.reconcileCancelLocked(id, res)

	// A mutation queued during the cancel round trip takes effect before
	// the replacement order goes out.
	in := o.intent
	o.intent = intent{}
	switch in.kind {
	case intentCancel:
		// The live suborder is already gone; nothing left to undo.
		o.finalizeLocked(domain.StateCancelled, o.calculateFilledLocked())
		o.mu.Unlock()
		o.flush()
		return
	case intentMoveLimit:
		o.applyLimitLocked(in.limit)
	case intentMoveAmount:
		if finished, _ := o.applyAmountLocked(in.amount); finished {
			o.mu.Unlock()
			o.flush()
			return
		}
	}
	o.mu.Unlock()
	o.flush()

	o.createNew(ctx)
}

// doCancel cancels the live suborder and finalizes the order.
func (o *StickyOrder) doCancel(ctx context.Context) {
	o.mu.Lock()
	if o.done {
		o.mu.Unlock()
		return
	}
	if o.inFlight {
		o.intent = intent{kind: intentCancel}
		o.mu.Unlock()
		return
	}
	o.inFlight = true
	o.clearPollLocked()
	id := o.currentID
	o.mu.Unlock()

	if id == "" {
		o.mu.Lock()
		o.inFlight = false
		o.finalizeLocked(domain.StateCancelled, o.calculateFilledLocked())
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
		o.failLocked(err, o.calculateFilledLocked())
		o.mu.Unlock()
		o.flush()
		return
	}
	if res.Filled {
		o.markSuborderFilledLocked(id)
		filled := o.calculateFilledLocked()
		o.queueLocked(FillEvent{Filled: filled})
		o.finalizeLocked(domain.StateFilled, filled)
	} else {
		o.reconcileCancelLocked(id, res)
		o.finalizeLocked(domain.StateCancelled, o.calculateFilledLocked())
	}
	o.mu.Unlock()
	o.flush()
}

// recoverInsufficientFunds reconciles a race between local bookkeeping
// and a late exchange-side partial fill: on venues with limited cancel
// confirmation an insufficient-funds rejection may mean the cancelled
// suborder filled after the cancel reported nothing.
func (o *StickyOrder) recoverInsufficientFunds(ctx context.Context, prevID string, origErr error) {
	res, err := infra.Retry(ctx, o.log, "checkOrder", o.retry, func(ctx context.Context) (domain.CheckResult, error) {
		return o.ex.CheckOrder(ctx, prevID)
	})

	o.mu.Lock()
	if o.done {
		o.mu.Unlock()
		return
	}
	if err != nil {
		o.failLocked(err, o.calculateFilledLocked())
		o.mu.Unlock()
		o.flush()
		return
	}

	sub := o.suborders[prevID]
	if sub == nil {
		o.failLocked(origErr, o.calculateFilledLocked())
		o.mu.Unlock()
		o.flush()
		return
	}

	reported := sub.Filled
	if res.Filled != nil {
		reported = *res.Filled
	} else if res.Executed {
		reported = o.requestedOfLocked(prevID)
	}

	if reported.Equal(sub.Filled) {
		// No discrepancy: the funds really are missing.
		o.failLocked(origErr, o.calculateFilledLocked())
		o.mu.Unlock()
		o.flush()
		return
	}

	o.updateFillLocked(prevID, reported)
	filled := o.calculateFilledLocked()
	if filled.GreaterThanOrEqual(o.amount) {
		o.finalizeLocked(domain.StateFilled, filled)
		o.mu.Unlock()
		o.flush()
		return
	}
	o.mu.Unlock()
	o.flush()

	o.createNew(ctx)
}

// requestedOfLocked is the amount the suborder was placed for: the total
// minus everything the other suborders filled.
func (o *StickyOrder) requestedOfLocked(id string) decimal.Decimal {
	sub := o.suborders[id]
	if sub == nil {
		return decimal.Zero
	}
	others := decimal.Zero
	for sid, s := range o.suborders {
		if sid != id {
			others = others.Add(s.Filled)
		}
	}
	return quant.Max(o.amount.Sub(others), decimal.Zero)
}

func (o *StickyOrder) markSuborderFilledLocked(id string) {
	if sub := o.suborders[id]; sub != nil {
		sub.Filled = o.requestedOfLocked(id)
	}
}

// updateFillLocked applies a reported fill, clamped to the suborder's
// requested amount, and emits a fill event on change.
func (o *StickyOrder) updateFillLocked(id string, reported decimal.Decimal) {
	sub := o.suborders[id]
	if sub == nil {
		return
	}
	reported = quant.Min(quant.Max(reported, decimal.Zero), o.requestedOfLocked(id))
	if reported.Equal(sub.Filled) {
		return
	}
	sub.Filled = reported
	o.queueLocked(FillEvent{Filled: o.calculateFilledLocked()})
}

// reconcileCancelLocked folds the cancel response's partial-fill data
// into the books, falling back to requested minus remaining when the
// exchange
// omits the filled amount.
func (o *StickyOrder) reconcileCancelLocked(id string, res domain.CancelResult) {
	switch {
	case res.PartialFill != nil:
		o.updateFillLocked(id, *res.PartialFill)
	case res.Remaining != nil:
		o.updateFillLocked(id, o.requestedOfLocked(id).Sub(*res.Remaining))
	}
}

func (o *StickyOrder) schedulePollLocked() {
	if o.done {
		return
	}
	o.clearPollLocked()
	o.pollTimer = time.AfterFunc(o.pollInterval, o.poll)
}

func (o *StickyOrder) clearPollLocked() {
	if o.pollTimer != nil {
		o.pollTimer.Stop()
		o.pollTimer = nil
	}
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
