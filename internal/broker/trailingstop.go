// Package broker exposes the caller-facing execution façade: policy
// checks, state sync, order creation and price triggers for one
// configured market on one exchange.
package broker

import (
	"sync"

	"github.com/shopspring/decimal"
)

// TrailingStop tracks a rising price and fires once when the price falls
// back by the trail distance from its peak. The trailing point only ever
// ratchets upward.
type TrailingStop struct {
	mu            sync.Mutex
	trail         decimal.Decimal
	trailingPoint decimal.Decimal
	lastPrice     decimal.Decimal
	live          bool
	onTrigger     func(price decimal.Decimal)
}

// NewTrailingStop arms a stop at initialPrice−trail.
func NewTrailingStop(trail, initialPrice decimal.Decimal, onTrigger func(price decimal.Decimal)) *TrailingStop {
	return &TrailingStop{
		trail:         trail,
		trailingPoint: initialPrice.Sub(trail),
		lastPrice:     initialPrice,
		live:          true,
		onTrigger:     onTrigger,
	}
}

// UpdatePrice feeds a new observed price. Fires the callback at most
// once, on the price that crossed the trailing point.
func (t *TrailingStop) UpdatePrice(price decimal.Decimal) {
	t.mu.Lock()
	if !t.live {
		t.mu.Unlock()
		return
	}
	if price.GreaterThan(t.trailingPoint.Add(t.trail)) {
		t.trailingPoint = price.Sub(t.trail)
	}
	t.lastPrice = price

	fired := price.LessThanOrEqual(t.trailingPoint)
	if fired {
		t.live = false
	}
	fn := t.onTrigger
	t.mu.Unlock()

	if fired && fn != nil {
		fn(price)
	}
}

// UpdateTrail rebases the trailing point on the last observed price with
// the new trail distance and re-evaluates immediately.
func (t *TrailingStop) UpdateTrail(trail decimal.Decimal) {
	t.mu.Lock()
	if !t.live {
		t.mu.Unlock()
		return
	}
	t.trail = trail
	t.trailingPoint = t.lastPrice.Sub(trail)
	last := t.lastPrice
	t.mu.Unlock()

	t.UpdatePrice(last)
}

// Live reports whether the stop is still armed.
func (t *TrailingStop) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// disarm deactivates the stop without firing.
func (t *TrailingStop) disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live = false
}
