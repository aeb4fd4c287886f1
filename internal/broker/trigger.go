package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"broker_go/internal/domain"
	"broker_go/internal/infra"
)

// TriggerKind selects the trigger implementation.
type TriggerKind string

const TriggerTrailingStop TriggerKind = "trailingStop"

// TriggerParams configures a trigger.
type TriggerParams struct {
	Trail        decimal.Decimal
	InitialPrice decimal.Decimal
}

// Trigger watches the market by polling the ticker and fires a callback
// at most once when its condition is met. It places no orders itself;
// acting on the fire is the caller's business.
type Trigger struct {
	ex       domain.Exchange
	log      *slog.Logger
	interval time.Duration
	stop     *TrailingStop

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// newTrigger builds a trigger of the given kind. Trigger polls are an
// order of magnitude slower than order polls: the condition moves with
// the market, not with a resting order.
func newTrigger(ex domain.Exchange, kind TriggerKind, params TriggerParams, onTrigger func(price decimal.Decimal), log *slog.Logger) (*Trigger, error) {
	if kind != TriggerTrailingStop {
		return nil, fmt.Errorf("unknown trigger kind %q", kind)
	}
	if params.Trail.Sign() <= 0 {
		return nil, &domain.ConfigError{Field: "trail", Err: fmt.Errorf("must be positive, got %s", params.Trail)}
	}

	interval := ex.Capabilities().Interval
	if interval <= 0 {
		interval = time.Second
	}

	t := &Trigger{
		ex:       ex,
		log:      infra.Component(log, "trigger", "kind", string(kind)),
		interval: interval * 10,
		done:     make(chan struct{}),
	}
	t.stop = NewTrailingStop(params.Trail, params.InitialPrice, func(price decimal.Decimal) {
		infra.GlobalMetrics.RecordTriggerFired()
		t.log.Info("trigger fired", slog.String("price", price.String()))
		if onTrigger != nil {
			onTrigger(price)
		}
	})
	return t, nil
}

// start begins the poll loop. The loop ends when the trigger fires, is
// cancelled, or ctx is done.
func (t *Trigger) start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	go t.loop(ctx)
}

func (t *Trigger) loop(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !t.stop.Live() {
				return
			}
			tk, err := t.ex.GetTicker(ctx)
			if err != nil {
				// Fetch failures are not fatal for a watcher; the next
				// tick retries.
				t.log.Warn("ticker fetch failed", slog.String("error", err.Error()))
				continue
			}
			// The bid is what a stop exit would realize.
			t.stop.UpdatePrice(tk.Bid)
			if !t.stop.Live() {
				return
			}
		}
	}
}

// UpdateTrail rebases the trail distance on the last observed price.
func (t *Trigger) UpdateTrail(trail decimal.Decimal) {
	t.stop.UpdateTrail(trail)
}

// Live reports whether the trigger is still armed.
func (t *Trigger) Live() bool {
	return t.stop.Live()
}

// Cancel disarms the trigger and stops the poll loop without firing.
func (t *Trigger) Cancel() {
	t.stop.disarm()
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the poll loop exited.
func (t *Trigger) Wait() {
	<-t.done
}
