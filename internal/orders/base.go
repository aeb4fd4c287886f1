package orders

import (
	"context"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"broker_go/internal/domain"
	"broker_go/internal/infra"
	"broker_go/pkg/quant"
)

// Order is the caller-facing handle of a live logical order. The broker
// returns it from CreateOrder; the caller observes progress through the
// emitter and must not mutate the order after completion (mutations
// become no-ops).
type Order interface {
	// Create starts the order. Called once by the broker.
	Create(ctx context.Context)

	// Cancel requests cancellation. Safe at any point of the lifecycle;
	// coalesced when another mutation is in flight.
	Cancel()

	// Summary fetches the authoritative trade records of all suborders
	// and aggregates them. Call after completion.
	Summary(ctx context.Context) (domain.Summary, error)

	// Events returns the order's private event emitter.
	Events() *Emitter

	// State returns the current lifecycle state.
	State() domain.OrderState

	// SetTicker injects the latest book snapshot before Create runs, so
	// the order starts from broker state instead of fetching its own.
	SetTicker(t domain.Ticker)
}

type submitOutcome int

const (
	submitPlaced submitOutcome = iota
	submitDust
	submitRejected
)

// base carries the state machine and event contract shared by the
// concrete order algorithms. The embedded mutex serializes every state
// transition; exchange round trips run without the lock and re-acquire
// it on completion. Methods suffixed "Locked" require the lock held.
type base struct {
	mu sync.Mutex

	ex     domain.Exchange
	cap    domain.Capability
	market domain.MarketPair
	side   domain.Side
	log    *slog.Logger
	retry  infra.RetryOptions

	emitter *Emitter
	state   domain.OrderState
	done    bool

	// pending holds events queued under the lock, dispatched by flush
	// after the lock is released.
	pending []Event

	// ticker is the snapshot injected by the broker. The order never
	// fetches broker state itself.
	ticker *domain.Ticker
}

func newBase(ex domain.Exchange, market domain.MarketPair, side domain.Side, log *slog.Logger, retry infra.RetryOptions) base {
	return base{
		ex:      ex,
		cap:     ex.Capabilities(),
		market:  market,
		side:    side,
		log:     log,
		retry:   retry,
		emitter: NewEmitter(),
		state:   domain.StateInitializing,
	}
}

// Events returns the order's private event emitter.
func (b *base) Events() *Emitter {
	return b.emitter
}

// State returns the current lifecycle state.
func (b *base) State() domain.OrderState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Completed reports whether the order reached a terminal state.
func (b *base) Completed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

// SetTicker injects the latest book snapshot before Create runs.
func (b *base) SetTicker(t domain.Ticker) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ticker = &t
}

func (b *base) queueLocked(ev Event) {
	b.pending = append(b.pending, ev)
}

// flush dispatches queued events. Must be called without the lock held.
func (b *base) flush() {
	b.mu.Lock()
	evs := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, ev := range evs {
		b.emitter.dispatch(ev)
	}
}

func (b *base) setStatusLocked(s domain.OrderState) {
	if b.done || b.state == s {
		return
	}
	b.state = s
	b.queueLocked(StatusChangeEvent{State: s})
}

// finalizeLocked moves the order to a terminal state exactly once.
// Later calls are no-ops, which makes every mutation after completion
// harmless.
func (b *base) finalizeLocked(s domain.OrderState, filled decimal.Decimal) {
	if b.done {
		return
	}
	b.setStatusLocked(s)
	b.done = true
	b.queueLocked(CompletedEvent{Status: s, Filled: filled})

	switch s {
	case domain.StateFilled:
		infra.GlobalMetrics.RecordOrderFilled()
	case domain.StateCancelled:
		infra.GlobalMetrics.RecordOrderCancelled()
	case domain.StateError:
		infra.GlobalMetrics.RecordError()
	}
}

func (b *base) failLocked(err error, filled decimal.Decimal) {
	if b.done {
		return
	}
	b.queueLocked(ErrorEvent{Err: err})
	b.finalizeLocked(domain.StateError, filled)
}

// submit validates the remainder against the market minimums and places
// the exchange order through the retry wrapper. It performs no state
// mutation: the caller applies the outcome under its own lock.
//
// An invalid remainder with a prior fill is dust and finishes the order
// as filled; an invalid remainder with no fill at all is a rejection.
func (b *base) submit(ctx context.Context, amount, price, alreadyFilled decimal.Decimal) (string, submitOutcome, error) {
	amount = quant.RoundAmount(amount, b.market.AmountDecimals)

	if !b.market.IsValidOrder(amount, price) {
		if alreadyFilled.Sign() > 0 {
			b.log.Debug("remainder below market minimum, treating as dust",
				slog.String("amount", amount.String()),
				slog.String("filled", alreadyFilled.String()))
			return "", submitDust, nil
		}
		return "", submitRejected, nil
	}

	place := b.ex.Buy
	call := "buy"
	if b.side == domain.SideSell {
		place = b.ex.Sell
		call = "sell"
	}

	id, err := infra.Retry(ctx, b.log, call, b.retry, func(ctx context.Context) (string, error) {
		return place(ctx, amount, price)
	})
	if err != nil {
		return "", 0, err
	}

	infra.GlobalMetrics.RecordSuborderPlaced()
	return id, submitPlaced, nil
}
