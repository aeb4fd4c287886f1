// Package orders implements the order lifecycle state machines of the
// execution core: a shared base contract plus the sticky and limit
// algorithms built on top of it.
package orders

import (
	"sync"

	"github.com/shopspring/decimal"

	"broker_go/internal/domain"
)

// Event is one typed lifecycle notification of a logical order.
type Event interface {
	isEvent()
}

// StatusChangeEvent reports a state transition.
type StatusChangeEvent struct {
	State domain.OrderState
}

// FillEvent reports a change of the cumulative filled amount.
type FillEvent struct {
	Filled decimal.Decimal
}

// SuborderEvent reports a newly confirmed exchange order id.
type SuborderEvent struct {
	ID    string
	Price decimal.Decimal
}

// CompletedEvent is emitted exactly once, when the order reaches a
// terminal state.
type CompletedEvent struct {
	Status domain.OrderState
	Filled decimal.Decimal
}

// ErrorEvent reports the failure that moved the order to StateError.
type ErrorEvent struct {
	Err error
}

func (StatusChangeEvent) isEvent() {}
func (FillEvent) isEvent()         {}
func (SuborderEvent) isEvent()     {}
func (CompletedEvent) isEvent()    {}
func (ErrorEvent) isEvent()        {}

// Emitter routes the typed events of a single order to registered
// listeners. Each order owns its emitter; nothing is shared across
// orders, so state cannot leak between them.
//
// Listeners run synchronously on the goroutine that resolved the
// exchange round trip, after the order released its internal lock. They
// may call back into the order.
type Emitter struct {
	mu           sync.Mutex
	statusChange []func(domain.OrderState)
	fill         []func(decimal.Decimal)
	suborder     []func(string, decimal.Decimal)
	completed    []func(domain.OrderState, decimal.Decimal)
	errListeners []func(error)
}

// NewEmitter creates an emitter with no listeners.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// OnStatusChange registers a listener for state transitions.
func (e *Emitter) OnStatusChange(fn func(domain.OrderState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statusChange = append(e.statusChange, fn)
}

// OnFill registers a listener for cumulative fill changes.
func (e *Emitter) OnFill(fn func(decimal.Decimal)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fill = append(e.fill, fn)
}

// OnSuborder registers a listener for confirmed exchange order ids.
func (e *Emitter) OnSuborder(fn func(id string, price decimal.Decimal)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.suborder = append(e.suborder, fn)
}

// OnCompleted registers a listener for the terminal notification.
func (e *Emitter) OnCompleted(fn func(domain.OrderState, decimal.Decimal)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completed = append(e.completed, fn)
}

// OnError registers a listener for the failure that ends the order.
func (e *Emitter) OnError(fn func(error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errListeners = append(e.errListeners, fn)
}

func (e *Emitter) dispatch(ev Event) {
	e.mu.Lock()
	statusChange := e.statusChange
	fill := e.fill
	suborder := e.suborder
	completed := e.completed
	errListeners := e.errListeners
	e.mu.Unlock()

	switch v := ev.(type) {
	case StatusChangeEvent:
		for _, fn := range statusChange {
			fn(v.State)
		}
	case FillEvent:
		for _, fn := range fill {
			fn(v.Filled)
		}
	case SuborderEvent:
		for _, fn := range suborder {
			fn(v.ID, v.Price)
		}
	case CompletedEvent:
		for _, fn := range completed {
			fn(v.Status, v.Filled)
		}
	case ErrorEvent:
		for _, fn := range errListeners {
			fn(v.Err)
		}
	}
}
