package domain

import "github.com/shopspring/decimal"

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType selects the execution algorithm for a logical order.
type OrderType string

const (
	OrderTypeSticky OrderType = "sticky"
	OrderTypeLimit  OrderType = "limit"
)

// OrderState is the lifecycle state of a logical order.
// Open and Moving may cycle while a sticky order tracks the book; every
// other transition is forward-only and terminal states are sticky.
type OrderState int

const (
	StateInitializing OrderState = iota
	StateSubmitted
	StateOpen
	StateMoving
	StateCancelled
	StateFilled
	StateRejected
	StateError
)

func (s OrderState) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StateSubmitted:
		return "SUBMITTED"
	case StateOpen:
		return "OPEN"
	case StateMoving:
		return "MOVING"
	case StateCancelled:
		return "CANCELLED"
	case StateFilled:
		return "FILLED"
	case StateRejected:
		return "REJECTED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the state ends the order's lifecycle.
func (s OrderState) Terminal() bool {
	switch s {
	case StateCancelled, StateFilled, StateRejected, StateError:
		return true
	}
	return false
}

// Suborder is one exchange-visible order created while a logical order
// tracks the book. Several suborders jointly fulfill one logical order.
type Suborder struct {
	Price  decimal.Decimal
	Filled decimal.Decimal
}

// Summary is the caller-facing result of a completed logical order: the
// volume-weighted average price and aggregated fees across all suborders.
type Summary struct {
	Side       Side
	Amount     decimal.Decimal // cumulative filled amount
	Price      decimal.Decimal // volume-weighted average price
	Fees       map[string]decimal.Decimal
	FeePercent decimal.Decimal // amount-weighted, zero when unknown
	Suborders  int
	Status     OrderState
}
