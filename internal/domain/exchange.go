package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CheckResult is the reply to a CheckOrder poll.
type CheckResult struct {
	Executed bool // fully filled
	Open     bool // still resting on the book
	// Filled is the cumulative filled amount, nil when the exchange
	// omits it from the poll response.
	Filled *decimal.Decimal
}

// CancelResult is the reply to a CancelOrder call.
type CancelResult struct {
	// Filled is set when the order completed before the cancel landed.
	Filled bool
	// PartialFill is the amount filled before cancellation, nil when the
	// exchange omits it.
	PartialFill *decimal.Decimal
	// Remaining is the unfilled remainder, nil when omitted. Used as the
	// requested-minus-remaining fallback when PartialFill is absent.
	Remaining *decimal.Decimal
}

// OrderRecord is the authoritative trade record of one suborder, fetched
// after completion for summary accounting.
type OrderRecord struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
	Date   time.Time
	// Fees holds absolute fee sums keyed by currency, when reported.
	Fees map[string]decimal.Decimal
	// FeePercent is the fee as a percentage of traded value, nil when
	// the exchange reports absolute fees instead.
	FeePercent *decimal.Decimal
}

// Exchange is the capability-described API handle an adapter implements
// once per venue. Every call is a network round trip and may fail with a
// classified *ExchangeError.
type Exchange interface {
	GetTicker(ctx context.Context) (Ticker, error)

	// Buy and Sell place a limit order and return the exchange-assigned
	// order id.
	Buy(ctx context.Context, amount, price decimal.Decimal) (string, error)
	Sell(ctx context.Context, amount, price decimal.Decimal) (string, error)

	CheckOrder(ctx context.Context, id string) (CheckResult, error)
	CancelOrder(ctx context.Context, id string) (CancelResult, error)
	GetOrder(ctx context.Context, id string) (OrderRecord, error)

	GetPortfolio(ctx context.Context) ([]Balance, error)
	GetFee(ctx context.Context) (decimal.Decimal, error)

	Capabilities() Capability
}
