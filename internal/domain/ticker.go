package domain

import "github.com/shopspring/decimal"

// Ticker is the top of the book for the configured market pair.
type Ticker struct {
	Bid decimal.Decimal
	Ask decimal.Decimal
}

// BestFor returns the book side an order of the given direction quotes
// against: the bid for buys, the ask for sells.
func (t Ticker) BestFor(side Side) decimal.Decimal {
	if side == SideBuy {
		return t.Bid
	}
	return t.Ask
}

// Spread returns ask - bid.
func (t Ticker) Spread() decimal.Decimal {
	return t.Ask.Sub(t.Bid)
}

// Valid reports whether both sides of the book carry a positive price.
func (t Ticker) Valid() bool {
	return t.Bid.Sign() > 0 && t.Ask.Sign() > 0 && t.Ask.GreaterThanOrEqual(t.Bid)
}
