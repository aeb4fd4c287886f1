package domain

import "github.com/shopspring/decimal"

// Balance is the held amount of one currency or asset.
type Balance struct {
	Name   string
	Amount decimal.Decimal
}

// PortfolioSnapshot is a pull-based view of the balances and fee relevant
// to the configured market pair. Consumers read the last snapshot; there
// is no push model.
type PortfolioSnapshot struct {
	Balances []Balance
	Fee      decimal.Decimal // taker/maker fee as a fraction (e.g. 0.0025)
}

// BalanceOf returns the balance for name, defaulting to amount zero so
// unrelated or missing entries never leak into trading logic.
func (p PortfolioSnapshot) BalanceOf(name string) Balance {
	for _, b := range p.Balances {
		if b.Name == name {
			return b
		}
	}
	return Balance{Name: name, Amount: decimal.Zero}
}
