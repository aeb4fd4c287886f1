package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketPair describes one tradable market and its exchange-defined
// minimal order constraints.
type MarketPair struct {
	Currency       string
	Asset          string
	MinAmount      decimal.Decimal // minimum tradable asset amount
	MinPrice       decimal.Decimal // minimum quotable price
	TickSize       decimal.Decimal // price grid step
	AmountDecimals int32           // asset amount precision
}

// Capability is the static metadata an exchange adapter publishes about
// itself. It is read-only from the broker's point of view.
type Capability struct {
	Name       string
	Currencies []string
	Assets     []string
	Markets    []MarketPair

	// Tradable is false for data-only adapters.
	Tradable bool

	// Requires lists the credential fields private calls need.
	Requires []string

	// LimitedCancelConfirmation is set when CancelOrder cannot reliably
	// report whether the order filled before the cancel landed.
	LimitedCancelConfirmation bool

	// Interval is the base poll interval the adapter is comfortable with.
	Interval time.Duration
}

// Market returns the pair metadata for currency/asset, if listed.
func (c Capability) Market(currency, asset string) (MarketPair, bool) {
	for _, m := range c.Markets {
		if m.Currency == currency && m.Asset == asset {
			return m, true
		}
	}
	return MarketPair{}, false
}

// HasCurrency reports whether the exchange lists the currency.
func (c Capability) HasCurrency(name string) bool {
	for _, cur := range c.Currencies {
		if cur == name {
			return true
		}
	}
	return false
}

// HasAsset reports whether the exchange lists the asset.
func (c Capability) HasAsset(name string) bool {
	for _, a := range c.Assets {
		if a == name {
			return true
		}
	}
	return false
}

// IsValidOrder checks an amount/price pair against the market minimums.
func (m MarketPair) IsValidOrder(amount, price decimal.Decimal) bool {
	if amount.LessThan(m.MinAmount) {
		return false
	}
	if price.LessThan(m.MinPrice) {
		return false
	}
	return true
}
