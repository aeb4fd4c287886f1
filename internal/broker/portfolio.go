package broker

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"broker_go/internal/domain"
	"broker_go/internal/infra"
)

// Portfolio caches the balances and fee of one market on one exchange.
// It is refreshed explicitly through the broker's sync, never
// implicitly. Only the market's currency and asset are tracked; whatever
// else the account holds stays out of trading logic.
type Portfolio struct {
	ex     domain.Exchange
	market domain.MarketPair
	log    *slog.Logger
	retry  infra.RetryOptions

	mu       sync.Mutex
	balances map[string]decimal.Decimal
	fee      decimal.Decimal
	synced   bool
}

func NewPortfolio(ex domain.Exchange, market domain.MarketPair, log *slog.Logger, retry infra.RetryOptions) *Portfolio {
	return &Portfolio{
		ex:       ex,
		market:   market,
		log:      infra.Component(log, "portfolio"),
		retry:    retry,
		balances: make(map[string]decimal.Decimal),
	}
}

// SetBalances fetches the account balances through the retry wrapper and
// replaces the cached set, keeping only the market's currency and asset.
// Entries the account does not hold default to zero.
func (p *Portfolio) SetBalances(ctx context.Context) error {
	balances, err := infra.Retry(ctx, p.log, "getPortfolio", p.retry, func(ctx context.Context) ([]domain.Balance, error) {
		return p.ex.GetPortfolio(ctx)
	})
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.balances = map[string]decimal.Decimal{
		p.market.Currency: decimal.Zero,
		p.market.Asset:    decimal.Zero,
	}
	for _, b := range balances {
		if _, ok := p.balances[b.Name]; ok {
			p.balances[b.Name] = b.Amount
		}
	}
	currency := p.balances[p.market.Currency]
	asset := p.balances[p.market.Asset]
	p.synced = true
	p.mu.Unlock()

	p.log.Debug("balances updated",
		slog.String(p.market.Currency, currency.String()),
		slog.String(p.market.Asset, asset.String()))
	return nil
}

// SetFee fetches the taker fee through the retry wrapper.
func (p *Portfolio) SetFee(ctx context.Context) error {
	fee, err := infra.Retry(ctx, p.log, "getFee", p.retry, func(ctx context.Context) (decimal.Decimal, error) {
		return p.ex.GetFee(ctx)
	})
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.fee = fee
	p.mu.Unlock()
	return nil
}

// Balance returns the cached balance for name. Untracked names and
// entries the account does not hold are zero.
func (p *Portfolio) Balance(name string) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balances[name]
}

// Fee returns the cached fee fraction.
func (p *Portfolio) Fee() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fee
}

// Synced reports whether balances were fetched at least once.
func (p *Portfolio) Synced() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.synced
}

// Snapshot returns a stable copy of the cached state, balances sorted by
// name.
func (p *Portfolio) Snapshot() domain.PortfolioSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := domain.PortfolioSnapshot{Fee: p.fee}
	for name, amount := range p.balances {
		snap.Balances = append(snap.Balances, domain.Balance{Name: name, Amount: amount})
	}
	sort.Slice(snap.Balances, func(i, j int) bool {
		return snap.Balances[i].Name < snap.Balances[j].Name
	})
	return snap
}

// ConvertBalances values the portfolio in currency terms, pricing the
// asset holding at the given bid.
func (p *Portfolio) ConvertBalances(bid decimal.Decimal) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balances[p.market.Currency].Add(p.balances[p.market.Asset].Mul(bid))
}
