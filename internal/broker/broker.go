package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"broker_go/internal/domain"
	"broker_go/internal/infra"
	"broker_go/internal/orders"
)

// Config selects the market a broker trades and whether it may trade at
// all. Private is explicit: a broker constructed without it serves
// market data only and refuses every trading call.
type Config struct {
	Currency string
	Asset    string
	Private  bool
	// Outbid makes sticky orders quote one tick inside the spread.
	Outbid bool
}

// Broker is the execution façade for one market on one exchange. All
// policy checks happen here, synchronously, so order state machines can
// assume a valid market and a recent ticker.
type Broker struct {
	ex     domain.Exchange
	cfg    Config
	cap    domain.Capability
	market domain.MarketPair
	log    *slog.Logger
	retry  infra.RetryOptions

	// portfolio is nil for public brokers.
	portfolio *Portfolio

	mu     sync.Mutex
	ticker *domain.Ticker
	synced bool
}

// New validates cfg against the exchange capability record and builds
// the broker. Violations surface as *domain.ConfigError before anything
// touches the network.
func New(ex domain.Exchange, cfg Config, log *slog.Logger, retry infra.RetryOptions) (*Broker, error) {
	cap := ex.Capabilities()

	if !cap.HasCurrency(cfg.Currency) {
		return nil, &domain.ConfigError{Field: "currency", Err: fmt.Errorf("%w: %s not listed on %s", domain.ErrUnknownMarket, cfg.Currency, cap.Name)}
	}
	if !cap.HasAsset(cfg.Asset) {
		return nil, &domain.ConfigError{Field: "asset", Err: fmt.Errorf("%w: %s not listed on %s", domain.ErrUnknownMarket, cfg.Asset, cap.Name)}
	}
	market, ok := cap.Market(cfg.Currency, cfg.Asset)
	if !ok {
		return nil, &domain.ConfigError{Field: "market", Err: fmt.Errorf("%w: %s/%s on %s", domain.ErrUnknownMarket, cfg.Currency, cfg.Asset, cap.Name)}
	}
	if cfg.Private && !cap.Tradable {
		return nil, &domain.ConfigError{Field: "private", Err: domain.ErrNotTradable}
	}

	b := &Broker{
		ex:     ex,
		cfg:    cfg,
		cap:    cap,
		market: market,
		log:    infra.Component(log, "broker", "exchange", cap.Name, "market", cfg.Currency+"/"+cfg.Asset),
		retry:  retry,
	}
	if cfg.Private {
		b.portfolio = NewPortfolio(ex, market, b.log, retry)
	}
	return b, nil
}

// Sync refreshes the cached exchange state: the ticker always, balances
// and fee additionally in private mode. Orders can only be created after
// the first successful sync.
func (b *Broker) Sync(ctx context.Context) error {
	tk, err := infra.Retry(ctx, b.log, "getTicker", b.retry, func(ctx context.Context) (domain.Ticker, error) {
		return b.ex.GetTicker(ctx)
	})
	if err != nil {
		return err
	}

	if b.cfg.Private {
		if err := b.portfolio.SetFee(ctx); err != nil {
			return err
		}
		if err := b.portfolio.SetBalances(ctx); err != nil {
			return err
		}
	}

	b.mu.Lock()
	b.ticker = &tk
	b.synced = true
	b.mu.Unlock()

	b.log.Debug("synced",
		slog.String("bid", tk.Bid.String()),
		slog.String("ask", tk.Ask.String()))
	return nil
}

// Ticker returns the last synced book snapshot.
func (b *Broker) Ticker() (domain.Ticker, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ticker == nil {
		return domain.Ticker{}, domain.ErrNotSynced
	}
	return *b.ticker, nil
}

// Market returns the traded pair's metadata.
func (b *Broker) Market() domain.MarketPair {
	return b.market
}

// Portfolio returns the balance cache, nil for public brokers.
func (b *Broker) Portfolio() *Portfolio {
	return b.portfolio
}

// IsValidOrder checks an amount/price pair against the market minimums.
func (b *Broker) IsValidOrder(amount, price decimal.Decimal) bool {
	return b.market.IsValidOrder(amount, price)
}

// OrderParams carries the per-type order options.
type OrderParams struct {
	// Limit bounds a sticky order; zero leaves it unbounded.
	Limit decimal.Decimal
	// InitialLimit quotes a sticky order's first suborder at Limit.
	InitialLimit bool

	// Price fixes a limit order.
	Price decimal.Decimal
	// PostOnly rejects a limit order that would cross the book.
	PostOnly bool
}

// CreateOrder builds an order of the requested type, seeds it with the
// synced ticker and starts it on its own goroutine. The returned handle
// reports progress through its event emitter.
func (b *Broker) CreateOrder(ctx context.Context, typ domain.OrderType, side domain.Side, amount decimal.Decimal, params OrderParams) (orders.Order, error) {
	if !b.cfg.Private {
		return nil, domain.ErrNotPrivate
	}

	b.mu.Lock()
	synced := b.synced
	var tk domain.Ticker
	if b.ticker != nil {
		tk = *b.ticker
	}
	b.mu.Unlock()
	if !synced {
		return nil, domain.ErrNotSynced
	}

	if side != domain.SideBuy && side != domain.SideSell {
		return nil, &domain.ConfigError{Field: "side", Err: fmt.Errorf("unknown side %q", side)}
	}

	var o orders.Order
	switch typ {
	case domain.OrderTypeSticky:
		o = orders.NewSticky(b.ex, b.market, side, amount, b.log, b.retry, orders.StickyParams{
			Limit:        params.Limit,
			InitialLimit: params.InitialLimit,
			Outbid:       b.cfg.Outbid,
		})
	case domain.OrderTypeLimit:
		o = orders.NewLimit(b.ex, b.market, side, amount, b.log, b.retry, orders.LimitParams{
			Price:    params.Price,
			PostOnly: params.PostOnly,
		})
	default:
		return nil, &domain.ConfigError{Field: "type", Err: fmt.Errorf("unknown order type %q", typ)}
	}

	o.SetTicker(tk)
	b.log.Info("creating order",
		slog.String("type", string(typ)),
		slog.String("side", string(side)),
		slog.String("amount", amount.String()))

	go o.Create(ctx)
	return o, nil
}

// CreateTrigger arms a market watcher of the given kind and starts its
// poll loop. Triggers work in public mode too: they only read the
// ticker.
func (b *Broker) CreateTrigger(ctx context.Context, kind TriggerKind, params TriggerParams, onTrigger func(price decimal.Decimal)) (*Trigger, error) {
	t, err := newTrigger(b.ex, kind, params, onTrigger, b.log)
	if err != nil {
		return nil, err
	}
	t.start(ctx)
	return t, nil
}
