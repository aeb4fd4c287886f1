package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/shopspring/decimal"

	"broker_go/internal/app"
	"broker_go/internal/broker"
	"broker_go/internal/domain"
	"broker_go/internal/infra"
	"broker_go/internal/infra/storage"
	"broker_go/internal/orders"
)

func main() {
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize("configs/config.yaml"); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootstrap.StartFeeds(ctx)

	if err := bootstrap.Broker.Sync(ctx); err != nil {
		slog.Error("❌ Initial broker sync failed", slog.Any("error", err))
		os.Exit(1)
	}
	go bootstrap.SyncLoop(ctx)
	slog.Info("✅ Broker synced")

	if bootstrap.Config.Broker.Private {
		go runDemoTrade(ctx, bootstrap)
	}

	slog.InfoContext(ctx, "✨ Execution core operational. Press Ctrl+C to exit.")
	<-ctx.Done()

	slog.Info("👋 Shutting down gracefully...")
	report(bootstrap)
}

// runDemoTrade exercises the full lifecycle on the configured venue: a
// sticky buy chasing the book, then a trailing stop that flips the
// position back with a sticky sell once the price retraces.
func runDemoTrade(ctx context.Context, bootstrap *app.Bootstrap) {
	brk := bootstrap.Broker

	tk, err := brk.Ticker()
	if err != nil {
		slog.Error("no ticker for demo trade", slog.Any("error", err))
		return
	}

	amount := decimal.RequireFromString("0.01")
	limit := tk.Bid.Mul(decimal.RequireFromString("1.002"))

	buy, err := brk.CreateOrder(ctx, domain.OrderTypeSticky, domain.SideBuy, amount, broker.OrderParams{Limit: limit})
	if err != nil {
		slog.Error("demo buy failed to start", slog.Any("error", err))
		return
	}
	watchOrder(ctx, bootstrap, "demo-buy", domain.OrderTypeSticky, buy, func(status domain.OrderState, filled decimal.Decimal) {
		if status != domain.StateFilled || filled.Sign() <= 0 {
			return
		}
		armTrailingStop(ctx, bootstrap, filled)
	})
}

func armTrailingStop(ctx context.Context, bootstrap *app.Bootstrap, position decimal.Decimal) {
	brk := bootstrap.Broker

	tk, err := brk.Ticker()
	if err != nil {
		slog.Error("no ticker to arm the trailing stop", slog.Any("error", err))
		return
	}
	trail := tk.Bid.Mul(decimal.RequireFromString("0.01"))

	_, err = brk.CreateTrigger(ctx, broker.TriggerTrailingStop,
		broker.TriggerParams{Trail: trail, InitialPrice: tk.Bid},
		func(price decimal.Decimal) {
			sell, err := brk.CreateOrder(ctx, domain.OrderTypeSticky, domain.SideSell, position, broker.OrderParams{})
			if err != nil {
				slog.Error("trailing stop sell failed to start", slog.Any("error", err))
				return
			}
			watchOrder(ctx, bootstrap, "demo-sell", domain.OrderTypeSticky, sell, nil)
		})
	if err != nil {
		slog.Error("failed to arm trailing stop", slog.Any("error", err))
		return
	}
	slog.Info("trailing stop armed",
		slog.String("trail", trail.String()),
		slog.String("from", tk.Bid.String()))
}

// watchOrder logs an order's lifecycle and journals it on completion.
func watchOrder(ctx context.Context, bootstrap *app.Bootstrap, name string, typ domain.OrderType, o orders.Order, onDone func(domain.OrderState, decimal.Decimal)) {
	log := slog.With("order", name)

	var mu sync.Mutex
	var ids []string

	o.Events().OnStatusChange(func(s domain.OrderState) {
		log.Info("status", slog.String("state", s.String()))
	})
	o.Events().OnSuborder(func(id string, price decimal.Decimal) {
		mu.Lock()
		ids = append(ids, id)
		mu.Unlock()
		log.Info("suborder", slog.String("id", id), slog.String("price", price.String()))
	})
	o.Events().OnError(func(err error) {
		log.Error("order failed", slog.Any("error", err))
	})
	o.Events().OnCompleted(func(status domain.OrderState, filled decimal.Decimal) {
		log.Info("completed",
			slog.String("status", status.String()),
			slog.String("filled", filled.String()))

		mu.Lock()
		tradeIDs := append([]string(nil), ids...)
		mu.Unlock()
		journalOrder(ctx, bootstrap, typ, o, tradeIDs)

		if onDone != nil {
			onDone(status, filled)
		}
	})
}

func journalOrder(ctx context.Context, bootstrap *app.Bootstrap, typ domain.OrderType, o orders.Order, ids []string) {
	sum, err := o.Summary(ctx)
	if err != nil {
		slog.Warn("summary failed, order not journaled", slog.Any("error", err))
		return
	}

	var trades []storage.TradeRecord
	for _, id := range ids {
		rec, err := bootstrap.Exchange.GetOrder(ctx, id)
		if err != nil || rec.Amount.Sign() <= 0 {
			continue
		}
		trades = append(trades, storage.TradeRecord{ExchangeID: id, Record: rec})
	}

	cfg := bootstrap.Config
	pair := cfg.Market.Currency + "/" + cfg.Market.Asset
	if _, err := bootstrap.Journal.SaveOrder(cfg.Exchange.Name, pair, typ, sum, trades); err != nil {
		slog.Warn("failed to journal order", slog.Any("error", err))
		return
	}
	slog.Info("order journaled",
		slog.String("status", sum.Status.String()),
		slog.String("vwap", sum.Price.String()),
		slog.Int("suborders", sum.Suborders))
}

func report(bootstrap *app.Bootstrap) {
	snap := infra.GlobalMetrics.Snapshot()
	slog.Info("session metrics",
		slog.Uint64("orders_created", snap.OrdersCreated),
		slog.Uint64("suborders_placed", snap.SubordersPlaced),
		slog.Uint64("orders_filled", snap.OrdersFilled),
		slog.Uint64("orders_cancelled", snap.OrdersCancelled),
		slog.Uint64("retries", snap.Retries),
		slog.Uint64("triggers_fired", snap.TriggersFired),
		slog.Uint64("errors", snap.ErrorsTotal))

	rows, err := bootstrap.Journal.RecentOrders(5)
	if err != nil {
		return
	}
	for _, row := range rows {
		slog.Info("journaled order",
			slog.Uint64("id", uint64(row.ID)),
			slog.String("pair", row.Pair),
			slog.String("side", row.Side),
			slog.String("status", row.Status),
			slog.String("vwap", row.AvgPrice))
	}
}
