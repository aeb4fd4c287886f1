// Package app wires configuration, logging, persistence, the exchange
// adapter and the broker into a runnable unit.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"broker_go/internal/broker"
	"broker_go/internal/domain"
	"broker_go/internal/infra"
	"broker_go/internal/infra/bitget"
	"broker_go/internal/infra/paper"
	"broker_go/internal/infra/storage"
)

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config   *infra.Config
	Log      *slog.Logger
	Journal  *storage.Journal
	Exchange domain.Exchange
	Broker   *broker.Broker

	paperVenue   *paper.Exchange
	bitgetClient *bitget.Client
}

func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads the configuration and builds every component, in
// dependency order. Nothing touches the network yet.
func (b *Bootstrap) Initialize(configPath string) error {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)
	b.Log = logger
	slog.Info("🚀 Bootstrapping broker...",
		slog.String("exchange", cfg.Exchange.Name),
		slog.String("market", cfg.Market.Currency+"/"+cfg.Market.Asset))

	journal, err := storage.NewJournal("data/journal.db")
	if err != nil {
		return err
	}
	b.Journal = journal
	slog.Info("✅ Journal initialized")

	if err := b.buildExchange(); err != nil {
		return err
	}
	slog.Info("✅ Exchange adapter ready", slog.String("name", b.Exchange.Capabilities().Name))

	brk, err := broker.New(b.Exchange, broker.Config{
		Currency: cfg.Market.Currency,
		Asset:    cfg.Market.Asset,
		Private:  cfg.Broker.Private,
		Outbid:   cfg.Broker.Outbid,
	}, logger, infra.DefaultRetryOptions())
	if err != nil {
		return err
	}
	b.Broker = brk
	slog.Info("✅ Broker ready", slog.Bool("private", cfg.Broker.Private))

	return nil
}

func (b *Bootstrap) buildExchange() error {
	cfg := b.Config
	switch cfg.Exchange.Name {
	case "paper":
		b.paperVenue = paper.New(b.Log)
		b.Exchange = b.paperVenue
	case "bitget":
		client, err := bitget.New(bitget.Options{
			RestURL:    cfg.Exchange.RestURL,
			WSURL:      cfg.Exchange.WSURL,
			Key:        cfg.Exchange.Key,
			Secret:     cfg.Exchange.Secret,
			Passphrase: cfg.Exchange.Passphrase,
			Currency:   cfg.Market.Currency,
			Asset:      cfg.Market.Asset,
		}, b.Log)
		if err != nil {
			return err
		}
		b.bitgetClient = client
		b.Exchange = client
	default:
		return fmt.Errorf("unknown exchange %q", cfg.Exchange.Name)
	}
	return nil
}

// StartFeeds begins the venue's market data flow: the websocket worker
// for bitget, a drifting book for the paper venue.
func (b *Bootstrap) StartFeeds(ctx context.Context) {
	if b.bitgetClient != nil {
		b.bitgetClient.Connect(ctx)
	}
	if b.paperVenue != nil {
		go b.paperVenue.Drift(ctx, 250*time.Millisecond)
	}
}

// SyncLoop refreshes broker state at the configured interval until ctx
// is done. The first sync is the caller's, so a failed startup surfaces
// synchronously.
func (b *Bootstrap) SyncLoop(ctx context.Context) {
	interval := time.Duration(b.Config.Broker.SyncIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.Broker.Sync(ctx); err != nil {
				slog.Warn("broker sync failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Shutdown releases held resources.
func (b *Bootstrap) Shutdown() {
	if b.bitgetClient != nil {
		b.bitgetClient.Disconnect()
	}
	if b.Journal != nil {
		b.Journal.Close()
	}
}
