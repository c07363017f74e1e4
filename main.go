package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"solbot/internal/alerts"
	"solbot/internal/api"
	"solbot/internal/copytrade"
	"solbot/internal/events"
	"solbot/internal/ledger"
	"solbot/internal/persistence"
	"solbot/internal/session"
	"solbot/internal/trade"
	"solbot/pkg/config"
	"solbot/pkg/db"
	"solbot/pkg/jupiter"
	"solbot/pkg/market/dexscreener"
	"solbot/pkg/market/rugcheck"
	"solbot/pkg/solana"
	"solbot/pkg/telegram"
	"solbot/pkg/tokens"
)

const version = "1.0.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrMissingToken) {
			log.Fatal("config: set TELEGRAM_BOT_TOKEN before starting")
		}
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("starting solbot v%s", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("db migrations failed: %v", err)
	}

	// In-memory state seeded from DB
	ledgerStore := ledger.NewStore(database)
	if err := ledgerStore.Load(ctx); err != nil {
		log.Fatalf("ledger load failed: %v", err)
	}
	alertStore := alerts.NewStore(database)
	if err := alertStore.Load(ctx); err != nil {
		log.Fatalf("alert load failed: %v", err)
	}
	log.Printf("state loaded: %d accounts, %d alerts", len(ledgerStore.All()), alertStore.Len())

	catalog, err := tokens.Load(cfg.TokensFile)
	if err != nil {
		log.Fatalf("token catalog load failed: %v", err)
	}

	// External clients
	chain := solana.NewClient(cfg.SolanaRPCURL, cfg.RPCRateLimit)
	agg := jupiter.NewClient(cfg.JupiterURL)
	prices := dexscreener.NewClient(cfg.DexscreenerURL)
	scanner := rugcheck.NewClient(cfg.RugcheckURL)

	tg := telegram.NewClient(cfg.TelegramToken)
	me, err := tg.GetMe(ctx)
	if err != nil {
		log.Fatalf("telegram handshake failed: %v", err)
	}
	log.Printf("telegram connected as @%s", me.Username)

	// Trade pipeline
	executor := &trade.Executor{
		Ledger:           ledgerStore,
		Alerts:           alertStore,
		Agg:              agg,
		Chain:            chain,
		Prices:           prices,
		Bus:              bus,
		BroadcastRetries: cfg.BroadcastRetries,
		ConfirmTimeout:   cfg.ConfirmTimeout,
		ConfirmPoll:      cfg.ConfirmPoll,
	}

	// Background services
	alertEngine := alerts.NewEngine(alertStore, prices, bus, cfg.AlertInterval)
	alertEngine.Start(ctx)

	copyMonitor := copytrade.NewMonitor(ledgerStore, chain, bus, cfg.CopyInterval, 0)
	copyMonitor.Start(ctx)

	snapshotter := persistence.New(cfg.SnapshotInterval,
		persistence.Target{Name: "ledger", Snapshot: ledgerStore.Snapshot},
		persistence.Target{Name: "alerts", Snapshot: alertStore.Snapshot},
	)
	snapshotter.Start()

	// Bus notifications out to chats
	go notifier(ctx, bus, tg)

	// Operator API
	if cfg.EnableAPI {
		server := api.NewServer(bus, ledgerStore, alertStore, cfg.JWTSecret, version)
		go func() {
			addr := ":" + cfg.APIPort
			log.Printf("operator api listening on %s", addr)
			if err := server.Start(addr); err != nil {
				log.Printf("operator api stopped: %v", err)
			}
		}()
	}

	// Conversation loop
	handler := session.NewHandler(tg, ledgerStore, alertStore, executor, prices, scanner, chain, catalog, bus)
	go tg.Poll(ctx, func(u telegram.Update) { handler.HandleUpdate(ctx, u) })

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received %s, shutting down", sig)

	cancel()
	snapshotter.Close()
	log.Println("shutdown complete")
}

// notifier delivers bus notifications to their chats.
func notifier(ctx context.Context, bus *events.Bus, tg *telegram.Client) {
	topics := []events.Event{events.EventAlertFired, events.EventCopyTrade, events.EventNotify}
	merged := make(chan events.Notification, 256)
	for _, topic := range topics {
		stream, unsub := bus.Subscribe(topic, 64)
		defer unsub()
		go func(stream <-chan any) {
			for msg := range stream {
				if n, ok := msg.(events.Notification); ok {
					select {
					case merged <- n:
					default:
					}
				}
			}
		}(stream)
	}

	for {
		select {
		case n := <-merged:
			if _, err := tg.SendMessage(ctx, n.ChatID, n.Text, nil); err != nil {
				log.Printf("notify send to %d failed: %v", n.ChatID, err)
			}
		case <-ctx.Done():
			return
		}
	}
}
