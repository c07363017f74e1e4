package alerts

import (
	"context"
	"fmt"
	"log"
	"time"

	"solbot/internal/events"
	"solbot/pkg/market/dexscreener"
)

// PriceSource looks up current prices for the engine.
type PriceSource interface {
	GetTokenInfo(ctx context.Context, mint string) (*dexscreener.TokenInfo, error)
}

// Engine periodically evaluates active alerts and fires the ones whose
// target has been crossed. It runs concurrently with user-driven mutations
// of the same store; an alert may fire for a position the user is closing at
// that moment — that is accepted best-effort behavior.
type Engine struct {
	store    *Store
	prices   PriceSource
	bus      *events.Bus
	interval time.Duration
}

// NewEngine wires the alert engine.
func NewEngine(store *Store, prices PriceSource, bus *events.Bus, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Engine{store: store, prices: prices, bus: bus, interval: interval}
}

// Start begins the periodic evaluation loop.
func (e *Engine) Start(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.Tick(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	log.Printf("alert engine started (interval: %v)", e.interval)
}

// Tick evaluates every active alert once. Price fetch failures skip the
// alert; it stays in the store and is retried next period. All alerts that
// fired in this tick are removed in a single batch, and the store is
// persisted only when something fired.
func (e *Engine) Tick(ctx context.Context) {
	active := e.store.All()
	if len(active) == 0 {
		return
	}

	var fired []string
	for _, a := range active {
		info, err := e.prices.GetTokenInfo(ctx, a.Mint)
		if err != nil {
			continue
		}
		if !Triggered(a, info.PriceUSD) {
			continue
		}

		e.notify(a, info.PriceUSD)
		fired = append(fired, a.ID)
	}

	if len(fired) == 0 {
		return
	}
	e.store.RemoveBatch(fired)
	if err := e.store.Snapshot(ctx); err != nil {
		log.Printf("alert snapshot failed: %v", err)
	}
}

// Triggered reports whether price has crossed the alert's target.
func Triggered(a Alert, price float64) bool {
	switch a.Direction {
	case DirAbove:
		return price >= a.TargetPrice
	case DirBelow:
		return price <= a.TargetPrice
	default:
		return false
	}
}

func (e *Engine) notify(a Alert, price float64) {
	if e.bus == nil {
		return
	}
	label := "Alert"
	switch a.Kind {
	case KindTakeProfit:
		label = "Take-profit"
	case KindStopLoss:
		label = "Stop-loss"
	}
	text := fmt.Sprintf(
		"*%s triggered!*\n\n%s is now $%.8f\nTarget was: $%.8f (%s)\n\n[View on DexScreener](https://dexscreener.com/solana/%s)",
		label, a.Symbol, price, a.TargetPrice, a.Direction, a.Mint)
	e.bus.Publish(events.EventAlertFired, events.Notification{ChatID: a.ChatID, Text: text})
}
