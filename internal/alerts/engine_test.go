package alerts

import (
	"context"
	"errors"
	"testing"

	"solbot/internal/events"
	"solbot/pkg/market/dexscreener"
)

type fakePrices struct {
	prices map[string]float64
	errs   map[string]error
	calls  int
}

func (f *fakePrices) GetTokenInfo(ctx context.Context, mint string) (*dexscreener.TokenInfo, error) {
	f.calls++
	if err, ok := f.errs[mint]; ok {
		return nil, err
	}
	return &dexscreener.TokenInfo{Mint: mint, Symbol: "TOK", PriceUSD: f.prices[mint]}, nil
}

func TestTriggered(t *testing.T) {
	tests := []struct {
		name  string
		alert Alert
		price float64
		want  bool
	}{
		{"above fires at target", Alert{Direction: DirAbove, TargetPrice: 2.2}, 2.2, true},
		{"above fires past target", Alert{Direction: DirAbove, TargetPrice: 2.2}, 3.0, true},
		{"above holds under target", Alert{Direction: DirAbove, TargetPrice: 2.2}, 2.19, false},
		{"below fires at target", Alert{Direction: DirBelow, TargetPrice: 1.5}, 1.5, true},
		{"below fires past target", Alert{Direction: DirBelow, TargetPrice: 1.5}, 1.0, true},
		{"below holds over target", Alert{Direction: DirBelow, TargetPrice: 1.5}, 1.51, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Triggered(tt.alert, tt.price); got != tt.want {
				t.Fatalf("Triggered=%v, expected %v", got, tt.want)
			}
		})
	}
}

// A fired alert must be removed and notified exactly once; running the tick
// again at the same price must do nothing.
func TestTickFiresAtMostOnce(t *testing.T) {
	store := NewStore(nil)
	store.Add(Alert{AccountID: 1, ChatID: 1, Mint: "mintA", Symbol: "AAA", TargetPrice: 2.0, Direction: DirAbove, Kind: KindTakeProfit})

	bus := events.NewBus()
	stream, unsub := bus.Subscribe(events.EventAlertFired, 10)
	defer unsub()

	prices := &fakePrices{prices: map[string]float64{"mintA": 2.5}}
	engine := NewEngine(store, prices, bus, 0)

	engine.Tick(context.Background())
	if store.Len() != 0 {
		t.Fatalf("store has %d alerts after firing, expected 0", store.Len())
	}
	select {
	case msg := <-stream:
		if _, ok := msg.(events.Notification); !ok {
			t.Fatalf("payload type %T, expected Notification", msg)
		}
	default:
		t.Fatal("no notification published")
	}

	engine.Tick(context.Background())
	select {
	case <-stream:
		t.Fatal("second tick re-fired a removed alert")
	default:
	}
}

// Price fetch failures keep the alert active for the next period.
func TestTickSkipsUnfetchablePrices(t *testing.T) {
	store := NewStore(nil)
	store.Add(Alert{AccountID: 1, Mint: "mintA", TargetPrice: 1.0, Direction: DirAbove})
	store.Add(Alert{AccountID: 1, Mint: "mintB", TargetPrice: 1.0, Direction: DirAbove})

	prices := &fakePrices{
		prices: map[string]float64{"mintB": 5.0},
		errs:   map[string]error{"mintA": errors.New("rate limited")},
	}
	engine := NewEngine(store, prices, events.NewBus(), 0)
	engine.Tick(context.Background())

	remaining := store.All()
	if len(remaining) != 1 {
		t.Fatalf("store has %d alerts, expected 1 surviving fetch failure", len(remaining))
	}
	if remaining[0].Mint != "mintA" {
		t.Fatalf("surviving alert is %s, expected mintA", remaining[0].Mint)
	}
}

// Both TP and SL alerts for a mint can fire in the same tick; removal is one
// batch.
func TestTickBatchRemoval(t *testing.T) {
	store := NewStore(nil)
	store.Add(Alert{AccountID: 1, Mint: "mintA", TargetPrice: 2.0, Direction: DirAbove, Kind: KindTakeProfit})
	store.Add(Alert{AccountID: 2, Mint: "mintA", TargetPrice: 3.0, Direction: DirBelow, Kind: KindStopLoss})
	store.Add(Alert{AccountID: 3, Mint: "mintB", TargetPrice: 100, Direction: DirAbove, Kind: KindManual})

	prices := &fakePrices{prices: map[string]float64{"mintA": 2.5, "mintB": 1.0}}
	engine := NewEngine(store, prices, events.NewBus(), 0)
	engine.Tick(context.Background())

	remaining := store.All()
	if len(remaining) != 1 || remaining[0].Mint != "mintB" {
		t.Fatalf("remaining=%v, expected only the mintB alert", remaining)
	}
}

func TestPurgeMint(t *testing.T) {
	store := NewStore(nil)
	store.Add(Alert{AccountID: 1, Mint: "mintA", Kind: KindTakeProfit})
	store.Add(Alert{AccountID: 1, Mint: "mintA", Kind: KindStopLoss})
	store.Add(Alert{AccountID: 1, Mint: "mintB", Kind: KindManual})
	store.Add(Alert{AccountID: 2, Mint: "mintA", Kind: KindManual})

	if n := store.PurgeMint(1, "mintA"); n != 2 {
		t.Fatalf("purged %d, expected 2", n)
	}
	if store.Len() != 2 {
		t.Fatalf("store has %d alerts, expected 2", store.Len())
	}
	for _, a := range store.All() {
		if a.AccountID == 1 && a.Mint == "mintA" {
			t.Fatal("purge left an account 1 mintA alert behind")
		}
	}
}

func TestRemoveBatchByIdentity(t *testing.T) {
	store := NewStore(nil)
	a := store.Add(Alert{AccountID: 1, Mint: "mintA"})
	b := store.Add(Alert{AccountID: 1, Mint: "mintB"})
	c := store.Add(Alert{AccountID: 1, Mint: "mintC"})

	store.RemoveBatch([]string{a.ID, c.ID, "not-an-id"})
	remaining := store.All()
	if len(remaining) != 1 || remaining[0].ID != b.ID {
		t.Fatalf("remaining=%v, expected only %s", remaining, b.ID)
	}
}
