package copytrade

import (
	"context"
	"fmt"
	"testing"

	"solbot/internal/events"
	"solbot/internal/ledger"
	"solbot/pkg/solana"
)

type fakeChain struct {
	sigs map[string][]solana.SignatureInfo
	logs map[string][]string
}

func (f *fakeChain) GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]solana.SignatureInfo, error) {
	s := f.sigs[address]
	if len(s) > limit {
		s = s[:limit]
	}
	return s, nil
}

func (f *fakeChain) GetTransactionLogs(ctx context.Context, signature string) ([]string, bool, error) {
	logs, ok := f.logs[signature]
	return logs, ok, nil
}

type fakeAccounts struct{ accounts []ledger.Account }

func (f *fakeAccounts) All() []ledger.Account { return f.accounts }

func TestIsAggregatorTrade(t *testing.T) {
	tests := []struct {
		name string
		logs []string
		want bool
	}{
		{"aggregator program log", []string{"Program JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4 invoke [1]"}, true},
		{"plain transfer", []string{"Program 11111111111111111111111111111111 invoke [1]"}, false},
		{"empty logs", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAggregatorTrade(tt.logs); got != tt.want {
				t.Fatalf("IsAggregatorTrade=%v, expected %v", got, tt.want)
			}
		})
	}
}

// A signature must notify once; the dedup set swallows repeats across ticks.
func TestTickDeduplicatesSignatures(t *testing.T) {
	watched := "WatchedWa11etAddre55111111111111111111111111"
	chain := &fakeChain{
		sigs: map[string][]solana.SignatureInfo{
			watched: {{Signature: "sig1"}},
		},
		logs: map[string][]string{
			"sig1": {"Program JUP6 invoke"},
		},
	}
	accounts := &fakeAccounts{accounts: []ledger.Account{{
		ID: 1, ChatID: 1,
		Settings: ledger.Settings{CopyWallets: []string{watched}},
	}}}

	bus := events.NewBus()
	stream, unsub := bus.Subscribe(events.EventCopyTrade, 10)
	defer unsub()

	m := NewMonitor(accounts, chain, bus, 0, 0)
	m.Tick(context.Background())
	m.Tick(context.Background())

	got := 0
	for {
		select {
		case <-stream:
			got++
			continue
		default:
		}
		break
	}
	if got != 1 {
		t.Fatalf("notifications=%d, expected exactly 1", got)
	}
}

// Accounts without watched wallets cost no RPC calls; non-aggregator
// transactions are marked seen but not notified.
func TestTickIgnoresNonAggregatorTrades(t *testing.T) {
	watched := "WatchedWa11etAddre55111111111111111111111111"
	chain := &fakeChain{
		sigs: map[string][]solana.SignatureInfo{
			watched: {{Signature: "sigPlain"}},
		},
		logs: map[string][]string{
			"sigPlain": {"Program 11111111111111111111111111111111 invoke [1]"},
		},
	}
	accounts := &fakeAccounts{accounts: []ledger.Account{
		{ID: 1, ChatID: 1, Settings: ledger.Settings{CopyWallets: []string{watched}}},
		{ID: 2, ChatID: 2},
	}}

	bus := events.NewBus()
	stream, unsub := bus.Subscribe(events.EventCopyTrade, 10)
	defer unsub()

	m := NewMonitor(accounts, chain, bus, 0, 0)
	m.Tick(context.Background())

	select {
	case msg := <-stream:
		t.Fatalf("unexpected notification: %v", msg)
	default:
	}
}

func TestSeenSetEvictsOldestFirst(t *testing.T) {
	s := newSeenSet(3)
	for i := 0; i < 3; i++ {
		if !s.Mark(fmt.Sprintf("sig%d", i)) {
			t.Fatalf("sig%d reported as already seen", i)
		}
	}
	if s.Mark("sig0") {
		t.Fatal("sig0 not recognized while still in the set")
	}

	// Overflow: sig0 is the oldest and must go first.
	if !s.Mark("sig3") {
		t.Fatal("sig3 reported as already seen")
	}
	if !s.Mark("sig0") {
		t.Fatal("sig0 still recognized after eviction")
	}
	if s.Len() > 3 {
		t.Fatalf("set size %d exceeds bound 3", s.Len())
	}
}
