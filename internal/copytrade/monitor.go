// Package copytrade watches other addresses for qualifying trades and
// notifies the accounts tracking them.
package copytrade

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"solbot/internal/events"
	"solbot/internal/ledger"
	"solbot/pkg/solana"
)

// ChainSource is the slice of the RPC surface the monitor needs.
type ChainSource interface {
	GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]solana.SignatureInfo, error)
	GetTransactionLogs(ctx context.Context, signature string) ([]string, bool, error)
}

// AccountSource lists the accounts to scan for.
type AccountSource interface {
	All() []ledger.Account
}

// Lookback is how many recent signatures are inspected per watched address
// each tick. Trades older than the Nth-most-recent signature between ticks
// are missed; that is a documented limitation of the polling approach.
const Lookback = 5

// Monitor is the periodic copy-trade scanner.
type Monitor struct {
	accounts AccountSource
	chain    ChainSource
	bus      *events.Bus
	interval time.Duration
	seen     *seenSet
}

// NewMonitor wires the copy-trade monitor. maxSeen bounds the dedup set;
// once full, the oldest entries are evicted first.
func NewMonitor(accounts AccountSource, chain ChainSource, bus *events.Bus, interval time.Duration, maxSeen int) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if maxSeen <= 0 {
		maxSeen = 10_000
	}
	return &Monitor{
		accounts: accounts,
		chain:    chain,
		bus:      bus,
		interval: interval,
		seen:     newSeenSet(maxSeen),
	}
}

// Start begins the periodic scan loop.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Tick(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	log.Printf("copy-trade monitor started (interval: %v)", m.interval)
}

// Tick scans every (account, watched address) pair once. Fetch failures for
// one address never block the rest of the scan.
func (m *Monitor) Tick(ctx context.Context) {
	for _, acct := range m.accounts.All() {
		if len(acct.Settings.CopyWallets) == 0 || acct.WalletAddress == "" {
			continue
		}
		for _, watched := range acct.Settings.CopyWallets {
			if err := m.scanAddress(ctx, acct, watched); err != nil {
				log.Printf("copytrade: scan %s failed: %v", shortAddr(watched), err)
			}
		}
	}
}

func (m *Monitor) scanAddress(ctx context.Context, acct ledger.Account, watched string) error {
	sigs, err := m.chain.GetSignaturesForAddress(ctx, watched, Lookback)
	if err != nil {
		return err
	}
	for _, sig := range sigs {
		if !m.seen.Mark(sig.Signature) {
			continue
		}
		logs, found, err := m.chain.GetTransactionLogs(ctx, sig.Signature)
		if err != nil || !found {
			continue
		}
		if !IsAggregatorTrade(logs) {
			continue
		}
		m.notify(acct, watched, sig.Signature)
	}
	return nil
}

// IsAggregatorTrade classifies a transaction by its log messages. Any
// mention of the swap aggregator's program counts as a qualifying trade.
// The heuristic is transport-specific and intentionally loose.
func IsAggregatorTrade(logs []string) bool {
	for _, l := range logs {
		if strings.Contains(l, "JUP") {
			return true
		}
	}
	return false
}

func (m *Monitor) notify(acct ledger.Account, watched, signature string) {
	if m.bus == nil {
		return
	}
	text := fmt.Sprintf(
		"*Copy Trade Detected*\n\nWallet `%s...` made a trade.\n[View TX](https://solscan.io/tx/%s)\n\nTo copy this trade, scan the token address above.",
		shortAddr(watched), signature)
	m.bus.Publish(events.EventCopyTrade, events.Notification{ChatID: acct.ChatID, Text: text})
}

func shortAddr(a string) string {
	if len(a) <= 8 {
		return a
	}
	return a[:8]
}

// seenSet is a FIFO-bounded set of transaction signatures.
type seenSet struct {
	mu    sync.Mutex
	set   map[string]struct{}
	order []string
	max   int
}

func newSeenSet(max int) *seenSet {
	return &seenSet{set: make(map[string]struct{}), max: max}
}

// Mark returns true when the signature was not seen before, recording it and
// evicting the oldest entry if the cap is reached.
func (s *seenSet) Mark(sig string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set[sig]; ok {
		return false
	}
	s.set[sig] = struct{}{}
	s.order = append(s.order, sig)
	if len(s.order) > s.max {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.set, oldest)
	}
	return true
}

// Len reports the current dedup set size.
func (s *seenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.set)
}
