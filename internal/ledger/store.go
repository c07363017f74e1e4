package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"solbot/pkg/db"
)

// Store keeps an in-memory view of all accounts while persisting snapshots
// to the database for durability.
type Store struct {
	mu       sync.RWMutex
	accounts map[int64]*Account
	db       *db.Database

	// inFlight guards "acquire signer → execute → mutate ledger" so at most
	// one trade per account is running at a time.
	flightMu sync.Mutex
	inFlight map[int64]bool
}

// NewStore creates an empty store backed by the given database (nil for
// tests).
func NewStore(database *db.Database) *Store {
	return &Store{
		accounts: make(map[int64]*Account),
		db:       database,
		inFlight: make(map[int64]bool),
	}
}

// Load seeds in-memory state from the snapshot on startup. Malformed rows
// are skipped, not fatal.
func (s *Store) Load(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	rows, err := s.db.LoadAccounts(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		var a Account
		if err := json.Unmarshal(r.Doc, &a); err != nil {
			log.Printf("ledger: skipping malformed account %s: %v", r.ID, err)
			continue
		}
		s.accounts[a.ID] = &a
	}
	log.Printf("ledger: loaded %d accounts", len(s.accounts))
	return nil
}

// Snapshot writes all accounts to the database, ordered by account id.
func (s *Store) Snapshot(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	s.mu.RLock()
	rows := make([]db.AccountRow, 0, len(s.accounts))
	for id, a := range s.accounts {
		doc, err := json.Marshal(a)
		if err != nil {
			s.mu.RUnlock()
			return fmt.Errorf("marshal account %d: %w", id, err)
		}
		rows = append(rows, db.AccountRow{ID: strconv.FormatInt(id, 10), Doc: doc})
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return s.db.SaveAccounts(ctx, rows)
}

// Get returns a snapshot copy of an account, creating it lazily on first
// interaction.
func (s *Store) Get(id int64) Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.getLocked(id)
}

func (s *Store) getLocked(id int64) *Account {
	a, ok := s.accounts[id]
	if !ok {
		a = &Account{ID: id, ChatID: id, Settings: DefaultSettings(id)}
		s.accounts[id] = a
	}
	return a
}

// Update applies an atomic read-modify-write to one account.
func (s *Store) Update(id int64, fn func(*Account)) Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.getLocked(id)
	fn(a)
	return *a
}

// All returns snapshot copies of every account, ordered by id.
func (s *Store) All() []Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CreditReferrer bumps the referral count of whoever owns the code and
// returns the referrer's id so the caller can notify them.
func (s *Store) CreditReferrer(code string) (int64, bool) {
	if code == "" {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Settings.ReferralCode == code {
			a.Settings.ReferralCount++
			return a.ID, true
		}
	}
	return 0, false
}

// BeginTrade marks an account as having a trade in flight. It returns false
// when one is already running; the caller must not start another.
func (s *Store) BeginTrade(id int64) bool {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	if s.inFlight[id] {
		return false
	}
	s.inFlight[id] = true
	return true
}

// EndTrade releases the per-account trade slot.
func (s *Store) EndTrade(id int64) {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	delete(s.inFlight, id)
}

// BuyFill describes a confirmed buy to merge into the ledger.
type BuyFill struct {
	Mint        string
	Symbol      string
	Name        string
	PriceUSD    float64
	PriceNative float64
	// Amount is the received quantity in raw base units.
	Amount   float64
	SolSpent float64
	// TP/SL percentages to record when the position is newly created.
	TPPercent float64
	SLPercent float64
}

// ApplyBuyFill merges a confirmed buy. Repeated buys of the same mint sum
// quantity and cost; the entry price fields keep their original values, so
// PnL after multiple buys is computed against the first entry. That matches
// the historical behavior this ledger is compatible with.
func (s *Store) ApplyBuyFill(id int64, f BuyFill) Account {
	return s.Update(id, func(a *Account) {
		merged := false
		for i := range a.Positions {
			if a.Positions[i].Mint == f.Mint {
				a.Positions[i].Amount += f.Amount
				a.Positions[i].SolSpent += f.SolSpent
				merged = true
				break
			}
		}
		if !merged {
			a.Positions = append(a.Positions, Position{
				Mint:             f.Mint,
				Symbol:           f.Symbol,
				Name:             f.Name,
				EntryPriceUSD:    f.PriceUSD,
				EntryPriceNative: f.PriceNative,
				Amount:           f.Amount,
				SolSpent:         f.SolSpent,
				TPPercent:        f.TPPercent,
				SLPercent:        f.SLPercent,
				EntryTime:        time.Now().UTC(),
			})
		}
		a.Stats.TotalTrades++
		a.Stats.TotalVolume += f.SolSpent
	})
}

// SellResult reports what a confirmed sell did to the ledger.
type SellResult struct {
	PnL    float64
	Closed bool
	HadPos bool
}

// ApplySellFill applies a confirmed sell of `fraction` (0 < fraction ≤ 1) of
// the position. Realized PnL for the sold slice is
// (currentNative − entryNative) / entryNative × cost × fraction. Selling the
// full remainder closes the position into history.
func (s *Store) ApplySellFill(id int64, mint string, fraction, currentNative, solReceived float64) SellResult {
	var res SellResult
	s.Update(id, func(a *Account) {
		idx := -1
		for i := range a.Positions {
			if a.Positions[i].Mint == mint {
				idx = i
				break
			}
		}
		if idx >= 0 {
			res.HadPos = true
			p := &a.Positions[idx]
			entry := p.EntryPriceNative
			if entry == 0 {
				entry = 1
			}
			res.PnL = (currentNative - entry) / entry * p.SolSpent * fraction
			a.Stats.TotalPnL += res.PnL
			if res.PnL > 0 {
				a.Stats.Wins++
			}

			if fraction >= 1 {
				rec := HistoryRecord{Position: *p, ExitTime: time.Now().UTC(), PnL: res.PnL}
				a.History = append([]HistoryRecord{rec}, a.History...)
				a.Positions = append(a.Positions[:idx], a.Positions[idx+1:]...)
				res.Closed = true
			} else {
				p.Amount *= 1 - fraction
				p.SolSpent *= 1 - fraction
			}
		}
		a.Stats.TotalTrades++
		a.Stats.TotalVolume += solReceived
	})
	return res
}
