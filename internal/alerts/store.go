// Package alerts holds active price triggers and the periodic engine that
// fires them.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"solbot/pkg/db"
)

// Direction tells which side of the target fires the alert.
type Direction string

const (
	DirAbove Direction = "above"
	DirBelow Direction = "below"
)

// Kind distinguishes auto TP/SL alerts from manual ones.
type Kind string

const (
	KindTakeProfit Kind = "tp"
	KindStopLoss   Kind = "sl"
	KindManual     Kind = "manual"
)

// Alert is one active price trigger. It fires at most once and is removed
// from the store when it does.
type Alert struct {
	ID          string    `json:"id"`
	AccountID   int64     `json:"accountId"`
	ChatID      int64     `json:"chatId"`
	Mint        string    `json:"mint"`
	Symbol      string    `json:"symbol"`
	TargetPrice float64   `json:"targetPrice"`
	Direction   Direction `json:"direction"`
	Kind        Kind      `json:"kind"`
}

// Store is the mutable set of active alerts, snapshot-persisted.
type Store struct {
	mu     sync.RWMutex
	alerts []Alert
	db     *db.Database
}

// NewStore creates an empty store backed by the given database (nil for
// tests).
func NewStore(database *db.Database) *Store {
	return &Store{db: database}
}

// Load seeds alerts from the snapshot. Malformed rows are skipped.
func (s *Store) Load(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	rows, err := s.db.LoadAlerts(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		var a Alert
		if err := json.Unmarshal(r.Doc, &a); err != nil {
			log.Printf("alerts: skipping malformed alert %s: %v", r.ID, err)
			continue
		}
		s.alerts = append(s.alerts, a)
	}
	return nil
}

// Snapshot writes the current alert set to the database.
func (s *Store) Snapshot(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	s.mu.RLock()
	rows := make([]db.AlertRow, 0, len(s.alerts))
	for _, a := range s.alerts {
		doc, err := json.Marshal(a)
		if err != nil {
			s.mu.RUnlock()
			return fmt.Errorf("marshal alert %s: %w", a.ID, err)
		}
		rows = append(rows, db.AlertRow{ID: a.ID, Doc: doc})
	}
	s.mu.RUnlock()
	return s.db.SaveAlerts(ctx, rows)
}

// Add registers an alert and returns it with its id assigned.
func (s *Store) Add(a Alert) Alert {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.alerts = append(s.alerts, a)
	s.mu.Unlock()
	return a
}

// All returns a snapshot of every active alert.
func (s *Store) All() []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// ForAccount returns the account's alerts in registration order.
func (s *Store) ForAccount(accountID int64) []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Alert
	for _, a := range s.alerts {
		if a.AccountID == accountID {
			out = append(out, a)
		}
	}
	return out
}

// Remove deletes one alert by id.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.alerts {
		if a.ID == id {
			s.alerts = append(s.alerts[:i], s.alerts[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveBatch deletes alerts by identity, so firing several alerts in one
// tick cannot shift positions out from under the removal.
func (s *Store) RemoveBatch(ids []string) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.alerts[:0]
	for _, a := range s.alerts {
		if !drop[a.ID] {
			kept = append(kept, a)
		}
	}
	s.alerts = kept
}

// PurgeMint removes every alert the account holds for a mint. Called when a
// position fully closes.
func (s *Store) PurgeMint(accountID int64, mint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.alerts[:0]
	removed := 0
	for _, a := range s.alerts {
		if a.AccountID == accountID && a.Mint == mint {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	s.alerts = kept
	return removed
}

// Len reports the number of active alerts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}
