// Package session drives the per-chat conversation: slash commands, inline
// keyboard callbacks, and the multi-step input flows that collect trade
// parameters before execution.
package session

import (
	"context"
	"sync"

	"solbot/internal/alerts"
	"solbot/internal/events"
	"solbot/internal/ledger"
	"solbot/internal/trade"
	"solbot/pkg/market/dexscreener"
	"solbot/pkg/market/rugcheck"
	"solbot/pkg/solana"
	"solbot/pkg/telegram"
	"solbot/pkg/tokens"
)

// Step is the conversation state for one chat. The zero value is idle.
type Step string

const (
	StepNone Step = ""

	StepScan Step = "scan"

	StepBuyAmount     Step = "buy_amount"
	StepBuyPercent    Step = "buy_percent"
	StepBuyTPSLAmount Step = "buy_tpsl_amount"
	StepBuyTP         Step = "buy_tp"
	StepBuySL         Step = "buy_sl"

	StepSellPercent Step = "sell_percent"

	StepSendAddress Step = "send_address"
	StepSendAmount  Step = "send_amount"

	StepSwapOutputMint Step = "swap_output_mint"
	StepSwapAmount     Step = "swap_amount"

	StepSendTokenAddress Step = "send_token_address"
	StepSendTokenAmount  Step = "send_token_amount"

	StepAlertMint  Step = "alert_mint"
	StepAlertPrice Step = "alert_price"

	StepCopyAdd Step = "copy_add"

	StepSettingValue Step = "setting_value"
	StepSetTP        Step = "set_tp"
	StepSetSL        Step = "set_sl"

	// StepSecret is the terminal step of every signing flow: the next
	// message is treated as the wallet secret, deleted from the chat, and
	// never persisted or logged.
	StepSecret Step = "secret"
)

// pending carries the parameters collected so far for the current flow.
type pending struct {
	Step   Step
	Action string // buy | sell | send | swap | send_token

	Mint      string
	Symbol    string
	AmountSOL float64
	Percent   float64
	TP        float64
	SL        float64

	Dest       string
	InputMint  string
	OutputMint string
	UIAmount   float64

	SettingKey string
}

// sessions is the in-memory per-chat conversation state. It is deliberately
// not persisted: a restart drops half-finished flows, which is the safe
// behavior when one of them may be waiting for a secret.
type sessions struct {
	mu sync.Mutex
	m  map[int64]*pending
}

func (s *sessions) get(chatID int64) pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.m[chatID]; ok {
		return *p
	}
	return pending{}
}

func (s *sessions) set(chatID int64, p pending) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.m[chatID] = &cp
}

func (s *sessions) clear(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, chatID)
}

// PriceSource resolves token market data.
type PriceSource interface {
	GetTokenInfo(ctx context.Context, mint string) (*dexscreener.TokenInfo, error)
}

// Scanner grades a token's risk.
type Scanner interface {
	ScanToken(ctx context.Context, mint string, minScore int) rugcheck.Scan
}

// ChainReader is the read-only RPC surface the conversation needs.
type ChainReader interface {
	GetBalance(ctx context.Context, address string) (uint64, error)
	GetTokenAccountsByOwner(ctx context.Context, owner, mint string) ([]solana.TokenAccount, error)
}

// Handler routes Telegram updates through the conversation state machine.
type Handler struct {
	TG      *telegram.Client
	Ledger  *ledger.Store
	Alerts  *alerts.Store
	Exec    *trade.Executor
	Prices  PriceSource
	Scanner Scanner
	Chain   ChainReader
	Catalog *tokens.Catalog
	Bus     *events.Bus

	sessions sessions
}

// NewHandler wires the conversation handler.
func NewHandler(tg *telegram.Client, st *ledger.Store, al *alerts.Store, ex *trade.Executor, prices PriceSource, scanner Scanner, chain ChainReader, catalog *tokens.Catalog, bus *events.Bus) *Handler {
	return &Handler{
		TG:       tg,
		Ledger:   st,
		Alerts:   al,
		Exec:     ex,
		Prices:   prices,
		Scanner:  scanner,
		Chain:    chain,
		Catalog:  catalog,
		Bus:      bus,
		sessions: sessions{m: make(map[int64]*pending)},
	}
}

// StepFor reports the current conversation step for a chat.
func (h *Handler) StepFor(chatID int64) Step {
	return h.sessions.get(chatID).Step
}
