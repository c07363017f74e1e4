// Package ledger keeps the per-account trading state: open positions,
// closed-trade history and aggregate stats. It is mutated only after a trade
// confirms on chain.
package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Settings are the per-account trading preferences.
type Settings struct {
	SlippageBps       int       `json:"slippageBps"`
	PriorityFeeSOL    float64   `json:"priorityFeeSol"`
	MinLiquidityUSD   float64   `json:"minLiqUsd"`
	MinScore          int       `json:"minScore"`
	QuickBuyAmounts   []float64 `json:"quickBuyAmounts"`
	QuickSellPercents []float64 `json:"quickSellPercents"`
	// Default TP/SL percentages applied to buys; 0 disables.
	TPPercent float64 `json:"tpPercent"`
	SLPercent float64 `json:"slPercent"`
	// Watched addresses for copy-trade notifications, capped at MaxCopyWallets.
	CopyWallets   []string `json:"copyWallets"`
	ReferralCode  string   `json:"referralCode"`
	ReferredBy    string   `json:"referredBy"`
	ReferralCount int      `json:"referralCount"`
}

// MaxCopyWallets bounds the watched-address list per account.
const MaxCopyWallets = 3

// DefaultSettings are applied when an account is first seen.
func DefaultSettings(accountID int64) Settings {
	return Settings{
		SlippageBps:       100,
		PriorityFeeSOL:    0.0005,
		MinLiquidityUSD:   5000,
		MinScore:          60,
		QuickBuyAmounts:   []float64{0.1, 0.5, 1, 5},
		QuickSellPercents: []float64{25, 50, 75, 100},
		ReferralCode:      referralCode(accountID),
	}
}

func referralCode(accountID int64) string {
	n := accountID % 100000
	if n < 0 {
		n = -n
	}
	code := strings.ToUpper(strconv.FormatInt(n, 36))
	return "RB" + fmt.Sprintf("%05s", code)
}

// Position is one open holding, one per (account, mint).
type Position struct {
	Mint             string    `json:"mint"`
	Symbol           string    `json:"symbol"`
	Name             string    `json:"name"`
	EntryPriceUSD    float64   `json:"entryPrice"`
	EntryPriceNative float64   `json:"entryPriceNative"`
	// Amount is in raw base units of the token; SolSpent is the cost basis.
	Amount   float64 `json:"amount"`
	SolSpent float64 `json:"solSpent"`
	// TP/SL percentages recorded at entry; 0 disables.
	TPPercent float64   `json:"tpPercent"`
	SLPercent float64   `json:"slPercent"`
	EntryTime time.Time `json:"entryTime"`
}

// HistoryRecord is a closed position snapshot, most recent first.
type HistoryRecord struct {
	Position
	ExitTime time.Time `json:"exitTime"`
	PnL      float64   `json:"pnl"`
}

// Stats aggregates an account's trading activity.
type Stats struct {
	TotalTrades int     `json:"totalTrades"`
	TotalVolume float64 `json:"totalVolume"`
	TotalPnL    float64 `json:"totalPnl"`
	Wins        int     `json:"wins"`
}

// Account is one chat user's full trading state. ChatID is where
// notifications are delivered; for private bots it equals the account id.
type Account struct {
	ID            int64           `json:"id"`
	ChatID        int64           `json:"chatId"`
	WalletAddress string          `json:"walletAddress"`
	Onboarded     bool            `json:"onboarded"`
	Settings      Settings        `json:"settings"`
	Positions     []Position      `json:"positions"`
	History       []HistoryRecord `json:"history"`
	Stats         Stats           `json:"stats"`
}

// Position returns the open position for a mint, if any.
func (a *Account) Position(mint string) (Position, bool) {
	for _, p := range a.Positions {
		if p.Mint == mint {
			return p, true
		}
	}
	return Position{}, false
}
