// Package trade turns validated trade intents into signed, broadcast,
// confirmed transactions, and applies the results to the ledger.
package trade

import (
	"context"
	"errors"

	"solbot/pkg/jupiter"
	"solbot/pkg/market/dexscreener"
	"solbot/pkg/solana"
)

// Pipeline failure taxonomy. Every failure aborts the trade and leaves the
// ledger unmutated.
var (
	ErrNoRoute         = errors.New("trade: no route for pair")
	ErrBuildFailed     = errors.New("trade: aggregator could not build the transaction")
	ErrBroadcastFailed = errors.New("trade: broadcast failed")
	// ErrConfirmTimeout means confirmation polling ran out. The transaction
	// may still land afterwards; the ledger will not reflect it.
	ErrConfirmTimeout = errors.New("trade: confirmation timed out")
	// ErrNoBalance means the wallet cannot cover the amount plus the fee
	// reserve.
	ErrNoBalance = errors.New("trade: no token balance found")
	// ErrNoTokenAccount means the destination cannot receive the token.
	ErrNoTokenAccount = errors.New("trade: destination has no token account for this asset")
	// ErrTradeInFlight means another trade for this account is still running.
	ErrTradeInFlight = errors.New("trade: another trade is already in flight")
)

// Signer is the one-operation signing capability acquired from the user.
type Signer interface {
	PublicAddress() string
	SignAggregatorTx(payloadBase64 string) (string, error)
	BuildTransfer(to, blockhash string, lamports uint64) (string, error)
	BuildTokenTransfer(sourceAccount, destAccount, blockhash string, rawAmount uint64) (string, error)
}

// Aggregator is the quote/build surface of the swap aggregator.
type Aggregator interface {
	GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*jupiter.Quote, error)
	BuildSwap(ctx context.Context, quote *jupiter.Quote, userPublicKey string, priorityFeeLamports uint64) (string, error)
}

// Chain is the slice of the RPC surface the pipeline needs.
type Chain interface {
	GetBalance(ctx context.Context, address string) (uint64, error)
	GetLatestBlockhash(ctx context.Context) (string, error)
	SendRawTransaction(ctx context.Context, txBase64 string) (string, error)
	ConfirmationStatus(ctx context.Context, signature string) (confirmed, found bool, err error)
	GetTokenAccountsByOwner(ctx context.Context, owner, mint string) ([]solana.TokenAccount, error)
}

// Prices looks up market data for post-fill bookkeeping.
type Prices interface {
	GetTokenInfo(ctx context.Context, mint string) (*dexscreener.TokenInfo, error)
}

// Receipt reports a confirmed trade back to the caller.
type Receipt struct {
	Signature string
	OutAmount uint64
	// Sell bookkeeping.
	PnL    float64
	Closed bool
	// TP/SL alert registration outcome for buys.
	TPSet bool
	SLSet bool
}

// ExplorerURL links the transaction on the public explorer.
func (r *Receipt) ExplorerURL() string {
	return "https://solscan.io/tx/" + r.Signature
}
