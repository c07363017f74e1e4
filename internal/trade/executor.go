package trade

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"solbot/internal/alerts"
	"solbot/internal/events"
	"solbot/internal/ledger"
	"solbot/pkg/jupiter"
	"solbot/pkg/solana"
	"solbot/pkg/tokens"
)

// SOL kept back from buys and swaps so the wallet can still pay network and
// account-rent fees.
const (
	buyReserveSOL  = 0.01
	swapReserveSOL = 0.002
)

// Executor runs the quote → build → sign → broadcast → confirm pipeline and
// applies confirmed fills to the ledger. All ledger and alert side effects
// happen strictly after on-chain confirmation; any failure leaves both
// untouched.
type Executor struct {
	Ledger *ledger.Store
	Alerts *alerts.Store
	Agg    Aggregator
	Chain  Chain
	Prices Prices
	Bus    *events.Bus

	BroadcastRetries int
	ConfirmTimeout   time.Duration
	ConfirmPoll      time.Duration
}

// ExecuteBuy swaps solAmount SOL into mint and records the fill. tpPct/slPct
// above zero also register take-profit / stop-loss alerts at the entry price.
func (e *Executor) ExecuteBuy(ctx context.Context, acct ledger.Account, signer Signer, mint string, solAmount, tpPct, slPct float64) (*Receipt, error) {
	if !e.Ledger.BeginTrade(acct.ID) {
		return nil, ErrTradeInFlight
	}
	defer e.Ledger.EndTrade(acct.ID)

	lamports := uint64(solAmount * float64(tokens.LamportsPerSOL))
	if err := e.checkSolCovers(ctx, signer.PublicAddress(), lamports, buyReserveSOL); err != nil {
		return nil, err
	}
	sig, outAmount, err := e.runSwap(ctx, signer, tokens.SOLMint, mint, lamports, acct.Settings)
	if err != nil {
		e.publishFailure(acct, "buy", mint, err)
		return nil, err
	}

	// Best effort: a fill with no market data is still a fill.
	var symbol, name string
	var priceUSD, priceNative float64
	if info, perr := e.Prices.GetTokenInfo(ctx, mint); perr == nil {
		symbol, name = info.Symbol, info.Name
		priceUSD, priceNative = info.PriceUSD, info.PriceNative
	} else {
		log.Printf("trade: buy fill for %s confirmed but price lookup failed: %v", mint, perr)
		symbol = shortMint(mint)
	}

	e.Ledger.ApplyBuyFill(acct.ID, ledger.BuyFill{
		Mint:        mint,
		Symbol:      symbol,
		Name:        name,
		PriceUSD:    priceUSD,
		PriceNative: priceNative,
		Amount:      float64(outAmount),
		SolSpent:    solAmount,
		TPPercent:   tpPct,
		SLPercent:   slPct,
	})

	rcpt := &Receipt{Signature: sig, OutAmount: outAmount}
	if priceUSD > 0 {
		if tpPct > 0 {
			e.Alerts.Add(alerts.Alert{
				AccountID:   acct.ID,
				ChatID:      acct.ChatID,
				Mint:        mint,
				Symbol:      symbol,
				TargetPrice: priceUSD * (1 + tpPct/100),
				Direction:   alerts.DirAbove,
				Kind:        alerts.KindTakeProfit,
			})
			rcpt.TPSet = true
		}
		if slPct > 0 {
			e.Alerts.Add(alerts.Alert{
				AccountID:   acct.ID,
				ChatID:      acct.ChatID,
				Mint:        mint,
				Symbol:      symbol,
				TargetPrice: priceUSD * (1 - slPct/100),
				Direction:   alerts.DirBelow,
				Kind:        alerts.KindStopLoss,
			})
			rcpt.SLSet = true
		}
	}

	e.publishSuccess(acct, "buy", mint, sig)
	return rcpt, nil
}

// ExecuteSell swaps percent (0 < percent ≤ 100) of the wallet's mint balance
// back to SOL and realizes PnL against the recorded entry.
func (e *Executor) ExecuteSell(ctx context.Context, acct ledger.Account, signer Signer, mint string, percent float64) (*Receipt, error) {
	if !e.Ledger.BeginTrade(acct.ID) {
		return nil, ErrTradeInFlight
	}
	defer e.Ledger.EndTrade(acct.ID)

	accounts, err := e.Chain.GetTokenAccountsByOwner(ctx, signer.PublicAddress(), mint)
	if err != nil {
		return nil, fmt.Errorf("trade: token balance lookup: %w", err)
	}
	raw := totalRawBalance(accounts)
	if raw == 0 {
		return nil, ErrNoBalance
	}
	sellRaw := uint64(math.Floor(float64(raw) * percent / 100))
	if sellRaw == 0 {
		return nil, ErrNoBalance
	}

	sig, outLamports, err := e.runSwap(ctx, signer, mint, tokens.SOLMint, sellRaw, acct.Settings)
	if err != nil {
		e.publishFailure(acct, "sell", mint, err)
		return nil, err
	}

	var currentNative float64
	if info, perr := e.Prices.GetTokenInfo(ctx, mint); perr == nil {
		currentNative = info.PriceNative
	} else {
		log.Printf("trade: sell fill for %s confirmed but price lookup failed: %v", mint, perr)
	}

	solReceived := float64(outLamports) / float64(tokens.LamportsPerSOL)
	res := e.Ledger.ApplySellFill(acct.ID, mint, percent/100, currentNative, solReceived)
	if res.Closed {
		e.Alerts.PurgeMint(acct.ID, mint)
	}

	e.publishSuccess(acct, "sell", mint, sig)
	return &Receipt{Signature: sig, OutAmount: outLamports, PnL: res.PnL, Closed: res.Closed}, nil
}

// ExecuteSwap swaps uiAmount of inputMint into outputMint. Generic swaps move
// balances without touching the position ledger; only buys and sells do.
func (e *Executor) ExecuteSwap(ctx context.Context, acct ledger.Account, signer Signer, inputMint, outputMint string, uiAmount float64) (*Receipt, error) {
	if !e.Ledger.BeginTrade(acct.ID) {
		return nil, ErrTradeInFlight
	}
	defer e.Ledger.EndTrade(acct.ID)

	var raw uint64
	if inputMint == tokens.SOLMint {
		raw = uint64(uiAmount * float64(tokens.LamportsPerSOL))
		if err := e.checkSolCovers(ctx, signer.PublicAddress(), raw, swapReserveSOL); err != nil {
			return nil, err
		}
	} else {
		accounts, err := e.Chain.GetTokenAccountsByOwner(ctx, signer.PublicAddress(), inputMint)
		if err != nil {
			return nil, fmt.Errorf("trade: token balance lookup: %w", err)
		}
		acctIdx := largestAccountIndex(accounts)
		if acctIdx < 0 {
			return nil, ErrNoBalance
		}
		raw = uint64(uiAmount * math.Pow10(accounts[acctIdx].Decimals))
		if raw == 0 || raw > accounts[acctIdx].RawAmount {
			return nil, ErrNoBalance
		}
	}

	sig, outAmount, err := e.runSwap(ctx, signer, inputMint, outputMint, raw, acct.Settings)
	if err != nil {
		e.publishFailure(acct, "swap", outputMint, err)
		return nil, err
	}

	e.publishSuccess(acct, "swap", outputMint, sig)
	return &Receipt{Signature: sig, OutAmount: outAmount}, nil
}

// ExecuteSend transfers solAmount SOL to a destination address. Sends skip
// the aggregator entirely: the transfer is built and signed locally.
func (e *Executor) ExecuteSend(ctx context.Context, acct ledger.Account, signer Signer, to string, solAmount float64) (*Receipt, error) {
	if !e.Ledger.BeginTrade(acct.ID) {
		return nil, ErrTradeInFlight
	}
	defer e.Ledger.EndTrade(acct.ID)

	blockhash, err := e.Chain.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}
	lamports := uint64(solAmount * float64(tokens.LamportsPerSOL))
	signed, err := signer.BuildTransfer(to, blockhash, lamports)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}

	sig, err := e.broadcastAndConfirm(ctx, signed)
	if err != nil {
		e.publishFailure(acct, "send", to, err)
		return nil, err
	}
	e.publishSuccess(acct, "send", to, sig)
	return &Receipt{Signature: sig, OutAmount: lamports}, nil
}

// ExecuteSendToken transfers uiAmount of mint to a destination owner. The
// destination must already hold a token account for the mint; this never
// creates one on the recipient's behalf.
func (e *Executor) ExecuteSendToken(ctx context.Context, acct ledger.Account, signer Signer, mint, to string, uiAmount float64) (*Receipt, error) {
	if !e.Ledger.BeginTrade(acct.ID) {
		return nil, ErrTradeInFlight
	}
	defer e.Ledger.EndTrade(acct.ID)

	sources, err := e.Chain.GetTokenAccountsByOwner(ctx, signer.PublicAddress(), mint)
	if err != nil {
		return nil, fmt.Errorf("trade: token balance lookup: %w", err)
	}
	srcIdx := largestAccountIndex(sources)
	if srcIdx < 0 {
		return nil, ErrNoBalance
	}
	src := sources[srcIdx]

	dests, err := e.Chain.GetTokenAccountsByOwner(ctx, to, mint)
	if err != nil {
		return nil, fmt.Errorf("trade: destination lookup: %w", err)
	}
	if len(dests) == 0 {
		return nil, ErrNoTokenAccount
	}

	raw := uint64(uiAmount * math.Pow10(src.Decimals))
	if raw == 0 || raw > src.RawAmount {
		return nil, ErrNoBalance
	}

	blockhash, err := e.Chain.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}
	signed, err := signer.BuildTokenTransfer(src.Pubkey, dests[0].Pubkey, blockhash, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}

	sig, err := e.broadcastAndConfirm(ctx, signed)
	if err != nil {
		e.publishFailure(acct, "send_token", to, err)
		return nil, err
	}
	e.publishSuccess(acct, "send_token", to, sig)
	return &Receipt{Signature: sig, OutAmount: raw}, nil
}

// checkSolCovers verifies the wallet holds the spend amount plus reserveSOL.
func (e *Executor) checkSolCovers(ctx context.Context, address string, lamports uint64, reserveSOL float64) error {
	balance, err := e.Chain.GetBalance(ctx, address)
	if err != nil {
		return fmt.Errorf("trade: balance lookup: %w", err)
	}
	reserve := uint64(reserveSOL * float64(tokens.LamportsPerSOL))
	if lamports+reserve > balance {
		return fmt.Errorf("%w: %d lamports held, %d needed with the fee reserve", ErrNoBalance, balance, lamports+reserve)
	}
	return nil
}

// runSwap drives the aggregator leg of the pipeline: quote, build, sign,
// then broadcast and confirm. Returns the signature and the quoted out amount.
func (e *Executor) runSwap(ctx context.Context, signer Signer, inputMint, outputMint string, amount uint64, st ledger.Settings) (string, uint64, error) {
	quote, err := e.Agg.GetQuote(ctx, inputMint, outputMint, amount, st.SlippageBps)
	if err != nil {
		if errors.Is(err, jupiter.ErrNoRoute) {
			return "", 0, fmt.Errorf("%w: %s -> %s", ErrNoRoute, shortMint(inputMint), shortMint(outputMint))
		}
		return "", 0, fmt.Errorf("%w: %v", ErrNoRoute, err)
	}

	priorityLamports := uint64(st.PriorityFeeSOL * float64(tokens.LamportsPerSOL))
	payload, err := e.Agg.BuildSwap(ctx, quote, signer.PublicAddress(), priorityLamports)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}

	signed, err := signer.SignAggregatorTx(payload)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}

	sig, err := e.broadcastAndConfirm(ctx, signed)
	if err != nil {
		return "", 0, err
	}
	return sig, quote.OutAmount, nil
}

// broadcastAndConfirm sends the signed transaction with bounded retries, then
// polls for confirmation until the timeout.
func (e *Executor) broadcastAndConfirm(ctx context.Context, signedBase64 string) (string, error) {
	retries := e.BroadcastRetries
	if retries < 1 {
		retries = 1
	}

	var sig string
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		s, err := e.Chain.SendRawTransaction(ctx, signedBase64)
		if err == nil {
			sig = s
			break
		}
		lastErr = err
		log.Printf("trade: broadcast attempt %d/%d failed: %v", attempt, retries, err)
		if attempt < retries {
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrBroadcastFailed, ctx.Err())
			}
		}
	}
	if sig == "" {
		return "", fmt.Errorf("%w: %v", ErrBroadcastFailed, lastErr)
	}

	deadline := time.Now().Add(e.ConfirmTimeout)
	ticker := time.NewTicker(e.ConfirmPoll)
	defer ticker.Stop()
	for {
		confirmed, found, err := e.Chain.ConfirmationStatus(ctx, sig)
		if err != nil && found {
			// Landed on chain but the program errored.
			return "", fmt.Errorf("%w: %v", ErrBroadcastFailed, err)
		}
		if confirmed {
			return sig, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w: %s", ErrConfirmTimeout, sig)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrConfirmTimeout, ctx.Err())
		}
	}
}

func (e *Executor) publishSuccess(acct ledger.Account, kind, target, sig string) {
	if e.Bus == nil {
		return
	}
	e.Bus.Publish(events.EventTradeExecuted, map[string]any{
		"accountId": acct.ID,
		"kind":      kind,
		"target":    target,
		"signature": sig,
	})
}

func (e *Executor) publishFailure(acct ledger.Account, kind, target string, err error) {
	if e.Bus == nil {
		return
	}
	e.Bus.Publish(events.EventTradeFailed, map[string]any{
		"accountId": acct.ID,
		"kind":      kind,
		"target":    target,
		"error":     err.Error(),
	})
}

// largestAccountIndex picks the token account holding the most units, or -1.
func largestAccountIndex(accounts []solana.TokenAccount) int {
	idx := -1
	var best uint64
	for i := range accounts {
		if idx < 0 || accounts[i].RawAmount > best {
			best = accounts[i].RawAmount
			idx = i
		}
	}
	return idx
}

// totalRawBalance sums the mint balance across every token account, which is
// also how the sell path spends it.
func totalRawBalance(accounts []solana.TokenAccount) uint64 {
	var total uint64
	for i := range accounts {
		total += accounts[i].RawAmount
	}
	return total
}

func shortMint(m string) string {
	if m == tokens.SOLMint {
		return "SOL"
	}
	if len(m) <= 8 {
		return m
	}
	return m[:4] + ".." + m[len(m)-4:]
}
