package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"solbot/internal/alerts"
	"solbot/internal/ledger"
	"solbot/internal/trade"
	"solbot/internal/wallet"
	"solbot/pkg/solana"
	"solbot/pkg/telegram"
	"solbot/pkg/tokens"
)

// tradeTimeout bounds one full execution including confirmation polling.
const tradeTimeout = 2 * time.Minute

// buyBalanceReserveSOL is held back from percent-of-balance buys so the
// wallet can still pay network fees.
const buyBalanceReserveSOL = 0.01

// handleStepInput consumes a free-text message while a flow is waiting for
// input. Invalid input re-prompts without losing the collected state.
func (h *Handler) handleStepInput(ctx context.Context, m *telegram.Message, p pending) {
	chatID := m.Chat.ID
	text := strings.TrimSpace(m.Text)

	if p.Step == StepSecret {
		h.consumeSecret(ctx, m, p)
		return
	}

	switch p.Step {
	case StepScan:
		if !solana.IsAddress(text) {
			h.send(ctx, chatID, "That doesn't look like a token address. Paste a mint address, or /cancel.", nil)
			return
		}
		h.sessions.clear(chatID)
		h.sendScanReport(ctx, chatID, text)

	case StepBuyAmount:
		amt, ok := h.parsePositiveFloat(ctx, chatID, text, "Enter a SOL amount above zero, or /cancel.")
		if !ok {
			return
		}
		p.AmountSOL = amt
		h.askSecret(ctx, chatID, p)

	case StepBuyPercent:
		pct, ok := h.parsePositiveFloat(ctx, chatID, text, "Enter a percentage between 1 and 100, or /cancel.")
		if !ok {
			return
		}
		if pct > 100 {
			h.send(ctx, chatID, "Enter a percentage between 1 and 100, or /cancel.", nil)
			return
		}
		acct := h.Ledger.Get(chatID)
		lamports, err := h.Chain.GetBalance(ctx, acct.WalletAddress)
		if err != nil {
			h.send(ctx, chatID, "Could not fetch your balance right now, try again shortly.", nil)
			return
		}
		sol := float64(lamports) / float64(tokens.LamportsPerSOL)
		amount := math.Round((sol*pct/100-buyBalanceReserveSOL)*1e4) / 1e4
		if amount <= 0 {
			h.sessions.clear(chatID)
			h.send(ctx, chatID, "❌ Your SOL balance can't cover that once the fee reserve is kept back.", mainMenuKeyboard())
			return
		}
		p.AmountSOL = amount
		h.askSecret(ctx, chatID, p)

	case StepBuyTPSLAmount:
		amt, ok := h.parsePositiveFloat(ctx, chatID, text, "Enter a SOL amount above zero, or /cancel.")
		if !ok {
			return
		}
		p.AmountSOL = amt
		p.Step = StepBuyTP
		h.sessions.set(chatID, p)
		h.send(ctx, chatID, "Take-profit percent (e.g. 50 for +50%, 0 to skip):", cancelKeyboard())

	case StepBuyTP:
		v, ok := h.parseNonNegativeFloat(ctx, chatID, text, "Enter a percent of 0 or more, or /cancel.")
		if !ok {
			return
		}
		p.TP = v
		p.Step = StepBuySL
		h.sessions.set(chatID, p)
		h.send(ctx, chatID, "Stop-loss percent (e.g. 25 for -25%, 0 to skip):", cancelKeyboard())

	case StepBuySL:
		v, ok := h.parseNonNegativeFloat(ctx, chatID, text, "Enter a percent of 0 or more, or /cancel.")
		if !ok {
			return
		}
		p.SL = v
		h.askSecret(ctx, chatID, p)

	case StepSellPercent:
		pct, ok := h.parsePositiveFloat(ctx, chatID, text, "Enter a percentage between 1 and 100, or /cancel.")
		if !ok {
			return
		}
		if pct > 100 {
			h.send(ctx, chatID, "Enter a percentage between 1 and 100, or /cancel.", nil)
			return
		}
		p.Percent = pct
		h.askSecret(ctx, chatID, p)

	case StepSendAddress, StepSendTokenAddress:
		if !solana.IsAddress(text) {
			h.send(ctx, chatID, "That doesn't look like a valid address. Try again, or /cancel.", nil)
			return
		}
		p.Dest = text
		if p.Step == StepSendAddress {
			p.Step = StepSendAmount
			h.sessions.set(chatID, p)
			h.send(ctx, chatID, "Enter the SOL amount to send.", cancelKeyboard())
		} else {
			p.Step = StepSendTokenAmount
			h.sessions.set(chatID, p)
			h.send(ctx, chatID, "Enter the token amount to send.", cancelKeyboard())
		}

	case StepSendAmount, StepSendTokenAmount:
		amt, ok := h.parsePositiveFloat(ctx, chatID, text, "Enter an amount above zero, or /cancel.")
		if !ok {
			return
		}
		p.UIAmount = amt
		h.askSecret(ctx, chatID, p)

	case StepSwapOutputMint:
		if !solana.IsAddress(text) {
			h.send(ctx, chatID, "That doesn't look like a token address. Try again, or /cancel.", nil)
			return
		}
		p.InputMint = tokens.SOLMint
		p.OutputMint = text
		p.Symbol = shortAddr(text)
		p.Step = StepSwapAmount
		h.sessions.set(chatID, p)
		h.send(ctx, chatID, "Enter the SOL amount to swap.", cancelKeyboard())

	case StepSwapAmount:
		amt, ok := h.parsePositiveFloat(ctx, chatID, text, "Enter a SOL amount above zero, or /cancel.")
		if !ok {
			return
		}
		p.UIAmount = amt
		h.askSecret(ctx, chatID, p)

	case StepAlertMint:
		if !solana.IsAddress(text) {
			h.send(ctx, chatID, "That doesn't look like a token address. Try again, or /cancel.", nil)
			return
		}
		p.Mint = text
		p.Step = StepAlertPrice
		h.sessions.set(chatID, p)
		h.send(ctx, chatID, "Enter the target price in USD.", cancelKeyboard())

	case StepAlertPrice:
		price, ok := h.parsePositiveFloat(ctx, chatID, text, "Enter a target price above zero, or /cancel.")
		if !ok {
			return
		}
		h.sessions.clear(chatID)
		h.createManualAlert(ctx, chatID, p.Mint, price)

	case StepCopyAdd:
		if !solana.IsAddress(text) {
			h.send(ctx, chatID, "That doesn't look like a valid address. Try again, or /cancel.", nil)
			return
		}
		h.sessions.clear(chatID)
		acct := h.Ledger.Update(chatID, func(a *ledger.Account) {
			for _, w := range a.Settings.CopyWallets {
				if w == text {
					return
				}
			}
			if len(a.Settings.CopyWallets) < ledger.MaxCopyWallets {
				a.Settings.CopyWallets = append(a.Settings.CopyWallets, text)
			}
		})
		h.showCopyMenu(ctx, chatID, 0, acct)

	case StepSettingValue:
		h.applySetting(ctx, chatID, p.SettingKey, text)

	case StepSetTP:
		v, ok := h.parseNonNegativeFloat(ctx, chatID, text, "Enter a percent of 0 or more, or /cancel.")
		if !ok {
			return
		}
		p.TP = v
		p.Step = StepSetSL
		h.sessions.set(chatID, p)
		h.send(ctx, chatID, "Now the default stop-loss percent (0 to disable):", cancelKeyboard())

	case StepSetSL:
		v, ok := h.parseNonNegativeFloat(ctx, chatID, text, "Enter a percent of 0 or more, or /cancel.")
		if !ok {
			return
		}
		h.sessions.clear(chatID)
		h.Ledger.Update(chatID, func(a *ledger.Account) {
			a.Settings.TPPercent = p.TP
			a.Settings.SLPercent = v
		})
		h.send(ctx, chatID, fmt.Sprintf("Defaults saved: TP %s%%, SL %s%%.", trimFloat(p.TP), trimFloat(v)), settingsBackKeyboard())

	default:
		h.sessions.clear(chatID)
		h.send(ctx, chatID, "Something went stale, back to the main menu.", mainMenuKeyboard())
	}
}

// askSecret moves a fully-parameterized flow into the terminal signing step.
func (h *Handler) askSecret(ctx context.Context, chatID int64, p pending) {
	p.Step = StepSecret
	h.sessions.set(chatID, p)
	h.send(ctx, chatID,
		"🔑 Paste your wallet's private key to sign.\n\n"+
			"It is used for this one transaction only, never stored, and your message is removed from the chat. /cancel to abort.",
		cancelKeyboard())
}

// consumeSecret handles the one message that carries a private key. The
// conversation state is cleared and the message deleted before the secret is
// even validated, so no path leaves the chat waiting in a secret state.
func (h *Handler) consumeSecret(ctx context.Context, m *telegram.Message, p pending) {
	chatID := m.Chat.ID
	secret := strings.TrimSpace(m.Text)

	h.sessions.clear(chatID)
	_ = h.TG.DeleteMessage(ctx, chatID, m.MessageID)

	acct := h.Ledger.Get(chatID)
	signer, err := wallet.AcquireSigner(secret, acct.WalletAddress)
	secret = ""
	if err != nil {
		switch {
		case errors.Is(err, wallet.ErrSecretMismatch):
			h.send(ctx, chatID, "❌ That key does not belong to your registered wallet. Nothing was signed.", mainMenuKeyboard())
		default:
			h.send(ctx, chatID, "❌ That doesn't look like a valid private key. Nothing was signed.", mainMenuKeyboard())
		}
		return
	}

	statusID := h.send(ctx, chatID, "⏳ Transaction submitted, waiting for confirmation...", nil)

	go func() {
		defer signer.Close()
		ctx, cancel := context.WithTimeout(context.Background(), tradeTimeout)
		defer cancel()
		h.runTrade(ctx, chatID, statusID, acct, signer, p)
	}()
}

// runTrade executes the collected intent and reports the outcome.
func (h *Handler) runTrade(ctx context.Context, chatID, statusID int64, acct ledger.Account, signer *wallet.Signer, p pending) {
	var (
		rcpt *trade.Receipt
		err  error
	)
	switch p.Action {
	case "buy":
		rcpt, err = h.Exec.ExecuteBuy(ctx, acct, signer, p.Mint, p.AmountSOL, p.TP, p.SL)
	case "sell":
		rcpt, err = h.Exec.ExecuteSell(ctx, acct, signer, p.Mint, p.Percent)
	case "swap":
		rcpt, err = h.Exec.ExecuteSwap(ctx, acct, signer, p.InputMint, p.OutputMint, p.UIAmount)
	case "send":
		rcpt, err = h.Exec.ExecuteSend(ctx, acct, signer, p.Dest, p.UIAmount)
	case "send_token":
		rcpt, err = h.Exec.ExecuteSendToken(ctx, acct, signer, p.Mint, p.Dest, p.UIAmount)
	default:
		err = fmt.Errorf("session: unknown action %q", p.Action)
	}

	if err != nil {
		h.edit(ctx, chatID, statusID, "❌ "+tradeErrorText(err), mainMenuKeyboard())
		return
	}
	h.edit(ctx, chatID, statusID, receiptText(p, rcpt), mainMenuKeyboard())
}

// tradeErrorText maps pipeline failures to user-facing messages.
func tradeErrorText(err error) string {
	switch {
	case errors.Is(err, trade.ErrNoRoute):
		return "No route found for this pair. Try a smaller amount or a different token."
	case errors.Is(err, trade.ErrBuildFailed):
		return "Could not build the transaction. Nothing was sent."
	case errors.Is(err, trade.ErrBroadcastFailed):
		return "Broadcast failed. Nothing was recorded."
	case errors.Is(err, trade.ErrConfirmTimeout):
		return "Confirmation timed out. The transaction may still land; check the explorer before retrying."
	case errors.Is(err, trade.ErrNoBalance):
		return "Insufficient balance for that amount."
	case errors.Is(err, trade.ErrNoTokenAccount):
		return "The destination has no account for this token, so it cannot receive it."
	case errors.Is(err, trade.ErrTradeInFlight):
		return "Another transaction is still in flight. Wait for it to finish."
	default:
		return "Transaction failed: " + err.Error()
	}
}

func (h *Handler) createManualAlert(ctx context.Context, chatID int64, mint string, price float64) {
	symbol := shortAddr(mint)
	direction := alerts.DirAbove
	if info, err := h.Prices.GetTokenInfo(ctx, mint); err == nil {
		if info.Symbol != "" {
			symbol = info.Symbol
		}
		if price < info.PriceUSD {
			direction = alerts.DirBelow
		}
	}
	h.Alerts.Add(alerts.Alert{
		AccountID:   chatID,
		ChatID:      chatID,
		Mint:        mint,
		Symbol:      symbol,
		TargetPrice: price,
		Direction:   direction,
		Kind:        alerts.KindManual,
	})
	arrow := "rises above"
	if direction == alerts.DirBelow {
		arrow = "drops below"
	}
	h.send(ctx, chatID, fmt.Sprintf("🔔 Alert set: *%s* %s $%s.", symbol, arrow, trimFloat(price)), alertsBackKeyboard())
}

func (h *Handler) applySetting(ctx context.Context, chatID int64, key, text string) {
	switch key {
	case "slippage":
		v, ok := h.parsePositiveFloat(ctx, chatID, text, "Enter a slippage percent between 0.1 and 50, or /cancel.")
		if !ok {
			return
		}
		if v < 0.1 || v > 50 {
			h.send(ctx, chatID, "Enter a slippage percent between 0.1 and 50, or /cancel.", nil)
			return
		}
		h.sessions.clear(chatID)
		h.Ledger.Update(chatID, func(a *ledger.Account) { a.Settings.SlippageBps = int(v * 100) })
		h.send(ctx, chatID, fmt.Sprintf("Slippage set to %s%%.", trimFloat(v)), settingsBackKeyboard())
	case "priority":
		v, ok := h.parseNonNegativeFloat(ctx, chatID, text, "Enter a fee of 0 or more SOL, or /cancel.")
		if !ok {
			return
		}
		h.sessions.clear(chatID)
		h.Ledger.Update(chatID, func(a *ledger.Account) { a.Settings.PriorityFeeSOL = v })
		h.send(ctx, chatID, fmt.Sprintf("Priority fee set to %s SOL.", trimFloat(v)), settingsBackKeyboard())
	case "minliq":
		v, ok := h.parseNonNegativeFloat(ctx, chatID, text, "Enter a USD amount of 0 or more, or /cancel.")
		if !ok {
			return
		}
		h.sessions.clear(chatID)
		h.Ledger.Update(chatID, func(a *ledger.Account) { a.Settings.MinLiquidityUSD = v })
		h.send(ctx, chatID, fmt.Sprintf("Minimum liquidity set to $%s.", trimFloat(v)), settingsBackKeyboard())
	case "minscore":
		n, err := strconv.Atoi(text)
		if err != nil || n < 0 || n > 100 {
			h.send(ctx, chatID, "Enter a score between 0 and 100, or /cancel.", nil)
			return
		}
		h.sessions.clear(chatID)
		h.Ledger.Update(chatID, func(a *ledger.Account) { a.Settings.MinScore = n })
		h.send(ctx, chatID, fmt.Sprintf("Minimum safety score set to %d.", n), settingsBackKeyboard())
	default:
		h.sessions.clear(chatID)
		h.send(ctx, chatID, "Something went stale, back to the main menu.", mainMenuKeyboard())
	}
}

func (h *Handler) parsePositiveFloat(ctx context.Context, chatID int64, text, reprompt string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(text, ",", "."), 64)
	if err != nil || v <= 0 {
		h.send(ctx, chatID, reprompt, nil)
		return 0, false
	}
	return v, true
}

func (h *Handler) parseNonNegativeFloat(ctx context.Context, chatID int64, text, reprompt string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(text, ",", "."), 64)
	if err != nil || v < 0 {
		h.send(ctx, chatID, reprompt, nil)
		return 0, false
	}
	return v, true
}
