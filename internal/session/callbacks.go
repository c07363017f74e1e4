package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"solbot/internal/ledger"
	"solbot/pkg/telegram"
	"solbot/pkg/tokens"
)

func (h *Handler) handleCallback(ctx context.Context, cq *telegram.CallbackQuery) {
	if cq.Message == nil {
		return
	}
	chatID := cq.Message.Chat.ID
	msgID := cq.Message.MessageID
	data := cq.Data
	_ = h.TG.AnswerCallback(ctx, cq.ID)

	if data == "confirm_onboard" {
		h.finishOnboarding(ctx, chatID)
		return
	}
	if data == "cancel_onboard" {
		h.edit(ctx, chatID, msgID, "No problem. Run /start whenever you're ready.", nil)
		return
	}

	acct := h.Ledger.Get(chatID)
	if !acct.Onboarded {
		h.send(ctx, chatID, "Please run /start first to set up your wallet.", nil)
		return
	}

	switch {
	case data == "cancel":
		h.sessions.clear(chatID)
		h.edit(ctx, chatID, msgID, mainMenuText(), mainMenuKeyboard())
	case data == "main_menu":
		h.sessions.clear(chatID)
		h.edit(ctx, chatID, msgID, mainMenuText(), mainMenuKeyboard())

	case data == "wallet_menu":
		h.showWalletMenu(ctx, chatID, msgID)
	case data == "balance":
		h.showBalance(ctx, chatID, msgID)
	case data == "receive":
		h.showReceive(ctx, chatID)
	case data == "send_sol":
		h.sessions.set(chatID, pending{Step: StepSendAddress, Action: "send"})
		h.edit(ctx, chatID, msgID, "Enter the destination address.", cancelKeyboard())
	case data == "send_token":
		h.showSendTokenPicker(ctx, chatID, msgID, acct)
	case strings.HasPrefix(data, "sendtok_"):
		mint := strings.TrimPrefix(data, "sendtok_")
		h.sessions.set(chatID, pending{Step: StepSendTokenAddress, Action: "send_token", Mint: mint})
		h.edit(ctx, chatID, msgID, "Enter the destination address. It must already hold an account for this token.", cancelKeyboard())

	case data == "swap_menu":
		h.showSwapMenu(ctx, chatID, msgID)
	case strings.HasPrefix(data, "swapout_"):
		key := strings.TrimPrefix(data, "swapout_")
		tok, ok := h.Catalog.Get(key)
		if !ok {
			h.send(ctx, chatID, "Unknown token.", nil)
			return
		}
		h.askSwapAmount(ctx, chatID, msgID, tok.Mint, tok.Symbol)
	case data == "swap_custom_output":
		h.sessions.set(chatID, pending{Step: StepSwapOutputMint, Action: "swap"})
		h.edit(ctx, chatID, msgID, "Paste the output token mint address.", cancelKeyboard())
	case strings.HasPrefix(data, "swapamt_"):
		p := h.sessions.get(chatID)
		if p.OutputMint == "" {
			h.send(ctx, chatID, "That swap expired, start again from the menu.", mainMenuKeyboard())
			return
		}
		amt, err := strconv.ParseFloat(strings.TrimPrefix(data, "swapamt_"), 64)
		if err != nil || amt <= 0 {
			return
		}
		p.UIAmount = amt
		h.askSecret(ctx, chatID, p)
	case data == "swap_custom_amount":
		p := h.sessions.get(chatID)
		if p.OutputMint == "" {
			h.send(ctx, chatID, "That swap expired, start again from the menu.", mainMenuKeyboard())
			return
		}
		p.Step = StepSwapAmount
		h.sessions.set(chatID, p)
		h.edit(ctx, chatID, msgID, "Enter the SOL amount to swap.", cancelKeyboard())

	case data == "positions":
		h.showPositions(ctx, chatID, msgID)
	case strings.HasPrefix(data, "sellmenu_"):
		mint := strings.TrimPrefix(data, "sellmenu_")
		h.showSellMenu(ctx, chatID, msgID, acct, mint)
	case strings.HasPrefix(data, "sellpct_"):
		p := h.sessions.get(chatID)
		if p.Mint == "" {
			h.send(ctx, chatID, "That sell expired, start again from Positions.", mainMenuKeyboard())
			return
		}
		pct, err := strconv.ParseFloat(strings.TrimPrefix(data, "sellpct_"), 64)
		if err != nil || pct <= 0 || pct > 100 {
			return
		}
		p.Percent = pct
		p.Action = "sell"
		h.askSecret(ctx, chatID, p)
	case data == "sell_custom":
		p := h.sessions.get(chatID)
		if p.Mint == "" {
			h.send(ctx, chatID, "That sell expired, start again from Positions.", mainMenuKeyboard())
			return
		}
		p.Step = StepSellPercent
		p.Action = "sell"
		h.sessions.set(chatID, p)
		h.edit(ctx, chatID, msgID, "Enter the percentage to sell (1-100).", cancelKeyboard())

	case data == "pnl":
		h.showPnL(ctx, chatID, msgID)
	case data == "history":
		h.showHistory(ctx, chatID, msgID)

	case data == "scan_prompt":
		h.sessions.set(chatID, pending{Step: StepScan})
		h.edit(ctx, chatID, msgID, "Paste the token mint address you want scanned.", cancelKeyboard())
	case strings.HasPrefix(data, "buyprompt_"):
		mint := strings.TrimPrefix(data, "buyprompt_")
		h.showBuyMenu(ctx, chatID, msgID, acct, mint)
	case strings.HasPrefix(data, "buyamt_"):
		p := h.sessions.get(chatID)
		if p.Mint == "" {
			h.send(ctx, chatID, "That buy expired, scan the token again.", mainMenuKeyboard())
			return
		}
		amt, err := strconv.ParseFloat(strings.TrimPrefix(data, "buyamt_"), 64)
		if err != nil || amt <= 0 {
			return
		}
		p.AmountSOL = amt
		p.Action = "buy"
		h.askSecret(ctx, chatID, p)
	case strings.HasPrefix(data, "buy_pct_"):
		mint := strings.TrimPrefix(data, "buy_pct_")
		p := h.sessions.get(chatID)
		if p.Mint != mint {
			p = pending{Mint: mint, Symbol: shortAddr(mint), TP: acct.Settings.TPPercent, SL: acct.Settings.SLPercent}
		}
		p.Step = StepBuyPercent
		p.Action = "buy"
		h.sessions.set(chatID, p)
		h.edit(ctx, chatID, msgID, "Enter the percent of your SOL balance to spend (1-100).", cancelKeyboard())
	case data == "buy_custom":
		p := h.sessions.get(chatID)
		if p.Mint == "" {
			h.send(ctx, chatID, "That buy expired, scan the token again.", mainMenuKeyboard())
			return
		}
		p.Step = StepBuyAmount
		p.Action = "buy"
		h.sessions.set(chatID, p)
		h.edit(ctx, chatID, msgID, "Enter the SOL amount to spend.", cancelKeyboard())
	case data == "buy_tpsl":
		p := h.sessions.get(chatID)
		if p.Mint == "" {
			h.send(ctx, chatID, "That buy expired, scan the token again.", mainMenuKeyboard())
			return
		}
		p.Step = StepBuyTPSLAmount
		p.Action = "buy"
		h.sessions.set(chatID, p)
		h.edit(ctx, chatID, msgID, "Buy with TP/SL. First, enter the SOL amount to spend.", cancelKeyboard())

	case data == "alerts_menu":
		h.showAlertsMenu(ctx, chatID, msgID)
	case data == "new_alert":
		h.sessions.set(chatID, pending{Step: StepAlertMint})
		h.edit(ctx, chatID, msgID, "Paste the token mint address to watch.", cancelKeyboard())
	case strings.HasPrefix(data, "del_alert_"):
		id := strings.TrimPrefix(data, "del_alert_")
		h.Alerts.Remove(id)
		h.showAlertsMenu(ctx, chatID, msgID)

	case data == "copy_menu":
		h.showCopyMenu(ctx, chatID, msgID, acct)
	case data == "add_copy":
		if len(acct.Settings.CopyWallets) >= ledger.MaxCopyWallets {
			h.send(ctx, chatID, fmt.Sprintf("You can watch at most %d wallets. Remove one first.", ledger.MaxCopyWallets), nil)
			return
		}
		h.sessions.set(chatID, pending{Step: StepCopyAdd})
		h.edit(ctx, chatID, msgID, "Paste the wallet address to watch for trades.", cancelKeyboard())
	case strings.HasPrefix(data, "del_copy_"):
		idx, err := strconv.Atoi(strings.TrimPrefix(data, "del_copy_"))
		if err == nil {
			acct = h.Ledger.Update(chatID, func(a *ledger.Account) {
				if idx >= 0 && idx < len(a.Settings.CopyWallets) {
					a.Settings.CopyWallets = append(a.Settings.CopyWallets[:idx], a.Settings.CopyWallets[idx+1:]...)
				}
			})
		}
		h.showCopyMenu(ctx, chatID, msgID, acct)

	case data == "settings":
		h.showSettings(ctx, chatID, msgID)
	case data == "set_slippage":
		h.askSetting(ctx, chatID, msgID, "slippage", "Enter slippage in percent (e.g. 1 for 1%).")
	case data == "set_priority":
		h.askSetting(ctx, chatID, msgID, "priority", "Enter the priority fee in SOL (e.g. 0.0005).")
	case data == "set_minliq":
		h.askSetting(ctx, chatID, msgID, "minliq", "Enter the minimum liquidity in USD for scan warnings.")
	case data == "set_minscore":
		h.askSetting(ctx, chatID, msgID, "minscore", "Enter the minimum safety score (0-100).")
	case data == "set_tpsl":
		h.sessions.set(chatID, pending{Step: StepSetTP})
		h.edit(ctx, chatID, msgID, "Enter the default take-profit percent (0 to disable).", cancelKeyboard())

	case data == "referral":
		h.showReferral(ctx, chatID, msgID)
	case data == "help":
		h.edit(ctx, chatID, msgID, helpText(), mainMenuKeyboard())
	}
}

func (h *Handler) askSetting(ctx context.Context, chatID, msgID int64, key, prompt string) {
	h.sessions.set(chatID, pending{Step: StepSettingValue, SettingKey: key})
	h.edit(ctx, chatID, msgID, prompt, cancelKeyboard())
}

func (h *Handler) askSwapAmount(ctx context.Context, chatID, msgID int64, outputMint, symbol string) {
	p := pending{Action: "swap", InputMint: tokens.SOLMint, OutputMint: outputMint, Symbol: symbol}
	h.sessions.set(chatID, p)
	kb := telegram.Keyboard(
		telegram.Row(telegram.Btn("0.1 SOL", "swapamt_0.1"), telegram.Btn("0.5 SOL", "swapamt_0.5")),
		telegram.Row(telegram.Btn("1 SOL", "swapamt_1"), telegram.Btn("Custom", "swap_custom_amount")),
		telegram.Row(telegram.Btn("« Cancel", "cancel")),
	)
	h.edit(ctx, chatID, msgID, fmt.Sprintf("Swapping SOL → *%s*. Pick an amount:", symbol), kb)
}
