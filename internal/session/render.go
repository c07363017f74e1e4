package session

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"solbot/internal/alerts"
	"solbot/internal/ledger"
	"solbot/internal/trade"
	"solbot/pkg/qr"
	"solbot/pkg/telegram"
	"solbot/pkg/tokens"
)

func mainMenuText() string {
	return "🛡 *RugBuster Pro*\n\nNon-custodial Solana trading. Paste any token address to scan it, or pick an action below."
}

func mainMenuKeyboard() *telegram.InlineKeyboardMarkup {
	return telegram.Keyboard(
		telegram.Row(telegram.Btn("💼 Wallet", "wallet_menu"), telegram.Btn("🔍 Scan", "scan_prompt")),
		telegram.Row(telegram.Btn("📊 Positions", "positions"), telegram.Btn("📈 PnL", "pnl")),
		telegram.Row(telegram.Btn("🔔 Alerts", "alerts_menu"), telegram.Btn("👀 Copy Trade", "copy_menu")),
		telegram.Row(telegram.Btn("🔄 Swap", "swap_menu"), telegram.Btn("🕘 History", "history")),
		telegram.Row(telegram.Btn("⚙️ Settings", "settings"), telegram.Btn("🎁 Referral", "referral")),
		telegram.Row(telegram.Btn("❓ Help", "help")),
	)
}

func cancelKeyboard() *telegram.InlineKeyboardMarkup {
	return telegram.Keyboard(telegram.Row(telegram.Btn("« Cancel", "cancel")))
}

func backKeyboard(target string) *telegram.InlineKeyboardMarkup {
	return telegram.Keyboard(telegram.Row(telegram.Btn("« Back", target)))
}

func settingsBackKeyboard() *telegram.InlineKeyboardMarkup { return backKeyboard("settings") }
func alertsBackKeyboard() *telegram.InlineKeyboardMarkup   { return backKeyboard("alerts_menu") }

func onboardingDisclaimer() string {
	return "🛡 *Welcome to RugBuster Pro*\n\n" +
		"This bot is *non-custodial*: it keeps only your public address. " +
		"Your private key is shown once at creation and then asked for per transaction, " +
		"used in memory only, and never stored or logged.\n\n" +
		"Trading tokens is risky. You alone are responsible for your keys and your trades.\n\n" +
		"Create a wallet to continue?"
}

func helpText() string {
	return "❓ *Help*\n\n" +
		"• Paste any token mint address to get a safety scan with buy buttons.\n" +
		"• /menu — main menu\n" +
		"• /positions — open positions\n" +
		"• /pnl — profit and loss\n" +
		"• /alerts — price alerts\n" +
		"• /settings — slippage, fees, TP/SL defaults\n" +
		"• /cancel — abort whatever the bot is waiting for\n\n" +
		"Every transaction asks for your private key, signs in memory, and forgets it."
}

func (h *Handler) showWalletMenu(ctx context.Context, chatID, msgID int64) {
	acct := h.Ledger.Get(chatID)
	text := fmt.Sprintf("💼 *Wallet*\n\nAddress:\n`%s`", acct.WalletAddress)
	kb := telegram.Keyboard(
		telegram.Row(telegram.Btn("💰 Balance", "balance"), telegram.Btn("📥 Receive", "receive")),
		telegram.Row(telegram.Btn("📤 Send SOL", "send_sol"), telegram.Btn("📤 Send Token", "send_token")),
		telegram.Row(telegram.Btn("« Back", "main_menu")),
	)
	h.edit(ctx, chatID, msgID, text, kb)
}

func (h *Handler) showBalance(ctx context.Context, chatID, msgID int64) {
	acct := h.Ledger.Get(chatID)
	lamports, err := h.Chain.GetBalance(ctx, acct.WalletAddress)
	if err != nil {
		h.edit(ctx, chatID, msgID, "Could not fetch the balance right now, try again shortly.", backKeyboard("wallet_menu"))
		return
	}
	sol := float64(lamports) / float64(tokens.LamportsPerSOL)

	var b strings.Builder
	fmt.Fprintf(&b, "💰 *Balance*\n\n◎ %.4f SOL\n", sol)
	if accounts, err := h.Chain.GetTokenAccountsByOwner(ctx, acct.WalletAddress, ""); err == nil {
		for _, ta := range accounts {
			if ta.UIAmount <= 0 {
				continue
			}
			fmt.Fprintf(&b, "• %s `%s`\n", trimFloat(ta.UIAmount), shortAddr(ta.Mint))
		}
	}
	h.edit(ctx, chatID, msgID, b.String(), backKeyboard("wallet_menu"))
}

func (h *Handler) showReceive(ctx context.Context, chatID int64) {
	acct := h.Ledger.Get(chatID)
	png, err := qr.PNG(acct.WalletAddress)
	caption := fmt.Sprintf("📥 Send SOL or tokens to:\n`%s`", acct.WalletAddress)
	if err != nil {
		h.send(ctx, chatID, caption, backKeyboard("wallet_menu"))
		return
	}
	if err := h.TG.SendPhoto(ctx, chatID, png, caption, backKeyboard("wallet_menu")); err != nil {
		log.Printf("session: receive QR send failed: %v", err)
		h.send(ctx, chatID, caption, backKeyboard("wallet_menu"))
	}
}

func (h *Handler) showSendTokenPicker(ctx context.Context, chatID, msgID int64, acct ledger.Account) {
	if len(acct.Positions) == 0 {
		h.edit(ctx, chatID, msgID, "No tracked tokens to send. Tokens you buy through the bot show up here.", backKeyboard("wallet_menu"))
		return
	}
	var rows [][]telegram.InlineKeyboardButton
	for _, p := range acct.Positions {
		rows = append(rows, telegram.Row(telegram.Btn(p.Symbol, "sendtok_"+p.Mint)))
	}
	rows = append(rows, telegram.Row(telegram.Btn("« Back", "wallet_menu")))
	h.edit(ctx, chatID, msgID, "📤 *Send Token*\n\nPick the token to send:", telegram.Keyboard(rows...))
}

func (h *Handler) showSwapMenu(ctx context.Context, chatID, msgID int64) {
	var rows [][]telegram.InlineKeyboardButton
	var row []telegram.InlineKeyboardButton
	for _, t := range h.Catalog.All() {
		if t.Mint == tokens.SOLMint {
			continue
		}
		row = append(row, telegram.Btn(t.Symbol, "swapout_"+t.Key))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, telegram.Row(telegram.Btn("Other (paste mint)", "swap_custom_output")))
	rows = append(rows, telegram.Row(telegram.Btn("« Back", "main_menu")))
	h.edit(ctx, chatID, msgID, "🔄 *Swap*\n\nSwap SOL into:", telegram.Keyboard(rows...))
}

func (h *Handler) showPositions(ctx context.Context, chatID, msgID int64) {
	acct := h.Ledger.Get(chatID)
	if len(acct.Positions) == 0 {
		h.edit(ctx, chatID, msgID, "📊 No open positions. Scan a token to get started.", mainMenuKeyboard())
		return
	}

	var b strings.Builder
	b.WriteString("📊 *Open Positions*\n\n")
	var rows [][]telegram.InlineKeyboardButton
	for _, p := range acct.Positions {
		line := fmt.Sprintf("*%s* — spent ◎%s, entry $%s", p.Symbol, trimFloat(p.SolSpent), trimFloat(p.EntryPriceUSD))
		if info, err := h.Prices.GetTokenInfo(ctx, p.Mint); err == nil && p.EntryPriceUSD > 0 {
			chg := (info.PriceUSD - p.EntryPriceUSD) / p.EntryPriceUSD * 100
			line += fmt.Sprintf(" (%+.1f%%)", chg)
		}
		b.WriteString(line + "\n")
		rows = append(rows, telegram.Row(telegram.Btn("Sell "+p.Symbol, "sellmenu_"+p.Mint)))
	}
	rows = append(rows, telegram.Row(telegram.Btn("« Back", "main_menu")))
	h.edit(ctx, chatID, msgID, b.String(), telegram.Keyboard(rows...))
}

func (h *Handler) showSellMenu(ctx context.Context, chatID, msgID int64, acct ledger.Account, mint string) {
	pos, ok := acct.Position(mint)
	if !ok {
		h.edit(ctx, chatID, msgID, "That position is already closed.", backKeyboard("positions"))
		return
	}
	h.sessions.set(chatID, pending{Mint: mint, Symbol: pos.Symbol, Action: "sell"})

	var row []telegram.InlineKeyboardButton
	var rows [][]telegram.InlineKeyboardButton
	for _, pct := range acct.Settings.QuickSellPercents {
		row = append(row, telegram.Btn(fmt.Sprintf("%s%%", trimFloat(pct)), fmt.Sprintf("sellpct_%s", trimFloat(pct))))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, telegram.Row(telegram.Btn("Custom %", "sell_custom")))
	rows = append(rows, telegram.Row(telegram.Btn("« Back", "positions")))
	text := fmt.Sprintf("Selling *%s* (spent ◎%s). How much?", pos.Symbol, trimFloat(pos.SolSpent))
	h.edit(ctx, chatID, msgID, text, telegram.Keyboard(rows...))
}

func (h *Handler) showBuyMenu(ctx context.Context, chatID, msgID int64, acct ledger.Account, mint string) {
	symbol := shortAddr(mint)
	if info, err := h.Prices.GetTokenInfo(ctx, mint); err == nil && info.Symbol != "" {
		symbol = info.Symbol
	}
	h.sessions.set(chatID, pending{Mint: mint, Symbol: symbol, Action: "buy", TP: acct.Settings.TPPercent, SL: acct.Settings.SLPercent})

	var row []telegram.InlineKeyboardButton
	var rows [][]telegram.InlineKeyboardButton
	for _, amt := range acct.Settings.QuickBuyAmounts {
		row = append(row, telegram.Btn(fmt.Sprintf("◎ %s", trimFloat(amt)), fmt.Sprintf("buyamt_%s", trimFloat(amt))))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, telegram.Row(telegram.Btn("Custom amount", "buy_custom"), telegram.Btn("% of balance", "buy_pct_"+mint)))
	rows = append(rows, telegram.Row(telegram.Btn("With TP/SL", "buy_tpsl")))
	rows = append(rows, telegram.Row(telegram.Btn("« Cancel", "cancel")))
	h.edit(ctx, chatID, msgID, fmt.Sprintf("Buying *%s*. Pick the SOL amount:", symbol), telegram.Keyboard(rows...))
}

func (h *Handler) showPnL(ctx context.Context, chatID, msgID int64) {
	acct := h.Ledger.Get(chatID)
	s := acct.Stats
	winRate := 0.0
	if s.TotalTrades > 0 {
		winRate = float64(s.Wins) / float64(s.TotalTrades) * 100
	}
	text := fmt.Sprintf(
		"📈 *PnL*\n\nTotal trades: %d\nVolume: ◎%s\nRealized PnL: ◎%+.4f\nWin rate: %.0f%%",
		s.TotalTrades, trimFloat(s.TotalVolume), s.TotalPnL, winRate)
	h.edit(ctx, chatID, msgID, text, backKeyboard("main_menu"))
}

func (h *Handler) showHistory(ctx context.Context, chatID, msgID int64) {
	acct := h.Ledger.Get(chatID)
	if len(acct.History) == 0 {
		h.edit(ctx, chatID, msgID, "🕘 No closed trades yet.", backKeyboard("main_menu"))
		return
	}
	var b strings.Builder
	b.WriteString("🕘 *Trade History* (latest first)\n\n")
	max := len(acct.History)
	if max > 10 {
		max = 10
	}
	for _, rec := range acct.History[:max] {
		b.WriteString(fmt.Sprintf("*%s* — ◎%+.4f, closed %s\n", rec.Symbol, rec.PnL, rec.ExitTime.Format("Jan 02 15:04")))
	}
	h.edit(ctx, chatID, msgID, b.String(), backKeyboard("main_menu"))
}

func (h *Handler) showAlertsMenu(ctx context.Context, chatID, msgID int64) {
	list := h.Alerts.ForAccount(chatID)
	var b strings.Builder
	b.WriteString("🔔 *Price Alerts*\n\n")
	var rows [][]telegram.InlineKeyboardButton
	if len(list) == 0 {
		b.WriteString("No active alerts.\n")
	}
	for _, a := range list {
		arrow := "↑"
		if a.Direction == alerts.DirBelow {
			arrow = "↓"
		}
		b.WriteString(fmt.Sprintf("• %s %s $%s (%s)\n", a.Symbol, arrow, trimFloat(a.TargetPrice), a.Kind))
		rows = append(rows, telegram.Row(telegram.Btn(fmt.Sprintf("🗑 %s %s $%s", a.Symbol, arrow, trimFloat(a.TargetPrice)), "del_alert_"+a.ID)))
	}
	rows = append(rows, telegram.Row(telegram.Btn("➕ New alert", "new_alert")))
	rows = append(rows, telegram.Row(telegram.Btn("« Back", "main_menu")))
	h.edit(ctx, chatID, msgID, b.String(), telegram.Keyboard(rows...))
}

func (h *Handler) showCopyMenu(ctx context.Context, chatID, msgID int64, acct ledger.Account) {
	var b strings.Builder
	b.WriteString("👀 *Copy Trade*\n\nYou get a ping when a watched wallet trades through the aggregator.\n\n")
	var rows [][]telegram.InlineKeyboardButton
	if len(acct.Settings.CopyWallets) == 0 {
		b.WriteString("No wallets watched.\n")
	}
	for i, w := range acct.Settings.CopyWallets {
		b.WriteString(fmt.Sprintf("• `%s`\n", shortAddr(w)))
		rows = append(rows, telegram.Row(telegram.Btn("🗑 "+shortAddr(w), fmt.Sprintf("del_copy_%d", i))))
	}
	rows = append(rows, telegram.Row(telegram.Btn("➕ Watch a wallet", "add_copy")))
	rows = append(rows, telegram.Row(telegram.Btn("« Back", "main_menu")))
	h.edit(ctx, chatID, msgID, b.String(), telegram.Keyboard(rows...))
}

func (h *Handler) showSettings(ctx context.Context, chatID, msgID int64) {
	acct := h.Ledger.Get(chatID)
	s := acct.Settings
	text := fmt.Sprintf(
		"⚙️ *Settings*\n\nSlippage: %s%%\nPriority fee: %s SOL\nMin liquidity: $%s\nMin safety score: %d\nDefault TP/SL: %s%% / %s%%",
		trimFloat(float64(s.SlippageBps)/100), trimFloat(s.PriorityFeeSOL), trimFloat(s.MinLiquidityUSD),
		s.MinScore, trimFloat(s.TPPercent), trimFloat(s.SLPercent))
	kb := telegram.Keyboard(
		telegram.Row(telegram.Btn("Slippage", "set_slippage"), telegram.Btn("Priority fee", "set_priority")),
		telegram.Row(telegram.Btn("Min liquidity", "set_minliq"), telegram.Btn("Min score", "set_minscore")),
		telegram.Row(telegram.Btn("Default TP/SL", "set_tpsl")),
		telegram.Row(telegram.Btn("« Back", "main_menu")),
	)
	h.edit(ctx, chatID, msgID, text, kb)
}

func (h *Handler) showReferral(ctx context.Context, chatID, msgID int64) {
	acct := h.Ledger.Get(chatID)
	text := fmt.Sprintf(
		"🎁 *Referral*\n\nYour code: `%s`\nFriends referred: %d\n\nShare:\n`/start %s`",
		acct.Settings.ReferralCode, acct.Settings.ReferralCount, acct.Settings.ReferralCode)
	h.edit(ctx, chatID, msgID, text, backKeyboard("main_menu"))
}

// sendScanReport fetches safety and market data for a mint and renders the
// scan card with buy buttons.
func (h *Handler) sendScanReport(ctx context.Context, chatID int64, mint string) {
	acct := h.Ledger.Get(chatID)
	scan := h.Scanner.ScanToken(ctx, mint, acct.Settings.MinScore)

	var b strings.Builder
	info, err := h.Prices.GetTokenInfo(ctx, mint)
	if err != nil {
		fmt.Fprintf(&b, "🔍 *Scan* `%s`\n\nNo market data found for this mint.\n", shortAddr(mint))
	} else {
		fmt.Fprintf(&b, "🔍 *%s* (%s)\n`%s`\n\n", info.Name, info.Symbol, mint)
		fmt.Fprintf(&b, "Price: $%s (◎%s)\n", trimFloat(info.PriceUSD), trimFloat(info.PriceNative))
		fmt.Fprintf(&b, "Liquidity: $%s | Vol 24h: $%s\n", trimFloat(info.LiquidityUSD), trimFloat(info.Volume24h))
		fmt.Fprintf(&b, "1h %+.1f%% | 24h %+.1f%%\n", info.PriceChange1h, info.PriceChange24h)
		if info.MarketCap > 0 {
			fmt.Fprintf(&b, "Market cap: $%s\n", trimFloat(info.MarketCap))
		}
	}

	fmt.Fprintf(&b, "\n🛡 Safety: *%s* (score %d)\n", scan.Grade(), scan.Score)
	for _, r := range scan.Risks {
		fmt.Fprintf(&b, "  ⚠️ %s\n", r)
	}
	if info != nil && info.LiquidityUSD < acct.Settings.MinLiquidityUSD {
		fmt.Fprintf(&b, "\n⚠️ Liquidity is below your $%s minimum.\n", trimFloat(acct.Settings.MinLiquidityUSD))
	}
	if !scan.Passed && !scan.Unknown {
		fmt.Fprintf(&b, "⚠️ Score is below your minimum of %d. Trade carefully.\n", acct.Settings.MinScore)
	}

	kb := telegram.Keyboard(
		telegram.Row(telegram.Btn("💸 Buy", "buyprompt_"+mint)),
		telegram.Row(telegram.Btn("🔔 Set alert", "new_alert"), telegram.Btn("« Menu", "main_menu")),
	)
	h.send(ctx, chatID, b.String(), kb)
}

// receiptText renders a confirmed trade result.
func receiptText(p pending, r *trade.Receipt) string {
	var b strings.Builder
	switch p.Action {
	case "buy":
		fmt.Fprintf(&b, "✅ *Buy confirmed* — ◎%s → %s\n", trimFloat(p.AmountSOL), p.Symbol)
		if r.TPSet || r.SLSet {
			b.WriteString("TP/SL alerts registered.\n")
		}
	case "sell":
		fmt.Fprintf(&b, "✅ *Sell confirmed* — %s%% of %s\nRealized PnL: ◎%+.4f\n", trimFloat(p.Percent), p.Symbol, r.PnL)
		if r.Closed {
			b.WriteString("Position closed and moved to history.\n")
		}
	case "swap":
		fmt.Fprintf(&b, "✅ *Swap confirmed* — ◎%s → %s\n", trimFloat(p.UIAmount), p.Symbol)
	case "send":
		fmt.Fprintf(&b, "✅ *Sent* ◎%s to `%s`\n", trimFloat(p.UIAmount), shortAddr(p.Dest))
	case "send_token":
		fmt.Fprintf(&b, "✅ *Sent* %s %s to `%s`\n", trimFloat(p.UIAmount), p.Symbol, shortAddr(p.Dest))
	default:
		b.WriteString("✅ Transaction confirmed\n")
	}
	fmt.Fprintf(&b, "\n[View on Solscan](%s)", r.ExplorerURL())
	return b.String()
}

func shortAddr(a string) string {
	if len(a) <= 12 {
		return a
	}
	return a[:4] + "..." + a[len(a)-4:]
}

// trimFloat renders a float without trailing zeros.
func trimFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if len(s) > 12 {
		s = strconv.FormatFloat(v, 'f', 6, 64)
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}
