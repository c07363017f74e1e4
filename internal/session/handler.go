package session

import (
	"context"
	"fmt"
	"log"
	"strings"

	"solbot/internal/events"
	"solbot/internal/ledger"
	"solbot/pkg/solana"
	"solbot/pkg/telegram"
)

// HandleUpdate is the single entry point for incoming Telegram updates.
func (h *Handler) HandleUpdate(ctx context.Context, u telegram.Update) {
	switch {
	case u.CallbackQuery != nil:
		h.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		h.handleMessage(ctx, u.Message)
	}
}

func (h *Handler) handleMessage(ctx context.Context, m *telegram.Message) {
	chatID := m.Chat.ID
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}

	if strings.HasPrefix(text, "/") {
		h.handleCommand(ctx, m, text)
		return
	}

	p := h.sessions.get(chatID)
	if p.Step != StepNone {
		h.handleStepInput(ctx, m, p)
		return
	}

	// A bare base58 address in an idle chat is treated as a scan request.
	if solana.IsAddress(text) {
		h.sendScanReport(ctx, chatID, text)
		return
	}

	h.send(ctx, chatID, "I didn't catch that. Use /menu for the main menu or paste a token address to scan it.", nil)
}

func (h *Handler) handleCommand(ctx context.Context, m *telegram.Message, text string) {
	chatID := m.Chat.ID
	parts := strings.Fields(text)
	cmd := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}

	// /cancel always clears the conversation, whatever state it is in.
	if cmd == "cancel" {
		h.sessions.clear(chatID)
		h.send(ctx, chatID, "Cancelled. Back to the main menu.", mainMenuKeyboard())
		return
	}

	acct := h.Ledger.Get(chatID)
	if !acct.Onboarded && cmd != "start" {
		h.send(ctx, chatID, "Please run /start first to set up your wallet.", nil)
		return
	}

	switch cmd {
	case "start":
		var refCode string
		if len(parts) > 1 {
			refCode = strings.ToUpper(strings.TrimSpace(parts[1]))
		}
		h.handleStart(ctx, chatID, acct, refCode)
	case "menu":
		h.send(ctx, chatID, mainMenuText(), mainMenuKeyboard())
	case "wallet":
		h.showWalletMenu(ctx, chatID, 0)
	case "positions":
		h.showPositions(ctx, chatID, 0)
	case "pnl":
		h.showPnL(ctx, chatID, 0)
	case "history":
		h.showHistory(ctx, chatID, 0)
	case "alerts":
		h.showAlertsMenu(ctx, chatID, 0)
	case "scan":
		if len(parts) > 1 && solana.IsAddress(parts[1]) {
			h.sendScanReport(ctx, chatID, parts[1])
			return
		}
		h.sessions.set(chatID, pending{Step: StepScan})
		h.send(ctx, chatID, "Paste the token mint address you want scanned.", cancelKeyboard())
	case "settings":
		h.showSettings(ctx, chatID, 0)
	case "referral":
		h.showReferral(ctx, chatID, 0)
	case "help":
		h.send(ctx, chatID, helpText(), mainMenuKeyboard())
	default:
		h.send(ctx, chatID, "Unknown command. Try /help.", nil)
	}
}

func (h *Handler) handleStart(ctx context.Context, chatID int64, acct ledger.Account, refCode string) {
	if acct.Onboarded {
		h.send(ctx, chatID, mainMenuText(), mainMenuKeyboard())
		return
	}
	if refCode != "" && refCode != acct.Settings.ReferralCode {
		h.Ledger.Update(chatID, func(a *ledger.Account) {
			if a.Settings.ReferredBy == "" {
				a.Settings.ReferredBy = refCode
			}
		})
	}
	kb := telegram.Keyboard(
		telegram.Row(telegram.Btn("✅ I understand, create my wallet", "confirm_onboard")),
		telegram.Row(telegram.Btn("❌ Not now", "cancel_onboard")),
	)
	h.send(ctx, chatID, onboardingDisclaimer(), kb)
}

func (h *Handler) finishOnboarding(ctx context.Context, chatID int64) {
	acct := h.Ledger.Get(chatID)
	if acct.Onboarded {
		h.send(ctx, chatID, mainMenuText(), mainMenuKeyboard())
		return
	}

	kp, err := solana.GenerateKeypair()
	if err != nil {
		log.Printf("session: keypair generation failed: %v", err)
		h.send(ctx, chatID, "Wallet generation failed, please try again.", nil)
		return
	}
	address := kp.PublicAddress()
	secret := kp.SecretBase58()
	kp.Zero()

	h.Ledger.Update(chatID, func(a *ledger.Account) {
		a.WalletAddress = address
		a.Onboarded = true
	})
	acct = h.Ledger.Get(chatID)
	if ref := acct.Settings.ReferredBy; ref != "" {
		if refID, ok := h.Ledger.CreditReferrer(ref); ok {
			h.Bus.Publish(events.EventNotify, events.Notification{
				ChatID: refID,
				Text:   "🎁 Someone joined with your referral code. Thanks for spreading the word!",
			})
		}
	}

	text := fmt.Sprintf(
		"🎉 *Wallet created*\n\n"+
			"Address:\n`%s`\n\n"+
			"Private key (shown ONCE, never stored):\n`%s`\n\n"+
			"⚠️ Write the key down now and delete this message. "+
			"You will paste it each time you sign a transaction.",
		address, secret)
	h.send(ctx, chatID, text, mainMenuKeyboard())
}

// send wraps SendMessage with error logging so call sites stay short.
func (h *Handler) send(ctx context.Context, chatID int64, text string, kb *telegram.InlineKeyboardMarkup) int64 {
	id, err := h.TG.SendMessage(ctx, chatID, text, kb)
	if err != nil {
		log.Printf("session: send to %d failed: %v", chatID, err)
	}
	return id
}

// edit edits in place when messageID is set, otherwise sends a new message.
func (h *Handler) edit(ctx context.Context, chatID, messageID int64, text string, kb *telegram.InlineKeyboardMarkup) {
	if messageID == 0 {
		h.send(ctx, chatID, text, kb)
		return
	}
	if err := h.TG.EditMessage(ctx, chatID, messageID, text, kb); err != nil {
		h.send(ctx, chatID, text, kb)
	}
}
