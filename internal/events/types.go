package events

// Event enumerates high-level topics inside the bot.
type Event string

const (
	EventTradeExecuted Event = "trade.executed"
	EventTradeFailed   Event = "trade.failed"
	EventAlertFired    Event = "alert.fired"
	EventCopyTrade     Event = "copytrade.detected"
	EventNotify        Event = "notify"
)

// Notification is the payload for EventNotify and the two monitor events: a
// text to deliver to a chat target.
type Notification struct {
	ChatID int64
	Text   string
}
