// Package notify sends Telegram alerts for complete-set lifecycle events.
// It is optional: absent TELEGRAM_BOT_TOKEN/TELEGRAM_CHAT_ID the notifier
// is silently disabled and every Notify* call is a no-op, so the engine
// never has to branch on whether notifications are configured.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// Notifier sends alerts to a Telegram chat via the Bot API.
type Notifier struct {
	botToken   string
	chatID     string
	httpClient *http.Client
	enabled    bool
	baseURL    string // overridable for testing; defaults to Telegram API
}

// NewNotifier creates a Notifier. Notifications are enabled only when both
// botToken and chatID are non-empty.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken:   botToken,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		enabled:    botToken != "" && chatID != "",
	}
}

// Enabled reports whether the notifier is active.
func (n *Notifier) Enabled() bool { return n.enabled }

// Send posts a message to the configured Telegram chat.
func (n *Notifier) Send(ctx context.Context, msg string) error {
	if !n.enabled {
		return nil
	}

	endpoint := n.baseURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	}
	vals := url.Values{
		"chat_id":    {n.chatID},
		"text":       {msg},
		"parse_mode": {"HTML"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.URL.RawQuery = vals.Encode()

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Description string `json:"description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("notify: telegram %d: %s", resp.StatusCode, body.Description)
	}
	return nil
}

// NotifyQuote announces a newly-placed pair of maker bids.
func (n *Notifier) NotifyQuote(ctx context.Context, slug string, upPrice, downPrice, size decimal.Decimal, edgeCents decimal.Decimal) error {
	msg := fmt.Sprintf(
		"<b>Quote Placed</b>\nMarket: <code>%s</code>\nUP: %s  DOWN: %s\nSize: %s\nEdge: %s¢",
		slug, upPrice.StringFixed(2), downPrice.StringFixed(2), size.StringFixed(2), edgeCents.StringFixed(1),
	)
	return n.Send(ctx, msg)
}

// NotifySetComplete announces both legs of a set filling.
func (n *Notifier) NotifySetComplete(ctx context.Context, setID, slug string, combinedCost decimal.Decimal) error {
	msg := fmt.Sprintf(
		"<b>Set Complete</b>\nSet: <code>%s</code>\nMarket: <code>%s</code>\nCombined cost: %s",
		setID, slug, combinedCost.StringFixed(4),
	)
	return n.Send(ctx, msg)
}

// NotifyRedeemed announces a successful redemption and its realised PnL.
func (n *Notifier) NotifyRedeemed(ctx context.Context, setID, slug string, pnl decimal.Decimal) error {
	msg := fmt.Sprintf(
		"<b>Redeemed</b>\nSet: <code>%s</code>\nMarket: <code>%s</code>\nPnL: %s USDC",
		setID, slug, pnl.StringFixed(4),
	)
	return n.Send(ctx, msg)
}

// NotifyAbandoned announces a one-leg hold that resolved against the
// filled side.
func (n *Notifier) NotifyAbandoned(ctx context.Context, setID, slug string, loss decimal.Decimal) error {
	msg := fmt.Sprintf(
		"<b>Position Abandoned</b>\nSet: <code>%s</code>\nMarket: <code>%s</code>\nLoss: %s USDC",
		setID, slug, loss.StringFixed(4),
	)
	return n.Send(ctx, msg)
}

// NotifyRedemptionFailed is a critical alert: the redemption transaction
// itself failed (reverted or exhausted retries), distinct from the benign
// "no tokens redeemed" outcome.
func (n *Notifier) NotifyRedemptionFailed(ctx context.Context, setID, slug, reason string, attempts int) error {
	msg := fmt.Sprintf(
		"<b>Redemption Failed</b>\nSet: <code>%s</code>\nMarket: <code>%s</code>\nReason: %s\nAttempts: %d",
		setID, slug, reason, attempts,
	)
	return n.Send(ctx, msg)
}

// NotifyBlacklistSuspected is a critical alert fired when the risk
// governor trips the kill switch on suspected wallet blacklisting.
func (n *Notifier) NotifyBlacklistSuspected(ctx context.Context, consecutiveFailures int) error {
	msg := fmt.Sprintf(
		"<b>Suspected Blacklist — Kill Switch Engaged</b>\nConsecutive redemption failures: %d\nAll new quoting halted.",
		consecutiveFailures,
	)
	return n.Send(ctx, msg)
}

// NotifyStatus sends the periodic risk+PnL snapshot the status loop
// produces every 30s.
func (n *Notifier) NotifyStatus(ctx context.Context, activeSets int, dailyPnL, totalPnL decimal.Decimal, killSwitch bool) error {
	msg := fmt.Sprintf(
		"<b>Status</b>\nActive sets: %d\nDaily PnL: %s\nTotal PnL: %s\nKill switch: %v",
		activeSets, dailyPnL.StringFixed(4), totalPnL.StringFixed(4), killSwitch,
	)
	return n.Send(ctx, msg)
}
