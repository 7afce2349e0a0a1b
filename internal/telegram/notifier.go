// File: internal/telegram/notifier.go
// ============================================
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"paper-trading-bot/internal/logger"
	"paper-trading-bot/pkg/types"
)

const DefaultAPIURL = "https://api.telegram.org"

// Notifier sends HTML-formatted messages to one chat. Notify* calls only
// enqueue; Run delivers. A full queue drops the message.
type Notifier struct {
	botToken string
	chatID   string
	enabled  bool
	apiURL   string
	client   *http.Client
	log      *zap.Logger
	queue    chan string
}

func NewNotifier(botToken, chatID string, enabled bool, log *zap.Logger) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		enabled:  enabled && botToken != "" && chatID != "",
		apiURL:   DefaultAPIURL,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      logger.OrNop(log).Named("telegram"),
		queue:    make(chan string, 64),
	}
}

// WithAPIURL points the notifier at a different Bot API host.
func (n *Notifier) WithAPIURL(u string) *Notifier {
	n.apiURL = strings.TrimRight(u, "/")
	return n
}

// Run delivers queued messages until ctx is done.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.queue:
			if err := n.sendMessage(ctx, msg); err != nil {
				n.log.Warn("telegram send failed", zap.Error(err))
			}
		}
	}
}

func (n *Notifier) enqueue(msg string) {
	if !n.enabled {
		n.log.Debug("telegram disabled, message skipped")
		return
	}
	select {
	case n.queue <- msg:
	default:
		n.log.Warn("telegram queue full, message dropped")
	}
}

func (n *Notifier) sendMessage(ctx context.Context, message string) error {
	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", n.apiURL, n.botToken)

	data := url.Values{}
	data.Set("chat_id", n.chatID)
	data.Set("text", message)
	data.Set("parse_mode", "HTML")
	data.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API error (%d): %s", resp.StatusCode, string(body))
	}
	return nil
}

func (n *Notifier) NotifyStart(symbols int, strategy string) {
	msg := "🤖 <b>Paper Trading Agent Started</b>\n\n"
	msg += fmt.Sprintf("📊 Watching <b>%d</b> symbols\n", symbols)
	msg += fmt.Sprintf("⚙️ Strategy: <b>%s</b>\n", strategy)
	msg += "⚠️ Simulated fills only"
	n.enqueue(msg)
}

func (n *Notifier) NotifyStop() {
	n.enqueue("🛑 <b>Paper Trading Agent Stopped</b>")
}

func (n *Notifier) NotifyTrade(trade types.Trade, realized float64, closed bool) {
	emoji := "📈"
	if trade.Side == types.Sell {
		emoji = "📉"
	}

	msg := fmt.Sprintf("%s <b>%s %s</b>\n\n", emoji, trade.Side, trade.Symbol)
	msg += fmt.Sprintf("Price: <code>%.6f</code>\n", trade.Price)
	msg += fmt.Sprintf("Quantity: <code>%.6f</code>\n", trade.Quantity)
	msg += fmt.Sprintf("Fee: <code>%.6f</code>\n", trade.Fee)
	if closed {
		result := "✅"
		if realized < 0 {
			result = "❌"
		}
		msg += fmt.Sprintf("\n%s Realized: <b>%.2f</b>", result, realized)
	}
	n.enqueue(msg)
}

func (n *Notifier) NotifyHalt(reason string, until time.Time, streak int) {
	msg := "⚠️ <b>Circuit Breaker</b>\n\n"
	msg += fmt.Sprintf("Reason: <b>%s</b> (%d losses in a row)\n", reason, streak)
	msg += fmt.Sprintf("Cooldown until: <code>%s</code>\n", until.UTC().Format(time.RFC3339))
	msg += "All positions liquidated"
	n.enqueue(msg)
}
