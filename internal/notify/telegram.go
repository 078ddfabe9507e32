package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yeye296/Xserver-VPS-Renew/internal/config"
)

// Notifier delivers run outcomes to a Telegram chat. Delivery is best
// effort: failures are logged and never escalate into the run result.
type Notifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
	log      *logrus.Entry
}

// NewNotifier creates a notifier. With missing credentials it becomes a
// no-op, so callers never need to branch.
func NewNotifier(cfg *config.TelegramConfig) *Notifier {
	return &Notifier{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		apiBase:  "https://api.telegram.org",
		client:   &http.Client{Timeout: 15 * time.Second},
		log:      logrus.WithField("component", "notify"),
	}
}

// Notify sends one message to the configured chat.
func (n *Notifier) Notify(ctx context.Context, message string) {
	if n.botToken == "" || n.chatID == "" {
		return
	}

	payload, err := json.Marshal(map[string]string{
		"chat_id":    n.chatID,
		"text":       message,
		"parse_mode": "HTML",
	})
	if err != nil {
		n.log.Errorf("Failed to encode notification: %v", err)
		return
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		n.log.Errorf("Failed to build notification request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Errorf("Failed to send notification: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		n.log.Errorf("Telegram returned status %d", resp.StatusCode)
		return
	}
	n.log.Info("Notification sent")
}
