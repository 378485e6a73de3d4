package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// telegramMaxText is the Bot API limit on a single message.
const telegramMaxText = 4096

// TelegramSender delivers notifications via the Telegram Bot API.
type TelegramSender struct {
	baseURL string
	token   string
	chatID  string
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat
// ID. It uses a default HTTP client with a 10-second timeout.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		baseURL: "https://api.telegram.org",
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// WithBaseURL points the sender at a different Bot API host.
func (t *TelegramSender) WithBaseURL(u string) *TelegramSender {
	t.baseURL = strings.TrimRight(u, "/")
	return t
}

// telegramResponse is the envelope every Bot API method returns.
type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts a plain-text message to the configured chat. Symbols and
// direction names contain underscores, so no parse mode is set.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)

	text := title
	if message != "" {
		text = title + "\n" + message
	}

	body, err := json.Marshal(map[string]any{
		"chat_id":                  t.chatID,
		"text":                     truncate(text, telegramMaxText),
		"disable_web_page_preview": true,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var tr telegramResponse
	if err := json.Unmarshal(respBody, &tr); err == nil && !tr.OK {
		return fmt.Errorf("telegram: api error: %s", tr.Description)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
