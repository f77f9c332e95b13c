package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/rainfall-alerts/internal/alert"
	"github.com/couchcryptid/rainfall-alerts/internal/domain"
)

// ErrNotConfigured is returned when the bot token or chat id is missing.
var ErrNotConfigured = errors.New("TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_ID not set")

// Client implements alert.Channel using the Telegram Bot API sendMessage call.
// It never retries.
type Client struct {
	token      string
	chatID     string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a Telegram channel. Empty credentials produce a client
// whose sends fail with alert.ReasonMissingCredentials.
func NewClient(token, chatID string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		token:  token,
		chatID: chatID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://api.telegram.org",
		logger:  logger,
	}
}

func (c *Client) Name() string { return "telegram" }

// Send posts the Markdown alert text to the configured chat.
func (c *Client) Send(ctx context.Context, req domain.NotificationRequest) alert.Result {
	if c.token == "" || c.chatID == "" {
		return alert.Failure(alert.ReasonMissingCredentials, ErrNotConfigured)
	}
	if err := c.SendMessage(ctx, req.Markdown(), false); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return alert.Failure(alert.ReasonRejected, err)
		}
		return alert.Failure(alert.ReasonTransport, err)
	}
	return alert.Success()
}

// SendMessage posts text to the chat. Any non-2xx response is an *APIError.
func (c *Client) SendMessage(ctx context.Context, text string, silent bool) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:              c.chatID,
		Text:                text,
		ParseMode:           "Markdown",
		DisableNotification: silent,
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	u := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// The URL embeds the bot token; keep it out of logs.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(msg)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// APIError is a non-2xx answer from the Bot API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram API error: status %d: %s", e.StatusCode, e.Body)
}

type sendMessageRequest struct {
	ChatID              string `json:"chat_id"`
	Text                string `json:"text"`
	ParseMode           string `json:"parse_mode"`
	DisableNotification bool   `json:"disable_notification"`
}
