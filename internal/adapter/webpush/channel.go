package webpush

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	webpushgo "github.com/SherClockHolmes/webpush-go"

	"github.com/couchcryptid/rainfall-alerts/internal/alert"
	"github.com/couchcryptid/rainfall-alerts/internal/domain"
	"github.com/couchcryptid/rainfall-alerts/internal/observability"
)

// ErrNotConfigured is returned when the VAPID key pair is missing.
var ErrNotConfigured = errors.New("VAPID_PUBLIC_KEY or VAPID_PRIVATE_KEY not set")

// ErrNoSubscribers is returned when there is nobody to notify.
var ErrNoSubscribers = errors.New("no push subscriptions")

const notificationTTL = 600 // seconds

type sendFunc func(ctx context.Context, message []byte, s *webpushgo.Subscription, opts *webpushgo.Options) (*http.Response, error)

// Payload is the JSON body delivered to the browser service worker. Message
// duplicates Body for service workers that read data.message.
type Payload struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	Message string `json:"message"`
}

// Channel implements alert.Channel by sending an encrypted web push message
// to every stored subscription.
type Channel struct {
	subs       *SubscriptionStore
	publicKey  string
	privateKey string
	subject    string
	httpClient *http.Client
	send       sendFunc
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewChannel creates a push channel. Empty keys produce a channel whose sends
// fail with alert.ReasonMissingCredentials.
func NewChannel(subs *SubscriptionStore, publicKey, privateKey, subject string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Channel {
	return &Channel{
		subs:       subs,
		publicKey:  publicKey,
		privateKey: privateKey,
		subject:    subject,
		httpClient: &http.Client{Timeout: timeout},
		send:       webpushgo.SendNotificationWithContext,
		logger:     logger,
		metrics:    metrics,
	}
}

func (c *Channel) Name() string { return "webpush" }

// Send pushes the alert title and summary to all subscribers.
func (c *Channel) Send(ctx context.Context, req domain.NotificationRequest) alert.Result {
	return c.Broadcast(ctx, req.Title, req.Summary())
}

// Broadcast delivers a notification to every subscriber. One subscriber
// failing does not stop delivery to the rest; the result is a success whenever
// the subscriber list was readable and non-empty.
func (c *Channel) Broadcast(ctx context.Context, title, body string) alert.Result {
	if c.publicKey == "" || c.privateKey == "" {
		return alert.Failure(alert.ReasonMissingCredentials, ErrNotConfigured)
	}

	subs, err := c.subs.List()
	if errors.Is(err, os.ErrNotExist) {
		return alert.Failure(alert.ReasonNoSubscribers, ErrNoSubscribers)
	}
	if err != nil {
		return alert.Failure(alert.ReasonStorage, err)
	}
	if len(subs) == 0 {
		return alert.Failure(alert.ReasonNoSubscribers, ErrNoSubscribers)
	}

	message, err := json.Marshal(Payload{Title: title, Body: body, Message: body})
	if err != nil {
		return alert.Failure(alert.ReasonNone, fmt.Errorf("encode payload: %w", err))
	}

	delivered := 0
	for i, raw := range subs {
		if err := c.deliver(ctx, raw, message); err != nil {
			c.metrics.PushDeliveries.WithLabelValues("error").Inc()
			c.logger.Warn("web push delivery failed", "subscriber", i, "error", err)
			continue
		}
		c.metrics.PushDeliveries.WithLabelValues("success").Inc()
		delivered++
	}

	c.logger.Debug("web push broadcast finished", "subscribers", len(subs), "delivered", delivered)
	return alert.Success()
}

func (c *Channel) deliver(ctx context.Context, raw json.RawMessage, message []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("push send panicked: %v", r)
		}
	}()

	var sub webpushgo.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}
	if sub.Endpoint == "" {
		return errors.New("subscription has no endpoint")
	}

	resp, err := c.send(ctx, message, &sub, &webpushgo.Options{
		HTTPClient:      c.httpClient,
		Subscriber:      c.subject,
		VAPIDPublicKey:  c.publicKey,
		VAPIDPrivateKey: c.privateKey,
		TTL:             notificationTTL,
		Urgency:         webpushgo.UrgencyHigh,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("push service returned status %d", resp.StatusCode)
	}
	return nil
}
