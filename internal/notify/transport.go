// Package notify delivers push notifications for newly created signals:
// radius-based candidate discovery, bounded-concurrency dispatch with
// per-recipient failure isolation, and garbage collection of permanently
// gone subscriptions.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/citysignal/citysignal/internal/subscription"
)

// Payload is the wire shape pushed to subscribers. The compact keys match
// what the client-side service worker expects.
type Payload struct {
	Title     string `json:"t"`
	Body      string `json:"b"`
	Level     int    `json:"l"`
	Address   string `json:"a"`
	ZoneKey   string `json:"z"`
	SignalID  string `json:"id"`
	CreatedAt string `json:"at"`
}

// Delivery is the outcome of a single dispatch attempt. Gone marks the
// transport's permanent-failure class (HTTP 404/410): the subscription no
// longer exists at the push service and should be deactivated.
type Delivery struct {
	OK   bool
	Gone bool
	Err  error
}

// Transport sends one notification to one subscriber.
type Transport interface {
	Send(ctx context.Context, sub *subscription.Subscription, p Payload) Delivery
}

// WebPushConfig holds VAPID credentials and delivery options for the
// web-push transport.
type WebPushConfig struct {
	// Subject is the VAPID contact URI (mailto: or https:).
	Subject string

	// PublicKey and PrivateKey are the VAPID key pair.
	PublicKey  string
	PrivateKey string

	// TTL is how long the push service should retain an undelivered
	// notification, in seconds. Default: 300.
	TTL int

	// MaxRetries bounds retries of transient (5xx/network) failures.
	// Default: 2.
	MaxRetries uint64

	Logger zerolog.Logger
}

// WebPushTransport delivers notifications over the Web Push protocol with
// VAPID authentication. Transient failures are retried with exponential
// backoff; 404/410 responses are reported as Gone without retrying.
type WebPushTransport struct {
	cfg WebPushConfig
}

// NewWebPushTransport creates a web-push transport.
func NewWebPushTransport(cfg WebPushConfig) *WebPushTransport {
	if cfg.TTL == 0 {
		cfg.TTL = 300
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	return &WebPushTransport{cfg: cfg}
}

// retryableStatusError marks HTTP statuses worth retrying.
type retryableStatusError struct {
	status int
}

func (e *retryableStatusError) Error() string {
	return fmt.Sprintf("push service returned %d", e.status)
}

// Send pushes the payload to one subscriber.
func (t *WebPushTransport) Send(ctx context.Context, sub *subscription.Subscription, p Payload) Delivery {
	body, err := json.Marshal(p)
	if err != nil {
		return Delivery{Err: fmt.Errorf("marshal payload: %w", err)}
	}

	target := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}
	opts := &webpush.Options{
		Subscriber:      t.cfg.Subject,
		VAPIDPublicKey:  t.cfg.PublicKey,
		VAPIDPrivateKey: t.cfg.PrivateKey,
		TTL:             t.cfg.TTL,
	}

	var gone bool
	attempt := func() error {
		resp, err := webpush.SendNotificationWithContext(ctx, body, target, opts)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			gone = true
			return backoff.Permanent(fmt.Errorf("subscription gone (%d)", resp.StatusCode))
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return &retryableStatusError{status: resp.StatusCode}
		case resp.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("push service rejected request (%d)", resp.StatusCode))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 0

	err = backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(bo, t.cfg.MaxRetries), ctx))

	d := Delivery{OK: err == nil, Gone: gone, Err: err}
	t.logDelivery(sub, d)
	return d
}

func (t *WebPushTransport) logDelivery(sub *subscription.Subscription, d Delivery) {
	endpoint := sub.Endpoint
	if len(endpoint) > 32 {
		endpoint = endpoint[:32] + "..."
	}
	ev := t.cfg.Logger.Info()
	if !d.OK {
		ev = t.cfg.Logger.Warn().AnErr("error", d.Err)
	}
	ev.Str("subscription_id", sub.ID).
		Str("endpoint", endpoint).
		Bool("ok", d.OK).
		Bool("gone", d.Gone).
		Msg("push send")
}

// Ensure WebPushTransport implements Transport.
var _ Transport = (*WebPushTransport)(nil)
