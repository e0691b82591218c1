// Package transport sends outbound text messages through a third-party
// carrier. The dispatch engine only sees the Sender interface, so tests and
// alternative carriers plug in without touching the engine.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/renomarket/dispatch-be/internal/domain"
)

// Sender sends one text message and returns the carrier's message identifier,
// which the ledger stores for delivery-status correlation.
type Sender interface {
	Send(ctx context.Context, to, body string) (providerMessageID string, err error)
}

// Config holds carrier client configuration.
type Config struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	BaseURL    string
	Timeout    time.Duration
}

// Client is a Sender backed by a Twilio-style messages endpoint.
type Client struct {
	config *Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a carrier client. Sends happen inside webhook handling
// paths, so the request timeout stays short; failed sends are retried by the
// escalation sweep.
func NewClient(config *Config, logger *slog.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		config: config,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Send posts one message to the carrier and returns the provider message id.
// All failures are wrapped as domain.TransportError so callers can leave the
// assignment in its pre-send state for the scheduler to retry.
func (c *Client) Send(ctx context.Context, to, body string) (string, error) {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.config.BaseURL, c.config.AccountSID)

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.config.FromNumber)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", domain.NewTransportError(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.config.AccountSID, c.config.AuthToken)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("Carrier request failed",
			slog.String("to", to),
			slog.Any("error", err),
		)
		return "", domain.NewTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("Carrier rejected message",
			slog.String("to", to),
			slog.Int("status", resp.StatusCode),
		)
		return "", domain.NewTransportError(fmt.Errorf("carrier returned status %d", resp.StatusCode))
	}

	var out struct {
		SID string `json:"sid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", domain.NewTransportError(fmt.Errorf("failed to decode carrier response: %w", err))
	}

	c.logger.Debug("Message sent",
		slog.String("to", to),
		slog.String("provider_message_id", out.SID),
		slog.Int("body_size", len(body)),
	)

	return out.SID, nil
}
