// Package relay forwards alert events to the alert endpoint over HTTP.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/srg/posturewatch/internal/alerts"
)

const (
	DefaultURL     = "http://127.0.0.1:5000/alert"
	DefaultTimeout = 5 * time.Second

	// maxResponseBody bounds how much of the response is kept for logging
	maxResponseBody = 4096
)

// StatusError reports a non-200 response from the alert endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("alert endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// Options configures a Relay
type Options struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
}

// Relay posts each alert once. There is no retry and no persistence: a failed
// alert is lost and the caller decides how to report it.
type Relay struct {
	url    string
	client *http.Client
	logger *logrus.Logger
}

// New creates a relay. Zero-valued options fall back to defaults.
func New(opts Options, logger *logrus.Logger) *Relay {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Relay{url: opts.URL, client: client, logger: logger}
}

// URL returns the endpoint alerts are posted to
func (r *Relay) URL() string {
	return r.url
}

// Send posts the event as {"timestamp","message"} and waits for the response.
func (r *Relay) Send(ctx context.Context, ev alerts.Event) error {
	payload, err := json.Marshal(ev.Payload())
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send alert to %s: %w", r.url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}

	r.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"response":   string(bytes.TrimSpace(body)),
	}).Info("Alert delivered")
	return nil
}
