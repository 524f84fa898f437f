// Package notify posts short plain-text messages to an ntfy-style endpoint.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNoEndpoint is returned by Send when no endpoint is configured.
var ErrNoEndpoint = errors.New("notify: endpoint is required")

// Notifier sends messages to one endpoint. A zero endpoint disables it.
type Notifier struct {
	endpoint string
	client   *http.Client
}

// New creates a notifier. A nil client gets a 10s timeout.
func New(endpoint string, client *http.Client) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Notifier{endpoint: strings.TrimSpace(endpoint), client: client}
}

// Enabled reports whether an endpoint is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.endpoint != ""
}

// Notify sends message, doing nothing when disabled.
func (n *Notifier) Notify(ctx context.Context, message string) error {
	if !n.Enabled() {
		return nil
	}
	return Send(ctx, n.client, n.endpoint, message)
}

// SnapshotMessage describes a finished snapshot run.
func SnapshotMessage(saved, failed int, trigger string) string {
	if failed == 0 {
		return fmt.Sprintf("candleview: %s snapshot run saved %d chart(s)", trigger, saved)
	}
	return fmt.Sprintf("candleview: %s snapshot run saved %d chart(s), %d failed", trigger, saved, failed)
}

// Send posts message to endpoint as text/plain.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	if strings.TrimSpace(endpoint) == "" {
		return ErrNoEndpoint
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
