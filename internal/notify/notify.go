// Package notify delivers run reports to external receivers. The only
// transport is a JSON webhook; the CLI's own summary output is handled
// by internal/ui.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/refinery-cli/refinery/internal/model"
)

// defaultTimeout bounds a webhook delivery. Notifications are
// best-effort tail work; a stuck receiver must not hang the pipeline.
const defaultTimeout = 10 * time.Second

// Notifier delivers a run report.
type Notifier interface {
	Notify(ctx context.Context, report *model.RunReport) error
}

// Webhook POSTs the run report as JSON to a fixed URL.
type Webhook struct {
	// URL is the receiver endpoint.
	URL string

	// Client is the HTTP client used for delivery. Nil means a client
	// with defaultTimeout.
	Client *http.Client
}

// NewWebhook creates a webhook notifier for the given URL.
func NewWebhook(url string) *Webhook {
	return &Webhook{URL: url, Client: &http.Client{Timeout: defaultTimeout}}
}

// Notify posts the report. Any non-2xx response is an error carrying
// the status and a snippet of the response body.
func (w *Webhook) Notify(ctx context.Context, report *model.RunReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding run report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("delivering webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Read a bounded snippet for the error message; receivers often
		// explain rejections in the body.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("webhook returned %s: %s", resp.Status, bytes.TrimSpace(snippet))
	}
	return nil
}

// Nop is a Notifier that does nothing, used when no webhook is
// configured.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, *model.RunReport) error { return nil }
