// Package webhook implements an HTTP webhook notifier
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/newthinker/cta/internal/notifier"
	"github.com/newthinker/cta/internal/strategy"
)

// Webhook posts strategy events as JSON to a URL
type Webhook struct {
	name    string
	url     string
	headers map[string]string
	client  *http.Client
}

// New creates a new Webhook notifier
func New(url string, headers map[string]string) *Webhook {
	return &Webhook{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Name returns the registry key, "webhook" unless Init set a name param.
func (w *Webhook) Name() string {
	if w.name != "" {
		return w.name
	}
	return "webhook"
}

func (w *Webhook) Init(cfg notifier.Config) error {
	if name, ok := cfg.Params["name"].(string); ok {
		w.name = name
	}
	if url, ok := cfg.Params["url"].(string); ok {
		w.url = url
	}
	switch headers := cfg.Params["headers"].(type) {
	case map[string]string:
		w.headers = headers
	case map[string]any:
		w.headers = make(map[string]string, len(headers))
		for k, v := range headers {
			w.headers[k] = fmt.Sprint(v)
		}
	}

	if w.url == "" {
		return fmt.Errorf("webhook: url is required")
	}

	if w.client == nil {
		w.client = &http.Client{Timeout: 10 * time.Second}
	}

	return nil
}

func (w *Webhook) Send(ctx context.Context, ev strategy.Event) error {
	return w.post(ctx, payload{Type: "strategy", Event: ev})
}

type payload struct {
	Type  string         `json:"type"`
	Event strategy.Event `json:"event"`
}

func (w *Webhook) post(ctx context.Context, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("webhook: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("webhook: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: server returned %d", resp.StatusCode)
	}

	return nil
}
