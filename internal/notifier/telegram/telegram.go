package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/newthinker/cta/internal/notifier"
	"github.com/newthinker/cta/internal/strategy"
)

const defaultBaseURL = "https://api.telegram.org"

// Telegram implements the Notifier interface for Telegram Bot API
type Telegram struct {
	name     string
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

// New creates a new Telegram notifier
func New(botToken, chatID string) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  defaultBaseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (t *Telegram) Name() string {
	if t.name != "" {
		return t.name
	}
	return "telegram"
}

func (t *Telegram) Init(cfg notifier.Config) error {
	if name, ok := cfg.Params["name"].(string); ok {
		t.name = name
	}
	if token, ok := cfg.Params["bot_token"].(string); ok {
		t.botToken = token
	}
	if chatID, ok := cfg.Params["chat_id"]; ok {
		t.chatID = fmt.Sprint(chatID)
	}
	if baseURL, ok := cfg.Params["base_url"].(string); ok {
		t.baseURL = baseURL
	}

	if t.botToken == "" {
		return fmt.Errorf("telegram: bot_token is required")
	}
	if t.chatID == "" {
		return fmt.Errorf("telegram: chat_id is required")
	}

	if t.baseURL == "" {
		t.baseURL = defaultBaseURL
	}
	if t.client == nil {
		t.client = &http.Client{Timeout: 30 * time.Second}
	}
	return nil
}

func (t *Telegram) Send(ctx context.Context, ev strategy.Event) error {
	return t.sendMessage(ctx, formatEvent(ev))
}

func formatEvent(ev strategy.Event) string {
	var sb strings.Builder

	state := "stopped"
	if ev.Trading {
		state = "trading"
	} else if ev.Inited {
		state = "inited"
	}

	posEmoji := "⏸️"
	if ev.Pos > 0 {
		posEmoji = "📈"
	} else if ev.Pos < 0 {
		posEmoji = "📉"
	}

	sb.WriteString(fmt.Sprintf("%s *%s* %s (%s)\n", posEmoji, ev.Name, ev.Symbol, state))
	sb.WriteString(fmt.Sprintf("Position: %d\n", ev.Pos))

	names := make([]string, 0, len(ev.Variables))
	for name := range ev.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if f, ok := ev.Variables[name].(float64); ok {
			sb.WriteString(fmt.Sprintf("%s: %.2f\n", name, f))
		} else {
			sb.WriteString(fmt.Sprintf("%s: %v\n", name, ev.Variables[name]))
		}
	}

	sb.WriteString(fmt.Sprintf("⏰ Time: %s", ev.Time.Format(time.DateTime)))

	return sb.String()
}

func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)

	payload := map[string]any{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var result map[string]any
		json.NewDecoder(resp.Body).Decode(&result)
		return fmt.Errorf("telegram: API error (status %d): %v", resp.StatusCode, result)
	}

	return nil
}
