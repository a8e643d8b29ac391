package email

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/cta/internal/notifier"
	"github.com/newthinker/cta/internal/strategy"
)

func TestEmail_ImplementsNotifier(t *testing.T) {
	var _ notifier.Notifier = (*Email)(nil)
}

func TestEmail_Name(t *testing.T) {
	e := New("smtp.example.com", 587, "", "", "from@example.com", []string{"to@example.com"})
	if e.Name() != "email" {
		t.Errorf("expected 'email', got %s", e.Name())
	}
}

func TestEmail_Init_RequiredFields(t *testing.T) {
	e := &Email{}
	if err := e.Init(notifier.Config{Params: map[string]any{}}); err == nil {
		t.Error("expected error for missing required fields")
	}
}

func TestEmail_Init_WithConfig(t *testing.T) {
	e := &Email{}
	err := e.Init(notifier.Config{
		Params: map[string]any{
			"host": "smtp.example.com",
			"port": "2525",
			"from": "cta@example.com",
			"to":   []any{"a@example.com", "b@example.com"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.host != "smtp.example.com" || e.port != 2525 {
		t.Errorf("unexpected address %s:%d", e.host, e.port)
	}
	if len(e.to) != 2 || e.to[1] != "b@example.com" {
		t.Errorf("unexpected recipients %v", e.to)
	}
}

func TestEmail_Init_DefaultPort(t *testing.T) {
	e := &Email{}
	err := e.Init(notifier.Config{Params: map[string]any{
		"host": "smtp.example.com",
		"from": "cta@example.com",
		"to":   "ops@example.com",
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.port != 587 {
		t.Errorf("expected default port 587, got %d", e.port)
	}
}

func TestEmail_Send(t *testing.T) {
	e := New("smtp.example.com", 25, "", "", "cta@example.com", []string{"ops@example.com"})

	var gotAddr string
	var gotMsg string
	e.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotMsg = string(msg)
		return nil
	}

	ev := strategy.Event{
		Name:      "rb_cross",
		Class:     "ma_cross",
		Symbol:    "rb2410",
		Trading:   true,
		Pos:       1,
		Variables: map[string]any{"fast_ma": 3700.0},
		Time:      time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC),
	}
	if err := e.Send(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotAddr != "smtp.example.com:25" {
		t.Errorf("unexpected addr %s", gotAddr)
	}
	for _, want := range []string{"Subject: CTA rb_cross rb2410: position 1", "Strategy: rb_cross (ma_cross)", "fast_ma: 3700", "Time: 2024-03-01 15:00:00"} {
		if !strings.Contains(gotMsg, want) {
			t.Errorf("message missing %q:\n%s", want, gotMsg)
		}
	}
}

func TestEmail_SendError(t *testing.T) {
	e := New("smtp.example.com", 25, "", "", "cta@example.com", []string{"ops@example.com"})
	e.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	if err := e.Send(context.Background(), strategy.Event{Name: "s"}); err == nil {
		t.Error("expected error")
	}
}

func TestEmail_SendCancelled(t *testing.T) {
	e := New("smtp.example.com", 25, "", "", "cta@example.com", []string{"ops@example.com"})
	called := false
	e.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		called = true
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Send(ctx, strategy.Event{}); err == nil || called {
		t.Error("expected cancelled context to skip sending")
	}
}
