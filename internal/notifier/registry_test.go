package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/newthinker/cta/internal/strategy"
)

type mockNotifier struct {
	mu         sync.Mutex
	name       string
	sent       []strategy.Event
	shouldFail bool
}

func (m *mockNotifier) Name() string { return m.name }

func (m *mockNotifier) Init(cfg Config) error { return nil }

func (m *mockNotifier) Send(ctx context.Context, ev strategy.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, ev)
	if m.shouldFail {
		return errors.New("send failed")
	}
	return nil
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(&mockNotifier{name: "test"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(&mockNotifier{name: "test"}); err == nil {
		t.Error("expected error for duplicate registration")
	}

	if _, err := r.Get("test"); err != nil {
		t.Errorf("expected to find notifier: %v", err)
	}
	if _, err := r.Get("missing"); err == nil {
		t.Error("expected error for missing notifier")
	}
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockNotifier{name: "b"})
	r.Register(&mockNotifier{name: "a"})

	names := r.Names()
	if r.Len() != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("expected [a b], got %v", names)
	}
}

func TestRegistry_NotifyAll(t *testing.T) {
	r := NewRegistry()
	ok := &mockNotifier{name: "ok"}
	bad := &mockNotifier{name: "bad", shouldFail: true}
	r.Register(ok)
	r.Register(bad)

	errs := r.NotifyAll(context.Background(), strategy.Event{Name: "ma"})

	if len(errs) != 1 || errs["bad"] == nil {
		t.Errorf("expected only 'bad' to fail, got %v", errs)
	}
	if ok.count() != 1 || bad.count() != 1 {
		t.Error("expected both notifiers to be called")
	}
}
