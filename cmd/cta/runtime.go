package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/newthinker/cta/internal/alert"
	"github.com/newthinker/cta/internal/config"
	"github.com/newthinker/cta/internal/metrics"
	"github.com/newthinker/cta/internal/notifier"
	"github.com/newthinker/cta/internal/notifier/email"
	"github.com/newthinker/cta/internal/notifier/telegram"
	"github.com/newthinker/cta/internal/notifier/webhook"
	"github.com/newthinker/cta/internal/strategy"
	"github.com/newthinker/cta/internal/strategy/ma_cross"
	"go.uber.org/zap"
)

const defaultNotifyBuffer = 64

// services bundles the optional metrics endpoint and notifier fan-out.
type services struct {
	log       *zap.Logger
	metrics   *metrics.Registry
	server    *http.Server
	notify    *notifier.Observer
	observers []strategy.Observer
}

// newStrategyRegistry returns a registry holding every built-in class.
func newStrategyRegistry(log *zap.Logger) *strategy.Registry {
	r := strategy.NewRegistry(log)
	ma_cross.Register(r)
	return r
}

func startServices(ctx context.Context, cfg *config.Config, log *zap.Logger) (*services, error) {
	s := &services{log: log}

	if cfg.Metrics.Enabled {
		s.metrics = metrics.NewRegistry()
		s.observers = append(s.observers, s.metrics.Observer())
		s.server = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           s.metrics.Handler(cfg.Metrics.Path),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server error", zap.Error(err))
			}
		}()
		log.Info("serving metrics", zap.String("addr", cfg.Metrics.Addr), zap.String("path", cfg.Metrics.Path))
	}

	reg := notifier.NewRegistry()
	buffer := defaultNotifyBuffer
	for name, nc := range cfg.Notifiers {
		if !nc.Enabled {
			continue
		}
		n, err := newNotifier(nc.Type)
		if err != nil {
			return nil, err
		}
		params := map[string]any{"name": name}
		for k, v := range nc.Params {
			params[k] = v
		}
		if err := n.Init(notifier.Config{Type: nc.Type, Params: params}); err != nil {
			return nil, err
		}
		if err := reg.Register(n); err != nil {
			return nil, err
		}
		if nc.Buffer > buffer {
			buffer = nc.Buffer
		}
	}
	if reg.Len() > 0 {
		s.notify = notifier.NewObserver(reg, log, buffer)
		s.notify.Start(ctx)

		var obs strategy.Observer = s.notify
		if len(cfg.Alerts.Rules) > 0 {
			eval := alert.NewEvaluator(cfg.Alerts.Rules, s.notify, log)
			eval.SetCooldown(cfg.Alerts.Cooldown)
			obs = eval
		}
		s.observers = append(s.observers, obs)
		log.Info("notifiers enabled", zap.Strings("names", reg.Names()))
	}

	return s, nil
}

func newNotifier(typ string) (notifier.Notifier, error) {
	switch typ {
	case "", "webhook":
		return &webhook.Webhook{}, nil
	case "telegram":
		return &telegram.Telegram{}, nil
	case "email":
		return &email.Email{}, nil
	default:
		return nil, fmt.Errorf("unknown notifier type %q", typ)
	}
}

// Close drains pending notifications and stops the metrics server.
func (s *services) Close() {
	if s.notify != nil {
		s.notify.Close()
		if n := s.notify.Dropped(); n > 0 {
			s.log.Warn("notifications dropped", zap.Int("count", n))
		}
	}
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			s.log.Warn("metrics server shutdown", zap.Error(err))
		}
	}
}
