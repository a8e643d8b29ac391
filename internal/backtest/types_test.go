package backtest

import (
	"errors"
	"testing"
	"time"

	"github.com/newthinker/cta/internal/core"
)

func TestRoundTrip_IsWin(t *testing.T) {
	tests := []struct {
		name string
		trip RoundTrip
		want bool
	}{
		{"profit", RoundTrip{PnL: 5}, true},
		{"loss", RoundTrip{PnL: -2}, false},
		{"flat", RoundTrip{PnL: 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.trip.IsWin(); got != tt.want {
				t.Errorf("IsWin() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParams_WithDefaults(t *testing.T) {
	p := Params{Class: "ma_cross"}.WithDefaults()

	if p.Name != "ma_cross" {
		t.Errorf("Name = %q, want class name", p.Name)
	}
	if p.Interval != core.IntervalDaily {
		t.Errorf("Interval = %q, want 1d", p.Interval)
	}
	if p.Size != 1 || p.Capital != 1_000_000 || p.Mode != ModeBar {
		t.Errorf("unexpected defaults: %+v", p)
	}
}

func TestParams_Validate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	valid := Params{Class: "ma_cross", Symbol: "rb", Start: start, End: start.AddDate(0, 1, 0)}.WithDefaults()

	tests := []struct {
		name   string
		modify func(*Params)
	}{
		{"missing class", func(p *Params) { p.Class = "" }},
		{"missing symbol", func(p *Params) { p.Symbol = "" }},
		{"end before start", func(p *Params) { p.End = p.Start }},
		{"negative rate", func(p *Params) { p.Rate = -0.1 }},
		{"unknown mode", func(p *Params) { p.Mode = "weekly" }},
	}

	if err := valid.Validate(); err != nil {
		t.Fatalf("valid params rejected: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.modify(&p)
			err := p.Validate()
			if !errors.Is(err, core.ErrConfigInvalid) {
				t.Errorf("expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}
