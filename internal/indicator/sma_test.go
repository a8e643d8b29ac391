package indicator

import (
	"math"
	"testing"
)

func TestSMA_Calculate(t *testing.T) {
	closes := []float64{10, 11, 12, 13, 14, 15}

	sma := SMA(closes, 3)

	// (10+11+12)/3, (11+12+13)/3, ...
	expected := []float64{11, 12, 13, 14}

	if len(sma) != len(expected) {
		t.Fatalf("expected %d values, got %d", len(expected), len(sma))
	}

	for i, v := range expected {
		if !almostEqual(sma[i], v, 1e-9) {
			t.Errorf("sma[%d] = %f, want %f", i, sma[i], v)
		}
	}
}

func TestSMA_PeriodOne(t *testing.T) {
	closes := []float64{3, 1, 2}
	sma := SMA(closes, 1)

	for i := range closes {
		if sma[i] != closes[i] {
			t.Errorf("sma[%d] = %f, want %f", i, sma[i], closes[i])
		}
	}
}

func TestSMA_NotEnoughData(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		period int
	}{
		{"short input", []float64{10, 11}, 5},
		{"zero period", []float64{10, 11}, 0},
		{"empty", nil, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SMA(tt.closes, tt.period); len(got) != 0 {
				t.Errorf("expected no values, got %d", len(got))
			}
		})
	}
}

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) < tolerance
}
