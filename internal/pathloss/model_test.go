package pathloss

import (
	"math"
	"testing"
)

func TestDistance_AtCalibration(t *testing.T) {
	for _, a := range []float64{-30, -40, -45.5, -60} {
		for _, n := range []float64{1.6, 2, 2.7, 4} {
			if d := Distance(a, a, n); d != 1.0 {
				t.Errorf("A=%.1f n=%.1f: expected exactly 1, got %v", a, n, d)
			}
		}
	}
}

func TestModel_Distance(t *testing.T) {
	testCases := []struct {
		name  string
		model Model
		rssi  int
		want  float64
	}{
		{"default exponent 20dB", Model{A: -40}, -60, 10},
		{"default exponent 40dB", Model{A: -40}, -80, 100},
		{"explicit exponent", Model{A: -40, N: 4}, -80, 10},
		{"stronger than calibration", Model{A: -40}, -20, 0.1},
		{"negative exponent falls back", Model{A: -40, N: -1}, -60, 10},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.model.Distance(tc.rssi)
			if math.Abs(got-tc.want) > 1e-9*tc.want {
				t.Errorf("Expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestModel_Monotonic(t *testing.T) {
	m := Model{A: -40, N: 2.2}
	prev := 0.0
	for rssi := -30; rssi >= -100; rssi-- {
		d := m.Distance(rssi)
		if d <= prev {
			t.Fatalf("Distance must grow as RSSI weakens: rssi=%d d=%v prev=%v", rssi, d, prev)
		}
		prev = d
	}
}
