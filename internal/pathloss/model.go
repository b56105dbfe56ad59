// Package pathloss converts received signal strength into distance using the
// log-distance path-loss model:
//
//	d = 10 ^ ((A - RSSI) / (10 * n))
//
// where A is the RSSI measured at 1 m from the transmitter and n is the
// environment dependent path-loss exponent.
package pathloss

import "math"

// DefaultExponent is the free-space path-loss exponent used when a model does
// not specify one.
const DefaultExponent = 2.0

// Model holds the per access point calibration constants.
type Model struct {
	A float64 // RSSI at 1 m in dBm
	N float64 // Path-loss exponent, DefaultExponent when <= 0
}

// Exponent returns the effective path-loss exponent.
func (m Model) Exponent() float64 {
	if m.N <= 0 || math.IsNaN(m.N) {
		return DefaultExponent
	}
	return m.N
}

// Distance converts an RSSI sample to meters.
func (m Model) Distance(rssi int) float64 {
	return Distance(float64(rssi), m.A, m.Exponent())
}

// Distance converts rssi to meters for calibration a and exponent n.
// rssi == a yields exactly 1 regardless of n.
func Distance(rssi, a, n float64) float64 {
	if n <= 0 {
		n = DefaultExponent
	}
	return math.Pow(10, (a-rssi)/(10*n))
}
