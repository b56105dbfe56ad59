package fingerprint

import (
	"gonum.org/v1/gonum/floats"

	"github.com/roman-kulish/indoor-localization/internal/reference"
)

// DistanceEntry is the signal space distance between the measurements and one
// labeled location.
type DistanceEntry struct {
	Label string
	Value float64
}

// Weights are the inverse distance weights of the candidate locations.
type Weights struct {
	Unnormalized map[string]float64
	Normalized   map[string]float64 // Sums to 1 whenever there is at least one candidate
	Sum          float64            // Sum of the unnormalized weights
}

// Distances computes the Euclidean distance in RSSI space between the
// measurements and each heatmap location, over the access points present in
// both. Locations sharing no access point with the measurements are left out.
// Entries keep the heatmap order.
func Distances(set reference.MeasurementSet, heatmap *reference.Heatmap) []DistanceEntry {
	var distances []DistanceEntry
	var measured, expected []float64
	for _, fp := range heatmap.Fingerprints() {
		measured, expected = measured[:0], expected[:0]
		for id, rssi := range fp.Expected {
			m, ok := set.RSSI(id)
			if !ok {
				continue
			}
			measured = append(measured, float64(m))
			expected = append(expected, float64(rssi))
		}

		if len(measured) == 0 {
			continue
		}
		distances = append(distances, DistanceEntry{Label: fp.Label, Value: floats.Distance(measured, expected, 2)})
	}
	return distances
}

// Weigh computes w = 1/(d+epsilon) for every entry and normalizes the weights
// so that they sum to 1.
func Weigh(distances []DistanceEntry, epsilon float64) Weights {
	w := Weights{
		Unnormalized: make(map[string]float64, len(distances)),
		Normalized:   make(map[string]float64, len(distances)),
	}

	for _, d := range distances {
		v := 1 / (d.Value + epsilon)
		w.Unnormalized[d.Label] = v
		w.Sum += v
	}

	for label, v := range w.Unnormalized {
		w.Normalized[label] = v / w.Sum
	}
	return w
}
