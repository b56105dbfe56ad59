package localization

import (
	"encoding/json"
	"slices"
	"testing"

	"github.com/roman-kulish/indoor-localization/internal/geo"
)

func TestRecord_MarshalJSON(t *testing.T) {
	testCases := []struct {
		name     string
		estimate Estimate
		want     string
	}{
		{"single", Single("Room A"), `{"deviceIdentifier":"dev","estimatedLocation":"Room A"}`},
		{"tie", Tie("A", "C"), `{"deviceIdentifier":"dev","estimatedLocation":["A","C"]}`},
		{"unknown", Unknown(), `{"deviceIdentifier":"dev","estimatedLocation":"Unknown"}`},
		{"zero value", Estimate{}, `{"deviceIdentifier":"dev","estimatedLocation":"Unknown"}`},
		{
			"coordinate",
			Coordinate(geo.LatLon{Latitude: 39.5, Longitude: 22.25}),
			`{"deviceIdentifier":"dev","estimatedLocation":{"latitude":39.5,"longitude":22.25}}`,
		},
		{
			"failure",
			Failure(ReasonDegenerateGeometry),
			`{"deviceIdentifier":"dev","estimatedLocation":{"failure":"degenerate geometry"}}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(Record{DeviceID: "dev", Location: tc.estimate})
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			if string(data) != tc.want {
				t.Errorf("Expected %s, got %s", tc.want, data)
			}

			var rec Record
			if err = json.Unmarshal(data, &rec); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if rec.Location.Kind() != tc.estimate.Kind() {
				t.Errorf("Expected %s after decoding, got %s", tc.estimate.Kind(), rec.Location.Kind())
			}
			if !slices.Equal(rec.Location.Labels(), tc.estimate.Labels()) ||
				rec.Location.Position() != tc.estimate.Position() ||
				rec.Location.Reason() != tc.estimate.Reason() {
				t.Errorf("Expected %s after decoding, got %s", tc.estimate, rec.Location)
			}
		})
	}
}

func TestEstimate_UnmarshalJSON_Invalid(t *testing.T) {
	for _, input := range []string{`42`, `{"room":"A"}`, `{"latitude":1}`, `null`, `[1,2]`} {
		t.Run(input, func(t *testing.T) {
			var e Estimate
			if err := json.Unmarshal([]byte(input), &e); err == nil {
				t.Errorf("Expected error decoding %s, got %s", input, e)
			}
		})
	}
}

func TestTie_CopiesLabels(t *testing.T) {
	labels := []string{"A", "B"}
	e := Tie(labels...)
	labels[0] = "mutated"

	if e.Labels()[0] != "A" {
		t.Error("Tie must not alias the caller's slice")
	}
}
