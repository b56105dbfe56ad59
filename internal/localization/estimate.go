package localization

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/roman-kulish/indoor-localization/internal/geo"
)

const (
	KindSingle     Kind = "single"
	KindTie        Kind = "tie"
	KindUnknown    Kind = "unknown"
	KindCoordinate Kind = "coordinate"
	KindFailure    Kind = "failure"

	// unknownToken is how an Unknown estimate is serialized.
	unknownToken = "Unknown"
)

// Kind is the terminal outcome of one localization request.
type Kind string

func (k Kind) String() string {
	return string(k)
}

// Estimate is the result of one localization request. Exactly one of its
// variants is set, as reported by Kind. The zero value is an Unknown estimate.
type Estimate struct {
	kind     Kind
	labels   []string
	position geo.LatLon
	reason   string
}

// Single is a confident symbolic location.
func Single(label string) Estimate {
	return Estimate{kind: KindSingle, labels: []string{label}}
}

// Tie is a set of symbolic locations that matched equally well.
func Tie(labels ...string) Estimate {
	return Estimate{kind: KindTie, labels: slices.Clone(labels)}
}

// Unknown means no candidate location carried any signal.
func Unknown() Estimate {
	return Estimate{kind: KindUnknown}
}

// Coordinate is a geographic position estimate.
func Coordinate(pos geo.LatLon) Estimate {
	return Estimate{kind: KindCoordinate, position: pos}
}

// Failure reasons reported by the engine.
const (
	ReasonDegenerateGeometry = "degenerate geometry"
	ReasonOutOfRange         = "position out of range"
)

// Failure is a geometric solve that could not produce a position.
func Failure(reason string) Estimate {
	return Estimate{kind: KindFailure, reason: reason}
}

func (e Estimate) Kind() Kind {
	if e.kind == "" {
		return KindUnknown
	}
	return e.kind
}

// Label returns the location of a Single estimate.
func (e Estimate) Label() string {
	if e.kind != KindSingle {
		return ""
	}
	return e.labels[0]
}

// Labels returns the single or tied locations.
func (e Estimate) Labels() []string {
	return slices.Clone(e.labels)
}

// Position returns the position of a Coordinate estimate.
func (e Estimate) Position() geo.LatLon {
	return e.position
}

// Reason returns why a Failure estimate could not produce a position.
func (e Estimate) Reason() string {
	return e.reason
}

func (e Estimate) String() string {
	switch e.Kind() {
	case KindSingle:
		return e.labels[0]
	case KindTie:
		return fmt.Sprintf("tie %v", e.labels)
	case KindCoordinate:
		return e.position.String()
	case KindFailure:
		return "failure: " + e.reason
	default:
		return unknownToken
	}
}

type failureJSON struct {
	Failure string `json:"failure"`
}

// MarshalJSON encodes the estimate as a label string, an array of tied labels,
// the "Unknown" token, a {"latitude","longitude"} object, or a {"failure"}
// object.
func (e Estimate) MarshalJSON() ([]byte, error) {
	switch e.Kind() {
	case KindSingle:
		return json.Marshal(e.labels[0])
	case KindTie:
		return json.Marshal(e.labels)
	case KindCoordinate:
		return json.Marshal(e.position)
	case KindFailure:
		return json.Marshal(failureJSON{Failure: e.reason})
	default:
		return json.Marshal(unknownToken)
	}
}

// UnmarshalJSON accepts every form produced by MarshalJSON. The "Unknown"
// string always decodes to an Unknown estimate.
func (e *Estimate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("localization.Estimate: empty value")
	}

	switch data[0] {
	case '"':
		var label string
		if err := json.Unmarshal(data, &label); err != nil {
			return fmt.Errorf("localization.Estimate: %w", err)
		}
		if label == unknownToken {
			*e = Unknown()
		} else {
			*e = Single(label)
		}
	case '[':
		var labels []string
		if err := json.Unmarshal(data, &labels); err != nil {
			return fmt.Errorf("localization.Estimate: %w", err)
		}
		*e = Estimate{kind: KindTie, labels: labels}
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return fmt.Errorf("localization.Estimate: %w", err)
		}
		if _, ok := fields["failure"]; ok {
			var f failureJSON
			if err := json.Unmarshal(data, &f); err != nil {
				return fmt.Errorf("localization.Estimate: %w", err)
			}
			*e = Failure(f.Failure)
			return nil
		}

		_, hasLat := fields["latitude"]
		_, hasLon := fields["longitude"]
		if !hasLat || !hasLon {
			return errors.New("localization.Estimate: object is neither a coordinate nor a failure")
		}
		var pos geo.LatLon
		if err := json.Unmarshal(data, &pos); err != nil {
			return fmt.Errorf("localization.Estimate: %w", err)
		}
		*e = Coordinate(pos)
	default:
		return fmt.Errorf("localization.Estimate: unexpected value: %s", data)
	}
	return nil
}

// Record is the one result emitted per localization request.
type Record struct {
	DeviceID string   `json:"deviceIdentifier"`
	Location Estimate `json:"estimatedLocation"`
}
