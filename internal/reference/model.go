package reference

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
)

var (
	// ErrInvalidReading is returned when an access point reading has no identifier
	// or a positive RSSI.
	ErrInvalidReading = errors.New("invalid access point reading")

	// ErrInvalidModel is returned when a reference model violates its invariants.
	ErrInvalidModel = errors.New("invalid reference model")
)

// Reading is a single RSSI observation of one access point.
type Reading struct {
	ID   string `json:"id"`   // Access point identifier, e.g. BSSID
	RSSI int    `json:"rssi"` // Received signal strength in dBm, always <= 0
}

// MeasurementSet maps access point identifiers to the RSSI observed for one
// localization request. It is built once and never mutated afterwards.
type MeasurementSet struct {
	rssi map[string]int
	ids  []string
}

// NewMeasurementSet builds a measurement set from readings. When the same access
// point is reported more than once, the later reading wins.
func NewMeasurementSet(readings ...Reading) (MeasurementSet, error) {
	rssi := make(map[string]int, len(readings))
	for _, r := range readings {
		if r.ID == "" {
			return MeasurementSet{}, fmt.Errorf("%w: empty identifier", ErrInvalidReading)
		}
		if r.RSSI > 0 {
			return MeasurementSet{}, fmt.Errorf("%w: %s has positive RSSI %d", ErrInvalidReading, r.ID, r.RSSI)
		}
		rssi[r.ID] = r.RSSI
	}

	ids := make([]string, 0, len(rssi))
	for id := range rssi {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return MeasurementSet{rssi: rssi, ids: ids}, nil
}

// Len returns the number of access points in the set.
func (m MeasurementSet) Len() int {
	return len(m.ids)
}

// RSSI returns the observed RSSI for the access point id.
func (m MeasurementSet) RSSI(id string) (int, bool) {
	v, ok := m.rssi[id]
	return v, ok
}

// IDs returns the access point identifiers in lexical order.
func (m MeasurementSet) IDs() []string {
	return slices.Clone(m.ids)
}

// Readings returns the set as readings ordered by identifier.
func (m MeasurementSet) Readings() []Reading {
	readings := make([]Reading, 0, len(m.ids))
	for _, id := range m.ids {
		readings = append(readings, Reading{ID: id, RSSI: m.rssi[id]})
	}
	return readings
}

// Model is a surveyed reference model of a space. It is implemented by *Heatmap
// (symbolic locations) and *AccessPointTable (geo-referenced access points).
type Model interface {
	// Len returns the number of entries in the model.
	Len() int

	kind() string
}

// Fingerprint is the expected RSSI of each access point observable from a labeled
// location. Access points absent from Expected are not expected to be observable.
type Fingerprint struct {
	Label    string         `json:"label"`
	Expected map[string]int `json:"expected"`
}

// Heatmap is an ordered collection of fingerprints sharing one access point universe.
type Heatmap struct {
	fingerprints []Fingerprint
	universe     []string
}

// NewHeatmap validates the fingerprints against the universe and builds a heatmap.
// When universe is nil it is derived as the union of all fingerprint access points.
func NewHeatmap(universe []string, fingerprints ...Fingerprint) (*Heatmap, error) {
	derive := universe == nil

	known := make(map[string]struct{}, len(universe))
	for _, id := range universe {
		if id == "" {
			return nil, fmt.Errorf("%w: empty access point identifier in universe", ErrInvalidModel)
		}
		known[id] = struct{}{}
	}

	labels := make(map[string]struct{}, len(fingerprints))
	fps := make([]Fingerprint, 0, len(fingerprints))
	for _, fp := range fingerprints {
		if fp.Label == "" {
			return nil, fmt.Errorf("%w: empty location label", ErrInvalidModel)
		}
		if _, ok := labels[fp.Label]; ok {
			return nil, fmt.Errorf("%w: duplicate location label '%s'", ErrInvalidModel, fp.Label)
		}
		labels[fp.Label] = struct{}{}

		expected := make(map[string]int, len(fp.Expected))
		for id, rssi := range fp.Expected {
			if _, ok := known[id]; !ok {
				if !derive {
					return nil, fmt.Errorf("%w: location '%s' lists access point '%s' outside the universe", ErrInvalidModel, fp.Label, id)
				}
				known[id] = struct{}{}
			}
			if rssi > 0 {
				return nil, fmt.Errorf("%w: location '%s' expects positive RSSI %d from '%s'", ErrInvalidModel, fp.Label, rssi, id)
			}
			expected[id] = rssi
		}
		fps = append(fps, Fingerprint{Label: fp.Label, Expected: expected})
	}

	ids := make([]string, 0, len(known))
	if derive {
		for id := range known {
			ids = append(ids, id)
		}
		sort.Strings(ids)
	} else {
		ids = append(ids, universe...)
	}

	return &Heatmap{fingerprints: fps, universe: ids}, nil
}

// Len returns the number of labeled locations.
func (h *Heatmap) Len() int {
	return len(h.fingerprints)
}

// Fingerprints returns the fingerprints in survey order.
func (h *Heatmap) Fingerprints() []Fingerprint {
	fps := make([]Fingerprint, len(h.fingerprints))
	for i, fp := range h.fingerprints {
		expected := make(map[string]int, len(fp.Expected))
		for id, rssi := range fp.Expected {
			expected[id] = rssi
		}
		fps[i] = Fingerprint{Label: fp.Label, Expected: expected}
	}
	return fps
}

// Labels returns the location labels in survey order.
func (h *Heatmap) Labels() []string {
	labels := make([]string, len(h.fingerprints))
	for i, fp := range h.fingerprints {
		labels[i] = fp.Label
	}
	return labels
}

// Universe returns every access point identifier the heatmap was surveyed against.
func (h *Heatmap) Universe() []string {
	return slices.Clone(h.universe)
}

func (h *Heatmap) kind() string { return "heatmap" }

// AccessPoint is a geo-referenced access point with its path-loss calibration.
type AccessPoint struct {
	ID        string  `json:"id"`        // Access point identifier, e.g. BSSID
	SSID      string  `json:"ssid"`      // Human readable network name, informational only
	Latitude  float64 `json:"latitude"`  // Degrees
	Longitude float64 `json:"longitude"` // Degrees
	A         float64 `json:"A"`         // Calibration RSSI at 1 m in dBm
	N         float64 `json:"n"`         // Path-loss exponent, 0 when unspecified
}

// AccessPointTable is an ordered collection of geo-referenced access points.
type AccessPointTable struct {
	aps   []AccessPoint
	index map[string]int
}

// NewAccessPointTable validates the access points and builds a table that keeps
// their order.
func NewAccessPointTable(aps ...AccessPoint) (*AccessPointTable, error) {
	t := &AccessPointTable{
		aps:   make([]AccessPoint, 0, len(aps)),
		index: make(map[string]int, len(aps)),
	}

	for _, ap := range aps {
		if err := ap.validate(); err != nil {
			return nil, err
		}
		if _, ok := t.index[ap.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate access point '%s'", ErrInvalidModel, ap.ID)
		}
		t.index[ap.ID] = len(t.aps)
		t.aps = append(t.aps, ap)
	}

	return t, nil
}

func (ap AccessPoint) validate() error {
	switch {
	case ap.ID == "":
		return fmt.Errorf("%w: empty access point identifier", ErrInvalidModel)
	case !isFinite(ap.Latitude) || ap.Latitude < -90 || ap.Latitude > 90:
		return fmt.Errorf("%w: access point '%s' latitude %v out of range", ErrInvalidModel, ap.ID, ap.Latitude)
	case !isFinite(ap.Longitude) || ap.Longitude < -180 || ap.Longitude > 180:
		return fmt.Errorf("%w: access point '%s' longitude %v out of range", ErrInvalidModel, ap.ID, ap.Longitude)
	case !isFinite(ap.A):
		return fmt.Errorf("%w: access point '%s' has no calibration RSSI", ErrInvalidModel, ap.ID)
	case !isFinite(ap.N) || ap.N < 0:
		return fmt.Errorf("%w: access point '%s' path-loss exponent %v is invalid", ErrInvalidModel, ap.ID, ap.N)
	}
	return nil
}

// Len returns the number of access points.
func (t *AccessPointTable) Len() int {
	return len(t.aps)
}

// AccessPoints returns the access points in table order.
func (t *AccessPointTable) AccessPoints() []AccessPoint {
	return slices.Clone(t.aps)
}

// Lookup returns the access point with the given identifier.
func (t *AccessPointTable) Lookup(id string) (AccessPoint, bool) {
	i, ok := t.index[id]
	if !ok {
		return AccessPoint{}, false
	}
	return t.aps[i], true
}

func (t *AccessPointTable) kind() string { return "access-points" }

// Kind returns a short name of the model shape, used in logs and storage.
func Kind(m Model) string {
	if m == nil {
		return "none"
	}
	return m.kind()
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
