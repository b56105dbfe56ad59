package localization

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"slices"
	"strings"
	"testing"

	"github.com/roman-kulish/indoor-localization/internal/geo"
	"github.com/roman-kulish/indoor-localization/internal/multilateration"
	"github.com/roman-kulish/indoor-localization/internal/reference"
)

const measuredRSSI = -60

type recorder struct {
	geometries []Geometry
}

func (r *recorder) ObserveGeometry(_ context.Context, g Geometry) {
	r.geometries = append(r.geometries, g)
}

func mustEngine(t *testing.T, cfg Config, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, opts...)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return e
}

func mustSet(t *testing.T, readings ...reference.Reading) reference.MeasurementSet {
	t.Helper()
	set, err := reference.NewMeasurementSet(readings...)
	if err != nil {
		t.Fatalf("Failed to build measurement set: %v", err)
	}
	return set
}

// surveyAround places access points at planar positions and calibrates each one
// so that measuredRSSI converts back to its exact distance from target.
func surveyAround(t *testing.T, proj *geo.Projection, target geo.Point, positions ...geo.Point) (*reference.AccessPointTable, reference.MeasurementSet) {
	t.Helper()

	var aps []reference.AccessPoint
	var readings []reference.Reading
	for i, p := range positions {
		pos, err := proj.Inverse(p)
		if err != nil {
			t.Fatalf("Failed to place access point: %v", err)
		}
		id := string(rune('a' + i))
		d := math.Hypot(target.X-p.X, target.Y-p.Y)
		aps = append(aps, reference.AccessPoint{
			ID:        id,
			Latitude:  pos.Latitude,
			Longitude: pos.Longitude,
			A:         measuredRSSI + 20*math.Log10(d),
		})
		readings = append(readings, reference.Reading{ID: id, RSSI: measuredRSSI})
	}

	table, err := reference.NewAccessPointTable(aps...)
	if err != nil {
		t.Fatalf("Failed to build access point table: %v", err)
	}
	return table, mustSet(t, readings...)
}

func TestEngine_Heatmap(t *testing.T) {
	heatmap, err := reference.NewHeatmap(nil,
		reference.Fingerprint{Label: "A", Expected: map[string]int{"X": -53, "Y": -70}},
		reference.Fingerprint{Label: "B", Expected: map[string]int{"X": -57, "Y": -70}},
		reference.Fingerprint{Label: "C", Expected: map[string]int{"X": -49, "Y": -70}},
	)
	if err != nil {
		t.Fatalf("Failed to build heatmap: %v", err)
	}

	testCases := []struct {
		name     string
		readings []reference.Reading
		want     Kind
		labels   []string
	}{
		{"single", []reference.Reading{{ID: "X", RSSI: -53}}, KindSingle, []string{"A"}},
		{"tie", []reference.Reading{{ID: "X", RSSI: -51}}, KindTie, []string{"A", "C"}},
		{"unknown", []reference.Reading{{ID: "Q", RSSI: -40}}, KindUnknown, nil},
	}

	e := mustEngine(t, DefaultConfig())
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := e.Estimate(context.Background(), "dev-1", mustSet(t, tc.readings...), heatmap)
			if err != nil {
				t.Fatalf("Estimate failed: %v", err)
			}
			if rec.DeviceID != "dev-1" {
				t.Errorf("Expected device id to pass through, got %s", rec.DeviceID)
			}
			if rec.Location.Kind() != tc.want {
				t.Fatalf("Expected %s, got %s", tc.want, rec.Location)
			}
			if !slices.Equal(rec.Location.Labels(), tc.labels) {
				t.Errorf("Expected labels %v, got %v", tc.labels, rec.Location.Labels())
			}
		})
	}
}

func TestEngine_Coordinate(t *testing.T) {
	for _, kind := range []multilateration.Kind{multilateration.KindIterative, multilateration.KindClosedForm} {
		t.Run(kind.String(), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Solver = kind

			obs := &recorder{}
			e := mustEngine(t, cfg, WithObserver(obs))

			target := geo.Point{X: 12, Y: -7}
			table, set := surveyAround(t, e.projection, target,
				geo.Point{X: 0, Y: 0}, geo.Point{X: 30, Y: 0}, geo.Point{X: 0, Y: -25}, geo.Point{X: 28, Y: -22})

			rec, err := e.Estimate(context.Background(), "dev-2", set, table)
			if err != nil {
				t.Fatalf("Estimate failed: %v", err)
			}
			if rec.Location.Kind() != KindCoordinate {
				t.Fatalf("Expected coordinate, got %s", rec.Location)
			}

			want, _ := e.projection.Inverse(target)
			got := rec.Location.Position()
			if math.Abs(got.Latitude-want.Latitude) > 1e-8 || math.Abs(got.Longitude-want.Longitude) > 1e-8 {
				t.Errorf("Expected %s, got %s", want, got)
			}

			if len(obs.geometries) != 1 {
				t.Fatalf("Expected one observed geometry, got %d", len(obs.geometries))
			}
			g := obs.geometries[0]
			if len(g.Anchors) != 4 || g.Solution == nil || g.Solver != kind.String() {
				t.Errorf("Unexpected geometry %+v", g)
			}
		})
	}
}

func TestEngine_SingleMatchedAccessPoint(t *testing.T) {
	obs := &recorder{}
	solved := false
	solver := solverFunc(func([]multilateration.Anchor) (multilateration.Solution, error) {
		solved = true
		return multilateration.Solution{}, nil
	})
	e := mustEngine(t, DefaultConfig(), WithObserver(obs), WithSolver(solver))

	table, _ := surveyAround(t, e.projection, geo.Point{X: 5, Y: 5},
		geo.Point{X: 0, Y: 0}, geo.Point{X: 10, Y: 0}, geo.Point{X: 0, Y: 10})
	set := mustSet(t,
		reference.Reading{ID: "a", RSSI: -60},
		reference.Reading{ID: "unsurveyed", RSSI: -45})

	_, err := e.Estimate(context.Background(), "dev-3", set, table)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Expected ErrInvalidInput, got %v", err)
	}
	if solved {
		t.Error("Solver must not be invoked with a single matched access point")
	}
	if len(obs.geometries) != 0 {
		t.Error("Observer must not be invoked for rejected input")
	}
}

func TestEngine_GeometricFailure(t *testing.T) {
	t.Run("collinear", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Solver = multilateration.KindClosedForm
		obs := &recorder{}
		e := mustEngine(t, cfg, WithObserver(obs))

		table, set := surveyAround(t, e.projection, geo.Point{X: 5, Y: 5},
			geo.Point{X: 0, Y: 0}, geo.Point{X: 10, Y: 0}, geo.Point{X: 20, Y: 0})

		rec, err := e.Estimate(context.Background(), "dev-4", set, table)
		if err != nil {
			t.Fatalf("Degenerate geometry must not be an error: %v", err)
		}
		if rec.Location.Kind() != KindFailure || rec.Location.Reason() != ReasonDegenerateGeometry {
			t.Errorf("Expected failure %q, got %s", ReasonDegenerateGeometry, rec.Location)
		}
		if len(obs.geometries) != 1 || obs.geometries[0].Failure != ReasonDegenerateGeometry || obs.geometries[0].Solution != nil {
			t.Errorf("Expected observed failure geometry, got %+v", obs.geometries)
		}
	})

	t.Run("outside projection range", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Solver = multilateration.KindClosedForm
		cfg.MaxRadius = 500
		e := mustEngine(t, cfg)

		table, set := surveyAround(t, e.projection, geo.Point{X: 420, Y: 300},
			geo.Point{X: -300, Y: 0}, geo.Point{X: 300, Y: 0}, geo.Point{X: 0, Y: 300})

		rec, err := e.Estimate(context.Background(), "dev-5", set, table)
		if err != nil {
			t.Fatalf("Estimate failed: %v", err)
		}
		if rec.Location.Kind() != KindFailure || rec.Location.Reason() != ReasonOutOfRange {
			t.Errorf("Expected failure %q, got %s", ReasonOutOfRange, rec.Location)
		}
	})
}

func TestNewEngine_Origin(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		var logs bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logs, nil))

		e := mustEngine(t, DefaultConfig(), WithLogger(logger))
		if got := e.projection.Origin(); got != defaultOrigin {
			t.Errorf("Expected default origin %s, got %s", defaultOrigin, got)
		}
		if !strings.Contains(logs.String(), "level=WARN") || !strings.Contains(logs.String(), "no origin configured") {
			t.Errorf("Expected a warning about the default origin, got %q", logs.String())
		}
	})

	t.Run("configured", func(t *testing.T) {
		var logs bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logs, nil))

		cfg := DefaultConfig()
		cfg.Origin = geo.LatLon{Latitude: 51.5007, Longitude: -0.1246}
		e := mustEngine(t, cfg, WithLogger(logger))
		if got := e.projection.Origin(); got != cfg.Origin {
			t.Errorf("Expected origin %s, got %s", cfg.Origin, got)
		}
		if strings.Contains(logs.String(), "no origin configured") {
			t.Errorf("Unexpected default origin warning: %q", logs.String())
		}
	})
}

func TestEngine_InvalidInput(t *testing.T) {
	e := mustEngine(t, DefaultConfig())
	set := mustSet(t, reference.Reading{ID: "X", RSSI: -50})
	emptyHeatmap, _ := reference.NewHeatmap(nil)
	emptyTable, _ := reference.NewAccessPointTable()

	testCases := []struct {
		name  string
		set   reference.MeasurementSet
		model reference.Model
	}{
		{"empty measurements", reference.MeasurementSet{}, emptyHeatmap},
		{"nil model", set, nil},
		{"empty heatmap", set, emptyHeatmap},
		{"empty table", set, emptyTable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.Estimate(context.Background(), "dev", tc.set, tc.model); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestEngine_Cancelled(t *testing.T) {
	e := mustEngine(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Estimate(ctx, "dev", mustSet(t, reference.Reading{ID: "X", RSSI: -50}), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero epsilon", func(c *Config) { c.Epsilon = 0 }},
		{"tolerance of one", func(c *Config) { c.TieTolerance = 1 }},
		{"zero radius", func(c *Config) { c.MaxRadius = 0 }},
		{"unknown solver", func(c *Config) { c.Solver = "simplex" }},
		{"no iterations", func(c *Config) { c.MaxIterations = 0 }},
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("Default config must be valid: %v", err)
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if _, err := NewEngine(cfg); err == nil {
				t.Error("Expected error for invalid config")
			}
		})
	}
}

type solverFunc func([]multilateration.Anchor) (multilateration.Solution, error)

func (f solverFunc) Name() string { return "func" }

func (f solverFunc) Solve(anchors []multilateration.Anchor) (multilateration.Solution, error) {
	return f(anchors)
}
