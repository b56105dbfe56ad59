package geo

import (
	"errors"
	"math"
	"testing"
)

var testOrigin = LatLon{Latitude: 39.36582263479573, Longitude: 22.92377558170571}

func TestProjection_RoundTrip(t *testing.T) {
	proj, err := NewProjection(testOrigin)
	if err != nil {
		t.Fatalf("Failed to create projection: %v", err)
	}

	points := []LatLon{
		testOrigin,
		{Latitude: 39.3660, Longitude: 22.9240},
		{Latitude: 39.3650, Longitude: 22.9230},
		{Latitude: 39.3700, Longitude: 22.9300},
		{Latitude: 39.3600, Longitude: 22.9180},
	}

	for _, p := range points {
		pt, err := proj.Forward(p)
		if err != nil {
			t.Fatalf("Forward %s: %v", p, err)
		}
		back, err := proj.Inverse(pt)
		if err != nil {
			t.Fatalf("Inverse %s: %v", p, err)
		}
		if math.Abs(back.Latitude-p.Latitude) > 1e-12 || math.Abs(back.Longitude-p.Longitude) > 1e-12 {
			t.Errorf("Round trip of %s returned %s", p, back)
		}
	}
}

func TestProjection_Forward(t *testing.T) {
	proj, err := NewProjection(testOrigin)
	if err != nil {
		t.Fatalf("Failed to create projection: %v", err)
	}

	origin, err := proj.Forward(testOrigin)
	if err != nil {
		t.Fatalf("Forward origin: %v", err)
	}
	if origin.X != 0 || origin.Y != 0 {
		t.Errorf("Origin must project to (0, 0), got %+v", origin)
	}

	// 0.001 degree of latitude is ~111.19m north
	north, err := proj.Forward(LatLon{Latitude: testOrigin.Latitude + 0.001, Longitude: testOrigin.Longitude})
	if err != nil {
		t.Fatalf("Forward north: %v", err)
	}
	if math.Abs(north.X) > 1e-9 || math.Abs(north.Y-111.19) > 0.01 {
		t.Errorf("Expected ~(0, 111.19), got %+v", north)
	}

	// planar distance must agree with the great circle distance at this scale
	p := LatLon{Latitude: 39.3670, Longitude: 22.9260}
	pt, err := proj.Forward(p)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if gc := proj.GreatCircleDistance(p); math.Abs(pt.Norm()-gc) > 0.05 {
		t.Errorf("Planar %.3fm and great circle %.3fm disagree", pt.Norm(), gc)
	}
}

func TestProjection_OutOfRange(t *testing.T) {
	proj, err := NewProjection(testOrigin, WithMaxRadius(500))
	if err != nil {
		t.Fatalf("Failed to create projection: %v", err)
	}

	if _, err = proj.Forward(LatLon{Latitude: 39.40, Longitude: 22.92}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}
	if _, err = proj.Inverse(Point{X: 400, Y: 400}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}
	if _, err = proj.Inverse(Point{X: math.NaN(), Y: 0}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange for NaN, got %v", err)
	}
}

func TestNewProjection_Invalid(t *testing.T) {
	testCases := []struct {
		name   string
		origin LatLon
		opts   []Option
	}{
		{"latitude", LatLon{Latitude: 95}, nil},
		{"longitude", LatLon{Longitude: -190}, nil},
		{"radius", testOrigin, []Option{WithMaxRadius(0)}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewProjection(tc.origin, tc.opts...); err == nil {
				t.Error("Expected error for invalid projection")
			}
		})
	}
}
