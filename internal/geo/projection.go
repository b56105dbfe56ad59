// Package geo projects geographic coordinates onto a local tangent plane.
//
// The projection is equirectangular around a configured origin. It is only an
// approximation at building to campus scale: the error grows with the distance
// from the origin, so every projection carries a maximum radius beyond which
// points are rejected with ErrOutOfRange rather than silently projected.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/s2"
)

const (
	// EarthRadius is the mean Earth radius in meters.
	EarthRadius = 6_371_000.0

	// DefaultMaxRadius bounds the area around the origin where the projection is used.
	DefaultMaxRadius = 10_000.0
)

// ErrOutOfRange is returned for points too far from the origin for the planar
// approximation to hold.
var ErrOutOfRange = errors.New("point outside projection range")

// LatLon is a geographic position in degrees.
type LatLon struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// String implements fmt.Stringer.
func (p LatLon) String() string {
	return fmt.Sprintf("(%.8f, %.8f)", p.Latitude, p.Longitude)
}

// Point is a position in meters on the local plane, x east and y north of the origin.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Norm returns the distance of the point from the origin in meters.
func (p Point) Norm() float64 {
	return math.Hypot(p.X, p.Y)
}

// Option configures a Projection.
type Option func(*Projection)

// WithMaxRadius sets the maximum distance in meters from the origin that the
// projection accepts.
func WithMaxRadius(meters float64) Option {
	return func(p *Projection) {
		p.maxRadius = meters
	}
}

// Projection converts between geographic coordinates and the local plane
// around a fixed origin.
type Projection struct {
	origin    LatLon
	originRad s2.LatLng
	maxRadius float64
}

// NewProjection creates a projection centered on origin.
func NewProjection(origin LatLon, opts ...Option) (*Projection, error) {
	if err := validateLatLon(origin); err != nil {
		return nil, fmt.Errorf("invalid origin: %w", err)
	}

	p := &Projection{
		origin:    origin,
		originRad: s2.LatLngFromDegrees(origin.Latitude, origin.Longitude),
		maxRadius: DefaultMaxRadius,
	}
	for _, opt := range opts {
		opt(p)
	}

	if !(p.maxRadius > 0) || math.IsInf(p.maxRadius, 0) {
		return nil, fmt.Errorf("invalid max radius: %v", p.maxRadius)
	}
	return p, nil
}

// Origin returns the projection origin.
func (p *Projection) Origin() LatLon {
	return p.origin
}

// MaxRadius returns the largest accepted distance from the origin in meters.
func (p *Projection) MaxRadius() float64 {
	return p.maxRadius
}

// Forward projects a geographic position onto the local plane:
//
//	x = R * Δlon * cos((lat + lat0) / 2)
//	y = R * Δlat
func (p *Projection) Forward(pos LatLon) (Point, error) {
	if err := validateLatLon(pos); err != nil {
		return Point{}, err
	}

	if d := p.GreatCircleDistance(pos); d > p.maxRadius {
		return Point{}, fmt.Errorf("%w: %s is %.0fm from origin, limit %.0fm", ErrOutOfRange, pos, d, p.maxRadius)
	}

	lat := radians(pos.Latitude)
	lat0 := p.originRad.Lat.Radians()
	dLat := lat - lat0
	dLon := radians(pos.Longitude) - p.originRad.Lng.Radians()

	return Point{
		X: EarthRadius * dLon * math.Cos((lat+lat0)/2),
		Y: EarthRadius * dLat,
	}, nil
}

// Inverse is the exact algebraic inverse of Forward.
func (p *Projection) Inverse(pt Point) (LatLon, error) {
	if math.IsNaN(pt.X) || math.IsNaN(pt.Y) || math.IsInf(pt.X, 0) || math.IsInf(pt.Y, 0) {
		return LatLon{}, fmt.Errorf("%w: non-finite point (%v, %v)", ErrOutOfRange, pt.X, pt.Y)
	}
	if n := pt.Norm(); n > p.maxRadius {
		return LatLon{}, fmt.Errorf("%w: point is %.0fm from origin, limit %.0fm", ErrOutOfRange, n, p.maxRadius)
	}

	lat0 := p.originRad.Lat.Radians()
	lat := lat0 + pt.Y/EarthRadius
	lon := p.originRad.Lng.Radians() + pt.X/(EarthRadius*math.Cos((lat+lat0)/2))

	return LatLon{Latitude: degrees(lat), Longitude: degrees(lon)}, nil
}

// GreatCircleDistance returns the distance in meters between the origin and pos.
func (p *Projection) GreatCircleDistance(pos LatLon) float64 {
	ll := s2.LatLngFromDegrees(pos.Latitude, pos.Longitude)
	return p.originRad.Distance(ll).Radians() * EarthRadius
}

func validateLatLon(pos LatLon) error {
	if math.IsNaN(pos.Latitude) || pos.Latitude < -90 || pos.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range", pos.Latitude)
	}
	if math.IsNaN(pos.Longitude) || pos.Longitude < -180 || pos.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range", pos.Longitude)
	}
	return nil
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
