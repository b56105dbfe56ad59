package localization

import (
	"context"

	"github.com/roman-kulish/indoor-localization/internal/geo"
	"github.com/roman-kulish/indoor-localization/internal/multilateration"
)

// Geometry is the intermediate state of one geometric solve.
type Geometry struct {
	DeviceID string
	Solver   string
	Origin   geo.LatLon
	Anchors  []multilateration.Anchor
	Solution *multilateration.Solution // nil when the solve failed
	Failure  string
}

// Observer receives the geometry of every geometric solve, e.g. to plot it.
// It is called synchronously after the estimate is decided and cannot change it.
type Observer interface {
	ObserveGeometry(ctx context.Context, g Geometry)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, g Geometry)

func (f ObserverFunc) ObserveGeometry(ctx context.Context, g Geometry) {
	f(ctx, g)
}
