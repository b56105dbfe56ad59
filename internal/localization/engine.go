// Package localization turns one measurement set and one reference model into
// a single location estimate.
//
// A symbolic heatmap is matched with the fingerprint estimator. A table of
// geo-referenced access points is solved geometrically: every matched access
// point RSSI becomes a range through the path-loss model, positions are projected
// on a local plane, and the solver result is projected back to latitude and
// longitude.
package localization

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roman-kulish/indoor-localization/internal/fingerprint"
	"github.com/roman-kulish/indoor-localization/internal/geo"
	"github.com/roman-kulish/indoor-localization/internal/multilateration"
	"github.com/roman-kulish/indoor-localization/internal/pathloss"
	"github.com/roman-kulish/indoor-localization/internal/reference"
)

// defaultOrigin is the reference point used when no origin is configured.
var defaultOrigin = geo.LatLon{Latitude: 39.36582263479573, Longitude: 22.92377558170571}

// Config holds the deployment constants of an engine. A zero Origin falls back
// to a built-in reference point with a warning; deployments that solve
// geometrically should set it.
type Config struct {
	Epsilon       float64              `yaml:"epsilon"`
	TieTolerance  float64              `yaml:"tieTolerance"`
	Origin        geo.LatLon           `yaml:"origin"`
	MaxRadius     float64              `yaml:"maxRadius"`
	Solver        multilateration.Kind `yaml:"solver"`
	MaxIterations int                  `yaml:"maxIterations"`
}

func DefaultConfig() Config {
	return Config{
		Epsilon:       fingerprint.DefaultEpsilon,
		TieTolerance:  fingerprint.DefaultTieTolerance,
		MaxRadius:     geo.DefaultMaxRadius,
		Solver:        multilateration.KindIterative,
		MaxIterations: multilateration.DefaultMaxIterations,
	}
}

func (c Config) Validate() error {
	if !(c.Epsilon > 0) {
		return fmt.Errorf("localization.Config: epsilon must be positive: %v", c.Epsilon)
	}
	if !(c.TieTolerance >= 0) || c.TieTolerance >= 1 {
		return fmt.Errorf("localization.Config: tie tolerance must be in [0, 1): %v", c.TieTolerance)
	}
	if !(c.MaxRadius > 0) {
		return fmt.Errorf("localization.Config: max radius must be positive: %v", c.MaxRadius)
	}
	if err := c.Solver.Validate(); err != nil {
		return fmt.Errorf("localization.Config: %w", err)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("localization.Config: max iterations must be positive: %d", c.MaxIterations)
	}
	return nil
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithSolver overrides the solver selected by Config.Solver.
func WithSolver(s multilateration.Solver) Option {
	return func(e *Engine) {
		e.solver = s
	}
}

// WithObserver registers an observer of geometric solves.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// Engine is stateless between calls and safe for concurrent use.
type Engine struct {
	estimator  *fingerprint.Estimator
	projection *geo.Projection
	solver     multilateration.Solver
	observer   Observer
	logger     *slog.Logger
}

func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := Engine{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&e)
	}

	var err error
	e.estimator, err = fingerprint.NewEstimator(
		fingerprint.WithEpsilon(cfg.Epsilon),
		fingerprint.WithTieTolerance(cfg.TieTolerance),
		fingerprint.WithLogger(e.logger))
	if err != nil {
		return nil, fmt.Errorf("creating fingerprint estimator: %w", err)
	}

	origin := cfg.Origin
	if origin == (geo.LatLon{}) {
		origin = defaultOrigin
		e.logger.Warn("no origin configured, using default",
			slog.Float64("latitude", origin.Latitude),
			slog.Float64("longitude", origin.Longitude))
	}

	if e.projection, err = geo.NewProjection(origin, geo.WithMaxRadius(cfg.MaxRadius)); err != nil {
		return nil, fmt.Errorf("creating projection: %w", err)
	}

	if e.solver == nil {
		e.solver, err = multilateration.New(cfg.Solver, multilateration.WithMaxIterations(cfg.MaxIterations))
		if err != nil {
			return nil, fmt.Errorf("creating solver: %w", err)
		}
	}

	return &e, nil
}

// Estimate produces exactly one record for the request or an error wrapping
// ErrInvalidInput. Geometric failures are records, not errors.
func (e *Engine) Estimate(ctx context.Context, deviceID string, set reference.MeasurementSet, model reference.Model) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if set.Len() == 0 {
		return Record{}, fmt.Errorf("%w: empty measurement set", ErrInvalidInput)
	}

	logger := e.logger.With(slog.String("deviceID", deviceID), slog.String("model", reference.Kind(model)))

	var (
		est Estimate
		err error
	)
	switch m := model.(type) {
	case *reference.Heatmap:
		est, err = e.match(set, m)
	case *reference.AccessPointTable:
		est, err = e.locate(ctx, deviceID, set, m)
	default:
		err = fmt.Errorf("%w: unsupported reference model %T", ErrInvalidInput, model)
	}
	if err != nil {
		logger.Debug("request rejected", slog.Any("error", err))
		return Record{}, err
	}

	logger.Debug("location estimated",
		slog.Int("measurements", set.Len()),
		slog.String("outcome", est.Kind().String()),
		slog.String("estimate", est.String()))

	return Record{DeviceID: deviceID, Location: est}, nil
}

func (e *Engine) match(set reference.MeasurementSet, heatmap *reference.Heatmap) (Estimate, error) {
	if heatmap == nil {
		return Estimate{}, fmt.Errorf("%w: nil heatmap", ErrInvalidInput)
	}

	d, err := e.estimator.Estimate(set, heatmap)
	if err != nil {
		return Estimate{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	switch d.Outcome {
	case fingerprint.OutcomeSingle:
		return Single(d.Labels[0]), nil
	case fingerprint.OutcomeTie:
		return Tie(d.Labels...), nil
	default:
		return Unknown(), nil
	}
}

func (e *Engine) locate(ctx context.Context, deviceID string, set reference.MeasurementSet, table *reference.AccessPointTable) (Estimate, error) {
	if table == nil || table.Len() == 0 {
		return Estimate{}, fmt.Errorf("%w: empty access point table", ErrInvalidInput)
	}

	anchors, err := e.anchors(set, table)
	if err != nil {
		return Estimate{}, err
	}
	if len(anchors) < 2 {
		return Estimate{}, fmt.Errorf("%w: %d access points matched, geometric solve needs at least 2", ErrInvalidInput, len(anchors))
	}

	geometry := Geometry{
		DeviceID: deviceID,
		Solver:   e.solver.Name(),
		Origin:   e.projection.Origin(),
		Anchors:  anchors,
	}

	sol, err := e.solver.Solve(slices.Clone(anchors))
	switch {
	case errors.Is(err, multilateration.ErrDegenerateGeometry):
		return e.fail(ctx, geometry, ReasonDegenerateGeometry, err), nil
	case err != nil:
		return Estimate{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	geometry.Solution = &sol
	if !sol.Converged {
		e.logger.Warn("solver did not converge",
			slog.String("deviceID", deviceID),
			slog.Int("iterations", sol.Iterations),
			slog.Float64("residual", sol.Residual))
	}

	pos, err := e.projection.Inverse(geo.Point{X: sol.X, Y: sol.Y})
	if err != nil {
		return e.fail(ctx, geometry, ReasonOutOfRange, err), nil
	}

	e.observe(ctx, geometry)
	return Coordinate(pos), nil
}

// anchors places every access point that was both measured and surveyed on the
// local plane, in table order.
func (e *Engine) anchors(set reference.MeasurementSet, table *reference.AccessPointTable) ([]multilateration.Anchor, error) {
	var anchors []multilateration.Anchor
	for _, ap := range table.AccessPoints() {
		rssi, ok := set.RSSI(ap.ID)
		if !ok {
			continue
		}

		pt, err := e.projection.Forward(geo.LatLon{Latitude: ap.Latitude, Longitude: ap.Longitude})
		if err != nil {
			return nil, fmt.Errorf("%w: access point '%s': %w", ErrInvalidInput, ap.ID, err)
		}

		anchors = append(anchors, multilateration.Anchor{
			ID:    ap.ID,
			X:     pt.X,
			Y:     pt.Y,
			Range: pathloss.Model{A: ap.A, N: ap.N}.Distance(rssi),
		})
	}
	return anchors, nil
}

func (e *Engine) fail(ctx context.Context, g Geometry, reason string, cause error) Estimate {
	e.logger.Info("geometric solve failed",
		slog.String("deviceID", g.DeviceID),
		slog.String("solver", g.Solver),
		slog.String("reason", reason),
		slog.Any("error", cause))

	g.Failure = reason
	e.observe(ctx, g)
	return Failure(reason)
}

func (e *Engine) observe(ctx context.Context, g Geometry) {
	if e.observer == nil {
		return
	}
	g.Anchors = slices.Clone(g.Anchors)
	if g.Solution != nil {
		sol := *g.Solution
		g.Solution = &sol
	}
	e.observer.ObserveGeometry(ctx, g)
}
