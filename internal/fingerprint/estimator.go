// Package fingerprint estimates a symbolic location by weighted nearest
// fingerprint matching against a surveyed heatmap.
package fingerprint

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/roman-kulish/indoor-localization/internal/reference"
)

const (
	// DefaultEpsilon guards the inverse distance weight against exact matches.
	DefaultEpsilon = 1e-10

	// DefaultTieTolerance is the relative difference under which two normalized
	// weights are considered equal.
	DefaultTieTolerance = 1e-9
)

var (
	// ErrEmptyMeasurements is returned when there is nothing to match.
	ErrEmptyMeasurements = errors.New("empty measurement set")

	// ErrEmptyHeatmap is returned when there are no locations to match against.
	ErrEmptyHeatmap = errors.New("empty heatmap")
)

// Outcome is the kind of decision reached by the estimator.
type Outcome string

const (
	OutcomeSingle  Outcome = "single"
	OutcomeTie     Outcome = "tie"
	OutcomeUnknown Outcome = "unknown"
)

// Decision is the estimator result along with the weights it was derived from.
type Decision struct {
	Outcome Outcome
	Labels  []string // One label for OutcomeSingle, all tied labels for OutcomeTie
	Weights Weights
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithEpsilon sets the value added to every distance before inversion.
func WithEpsilon(epsilon float64) Option {
	return func(e *Estimator) {
		e.epsilon = epsilon
	}
}

// WithTieTolerance sets the relative tolerance used to detect tied labels.
// Zero requires exact equality.
func WithTieTolerance(tolerance float64) Option {
	return func(e *Estimator) {
		e.tieTolerance = tolerance
	}
}

// WithLogger sets the logger for the estimator
func WithLogger(logger *slog.Logger) Option {
	return func(e *Estimator) {
		e.logger = logger
	}
}

// Estimator matches measurement sets against heatmaps. It holds no per-request
// state and is safe for concurrent use.
type Estimator struct {
	epsilon      float64
	tieTolerance float64
	logger       *slog.Logger
}

// NewEstimator creates an estimator with a discard logger and default constants.
func NewEstimator(opts ...Option) (*Estimator, error) {
	e := Estimator{
		epsilon:      DefaultEpsilon,
		tieTolerance: DefaultTieTolerance,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&e)
	}

	if !(e.epsilon > 0) || math.IsInf(e.epsilon, 0) {
		return nil, fmt.Errorf("epsilon must be a positive number: %v", e.epsilon)
	}
	if !(e.tieTolerance >= 0) || e.tieTolerance >= 1 {
		return nil, fmt.Errorf("tie tolerance must be in [0, 1): %v", e.tieTolerance)
	}
	return &e, nil
}

// Estimate picks the heatmap location whose fingerprint is nearest to the
// measurement set.
//
// The decision is OutcomeUnknown when no location shares an access point with
// the measurements. Labels whose normalized weight is within the tie tolerance
// of the best one are reported together as OutcomeTie, so several exact
// matches tie.
func (e *Estimator) Estimate(set reference.MeasurementSet, heatmap *reference.Heatmap) (Decision, error) {
	if set.Len() == 0 {
		return Decision{}, ErrEmptyMeasurements
	}
	if heatmap == nil || heatmap.Len() == 0 {
		return Decision{}, ErrEmptyHeatmap
	}

	distances := Distances(set, heatmap)
	weights := Weigh(distances, e.epsilon)

	e.logger.Debug("fingerprint weights",
		slog.Int("candidates", heatmap.Len()),
		slog.Int("matched", len(distances)),
		slog.Any("normalized", weights.Normalized))

	if len(distances) == 0 {
		return Decision{Outcome: OutcomeUnknown, Weights: weights}, nil
	}

	best := math.Inf(-1)
	for _, d := range distances {
		best = math.Max(best, weights.Normalized[d.Label])
	}

	var labels []string
	for _, d := range distances {
		if e.tied(weights.Normalized[d.Label], best) {
			labels = append(labels, d.Label)
		}
	}

	if len(labels) > 1 {
		return Decision{Outcome: OutcomeTie, Labels: labels, Weights: weights}, nil
	}
	return Decision{Outcome: OutcomeSingle, Labels: labels, Weights: weights}, nil
}

func (e *Estimator) tied(w, best float64) bool {
	if w == best {
		return true
	}
	return math.Abs(best-w) <= e.tieTolerance*math.Abs(best)
}
