// Package multilateration estimates a planar position from anchors with known
// coordinates and estimated ranges.
package multilateration

import (
	"errors"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

const (
	KindIterative  Kind = "iterative"
	KindClosedForm Kind = "closed-form"

	DefaultMaxIterations = 100
	DefaultTolerance     = 1e-9
	DefaultMaxCondition  = 1e12
)

var (
	ErrTooFewAnchors      = errors.New("at least two anchors are required")
	ErrInvalidAnchor      = errors.New("invalid anchor")
	ErrDegenerateGeometry = errors.New("degenerate anchor geometry")
)

var validKinds = map[Kind]struct{}{
	KindIterative:  {},
	KindClosedForm: {},
}

// Kind selects the solving strategy.
type Kind string

func (k Kind) String() string {
	return string(k)
}

func (k *Kind) UnmarshalYAML(value *yaml.Node) error {
	kind := Kind(value.Value)
	if err := kind.Validate(); err != nil {
		return err
	}

	*k = kind
	return nil
}

func (k Kind) Validate() error {
	if _, ok := validKinds[k]; !ok {
		return fmt.Errorf("multilateration.Kind: unknown solver: '%s'", k)
	}
	return nil
}

// Anchor is an access point placed on the local plane with its estimated range.
type Anchor struct {
	ID    string  `json:"id"`
	X     float64 `json:"x"`     // Metres east of the origin
	Y     float64 `json:"y"`     // Metres north of the origin
	Range float64 `json:"range"` // Estimated distance in metres
}

// Solution is a planar position estimate.
type Solution struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Residual   float64 `json:"residual"` // RMS of range residuals at the solution, metres
	Iterations int     `json:"iterations"`
	Converged  bool    `json:"converged"`
}

// Solver turns anchors into a position. Implementations are pure and safe for
// concurrent use.
type Solver interface {
	Name() string
	Solve(anchors []Anchor) (Solution, error)
}

type settings struct {
	maxIterations int
	tolerance     float64
	maxCondition  float64
}

// Option tunes a solver. Options that do not apply to a strategy are ignored.
type Option func(*settings)

// WithMaxIterations bounds the number of iterative refinement steps.
func WithMaxIterations(n int) Option {
	return func(s *settings) {
		s.maxIterations = n
	}
}

// WithTolerance sets the step size below which the iterative solver stops.
func WithTolerance(tolerance float64) Option {
	return func(s *settings) {
		s.tolerance = tolerance
	}
}

// WithMaxCondition sets the condition number above which the linear system of
// the closed form solver is considered degenerate.
func WithMaxCondition(c float64) Option {
	return func(s *settings) {
		s.maxCondition = c
	}
}

func newSettings(opts []Option) (settings, error) {
	s := settings{
		maxIterations: DefaultMaxIterations,
		tolerance:     DefaultTolerance,
		maxCondition:  DefaultMaxCondition,
	}
	for _, opt := range opts {
		opt(&s)
	}

	if s.maxIterations <= 0 {
		return s, fmt.Errorf("max iterations must be positive: %d", s.maxIterations)
	}
	if !(s.tolerance > 0) {
		return s, fmt.Errorf("tolerance must be positive: %v", s.tolerance)
	}
	if !(s.maxCondition > 1) {
		return s, fmt.Errorf("max condition must be greater than 1: %v", s.maxCondition)
	}
	return s, nil
}

// New creates a solver of the given kind.
func New(kind Kind, opts ...Option) (Solver, error) {
	switch kind {
	case KindIterative:
		return NewIterativeSolver(opts...)
	case KindClosedForm:
		return NewClosedFormSolver(opts...)
	default:
		return nil, kind.Validate()
	}
}

func validate(anchors []Anchor) error {
	if len(anchors) < 2 {
		return fmt.Errorf("%w: %d given", ErrTooFewAnchors, len(anchors))
	}
	for _, a := range anchors {
		if !isFinite(a.X) || !isFinite(a.Y) {
			return fmt.Errorf("%w: '%s' has non-finite coordinates", ErrInvalidAnchor, a.ID)
		}
		if !isFinite(a.Range) || a.Range < 0 {
			return fmt.Errorf("%w: '%s' has range %v", ErrInvalidAnchor, a.ID, a.Range)
		}
	}
	return nil
}

// residual returns the root mean square of range residuals at (x, y).
func residual(anchors []Anchor, x, y float64) float64 {
	var sum float64
	for _, a := range anchors {
		r := math.Hypot(x-a.X, y-a.Y) - a.Range
		sum += r * r
	}
	return math.Sqrt(sum / float64(len(anchors)))
}

func centroid(anchors []Anchor) (float64, float64) {
	var x, y float64
	for _, a := range anchors {
		x += a.X
		y += a.Y
	}
	n := float64(len(anchors))
	return x / n, y / n
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
