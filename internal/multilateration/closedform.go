package multilateration

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ClosedFormSolver linearizes the range equations against the last anchor and
// solves the resulting system in the least squares sense.
type ClosedFormSolver struct {
	maxCondition float64
}

func NewClosedFormSolver(opts ...Option) (*ClosedFormSolver, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	return &ClosedFormSolver{maxCondition: s.maxCondition}, nil
}

func (s *ClosedFormSolver) Name() string {
	return KindClosedForm.String()
}

// Solve subtracts the pivot equation from every other anchor equation:
//
//	2(xᵢ−xₙ)x + 2(yᵢ−yₙ)y = rₙ² − rᵢ² + xᵢ² − xₙ² + yᵢ² − yₙ²
//
// and solves the normal equations (AᵀA)p = Aᵀb. Two anchors give a rank one
// system and are always reported as degenerate.
func (s *ClosedFormSolver) Solve(anchors []Anchor) (Solution, error) {
	if err := validate(anchors); err != nil {
		return Solution{}, err
	}

	pivot := anchors[len(anchors)-1]
	rows := len(anchors) - 1

	a := mat.NewDense(rows, 2, nil)
	b := mat.NewVecDense(rows, nil)
	for i, an := range anchors[:rows] {
		a.Set(i, 0, 2*(an.X-pivot.X))
		a.Set(i, 1, 2*(an.Y-pivot.Y))
		b.SetVec(i, pivot.Range*pivot.Range-an.Range*an.Range+
			an.X*an.X-pivot.X*pivot.X+
			an.Y*an.Y-pivot.Y*pivot.Y)
	}

	var ata mat.Dense
	ata.Mul(a.T(), a)
	var atb mat.VecDense
	atb.MulVec(a.T(), b)

	var lu mat.LU
	lu.Factorize(&ata)
	if c := lu.Cond(); math.IsNaN(c) || c > s.maxCondition {
		return Solution{}, fmt.Errorf("%w: condition number %g", ErrDegenerateGeometry, c)
	}

	var p mat.VecDense
	if err := lu.SolveVecTo(&p, false, &atb); err != nil {
		return Solution{}, fmt.Errorf("%w: %w", ErrDegenerateGeometry, err)
	}

	x, y := p.AtVec(0), p.AtVec(1)
	if !isFinite(x) || !isFinite(y) {
		return Solution{}, fmt.Errorf("%w: non-finite solution", ErrDegenerateGeometry)
	}

	return Solution{
		X:          x,
		Y:          y,
		Residual:   residual(anchors, x, y),
		Iterations: 1,
		Converged:  true,
	}, nil
}
