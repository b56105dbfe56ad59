package multilateration

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	initialDamping = 1e-3
	maxDamping     = 1e12
)

// IterativeSolver minimizes Σ(‖p−pᵢ‖−rᵢ)² with Levenberg-Marquardt, starting
// from the centroid of the anchors. When every anchor shares one position the
// start is moved onto the mean range circle around it.
type IterativeSolver struct {
	maxIterations int
	tolerance     float64
}

func NewIterativeSolver(opts ...Option) (*IterativeSolver, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	return &IterativeSolver{maxIterations: s.maxIterations, tolerance: s.tolerance}, nil
}

func (s *IterativeSolver) Name() string {
	return KindIterative.String()
}

// Solve always terminates. Converged is false when the iteration budget ran
// out before the step size or the gradient dropped below the tolerance; the
// best position found so far is still returned.
func (s *IterativeSolver) Solve(anchors []Anchor) (Solution, error) {
	if err := validate(anchors); err != nil {
		return Solution{}, err
	}

	x, y := seed(anchors)
	cost := sumSquares(anchors, x, y)
	damping := initialDamping

	var (
		jtj  = mat.NewSymDense(2, nil)
		grad = mat.NewVecDense(2, nil)
		step mat.VecDense
	)

	sol := Solution{}
	for sol.Iterations < s.maxIterations {
		sol.Iterations++

		normalEquations(anchors, x, y, jtj, grad)
		if mat.Norm(grad, 2) <= s.tolerance {
			sol.Converged = true
			break
		}

		// (JᵀJ + λ·diag(JᵀJ)) δ = −Jᵀr
		damped := mat.NewDense(2, 2, nil)
		damped.Copy(jtj)
		for i := 0; i < 2; i++ {
			d := jtj.At(i, i)
			if d == 0 {
				d = 1
			}
			damped.Set(i, i, jtj.At(i, i)+damping*d)
		}

		var neg mat.VecDense
		neg.ScaleVec(-1, grad)
		if err := step.SolveVec(damped, &neg); err != nil {
			damping *= 10
			if damping > maxDamping {
				break
			}
			continue
		}

		nx, ny := x+step.AtVec(0), y+step.AtVec(1)
		stepNorm := math.Hypot(step.AtVec(0), step.AtVec(1))

		if next := sumSquares(anchors, nx, ny); next < cost {
			x, y, cost = nx, ny, next
			damping = math.Max(damping/10, 1e-15)
		} else {
			damping *= 10
		}

		if stepNorm <= s.tolerance*(1+math.Hypot(x, y)) {
			sol.Converged = true
			break
		}
		if damping > maxDamping {
			break
		}
	}

	sol.X, sol.Y = x, y
	sol.Residual = residual(anchors, x, y)
	return sol, nil
}

// seed returns the starting point. Anchors sharing a single position have no
// usable gradient there, so the start is offset by their mean range along x.
func seed(anchors []Anchor) (float64, float64) {
	first := anchors[0]
	var ranges float64
	for _, a := range anchors {
		if a.X != first.X || a.Y != first.Y {
			return centroid(anchors)
		}
		ranges += a.Range
	}
	return first.X + ranges/float64(len(anchors)), first.Y
}

// normalEquations fills JᵀJ and the gradient Jᵀr of the range residuals at (x, y).
func normalEquations(anchors []Anchor, x, y float64, jtj *mat.SymDense, grad *mat.VecDense) {
	var sxx, sxy, syy, gx, gy float64
	for _, a := range anchors {
		dx, dy := x-a.X, y-a.Y
		d := math.Hypot(dx, dy)
		if d == 0 {
			// the gradient of the distance is undefined at the anchor itself
			continue
		}
		jx, jy := dx/d, dy/d
		r := d - a.Range

		sxx += jx * jx
		sxy += jx * jy
		syy += jy * jy
		gx += jx * r
		gy += jy * r
	}

	jtj.SetSym(0, 0, sxx)
	jtj.SetSym(0, 1, sxy)
	jtj.SetSym(1, 1, syy)
	grad.SetVec(0, gx)
	grad.SetVec(1, gy)
}

func sumSquares(anchors []Anchor, x, y float64) float64 {
	var sum float64
	for _, a := range anchors {
		r := math.Hypot(x-a.X, y-a.Y) - a.Range
		sum += r * r
	}
	return sum
}
