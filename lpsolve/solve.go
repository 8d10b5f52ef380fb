package lpsolve

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	simplexTol  = 1e-10
	integralTol = 1e-6
	// branch-and-bound node budget; hitting it degrades to the incumbent
	// rather than spinning on pathological trees.
	maxNodes = 8192
)

// Solve computes the continuous optimum of the problem. The inequality
// form is lifted to the simplex standard form by appending one slack
// variable per row, keeping the model variables non-negative as stated.
func Solve(p *Problem) ([]float64, float64, error) {
	if p.obj == nil {
		return nil, 0, errors.New("lpsolve: objective not set")
	}
	m := len(p.rows)
	if m == 0 {
		return nil, 0, errors.New("lpsolve: no constraints")
	}
	n := p.n
	a := mat.NewDense(m, n+m, nil)
	for i, row := range p.rows {
		for j, v := range row {
			a.Set(i, j, v)
		}
		a.Set(i, n+i, 1)
	}
	c := make([]float64, n+m)
	copy(c, p.obj)
	b := append([]float64(nil), p.rhs...)

	opt, x, err := lp.Simplex(c, a, b, simplexTol, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("lpsolve: simplex: %w: %w", ErrInfeasible, err)
	}
	out := make([]float64, n)
	copy(out, x[:n])
	for i, v := range out {
		// Tiny negative residues from pivoting are numerical noise.
		if v < 0 && v > -simplexTol*10 {
			out[i] = 0
		}
	}
	return out, opt, nil
}

// IntegerSpec declares which variables must take integer values and their
// upper bounds, used both for the root bound rows and for branching.
type IntegerSpec struct {
	Integral []bool
	Upper    []float64
}

// Binary builds a spec where all n variables are 0/1.
func Binary(n int) IntegerSpec {
	spec := IntegerSpec{Integral: make([]bool, n), Upper: make([]float64, n)}
	for i := range spec.Integral {
		spec.Integral[i] = true
		spec.Upper[i] = 1
	}
	return spec
}

// BoundedInteger builds a spec where all n variables are integers in
// [0, upper].
func BoundedInteger(n int, upper float64) IntegerSpec {
	spec := Binary(n)
	for i := range spec.Upper {
		spec.Upper[i] = upper
	}
	return spec
}

// SolveInteger computes an integral optimum by best-effort branch and bound
// over the simplex relaxation. It honors ctx: on cancellation or deadline it
// returns the best incumbent found so far, or the context error when none
// exists, so callers can fall back to the relaxed or greedy path.
func SolveInteger(ctx context.Context, p *Problem, spec IntegerSpec) ([]float64, error) {
	if len(spec.Integral) != p.n || len(spec.Upper) != p.n {
		return nil, fmt.Errorf("lpsolve: integer spec sized %d/%d, want %d", len(spec.Integral), len(spec.Upper), p.n)
	}

	root := p.Clone()
	for i, integral := range spec.Integral {
		if integral {
			root.addBoundRow(i, 1, spec.Upper[i])
		}
	}

	type node struct{ prob *Problem }
	stack := []node{{prob: root}}

	var (
		best    []float64
		bestObj = math.Inf(1)
		visited int
	)

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			if best != nil {
				return roundIntegral(best, spec), nil
			}
			return nil, fmt.Errorf("lpsolve: integer solve interrupted: %w", err)
		}
		visited++
		if visited > maxNodes {
			break
		}

		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		x, obj, err := Solve(cur.prob)
		if err != nil {
			continue // infeasible branch
		}
		if obj >= bestObj-1e-9 {
			continue // bound prune
		}

		branch := mostFractional(x, spec)
		if branch < 0 {
			best = append([]float64(nil), x...)
			bestObj = obj
			continue
		}

		v := x[branch]
		down := cur.prob.Clone()
		down.addBoundRow(branch, 1, math.Floor(v))
		up := cur.prob.Clone()
		up.addBoundRow(branch, -1, -(math.Floor(v) + 1))
		stack = append(stack, node{prob: down}, node{prob: up})
	}

	if best == nil {
		return nil, fmt.Errorf("lpsolve: integer solve: %w", ErrInfeasible)
	}
	return roundIntegral(best, spec), nil
}

func mostFractional(x []float64, spec IntegerSpec) int {
	branch := -1
	bestDist := integralTol
	for i, v := range x {
		if !spec.Integral[i] {
			continue
		}
		frac := math.Abs(v - math.Round(v))
		if frac > bestDist {
			bestDist = frac
			branch = i
		}
	}
	return branch
}

func roundIntegral(x []float64, spec IntegerSpec) []float64 {
	out := append([]float64(nil), x...)
	for i := range out {
		if spec.Integral[i] {
			out[i] = math.Round(out[i])
		}
	}
	return out
}
