// Package lpsolve provides the linear-programming machinery behind the
// allocation optimizers: an inequality-form problem assembled from named
// constraint families, a simplex solve through gonum, and a
// branch-and-bound integral solve with context cancellation.
package lpsolve

import (
	"errors"
	"fmt"
)

// ErrInfeasible is returned when a problem has no feasible point (or the
// solver cannot produce one). Callers are expected to fall back to a
// cheaper strategy rather than abort.
var ErrInfeasible = errors.New("no feasible solution")

// Row is a single constraint Coeffs·x <= RHS.
type Row struct {
	Coeffs []float64
	RHS    float64
}

// ConstraintFamily generates a group of related constraint rows from the
// problem dimensions. Families replace hand-indexed constraint matrices:
// each one states which structural rule it encodes and derives its rows
// programmatically.
type ConstraintFamily interface {
	Name() string
	Rows(numVars int) ([]Row, error)
}

// Problem is the linear program
//
//	minimize  c·x
//	subject to G·x <= h, x >= 0
//
// built incrementally from an objective and constraint families.
type Problem struct {
	n    int
	obj  []float64
	rows [][]float64
	rhs  []float64
}

// NewProblem creates an empty problem over n variables.
func NewProblem(n int) *Problem {
	return &Problem{n: n}
}

// NumVars returns the number of decision variables.
func (p *Problem) NumVars() int { return p.n }

// NumRows returns the number of constraint rows added so far.
func (p *Problem) NumRows() int { return len(p.rows) }

// SetObjective installs the minimization coefficients.
func (p *Problem) SetObjective(c []float64) error {
	if len(c) != p.n {
		return fmt.Errorf("lpsolve: objective length %d, want %d", len(c), p.n)
	}
	p.obj = append([]float64(nil), c...)
	return nil
}

// Add appends every row of a constraint family.
func (p *Problem) Add(f ConstraintFamily) error {
	rows, err := f.Rows(p.n)
	if err != nil {
		return fmt.Errorf("lpsolve: family %q: %w", f.Name(), err)
	}
	for i, r := range rows {
		if len(r.Coeffs) != p.n {
			return fmt.Errorf("lpsolve: family %q row %d: length %d, want %d", f.Name(), i, len(r.Coeffs), p.n)
		}
		p.rows = append(p.rows, append([]float64(nil), r.Coeffs...))
		p.rhs = append(p.rhs, r.RHS)
	}
	return nil
}

// Clone copies the problem so branch-and-bound nodes can extend it without
// touching the root.
func (p *Problem) Clone() *Problem {
	c := &Problem{
		n:    p.n,
		obj:  append([]float64(nil), p.obj...),
		rhs:  append([]float64(nil), p.rhs...),
		rows: make([][]float64, len(p.rows)),
	}
	// Rows are immutable once added, sharing them is safe.
	copy(c.rows, p.rows)
	return c
}

func (p *Problem) addBoundRow(variable int, coeff, rhs float64) {
	row := make([]float64, p.n)
	row[variable] = coeff
	p.rows = append(p.rows, row)
	p.rhs = append(p.rhs, rhs)
}
