package lpsolve

import "fmt"

// SlotCapacity caps the total weight each slot receives across all items:
// variables are laid out item-major with Slots consecutive slot entries per
// item, so slot s owns every index congruent to s modulo Slots.
type SlotCapacity struct {
	Slots int
	Limit float64
}

// Name implements ConstraintFamily.
func (f SlotCapacity) Name() string { return "slot-capacity" }

// Rows implements ConstraintFamily.
func (f SlotCapacity) Rows(n int) ([]Row, error) {
	if f.Slots <= 0 || n%f.Slots != 0 {
		return nil, fmt.Errorf("%d variables not divisible into %d slots", n, f.Slots)
	}
	rows := make([]Row, 0, f.Slots)
	for s := 0; s < f.Slots; s++ {
		coeffs := make([]float64, n)
		for j := s; j < n; j += f.Slots {
			coeffs[j] = 1
		}
		rows = append(rows, Row{Coeffs: coeffs, RHS: f.Limit})
	}
	return rows, nil
}

// BlockCapacity caps each contiguous block of BlockSize variables (one
// block per item or bin) at its own limit: "each candidate occupies at most
// Limits[b] slots".
type BlockCapacity struct {
	BlockSize int
	Limits    []float64
}

// Name implements ConstraintFamily.
func (f BlockCapacity) Name() string { return "block-capacity" }

// Rows implements ConstraintFamily.
func (f BlockCapacity) Rows(n int) ([]Row, error) {
	if f.BlockSize <= 0 || n != f.BlockSize*len(f.Limits) {
		return nil, fmt.Errorf("%d variables do not form %d blocks of %d", n, len(f.Limits), f.BlockSize)
	}
	rows := make([]Row, 0, len(f.Limits))
	for b, limit := range f.Limits {
		coeffs := make([]float64, n)
		for j := b * f.BlockSize; j < (b+1)*f.BlockSize; j++ {
			coeffs[j] = 1
		}
		rows = append(rows, Row{Coeffs: coeffs, RHS: limit})
	}
	return rows, nil
}

// ProminenceFloor states the category-diversity bounds: for each category
// block (BlockSizes[k] candidates, each spanning len(Weights) slot
// variables) the prominence-weighted assignment must reach Bounds[k],
// expressed in <= form as -Σ w·x <= -bound.
type ProminenceFloor struct {
	BlockSizes []int
	Weights    []float64
	Bounds     []float64
}

// Name implements ConstraintFamily.
func (f ProminenceFloor) Name() string { return "category-diversity" }

// Rows implements ConstraintFamily.
func (f ProminenceFloor) Rows(n int) ([]Row, error) {
	if len(f.BlockSizes) != len(f.Bounds) {
		return nil, fmt.Errorf("%d blocks but %d bounds", len(f.BlockSizes), len(f.Bounds))
	}
	total := 0
	for _, sz := range f.BlockSizes {
		total += sz * len(f.Weights)
	}
	if total != n {
		return nil, fmt.Errorf("blocks cover %d variables, problem has %d", total, n)
	}
	rows := make([]Row, 0, len(f.Bounds))
	start := 0
	for k, sz := range f.BlockSizes {
		coeffs := make([]float64, n)
		for cand := 0; cand < sz; cand++ {
			for s, w := range f.Weights {
				coeffs[start+cand*len(f.Weights)+s] = -w
			}
		}
		rows = append(rows, Row{Coeffs: coeffs, RHS: -f.Bounds[k]})
		start += sz * len(f.Weights)
	}
	return rows, nil
}

// Raw wraps hand-built rows under a family name; used for constraint
// structures with no generic shape, such as big-M competitor exclusion.
type Raw struct {
	FamilyName string
	R          []Row
}

// Name implements ConstraintFamily.
func (f Raw) Name() string { return f.FamilyName }

// Rows implements ConstraintFamily.
func (f Raw) Rows(n int) ([]Row, error) {
	for i, r := range f.R {
		if len(r.Coeffs) != n {
			return nil, fmt.Errorf("row %d has %d coefficients, want %d", i, len(r.Coeffs), n)
		}
	}
	return f.R, nil
}
