// Package wbeta implements the weighted-Beta reward model: per
// (category, slot) Beta-Bernoulli sufficient statistics whose posterior
// weights every observation by the prominence of the slot it happened in,
// so clicks earned in highly visible slots carry more evidence.
package wbeta

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/n0madic/go-page-bandits/content"
)

// ErrOrderingViolation is returned by Click when a reward arrives for a
// (category, slot) cell with no room left under the assignment count. The
// counts are still kept consistent (both are incremented) so the posterior
// never becomes ill-defined; the caller decides whether to log or reject.
var ErrOrderingViolation = errors.New("click without prior allocation")

// WeightedBeta holds assignment and reward count matrices, one row per
// category and one column per page slot, plus the slot prominence vector
// used to weight the evidence.
type WeightedBeta struct {
	categories  []content.Category
	index       map[content.Category]int
	prominences []float64

	assignment *mat.Dense
	reward     *mat.Dense

	priorAlpha float64
	priorBeta  float64

	rng *rand.Rand
}

// Option configures a WeightedBeta.
type Option func(*WeightedBeta)

// WithRand sets the random source used for posterior sampling. Sharing one
// seeded source across a learner keeps experiments reproducible.
func WithRand(rng *rand.Rand) Option {
	return func(w *WeightedBeta) { w.rng = rng }
}

// WithPriors sets the Beta prior pseudo-counts (default 1, 1).
func WithPriors(alpha, beta float64) Option {
	return func(w *WeightedBeta) {
		w.priorAlpha = alpha
		w.priorBeta = beta
	}
}

// New creates a weighted-Beta model for the given category set and slot
// prominence vector.
func New(categories []content.Category, prominences []float64, options ...Option) (*WeightedBeta, error) {
	if len(categories) == 0 {
		return nil, errors.New("wbeta: empty category set")
	}
	if len(prominences) == 0 {
		return nil, errors.New("wbeta: empty slot prominence vector")
	}
	for i, p := range prominences {
		if p < 0 || p > 1 {
			return nil, fmt.Errorf("wbeta: slot %d prominence %v outside [0,1]", i, p)
		}
	}
	w := &WeightedBeta{
		categories:  categories,
		index:       content.CategoryIndex(categories),
		prominences: append([]float64(nil), prominences...),
		assignment:  mat.NewDense(len(categories), len(prominences), nil),
		reward:      mat.NewDense(len(categories), len(prominences), nil),
		priorAlpha:  1,
		priorBeta:   1,
	}
	for _, opt := range options {
		opt(w)
	}
	if w.priorAlpha <= 0 || w.priorBeta <= 0 {
		return nil, fmt.Errorf("wbeta: prior pseudo-counts must be positive, got (%v, %v)", w.priorAlpha, w.priorBeta)
	}
	if w.rng == nil {
		w.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return w, nil
}

// Slots returns the number of page slots covered by the model.
func (w *WeightedBeta) Slots() int { return len(w.prominences) }

// Sample draws a click-probability estimate for a category from
// Beta(α0 + Σ_s reward[c][s]·w[s], β0 + Σ_s (assignment−reward)[c][s]·w[s]).
// It never mutates the counts.
func (w *WeightedBeta) Sample(c content.Category) (float64, error) {
	row, ok := w.index[c]
	if !ok {
		return 0, fmt.Errorf("wbeta: category %q: %w", c, content.ErrUnsupportedCategory)
	}
	alpha := w.priorAlpha
	beta := w.priorBeta
	for s, p := range w.prominences {
		r := w.reward.At(row, s)
		a := w.assignment.At(row, s)
		alpha += r * p
		beta += (a - r) * p
	}
	dist := distuv.Beta{Alpha: alpha, Beta: beta, Src: w.rng}
	return dist.Rand(), nil
}

// Allocate records that an item of the category was assigned to the slot.
func (w *WeightedBeta) Allocate(c content.Category, slot int) error {
	row, ok := w.index[c]
	if !ok {
		return fmt.Errorf("wbeta: category %q: %w", c, content.ErrUnsupportedCategory)
	}
	if slot < 0 || slot >= len(w.prominences) {
		return fmt.Errorf("wbeta: slot %d out of range [0,%d)", slot, len(w.prominences))
	}
	w.assignment.Set(row, slot, w.assignment.At(row, slot)+1)
	return nil
}

// Click records a click on the category in the slot. A click with no prior
// matching allocation increments both counters, preserving the
// reward ≤ assignment invariant, and reports ErrOrderingViolation.
func (w *WeightedBeta) Click(c content.Category, slot int) error {
	row, ok := w.index[c]
	if !ok {
		return fmt.Errorf("wbeta: category %q: %w", c, content.ErrUnsupportedCategory)
	}
	if slot < 0 || slot >= len(w.prominences) {
		return fmt.Errorf("wbeta: slot %d out of range [0,%d)", slot, len(w.prominences))
	}
	if w.reward.At(row, slot) >= w.assignment.At(row, slot) {
		w.assignment.Set(row, slot, w.assignment.At(row, slot)+1)
		w.reward.Set(row, slot, w.reward.At(row, slot)+1)
		return fmt.Errorf("wbeta: category %q slot %d: %w", c, slot, ErrOrderingViolation)
	}
	w.reward.Set(row, slot, w.reward.At(row, slot)+1)
	return nil
}

// Counts returns copies of the assignment and reward matrices, one row per
// category in set order.
func (w *WeightedBeta) Counts() (assignment, reward [][]float64) {
	return matrixRows(w.assignment), matrixRows(w.reward)
}

// SetCounts replaces the assignment and reward matrices. Dimensions must
// match the model and reward must not exceed assignment element-wise.
func (w *WeightedBeta) SetCounts(assignment, reward [][]float64) error {
	a, err := w.parseRows(assignment)
	if err != nil {
		return fmt.Errorf("wbeta: assignment counts: %w", err)
	}
	r, err := w.parseRows(reward)
	if err != nil {
		return fmt.Errorf("wbeta: reward counts: %w", err)
	}
	for i := 0; i < len(w.categories); i++ {
		for j := 0; j < len(w.prominences); j++ {
			if r.At(i, j) > a.At(i, j) {
				return fmt.Errorf("wbeta: reward count exceeds assignment count at (%d, %d)", i, j)
			}
			if a.At(i, j) < 0 {
				return fmt.Errorf("wbeta: negative assignment count at (%d, %d)", i, j)
			}
		}
	}
	w.assignment = a
	w.reward = r
	return nil
}

func (w *WeightedBeta) parseRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) != len(w.categories) {
		return nil, fmt.Errorf("want %d rows, got %d", len(w.categories), len(rows))
	}
	m := mat.NewDense(len(w.categories), len(w.prominences), nil)
	for i, row := range rows {
		if len(row) != len(w.prominences) {
			return nil, fmt.Errorf("row %d: want %d columns, got %d", i, len(w.prominences), len(row))
		}
		m.SetRow(i, row)
	}
	return m, nil
}

func matrixRows(m *mat.Dense) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := 0; i < r; i++ {
		row := make([]float64, c)
		mat.Row(row, i, m)
		out[i] = row
	}
	return out
}
