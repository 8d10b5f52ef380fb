package allocation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/rs/zerolog"

	"github.com/n0madic/go-page-bandits/content"
	"github.com/n0madic/go-page-bandits/lpsolve"
	"github.com/n0madic/go-page-bandits/wbeta"
)

// Optimizer computes diversity-constrained page layouts from sampled item
// qualities. The strategy is fixed at construction; recoverable solver
// failures degrade to cheaper strategies instead of aborting the round.
type Optimizer struct {
	categories  []content.Category
	catIndex    map[content.Category]int
	prominences []float64
	bounds      []float64

	strategy  Strategy
	technique Technique
	binOrder  SlotOrder

	grid        *wbeta.Grid // required by BinnedLP
	errorTrials int
	errorSeries map[Technique][]float64

	selector *CandidateSelector
	derand   *Derandomizer

	rng *rand.Rand
	log zerolog.Logger

	// full-enumeration constraint cache, rebuilt when the per-category pool
	// composition changes
	fullKey  string
	fullBase *lpsolve.Problem
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithStrategy selects the solution strategy (default Greedy).
func WithStrategy(s Strategy) Option {
	return func(o *Optimizer) { o.strategy = s }
}

// WithTechnique selects the derandomization technique (default Rand1).
func WithTechnique(t Technique) Option {
	return func(o *Optimizer) { o.technique = t }
}

// WithSlotOrder selects the binned strategy's slot walk (default
// GreedyOrder).
func WithSlotOrder(s SlotOrder) Option {
	return func(o *Optimizer) { o.binOrder = s }
}

// WithDiversityBounds sets per-category minimum assigned prominence.
func WithDiversityBounds(bounds []float64) Option {
	return func(o *Optimizer) { o.bounds = append([]float64(nil), bounds...) }
}

// WithGrid attaches the reward-model grid used by the binned strategy for
// bucketing and bin-representative sampling.
func WithGrid(g *wbeta.Grid) Option {
	return func(o *Optimizer) { o.grid = g }
}

// WithRand sets the random source (default: a fresh unseeded source).
func WithRand(rng *rand.Rand) Option {
	return func(o *Optimizer) { o.rng = rng }
}

// WithLogger sets the warning logger (default zerolog.Nop).
func WithLogger(log zerolog.Logger) Option {
	return func(o *Optimizer) { o.log = log }
}

// WithErrorTrials enables empirical diversity-error measurement: every
// relaxed solve is re-derandomized this many times per technique and the
// errors recorded (see DiversityErrors). Zero disables measurement.
func WithErrorTrials(trials int) Option {
	return func(o *Optimizer) { o.errorTrials = trials }
}

// NewOptimizer validates the configuration and builds an optimizer.
// Diversity-bound count mismatches are repaired by truncating or extending
// with the last bound, with a warning; everything else invalid is fatal.
func NewOptimizer(categories []content.Category, prominences []float64, options ...Option) (*Optimizer, error) {
	if len(categories) == 0 {
		return nil, errors.New("allocation: empty category set")
	}
	if len(prominences) == 0 {
		return nil, errors.New("allocation: empty slot prominence vector")
	}
	for i, p := range prominences {
		if p < 0 || p > 1 {
			return nil, fmt.Errorf("allocation: slot %d prominence %v outside [0,1]", i, p)
		}
	}
	o := &Optimizer{
		categories:  categories,
		catIndex:    content.CategoryIndex(categories),
		prominences: append([]float64(nil), prominences...),
		bounds:      make([]float64, len(categories)),
		errorSeries: make(map[Technique][]float64),
		log:         zerolog.Nop(),
	}
	for _, opt := range options {
		opt(o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	if len(o.bounds) != len(categories) {
		o.log.Warn().
			Int("bounds", len(o.bounds)).
			Int("categories", len(categories)).
			Msg("diversity bound count mismatch, truncating or extending to fit")
		o.bounds = fitBounds(o.bounds, len(categories))
	}
	totalBounds := 0.0
	for i, b := range o.bounds {
		if b < 0 {
			return nil, fmt.Errorf("allocation: negative diversity bound %v for category %q", b, categories[i])
		}
		totalBounds += b
	}
	totalProminence := 0.0
	for _, p := range o.prominences {
		totalProminence += p
	}
	if totalBounds > totalProminence {
		return nil, fmt.Errorf("allocation: diversity bounds sum %v exceeds total slot prominence %v", totalBounds, totalProminence)
	}
	if o.strategy == BinnedLP && o.grid == nil {
		return nil, errors.New("allocation: compressed-lp strategy requires a reward-model grid")
	}

	o.selector = NewCandidateSelector(categories, o.rng, o.log)
	o.derand = NewDerandomizer(o.prominences, o.rng)
	return o, nil
}

// Slots returns the page length produced by Allocate.
func (o *Optimizer) Slots() int { return len(o.prominences) }

// Bounds returns the effective per-category diversity bounds.
func (o *Optimizer) Bounds() []float64 { return append([]float64(nil), o.bounds...) }

// DiversityErrors returns the recorded empirical diversity errors for a
// technique, one entry per measured solve.
func (o *Optimizer) DiversityErrors(t Technique) []float64 {
	return append([]float64(nil), o.errorSeries[t]...)
}

// Request carries one allocation round's inputs.
type Request struct {
	Pool *content.NewsPool
	// Qualities is the per-round sampled quality side-table; unused by the
	// binned strategy, which samples per bin internally.
	Qualities content.Qualities
	// Locate maps an item to its state-bucket grid cell for the current
	// user; required by the binned strategy.
	Locate func(*content.News) (row, col int)
}

// Result is a computed layout. Fallback marks rounds where the configured
// strategy failed and a cheaper one produced the page.
type Result struct {
	Layout   []*content.News
	Fallback bool
}

// Allocate produces an ordered slot->item layout of exactly Slots()
// entries. Optimizer infeasibility degrades: ExactILP falls back to
// RelaxedLP, and any LP failure falls back to Greedy, each with a warning.
func (o *Optimizer) Allocate(ctx context.Context, req Request) (Result, error) {
	if req.Pool == nil || req.Pool.Len() < len(o.prominences) {
		return Result{}, fmt.Errorf("allocation: %d items for %d slots: %w",
			poolLen(req.Pool), len(o.prominences), content.ErrInsufficientInventory)
	}

	switch o.strategy {
	case Greedy:
		return Result{Layout: o.allocateGreedy(req)}, nil
	case RelaxedLP:
		layout, err := o.allocateRelaxed(req)
		if err == nil {
			return Result{Layout: layout}, nil
		}
		o.warnFallback("relaxed-lp", err)
	case ExactILP:
		layout, err := o.allocateExact(ctx, req)
		if err == nil {
			return Result{Layout: layout}, nil
		}
		o.warnFallback("exact-ilp", err)
		layout, err = o.allocateRelaxed(req)
		if err == nil {
			return Result{Layout: layout, Fallback: true}, nil
		}
		o.warnFallback("relaxed-lp", err)
	case BinnedLP:
		layout, err := o.allocateBinned(req)
		if err == nil {
			return Result{Layout: layout}, nil
		}
		o.warnFallback("compressed-lp", err)
	case FullLP:
		layout, err := o.allocateFull(req)
		if err == nil {
			return Result{Layout: layout}, nil
		}
		o.warnFallback("full", err)
	default:
		return Result{}, fmt.Errorf("allocation: unknown strategy %v", o.strategy)
	}
	return Result{Layout: o.allocateGreedy(req), Fallback: true}, nil
}

func (o *Optimizer) warnFallback(strategy string, err error) {
	o.log.Warn().Err(err).Str("strategy", strategy).Msg("allocation strategy failed, degrading")
}

// allocateGreedy sorts items by sampled quality and fills slots in
// descending prominence order. Deterministic given qualities: ties keep
// input order.
func (o *Optimizer) allocateGreedy(req Request) []*content.News {
	items := append([]*content.News(nil), req.Pool.Items()...)
	sort.SliceStable(items, func(i, j int) bool {
		return req.Qualities[items[i].ID] > req.Qualities[items[j].ID]
	})

	layout := make([]*content.News, len(o.prominences))
	remaining := append([]float64(nil), o.prominences...)
	for rank := 0; rank < len(layout); rank++ {
		target := argmax(remaining)
		layout[target] = items[rank]
		remaining[target] = -1
	}
	return layout
}

// allocateRelaxed solves the continuous assignment LP over a candidate
// subset and derandomizes the fractional solution.
func (o *Optimizer) allocateRelaxed(req Request) ([]*content.News, error) {
	cands := o.selector.Select(req.Pool.Items(), req.Qualities, len(o.prominences))
	prob, err := o.buildAssignmentProblem(cands, req.Qualities)
	if err != nil {
		return nil, err
	}
	x, _, err := lpsolve.Solve(prob)
	if err != nil {
		return nil, err
	}
	probs := o.sliceBySlot(x, len(cands))
	o.measureErrors(probs, cands)
	return o.derand.Run(CopyProbabilities(probs), cands, o.technique)
}

// allocateExact solves the same formulation with binary variables.
func (o *Optimizer) allocateExact(ctx context.Context, req Request) ([]*content.News, error) {
	cands := o.selector.Select(req.Pool.Items(), req.Qualities, len(o.prominences))
	prob, err := o.buildAssignmentProblem(cands, req.Qualities)
	if err != nil {
		return nil, err
	}
	x, err := lpsolve.SolveInteger(ctx, prob, lpsolve.Binary(prob.NumVars()))
	if err != nil {
		return nil, err
	}
	return o.integralLayout(x, cands), nil
}

// buildAssignmentProblem lays variables out candidate-major: candidate g
// owns the contiguous slot entries [g*L, (g+1)*L).
func (o *Optimizer) buildAssignmentProblem(cands []*content.News, q content.Qualities) (*lpsolve.Problem, error) {
	L := len(o.prominences)
	n := len(cands) * L
	prob := lpsolve.NewProblem(n)

	c := make([]float64, n)
	for g, cand := range cands {
		for s, w := range o.prominences {
			c[g*L+s] = -q[cand.ID] * w
		}
	}
	if err := prob.SetObjective(c); err != nil {
		return nil, err
	}

	ones := make([]float64, len(cands))
	for i := range ones {
		ones[i] = 1
	}
	families := []lpsolve.ConstraintFamily{
		lpsolve.ProminenceFloor{
			BlockSizes: o.categoryBlockSizes(cands),
			Weights:    o.prominences,
			Bounds:     o.bounds,
		},
		lpsolve.SlotCapacity{Slots: L, Limit: 1},
		lpsolve.BlockCapacity{BlockSize: L, Limits: ones},
	}
	for _, f := range families {
		if err := prob.Add(f); err != nil {
			return nil, err
		}
	}
	return prob, nil
}

// categoryBlockSizes counts candidates per category; cands must already be
// sorted by category in set order.
func (o *Optimizer) categoryBlockSizes(cands []*content.News) []int {
	sizes := make([]int, len(o.categories))
	for _, n := range cands {
		sizes[o.catIndex[n.Category]]++
	}
	return sizes
}

// sliceBySlot regroups the flat candidate-major solution into one
// probability vector per slot.
func (o *Optimizer) sliceBySlot(x []float64, numCands int) [][]float64 {
	L := len(o.prominences)
	probs := make([][]float64, L)
	for s := 0; s < L; s++ {
		row := make([]float64, numCands)
		for g := 0; g < numCands; g++ {
			row[g] = x[g*L+s]
		}
		probs[s] = row
	}
	return probs
}

// integralLayout reads a binary solution into a layout, filling any slot
// the solver left empty with the first unused candidate.
func (o *Optimizer) integralLayout(x []float64, cands []*content.News) []*content.News {
	L := len(o.prominences)
	layout := make([]*content.News, L)
	used := make(map[int]bool, L)
	for s := 0; s < L; s++ {
		for g := range cands {
			if x[g*L+s] > 0.5 && !used[g] {
				layout[s] = cands[g]
				used[g] = true
				break
			}
		}
	}
	for s := 0; s < L; s++ {
		if layout[s] != nil {
			continue
		}
		for g := range cands {
			if !used[g] {
				layout[s] = cands[g]
				used[g] = true
				break
			}
		}
	}
	return layout
}

// measureErrors records empirical diversity errors for all three rounding
// techniques when measurement is enabled.
func (o *Optimizer) measureErrors(probs [][]float64, cands []*content.News) {
	if o.errorTrials <= 0 {
		return
	}
	for _, t := range []Technique{Rand1, Rand2, Rand3} {
		e, err := o.derand.MeasureDiversityError(probs, cands, o.categories, o.bounds, t, o.errorTrials)
		if err != nil {
			o.log.Warn().Err(err).Stringer("technique", t).Msg("diversity error measurement failed")
			continue
		}
		o.errorSeries[t] = append(o.errorSeries[t], e)
	}
}

func fitBounds(bounds []float64, want int) []float64 {
	if len(bounds) >= want {
		return bounds[:want]
	}
	out := append([]float64(nil), bounds...)
	last := 0.0
	if len(out) > 0 {
		last = out[len(out)-1]
	}
	for len(out) < want {
		out = append(out, last)
	}
	return out
}

func poolLen(p *content.NewsPool) int {
	if p == nil {
		return 0
	}
	return p.Len()
}
