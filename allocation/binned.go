package allocation

import (
	"errors"
	"fmt"

	"github.com/n0madic/go-page-bandits/content"
	"github.com/n0madic/go-page-bandits/lpsolve"
)

// allocateBinned solves the compressed LP: one variable per (category,
// state-bucket, slot) bin instead of per item, so the problem size is
// independent of pool size. A bin's objective coefficient is a single
// posterior sample from its grid cell; the fractional solution is resolved
// slot by slot into concrete items drawn uniformly from the winning bin.
// The same item may win several slots; the caller handles such doubled
// allocations.
func (o *Optimizer) allocateBinned(req Request) ([]*content.News, error) {
	if req.Locate == nil {
		return nil, errors.New("allocation: compressed-lp requires a state-bucket locator")
	}
	L := len(o.prominences)
	positions := o.grid.BinPositions()
	numBins := len(positions)
	posIndex := make(map[[2]int]int, numBins)
	for i, p := range positions {
		posIndex[p] = i
	}

	// Group the pool into bins. Items in skipped grid positions (clicked
	// before ever observed) are not allocatable through this formulation.
	bins := make([][][]*content.News, len(o.categories))
	for c := range bins {
		bins[c] = make([][]*content.News, numBins)
	}
	for _, n := range req.Pool.Items() {
		row, col := req.Locate(n)
		bi, ok := posIndex[[2]int{row, col}]
		if !ok {
			continue
		}
		c := o.catIndex[n.Category]
		bins[c][bi] = append(bins[c][bi], n)
	}

	n := len(o.categories) * numBins * L
	prob := lpsolve.NewProblem(n)

	obj := make([]float64, n)
	caps := make([]float64, len(o.categories)*numBins)
	for c := range o.categories {
		for bi, pos := range positions {
			block := c*numBins + bi
			card := len(bins[c][bi])
			caps[block] = float64(min(card, L))
			if card == 0 {
				continue // empty bin: zero objective, zero capacity
			}
			sample, err := o.grid.Cell(pos[0], pos[1]).Sample(o.categories[c])
			if err != nil {
				return nil, err
			}
			for s, w := range o.prominences {
				obj[block*L+s] = -sample * w
			}
		}
	}
	if err := prob.SetObjective(obj); err != nil {
		return nil, err
	}

	blockSizes := make([]int, len(o.categories))
	for i := range blockSizes {
		blockSizes[i] = numBins
	}
	families := []lpsolve.ConstraintFamily{
		lpsolve.BlockCapacity{BlockSize: L, Limits: caps},
		lpsolve.SlotCapacity{Slots: L, Limit: 1},
		lpsolve.ProminenceFloor{BlockSizes: blockSizes, Weights: o.prominences, Bounds: o.bounds},
	}
	for _, f := range families {
		if err := prob.Add(f); err != nil {
			return nil, err
		}
	}

	x, _, err := lpsolve.Solve(prob)
	if err != nil {
		return nil, err
	}
	return o.resolveBins(x, bins, positions)
}

// resolveBins walks slots per the configured order, samples a bin for each
// slot proportionally to its resolved probability, then draws a concrete
// item uniformly from the winning bin.
func (o *Optimizer) resolveBins(x []float64, bins [][][]*content.News, positions [][2]int) ([]*content.News, error) {
	L := len(o.prominences)
	numBins := len(positions)
	totalBins := len(o.categories) * numBins

	layout := make([]*content.News, L)
	remaining := append([]float64(nil), o.prominences...)
	for step := 0; step < L; step++ {
		var k int
		switch o.binOrder {
		case Ordered:
			k = step
		case GreedyOrder:
			// Processed slots drop below zero so a zero-prominence slot
			// still gets its turn.
			k = argmax(remaining)
			remaining[k] = -1
		case RandomizedOrder:
			var err error
			k, err = sampleProportional(o.rng, remaining)
			if err != nil {
				// Only zero-prominence slots are left; take the next one.
				k = argmax(remaining)
			}
			remaining[k] = -1
		default:
			return nil, fmt.Errorf("allocation: unknown slot order %v", o.binOrder)
		}

		weights := make([]float64, totalBins)
		for b := 0; b < totalBins; b++ {
			if len(bins[b/numBins][b%numBins]) > 0 {
				weights[b] = x[b*L+k]
			}
		}
		b, err := sampleProportional(o.rng, weights)
		if err != nil {
			// The LP gave this slot nothing; draw uniformly over non-empty
			// bins so the page still fills.
			for i := range weights {
				if len(bins[i/numBins][i%numBins]) > 0 {
					weights[i] = 1
				}
			}
			if b, err = sampleProportional(o.rng, weights); err != nil {
				return nil, errors.New("allocation: no allocatable bins")
			}
		}
		bin := bins[b/numBins][b%numBins]
		layout[k] = bin[o.rng.IntN(len(bin))]
	}
	return layout, nil
}
