package allocation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/n0madic/go-page-bandits/content"
	"github.com/n0madic/go-page-bandits/lpsolve"
)

// allocateFull solves the uncompressed formulation: one variable per
// (pool item, slot) pair with no candidate pre-selection. Problem size
// grows with the pool; kept for benchmarking the other strategies.
//
// The constraint matrix only depends on the per-category pool composition,
// so it is cached and rebuilt when the composition changes.
func (o *Optimizer) allocateFull(req Request) ([]*content.News, error) {
	items := append([]*content.News(nil), req.Pool.Items()...)
	sort.SliceStable(items, func(i, j int) bool {
		return o.catIndex[items[i].Category] < o.catIndex[items[j].Category]
	})

	base, err := o.fullProblem(items)
	if err != nil {
		return nil, err
	}
	prob := base.Clone()

	L := len(o.prominences)
	obj := make([]float64, len(items)*L)
	for g, n := range items {
		for s, w := range o.prominences {
			obj[g*L+s] = -req.Qualities[n.ID] * w
		}
	}
	if err := prob.SetObjective(obj); err != nil {
		return nil, err
	}

	x, _, err := lpsolve.Solve(prob)
	if err != nil {
		return nil, err
	}
	probs := o.sliceBySlot(x, len(items))
	o.measureErrors(probs, items)
	return o.derand.Run(CopyProbabilities(probs), items, o.technique)
}

func (o *Optimizer) fullProblem(items []*content.News) (*lpsolve.Problem, error) {
	sizes := o.categoryBlockSizes(items)
	key := fullCacheKey(sizes)
	if o.fullBase != nil && o.fullKey == key {
		return o.fullBase, nil
	}

	L := len(o.prominences)
	prob := lpsolve.NewProblem(len(items) * L)
	ones := make([]float64, len(items))
	for i := range ones {
		ones[i] = 1
	}
	families := []lpsolve.ConstraintFamily{
		lpsolve.ProminenceFloor{BlockSizes: sizes, Weights: o.prominences, Bounds: o.bounds},
		lpsolve.SlotCapacity{Slots: L, Limit: 1},
		lpsolve.BlockCapacity{BlockSize: L, Limits: ones},
	}
	for _, f := range families {
		if err := prob.Add(f); err != nil {
			return nil, err
		}
	}
	o.fullKey = key
	o.fullBase = prob
	return prob, nil
}

func fullCacheKey(sizes []int) string {
	var b strings.Builder
	for _, s := range sizes {
		fmt.Fprintf(&b, "%d,", s)
	}
	return b.String()
}
