package ads

import (
	"context"

	"github.com/n0madic/go-page-bandits/content"
	"github.com/n0madic/go-page-bandits/lpsolve"
)

// solveRestricted runs the compressed formulation: integer variables per
// (category, exclusion-flag, slot) bucket rather than per ad, so the problem
// size is independent of the pool. A bucket's objective coefficient is one
// posterior sample of its category; winning buckets are resolved into
// concrete ads drawn uniformly without repetition. Much faster than the full
// ILP and the recommended production mode.
func (a *Allocator) solveRestricted(ctx context.Context, pool *content.AdsPool, qualities content.Qualities) ([]*content.Ad, error) {
	S := len(a.prominences)
	numBuckets := 2 * len(a.categories)
	n := numBuckets * S
	prob := lpsolve.NewProblem(n)

	// Bucket b = 2*category + exclusionFlag, variables bucket-major.
	obj := make([]float64, n)
	caps := make([]float64, numBuckets)
	for c, cat := range a.categories {
		for e := 0; e < 2; e++ {
			b := c*2 + e
			card := len(pool.Bucket(cat, e == 1))
			caps[b] = float64(min(card, S))
			sample := 1.0
			if card > 0 {
				var err error
				if sample, err = a.model.Sample(cat); err != nil {
					return nil, err
				}
			}
			for s, w := range a.prominences {
				obj[b*S+s] = -sample * w
			}
		}
	}
	if err := prob.SetObjective(obj); err != nil {
		return nil, err
	}

	families := []lpsolve.ConstraintFamily{
		lpsolve.SlotCapacity{Slots: S, Limit: 1},
		lpsolve.BlockCapacity{BlockSize: S, Limits: caps},
		lpsolve.Raw{FamilyName: "competitor-exclusion", R: a.restrictedExclusionRows(S)},
	}
	for _, f := range families {
		if err := prob.Add(f); err != nil {
			return nil, err
		}
	}

	x, err := lpsolve.SolveInteger(ctx, prob, lpsolve.BoundedInteger(n, float64(S)))
	if err != nil {
		return nil, err
	}
	return a.resolveBuckets(x, pool, S, numBuckets), nil
}

// restrictedExclusionRows emits one row per category over both of its
// buckets: coefficient 1+bigM on the excluding bucket, 1 on the plain one,
// right-hand side 1+bigM. Placing one excluding ad exhausts the row, so at
// most one ad of the category appears and it is the excluder.
func (a *Allocator) restrictedExclusionRows(S int) []lpsolve.Row {
	numBuckets := 2 * len(a.categories)
	rows := make([]lpsolve.Row, 0, len(a.categories))
	for c := range a.categories {
		coeffs := make([]float64, numBuckets*S)
		for s := 0; s < S; s++ {
			coeffs[(c*2)*S+s] = 1
			coeffs[(c*2+1)*S+s] = 1 + bigM
		}
		rows = append(rows, lpsolve.Row{Coeffs: coeffs, RHS: 1 + bigM})
	}
	return rows
}

// resolveBuckets turns the integral bucket solution into concrete ads. For
// each slot the first bucket with a positive variable wins and one of its
// ads not yet placed is drawn uniformly; a slot whose bucket is exhausted
// stays empty and is dropped from the layout.
func (a *Allocator) resolveBuckets(x []float64, pool *content.AdsPool, S, numBuckets int) []*content.Ad {
	used := make(map[int]bool, S)
	var winners []*content.Ad
	for s := 0; s < S; s++ {
		for b := 0; b < numBuckets; b++ {
			if x[b*S+s] < 0.5 {
				continue
			}
			bucket := pool.Bucket(a.categories[b/2], b%2 == 1)
			if ad := a.drawUnused(bucket, used); ad != nil {
				used[ad.ID] = true
				winners = append(winners, ad)
			}
			break
		}
	}
	return winners
}

func (a *Allocator) drawUnused(bucket []*content.Ad, used map[int]bool) *content.Ad {
	free := make([]*content.Ad, 0, len(bucket))
	for _, ad := range bucket {
		if !used[ad.ID] {
			free = append(free, ad)
		}
	}
	if len(free) == 0 {
		return nil
	}
	return free[a.rng.IntN(len(free))]
}
