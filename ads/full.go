package ads

import (
	"context"

	"github.com/n0madic/go-page-bandits/content"
	"github.com/n0madic/go-page-bandits/lpsolve"
)

// solveFull runs the per-candidate binary ILP. Candidates are the top S ads
// of each category by sampled quality, where S is the ad slot count. The
// objective weighs each candidate's quality by slot prominence and by the
// prominence share its category received in the news layout, so ads follow
// the user's demonstrated interests.
//
// Competitor exclusion is encoded with big-M rows: when an excluding
// candidate is assigned anywhere, no other ad of its category fits the page.
func (a *Allocator) solveFull(ctx context.Context, pool *content.AdsPool, qualities content.Qualities, newsLayout []*content.News) ([]*content.Ad, error) {
	S := len(a.prominences)
	share := a.categoryShare(newsLayout)
	cands := a.candidates(pool.Items(), qualities, S)

	n := len(cands) * S
	prob := lpsolve.NewProblem(n)

	obj := make([]float64, n)
	for g, ad := range cands {
		coeff := -a.score(ad, qualities) * share[a.catIndex[ad.Category]]
		for s, w := range a.prominences {
			obj[g*S+s] = coeff * w
		}
	}
	if err := prob.SetObjective(obj); err != nil {
		return nil, err
	}

	ones := make([]float64, len(cands))
	for i := range ones {
		ones[i] = 1
	}
	families := []lpsolve.ConstraintFamily{
		lpsolve.SlotCapacity{Slots: S, Limit: 1},
		lpsolve.BlockCapacity{BlockSize: S, Limits: ones},
	}
	if excl := a.exclusionRows(cands, S); len(excl) > 0 {
		families = append(families, lpsolve.Raw{FamilyName: "competitor-exclusion", R: excl})
	}
	for _, f := range families {
		if err := prob.Add(f); err != nil {
			return nil, err
		}
	}

	x, err := lpsolve.SolveInteger(ctx, prob, lpsolve.Binary(n))
	if err != nil {
		return nil, err
	}

	var winners []*content.Ad
	for s := 0; s < S; s++ {
		for g := range cands {
			if x[g*S+s] > 0.5 {
				winners = append(winners, cands[g])
				break
			}
		}
	}
	return winners, nil
}

// exclusionRows emits one row per excluding candidate: coefficient bigM on
// the candidate's own slot variables, 1 on every other same-category
// variable, right-hand side bigM. Assigning the excluder saturates the row,
// forcing all same-category siblings off the page.
func (a *Allocator) exclusionRows(cands []*content.Ad, S int) []lpsolve.Row {
	var rows []lpsolve.Row
	for g, ad := range cands {
		if !ad.ExcludeCompetitors {
			continue
		}
		coeffs := make([]float64, len(cands)*S)
		for h, other := range cands {
			if other.Category != ad.Category {
				continue
			}
			c := 1.0
			if h == g {
				c = bigM
			}
			for s := 0; s < S; s++ {
				coeffs[h*S+s] = c
			}
		}
		rows = append(rows, lpsolve.Row{Coeffs: coeffs, RHS: bigM})
	}
	return rows
}
