package allocation

import (
	"math/rand/v2"
	"sort"

	"github.com/rs/zerolog"

	"github.com/n0madic/go-page-bandits/content"
)

// CandidateSelector narrows a pool to a bounded working subset before an
// optimizer sees it: the top-k sampled items per category, padded with
// random items when a category is under-supplied.
type CandidateSelector struct {
	categories []content.Category
	rng        *rand.Rand
	log        zerolog.Logger
}

// NewCandidateSelector creates a selector over the category set.
func NewCandidateSelector(categories []content.Category, rng *rand.Rand, log zerolog.Logger) *CandidateSelector {
	return &CandidateSelector{categories: categories, rng: rng, log: log}
}

// Select returns up to k items per category sorted by (category, quality
// desc), padded with uniformly random distinct pool items when categories
// run short. Padding degrades solution optimality but never fails;
// duplicates appear only when the pool itself is smaller than required.
func (cs *CandidateSelector) Select(pool []*content.News, qualities content.Qualities, k int) []*content.News {
	index := content.CategoryIndex(cs.categories)
	byCategory := make(map[content.Category][]*content.News, len(cs.categories))
	for _, n := range pool {
		byCategory[n.Category] = append(byCategory[n.Category], n)
	}

	want := k * len(cs.categories)
	selected := make([]*content.News, 0, want)
	chosen := make(map[int]bool, want)
	short := false
	for _, c := range cs.categories {
		items := byCategory[c]
		sort.SliceStable(items, func(i, j int) bool {
			return qualities[items[i].ID] > qualities[items[j].ID]
		})
		if len(items) > k {
			items = items[:k]
		} else if len(items) < k {
			short = true
			cs.log.Warn().
				Str("category", string(c)).
				Int("have", len(items)).
				Int("want", k).
				Msg("under-supplied category, padding candidate set at random")
		}
		for _, n := range items {
			selected = append(selected, n)
			chosen[n.ID] = true
		}
	}

	if short {
		selected = cs.pad(selected, pool, chosen, want)
	}

	// Constraint blocks are laid out in category set order, so the final
	// sort must follow the set, not the names.
	sort.SliceStable(selected, func(i, j int) bool {
		return index[selected[i].Category] < index[selected[j].Category]
	})
	return selected
}

func (cs *CandidateSelector) pad(selected, pool []*content.News, chosen map[int]bool, want int) []*content.News {
	distinctLeft := 0
	for _, n := range pool {
		if !chosen[n.ID] {
			distinctLeft++
		}
	}
	for len(selected) < want {
		n := pool[cs.rng.IntN(len(pool))]
		if chosen[n.ID] && distinctLeft > 0 {
			continue
		}
		if !chosen[n.ID] {
			distinctLeft--
		}
		chosen[n.ID] = true
		selected = append(selected, n)
	}
	return selected
}
