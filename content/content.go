// Package content defines the items flowing through the allocation engine:
// news articles, advertisements, the pools that hold them and the per-user
// interaction history that drives reward-model selection.
package content

// Category identifies the topic of a news article or an advertisement.
// Every learner owns a fixed, ordered category set; items with a category
// outside that set are rejected at pool-fill time.
type Category string

// News is a single article. News items are reusable: allocating one to a
// page slot does not remove it from the pool.
type News struct {
	ID       int
	Name     string
	Category Category
}

// Ad is a single advertisement. Ads are single-use: once displayed they
// leave the pool. ExcludeCompetitors marks an advertiser that must never
// share a page with another ad of the same category.
type Ad struct {
	ID                 int
	Name               string
	Category           Category
	Bid                float64
	ExcludeCompetitors bool

	buyer bool
}

// Buyer reports whether the ad was selected in an earlier round but withheld
// by a probabilistic display policy. A buyer displays unconditionally the
// next time it is selected.
func (a *Ad) Buyer() bool { return a.buyer }

// SetBuyer marks the ad as withheld-but-paid.
func (a *Ad) SetBuyer() { a.buyer = true }

// Qualities is the per-round side-table of sampled click probabilities,
// keyed by item id. It is recomputed from scratch on every allocation round
// so no stale sample survives between rounds.
type Qualities map[int]float64

// QualityOracle is the read-only capability a learner exposes to sibling
// user-segment learners for competitive ad-quality renormalization. It must
// never mutate the owning learner's state.
type QualityOracle interface {
	SampleAdQuality(ad *Ad) float64
}

// CategoryIndex builds the category -> position lookup for an ordered set.
func CategoryIndex(categories []Category) map[Category]int {
	idx := make(map[Category]int, len(categories))
	for i, c := range categories {
		idx[c] = i
	}
	return idx
}
