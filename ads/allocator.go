// Package ads allocates advertisements into their own slot sequence. The
// formulation mirrors the news assignment ILP but adds big-M
// competitor-exclusion constraints and a probabilistic display filter, and
// its sampled qualities can be renormalized against sibling user-segment
// learners competing for the same inventory.
package ads

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/rs/zerolog"

	"github.com/n0madic/go-page-bandits/content"
	"github.com/n0madic/go-page-bandits/wbeta"
)

// bigM is the penalty constant encoding competitor exclusion in ILP form.
const bigM = 1000

// ConstraintMode selects the ILP formulation.
type ConstraintMode int

const (
	// FullILP uses binary variables per (category, candidate, slot).
	FullILP ConstraintMode = iota
	// RestrictedILP collapses candidates into (category, exclusion-flag)
	// buckets, linear in both categories and slots.
	RestrictedILP
)

// ParseConstraintMode maps configuration names onto modes.
func ParseConstraintMode(s string) (ConstraintMode, error) {
	switch s {
	case "full-ilp":
		return FullILP, nil
	case "restricted-ilp":
		return RestrictedILP, nil
	}
	return 0, fmt.Errorf("ads: unknown constraint mode %q", s)
}

// DisplayPolicy decides whether a winning ad is actually shown.
type DisplayPolicy int

const (
	// GreedyDisplay shows every winner.
	GreedyDisplay DisplayPolicy = iota
	// PDDA shows a winner with probability 0.5; withheld winners become
	// buyers and display unconditionally next time they win.
	PDDA
	// WPDDA shows a winner with probability equal to its own sampled
	// quality, with the same buyer carry-forward.
	WPDDA
)

// ParseDisplayPolicy maps configuration names onto policies.
func ParseDisplayPolicy(s string) (DisplayPolicy, error) {
	switch s {
	case "greedy":
		return GreedyDisplay, nil
	case "pdda":
		return PDDA, nil
	case "wpdda":
		return WPDDA, nil
	}
	return 0, fmt.Errorf("ads: unknown display policy %q", s)
}

// Allocator computes advertisement layouts against a weighted-Beta reward
// model it shares with its owning learner.
type Allocator struct {
	categories      []content.Category
	catIndex        map[content.Category]int
	prominences     []float64 // ad slots
	newsProminences []float64 // news slots, for the category-share signal
	mode            ConstraintMode
	policy          DisplayPolicy
	maximizeForBids bool
	model           *wbeta.WeightedBeta
	siblings        []content.QualityOracle
	rng             *rand.Rand
	log             zerolog.Logger
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithConstraintMode selects the formulation (default FullILP).
func WithConstraintMode(m ConstraintMode) Option {
	return func(a *Allocator) { a.mode = m }
}

// WithDisplayPolicy selects the display filter (default WPDDA).
func WithDisplayPolicy(p DisplayPolicy) Option {
	return func(a *Allocator) { a.policy = p }
}

// WithBidMaximization weighs sampled qualities by each ad's bid.
func WithBidMaximization(on bool) Option {
	return func(a *Allocator) { a.maximizeForBids = on }
}

// WithSiblings attaches read-only quality oracles of other user segments;
// winners' qualities are renormalized against the siblings' samples.
func WithSiblings(siblings []content.QualityOracle) Option {
	return func(a *Allocator) { a.siblings = siblings }
}

// WithRand sets the random source.
func WithRand(rng *rand.Rand) Option {
	return func(a *Allocator) { a.rng = rng }
}

// WithLogger sets the warning logger.
func WithLogger(log zerolog.Logger) Option {
	return func(a *Allocator) { a.log = log }
}

// New builds an ads allocator over the category set, the ad-slot and
// news-slot prominence vectors and the shared ads reward model.
func New(categories []content.Category, adProminences, newsProminences []float64, model *wbeta.WeightedBeta, options ...Option) (*Allocator, error) {
	if len(categories) == 0 {
		return nil, errors.New("ads: empty category set")
	}
	if len(adProminences) == 0 {
		return nil, errors.New("ads: empty ad slot prominence vector")
	}
	for i, p := range adProminences {
		if p < 0 || p > 1 {
			return nil, fmt.Errorf("ads: slot %d prominence %v outside [0,1]", i, p)
		}
	}
	if model == nil {
		return nil, errors.New("ads: nil reward model")
	}
	if model.Slots() != len(adProminences) {
		return nil, fmt.Errorf("ads: reward model covers %d slots, want %d", model.Slots(), len(adProminences))
	}
	a := &Allocator{
		categories:      categories,
		catIndex:        content.CategoryIndex(categories),
		prominences:     append([]float64(nil), adProminences...),
		newsProminences: append([]float64(nil), newsProminences...),
		policy:          WPDDA,
		model:           model,
	}
	for _, opt := range options {
		opt(a)
	}
	if a.rng == nil {
		a.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return a, nil
}

// Allocate selects ads for the page, consuming the finalized news layout as
// a category-affinity signal. Winners pass the display policy; displayed ads
// leave the pool and are recorded in the reward model at their final
// position. The returned layout may be shorter than the slot count when a
// probabilistic policy withholds winners.
func (a *Allocator) Allocate(ctx context.Context, pool *content.AdsPool, newsLayout []*content.News) ([]*content.Ad, error) {
	if pool == nil || pool.Len() < len(a.prominences) {
		return nil, fmt.Errorf("ads: %d ads for %d slots: %w", adsLen(pool), len(a.prominences), content.ErrInsufficientInventory)
	}

	qualities := make(content.Qualities, pool.Len())
	for _, ad := range pool.Items() {
		q, err := a.model.Sample(ad.Category)
		if err != nil {
			return nil, err
		}
		qualities[ad.ID] = q
	}

	var (
		winners []*content.Ad
		err     error
	)
	switch a.mode {
	case FullILP:
		winners, err = a.solveFull(ctx, pool, qualities, newsLayout)
	case RestrictedILP:
		winners, err = a.solveRestricted(ctx, pool, qualities)
	default:
		return nil, fmt.Errorf("ads: unknown constraint mode %v", a.mode)
	}
	if err != nil {
		return nil, err
	}

	a.renormalize(winners, qualities)
	final := a.applyDisplayPolicy(winners, qualities)

	a.remove(pool, final)
	for i, ad := range final {
		if err := a.model.Allocate(ad.Category, i); err != nil {
			return nil, err
		}
	}
	return final, nil
}

// renormalize divides each winner's sampled quality by the sum of its own
// sample and the sibling segments' samples, modeling competition for one
// shared inventory. Sibling lookups are read-only.
func (a *Allocator) renormalize(winners []*content.Ad, qualities content.Qualities) {
	if len(a.siblings) == 0 {
		return
	}
	for _, ad := range winners {
		own := qualities[ad.ID]
		total := own
		for _, sib := range a.siblings {
			total += sib.SampleAdQuality(ad)
		}
		if total > 0 {
			qualities[ad.ID] = own / total
		}
	}
}

func (a *Allocator) applyDisplayPolicy(winners []*content.Ad, qualities content.Qualities) []*content.Ad {
	var final []*content.Ad
	for _, ad := range winners {
		switch {
		case a.policy == GreedyDisplay, ad.Buyer():
			final = append(final, ad)
		default:
			p := 0.5
			if a.policy == WPDDA {
				p = qualities[ad.ID]
			}
			if a.rng.Float64() < p {
				final = append(final, ad)
			} else {
				ad.SetBuyer()
			}
		}
	}
	return final
}

func (a *Allocator) remove(pool *content.AdsPool, displayed []*content.Ad) {
	if len(displayed) > 0 {
		pool.Remove(displayed)
	}
}

// candidates picks the top ads per category by sampled quality (or
// quality·bid), sorted by category in set order. Under-supplied categories
// yield fewer candidates with a warning; the constraint system adapts.
func (a *Allocator) candidates(items []*content.Ad, qualities content.Qualities, k int) []*content.Ad {
	byCategory := make(map[content.Category][]*content.Ad, len(a.categories))
	for _, ad := range items {
		byCategory[ad.Category] = append(byCategory[ad.Category], ad)
	}
	var out []*content.Ad
	for _, c := range a.categories {
		group := byCategory[c]
		sort.SliceStable(group, func(i, j int) bool {
			return a.score(group[i], qualities) > a.score(group[j], qualities)
		})
		if len(group) > k {
			group = group[:k]
		} else if len(group) < k {
			a.log.Warn().
				Str("category", string(c)).
				Int("have", len(group)).
				Int("want", k).
				Msg("under-supplied ad category, allocation may be sub-optimal")
		}
		out = append(out, group...)
	}
	return out
}

func (a *Allocator) score(ad *content.Ad, qualities content.Qualities) float64 {
	if a.maximizeForBids {
		return qualities[ad.ID] * ad.Bid
	}
	return qualities[ad.ID]
}

// categoryShare measures the prominence fraction each category received in
// the finalized news layout.
func (a *Allocator) categoryShare(newsLayout []*content.News) []float64 {
	share := make([]float64, len(a.categories))
	total := 0.0
	for _, w := range a.newsProminences {
		total += w
	}
	if total <= 0 {
		return share
	}
	for i, n := range newsLayout {
		if n == nil || i >= len(a.newsProminences) {
			continue
		}
		share[a.catIndex[n.Category]] += a.newsProminences[i]
	}
	for i := range share {
		share[i] /= total
	}
	return share
}

func adsLen(p *content.AdsPool) int {
	if p == nil {
		return 0
	}
	return p.Len()
}
