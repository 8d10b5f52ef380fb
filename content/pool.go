package content

import (
	"errors"
	"fmt"
)

// ErrUnsupportedCategory is returned when an item with a category outside
// the pool's configured set is inserted.
var ErrUnsupportedCategory = errors.New("unsupported category")

// ErrInsufficientInventory is returned when an entire pool holds fewer
// items than the page has slots. Per-category shortage is recoverable; a
// globally exhausted pool is not.
var ErrInsufficientInventory = errors.New("pool smaller than slot count")

// NewsPool holds the articles currently available for allocation.
type NewsPool struct {
	categories map[Category]int
	items      []*News
}

// NewNewsPool creates an empty pool accepting only the given categories.
func NewNewsPool(categories []Category) *NewsPool {
	return &NewsPool{categories: CategoryIndex(categories)}
}

// Fill inserts items into the pool. With append=false the pool content is
// replaced wholesale. Items with a foreign category are rejected and the
// pool is left untouched.
func (p *NewsPool) Fill(items []*News, appendItems bool) error {
	for _, n := range items {
		if _, ok := p.categories[n.Category]; !ok {
			return fmt.Errorf("news %d: category %q: %w", n.ID, n.Category, ErrUnsupportedCategory)
		}
	}
	if appendItems {
		p.items = append(p.items, items...)
		return nil
	}
	p.items = append([]*News(nil), items...)
	return nil
}

// Add inserts a single article.
func (p *NewsPool) Add(n *News) error {
	return p.Fill([]*News{n}, true)
}

// Remove deletes every pool entry present in the given list.
func (p *NewsPool) Remove(items []*News) {
	drop := make(map[int]bool, len(items))
	for _, n := range items {
		drop[n.ID] = true
	}
	kept := p.items[:0]
	for _, n := range p.items {
		if !drop[n.ID] {
			kept = append(kept, n)
		}
	}
	p.items = kept
}

// Items returns the live backing slice. Callers must not mutate it; copy
// before sorting.
func (p *NewsPool) Items() []*News { return p.items }

// Len returns the number of pooled articles.
func (p *NewsPool) Len() int { return len(p.items) }

// AdsPool holds the advertisements currently available, additionally
// bucketed by (category, competitor-exclusion flag) for the restricted ads
// formulation.
type AdsPool struct {
	categories map[Category]int
	items      []*Ad
	// buckets[category][0] holds non-excluding ads, [1] the excluding ones.
	buckets map[Category][2][]*Ad
}

// NewAdsPool creates an empty ads pool accepting only the given categories.
func NewAdsPool(categories []Category) *AdsPool {
	return &AdsPool{
		categories: CategoryIndex(categories),
		buckets:    make(map[Category][2][]*Ad),
	}
}

// Fill inserts ads into the pool, maintaining the exclusion buckets. With
// append=false the pool content is replaced wholesale.
func (p *AdsPool) Fill(items []*Ad, appendItems bool) error {
	for _, a := range items {
		if _, ok := p.categories[a.Category]; !ok {
			return fmt.Errorf("ad %d: category %q: %w", a.ID, a.Category, ErrUnsupportedCategory)
		}
	}
	if !appendItems {
		p.items = nil
		p.buckets = make(map[Category][2][]*Ad)
	}
	for _, a := range items {
		p.items = append(p.items, a)
		b := p.buckets[a.Category]
		b[exclusionIndex(a)] = append(b[exclusionIndex(a)], a)
		p.buckets[a.Category] = b
	}
	return nil
}

// Remove deletes the given ads from the pool and its buckets.
func (p *AdsPool) Remove(items []*Ad) {
	drop := make(map[int]bool, len(items))
	for _, a := range items {
		drop[a.ID] = true
	}
	kept := p.items[:0]
	for _, a := range p.items {
		if !drop[a.ID] {
			kept = append(kept, a)
		}
	}
	p.items = kept
	for _, a := range items {
		b := p.buckets[a.Category]
		i := exclusionIndex(a)
		src := b[i]
		dst := src[:0]
		for _, e := range src {
			if e.ID != a.ID {
				dst = append(dst, e)
			}
		}
		b[i] = dst
		p.buckets[a.Category] = b
	}
}

// Bucket returns the ads of one category sharing an exclusion flag.
func (p *AdsPool) Bucket(c Category, excluded bool) []*Ad {
	b := p.buckets[c]
	if excluded {
		return b[1]
	}
	return b[0]
}

// Items returns the live backing slice. Callers must not mutate it.
func (p *AdsPool) Items() []*Ad { return p.items }

// Len returns the number of pooled ads.
func (p *AdsPool) Len() int { return len(p.items) }

func exclusionIndex(a *Ad) int {
	if a.ExcludeCompetitors {
		return 1
	}
	return 0
}
