package allocation

import (
	"math/rand/v2"
	"testing"

	"github.com/rs/zerolog"

	"github.com/n0madic/go-page-bandits/content"
)

// Deliberately not in lexicographic order: selection output must follow the
// set order, because the constraint blocks do.
var selectorCategories = []content.Category{"tech", "art"}

func newTestSelector() *CandidateSelector {
	return NewCandidateSelector(selectorCategories, rand.New(rand.NewPCG(3, 4)), zerolog.Nop())
}

func TestSelectTopKPerCategory(t *testing.T) {
	pool := []*content.News{
		{ID: 1, Category: "art"},
		{ID: 2, Category: "art"},
		{ID: 3, Category: "art"},
		{ID: 4, Category: "tech"},
		{ID: 5, Category: "tech"},
		{ID: 6, Category: "tech"},
	}
	qualities := content.Qualities{1: 0.3, 2: 0.9, 3: 0.5, 4: 0.1, 5: 0.8, 6: 0.4}

	got := newTestSelector().Select(pool, qualities, 2)
	if len(got) != 4 {
		t.Fatalf("Select() returned %d items, want 4", len(got))
	}

	// Set order first (tech before art), quality-descending inside each.
	wantIDs := []int{5, 6, 2, 3}
	for i, n := range got {
		if n.ID != wantIDs[i] {
			t.Errorf("Select()[%d] = news %d, want %d", i, n.ID, wantIDs[i])
		}
	}
}

func TestSelectPadsUnderSuppliedCategory(t *testing.T) {
	pool := []*content.News{
		{ID: 1, Category: "art"},
		{ID: 2, Category: "art"},
		{ID: 3, Category: "art"},
		{ID: 4, Category: "art"},
		{ID: 5, Category: "tech"},
	}
	qualities := content.Qualities{1: 0.4, 2: 0.3, 3: 0.2, 4: 0.1, 5: 0.5}

	got := newTestSelector().Select(pool, qualities, 3)
	if len(got) != 6 {
		t.Fatalf("Select() returned %d items, want 6", len(got))
	}

	// The pool has 5 distinct items for 6 wanted, so exactly one duplicate
	// is allowed; the rest must be distinct.
	seen := make(map[int]int)
	for _, n := range got {
		seen[n.ID]++
	}
	if len(seen) != 5 {
		t.Errorf("Select() used %d distinct items, want all 5", len(seen))
	}
}

func TestSelectPadsDistinctWhenPoolSuffices(t *testing.T) {
	pool := []*content.News{
		{ID: 1, Category: "art"},
		{ID: 2, Category: "art"},
		{ID: 3, Category: "art"},
		{ID: 4, Category: "art"},
	}
	qualities := content.Qualities{1: 0.4, 2: 0.3, 3: 0.2, 4: 0.1}

	got := newTestSelector().Select(pool, qualities, 2)
	if len(got) != 4 {
		t.Fatalf("Select() returned %d items, want 4", len(got))
	}
	seen := make(map[int]bool)
	for _, n := range got {
		if seen[n.ID] {
			t.Errorf("Select() duplicated news %d despite sufficient pool", n.ID)
		}
		seen[n.ID] = true
	}
}
