package allocation

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/n0madic/go-page-bandits/content"
	"github.com/n0madic/go-page-bandits/wbeta"
)

var optimizerCategories = []content.Category{"politics", "sport"}

func seededRand() *rand.Rand {
	return rand.New(rand.NewPCG(11, 12))
}

func newsPool(t *testing.T, items []*content.News) *content.NewsPool {
	t.Helper()
	pool := content.NewNewsPool(optimizerCategories)
	if err := pool.Fill(items, false); err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	return pool
}

func TestNewOptimizerValidation(t *testing.T) {
	tests := []struct {
		name        string
		categories  []content.Category
		prominences []float64
		options     []Option
		wantErr     bool
	}{
		{
			name:        "valid",
			categories:  optimizerCategories,
			prominences: []float64{1, 0.5},
		},
		{
			name:        "empty categories",
			categories:  nil,
			prominences: []float64{1},
			wantErr:     true,
		},
		{
			name:        "prominence out of range",
			categories:  optimizerCategories,
			prominences: []float64{1, 1.2},
			wantErr:     true,
		},
		{
			name:        "negative bound",
			categories:  optimizerCategories,
			prominences: []float64{1, 0.5},
			options:     []Option{WithDiversityBounds([]float64{-0.1, 0})},
			wantErr:     true,
		},
		{
			name:        "bounds exceed total prominence",
			categories:  optimizerCategories,
			prominences: []float64{1, 0.5},
			options:     []Option{WithDiversityBounds([]float64{1, 1})},
			wantErr:     true,
		},
		{
			name:        "binned strategy without grid",
			categories:  optimizerCategories,
			prominences: []float64{1, 0.5},
			options:     []Option{WithStrategy(BinnedLP)},
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOptimizer(tt.categories, tt.prominences, tt.options...)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewOptimizer() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// Mismatched bound vectors are repaired, not rejected: truncate when too
// long, extend with the last bound when too short.
func TestNewOptimizerFitsBounds(t *testing.T) {
	o, err := NewOptimizer(optimizerCategories, []float64{1, 0.5},
		WithDiversityBounds([]float64{0.4}))
	if err != nil {
		t.Fatalf("NewOptimizer() error = %v", err)
	}
	got := o.Bounds()
	if len(got) != 2 || got[0] != 0.4 || got[1] != 0.4 {
		t.Errorf("Bounds() = %v, want [0.4 0.4]", got)
	}
}

func TestGreedyConcreteScenario(t *testing.T) {
	a := &content.News{ID: 1, Category: "politics"}
	b := &content.News{ID: 2, Category: "sport"}
	pool := newsPool(t, []*content.News{b, a})
	qualities := content.Qualities{1: 0.9, 2: 0.5}

	o, err := NewOptimizer(optimizerCategories, []float64{1, 0.5},
		WithStrategy(Greedy), WithRand(seededRand()))
	if err != nil {
		t.Fatalf("NewOptimizer() error = %v", err)
	}

	for trial := 0; trial < 5; trial++ {
		result, err := o.Allocate(context.Background(), Request{Pool: pool, Qualities: qualities})
		if err != nil {
			t.Fatalf("Allocate() error = %v", err)
		}
		if result.Layout[0] != a || result.Layout[1] != b {
			t.Fatalf("layout = [%d %d], want [1 2]", result.Layout[0].ID, result.Layout[1].ID)
		}
		if result.Fallback {
			t.Error("greedy allocation marked as fallback")
		}
	}
}

// The most prominent slot is not necessarily the first one.
func TestGreedyFollowsProminenceNotPosition(t *testing.T) {
	a := &content.News{ID: 1, Category: "politics"}
	b := &content.News{ID: 2, Category: "sport"}
	pool := newsPool(t, []*content.News{a, b})
	qualities := content.Qualities{1: 0.9, 2: 0.5}

	o, err := NewOptimizer(optimizerCategories, []float64{0.4, 1},
		WithStrategy(Greedy), WithRand(seededRand()))
	if err != nil {
		t.Fatalf("NewOptimizer() error = %v", err)
	}
	result, err := o.Allocate(context.Background(), Request{Pool: pool, Qualities: qualities})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if result.Layout[1] != a || result.Layout[0] != b {
		t.Errorf("layout = [%d %d], want best item in slot 1", result.Layout[0].ID, result.Layout[1].ID)
	}
}

func TestAllocateInsufficientInventory(t *testing.T) {
	pool := newsPool(t, []*content.News{{ID: 1, Category: "politics"}})
	o, err := NewOptimizer(optimizerCategories, []float64{1, 0.5}, WithRand(seededRand()))
	if err != nil {
		t.Fatalf("NewOptimizer() error = %v", err)
	}
	_, err = o.Allocate(context.Background(), Request{Pool: pool, Qualities: content.Qualities{1: 0.5}})
	if !errors.Is(err, content.ErrInsufficientInventory) {
		t.Errorf("Allocate() error = %v, want ErrInsufficientInventory", err)
	}
}

func diversityFixture(t *testing.T) (*content.NewsPool, content.Qualities) {
	t.Helper()
	var items []*content.News
	qualities := make(content.Qualities)
	for i := 0; i < 4; i++ {
		items = append(items, &content.News{ID: i, Category: "politics"})
		qualities[i] = 0.9
	}
	for i := 4; i < 8; i++ {
		items = append(items, &content.News{ID: i, Category: "sport"})
		qualities[i] = 0.1
	}
	return newsPool(t, items), qualities
}

// With every politics item sampled far above every sport item, only the
// diversity bound can force sport onto the page. The integral solution must
// honor it exactly.
func TestExactILPHonorsDiversityBound(t *testing.T) {
	pool, qualities := diversityFixture(t)
	prominences := []float64{1, 0.8, 0.5}

	o, err := NewOptimizer(optimizerCategories, prominences,
		WithStrategy(ExactILP),
		WithDiversityBounds([]float64{0, 0.8}),
		WithRand(seededRand()))
	if err != nil {
		t.Fatalf("NewOptimizer() error = %v", err)
	}

	result, err := o.Allocate(context.Background(), Request{Pool: pool, Qualities: qualities})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if result.Fallback {
		t.Fatal("exact solve fell back unexpectedly")
	}

	sportProminence := 0.0
	for s, n := range result.Layout {
		if n == nil {
			t.Fatalf("slot %d left empty", s)
		}
		if n.Category == "sport" {
			sportProminence += prominences[s]
		}
	}
	if sportProminence < 0.8-1e-9 {
		t.Errorf("sport assigned prominence %v, bound is 0.8", sportProminence)
	}
}

func TestRelaxedLPProducesCompleteLayout(t *testing.T) {
	pool, qualities := diversityFixture(t)
	o, err := NewOptimizer(optimizerCategories, []float64{1, 0.8, 0.5},
		WithStrategy(RelaxedLP),
		WithDiversityBounds([]float64{0.5, 0.5}),
		WithRand(seededRand()))
	if err != nil {
		t.Fatalf("NewOptimizer() error = %v", err)
	}

	for trial := 0; trial < 20; trial++ {
		result, err := o.Allocate(context.Background(), Request{Pool: pool, Qualities: qualities})
		if err != nil {
			t.Fatalf("Allocate() error = %v", err)
		}
		seen := make(map[int]bool)
		for s, n := range result.Layout {
			if n == nil {
				t.Fatalf("slot %d left empty", s)
			}
			if seen[n.ID] {
				t.Fatalf("news %d assigned twice", n.ID)
			}
			seen[n.ID] = true
		}
	}
}

// Greedy never places the low-quality category; a relaxed LP with a binding
// diversity floor must surface it in essentially every derandomized round,
// whichever rounding technique resolves the fractional solution.
func TestRelaxedLPDiversityConvergence(t *testing.T) {
	prominences := []float64{1, 0.8, 0.5}

	greedy, err := NewOptimizer(optimizerCategories, prominences,
		WithStrategy(Greedy), WithRand(seededRand()))
	if err != nil {
		t.Fatalf("NewOptimizer() error = %v", err)
	}
	pool, qualities := diversityFixture(t)
	result, err := greedy.Allocate(context.Background(), Request{Pool: pool, Qualities: qualities})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	for _, n := range result.Layout {
		if n.Category == "sport" {
			t.Fatal("greedy placed the weak category without a bound")
		}
	}

	const trials = 50
	for _, technique := range []Technique{Rand1, Rand2, Rand3} {
		t.Run(technique.String(), func(t *testing.T) {
			o, err := NewOptimizer(optimizerCategories, prominences,
				WithStrategy(RelaxedLP),
				WithTechnique(technique),
				WithDiversityBounds([]float64{0, 2}),
				WithRand(seededRand()))
			if err != nil {
				t.Fatalf("NewOptimizer() error = %v", err)
			}
			pool, qualities := diversityFixture(t)
			hits := 0
			for trial := 0; trial < trials; trial++ {
				result, err := o.Allocate(context.Background(), Request{Pool: pool, Qualities: qualities})
				if err != nil {
					t.Fatalf("Allocate() error = %v", err)
				}
				for _, n := range result.Layout {
					if n.Category == "sport" {
						hits++
						break
					}
				}
			}
			if hits < trials*9/10 {
				t.Errorf("bounded category appeared in %d of %d rounds", hits, trials)
			}
		})
	}
}

// A cancelled context kills the integer solve; the optimizer must degrade to
// the relaxed path and flag the round instead of failing the visit.
func TestExactILPDegradesOnCancelledContext(t *testing.T) {
	pool, qualities := diversityFixture(t)
	o, err := NewOptimizer(optimizerCategories, []float64{1, 0.8, 0.5},
		WithStrategy(ExactILP),
		WithRand(seededRand()))
	if err != nil {
		t.Fatalf("NewOptimizer() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := o.Allocate(ctx, Request{Pool: pool, Qualities: qualities})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if !result.Fallback {
		t.Error("degraded round not flagged as fallback")
	}
	for s, n := range result.Layout {
		if n == nil {
			t.Fatalf("slot %d left empty", s)
		}
	}
}

func TestDiversityErrorMeasurement(t *testing.T) {
	pool, qualities := diversityFixture(t)
	o, err := NewOptimizer(optimizerCategories, []float64{1, 0.8, 0.5},
		WithStrategy(RelaxedLP),
		WithDiversityBounds([]float64{0.5, 0.5}),
		WithErrorTrials(3),
		WithRand(seededRand()))
	if err != nil {
		t.Fatalf("NewOptimizer() error = %v", err)
	}

	if _, err := o.Allocate(context.Background(), Request{Pool: pool, Qualities: qualities}); err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	for _, technique := range []Technique{Rand1, Rand2, Rand3} {
		series := o.DiversityErrors(technique)
		if len(series) != 1 {
			t.Errorf("%v error series has %d entries, want 1", technique, len(series))
			continue
		}
		if series[0] < 0 || series[0] > 1 {
			t.Errorf("%v error = %v, want within [0, 1]", technique, series[0])
		}
	}
}

func TestBinnedLPAllocates(t *testing.T) {
	grid, err := wbeta.NewGrid(optimizerCategories, []float64{1, 0.5}, []float64{1}, []float64{0.01, 1},
		wbeta.WithRand(seededRand()))
	if err != nil {
		t.Fatalf("NewGrid() error = %v", err)
	}
	o, err := NewOptimizer(optimizerCategories, []float64{1, 0.5},
		WithStrategy(BinnedLP),
		WithGrid(grid),
		WithRand(seededRand()))
	if err != nil {
		t.Fatalf("NewOptimizer() error = %v", err)
	}

	pool, qualities := diversityFixture(t)
	result, err := o.Allocate(context.Background(), Request{
		Pool:      pool,
		Qualities: qualities,
		Locate:    func(*content.News) (int, int) { return 0, 0 },
	})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	for s, n := range result.Layout {
		if n == nil {
			t.Fatalf("slot %d left empty", s)
		}
	}
}

// A zero-prominence slot must still be resolved under every slot order.
func TestBinnedLPFillsZeroProminenceSlot(t *testing.T) {
	orders := []struct {
		name  string
		order SlotOrder
	}{
		{"greedy", GreedyOrder},
		{"ordered", Ordered},
		{"randomized", RandomizedOrder},
	}
	for _, tt := range orders {
		t.Run(tt.name, func(t *testing.T) {
			grid, err := wbeta.NewGrid(optimizerCategories, []float64{1, 0}, []float64{1}, []float64{0.01, 1},
				wbeta.WithRand(seededRand()))
			if err != nil {
				t.Fatalf("NewGrid() error = %v", err)
			}
			o, err := NewOptimizer(optimizerCategories, []float64{1, 0},
				WithStrategy(BinnedLP),
				WithSlotOrder(tt.order),
				WithGrid(grid),
				WithRand(seededRand()))
			if err != nil {
				t.Fatalf("NewOptimizer() error = %v", err)
			}
			pool, qualities := diversityFixture(t)
			for trial := 0; trial < 10; trial++ {
				result, err := o.Allocate(context.Background(), Request{
					Pool:      pool,
					Qualities: qualities,
					Locate:    func(*content.News) (int, int) { return 0, 0 },
				})
				if err != nil {
					t.Fatalf("Allocate() error = %v", err)
				}
				for s, n := range result.Layout {
					if n == nil {
						t.Fatalf("slot %d left empty", s)
					}
				}
			}
		})
	}
}

func TestFullLPAllocates(t *testing.T) {
	pool, qualities := diversityFixture(t)
	o, err := NewOptimizer(optimizerCategories, []float64{1, 0.8},
		WithStrategy(FullLP),
		WithRand(seededRand()))
	if err != nil {
		t.Fatalf("NewOptimizer() error = %v", err)
	}

	// Two rounds against the same pool composition exercise the constraint
	// cache path.
	for trial := 0; trial < 2; trial++ {
		result, err := o.Allocate(context.Background(), Request{Pool: pool, Qualities: qualities})
		if err != nil {
			t.Fatalf("Allocate() error = %v", err)
		}
		seen := make(map[int]bool)
		for s, n := range result.Layout {
			if n == nil {
				t.Fatalf("slot %d left empty", s)
			}
			if seen[n.ID] {
				t.Fatalf("news %d assigned twice", n.ID)
			}
			seen[n.ID] = true
		}
	}
}
