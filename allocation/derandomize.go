package allocation

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/n0madic/go-page-bandits/content"
)

// Derandomizer converts a fractional per-slot assignment distribution into
// an integral layout by iteratively fixing one slot per step. Every slot
// ends with exactly one candidate and no candidate is used twice.
type Derandomizer struct {
	prominences []float64
	rng         *rand.Rand
}

// NewDerandomizer creates a derandomizer over the slot prominence vector.
func NewDerandomizer(prominences []float64, rng *rand.Rand) *Derandomizer {
	return &Derandomizer{prominences: prominences, rng: rng}
}

// Run resolves the fractional solution. probabilities[s][g] is the weight
// of candidate g occupying slot s; the matrix is consumed in place, callers
// wanting to reuse it must pass a copy (see CopyProbabilities).
func (d *Derandomizer) Run(probabilities [][]float64, candidates []*content.News, t Technique) ([]*content.News, error) {
	slots := len(d.prominences)
	if len(probabilities) != slots {
		return nil, fmt.Errorf("allocation: %d slot probability vectors, want %d", len(probabilities), slots)
	}
	if len(candidates) < slots {
		return nil, errors.New("allocation: fewer candidates than slots")
	}

	result := make([]*content.News, slots)
	remaining := append([]float64(nil), d.prominences...)
	feasible := make([]int, len(candidates))
	for i := range feasible {
		feasible[i] = i
	}
	processed := make([]bool, slots)

	for step := 0; step < slots; step++ {
		var target int
		switch t {
		case Rand1, Rand3:
			target = argmax(remaining)
		case Rand2:
			var err error
			target, err = sampleProportional(d.rng, remaining)
			if err != nil {
				// Only zero-prominence slots are left; take the next one.
				target = argmax(remaining)
			}
		default:
			return nil, fmt.Errorf("allocation: unknown technique %v", t)
		}

		weights := append([]float64(nil), probabilities[target]...)
		if t == Rand3 {
			for s := 0; s < slots; s++ {
				if s == target || processed[s] {
					continue
				}
				for g := range weights {
					weights[g] *= 1 - probabilities[s][g]
				}
			}
		}

		pick, err := sampleProportional(d.rng, weights)
		if err != nil {
			// Degenerate all-zero vector: the LP left this slot empty, fall
			// back to a uniform draw over the still-feasible candidates.
			pick = d.rng.IntN(len(feasible))
		}
		result[target] = candidates[feasible[pick]]

		feasible = append(feasible[:pick], feasible[pick+1:]...)
		for s := range probabilities {
			probabilities[s] = append(probabilities[s][:pick], probabilities[s][pick+1:]...)
		}
		// Processed slots drop below zero so a zero-prominence slot still
		// gets its turn.
		remaining[target] = -1
		processed[target] = true
	}
	return result, nil
}

// MeasureDiversityError runs repeated derandomization trials and reports
// the mean empirical diversity error: per trial, the maximum over
// categories of the relative shortfall between realized assigned prominence
// and the category's bound. This is the instrumentation hook validating
// rounding-technique quality.
func (d *Derandomizer) MeasureDiversityError(probabilities [][]float64, candidates []*content.News,
	categories []content.Category, bounds []float64, t Technique, trials int) (float64, error) {
	if trials <= 0 {
		return 0, errors.New("allocation: trials must be positive")
	}
	index := content.CategoryIndex(categories)
	total := 0.0
	for trial := 0; trial < trials; trial++ {
		layout, err := d.Run(CopyProbabilities(probabilities), candidates, t)
		if err != nil {
			return 0, err
		}
		realized := make([]float64, len(categories))
		for s, n := range layout {
			realized[index[n.Category]] += d.prominences[s]
		}
		worst := 0.0
		for c, bound := range bounds {
			if bound <= 0 || c >= len(realized) {
				continue
			}
			if shortfall := (bound - realized[c]) / bound; shortfall > worst {
				worst = shortfall
			}
		}
		total += worst
	}
	return total / float64(trials), nil
}

// CopyProbabilities deep-copies a per-slot probability matrix.
func CopyProbabilities(probabilities [][]float64) [][]float64 {
	out := make([][]float64, len(probabilities))
	for i, row := range probabilities {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// sampleProportional draws an index with probability proportional to its
// non-negative weight.
func sampleProportional(rng *rand.Rand, weights []float64) (int, error) {
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return 0, errors.New("no positive weight")
	}
	u := rng.Float64() * total
	acc := 0.0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		acc += w
		if u < acc {
			return i, nil
		}
	}
	// Guard against accumulated rounding: return the last positive index.
	for i := len(weights) - 1; i >= 0; i-- {
		if weights[i] > 0 {
			return i, nil
		}
	}
	return 0, errors.New("no positive weight")
}

func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
