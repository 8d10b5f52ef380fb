// Package allocation turns sampled per-item click probabilities into a
// concrete, diversity-constrained page layout. It hosts the candidate
// selector, the five solution strategies and the randomized-rounding
// derandomizer.
package allocation

import "fmt"

// Strategy selects how a page layout is computed. It is resolved once at
// construction, never per call.
type Strategy int

const (
	// Greedy assigns the best-sampled items to the most prominent slots
	// with no diversity guarantee.
	Greedy Strategy = iota
	// RelaxedLP solves the continuous relaxation of the assignment LP and
	// derandomizes the fractional solution.
	RelaxedLP
	// ExactILP solves the same formulation with binary variables.
	ExactILP
	// BinnedLP compresses candidates into (category, state-bucket) bins so
	// problem size is independent of pool size.
	BinnedLP
	// FullLP enumerates one variable per (item, slot) pair over the whole
	// pool. Benchmark-only: cost grows with pool size, uncapped.
	FullLP
)

func (s Strategy) String() string {
	switch s {
	case Greedy:
		return "greedy"
	case RelaxedLP:
		return "relaxed-lp"
	case ExactILP:
		return "exact-ilp"
	case BinnedLP:
		return "compressed-lp"
	case FullLP:
		return "full"
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy maps the configuration names onto strategies.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "greedy":
		return Greedy, nil
	case "relaxed-lp":
		return RelaxedLP, nil
	case "exact-ilp":
		return ExactILP, nil
	case "compressed-lp":
		return BinnedLP, nil
	case "full":
		return FullLP, nil
	}
	return 0, fmt.Errorf("allocation: unknown strategy %q", s)
}

// Technique selects the randomized rounding rule used to turn a fractional
// LP solution into an integral layout.
type Technique int

const (
	// Rand1 processes slots in descending remaining prominence and samples
	// a candidate per slot from its normalized weight vector.
	Rand1 Technique = iota
	// Rand2 samples the slot processing order itself proportionally to
	// remaining prominence.
	Rand2
	// Rand3 is Rand1 with the current slot's weights dampened by the
	// candidate's weight in every unprocessed slot, discouraging picks that
	// other slots also favor.
	Rand3
)

func (t Technique) String() string {
	switch t {
	case Rand1:
		return "rand_1"
	case Rand2:
		return "rand_2"
	case Rand3:
		return "rand_3"
	}
	return fmt.Sprintf("Technique(%d)", int(t))
}

// ParseTechnique maps the configuration names onto techniques.
func ParseTechnique(s string) (Technique, error) {
	switch s {
	case "rand_1":
		return Rand1, nil
	case "rand_2":
		return Rand2, nil
	case "rand_3":
		return Rand3, nil
	}
	return 0, fmt.Errorf("allocation: unknown derandomization technique %q", s)
}

// SlotOrder selects how the binned strategy walks slots while resolving its
// fractional bin assignment.
type SlotOrder int

const (
	// GreedyOrder takes slots by descending remaining prominence.
	GreedyOrder SlotOrder = iota
	// Ordered takes slots left to right.
	Ordered
	// RandomizedOrder samples slots proportionally to remaining prominence.
	RandomizedOrder
)

// ParseSlotOrder maps the configuration names onto slot orders.
func ParseSlotOrder(s string) (SlotOrder, error) {
	switch s {
	case "greedy":
		return GreedyOrder, nil
	case "ordered":
		return Ordered, nil
	case "randomized":
		return RandomizedOrder, nil
	}
	return 0, fmt.Errorf("allocation: unknown slot order %q", s)
}
