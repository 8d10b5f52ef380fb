package wbeta

import (
	"errors"
	"fmt"

	"github.com/n0madic/go-page-bandits/content"
)

// Grid is a matrix of independent WeightedBeta models indexed by a coarse
// summary of user state: the column counts how much prominence the user has
// already spent looking at an item, the row how often they clicked it.
// Separating the cells lets "fresh" and "fatigued" exposure levels learn
// their own click probabilities.
//
// Cell (0, 0) is the fallback used when per-user interest decay is off.
type Grid struct {
	rowPivots []float64 // click-count thresholds, strictly increasing
	colPivots []float64 // observed-prominence thresholds, strictly increasing
	cells     [][]*WeightedBeta
}

// NewGrid builds a (len(rowPivots)+1) x (len(colPivots)+1) grid of models
// sharing the category set, prominence vector and options.
func NewGrid(categories []content.Category, prominences, rowPivots, colPivots []float64, options ...Option) (*Grid, error) {
	if len(rowPivots) == 0 || len(colPivots) == 0 {
		return nil, errors.New("wbeta: grid pivots must be non-empty")
	}
	if !strictlyIncreasing(rowPivots) || !strictlyIncreasing(colPivots) {
		return nil, errors.New("wbeta: grid pivots must be strictly increasing")
	}
	g := &Grid{
		rowPivots: append([]float64(nil), rowPivots...),
		colPivots: append([]float64(nil), colPivots...),
	}
	for i := 0; i <= len(rowPivots); i++ {
		row := make([]*WeightedBeta, 0, len(colPivots)+1)
		for j := 0; j <= len(colPivots); j++ {
			cell, err := New(categories, prominences, options...)
			if err != nil {
				return nil, fmt.Errorf("wbeta: grid cell (%d, %d): %w", i, j, err)
			}
			row = append(row, cell)
		}
		g.cells = append(g.cells, row)
	}
	return g, nil
}

// Rows returns the number of grid rows.
func (g *Grid) Rows() int { return len(g.cells) }

// Cols returns the number of grid columns.
func (g *Grid) Cols() int { return len(g.cells[0]) }

// Cell returns the model at (row, col).
func (g *Grid) Cell(row, col int) *WeightedBeta { return g.cells[row][col] }

// Fallback returns the interest-decay-off cell (0, 0).
func (g *Grid) Fallback() *WeightedBeta { return g.cells[0][0] }

// Locate maps a user's committed exposure and click count for an item to
// the grid cell governing that pair: each coordinate is the number of
// pivots the counter has reached, so a counter equal to a pivot value
// already falls in the next bucket.
func (g *Grid) Locate(observedProminence float64, clicks int) (row, col int) {
	return pivotWalk(float64(clicks), g.rowPivots), pivotWalk(observedProminence, g.colPivots)
}

// BinPositions lists the (row, col) cells that act as allocation bins for
// the compressed LP formulation. Positions with row > 0 and col == 0 are
// skipped: an item cannot have been clicked before it was ever observed.
func (g *Grid) BinPositions() [][2]int {
	var out [][2]int
	for r := 0; r < g.Rows(); r++ {
		for c := 0; c < g.Cols(); c++ {
			if c == 0 && r > 0 {
				continue
			}
			out = append(out, [2]int{r, c})
		}
	}
	return out
}

// LocateUser is the common item-level bucket lookup: the cell for a user's
// history with one article.
func (g *Grid) LocateUser(u *content.UserState, n *content.News) (row, col int) {
	return g.Locate(u.ObservedProminence(n.ID), u.ClickCount(n.ID))
}

func pivotWalk(v float64, pivots []float64) int {
	if v >= pivots[len(pivots)-1] {
		return len(pivots)
	}
	k := 0
	for v >= pivots[k] {
		k++
	}
	return k
}

func strictlyIncreasing(v []float64) bool {
	for i := 1; i < len(v); i++ {
		if v[i] <= v[i-1] {
			return false
		}
	}
	return true
}
