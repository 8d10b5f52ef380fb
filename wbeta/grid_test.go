package wbeta

import (
	"testing"

	"github.com/n0madic/go-page-bandits/content"
)

func testGrid(t *testing.T) *Grid {
	t.Helper()
	g, err := NewGrid(testCategories, []float64{1, 0.5}, []float64{1}, []float64{0.01, 1})
	if err != nil {
		t.Fatalf("NewGrid() error = %v", err)
	}
	return g
}

func TestNewGridValidation(t *testing.T) {
	tests := []struct {
		name      string
		rowPivots []float64
		colPivots []float64
		wantErr   bool
	}{
		{"valid", []float64{1}, []float64{0.01, 1}, false},
		{"empty row pivots", nil, []float64{1}, true},
		{"empty col pivots", []float64{1}, nil, true},
		{"non-increasing col pivots", []float64{1}, []float64{1, 0.5}, true},
		{"duplicate row pivots", []float64{1, 1}, []float64{1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGrid(testCategories, []float64{1}, tt.rowPivots, tt.colPivots)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewGrid() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGridDimensions(t *testing.T) {
	g := testGrid(t)
	if g.Rows() != 2 {
		t.Errorf("Rows() = %d, want 2", g.Rows())
	}
	if g.Cols() != 3 {
		t.Errorf("Cols() = %d, want 3", g.Cols())
	}
	if g.Fallback() != g.Cell(0, 0) {
		t.Error("Fallback() is not cell (0, 0)")
	}
}

func TestGridLocate(t *testing.T) {
	g := testGrid(t)
	tests := []struct {
		name       string
		prominence float64
		clicks     int
		wantRow    int
		wantCol    int
	}{
		{"fresh item", 0, 0, 0, 0},
		{"just observed", 0.01, 0, 0, 1},
		{"well observed", 0.5, 0, 0, 1},
		{"saturated observation", 1, 0, 0, 2},
		{"beyond last pivot", 3.7, 0, 0, 2},
		{"clicked once", 0.5, 1, 1, 1},
		{"clicked many", 1.2, 5, 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, col := g.Locate(tt.prominence, tt.clicks)
			if row != tt.wantRow || col != tt.wantCol {
				t.Errorf("Locate(%v, %d) = (%d, %d), want (%d, %d)",
					tt.prominence, tt.clicks, row, col, tt.wantRow, tt.wantCol)
			}
		})
	}
}

// Cells with clicks recorded but no observation (row > 0, col == 0) cannot
// occur and must not be offered as allocation bins.
func TestGridBinPositions(t *testing.T) {
	g := testGrid(t)
	want := [][2]int{{0, 0}, {0, 1}, {0, 2}, {1, 1}, {1, 2}}
	got := g.BinPositions()
	if len(got) != len(want) {
		t.Fatalf("BinPositions() returned %d positions, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("BinPositions()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestGridLocateUser(t *testing.T) {
	g := testGrid(t)
	u := content.NewUserState()
	n := &content.News{ID: 7, Category: "tech"}

	if row, col := g.LocateUser(u, n); row != 0 || col != 0 {
		t.Fatalf("fresh user located at (%d, %d), want (0, 0)", row, col)
	}

	u.NotePendingProminence(n.ID, 0.8)
	// Pending exposure is invisible until committed.
	if row, col := g.LocateUser(u, n); row != 0 || col != 0 {
		t.Fatalf("user with pending exposure located at (%d, %d), want (0, 0)", row, col)
	}

	u.CommitProminence(n.ID)
	if row, col := g.LocateUser(u, n); row != 0 || col != 1 {
		t.Fatalf("observed user located at (%d, %d), want (0, 1)", row, col)
	}

	u.NotePendingClick(n.ID)
	u.CommitClicks(n.ID)
	if row, col := g.LocateUser(u, n); row != 1 || col != 1 {
		t.Fatalf("clicked user located at (%d, %d), want (1, 1)", row, col)
	}
}
