package lpsolve

import "testing"

func TestSlotCapacityRows(t *testing.T) {
	f := SlotCapacity{Slots: 2, Limit: 1}
	rows, err := f.Rows(6)
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	for s, row := range rows {
		if row.RHS != 1 {
			t.Errorf("row %d RHS = %v, want 1", s, row.RHS)
		}
		sum := 0.0
		for j, v := range row.Coeffs {
			sum += v
			want := 0.0
			if j%2 == s {
				want = 1
			}
			if v != want {
				t.Errorf("row %d coeff %d = %v, want %v", s, j, v, want)
			}
		}
		if sum != 3 {
			t.Errorf("row %d covers %v variables, want 3", s, sum)
		}
	}

	if _, err := f.Rows(5); err == nil {
		t.Error("Rows(5) with 2 slots succeeded")
	}
}

func TestBlockCapacityRows(t *testing.T) {
	f := BlockCapacity{BlockSize: 2, Limits: []float64{1, 2, 3}}
	rows, err := f.Rows(6)
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for b, row := range rows {
		if row.RHS != f.Limits[b] {
			t.Errorf("row %d RHS = %v, want %v", b, row.RHS, f.Limits[b])
		}
		for j, v := range row.Coeffs {
			want := 0.0
			if j/2 == b {
				want = 1
			}
			if v != want {
				t.Errorf("row %d coeff %d = %v, want %v", b, j, v, want)
			}
		}
	}

	if _, err := f.Rows(4); err == nil {
		t.Error("Rows(4) with 3 blocks of 2 succeeded")
	}
}

func TestProminenceFloorRows(t *testing.T) {
	f := ProminenceFloor{
		BlockSizes: []int{2, 1},
		Weights:    []float64{1, 0.5},
		Bounds:     []float64{0.3, 0.4},
	}
	rows, err := f.Rows(6)
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	wantFirst := []float64{-1, -0.5, -1, -0.5, 0, 0}
	for j, v := range rows[0].Coeffs {
		if v != wantFirst[j] {
			t.Errorf("first row coeff %d = %v, want %v", j, v, wantFirst[j])
		}
	}
	if rows[0].RHS != -0.3 {
		t.Errorf("first row RHS = %v, want -0.3", rows[0].RHS)
	}

	wantSecond := []float64{0, 0, 0, 0, -1, -0.5}
	for j, v := range rows[1].Coeffs {
		if v != wantSecond[j] {
			t.Errorf("second row coeff %d = %v, want %v", j, v, wantSecond[j])
		}
	}
	if rows[1].RHS != -0.4 {
		t.Errorf("second row RHS = %v, want -0.4", rows[1].RHS)
	}

	f.Bounds = []float64{0.3}
	if _, err := f.Rows(6); err == nil {
		t.Error("Rows() with mismatched bounds succeeded")
	}
}

func TestRawRowSizeCheck(t *testing.T) {
	f := Raw{FamilyName: "custom", R: []Row{{Coeffs: []float64{1, 2}, RHS: 3}}}
	if _, err := f.Rows(2); err != nil {
		t.Errorf("Rows(2) error = %v", err)
	}
	if _, err := f.Rows(3); err == nil {
		t.Error("Rows(3) with 2-coefficient row succeeded")
	}
}
