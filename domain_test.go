package tiledbcore_test

import (
	"testing"

	tiledbcore "github.com/dstorehq/tiledbcore"
)

func mustDim(t *testing.T, name string, lo, hi, extent int64) *tiledbcore.Dimension {
	t.Helper()
	d, err := tiledbcore.NewDimension(name, tiledbcore.Int64, lo, hi, extent)
	if err != nil {
		t.Fatalf("NewDimension(%s): %s", name, err)
	}
	return d
}

func TestDimensionTileMath(t *testing.T) {
	d := mustDim(t, "x", 0, 9, 4)
	if d.DomainSize() != 10 {
		t.Errorf("DomainSize() = %d, want 10", d.DomainSize())
	}
	if d.TileCount() != 3 { // tiles [0-3][4-7][8-11]
		t.Errorf("TileCount() = %d, want 3", d.TileCount())
	}
	if d.ExpandedHi() != 11 {
		t.Errorf("ExpandedHi() = %d, want 11", d.ExpandedHi())
	}
	if d.TileIndex(5) != 1 {
		t.Errorf("TileIndex(5) = %d, want 1", d.TileIndex(5))
	}
	if !d.InDomain(9) || d.InDomain(10) {
		t.Error("InDomain boundary check failed")
	}
}

func TestNewDimensionRejectsBadRange(t *testing.T) {
	if _, err := tiledbcore.NewDimension("x", tiledbcore.Int64, 10, 5, 1); err == nil {
		t.Error("expected error when hi < lo")
	}
	if _, err := tiledbcore.NewDimension("x", tiledbcore.Int64, 0, 10, 0); err == nil {
		t.Error("expected error for non-positive extent")
	}
	if _, err := tiledbcore.NewDimension("", tiledbcore.Int64, 0, 10, 1); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestNewDomainRejectsDuplicateNames(t *testing.T) {
	d1 := mustDim(t, "x", 0, 9, 4)
	d2 := mustDim(t, "x", 0, 9, 4)
	if _, err := tiledbcore.NewDomain(d1, d2); err == nil {
		t.Error("expected error for duplicate dimension names")
	}
}

func TestNDRectangleOverlapsAndContains(t *testing.T) {
	d1 := mustDim(t, "x", 0, 9, 4)
	d2 := mustDim(t, "y", 0, 9, 4)
	dom, err := tiledbcore.NewDomain(d1, d2)
	if err != nil {
		t.Fatalf("NewDomain: %s", err)
	}

	r := tiledbcore.NewNDRectangle(dom)
	if !r.Contains([]int64{0, 0}) || !r.Contains([]int64{9, 9}) {
		t.Error("full-domain rectangle should contain its own corners")
	}

	r.SetRange(0, 2, 4)
	if r.Contains([]int64{1, 5}) {
		t.Error("expected point outside narrowed range to be excluded")
	}
	if !r.Contains([]int64{3, 5}) {
		t.Error("expected point inside narrowed range to be included")
	}

	other := tiledbcore.NewNDRectangle(dom)
	other.SetRange(0, 20, 30)
	if r.Overlaps(other) {
		t.Error("expected disjoint rectangles not to overlap")
	}
}

func TestNDRectangleExpand(t *testing.T) {
	r := &tiledbcore.NDRectangle{}
	r.ExpandPoint([]int64{5, 5})
	r.ExpandPoint([]int64{2, 8})
	if r.Ranges[0] != [2]int64{2, 5} || r.Ranges[1] != [2]int64{5, 8} {
		t.Errorf("Ranges = %v, want [[2 5] [5 8]]", r.Ranges)
	}
}
