package rtree_test

import (
	"testing"

	"github.com/dstorehq/tiledbcore/internal/rtree"
)

func box(x0, x1, y0, y1 int64) rtree.Box {
	return rtree.Box{Ranges: [][2]int64{{x0, x1}, {y0, y1}}}
}

func TestRTreeRangeSearch(t *testing.T) {
	leaves := []rtree.Box{
		box(0, 9, 0, 9),
		box(10, 19, 0, 9),
		box(0, 9, 10, 19),
		box(10, 19, 10, 19),
	}
	tree := rtree.Build(leaves, 2)

	got := tree.RangeSearch(box(5, 15, 5, 15))
	want := map[int]bool{0: true, 1: true, 2: true, 3: true}
	if len(got) != len(want) {
		t.Fatalf("RangeSearch returned %v, want all 4 leaves", got)
	}
	for _, idx := range got {
		if !want[idx] {
			t.Errorf("unexpected leaf index %d", idx)
		}
	}

	got = tree.RangeSearch(box(100, 200, 100, 200))
	if len(got) != 0 {
		t.Errorf("expected no overlap, got %v", got)
	}

	got = tree.RangeSearch(box(12, 14, 1, 2))
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("RangeSearch = %v, want [1]", got)
	}
}

func TestRTreeEmpty(t *testing.T) {
	tree := rtree.Build(nil, 4)
	if got := tree.RangeSearch(box(0, 1, 0, 1)); got != nil {
		t.Errorf("expected nil result on empty tree, got %v", got)
	}
	if tree.NDim() != 0 {
		t.Errorf("NDim() = %d, want 0 for empty tree", tree.NDim())
	}
}

func boxesEqual(a, b rtree.Box) bool {
	if len(a.Ranges) != len(b.Ranges) {
		return false
	}
	for i := range a.Ranges {
		if a.Ranges[i] != b.Ranges[i] {
			return false
		}
	}
	return true
}

func TestBoxUnionAndOverlaps(t *testing.T) {
	a := box(0, 5, 0, 5)
	b := box(3, 10, -2, 2)
	u := a.Union(b)
	want := box(0, 10, -2, 5)
	if !boxesEqual(u, want) {
		t.Errorf("Union = %+v, want %+v", u, want)
	}
	if !a.Overlaps(b) {
		t.Error("expected a and b to overlap")
	}
	c := box(100, 200, 100, 200)
	if a.Overlaps(c) {
		t.Error("expected a and c not to overlap")
	}
}
