package tiledbcore_test

import (
	"context"
	"testing"

	tiledbcore "github.com/dstorehq/tiledbcore"
)

// TestConsolidateMergesFragments covers spec §4.10: at least
// step_min_frags fragments merge into one, the inputs are removed, and
// the merged array still reads back the latest-wins values.
func TestConsolidateMergesFragments(t *testing.T) {
	ctx := context.Background()
	tc := newTestContext(t)
	schema := sparseSchema(t, 4)
	if err := tiledbcore.CreateArray(ctx, tc, "/cons", schema); err != nil {
		t.Fatalf("CreateArray: %s", err)
	}

	writeSparseCells(t, ctx, tc, "/cons", [][2]int64{{1, 1}, {2, 2}}, []int64{10, 20})
	writeSparseCells(t, ctx, tc, "/cons", [][2]int64{{3, 3}}, []int64{30})
	writeSparseCells(t, ctx, tc, "/cons", [][2]int64{{2, 2}}, []int64{200})

	arr, err := tiledbcore.OpenArray(ctx, tc, "/cons", tiledbcore.OpenRead)
	if err != nil {
		t.Fatalf("OpenArray: %s", err)
	}
	before, err := arr.Fragments(ctx)
	if err != nil {
		t.Fatalf("Fragments: %s", err)
	}
	if len(before) != 3 {
		t.Fatalf("expected 3 fragments before consolidation, got %d", len(before))
	}
	arr.Close()

	co := tiledbcore.NewConsolidator(tc)
	if err := co.Consolidate(ctx, "/cons"); err != nil {
		t.Fatalf("Consolidate: %s", err)
	}

	arr2, err := tiledbcore.OpenArray(ctx, tc, "/cons", tiledbcore.OpenRead)
	if err != nil {
		t.Fatalf("OpenArray after consolidate: %s", err)
	}
	after, err := arr2.Fragments(ctx)
	if err != nil {
		t.Fatalf("Fragments after consolidate: %s", err)
	}
	arr2.Close()
	if len(after) != 1 {
		t.Fatalf("expected 1 fragment after consolidating all 3 (max_frags default 10), got %d", len(after))
	}

	got, status := readAllSparse(t, ctx, tc, "/cons", 100)
	if status != tiledbcore.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", status)
	}
	want := map[[2]int64]int64{{1, 1}: 10, {2, 2}: 200, {3, 3}: 30}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("cell %v = %d, want %d", k, got[k], v)
		}
	}
}

// TestConsolidateBelowMinLeavesFragmentsAlone verifies a single
// fragment (below step_min_frags, default 2) is left untouched.
func TestConsolidateBelowMinLeavesFragmentsAlone(t *testing.T) {
	ctx := context.Background()
	tc := newTestContext(t)
	schema := sparseSchema(t, 4)
	if err := tiledbcore.CreateArray(ctx, tc, "/cons2", schema); err != nil {
		t.Fatalf("CreateArray: %s", err)
	}
	writeSparseCells(t, ctx, tc, "/cons2", [][2]int64{{1, 1}}, []int64{1})

	co := tiledbcore.NewConsolidator(tc)
	if err := co.Consolidate(ctx, "/cons2"); err != nil {
		t.Fatalf("Consolidate: %s", err)
	}

	arr, err := tiledbcore.OpenArray(ctx, tc, "/cons2", tiledbcore.OpenRead)
	if err != nil {
		t.Fatalf("OpenArray: %s", err)
	}
	defer arr.Close()
	frags, err := arr.Fragments(ctx)
	if err != nil {
		t.Fatalf("Fragments: %s", err)
	}
	if len(frags) != 1 {
		t.Errorf("expected the single fragment to remain untouched, got %d fragments", len(frags))
	}
}
