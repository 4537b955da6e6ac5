package tiledbcore_test

import (
	"context"
	"path"
	"testing"

	tiledbcore "github.com/dstorehq/tiledbcore"
)

// TestVacuumRemovesOrphanedFragment covers spec §4.10/§3: a fragment
// directory left behind without its sentinel file (as if the writer
// crashed before publishing) is removed by Vacuum, while a properly
// published fragment survives.
func TestVacuumRemovesOrphanedFragment(t *testing.T) {
	ctx := context.Background()
	tc := newTestContext(t)
	schema := sparseSchema(t, 4)
	if err := tiledbcore.CreateArray(ctx, tc, "/vac", schema); err != nil {
		t.Fatalf("CreateArray: %s", err)
	}
	writeSparseCells(t, ctx, tc, "/vac", [][2]int64{{1, 1}}, []int64{1})

	arr, err := tiledbcore.OpenArray(ctx, tc, "/vac", tiledbcore.OpenRead)
	if err != nil {
		t.Fatalf("OpenArray: %s", err)
	}
	before, err := arr.Fragments(ctx)
	if err != nil {
		t.Fatalf("Fragments: %s", err)
	}
	if len(before) != 1 {
		t.Fatalf("expected 1 published fragment, got %d", len(before))
	}
	arr.Close()

	orphanURI := path.Join("/vac", tiledbcore.FragmentName(9999, 1, ""))
	if err := tc.FS.CreateDir(ctx, orphanURI); err != nil {
		t.Fatalf("create orphan dir: %s", err)
	}
	if err := tc.FS.Write(ctx, path.Join(orphanURI, "v.tdb"), []byte("garbage")); err != nil {
		t.Fatalf("write into orphan dir: %s", err)
	}

	if err := tiledbcore.Vacuum(ctx, tc, "/vac"); err != nil {
		t.Fatalf("Vacuum: %s", err)
	}

	isDir, err := tc.FS.IsDir(ctx, orphanURI)
	if err != nil {
		t.Fatalf("IsDir: %s", err)
	}
	if isDir {
		t.Error("expected orphaned fragment directory to be removed")
	}

	arr2, err := tiledbcore.OpenArray(ctx, tc, "/vac", tiledbcore.OpenRead)
	if err != nil {
		t.Fatalf("OpenArray after vacuum: %s", err)
	}
	defer arr2.Close()
	after, err := arr2.Fragments(ctx)
	if err != nil {
		t.Fatalf("Fragments after vacuum: %s", err)
	}
	if len(after) != 1 {
		t.Errorf("expected the published fragment to survive vacuum, got %d fragments", len(after))
	}
}
