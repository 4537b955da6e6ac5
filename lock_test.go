package tiledbcore_test

import (
	"context"
	"testing"
	"time"

	tiledbcore "github.com/dstorehq/tiledbcore"
	"github.com/dstorehq/tiledbcore/internal/vfs"
)

// TestLockedArraySharedConcurrent verifies two shared holders can both
// be locked at once, and that the holder count (NoLocks) stays non-zero
// until the last shared holder unlocks (spec §4.9's refcounted holder
// over a single per-URI OS filelock).
func TestLockedArraySharedConcurrent(t *testing.T) {
	ctx := context.Background()
	fs := vfs.NewMem()
	la := tiledbcore.NewLockedArray()

	if err := la.Lock(ctx, fs, "/arr", true); err != nil {
		t.Fatalf("first shared lock: %s", err)
	}
	if err := la.Lock(ctx, fs, "/arr", true); err != nil {
		t.Fatalf("second shared lock: %s", err)
	}
	if la.NoLocks() {
		t.Error("expected locks held after two shared acquisitions")
	}

	if err := la.Unlock(fs, "/arr", true); err != nil {
		t.Fatalf("first shared unlock: %s", err)
	}
	if la.NoLocks() {
		t.Error("one shared holder remains; NoLocks must be false")
	}

	if err := la.Unlock(fs, "/arr", true); err != nil {
		t.Fatalf("second shared unlock: %s", err)
	}
	if !la.NoLocks() {
		t.Error("expected NoLocks true after the last shared holder released")
	}
}

// TestLockedArrayExclusiveBlocksShared verifies an exclusive holder
// blocks a concurrent shared acquisition until released.
func TestLockedArrayExclusiveBlocksShared(t *testing.T) {
	ctx := context.Background()
	fs := vfs.NewMem()
	la := tiledbcore.NewLockedArray()

	if err := la.Lock(ctx, fs, "/arr", false); err != nil {
		t.Fatalf("exclusive lock: %s", err)
	}

	acquired := make(chan struct{})
	go func() {
		la.Lock(ctx, fs, "/arr", true)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("shared lock acquired while exclusive lock held")
	case <-time.After(50 * time.Millisecond):
	}

	if err := la.Unlock(fs, "/arr", false); err != nil {
		t.Fatalf("exclusive unlock: %s", err)
	}

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("shared lock never acquired after exclusive release")
	}
	la.Unlock(fs, "/arr", true)
}
