package tiledbcore

import (
	"context"
	"sync"

	"github.com/dstorehq/tiledbcore/internal/vfs"
)

// LockedArray serializes in-process access to one array URI; the OS
// filelock (acquired on first hold, released on last release) serializes
// across processes (spec §3, §4.9). Ported from
// original_source/core/src/storage_manager/locked_array.cc.
type LockedArray struct {
	mu            sync.Mutex
	cond          *sync.Cond
	exclusiveLock bool
	sharedLocks   uint
	totalLocks    uint
	filelock      vfs.LockHandle
}

// NewLockedArray returns a fresh, unlocked LockedArray.
func NewLockedArray() *LockedArray {
	la := &LockedArray{}
	la.cond = sync.NewCond(&la.mu)
	return la
}

// Lock acquires the array lock, shared or exclusive, blocking until
// available.
func (la *LockedArray) Lock(ctx context.Context, fs vfs.FS, uri string, shared bool) error {
	if shared {
		return la.lockShared(ctx, fs, uri)
	}
	return la.lockExclusive(ctx, fs, uri)
}

// Unlock releases a lock previously acquired with Lock, with the same
// shared/exclusive mode.
func (la *LockedArray) Unlock(fs vfs.FS, uri string, shared bool) error {
	if shared {
		return la.unlockShared(fs, uri)
	}
	return la.unlockExclusive(fs, uri)
}

// NoLocks reports whether the array currently holds no locks at all,
// the condition under which the caller may drop the LockedArray from
// its per-array registry.
func (la *LockedArray) NoLocks() bool {
	la.mu.Lock()
	defer la.mu.Unlock()
	return la.totalLocks == 0
}

func (la *LockedArray) lockExclusive(ctx context.Context, fs vfs.FS, uri string) error {
	la.mu.Lock()
	for la.exclusiveLock || la.sharedLocks > 0 {
		la.cond.Wait()
	}

	if la.filelock == nil {
		la.mu.Unlock()
		h, err := fs.FilelockLock(ctx, uri, vfs.LockExclusive)
		la.mu.Lock()
		if err != nil {
			la.mu.Unlock()
			return WrapError(LockError, "exclusive filelock", err)
		}
		la.filelock = h
	}

	la.exclusiveLock = true
	la.totalLocks++
	la.mu.Unlock()
	return nil
}

func (la *LockedArray) lockShared(ctx context.Context, fs vfs.FS, uri string) error {
	la.mu.Lock()
	for la.exclusiveLock {
		la.cond.Wait()
	}

	if la.filelock == nil {
		la.mu.Unlock()
		h, err := fs.FilelockLock(ctx, uri, vfs.LockShared)
		la.mu.Lock()
		if err != nil {
			la.mu.Unlock()
			return WrapError(LockError, "shared filelock", err)
		}
		la.filelock = h
	}

	la.sharedLocks++
	la.totalLocks++
	la.mu.Unlock()
	return nil
}

func (la *LockedArray) unlockExclusive(fs vfs.FS, uri string) error {
	la.mu.Lock()
	defer la.mu.Unlock()

	la.exclusiveLock = false
	la.totalLocks--
	if la.totalLocks == 0 && la.filelock != nil {
		if err := fs.FilelockUnlock(la.filelock); err != nil {
			return WrapError(LockError, "exclusive filelock release", err)
		}
		la.filelock = nil
	}
	la.cond.Broadcast()
	return nil
}

func (la *LockedArray) unlockShared(fs vfs.FS, uri string) error {
	la.mu.Lock()
	defer la.mu.Unlock()

	la.sharedLocks--
	la.totalLocks--
	if la.totalLocks == 0 && la.filelock != nil {
		if err := fs.FilelockUnlock(la.filelock); err != nil {
			return WrapError(LockError, "shared filelock release", err)
		}
		la.filelock = nil
	}
	if la.sharedLocks == 0 {
		la.cond.Signal()
	}
	return nil
}
