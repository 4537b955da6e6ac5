// Package vfs abstracts filesystem access behind a uniform contract
// (spec §4.1) so that the core's readers, writers, and consolidator
// never touch a concrete backend directly. Local is the only real
// backend implemented; Mem exists for tests.
package vfs

import "context"

// LockMode is the mode a filelock is acquired in.
type LockMode int

const (
	LockShared LockMode = iota
	LockExclusive
)

// LockHandle is an opaque filelock handle returned by FilelockLock.
type LockHandle interface{}

// FS is the uniform filesystem contract every backend implements
// (spec §4.1's operation table).
type FS interface {
	CreateDir(ctx context.Context, uri string) error
	CreateFile(ctx context.Context, uri string) error
	IsDir(ctx context.Context, uri string) (bool, error)
	IsFile(ctx context.Context, uri string) (bool, error)
	RemovePath(ctx context.Context, uri string) error
	MovePath(ctx context.Context, src, dst string) error
	Read(ctx context.Context, uri string, off int64, buf []byte) (int, error)
	Write(ctx context.Context, uri string, buf []byte) error
	Flush(ctx context.Context, uri string) error
	Ls(ctx context.Context, uri string) ([]string, error)
	FileSize(ctx context.Context, uri string) (int64, error)
	FilelockLock(ctx context.Context, uri string, mode LockMode) (LockHandle, error)
	FilelockUnlock(handle LockHandle) error
}
