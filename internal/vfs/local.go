package vfs

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Local is the POSIX-filesystem VFS backend: every operation maps
// directly to an os/unix syscall, with append-emulation for Write and
// unix.Flock for filelocks (spec §4.1).
type Local struct{}

// NewLocal returns a Local backend.
func NewLocal() *Local { return &Local{} }

func (l *Local) CreateDir(_ context.Context, uri string) error {
	if err := os.MkdirAll(uri, 0o755); err != nil {
		return err
	}
	return nil
}

func (l *Local) CreateFile(_ context.Context, uri string) error {
	f, err := os.OpenFile(uri, os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	return f.Close()
}

func (l *Local) IsDir(_ context.Context, uri string) (bool, error) {
	fi, err := os.Stat(uri)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return fi.IsDir(), nil
}

func (l *Local) IsFile(_ context.Context, uri string) (bool, error) {
	fi, err := os.Stat(uri)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !fi.IsDir(), nil
}

func (l *Local) RemovePath(_ context.Context, uri string) error {
	return os.RemoveAll(uri)
}

func (l *Local) MovePath(_ context.Context, src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	return copyThenRemove(src, dst)
}

func copyThenRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

func (l *Local) Read(_ context.Context, uri string, off int64, buf []byte) (int, error) {
	f, err := os.Open(uri)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.ReadAt(buf, off)
}

// Write appends buf to uri, emulating the append-only semantics object
// stores have natively (spec §4.1: "Local backends must emulate append").
func (l *Local) Write(_ context.Context, uri string, buf []byte) error {
	if err := os.MkdirAll(filepath.Dir(uri), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(uri, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(buf)
	return err
}

func (l *Local) Flush(_ context.Context, uri string) error {
	f, err := os.OpenFile(uri, os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

func (l *Local) Ls(_ context.Context, uri string) ([]string, error) {
	entries, err := os.ReadDir(uri)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = filepath.Join(uri, e.Name())
	}
	return out, nil
}

func (l *Local) FileSize(_ context.Context, uri string) (int64, error) {
	fi, err := os.Stat(uri)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

type localLockHandle struct {
	f *os.File
}

func (l *Local) FilelockLock(_ context.Context, uri string, mode LockMode) (LockHandle, error) {
	f, err := os.OpenFile(uri, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	how := unix.LOCK_EX
	if mode == LockShared {
		how = unix.LOCK_SH
	}
	if err := unix.Flock(int(f.Fd()), how); err != nil {
		f.Close()
		return nil, err
	}
	return &localLockHandle{f: f}, nil
}

func (l *Local) FilelockUnlock(handle LockHandle) error {
	h, ok := handle.(*localLockHandle)
	if !ok || h.f == nil {
		return nil
	}
	err := unix.Flock(int(h.f.Fd()), unix.LOCK_UN)
	closeErr := h.f.Close()
	h.f = nil
	if err != nil {
		return err
	}
	return closeErr
}
