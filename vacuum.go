package tiledbcore

import (
	"context"
	"path"
)

// Vacuum removes orphaned fragment directories: those whose name
// parses as a fragment timestamp but whose sentinel file was never
// written, left behind by a writer that crashed or errored before
// publishing (spec §4.10, §3: "fragment visibility is gated on the
// sentinel file").
func Vacuum(ctx context.Context, tc *Context, uri string) error {
	la := tc.lockedArray(uri)
	if err := la.Lock(ctx, tc.FS, uri, false); err != nil {
		return err
	}
	defer la.Unlock(tc.FS, uri, false)

	entries, err := tc.FS.Ls(ctx, uri)
	if err != nil {
		return WrapError(IoError, "list array directory", err)
	}

	for _, e := range entries {
		name := path.Base(e)
		if _, ok := fragmentTimestamp(name); !ok {
			continue
		}
		isDir, err := tc.FS.IsDir(ctx, e)
		if err != nil || !isDir {
			continue
		}
		hasSentinel, err := tc.FS.IsFile(ctx, path.Join(e, sentinelFileName))
		if err != nil {
			return WrapError(IoError, "stat fragment sentinel", err)
		}
		if hasSentinel {
			continue
		}
		if err := tc.FS.RemovePath(ctx, e); err != nil {
			return WrapError(IoError, "remove orphaned fragment", err)
		}
	}
	return nil
}
