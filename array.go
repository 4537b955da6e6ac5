package tiledbcore

import (
	"context"
	"path"
)

// Array is a named, versioned, append-only collection of fragments
// under a single schema (spec §3). Opened in READ or WRITE mode;
// multiple Array handles may share one underlying LockedArray.
type Array struct {
	ctx    *Context
	URI    string
	Schema *ArraySchema
	Mode   OpenMode

	locked *LockedArray
	open   bool
}

// CreateArray atomically writes a new array's schema file (spec §3:
// "created once (atomic write of schema file)"). Fails with
// ErrArrayExists if the array directory already exists.
func CreateArray(ctx context.Context, tc *Context, uri string, schema *ArraySchema) error {
	isDir, err := tc.FS.IsDir(ctx, uri)
	if err != nil {
		return WrapError(IoError, "stat array uri", err)
	}
	if isDir {
		return ErrArrayExists
	}
	if err := tc.FS.CreateDir(ctx, uri); err != nil {
		return WrapError(IoError, "create array directory", err)
	}
	blob, err := schema.Serialize()
	if err != nil {
		return WrapError(FormatError, "serialize schema", err)
	}
	schemaURI := path.Join(uri, schemaFileName)
	if err := tc.FS.Write(ctx, schemaURI, blob); err != nil {
		return WrapError(IoError, "write schema", err)
	}
	return tc.FS.Flush(ctx, schemaURI)
}

// OpenArray opens an existing array in the given mode, loading its
// current schema. A read query takes a shared lock only while its first
// Submit plans the result; later Submit calls that resume an INCOMPLETE
// read do not hold it. Writers take an exclusive lock only while
// publishing a fragment
// (spec §4.9) — OpenArray itself does not hold any lock past this call.
func OpenArray(ctx context.Context, tc *Context, uri string, mode OpenMode) (*Array, error) {
	schemaURI := path.Join(uri, schemaFileName)
	isFile, err := tc.FS.IsFile(ctx, schemaURI)
	if err != nil {
		return nil, WrapError(IoError, "stat schema", err)
	}
	if !isFile {
		return nil, WrapError(IoError, "array schema not found", ErrArrayNotOpen)
	}
	size, err := tc.FS.FileSize(ctx, schemaURI)
	if err != nil {
		return nil, WrapError(IoError, "stat schema size", err)
	}
	buf := make([]byte, size)
	if _, err := tc.FS.Read(ctx, schemaURI, 0, buf); err != nil {
		return nil, WrapError(IoError, "read schema", err)
	}
	schema, err := DeserializeArraySchema(buf)
	if err != nil {
		return nil, err
	}

	return &Array{
		ctx:    tc,
		URI:    uri,
		Schema: schema,
		Mode:   mode,
		locked: tc.lockedArray(uri),
		open:   true,
	}, nil
}

// Close releases the array handle. It does not itself take or release
// any lock; in-flight queries own their own lock acquisitions.
func (a *Array) Close() error {
	a.open = false
	a.ctx.releaseLockedArrayIfIdle(a.URI)
	return nil
}

// IsOpen reports whether Close has not yet been called.
func (a *Array) IsOpen() bool {
	return a.open
}

// Fragments lists the array's published fragments (those whose
// sentinel exists), ordered by ascending timestamp (spec §4.7 step 2).
func (a *Array) Fragments(ctx context.Context) ([]*Fragment, error) {
	entries, err := a.ctx.FS.Ls(ctx, a.URI)
	if err != nil {
		return nil, WrapError(IoError, "list array directory", err)
	}
	var frags []*Fragment
	for _, e := range entries {
		name := path.Base(e)
		ts, ok := fragmentTimestamp(name)
		if !ok {
			continue
		}
		isDir, err := a.ctx.FS.IsDir(ctx, e)
		if err != nil || !isDir {
			continue
		}
		sentinelPath := path.Join(e, sentinelFileName)
		hasSentinel, err := a.ctx.FS.IsFile(ctx, sentinelPath)
		if err != nil || !hasSentinel {
			continue
		}
		frags = append(frags, &Fragment{URI: e, Name: name, Timestamp: ts})
	}
	sortFragmentsByTimestamp(frags)
	return frags, nil
}

func sortFragmentsByTimestamp(frags []*Fragment) {
	for i := 1; i < len(frags); i++ {
		for j := i; j > 0 && frags[j].Timestamp < frags[j-1].Timestamp; j-- {
			frags[j], frags[j-1] = frags[j-1], frags[j]
		}
	}
}

// Evolve applies a schema evolution step, persisting a new schema
// version (spec §9). The array must be open for write.
func (a *Array) Evolve(ctx context.Context, ev *SchemaEvolution) error {
	if a.Mode != OpenWrite {
		return WrapError(QueryError, "schema evolution requires write mode", ErrArrayNotOpen)
	}
	if err := a.locked.Lock(ctx, a.ctx.FS, a.URI, false); err != nil {
		return err
	}
	defer a.locked.Unlock(a.ctx.FS, a.URI, false)

	next, err := a.Schema.Evolve(ev)
	if err != nil {
		return err
	}
	blob, err := next.Serialize()
	if err != nil {
		return err
	}
	schemaURI := path.Join(a.URI, schemaFileName)
	tmp := schemaURI + ".evolving"
	if err := a.ctx.FS.Write(ctx, tmp, blob); err != nil {
		return WrapError(IoError, "write evolved schema", err)
	}
	if err := a.ctx.FS.Flush(ctx, tmp); err != nil {
		return WrapError(IoError, "flush evolved schema", err)
	}
	if err := a.ctx.FS.MovePath(ctx, tmp, schemaURI); err != nil {
		return WrapError(IoError, "publish evolved schema", err)
	}
	a.Schema = next
	return nil
}
