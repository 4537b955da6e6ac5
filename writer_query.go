package tiledbcore

import (
	"context"
	"path"
	"sort"
	"sync/atomic"
	"time"
)

// writerState accumulates a write query's submitted cells in memory
// (spec §4.8: "Writer buffers ... tiles"), mirroring the teacher's
// "build in memory, stream on Finalize()" idiom (writer.go) scoped from
// a whole filesystem image down to one fragment.
type writerState struct {
	attrBytes map[string][]byte // attribute name -> accumulated raw values
	coords    map[string][]byte // dimension name -> accumulated raw int64 coords (sparse writes, and dense writes that submit coordinate buffers)
}

func newWriterState() *writerState {
	return &writerState{attrBytes: map[string][]byte{}, coords: map[string][]byte{}}
}

// submitWrite drains the query's data buffers into the writer's
// in-memory accumulators. Coordinates are carried through the same
// SetDataBuffer mechanism, keyed by dimension name (spec §6's
// query_set_data_buffer is the single entry point for both attribute
// and dimension values).
func (q *Query) submitWrite(ctx context.Context) error {
	if q.writer == nil {
		q.writer = newWriterState()
	}
	schema := q.Array.Schema

	for name, buf := range q.dataBuffers {
		if _, ok := schema.Attribute(name); ok {
			q.writer.attrBytes[name] = append(q.writer.attrBytes[name], buf.Bytes()...)
			continue
		}
		if _, ok := schema.Domain.Dimension(name); ok {
			q.writer.coords[name] = append(q.writer.coords[name], buf.Bytes()...)
			continue
		}
		return WrapError(QueryError, "data buffer set for unknown name "+name, ErrNoSuchAttribute)
	}
	for k := range q.dataBuffers {
		delete(q.dataBuffers, k)
	}
	q.Status = StatusCompleted
	return nil
}

// finalize sorts and tiles the accumulated cells, runs each tile
// through its attribute's filter pipeline, and publishes a new fragment
// directory (spec §4.8's shared output procedure). Errors leave no
// published fragment behind: the partial directory is removed.
func (w *writerState) finalize(ctx context.Context, q *Query) error {
	arr := q.Array
	tc := arr.ctx
	schema := arr.Schema
	dom := schema.Domain
	ndim := dom.NDim()

	var coords [][]int64
	if schema.Type == Dense && len(w.coords) == 0 {
		// No coordinate buffers were submitted, so the cells being
		// written are implicit: every coordinate of the query's subarray
		// (the whole domain if unset), in the query's own layout order
		// (spec §3: "Dense: coordinates are implicit").
		sub := q.Subarray
		if sub == nil {
			sub = NewNDRectangle(dom)
		}
		coords = deriveDenseCoords(dom, sub, schema, q.Layout)
		if err := w.validateDenseBuffers(schema, len(coords)); err != nil {
			return err
		}
	} else {
		n, err := w.cellCount(schema)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		coords, err = w.decodeCoords(schema, n)
		if err != nil {
			return err
		}
	}
	if len(coords) == 0 {
		return nil
	}

	sortSparseCells(dom, schema.TileOrder, Layout(schema.CellOrder), coords, w.attrBytes)

	ts := fragmentTimestampNow()
	name := FragmentName(pidCounter(), ts, "")
	fragURI := path.Join(arr.URI, name)

	if err := arr.locked.Lock(ctx, tc.FS, arr.URI, false); err != nil {
		return err
	}
	defer arr.locked.Unlock(tc.FS, arr.URI, false)

	if err := tc.FS.CreateDir(ctx, fragURI); err != nil {
		return WrapError(IoError, "create fragment directory", err)
	}

	meta := NewFragmentMetadata(ts)
	if err := writeFragmentTiles(ctx, tc, fragURI, schema, coords, w.attrBytes, meta); err != nil {
		_ = tc.FS.RemovePath(ctx, fragURI)
		return err
	}

	meta.BuildRTree(0)
	blob, err := meta.Serialize(dom)
	if err != nil {
		_ = tc.FS.RemovePath(ctx, fragURI)
		return WrapError(FormatError, "serialize fragment metadata", err)
	}
	if err := tc.FS.Write(ctx, path.Join(fragURI, fragMetaFileName), blob); err != nil {
		_ = tc.FS.RemovePath(ctx, fragURI)
		return WrapError(IoError, "write fragment metadata", err)
	}

	_ = ndim
	if err := tc.FS.CreateFile(ctx, path.Join(fragURI, sentinelFileName)); err != nil {
		_ = tc.FS.RemovePath(ctx, fragURI)
		return WrapError(IoError, "write fragment sentinel", err)
	}
	return nil
}

// cellCount derives the submitted cell count from whichever attribute
// or coordinate buffer was populated, requiring they all agree.
func (w *writerState) cellCount(schema *ArraySchema) (int, error) {
	n := -1
	check := func(bytes []byte, width int) error {
		if width == 0 {
			return nil
		}
		if len(bytes)%width != 0 {
			return NewError(QueryError, "buffer length is not a multiple of the element width")
		}
		c := len(bytes) / width
		if n == -1 {
			n = c
		} else if c != n {
			return WrapError(QueryError, "submitted buffers disagree on cell count", ErrOutOfBounds)
		}
		return nil
	}
	for _, a := range schema.Attributes {
		if b, ok := w.attrBytes[a.Name]; ok {
			if err := check(b, a.Type.Size()); err != nil {
				return 0, err
			}
		}
	}
	for _, d := range schema.Domain.Dimensions {
		if b, ok := w.coords[d.Name]; ok {
			if err := check(b, d.Type.Size()); err != nil {
				return 0, err
			}
		}
	}
	if n == -1 {
		return 0, nil
	}
	return n, nil
}

// validateDenseBuffers checks that every submitted attribute buffer's
// length agrees with n, the cell count derived from the query's
// subarray (dense writes have no coordinate buffers to cross-check
// against, per deriveDenseCoords).
func (w *writerState) validateDenseBuffers(schema *ArraySchema, n int) error {
	for _, a := range schema.Attributes {
		b, ok := w.attrBytes[a.Name]
		if !ok {
			continue
		}
		width := a.Type.Size()
		if width == 0 {
			width = 1
		}
		if len(b) != n*width {
			return WrapError(QueryError, "attribute buffer length does not match the subarray's cell count", ErrOutOfBounds)
		}
	}
	return nil
}

func (w *writerState) decodeCoords(schema *ArraySchema, n int) ([][]int64, error) {
	dom := schema.Domain
	coords := make([][]int64, n)
	for i := range coords {
		coords[i] = make([]int64, dom.NDim())
	}
	for di, d := range dom.Dimensions {
		b, ok := w.coords[d.Name]
		if !ok {
			continue
		}
		vals, err := decodeInt64Elements(d.Type, b)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n && i < len(vals); i++ {
			coords[i][di] = vals[i]
		}
	}
	return coords, nil
}

// sortSparseCells permutes coords and every attribute's byte buffer in
// lockstep so that cells end up in (tile_id, within-tile) order (spec
// §4.8 UNORDERED layout). finalize calls it for both array types, so a
// fragment's on-disk tile layout is always canonical regardless of the
// layout the write was submitted under.
func sortSparseCells(dom *Domain, tileOrder Order, cellOrder Layout, coords [][]int64, attrBytes map[string][]byte) {
	n := len(coords)
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	keys := make([]CellOrderKey, n)
	for i, c := range coords {
		keys[i] = MakeCellOrderKey(dom, tileOrder, cellOrder, c)
	}
	sort.Slice(perm, func(i, j int) bool { return keys[perm[i]].Less(keys[perm[j]]) })

	newCoords := make([][]int64, n)
	for i, p := range perm {
		newCoords[i] = coords[p]
	}
	copy(coords, newCoords)

	for name, b := range attrBytes {
		attrBytes[name] = permuteBytes(b, perm)
	}
}

// permuteBytes reorders b (a flat array of equal-size records inferred
// from len(b)/len(perm)) according to perm.
func permuteBytes(b []byte, perm []int) []byte {
	if len(perm) == 0 {
		return b
	}
	width := len(b) / len(perm)
	out := make([]byte, len(b))
	for i, p := range perm {
		copy(out[i*width:(i+1)*width], b[p*width:(p+1)*width])
	}
	return out
}

// writeFragmentTiles dispatches to the dense or sparse tiling strategy.
// Dense writes one tile per space tile; sparse writes one tile per
// schema.Capacity-sized chunk of the sorted cells. Both filter-encode
// each attribute's tile, append it to the attribute's file, and record
// offsets/sizes/MBRs into meta; only sparse persists coordinates
// alongside the attribute values.
func writeFragmentTiles(ctx context.Context, tc *Context, fragURI string, schema *ArraySchema, coords [][]int64, attrBytes map[string][]byte, meta *FragmentMetadata) error {
	if schema.Type == Dense {
		return writeDenseFragmentTiles(ctx, tc, fragURI, schema, coords, attrBytes, meta)
	}
	return writeSparseFragmentTiles(ctx, tc, fragURI, schema, coords, attrBytes, meta)
}

// writeSparseFragmentTiles groups the (already cell-order-sorted)
// coords into schema.Capacity-sized chunks (spec §3's per-tile cell
// capacity), recording one MBR and one coordinates tile per chunk
// alongside each attribute's tile.
func writeSparseFragmentTiles(ctx context.Context, tc *Context, fragURI string, schema *ArraySchema, coords [][]int64, attrBytes map[string][]byte, meta *FragmentMetadata) error {
	dom := schema.Domain
	n := len(coords)

	tileSize := int(schema.Capacity)
	if tileSize <= 0 {
		tileSize = n
	}
	if tileSize == 0 {
		return nil
	}

	for start := 0; start < n; start += tileSize {
		end := start + tileSize
		if end > n {
			end = n
		}
		chunk := coords[start:end]
		if len(chunk) == 0 {
			continue
		}

		mbr := &NDRectangle{}
		for _, c := range chunk {
			mbr.ExpandPoint(c)
		}
		meta.RecordTileMBR(mbr)
		meta.CellCount += uint64(len(chunk))

		for _, a := range schema.Attributes {
			full, ok := attrBytes[a.Name]
			if !ok {
				continue
			}
			width := a.Type.Size()
			if width == 0 {
				width = 1
			}
			tileBytes := full[start*width : end*width]
			encoded, err := a.Filters.Encode(a.Type, tileBytes)
			if err != nil {
				return err
			}
			uri := path.Join(fragURI, a.Name+".tdb")
			offset, err := appendAndOffset(ctx, tc, uri, encoded)
			if err != nil {
				return err
			}
			meta.RecordTile(a.Name, offset, uint64(len(encoded)))
		}

		coordBytes, err := encodeCoordChunk(dom, chunk)
		if err != nil {
			return err
		}
		encoded, err := schema.CoordsFilters.Encode(Int64, coordBytes)
		if err != nil {
			return err
		}
		uri := path.Join(fragURI, coordsFileName)
		offset, err := appendAndOffset(ctx, tc, uri, encoded)
		if err != nil {
			return err
		}
		meta.RecordCoordsTile(offset, uint64(len(encoded)))
	}
	return nil
}

// writeDenseFragmentTiles splits coords into one tile per distinct
// schema.TileOrder space tile (spec §3: "Dense arrays: exactly one tile
// per space tile"), relying on coords already being sorted by
// (tile_id, within-tile key). Each tile's attribute bytes cover every
// real-domain coordinate of the tile's full geometric range, not just
// the coordinates actually submitted: cells the caller didn't write
// (because its subarray only partially covered the tile) are filled
// with the attribute's fill value, so a later read finds a
// self-consistent, fully materialized tile (spec §4.4's fill-value
// fallback, realized at write time instead of read time).
func writeDenseFragmentTiles(ctx context.Context, tc *Context, fragURI string, schema *ArraySchema, coords [][]int64, attrBytes map[string][]byte, meta *FragmentMetadata) error {
	dom := schema.Domain
	n := len(coords)
	if n == 0 {
		return nil
	}

	start := 0
	for start < n {
		tid := TileID(dom, schema.TileOrder, coords[start])
		end := start + 1
		for end < n && TileID(dom, schema.TileOrder, coords[end]) == tid {
			end++
		}

		bounds := tileBoundsFor(dom, coords[start])
		full := enumerateCoords(bounds, cellOrderAxes(dom.NDim(), schema.CellOrder))

		meta.RecordTileMBR(&NDRectangle{Ranges: append([][2]int64{}, bounds...)})
		meta.CellCount += uint64(len(full))

		written := make(map[string]int, end-start)
		for i := start; i < end; i++ {
			written[coordKey(coords[i])] = i
		}

		for _, a := range schema.Attributes {
			src, haveSrc := attrBytes[a.Name]
			width := a.Type.Size()
			if width == 0 {
				width = 1
			}
			tileBytes := make([]byte, len(full)*width)
			for i, c := range full {
				if haveSrc {
					if srcIdx, present := written[coordKey(c)]; present {
						copy(tileBytes[i*width:(i+1)*width], src[srcIdx*width:(srcIdx+1)*width])
						continue
					}
				}
				copy(tileBytes[i*width:(i+1)*width], a.FillValue)
			}
			encoded, err := a.Filters.Encode(a.Type, tileBytes)
			if err != nil {
				return err
			}
			uri := path.Join(fragURI, a.Name+".tdb")
			offset, err := appendAndOffset(ctx, tc, uri, encoded)
			if err != nil {
				return err
			}
			meta.RecordTile(a.Name, offset, uint64(len(encoded)))
		}

		start = end
	}
	return nil
}

// tileBoundsFor returns the real-domain [lo,hi] range per dimension of
// the space tile containing c: the tile's nominal extent-wide span,
// clamped first to the dimension's expanded (tile-aligned) upper bound
// and then to its real Hi, so a ragged last tile (extent not dividing
// the domain, spec §3) only covers cells that actually exist.
func tileBoundsFor(dom *Domain, c []int64) [][2]int64 {
	bounds := make([][2]int64, dom.NDim())
	for i, dim := range dom.Dimensions {
		idx := dim.TileIndex(c[i])
		lo := dim.Lo + idx*dim.Extent
		hi := lo + dim.Extent - 1
		if hi > dim.ExpandedHi() {
			hi = dim.ExpandedHi()
		}
		if hi > dim.Hi {
			hi = dim.Hi
		}
		bounds[i] = [2]int64{lo, hi}
	}
	return bounds
}

// deriveDenseCoords enumerates every real-domain coordinate of sub, in
// the order a write submitting layout would produce (spec §3: "Dense:
// coordinates are implicit"; spec §4.8: "Writer converts the requested
// subarray's cells into global order by space-tile iteration before
// tiling" for the GLOBAL_ORDER case).
func deriveDenseCoords(dom *Domain, sub *NDRectangle, schema *ArraySchema, layout Layout) [][]int64 {
	if layout == LayoutGlobalOrder {
		return enumerateGlobalOrder(dom, sub.Ranges, schema.TileOrder, schema.CellOrder)
	}
	return enumerateCoords(sub.Ranges, cellOrderAxes(dom.NDim(), Order(layout)))
}

// enumerateGlobalOrder enumerates ranges space-tile by space-tile in
// tileOrder, and within each tile in cellOrder, clipping every tile to
// both its own expanded bound and ranges (spec §4.4/§4.8 global order).
func enumerateGlobalOrder(dom *Domain, ranges [][2]int64, tileOrder, cellOrder Order) [][]int64 {
	ndim := dom.NDim()
	tileRange := make([][2]int64, ndim)
	for i, dim := range dom.Dimensions {
		tileRange[i] = [2]int64{dim.TileIndex(ranges[i][0]), dim.TileIndex(ranges[i][1])}
	}
	tileIdxs := enumerateCoords(tileRange, cellOrderAxes(ndim, tileOrder))

	var out [][]int64
	cellAxes := cellOrderAxes(ndim, cellOrder)
	for _, tidx := range tileIdxs {
		cellRanges := make([][2]int64, ndim)
		for i, dim := range dom.Dimensions {
			lo := dim.Lo + tidx[i]*dim.Extent
			hi := lo + dim.Extent - 1
			if hi > dim.ExpandedHi() {
				hi = dim.ExpandedHi()
			}
			if lo < ranges[i][0] {
				lo = ranges[i][0]
			}
			if hi > ranges[i][1] {
				hi = ranges[i][1]
			}
			cellRanges[i] = [2]int64{lo, hi}
		}
		out = append(out, enumerateCoords(cellRanges, cellAxes)...)
	}
	return out
}

func appendAndOffset(ctx context.Context, tc *Context, uri string, data []byte) (uint64, error) {
	before, _ := tc.FS.FileSize(ctx, uri)
	if err := tc.FS.Write(ctx, uri, data); err != nil {
		return 0, WrapError(IoError, "write tile", err)
	}
	return uint64(before), nil
}

// encodeCoordChunk flattens a chunk of coordinates dimension-major
// (all dim0 values, then all dim1 values, ...), matching how the reader
// decodes the coordinates file back.
func encodeCoordChunk(dom *Domain, chunk [][]int64) ([]byte, error) {
	out := NewBuffer(len(chunk) * dom.NDim() * 8)
	for di := range dom.Dimensions {
		vals := make([]int64, len(chunk))
		for i, c := range chunk {
			vals[i] = c[di]
		}
		if err := encodeInt64Elements(Int64, vals, out); err != nil {
			return nil, err
		}
	}
	return out.Bytes(), nil
}

var pidSeq int

func pidCounter() int {
	pidSeq++
	return pidSeq
}

var lastFragmentTS atomic.Int64

// fragmentTimestampNow returns the current time in milliseconds, moved
// past the previous value it returned so that fragments written by this
// process carry strictly increasing timestamps.
func fragmentTimestampNow() int64 {
	for {
		last := lastFragmentTS.Load()
		ts := time.Now().UnixMilli()
		if ts <= last {
			ts = last + 1
		}
		if lastFragmentTS.CompareAndSwap(last, ts) {
			return ts
		}
	}
}
