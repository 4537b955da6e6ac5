package tiledbcore

import (
	"context"
	"fmt"
	"path"
	"sort"

	"github.com/dstorehq/tiledbcore/internal/cache"
)

// plannedCell is one output cell: its coordinates and each attribute's
// decoded value bytes, already merged across fragments (spec §4.7:
// "later fragments win at a shared coordinate").
type plannedCell struct {
	coords []int64
	values map[string][]byte
}

// readerState holds a read query's fully materialized result, computed
// once on the first Submit and drained across possibly many Submit
// calls via Query.cursor (spec §4.7 step 6, INCOMPLETE pagination).
type readerState struct {
	cells []plannedCell
}

// submitRead builds the reader's plan on first call, then copies
// planned cells starting at q.cursor into the caller's data buffers
// until one stops fitting, recording StatusIncomplete so the caller can
// resubmit for more (spec §4.7).
func (q *Query) submitRead(ctx context.Context) error {
	if q.reader == nil {
		cells, err := planRead(ctx, q)
		if err != nil {
			return err
		}
		q.reader = &readerState{cells: cells}
	}

	for _, b := range q.dataBuffers {
		b.Reset()
	}
	for _, b := range q.offsetsBuffers {
		b.Reset()
	}
	for _, b := range q.validityBuffers {
		b.Reset()
	}

	schema := q.Array.Schema
	for ; q.cursor < len(q.reader.cells); q.cursor++ {
		cell := q.reader.cells[q.cursor]

		if buf, ok := q.dataBuffers["__coords"]; ok {
			raw, err := encodeCoordChunk(schema.Domain, [][]int64{cell.coords})
			if err != nil {
				return err
			}
			if _, err := buf.Write(raw); err != nil {
				q.Status = StatusIncomplete
				return nil
			}
		}
		for di, d := range schema.Domain.Dimensions {
			buf, ok := q.dataBuffers[d.Name]
			if !ok {
				continue
			}
			raw := NewBuffer(8)
			if err := encodeInt64Elements(d.Type, []int64{cell.coords[di]}, raw); err != nil {
				return err
			}
			if _, err := buf.Write(raw.Bytes()); err != nil {
				q.Status = StatusIncomplete
				return nil
			}
		}

		for _, a := range schema.Attributes {
			buf, ok := q.dataBuffers[a.Name]
			if !ok {
				continue
			}
			v := cell.values[a.Name]
			if v == nil {
				v = a.FillValue
			}
			if _, err := buf.Write(v); err != nil {
				q.Status = StatusIncomplete
				return nil
			}
		}
	}

	q.Status = StatusCompleted
	return nil
}

// planRead materializes every cell the query will emit, merging
// fragments oldest-to-newest so later writes override earlier ones at
// the same coordinate (spec §4.7 steps 1-5), then orders the result per
// the requested layout.
func planRead(ctx context.Context, q *Query) ([]plannedCell, error) {
	arr := q.Array
	tc := arr.ctx
	schema := arr.Schema
	dom := schema.Domain

	if err := arr.locked.Lock(ctx, tc.FS, arr.URI, true); err != nil {
		return nil, err
	}
	defer arr.locked.Unlock(tc.FS, arr.URI, true)

	frags, err := arr.Fragments(ctx)
	if err != nil {
		return nil, err
	}

	sub := q.Subarray
	if sub == nil {
		sub = NewNDRectangle(dom)
	}

	byCoord := map[string]*plannedCell{}
	var order []string

	for _, frag := range frags {
		if q.fragmentFilter != nil && !q.fragmentFilter[frag.URI] {
			continue
		}
		meta, err := loadFragmentMeta(ctx, tc, frag, dom)
		if err != nil {
			return nil, err
		}
		if meta.NonEmptyDomain != nil && !meta.NonEmptyDomain.Overlaps(sub) {
			continue
		}

		var tileIdx []int
		if len(meta.TileMBRs) > 0 {
			tileIdx = meta.RangeSearch(sub)
		} else {
			tileIdx = []int{0}
		}

		for _, ti := range tileIdx {
			cells, err := readFragmentTile(ctx, tc, frag, schema, meta, ti)
			if err != nil {
				return nil, err
			}
			for _, c := range cells {
				if !sub.Contains(c.coords) {
					continue
				}
				key := coordKey(c.coords)
				if _, seen := byCoord[key]; !seen {
					order = append(order, key)
				}
				byCoord[key] = c
			}
		}
	}

	cells := make([]plannedCell, 0, len(order))
	for _, k := range order {
		cells = append(cells, *byCoord[k])
	}

	sortPlannedCells(dom, schema.TileOrder, schema.CellOrder, q.Layout, cells)
	return cells, nil
}

func coordKey(c []int64) string {
	return fmt.Sprint(c)
}

// sortPlannedCells orders cells per the query's requested layout.
// ROW_MAJOR/COL_MAJOR sort purely on coordinates; GLOBAL_ORDER/
// UNORDERED use the schema's own cell order as the within-tile
// comparator (the array's cell order is always ROW_MAJOR or COL_MAJOR,
// never Hilbert, so global order is "tile order, then the schema's cell
// order within each tile" — the same comparator writer_query.go's
// sortSparseCells sorts by before tiling.
func sortPlannedCells(dom *Domain, tileOrder, cellOrder Order, layout Layout, cells []plannedCell) {
	switch layout {
	case LayoutRowMajor:
		sort.Slice(cells, func(i, j int) bool { return lessRowMajor(cells[i].coords, cells[j].coords) })
	case LayoutColMajor:
		sort.Slice(cells, func(i, j int) bool { return lessColMajor(cells[i].coords, cells[j].coords) })
	default:
		keys := make([]CellOrderKey, len(cells))
		for i, c := range cells {
			keys[i] = MakeCellOrderKey(dom, tileOrder, Layout(cellOrder), c.coords)
		}
		sort.Slice(cells, func(i, j int) bool { return keys[i].Less(keys[j]) })
	}
}

func lessRowMajor(a, b []int64) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func lessColMajor(a, b []int64) bool {
	for i := len(a) - 1; i >= 0; i-- {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// loadFragmentMeta reads and deserializes a fragment's metadata blob,
// consulting the fragment-metadata cache first (spec §4.5, §4.6).
func loadFragmentMeta(ctx context.Context, tc *Context, frag *Fragment, dom *Domain) (*FragmentMetadata, error) {
	key := frag.MetaURI()
	if raw, ok := tc.FragmentMetadataCache.Read(key); ok {
		return DeserializeFragmentMetadata(raw, dom, frag.Timestamp, 0)
	}
	size, err := tc.FS.FileSize(ctx, key)
	if err != nil {
		return nil, WrapError(IoError, "stat fragment metadata", err)
	}
	raw := make([]byte, size)
	if _, err := tc.FS.Read(ctx, key, 0, raw); err != nil {
		return nil, WrapError(IoError, "read fragment metadata", err)
	}
	tc.FragmentMetadataCache.Insert(key, cacheItem(raw))
	return DeserializeFragmentMetadata(raw, dom, frag.Timestamp, 0)
}

// cacheItem wraps raw bytes as a cache.Item sized by their own length.
func cacheItem(b []byte) cache.Item { return cache.Item{Bytes: b, Size: uint64(len(b))} }

// readFragmentTile decodes tile index ti of every attribute (plus
// coordinates for sparse arrays) into individual plannedCells, reading
// through the tile cache and the attribute's filter pipeline (spec
// §4.5, §4.7 step 4).
func readFragmentTile(ctx context.Context, tc *Context, frag *Fragment, schema *ArraySchema, meta *FragmentMetadata, ti int) ([]plannedCell, error) {
	var coords [][]int64

	if schema.Type == Sparse {
		raw, err := readCoordTile(ctx, tc, frag, schema, meta, ti)
		if err != nil {
			return nil, err
		}
		coords = raw
	} else {
		coords = denseTileCoords(schema, meta, ti)
	}

	n := len(coords)
	cells := make([]plannedCell, n)
	for i := range cells {
		cells[i] = plannedCell{coords: coords[i], values: map[string][]byte{}}
	}

	// Each attribute's tile is read and filter-decoded independently, so
	// the pool fans them out across the tile's width instead of reading
	// one attribute at a time (spec §5's process-wide work pool).
	attrVals := make([][]byte, len(schema.Attributes))
	tasks := make([]func(context.Context) error, len(schema.Attributes))
	for ai, a := range schema.Attributes {
		ai, a := ai, a
		tasks[ai] = func(ctx context.Context) error {
			vals, err := readAttrTile(ctx, tc, frag, a, meta, ti, n)
			if err != nil {
				return err
			}
			attrVals[ai] = vals
			return nil
		}
	}
	if err := tc.Pool.Run(ctx, tasks...); err != nil {
		return nil, err
	}

	for ai, a := range schema.Attributes {
		width := a.Type.Size()
		if width == 0 {
			width = 1
		}
		vals := attrVals[ai]
		for i := 0; i < n; i++ {
			cells[i].values[a.Name] = vals[i*width : (i+1)*width]
		}
	}
	return cells, nil
}

// readCoordTile decodes tile ti of the sparse coordinates file into a
// slice of per-cell coordinate tuples (dimension-major layout, matching
// encodeCoordChunk on the write side), using the fragment's recorded
// per-tile (offset, size) (spec §4.6).
func readCoordTile(ctx context.Context, tc *Context, frag *Fragment, schema *ArraySchema, meta *FragmentMetadata, ti int) ([][]int64, error) {
	if ti >= len(meta.CoordsOffsets) {
		return nil, nil
	}
	uri := frag.CoordsURI()
	cacheKey := fmt.Sprintf("%s#%d", uri, ti)

	var encoded []byte
	if raw, ok := tc.TileCache.Read(cacheKey); ok {
		encoded = raw
	} else {
		encoded = make([]byte, meta.CoordsSizes[ti])
		if _, err := tc.FS.Read(ctx, uri, int64(meta.CoordsOffsets[ti]), encoded); err != nil {
			return nil, WrapError(IoError, "read coordinate tile", err)
		}
		tc.TileCache.Insert(cacheKey, cacheItem(encoded))
	}

	raw, err := schema.CoordsFilters.Decode(Int64, encoded)
	if err != nil {
		return nil, err
	}

	ndim := schema.Domain.NDim()
	vals, err := decodeInt64Elements(Int64, raw)
	if err != nil {
		return nil, err
	}
	n := len(vals) / ndim
	coords := make([][]int64, n)
	for i := range coords {
		coords[i] = make([]int64, ndim)
	}
	for di := 0; di < ndim; di++ {
		for i := 0; i < n; i++ {
			coords[i][di] = vals[di*n+i]
		}
	}
	return coords, nil
}

// denseTileCoords enumerates every coordinate stored in dense tile ti,
// in the schema's cell order, from the tile's recorded MBR (spec §4.4
// dense tiling: one tile per space tile, the same TileMBRs bookkeeping
// sparse tiles use). The writer pads a tile's attribute bytes to cover
// every coordinate in this same range with fill values where nothing
// was written, so the two sides stay index-aligned.
func denseTileCoords(schema *ArraySchema, meta *FragmentMetadata, ti int) [][]int64 {
	if ti >= len(meta.TileMBRs) {
		return nil
	}
	ranges := meta.TileMBRs[ti].Ranges
	return enumerateCoords(ranges, cellOrderAxes(len(ranges), schema.CellOrder))
}

// readAttrTile reads, cache-checks, and filter-decodes tile ti of
// attribute a, returning n cells' worth of raw value bytes.
func readAttrTile(ctx context.Context, tc *Context, frag *Fragment, a *Attribute, meta *FragmentMetadata, ti int, n int) ([]byte, error) {
	am, ok := meta.Attrs[a.Name]
	if !ok || ti >= len(am.Offsets) {
		width := a.Type.Size()
		if width == 0 {
			width = 1
		}
		out := make([]byte, n*width)
		for i := 0; i < n; i++ {
			copy(out[i*width:(i+1)*width], a.FillValue)
		}
		return out, nil
	}

	uri := path.Join(frag.URI, a.Name+".tdb")
	cacheKey := fmt.Sprintf("%s#%d", uri, ti)
	if raw, ok := tc.TileCache.Read(cacheKey); ok {
		return a.Filters.Decode(a.Type, raw)
	}

	encoded := make([]byte, am.Sizes[ti])
	if _, err := tc.FS.Read(ctx, uri, int64(am.Offsets[ti]), encoded); err != nil {
		return nil, WrapError(IoError, "read tile", err)
	}
	tc.TileCache.Insert(cacheKey, cacheItem(encoded))
	return a.Filters.Decode(a.Type, encoded)
}
