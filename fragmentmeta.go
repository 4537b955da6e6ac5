package tiledbcore

import (
	"encoding/binary"

	"github.com/dstorehq/tiledbcore/internal/rtree"
)

const fragMetaVersion uint32 = 1

// AttrFileMeta is one attribute's per-tile on-disk bookkeeping (spec §6:
// "per-attribute (offsets[], sizes[], optional validity_offsets/sizes[])").
type AttrFileMeta struct {
	Offsets         []uint64
	Sizes           []uint64
	ValidityOffsets []uint64
	ValiditySizes   []uint64
}

// FragmentMetadata is a fragment's complete bookkeeping: non-empty
// domain, per-tile MBRs (dense and sparse, indexed by the R-tree), per-
// attribute offsets/sizes, and cell count (spec §4.6).
type FragmentMetadata struct {
	NonEmptyDomain *NDRectangle
	TileMBRs       []rtree.Box // one entry per tile, in the order the writer emitted it
	Attrs          map[string]*AttrFileMeta
	CellCount      uint64
	Timestamp      int64

	// CoordsOffsets/CoordsSizes are the sparse coordinates file's
	// per-tile (offset, size), parallel to TileMBRs.
	CoordsOffsets []uint64
	CoordsSizes   []uint64

	rtree *rtree.RTree // built lazily from TileMBRs at close time
}

// NewFragmentMetadata returns an empty metadata record ready to
// accumulate a fragment's tiles as the writer emits them.
func NewFragmentMetadata(ts int64) *FragmentMetadata {
	return &FragmentMetadata{
		Attrs:     make(map[string]*AttrFileMeta),
		Timestamp: ts,
	}
}

// RecordTile appends one tile's on-disk (offset, size) to attr's
// bookkeeping, growing the attribute's entry lazily.
func (m *FragmentMetadata) RecordTile(attr string, offset, size uint64) {
	a, ok := m.Attrs[attr]
	if !ok {
		a = &AttrFileMeta{}
		m.Attrs[attr] = a
	}
	a.Offsets = append(a.Offsets, offset)
	a.Sizes = append(a.Sizes, size)
}

// RecordValidity appends one tile's validity (offset, size).
func (m *FragmentMetadata) RecordValidity(attr string, offset, size uint64) {
	a, ok := m.Attrs[attr]
	if !ok {
		a = &AttrFileMeta{}
		m.Attrs[attr] = a
	}
	a.ValidityOffsets = append(a.ValidityOffsets, offset)
	a.ValiditySizes = append(a.ValiditySizes, size)
}

// RecordTileMBR appends a tile's MBR (for a dense tile, its real-domain
// bounds), expanding the fragment's
// non-empty domain to cover it.
func (m *FragmentMetadata) RecordTileMBR(mbr *NDRectangle) {
	if m.NonEmptyDomain == nil {
		m.NonEmptyDomain = &NDRectangle{}
	}
	m.NonEmptyDomain.Expand(mbr)
	m.TileMBRs = append(m.TileMBRs, rtree.Box{Ranges: append([][2]int64{}, mbr.Ranges...)})
}

// RecordCoordsTile appends one sparse coordinates tile's on-disk
// (offset, size), parallel to the TileMBR recorded for the same tile.
func (m *FragmentMetadata) RecordCoordsTile(offset, size uint64) {
	m.CoordsOffsets = append(m.CoordsOffsets, offset)
	m.CoordsSizes = append(m.CoordsSizes, size)
}

// BuildRTree bulk-loads the static R-tree over this fragment's tile
// MBRs, called once at fragment-close time (spec §4.6: "built at
// fragment-close time").
func (m *FragmentMetadata) BuildRTree(fanout int) {
	m.rtree = rtree.Build(m.TileMBRs, fanout)
}

// RangeSearch returns the indices of tiles (in global order) overlapping
// query. BuildRTree must have been called, either by the writer at
// close time or after deserialization.
func (m *FragmentMetadata) RangeSearch(query *NDRectangle) []int {
	if m.rtree == nil {
		return nil
	}
	return m.rtree.RangeSearch(rtree.Box{Ranges: query.Ranges})
}

// Serialize writes the fragment-metadata blob (spec §6): version,
// non-empty domain, cell count, per-attribute offsets/sizes/validity,
// then the R-tree leaf MBRs in global order (internal nodes are
// rebuilt from the leaves on load rather than persisted, since bulk
// loading them is O(n) and avoids a second serialized structure to keep
// in sync).
func (m *FragmentMetadata) Serialize(dom *Domain) ([]byte, error) {
	buf := NewBuffer(256)
	w32 := func(v uint32) error { var b [4]byte; binary.LittleEndian.PutUint32(b[:], v); _, err := buf.Write(b[:]); return err }
	w64 := func(v uint64) error { var b [8]byte; binary.LittleEndian.PutUint64(b[:], v); _, err := buf.Write(b[:]); return err }
	wi64 := func(v int64) error { return w64(uint64(v)) }
	wstr := func(s string) error {
		if err := w32(uint32(len(s))); err != nil {
			return err
		}
		_, err := buf.Write([]byte(s))
		return err
	}
	wu64slice := func(s []uint64) error {
		if err := w32(uint32(len(s))); err != nil {
			return err
		}
		for _, v := range s {
			if err := w64(v); err != nil {
				return err
			}
		}
		return nil
	}

	if err := w32(fragMetaVersion); err != nil {
		return nil, err
	}

	ndim := dom.NDim()
	if err := w32(uint32(ndim)); err != nil {
		return nil, err
	}
	ned := m.NonEmptyDomain
	for i := 0; i < ndim; i++ {
		lo, hi := int64(0), int64(-1)
		if ned != nil && i < len(ned.Ranges) {
			lo, hi = ned.Ranges[i][0], ned.Ranges[i][1]
		}
		if err := wi64(lo); err != nil {
			return nil, err
		}
		if err := wi64(hi); err != nil {
			return nil, err
		}
	}

	if err := w64(m.CellCount); err != nil {
		return nil, err
	}

	if err := w32(uint32(len(m.Attrs))); err != nil {
		return nil, err
	}
	for name, a := range m.Attrs {
		if err := wstr(name); err != nil {
			return nil, err
		}
		if err := wu64slice(a.Offsets); err != nil {
			return nil, err
		}
		if err := wu64slice(a.Sizes); err != nil {
			return nil, err
		}
		if err := wu64slice(a.ValidityOffsets); err != nil {
			return nil, err
		}
		if err := wu64slice(a.ValiditySizes); err != nil {
			return nil, err
		}
	}

	if err := w32(uint32(len(m.TileMBRs))); err != nil {
		return nil, err
	}
	for _, mbr := range m.TileMBRs {
		for _, r := range mbr.Ranges {
			if err := wi64(r[0]); err != nil {
				return nil, err
			}
			if err := wi64(r[1]); err != nil {
				return nil, err
			}
		}
	}

	if err := wu64slice(m.CoordsOffsets); err != nil {
		return nil, err
	}
	if err := wu64slice(m.CoordsSizes); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DeserializeFragmentMetadata reads back a blob written by Serialize
// and rebuilds its R-tree from the persisted leaf MBRs.
func DeserializeFragmentMetadata(data []byte, dom *Domain, ts int64, fanout int) (*FragmentMetadata, error) {
	c := NewConstBuffer(data)
	r32 := func() (uint32, error) {
		var b [4]byte
		if _, err := c.Read(b[:]); err != nil {
			return 0, WrapError(FormatError, "truncated fragment metadata", err)
		}
		return binary.LittleEndian.Uint32(b[:]), nil
	}
	r64 := func() (uint64, error) {
		var b [8]byte
		if _, err := c.Read(b[:]); err != nil {
			return 0, WrapError(FormatError, "truncated fragment metadata", err)
		}
		return binary.LittleEndian.Uint64(b[:]), nil
	}
	ri64 := func() (int64, error) { v, err := r64(); return int64(v), err }
	rstr := func() (string, error) {
		n, err := r32()
		if err != nil {
			return "", err
		}
		b := make([]byte, n)
		if _, err := c.Read(b); err != nil {
			return "", WrapError(FormatError, "truncated fragment metadata", err)
		}
		return string(b), nil
	}
	ru64slice := func() ([]uint64, error) {
		n, err := r32()
		if err != nil {
			return nil, err
		}
		out := make([]uint64, n)
		for i := range out {
			v, err := r64()
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}

	version, err := r32()
	if err != nil {
		return nil, err
	}
	if version == 0 || version > fragMetaVersion {
		return nil, NewError(FormatError, "unsupported fragment metadata version")
	}

	ndim, err := r32()
	if err != nil {
		return nil, err
	}
	ned := &NDRectangle{Ranges: make([][2]int64, ndim)}
	for i := uint32(0); i < ndim; i++ {
		lo, err := ri64()
		if err != nil {
			return nil, err
		}
		hi, err := ri64()
		if err != nil {
			return nil, err
		}
		ned.Ranges[i] = [2]int64{lo, hi}
	}

	cellCount, err := r64()
	if err != nil {
		return nil, err
	}

	nattr, err := r32()
	if err != nil {
		return nil, err
	}
	attrs := make(map[string]*AttrFileMeta, nattr)
	for i := uint32(0); i < nattr; i++ {
		name, err := rstr()
		if err != nil {
			return nil, err
		}
		offsets, err := ru64slice()
		if err != nil {
			return nil, err
		}
		sizes, err := ru64slice()
		if err != nil {
			return nil, err
		}
		vOffsets, err := ru64slice()
		if err != nil {
			return nil, err
		}
		vSizes, err := ru64slice()
		if err != nil {
			return nil, err
		}
		attrs[name] = &AttrFileMeta{Offsets: offsets, Sizes: sizes, ValidityOffsets: vOffsets, ValiditySizes: vSizes}
	}

	nMBR, err := r32()
	if err != nil {
		return nil, err
	}
	mbrs := make([]rtree.Box, nMBR)
	for i := uint32(0); i < nMBR; i++ {
		ranges := make([][2]int64, ndim)
		for d := uint32(0); d < ndim; d++ {
			lo, err := ri64()
			if err != nil {
				return nil, err
			}
			hi, err := ri64()
			if err != nil {
				return nil, err
			}
			ranges[d] = [2]int64{lo, hi}
		}
		mbrs[i] = rtree.Box{Ranges: ranges}
	}

	coordsOffsets, err := ru64slice()
	if err != nil {
		return nil, err
	}
	coordsSizes, err := ru64slice()
	if err != nil {
		return nil, err
	}

	m := &FragmentMetadata{
		NonEmptyDomain: ned,
		TileMBRs:       mbrs,
		Attrs:          attrs,
		CoordsOffsets:  coordsOffsets,
		CoordsSizes:    coordsSizes,
		CellCount:      cellCount,
		Timestamp:      ts,
	}
	m.BuildRTree(fanout)
	return m, nil
}
