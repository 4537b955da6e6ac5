package tiledbcore

import (
	"encoding/binary"
	"math"
)

func float64bitsOrZero(f float64) uint64 { return math.Float64bits(f) }
func float64FromBits(u uint64) float64   { return math.Float64frombits(u) }

// schemaVersion is the current on-disk schema blob version (spec §4.4).
// Readers consult the stored version and default missing fields for
// older blobs, so this only increases when the blob layout gains fields.
const schemaVersion uint32 = 1

// ArraySchema is the immutable (modulo evolution, see Evolve) shape of
// an array: type, orders, capacity, domain, attributes, and the
// coordinate filter list (spec §3).
type ArraySchema struct {
	Version       uint32
	Type          ArrayType
	CellOrder     Order
	TileOrder     Order
	Capacity      uint64
	Domain        *Domain
	Attributes    []*Attribute
	CoordsFilters *FilterList

	// Prev is the schema version this one evolved from, or nil for the
	// schema an array was created with (spec §9 schema evolution chain).
	Prev *ArraySchema
}

// NewArraySchema validates and builds a schema. Attribute names must be
// unique and must not collide with reserved names (spec §3).
func NewArraySchema(typ ArrayType, cellOrder, tileOrder Order, capacity uint64, dom *Domain, attrs []*Attribute) (*ArraySchema, error) {
	seen := map[string]bool{"__coords": true, "__key": true}
	for _, a := range attrs {
		if seen[a.Name] {
			if a.Name == "__coords" || a.Name == "__key" {
				return nil, ErrReservedName
			}
			return nil, WrapError(SchemaError, "duplicate attribute name "+a.Name, ErrDuplicateName)
		}
		seen[a.Name] = true
	}
	if dom == nil || dom.NDim() == 0 {
		return nil, NewError(SchemaError, "schema requires a non-empty domain")
	}
	return &ArraySchema{
		Version:       schemaVersion,
		Type:          typ,
		CellOrder:     cellOrder,
		TileOrder:     tileOrder,
		Capacity:      capacity,
		Domain:        dom,
		Attributes:    attrs,
		CoordsFilters: NewFilterList(),
	}, nil
}

// Attribute looks up an attribute by name.
func (s *ArraySchema) Attribute(name string) (*Attribute, bool) {
	for _, a := range s.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// Serialize writes the schema's versioned blob layout (spec §4.4):
// version, array type, cell order, tile order, capacity, coords
// filter list, dimension count + dimensions, attribute count +
// attributes. All multi-byte integers little-endian.
func (s *ArraySchema) Serialize() ([]byte, error) {
	buf := NewBuffer(256)
	w32 := func(v uint32) error { var b [4]byte; binary.LittleEndian.PutUint32(b[:], v); _, err := buf.Write(b[:]); return err }
	w64 := func(v uint64) error { var b [8]byte; binary.LittleEndian.PutUint64(b[:], v); _, err := buf.Write(b[:]); return err }
	w8 := func(v uint8) error { _, err := buf.Write([]byte{v}); return err }
	wstr := func(s string) error {
		if err := w32(uint32(len(s))); err != nil {
			return err
		}
		_, err := buf.Write([]byte(s))
		return err
	}

	if err := w32(s.Version); err != nil {
		return nil, err
	}
	if err := w8(uint8(s.Type)); err != nil {
		return nil, err
	}
	if err := w8(uint8(s.CellOrder)); err != nil {
		return nil, err
	}
	if err := w8(uint8(s.TileOrder)); err != nil {
		return nil, err
	}
	if err := w64(s.Capacity); err != nil {
		return nil, err
	}
	if err := serializeFilterList(buf, s.CoordsFilters); err != nil {
		return nil, err
	}

	if err := w32(uint32(s.Domain.NDim())); err != nil {
		return nil, err
	}
	for _, d := range s.Domain.Dimensions {
		if err := wstr(d.Name); err != nil {
			return nil, err
		}
		if err := w8(uint8(d.Type)); err != nil {
			return nil, err
		}
		if err := w64(uint64(d.Lo)); err != nil {
			return nil, err
		}
		if err := w64(uint64(d.Hi)); err != nil {
			return nil, err
		}
		if err := w64(uint64(d.Extent)); err != nil {
			return nil, err
		}
	}

	if err := w32(uint32(len(s.Attributes))); err != nil {
		return nil, err
	}
	for _, a := range s.Attributes {
		if err := wstr(a.Name); err != nil {
			return nil, err
		}
		if err := w8(uint8(a.Type)); err != nil {
			return nil, err
		}
		if err := w32(uint32(a.CellValNum)); err != nil {
			return nil, err
		}
		nullable := uint8(0)
		if a.Nullable {
			nullable = 1
		}
		if err := w8(nullable); err != nil {
			return nil, err
		}
		if err := serializeFilterList(buf, a.Filters); err != nil {
			return nil, err
		}
		if err := w32(uint32(len(a.FillValue))); err != nil {
			return nil, err
		}
		if _, err := buf.Write(a.FillValue); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// DeserializeArraySchema reads back a schema blob written by Serialize.
// Reading tolerates older versions by checking the stored version and
// defaulting fields absent from that version (spec §4.4); version 1 is
// the only version this core has ever written, so there is nothing yet
// to default, but the version is still validated to reject corruption.
func DeserializeArraySchema(data []byte) (*ArraySchema, error) {
	c := NewConstBuffer(data)
	r32 := func() (uint32, error) {
		var b [4]byte
		if _, err := c.Read(b[:]); err != nil {
			return 0, WrapError(FormatError, "truncated schema blob", err)
		}
		return binary.LittleEndian.Uint32(b[:]), nil
	}
	r64 := func() (uint64, error) {
		var b [8]byte
		if _, err := c.Read(b[:]); err != nil {
			return 0, WrapError(FormatError, "truncated schema blob", err)
		}
		return binary.LittleEndian.Uint64(b[:]), nil
	}
	r8 := func() (uint8, error) {
		var b [1]byte
		if _, err := c.Read(b[:]); err != nil {
			return 0, WrapError(FormatError, "truncated schema blob", err)
		}
		return b[0], nil
	}
	rstr := func() (string, error) {
		n, err := r32()
		if err != nil {
			return "", err
		}
		b := make([]byte, n)
		if _, err := c.Read(b); err != nil {
			return "", WrapError(FormatError, "truncated schema blob", err)
		}
		return string(b), nil
	}

	version, err := r32()
	if err != nil {
		return nil, err
	}
	if version == 0 || version > schemaVersion {
		return nil, NewError(FormatError, "unsupported schema version")
	}

	typByte, err := r8()
	if err != nil {
		return nil, err
	}
	cellOrderByte, err := r8()
	if err != nil {
		return nil, err
	}
	tileOrderByte, err := r8()
	if err != nil {
		return nil, err
	}
	capacity, err := r64()
	if err != nil {
		return nil, err
	}
	coordsFilters, err := deserializeFilterList(c)
	if err != nil {
		return nil, err
	}

	ndim, err := r32()
	if err != nil {
		return nil, err
	}
	dims := make([]*Dimension, ndim)
	for i := range dims {
		name, err := rstr()
		if err != nil {
			return nil, err
		}
		typ, err := r8()
		if err != nil {
			return nil, err
		}
		lo, err := r64()
		if err != nil {
			return nil, err
		}
		hi, err := r64()
		if err != nil {
			return nil, err
		}
		extent, err := r64()
		if err != nil {
			return nil, err
		}
		dims[i] = &Dimension{Name: name, Type: Datatype(typ), Lo: int64(lo), Hi: int64(hi), Extent: int64(extent)}
	}
	dom, err := NewDomain(dims...)
	if err != nil {
		return nil, err
	}

	nattr, err := r32()
	if err != nil {
		return nil, err
	}
	attrs := make([]*Attribute, nattr)
	for i := range attrs {
		name, err := rstr()
		if err != nil {
			return nil, err
		}
		typ, err := r8()
		if err != nil {
			return nil, err
		}
		cellValNum, err := r32()
		if err != nil {
			return nil, err
		}
		nullableByte, err := r8()
		if err != nil {
			return nil, err
		}
		filters, err := deserializeFilterList(c)
		if err != nil {
			return nil, err
		}
		fillLen, err := r32()
		if err != nil {
			return nil, err
		}
		fill := make([]byte, fillLen)
		if _, err := c.Read(fill); err != nil {
			return nil, WrapError(FormatError, "truncated schema blob", err)
		}
		attrs[i] = &Attribute{
			Name:       name,
			Type:       Datatype(typ),
			CellValNum: CellValNum(int32(cellValNum)),
			Nullable:   nullableByte != 0,
			Filters:    filters,
			FillValue:  fill,
		}
	}

	return &ArraySchema{
		Version:       version,
		Type:          ArrayType(typByte),
		CellOrder:     Order(cellOrderByte),
		TileOrder:     Order(tileOrderByte),
		Capacity:      capacity,
		Domain:        dom,
		Attributes:    attrs,
		CoordsFilters: coordsFilters,
	}, nil
}

func serializeFilterList(buf *Buffer, fl *FilterList) error {
	n := 0
	if fl != nil {
		n = len(fl.Filters)
	}
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(n))
	if _, err := buf.Write(hdr[:]); err != nil {
		return err
	}
	var stages []*Filter
	if fl != nil {
		stages = fl.Filters
	}
	for _, f := range stages {
		var rec [1 + 4 + 4 + 8 + 8 + 4]byte
		rec[0] = byte(f.Kind)
		binary.LittleEndian.PutUint32(rec[1:5], uint32(f.Level))
		binary.LittleEndian.PutUint32(rec[5:9], uint32(f.ByteWidth))
		binary.LittleEndian.PutUint64(rec[9:17], float64bitsOrZero(f.Scale))
		binary.LittleEndian.PutUint64(rec[17:25], float64bitsOrZero(f.Offset))
		binary.LittleEndian.PutUint32(rec[25:29], uint32(f.Window))
		if _, err := buf.Write(rec[:]); err != nil {
			return err
		}
	}
	return nil
}

func deserializeFilterList(c *ConstBuffer) (*FilterList, error) {
	var hdr [4]byte
	if _, err := c.Read(hdr[:]); err != nil {
		return nil, WrapError(FormatError, "truncated filter list", err)
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	filters := make([]*Filter, n)
	for i := range filters {
		var rec [1 + 4 + 4 + 8 + 8 + 4]byte
		if _, err := c.Read(rec[:]); err != nil {
			return nil, WrapError(FormatError, "truncated filter list", err)
		}
		filters[i] = &Filter{
			Kind:      FilterKind(rec[0]),
			Level:     int(int32(binary.LittleEndian.Uint32(rec[1:5]))),
			ByteWidth: int(int32(binary.LittleEndian.Uint32(rec[5:9]))),
			Scale:     float64FromBits(binary.LittleEndian.Uint64(rec[9:17])),
			Offset:    float64FromBits(binary.LittleEndian.Uint64(rec[17:25])),
			Window:    int(int32(binary.LittleEndian.Uint32(rec[25:29]))),
		}
	}
	return &FilterList{Filters: filters}, nil
}

// SchemaEvolution describes one step in a schema's evolution chain
// (spec §9): an added attribute (with the fill value older fragments
// must report for it) and/or a dropped attribute name.
type SchemaEvolution struct {
	AddAttributes  []*Attribute
	DropAttributes []string
}

// Evolve applies an evolution step, producing a *new* schema version;
// the receiver is never mutated, per spec §9 ("never mutate a
// previously persisted schema").
func (s *ArraySchema) Evolve(ev *SchemaEvolution) (*ArraySchema, error) {
	next := &ArraySchema{
		Version:       s.Version,
		Type:          s.Type,
		CellOrder:     s.CellOrder,
		TileOrder:     s.TileOrder,
		Capacity:      s.Capacity,
		Domain:        s.Domain,
		CoordsFilters: s.CoordsFilters,
		Prev:          s,
	}
	dropped := make(map[string]bool, len(ev.DropAttributes))
	for _, name := range ev.DropAttributes {
		dropped[name] = true
	}
	for _, a := range s.Attributes {
		if !dropped[a.Name] {
			next.Attributes = append(next.Attributes, a)
		}
	}
	existing := map[string]bool{}
	for _, a := range next.Attributes {
		existing[a.Name] = true
	}
	for _, a := range ev.AddAttributes {
		if existing[a.Name] {
			return nil, WrapError(SchemaError, "duplicate attribute name "+a.Name, ErrDuplicateName)
		}
		next.Attributes = append(next.Attributes, a)
		existing[a.Name] = true
	}
	return next, nil
}
