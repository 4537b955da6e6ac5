package tiledbcore

// Dimension is one axis of a Domain: a typed, bounded, tiled coordinate
// space (spec §3). StringAscii dimensions carry no fixed domain/extent
// (Lo/Hi/Extent are ignored); every other type requires both.
type Dimension struct {
	Name   string
	Type   Datatype
	Lo     int64
	Hi     int64
	Extent int64
}

// NewDimension builds a Dimension, validating the obvious shape
// constraints up front rather than deferring to schema validation time.
func NewDimension(name string, typ Datatype, lo, hi, extent int64) (*Dimension, error) {
	if name == "" {
		return nil, NewError(SchemaError, "dimension name must not be empty")
	}
	if typ == StringAscii {
		return &Dimension{Name: name, Type: typ}, nil
	}
	if hi < lo {
		return nil, NewError(SchemaError, "dimension domain hi must be >= lo")
	}
	if extent <= 0 {
		return nil, NewError(SchemaError, "dimension tile extent must be positive")
	}
	return &Dimension{Name: name, Type: typ, Lo: lo, Hi: hi, Extent: extent}, nil
}

// DomainSize is hi - lo + 1, the unexpanded extent of the dimension's range.
func (d *Dimension) DomainSize() int64 {
	return d.Hi - d.Lo + 1
}

// TileCount is the number of space tiles along this dimension once the
// domain is expanded to the next multiple of Extent (spec §3: "the
// array is conceptually expanded to the next multiple").
func (d *Dimension) TileCount() int64 {
	size := d.DomainSize()
	return (size + d.Extent - 1) / d.Extent
}

// ExpandedHi is the upper bound of the expanded domain, i.e. the
// smallest value >= Hi such that (ExpandedHi-Lo+1) is a multiple of Extent.
func (d *Dimension) ExpandedHi() int64 {
	return d.Lo + d.TileCount()*d.Extent - 1
}

// TileIndex returns which space tile coordinate c falls into along this
// dimension (0-based, relative to Lo).
func (d *Dimension) TileIndex(c int64) int64 {
	return (c - d.Lo) / d.Extent
}

// InDomain reports whether c falls within [Lo, Hi] (the unexpanded,
// user-visible domain).
func (d *Dimension) InDomain(c int64) bool {
	return c >= d.Lo && c <= d.Hi
}
