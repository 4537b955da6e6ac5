package tiledbcore

// CellValNum distinguishes fixed scalar/vector attributes from
// variable-length ones (spec §3). A positive value is the fixed cell
// count; CellValNumVar marks variable-length (values + offsets tile).
type CellValNum int32

const CellValNumVar CellValNum = -1

// Attribute describes one value column stored alongside a Domain's
// coordinates (spec §3). Var attributes additionally persist an
// offsets tile; nullable attributes additionally persist a validity
// tile (spec §6 on-disk layout).
type Attribute struct {
	Name       string
	Type       Datatype
	CellValNum CellValNum
	Nullable   bool
	Filters    *FilterList
	FillValue  []byte
}

// NewAttribute builds an Attribute with a fixed cell_val_num of 1 and a
// zero-valued fill value sized to the type (spec §3's "per-attribute
// fill value" default).
func NewAttribute(name string, typ Datatype) (*Attribute, error) {
	if name == "" {
		return nil, NewError(SchemaError, "attribute name must not be empty")
	}
	if name == "__coords" || name == "__key" {
		return nil, ErrReservedName
	}
	width := typ.Size()
	if width == 0 {
		width = 1
	}
	return &Attribute{
		Name:       name,
		Type:       typ,
		CellValNum: 1,
		Filters:    NewFilterList(),
		FillValue:  make([]byte, width),
	}, nil
}

// IsVar reports whether this attribute is variable-length.
func (a *Attribute) IsVar() bool {
	return a.CellValNum == CellValNumVar
}

// CellSize returns the fixed on-disk size of one cell's values in
// bytes, or 0 for variable-length attributes (whose cell size is only
// known from the offsets tile).
func (a *Attribute) CellSize() int {
	if a.IsVar() {
		return 0
	}
	return a.Type.Size() * int(a.CellValNum)
}

// WithFilters replaces the attribute's filter pipeline, returning the
// receiver for chaining (functional-options-adjacent convenience used
// by schema builders).
func (a *Attribute) WithFilters(fl *FilterList) *Attribute {
	a.Filters = fl
	return a
}

// WithFillValue overrides the default zero fill value.
func (a *Attribute) WithFillValue(v []byte) *Attribute {
	a.FillValue = v
	return a
}

// WithNullable marks the attribute nullable, adding a validity tile on
// disk (spec §6).
func (a *Attribute) WithNullable(nullable bool) *Attribute {
	a.Nullable = nullable
	return a
}

// WithCellValNum sets a fixed vector width (n>1) or CellValNumVar.
func (a *Attribute) WithCellValNum(n CellValNum) *Attribute {
	a.CellValNum = n
	return a
}
