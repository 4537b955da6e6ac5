package tiledbcore

import "fmt"

// Datatype is the closed set of cell value types a dimension or
// attribute may hold. Modeled on the teacher's Type enum (type.go),
// which gives every basic kind a String() and a small helper method set.
type Datatype uint8

const (
	Int8 Datatype = iota + 1
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
	DatetimeMs // signed int64 milliseconds since epoch; also used by Double-delta
	StringAscii
)

func (t Datatype) String() string {
	switch t {
	case Int8:
		return "INT8"
	case Uint8:
		return "UINT8"
	case Int16:
		return "INT16"
	case Uint16:
		return "UINT16"
	case Int32:
		return "INT32"
	case Uint32:
		return "UINT32"
	case Int64:
		return "INT64"
	case Uint64:
		return "UINT64"
	case Float32:
		return "FLOAT32"
	case Float64:
		return "FLOAT64"
	case DatetimeMs:
		return "DATETIME_MS"
	case StringAscii:
		return "STRING_ASCII"
	default:
		return fmt.Sprintf("Datatype(%d)", uint8(t))
	}
}

// Size returns the fixed on-disk width in bytes of one value of this
// type, or 0 for STRING_ASCII whose values are variable-length and
// addressed only through an attribute's cell_val_num/VAR handling.
func (t Datatype) Size() int {
	switch t {
	case Int8, Uint8, StringAscii:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64, DatetimeMs:
		return 8
	default:
		return 0
	}
}

// IsInteger reports whether the type is an integral type; the
// BitWidthReduction filter accepts only such types.
func (t Datatype) IsInteger() bool {
	switch t {
	case Int8, Uint8, Int16, Uint16, Int32, Uint32, Int64, Uint64, DatetimeMs:
		return true
	default:
		return false
	}
}

// IsFloat reports whether the type is a floating-point type.
func (t Datatype) IsFloat() bool {
	return t == Float32 || t == Float64
}

// IsSigned reports whether values of t are interpreted as signed.
func (t Datatype) IsSigned() bool {
	switch t {
	case Int8, Int16, Int32, Int64, DatetimeMs, Float32, Float64:
		return true
	default:
		return false
	}
}
