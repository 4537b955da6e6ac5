package tiledbcore

import "fmt"

// FilterKind is the closed set of codec stages a filter pipeline may
// contain (spec §4.3). Modeled on the teacher's SquashComp enum
// (comp.go), generalized from "one compressor per archive" to "one
// stage in an ordered per-attribute pipeline".
type FilterKind uint8

const (
	NoCompression FilterKind = iota + 1
	Gzip
	Zstd
	Lz4
	Bzip2
	Blosc
	RLE
	DoubleDelta
	FloatScale
	BitWidthReduction
)

func (k FilterKind) String() string {
	switch k {
	case NoCompression:
		return "NoCompression"
	case Gzip:
		return "Gzip"
	case Zstd:
		return "Zstd"
	case Lz4:
		return "Lz4"
	case Bzip2:
		return "Bzip2"
	case Blosc:
		return "Blosc"
	case RLE:
		return "RLE"
	case DoubleDelta:
		return "DoubleDelta"
	case FloatScale:
		return "FloatScale"
	case BitWidthReduction:
		return "BitWidthReduction"
	default:
		return fmt.Sprintf("FilterKind(%d)", uint8(k))
	}
}

// filterCodec is the shape every registered codec implements: forward
// on write, backward on read. `typ` is the datatype of the attribute
// the filter is attached to (needed by RLE/DoubleDelta/FloatScale,
// which interpret the byte stream as fixed-width elements).
type filterCodec struct {
	forward  func(typ Datatype, in *ConstBuffer, out *Buffer, f *Filter) error
	backward func(typ Datatype, in *ConstBuffer, out *Buffer, f *Filter) error
}

var filterRegistry = map[FilterKind]filterCodec{}

// RegisterFilterCodec installs the forward/backward pair for a
// FilterKind. Codec files call this from their own init(), mirroring
// the teacher's RegisterCompHandler registry in comp.go/comp_zstd.go.
func RegisterFilterCodec(kind FilterKind, forward, backward func(Datatype, *ConstBuffer, *Buffer, *Filter) error) {
	filterRegistry[kind] = filterCodec{forward: forward, backward: backward}
}

func init() {
	RegisterFilterCodec(NoCompression,
		func(_ Datatype, in *ConstBuffer, out *Buffer, _ *Filter) error {
			_, err := out.Write(in.Bytes())
			return err
		},
		func(_ Datatype, in *ConstBuffer, out *Buffer, _ *Filter) error {
			_, err := out.Write(in.Bytes())
			return err
		})
}

// Filter is a single pipeline stage. It carries the options every
// concrete codec in spec §4.3 needs; unused fields are simply zero for
// a given Kind. This is the tagged-variant the §9 design notes call
// for in place of virtual dispatch.
type Filter struct {
	Kind FilterKind

	// Compressor options (Gzip/Zstd/Lz4/Bzip2/Blosc).
	Level int

	// Float-scale options.
	ByteWidth int
	Scale     float64
	Offset    float64

	// Bit-width-reduction option.
	Window int
}

// ApplyForward runs the filter's write-side transform.
func (f *Filter) ApplyForward(typ Datatype, in *ConstBuffer, out *Buffer) error {
	c, ok := filterRegistry[f.Kind]
	if !ok {
		return NewError(CompressionError, fmt.Sprintf("no codec registered for %s", f.Kind))
	}
	if err := c.forward(typ, in, out, f); err != nil {
		return WrapError(CompressionError, fmt.Sprintf("%s forward", f.Kind), err)
	}
	return nil
}

// ApplyBackward runs the filter's read-side inverse transform.
func (f *Filter) ApplyBackward(typ Datatype, in *ConstBuffer, out *Buffer) error {
	c, ok := filterRegistry[f.Kind]
	if !ok {
		return NewError(CompressionError, fmt.Sprintf("no codec registered for %s", f.Kind))
	}
	if err := c.backward(typ, in, out, f); err != nil {
		return WrapError(CompressionError, fmt.Sprintf("%s backward", f.Kind), err)
	}
	return nil
}

// FilterList is the ordered codec pipeline attached to an attribute or
// to the coordinate tile (spec §3 Schema, §4.3). Stage k's output feeds
// stage k+1's input on write; read reverses the list.
type FilterList struct {
	Filters []*Filter
}

// NewFilterList builds a FilterList from the given stages, applied in
// the given order on write.
func NewFilterList(filters ...*Filter) *FilterList {
	return &FilterList{Filters: filters}
}

// Encode runs the whole pipeline forward over in, producing the final
// on-disk tile bytes.
func (fl *FilterList) Encode(typ Datatype, data []byte) ([]byte, error) {
	cur := data
	for _, f := range fl.Filters {
		in := NewConstBuffer(cur)
		out := NewBuffer(len(cur))
		if err := f.ApplyForward(typ, in, out); err != nil {
			return nil, err
		}
		cur = out.Bytes()
	}
	return cur, nil
}

// Decode runs the pipeline in reverse over on-disk tile bytes,
// validating each stage's header as it goes (spec §4.3).
func (fl *FilterList) Decode(typ Datatype, data []byte) ([]byte, error) {
	cur := data
	for i := len(fl.Filters) - 1; i >= 0; i-- {
		f := fl.Filters[i]
		in := NewConstBuffer(cur)
		out := NewBuffer(len(cur))
		if err := f.ApplyBackward(typ, in, out); err != nil {
			return nil, err
		}
		cur = out.Bytes()
	}
	return cur, nil
}

// IsEmpty reports whether the pipeline has no stages (implicitly a
// passthrough).
func (fl *FilterList) IsEmpty() bool {
	return fl == nil || len(fl.Filters) == 0
}
