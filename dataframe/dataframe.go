// Package dataframe defines the columnar result type this client produces
// and the Kind tags a real dataframe engine would switch on to adopt a
// Series. It deliberately holds no dependency on any particular engine —
// see DESIGN.md for the engines considered and why none was wired directly
// into this type.
package dataframe

// Kind is the logical type of a Series after the column decoder's
// finalization step (spec.md §4.2's OID -> logical-type table).
type Kind int

const (
	KindInt32 Kind = iota
	KindText
	KindBool
	KindFloat64
	KindDate         // days since 1970-01-01
	KindTimestamp    // microseconds since 1970-01-01, wall-clock
	KindTimestampTZ  // microseconds since 1970-01-01 UTC
	KindTime         // microseconds since midnight
	KindTextArray    // list<string>, each element independently nullable
	KindBytes        // fallback: raw column payload
)

func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "int32"
	case KindText:
		return "text"
	case KindBool:
		return "bool"
	case KindFloat64:
		return "float64"
	case KindDate:
		return "date"
	case KindTimestamp:
		return "timestamp"
	case KindTimestampTZ:
		return "timestamptz"
	case KindTime:
		return "time"
	case KindTextArray:
		return "text[]"
	case KindBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// Series is one named, typed, nullable column. Exactly one of the typed
// slices below is populated, selected by Kind; Valid marks which entries
// are non-null. All slices (when populated) and Valid have equal length.
type Series struct {
	Name  string
	Kind  Kind
	Valid []bool

	Int32s       []int32
	Texts        []string
	Bools        []bool
	Float64s     []float64
	Dates        []int32 // days since 1970-01-01
	Timestamps   []int64 // microseconds since epoch (NTZ or TZ, per Kind)
	Times        []int64 // microseconds since midnight
	TextArrays   [][]NullableText
	BytesValues  [][]byte
}

// NullableText is one element of a text[] cell.
type NullableText struct {
	Value string
	Valid bool
}

// Len returns the number of rows in the series.
func (s *Series) Len() int {
	return len(s.Valid)
}

// DataFrame is a named, ordered, equal-length list of Series.
type DataFrame struct {
	Columns []Series
}

// NumRows returns the row count, or 0 for a zero-column frame.
func (df *DataFrame) NumRows() int {
	if len(df.Columns) == 0 {
		return 0
	}
	return df.Columns[0].Len()
}

// NumColumns returns the column count.
func (df *DataFrame) NumColumns() int {
	return len(df.Columns)
}

// Column returns the named column and whether it was found.
func (df *DataFrame) Column(name string) (*Series, bool) {
	for i := range df.Columns {
		if df.Columns[i].Name == name {
			return &df.Columns[i], true
		}
	}
	return nil, false
}
