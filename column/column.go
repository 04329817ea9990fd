// Package column builds typed, nullable dataframe.Series columns from raw
// PostgreSQL binary DataRow payloads, dispatching on the field's type OID.
// Builders are constructed from a wire.FieldDescriptor once per
// RowDescription and then fed one raw value per DataRow.
package column

import (
	"encoding/binary"
	"math"

	"github.com/pgframe/pgframe/dataframe"
	"github.com/pgframe/pgframe/wire"
)

// PostgreSQL type OIDs this client dispatches on directly. Anything else
// falls back to Bytes.
const (
	OIDBool        = 16
	OIDInt4        = 23
	OIDText        = 25
	OIDFloat8      = 701
	OIDDate        = 1082
	OIDTime        = 1083
	OIDTimestamp   = 1114
	OIDTimestampTZ = 1184
	OIDTextArray   = 1009
	OIDVarchar     = 1043
)

// pgEpochMicros is the offset, in microseconds, from the PostgreSQL
// reference date (2000-01-01) to the Unix epoch (1970-01-01): 10,957 days.
const pgEpochMicros int64 = 946_684_800_000_000

// pgEpochDays is the same offset expressed in whole days.
const pgEpochDays int32 = 10957

// Builder accumulates one column's worth of cells and finalizes them into a
// dataframe.Series. A Builder's length (number of Push/PushNull calls) must
// equal the row count of the query it belongs to — the session enforces
// this by calling Push exactly once per builder per DataRow.
type Builder struct {
	name string
	oid  uint32
	kind dataframe.Kind

	valid      []bool
	int32s     []int32
	texts      []string
	bools      []bool
	float64s   []float64
	dates      []int32
	timestamps []int64
	times      []int64
	textArrays [][]dataframe.NullableText
	bytes      [][]byte
}

// NewBuilder constructs an empty Builder for the given field descriptor,
// dispatching its Kind by type OID per the spec's OID table.
func NewBuilder(field wire.FieldDescriptor) *Builder {
	b := &Builder{name: field.Name, oid: field.TypeOID}
	switch field.TypeOID {
	case OIDBool:
		b.kind = dataframe.KindBool
	case OIDInt4:
		b.kind = dataframe.KindInt32
	case OIDText, OIDVarchar:
		b.kind = dataframe.KindText
	case OIDFloat8:
		b.kind = dataframe.KindFloat64
	case OIDDate:
		b.kind = dataframe.KindDate
	case OIDTime:
		b.kind = dataframe.KindTime
	case OIDTimestamp:
		b.kind = dataframe.KindTimestamp
	case OIDTimestampTZ:
		b.kind = dataframe.KindTimestampTZ
	case OIDTextArray:
		b.kind = dataframe.KindTextArray
	default:
		b.kind = dataframe.KindBytes
	}
	return b
}

// Empty returns a fresh Builder of the same shape (name, OID, kind) with no
// rows — the "clone empty" operation the prepared-statement cache performs
// on a cache hit so later executions can skip the Describe round-trip.
func (b *Builder) Empty() *Builder {
	return &Builder{name: b.name, oid: b.oid, kind: b.kind}
}

// OID returns the PostgreSQL type OID this builder was constructed from.
func (b *Builder) OID() uint32 { return b.oid }

// Name returns the column name.
func (b *Builder) Name() string { return b.name }

// Len returns the number of cells appended so far.
func (b *Builder) Len() int { return len(b.valid) }

// Push appends one cell. raw == nil means SQL NULL. A raw value whose width
// does not match the fixed expected width for the builder's type also
// appends a null, rather than failing the row, except for text[] payloads
// where a malformed layout returns an error (OnlyOneDimensionArraySupported
// or NotEnoughBytes) since there is no well-defined "null" fallback for a
// truncated or multi-dimensional array header.
func (b *Builder) Push(raw []byte) error {
	switch b.kind {
	case dataframe.KindBool:
		if len(raw) == 1 {
			b.bools = append(b.bools, raw[0] != 0)
			b.valid = append(b.valid, true)
		} else {
			b.bools = append(b.bools, false)
			b.valid = append(b.valid, false)
		}
	case dataframe.KindInt32:
		if len(raw) == 4 {
			b.int32s = append(b.int32s, int32(binary.BigEndian.Uint32(raw)))
			b.valid = append(b.valid, true)
		} else {
			b.int32s = append(b.int32s, 0)
			b.valid = append(b.valid, false)
		}
	case dataframe.KindText:
		if raw != nil {
			b.texts = append(b.texts, string(raw))
			b.valid = append(b.valid, true)
		} else {
			b.texts = append(b.texts, "")
			b.valid = append(b.valid, false)
		}
	case dataframe.KindFloat64:
		if len(raw) == 8 {
			b.float64s = append(b.float64s, math.Float64frombits(binary.BigEndian.Uint64(raw)))
			b.valid = append(b.valid, true)
		} else {
			b.float64s = append(b.float64s, 0)
			b.valid = append(b.valid, false)
		}
	case dataframe.KindDate:
		if len(raw) == 4 {
			pgDays := int32(binary.BigEndian.Uint32(raw))
			b.dates = append(b.dates, pgDays+pgEpochDays)
			b.valid = append(b.valid, true)
		} else {
			b.dates = append(b.dates, 0)
			b.valid = append(b.valid, false)
		}
	case dataframe.KindTimestamp, dataframe.KindTimestampTZ:
		if len(raw) == 8 {
			pgMicros := int64(binary.BigEndian.Uint64(raw))
			b.timestamps = append(b.timestamps, pgMicros+pgEpochMicros)
			b.valid = append(b.valid, true)
		} else {
			b.timestamps = append(b.timestamps, 0)
			b.valid = append(b.valid, false)
		}
	case dataframe.KindTime:
		if len(raw) == 8 {
			b.times = append(b.times, int64(binary.BigEndian.Uint64(raw)))
			b.valid = append(b.valid, true)
		} else {
			b.times = append(b.times, 0)
			b.valid = append(b.valid, false)
		}
	case dataframe.KindTextArray:
		if raw == nil {
			b.textArrays = append(b.textArrays, nil)
			b.valid = append(b.valid, false)
			return nil
		}
		elems, err := decodeTextArray(raw)
		if err != nil {
			return err
		}
		b.textArrays = append(b.textArrays, elems)
		b.valid = append(b.valid, true)
	default: // KindBytes fallback
		if raw != nil {
			cp := make([]byte, len(raw))
			copy(cp, raw)
			b.bytes = append(b.bytes, cp)
			b.valid = append(b.valid, true)
		} else {
			b.bytes = append(b.bytes, nil)
			b.valid = append(b.valid, false)
		}
	}
	return nil
}

// Finalize casts the builder into its logical dataframe.Series.
func (b *Builder) Finalize() dataframe.Series {
	return dataframe.Series{
		Name:        b.name,
		Kind:        b.kind,
		Valid:       b.valid,
		Int32s:      b.int32s,
		Texts:       b.texts,
		Bools:       b.bools,
		Float64s:    b.float64s,
		Dates:       b.dates,
		Timestamps:  b.timestamps,
		Times:       b.times,
		TextArrays:  b.textArrays,
		BytesValues: b.bytes,
	}
}
